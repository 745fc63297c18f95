package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/output"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/utils"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/wallpapers"
)

type batchEntry struct {
	Username string   `yaml:"username"`
	Labels   []string `yaml:"labels,omitempty"`
	Dir      string   `yaml:"dir,omitempty"`
}

type batchFile struct {
	Collections []batchEntry `yaml:"collections,omitempty"`
	Uploads     []batchEntry `yaml:"uploads,omitempty"`
}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Download collections and uploads listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			utils.InitLogger(debug)
			data, err := os.ReadFile(args[0])
			if err != nil {
				output.PrintError("Error reading batch file: " + err.Error())
				os.Exit(1)
			}
			var file batchFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				output.PrintError("Error parsing batch file: " + err.Error())
				os.Exit(1)
			}
			tasks := buildBatchTasks(file)
			if len(tasks) == 0 {
				output.PrintError("No valid entries found in the batch file")
				os.Exit(1)
			}
			if apiKey == "" {
				apiKey = os.Getenv("WALLHAVEN_API_KEY")
			}
			cfg := wallpapers.Config{
				APIKey:       apiKey,
				DownloadsDir: downloadsDir,
				Workers:      workers,
				Quiet:        quiet,
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			runTasks(ctx, cfg, tasks)
		},
	}
	return cmd
}

func buildBatchTasks(file batchFile) []wallpapers.FetchTask {
	var tasks []wallpapers.FetchTask
	for _, entry := range file.Collections {
		if entry.Username == "" {
			output.PrintWarning("Skipping collections entry without a username")
			continue
		}
		tasks = append(tasks, wallpapers.FetchTask{
			Kind:        wallpapers.FetchCollections,
			Username:    entry.Username,
			SaveDir:     entry.Dir,
			Collections: entry.Labels,
		})
	}
	for _, entry := range file.Uploads {
		if entry.Username == "" {
			output.PrintWarning("Skipping uploads entry without a username")
			continue
		}
		tasks = append(tasks, wallpapers.FetchTask{
			Kind:     wallpapers.FetchUploads,
			Username: entry.Username,
			SaveDir:  entry.Dir,
		})
	}
	return tasks
}
