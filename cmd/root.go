package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/output"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/utils"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/wallhaven"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/wallpapers"
)

var (
	collectionSpecs []string
	uploadUsers     []string
	infoUsers       []string
	purityFlag      string
	categoryFlag    string
	downloadsDir    string
	apiKey          string
	workers         int
	rps             int
	chunkSize       int
	quiet           bool
	debug           bool
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "wallhaven-downloader",
	Short:   "Bulk downloader for wallhaven.cc collections and uploads",
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		if apiKey == "" {
			apiKey = os.Getenv("WALLHAVEN_API_KEY")
		}
		if apiKey == "" {
			output.PrintWarning("No API key set, NSFW wallpapers will be unavailable (use --api-key or WALLHAVEN_API_KEY)")
		}
		filter, err := parseFilter()
		if err != nil {
			output.PrintError(err.Error())
			os.Exit(1)
		}
		cfg := wallpapers.Config{
			APIKey:            apiKey,
			DownloadsDir:      downloadsDir,
			Workers:           workers,
			RequestsPerSecond: rps,
			ChunkSize:         chunkSize,
			Filter:            filter,
			Quiet:             quiet,
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if len(infoUsers) > 0 {
			d := wallpapers.New(cfg)
			if err := d.UserInfo(ctx, infoUsers); err != nil {
				exitWithError(err)
			}
			return
		}

		tasks := buildTasks()
		if len(tasks) == 0 {
			output.PrintError("Nothing to do, specify --collections, --uploads or --info")
			os.Exit(1)
		}
		runTasks(ctx, cfg, tasks)
	},
}

func runTasks(ctx context.Context, cfg wallpapers.Config, tasks []wallpapers.FetchTask) {
	d := wallpapers.New(cfg)
	started := time.Now()
	_, err := d.Run(ctx, tasks)
	finished, failed, totalBytes := d.Summary()
	fmt.Println()
	if finished > 0 {
		output.PrintSuccess(fmt.Sprintf("Downloaded %d wallpapers (%s) in %s",
			finished, output.FormatBytes(uint64(totalBytes)), time.Since(started).Round(time.Second)))
	}
	if failed > 0 {
		output.PrintWarning(fmt.Sprintf("%d downloads failed", failed))
	}
	if err != nil {
		exitWithError(err)
	}
}

// buildTasks turns the CLI flags into fetch tasks. Collection specs
// look like "username" for every collection or "username:Label1,Label2"
// for specific ones.
func buildTasks() []wallpapers.FetchTask {
	var tasks []wallpapers.FetchTask
	for _, spec := range collectionSpecs {
		username, labelPart, _ := strings.Cut(spec, ":")
		task := wallpapers.FetchTask{Kind: wallpapers.FetchCollections, Username: username}
		if labelPart != "" {
			for _, label := range strings.Split(labelPart, ",") {
				if label = strings.TrimSpace(label); label != "" {
					task.Collections = append(task.Collections, label)
				}
			}
		}
		tasks = append(tasks, task)
	}
	for _, username := range uploadUsers {
		tasks = append(tasks, wallpapers.FetchTask{Kind: wallpapers.FetchUploads, Username: username})
	}
	return tasks
}

func parseFilter() (wallhaven.SearchFilter, error) {
	purity, err := wallhaven.ParsePurity(purityFlag)
	if err != nil {
		return wallhaven.SearchFilter{}, err
	}
	category, err := wallhaven.ParseCategory(categoryFlag)
	if err != nil {
		return wallhaven.SearchFilter{}, err
	}
	return wallhaven.SearchFilter{Purity: purity, Category: category}, nil
}

// exitWithError turns known failures into short actionable messages.
func exitWithError(err error) {
	switch {
	case errors.Is(err, context.Canceled):
		output.PrintWarning("Interrupted, partial downloads were cleaned up")
	case errors.Is(err, wallhaven.ErrUnauthorized):
		output.PrintError("The API rejected your key, check --api-key or WALLHAVEN_API_KEY")
	case errors.Is(err, wallhaven.ErrNotFound):
		output.PrintError(fmt.Sprintf("Not found: %v", err))
	case errors.Is(err, wallhaven.ErrTooManyRequests):
		output.PrintError("The API is rate limiting us, try again later or lower --rps")
	default:
		output.PrintError(fmt.Sprintf("Error: %v", err))
	}
	os.Exit(1)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringArrayVarP(&collectionSpecs, "collections", "c", nil, "Download a user's collections: 'username' for all, 'username:Label1,Label2' for specific ones; repeatable")
	rootCmd.Flags().StringArrayVarP(&uploadUsers, "uploads", "u", nil, "Download a user's uploads; repeatable")
	rootCmd.Flags().StringArrayVarP(&infoUsers, "info", "i", nil, "List a user's collections instead of downloading; repeatable")
	rootCmd.PersistentFlags().StringVarP(&downloadsDir, "downloads", "d", "downloads", "Directory to save wallpapers into")
	rootCmd.PersistentFlags().StringVarP(&apiKey, "api-key", "k", "", "Wallhaven API key (falls back to WALLHAVEN_API_KEY)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 8, "Number of parallel downloads")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.Flags().StringVar(&purityFlag, "purity", "111", "Purity filter as three digits: SFW, sketchy, NSFW (eg. 100)")
	rootCmd.Flags().StringVar(&categoryFlag, "category", "111", "Category filter as three digits: general, anime, people (eg. 010)")
	rootCmd.Flags().IntVar(&rps, "rps", 1, "Wallpaper requests started per second")
	rootCmd.Flags().IntVar(&chunkSize, "chunk-size", utils.DefaultChunkSize, "Transfer chunk size in bytes")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Disable the live progress display")
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newVerifyCmd())
}
