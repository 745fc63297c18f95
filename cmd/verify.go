package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/output"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/utils"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/verify"
)

func newVerifyCmd() *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check downloaded wallpapers for corrupt or truncated images",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			utils.InitLogger(debug)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			bad, err := verify.Scan(ctx, downloadsDir, workers)
			if err != nil {
				output.PrintError(fmt.Sprintf("Scan failed: %v", err))
				os.Exit(1)
			}
			if len(bad) == 0 {
				output.PrintSuccess("All images decoded cleanly")
				return
			}
			for _, file := range bad {
				output.PrintWarning(fmt.Sprintf("%s: %s", file.Path, file.Reason))
				if remove {
					if err := os.Remove(file.Path); err != nil {
						output.PrintError(fmt.Sprintf("Could not remove %s: %v", file.Path, err))
					}
				}
			}
			if remove {
				output.PrintInfo(fmt.Sprintf("Removed %d corrupt files, rerun the downloader to fetch them again", len(bad)))
			} else {
				output.PrintInfo(fmt.Sprintf("%d corrupt files found, rerun with --remove to delete them", len(bad)))
			}
			os.Exit(1)
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "Delete corrupt files so they are re-downloaded next run")
	return cmd
}
