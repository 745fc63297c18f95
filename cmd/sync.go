package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/output"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/s3sync"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/utils"
)

func newSyncCmd() *cobra.Command {
	var bucket string
	var prefix string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the downloads directory to an S3 bucket",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			utils.InitLogger(debug)
			if bucket == "" {
				output.PrintError("No bucket specified, use --bucket")
				os.Exit(1)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			output.PrintPending(fmt.Sprintf("Syncing %s to s3://%s/%s", downloadsDir, bucket, prefix))
			stats, err := s3sync.Sync(ctx, s3sync.Config{
				Bucket:  bucket,
				Prefix:  prefix,
				Root:    downloadsDir,
				Workers: workers,
			})
			if err != nil {
				output.PrintError(fmt.Sprintf("Sync failed: %v", err))
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("Uploaded %d objects (%s), %d already in sync",
				stats.Uploaded, output.FormatBytes(uint64(stats.Bytes)), stats.Skipped))
		},
	}
	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "Destination S3 bucket")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Key prefix inside the bucket")
	return cmd
}
