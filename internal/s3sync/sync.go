package s3sync

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/utils"
)

type Config struct {
	Bucket  string
	Prefix  string // key prefix inside the bucket, may be empty
	Root    string // local downloads directory to mirror
	Workers int    // parallel uploads, default 4
}

type Stats struct {
	Uploaded int
	Skipped  int
	Bytes    int64
}

// Sync mirrors the local downloads tree into an S3 bucket. Objects
// whose key and size already match are skipped, so repeated runs only
// move new wallpapers.
func Sync(ctx context.Context, cfg Config) (*Stats, error) {
	log := utils.GetLogger("s3sync")
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("no bucket configured")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("error reading downloads directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.Root)
	}

	client, err := newS3Client(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := listExistingObjects(ctx, client, cfg.Bucket, cfg.Prefix)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("objects", len(existing)).Msg("Listed existing bucket objects")

	uploader := manager.NewUploader(client)
	stats := &Stats{}
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.Workers)

	walkErr := filepath.WalkDir(cfg.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(cfg.Root, path)
		if err != nil {
			return err
		}
		key := objectKey(cfg.Prefix, relPath)
		fileInfo, err := entry.Info()
		if err != nil {
			return err
		}
		if size, exists := existing[key]; exists && size == fileInfo.Size() {
			mu.Lock()
			stats.Skipped++
			mu.Unlock()
			return nil
		}
		group.Go(func() error {
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("error opening %s: %w", path, err)
			}
			defer file.Close()
			_, err = uploader.Upload(groupCtx, &s3.PutObjectInput{
				Bucket: aws.String(cfg.Bucket),
				Key:    aws.String(key),
				Body:   file,
			})
			if err != nil {
				return fmt.Errorf("error uploading %s: %w", key, err)
			}
			log.Debug().Str("key", key).Int64("size", fileInfo.Size()).Msg("Uploaded object")
			mu.Lock()
			stats.Uploaded++
			stats.Bytes += fileInfo.Size()
			mu.Unlock()
			return nil
		})
		return nil
	})
	if walkErr != nil {
		// Let in-flight uploads settle before reporting the walk error.
		_ = group.Wait()
		return nil, walkErr
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

func newS3Client(ctx context.Context) (*s3.Client, error) {
	profile := os.Getenv("AWS_PROFILE")
	if profile == "" {
		profile = "default"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithSharedConfigProfile(profile),
		awsconfig.WithRetryMode("adaptive"))
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// listExistingObjects maps key → size for everything already under the
// prefix.
func listExistingObjects(ctx context.Context, client *s3.Client, bucket, prefix string) (map[string]int64, error) {
	existing := make(map[string]int64)
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("error listing bucket objects: %w", err)
		}
		for _, object := range page.Contents {
			if object.Key == nil || object.Size == nil {
				continue
			}
			existing[*object.Key] = *object.Size
		}
	}
	return existing, nil
}

func objectKey(prefix, relPath string) string {
	key := filepath.ToSlash(relPath)
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}
