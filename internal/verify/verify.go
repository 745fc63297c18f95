// Package verify scans a downloads tree and reports wallpapers that do
// not decode as valid images, typically leftovers from interrupted
// transfers on older versions that did not clean up partial files.
package verify

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/utils"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

type BadFile struct {
	Path   string
	Reason string
}

// Scan walks root and decodes every image file it finds, returning the
// files that fail to decode sorted by path.
func Scan(ctx context.Context, root string, workers int) ([]BadFile, error) {
	log := utils.GetLogger("verify")
	if workers <= 0 {
		workers = 4
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if imageExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Int("files", len(paths)).Msg("Scanning image files")

	var mu sync.Mutex
	var bad []BadFile
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for _, path := range paths {
		path := path
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			if reason := checkImage(path); reason != "" {
				mu.Lock()
				bad = append(bad, BadFile{Path: path, Reason: reason})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(bad, func(i, j int) bool { return bad[i].Path < bad[j].Path })
	return bad, nil
}

func checkImage(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return err.Error()
	}
	defer file.Close()
	if _, _, err := image.Decode(file); err != nil {
		return err.Error()
	}
	return ""
}
