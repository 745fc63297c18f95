package wallpapers

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/downloader"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/output"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/ratelimit"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/retry"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/utils"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/wallhaven"
)

type Config struct {
	APIKey            string
	APIBaseURL        string // defaults to the public API, overridable for tests
	DownloadsDir      string
	Workers           int
	RequestsPerSecond int // transfer request rate, default 1
	ChunkSize         int
	Filter            wallhaven.SearchFilter
	Retry             retry.Policy
	Quiet             bool
}

// Downloader resolves catalog fetch tasks into transfer tasks and runs
// them through the concurrent engine, one batch per collection.
type Downloader struct {
	api     *wallhaven.Client
	engine  *downloader.ConcurrentDownloader
	display *output.Manager
	cfg     Config
}

func New(cfg Config) *Downloader {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.Filter == (wallhaven.SearchFilter{}) {
		cfg.Filter = wallhaven.DefaultFilter()
	}
	api := wallhaven.NewClient(wallhaven.ClientConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.APIBaseURL,
		Retry:   cfg.Retry,
	})
	engine := downloader.New(downloader.Config{
		Workers: cfg.Workers,
		Limiter: ratelimit.PerSecond(cfg.RequestsPerSecond),
		Retry:   cfg.Retry,
	})
	display := output.NewManager()
	display.SetQuiet(cfg.Quiet)
	return &Downloader{
		api:     api,
		engine:  engine,
		display: display,
		cfg:     cfg,
	}
}

// Run processes every fetch task and returns the aggregate transfer
// status. The first fatal transfer or catalog error aborts the run
// after in-flight rollback.
func (d *Downloader) Run(ctx context.Context, tasks []FetchTask) (downloader.Status, error) {
	d.display.StartDisplay()
	defer d.display.StopDisplay()

	for _, task := range tasks {
		if task.SaveDir == "" {
			task.SaveDir = filepath.Join(d.cfg.DownloadsDir, task.Username)
			if task.Kind == FetchUploads {
				task.SaveDir = filepath.Join(task.SaveDir, "uploads")
			}
		}
		var err error
		switch task.Kind {
		case FetchCollections:
			err = d.downloadCollections(ctx, task)
		case FetchUploads:
			err = d.downloadUploads(ctx, task)
		default:
			err = fmt.Errorf("unknown fetch task kind %d", task.Kind)
		}
		if err != nil {
			return d.engine.StatusSnapshot(), err
		}
	}
	return d.engine.StatusSnapshot(), nil
}

func (d *Downloader) downloadCollections(ctx context.Context, task FetchTask) error {
	log := utils.GetLogger("wallpapers")
	labels := task.Collections
	if len(labels) == 0 {
		collections, err := d.api.UserCollectionsList(ctx, task.Username)
		if err != nil {
			return err
		}
		for _, collection := range collections {
			labels = append(labels, collection.Label)
		}
	}
	log.Debug().Str("user", task.Username).Strs("collections", labels).Msg("Resolved collection list")

	for _, label := range labels {
		saveDir := filepath.Join(task.SaveDir, label)
		if err := d.downloadCollection(ctx, task.Username, label, saveDir); err != nil {
			return err
		}
	}
	return nil
}

func (d *Downloader) downloadCollection(ctx context.Context, username, label, saveDir string) error {
	collections, err := d.api.UserCollectionsList(ctx, username)
	if err != nil {
		return err
	}
	collectionID := -1
	for _, collection := range collections {
		if collection.Label == label {
			collectionID = collection.ID
			break
		}
	}
	if collectionID < 0 {
		return fmt.Errorf("%w: collection %q of user %q", wallhaven.ErrNotFound, label, username)
	}

	localIDs := localWallpaperIDs(saveDir)
	fetchPage := func(page int) (*wallhaven.WallpaperPage, error) {
		return d.api.UserCollection(ctx, username, collectionID, d.cfg.Filter, page)
	}
	if err := d.scheduleAllPages(fetchPage, saveDir, localIDs); err != nil {
		return err
	}
	_, err = d.engine.Run(ctx)
	return err
}

func (d *Downloader) downloadUploads(ctx context.Context, task FetchTask) error {
	localIDs := localWallpaperIDs(task.SaveDir)
	fetchPage := func(page int) (*wallhaven.WallpaperPage, error) {
		return d.api.UserUploads(ctx, task.Username, d.cfg.Filter, page)
	}
	if err := d.scheduleAllPages(fetchPage, task.SaveDir, localIDs); err != nil {
		return err
	}
	_, err := d.engine.Run(ctx)
	return err
}

// scheduleAllPages walks pages 1..LastPage, skipping wallpapers whose
// id is already present in the destination tree.
func (d *Downloader) scheduleAllPages(fetchPage func(page int) (*wallhaven.WallpaperPage, error), saveDir string, localIDs map[string]struct{}) error {
	log := utils.GetLogger("wallpapers")
	page := 1
	for {
		result, err := fetchPage(page)
		if err != nil {
			return err
		}
		for _, wallpaper := range result.Data {
			if _, exists := localIDs[wallpaper.ID]; exists {
				log.Debug().Str("id", wallpaper.ID).Msg("Already downloaded, skipping")
				continue
			}
			d.scheduleWallpaper(wallpaper, saveDir)
		}
		if page >= result.Meta.LastPage {
			return nil
		}
		page++
	}
}

func (d *Downloader) scheduleWallpaper(wallpaper wallhaven.Wallpaper, saveDir string) {
	task := downloader.NewTask(wallpaper.Path, saveDir, "")
	if d.cfg.ChunkSize > 0 {
		task.ChunkSize = d.cfg.ChunkSize
	}
	name := d.display.Register(task.Filename, wallpaper.FileSize)
	task.Callbacks = downloader.Callbacks{
		OnStart: func(t *downloader.Task, total int64) {
			if total > 0 {
				d.display.SetTotal(name, total)
			}
		},
		OnChunk: func(t *downloader.Task, written int) {
			d.display.Update(name, written)
		},
		OnFinish: func(t *downloader.Task) {
			d.display.Complete(name)
		},
		OnFail: func(t *downloader.Task) {
			d.display.Fail(name, t.Err())
		},
	}
	d.engine.Schedule(task)
}

// Summary reports finished/failed counts and total bytes for the whole
// run, for the CLI's closing message.
func (d *Downloader) Summary() (finished, failed int, totalBytes int64) {
	return d.display.Summary()
}

// UserInfo prints the collection listings of the given users.
func (d *Downloader) UserInfo(ctx context.Context, usernames []string) error {
	for _, username := range usernames {
		collections, err := d.api.UserCollectionsList(ctx, username)
		if err != nil {
			return fmt.Errorf("listing collections of %q: %w", username, err)
		}
		output.PrintHeader(fmt.Sprintf("%s's collections:", username))
		if len(collections) == 0 {
			output.PrintDetail("  (none visible)")
			continue
		}
		for _, collection := range collections {
			output.PrintInfo(fmt.Sprintf("  %s %s (%d wallpapers)", output.StyleSymbols["bullet"], collection.Label, collection.Count))
		}
	}
	return nil
}

// localWallpaperIDs collects the wallpaper ids already present under
// root, parsed from the `*-<id>.<ext>` filename convention.
func localWallpaperIDs(root string) map[string]struct{} {
	ids := make(map[string]struct{})
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		if id := wallpaperIDFromFilename(entry.Name()); id != "" {
			ids[id] = struct{}{}
		}
		return nil
	})
	return ids
}

func wallpaperIDFromFilename(name string) string {
	dash := strings.LastIndex(name, "-")
	dot := strings.LastIndex(name, ".")
	if dash < 0 || dot < 0 || dot <= dash+1 {
		return ""
	}
	return name[dash+1 : dot]
}
