package wallhaven

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// PurityFilter selects which purity levels a query matches. Encoded as
// a three-digit flag string ("110") the way the API expects.
type PurityFilter struct {
	SFW     bool
	Sketchy bool
	NSFW    bool
}

// AllPurities matches everything, which is also the API default.
func AllPurities() PurityFilter {
	return PurityFilter{SFW: true, Sketchy: true, NSFW: true}
}

func (f PurityFilter) encode() string {
	return flagString(f.SFW, f.Sketchy, f.NSFW)
}

// CategoryFilter selects wallpaper categories, encoded like purity.
type CategoryFilter struct {
	General bool
	Anime   bool
	People  bool
}

func AllCategories() CategoryFilter {
	return CategoryFilter{General: true, Anime: true, People: true}
}

func (f CategoryFilter) encode() string {
	return flagString(f.General, f.Anime, f.People)
}

func flagString(flags ...bool) string {
	out := make([]byte, len(flags))
	for i, f := range flags {
		if f {
			out[i] = '1'
		} else {
			out[i] = '0'
		}
	}
	return string(out)
}

// ParsePurity reads the API's three-digit flag form, e.g. "100" for
// SFW only.
func ParsePurity(s string) (PurityFilter, error) {
	flags, err := parseFlagString(s)
	if err != nil {
		return PurityFilter{}, fmt.Errorf("invalid purity %q: %w", s, err)
	}
	return PurityFilter{SFW: flags[0], Sketchy: flags[1], NSFW: flags[2]}, nil
}

// ParseCategory reads the API's three-digit flag form, e.g. "010" for
// anime only.
func ParseCategory(s string) (CategoryFilter, error) {
	flags, err := parseFlagString(s)
	if err != nil {
		return CategoryFilter{}, fmt.Errorf("invalid category %q: %w", s, err)
	}
	return CategoryFilter{General: flags[0], Anime: flags[1], People: flags[2]}, nil
}

func parseFlagString(s string) ([3]bool, error) {
	var flags [3]bool
	if len(s) != 3 {
		return flags, errors.New("expected three digits of 0 or 1")
	}
	for i, c := range s {
		switch c {
		case '1':
			flags[i] = true
		case '0':
		default:
			return flags, errors.New("expected three digits of 0 or 1")
		}
	}
	return flags, nil
}

// SearchFilter carries the filters shared by search-backed endpoints.
type SearchFilter struct {
	Purity   PurityFilter
	Category CategoryFilter
}

func DefaultFilter() SearchFilter {
	return SearchFilter{Purity: AllPurities(), Category: AllCategories()}
}

func (f SearchFilter) query() url.Values {
	v := url.Values{}
	v.Set("purity", f.Purity.encode())
	v.Set("categories", f.Category.encode())
	return v
}

// Meta is the pagination envelope returned by list endpoints.
type Meta struct {
	CurrentPage int         `json:"current_page"`
	LastPage    int         `json:"last_page"`
	PerPage     json.Number `json:"per_page"` // the API mixes string and number here
	Total       int         `json:"total"`
}

type Uploader struct {
	Username string            `json:"username"`
	Group    string            `json:"group"`
	Avatar   map[string]string `json:"avatar"`
}

type Tag struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Alias      string `json:"alias"`
	CategoryID int    `json:"category_id"`
	Category   string `json:"category"`
	Purity     string `json:"purity"`
	CreatedAt  string `json:"created_at"`
}

// Wallpaper describes one catalog entry. Path is the direct image URL
// used for downloads; the id is embedded in its filename
// (wallhaven-<id>.<ext>), which duplicate detection relies on.
type Wallpaper struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	ShortURL   string            `json:"short_url"`
	Views      int               `json:"views"`
	Favorites  int               `json:"favorites"`
	Source     string            `json:"source"`
	Purity     string            `json:"purity"`
	Category   string            `json:"category"`
	DimensionX int               `json:"dimension_x"`
	DimensionY int               `json:"dimension_y"`
	Resolution string            `json:"resolution"`
	Ratio      string            `json:"ratio"`
	FileSize   int64             `json:"file_size"`
	FileType   string            `json:"file_type"`
	CreatedAt  string            `json:"created_at"`
	Colors     []string          `json:"colors"`
	Path       string            `json:"path"`
	Thumbs     map[string]string `json:"thumbs"`
	Uploader   *Uploader         `json:"uploader,omitempty"`
	Tags       []Tag             `json:"tags,omitempty"`
}

// WallpaperPage is one page of catalog results.
type WallpaperPage struct {
	Data []Wallpaper `json:"data"`
	Meta Meta        `json:"meta"`
}

// CollectionInfo is a collection listing entry (no wallpapers).
type CollectionInfo struct {
	ID     int    `json:"id"`
	Label  string `json:"label"`
	Views  int    `json:"views"`
	Public int    `json:"public"`
	Count  int    `json:"count"`
}

// UserSettings mirrors the authenticated account settings endpoint.
type UserSettings struct {
	ThumbSize      string   `json:"thumb_size"`
	PerPage        string   `json:"per_page"`
	Purity         []string `json:"purity"`
	Categories     []string `json:"categories"`
	Resolutions    []string `json:"resolutions"`
	AspectRatios   []string `json:"aspect_ratios"`
	TopRange       string   `json:"toplist_range"`
	TagBlacklist   []string `json:"tag_blacklist"`
	UserBlacklist  []string `json:"user_blacklist"`
	AILArtFiltered bool     `json:"-"`
}

func pageParam(v url.Values, page int) url.Values {
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	return v
}
