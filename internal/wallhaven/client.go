package wallhaven

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/ratelimit"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/retry"
	"github.com/Glitchy-Sheep/wallhaven-downloader/internal/utils"
)

const (
	DefaultBaseURL = "https://wallhaven.cc/api/v1"

	// Self-tested limits for the wallhaven.cc API domain; they may
	// change over time.
	apiRateCapacity = 12
	apiRateWindow   = 60 * time.Second
)

var (
	ErrUnauthorized    = errors.New("wallhaven: invalid or missing API key")
	ErrNotFound        = errors.New("wallhaven: user or collection not found")
	ErrTooManyRequests = errors.New("wallhaven: too many requests")
)

type ClientConfig struct {
	APIKey     string
	BaseURL    string // defaults to DefaultBaseURL, overridable for tests
	HTTPConfig utils.HTTPClientConfig
	Limiter    *ratelimit.Limiter // defaults to the documented API rate
	Retry      retry.Policy
}

// Client talks to the wallhaven REST API. All calls go through a
// shared rate limiter and the same retry policy as the transfer
// engine.
type Client struct {
	apiKey  string
	baseURL string
	http    utils.HTTPDoer
	limiter *ratelimit.Limiter
	policy  retry.Policy
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New(apiRateCapacity, apiRateWindow)
	}
	if cfg.HTTPConfig.Timeout == 0 {
		cfg.HTTPConfig.Timeout = 30 * time.Second
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		http:    utils.NewHTTPClient(cfg.HTTPConfig),
		limiter: cfg.Limiter,
		policy:  cfg.Retry.Normalized(),
	}
}

// get fetches one API endpoint and decodes the JSON body into v,
// retrying transient statuses and transport errors.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, v any) error {
	log := utils.GetLogger("wallhaven")
	reqURL := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			log.Debug().Str("url", reqURL).Int("attempt", attempt).Msg("Retrying API request")
			if err := c.policy.Wait(ctx, attempt-1); err != nil {
				return err
			}
		}
		if err := c.limiter.Acquire(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("error creating API request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(v)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("error decoding API response: %w", err)
			}
			return nil
		case http.StatusUnauthorized:
			resp.Body.Close()
			return ErrUnauthorized
		case http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound
		case http.StatusTooManyRequests:
			resp.Body.Close()
			lastErr = ErrTooManyRequests
		default:
			resp.Body.Close()
			if !c.policy.Retryable(resp.StatusCode) {
				return fmt.Errorf("wallhaven: unexpected status %d", resp.StatusCode)
			}
			lastErr = fmt.Errorf("wallhaven: server returned %d", resp.StatusCode)
		}
	}
	return fmt.Errorf("API request failed after %d attempts: %w", c.policy.MaxAttempts, lastErr)
}

// Wallpaper fetches one wallpaper by its id.
func (c *Client) Wallpaper(ctx context.Context, id string) (*Wallpaper, error) {
	var envelope struct {
		Data Wallpaper `json:"data"`
	}
	if err := c.get(ctx, "w/"+url.PathEscape(id), nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// Search runs a catalog search. An empty query lists everything the
// filter matches.
func (c *Client) Search(ctx context.Context, query string, filter SearchFilter, page int) (*WallpaperPage, error) {
	params := filter.query()
	if query != "" {
		params.Set("q", query)
	}
	var result WallpaperPage
	if err := c.get(ctx, "search", pageParam(params, page), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UserUploads lists wallpapers uploaded by username, one page at a
// time.
func (c *Client) UserUploads(ctx context.Context, username string, filter SearchFilter, page int) (*WallpaperPage, error) {
	return c.Search(ctx, "@"+username, filter, page)
}

// UserCollectionsList lists the collections of username. With an empty
// username the API key's own collections are returned, private ones
// included.
func (c *Client) UserCollectionsList(ctx context.Context, username string) ([]CollectionInfo, error) {
	endpoint := "collections"
	if username != "" {
		endpoint += "/" + url.PathEscape(username)
	}
	var envelope struct {
		Data []CollectionInfo `json:"data"`
	}
	if err := c.get(ctx, endpoint, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// UserCollection fetches one page of a collection by its numeric id.
func (c *Client) UserCollection(ctx context.Context, username string, collectionID int, filter SearchFilter, page int) (*WallpaperPage, error) {
	endpoint := fmt.Sprintf("collections/%s/%d", url.PathEscape(username), collectionID)
	var result WallpaperPage
	if err := c.get(ctx, endpoint, pageParam(filter.query(), page), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UserCollectionByLabel resolves a collection label to its id, then
// fetches the requested page. Returns ErrNotFound when the user has no
// collection with that label.
func (c *Client) UserCollectionByLabel(ctx context.Context, username, label string, filter SearchFilter, page int) (*WallpaperPage, error) {
	collections, err := c.UserCollectionsList(ctx, username)
	if err != nil {
		return nil, err
	}
	for _, collection := range collections {
		if collection.Label == label {
			return c.UserCollection(ctx, username, collection.ID, filter, page)
		}
	}
	return nil, fmt.Errorf("%w: collection %q of user %q", ErrNotFound, label, username)
}

// Tag fetches tag metadata by id.
func (c *Client) Tag(ctx context.Context, id int) (*Tag, error) {
	var envelope struct {
		Data Tag `json:"data"`
	}
	if err := c.get(ctx, fmt.Sprintf("tag/%d", id), nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// Settings fetches the account settings of the API key's owner.
func (c *Client) Settings(ctx context.Context) (*UserSettings, error) {
	if c.apiKey == "" {
		return nil, ErrUnauthorized
	}
	var envelope struct {
		Data UserSettings `json:"data"`
	}
	if err := c.get(ctx, "settings", nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}
