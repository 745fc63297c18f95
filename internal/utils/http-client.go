package utils

import (
	"net/http"
	"sync"
	"time"
)

type HTTPClientConfig struct {
	Timeout         time.Duration
	KATimeout       time.Duration
	UserAgent       string            // fixed user agent; empty enables rotation
	Headers         map[string]string // extra headers set on every request
	RotateUserAgent int               // requests per rotated user agent, 0 uses the default
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient wraps http.Client with per-request header injection and
// periodic user agent rotation, shared by the API client and the
// transfer workers.
type HTTPClient struct {
	client *http.Client
	config HTTPClientConfig

	mu        sync.Mutex
	userAgent string
	requests  int
}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Minute
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 90 * time.Second
	}
	if cfg.RotateUserAgent <= 0 {
		cfg.RotateUserAgent = DefaultUserAgentRotation
	}
	transport := &http.Transport{
		IdleConnTimeout:     cfg.KATimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		DisableCompression:  true,
	}
	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		config:    cfg,
		userAgent: GetRandomUserAgent(),
	}
}

func (c *HTTPClient) SetHeader(key, value string) {
	if c.config.Headers == nil {
		c.config.Headers = make(map[string]string)
	}
	c.config.Headers[key] = value
}

func (c *HTTPClient) currentUserAgent() string {
	if c.config.UserAgent != "" {
		return c.config.UserAgent
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
	if c.requests > c.config.RotateUserAgent {
		c.userAgent = GetRandomUserAgent()
		c.requests = 1
	}
	return c.userAgent
}

func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.currentUserAgent())
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	return c.client.Do(req)
}
