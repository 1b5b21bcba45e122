package client

import (
	"net/http"
	"time"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Timeout   time.Duration
	// CacheDir enables a disk cache for cacheable responses. Empty means
	// an in-memory cache when Cache is set.
	CacheDir string
	Cache    bool
	Debug    bool
}

// NewHTTPClient creates the HTTP client used to call the user-management API.
func NewHTTPClient(config Config) *http.Client {
	var httpClient *http.Client
	switch {
	case config.CacheDir != "":
		httpClient = NewCachingHTTPClient(config.CacheDir)
	case config.Cache:
		httpClient = NewInMemoryCachingHTTPClient()
	default:
		httpClient = &http.Client{}
	}

	httpClient.Timeout = config.Timeout

	return httpClient
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8080/api",
		Timeout:   30 * time.Second,
		Debug:     false,
	}
}
