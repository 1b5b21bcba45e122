package client

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// NewCachingHTTPClient creates an HTTP client with disk-based caching.
// Only responses the API marks cacheable (Cache-Control, ETag) are stored,
// which lets repeated user list reads revalidate instead of refetching.
// Each bearer token gets its own cache directory under cacheDir.
func NewCachingHTTPClient(cacheDir string) *http.Client {
	if cacheDir == "" {
		return NewInMemoryCachingHTTPClient()
	}

	return &http.Client{
		Transport: NewIdentityTransport(func(scope string) httpcache.Cache {
			return diskcache.New(filepath.Join(cacheDir, scope))
		}),
	}
}

// NewInMemoryCachingHTTPClient creates an HTTP client with in-memory caching only.
func NewInMemoryCachingHTTPClient() *http.Client {
	return &http.Client{
		Transport: NewIdentityTransport(func(string) httpcache.Cache {
			return httpcache.NewMemoryCache()
		}),
	}
}

// IdentityTransport keeps a separate httpcache transport per Authorization
// header. httpcache keys entries on the URL alone, so a shared cache would
// hand one identity's responses to another.
type IdentityTransport struct {
	newCache func(scope string) httpcache.Cache

	mu         sync.Mutex
	transports map[string]*httpcache.Transport
}

// NewIdentityTransport creates a transport building caches with newCache.
// scope is a short hash of the Authorization header.
func NewIdentityTransport(newCache func(scope string) httpcache.Cache) *IdentityTransport {
	return &IdentityTransport{
		newCache:   newCache,
		transports: make(map[string]*httpcache.Transport),
	}
}

func (t *IdentityTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.transport(cacheScope(req)).RoundTrip(req)
}

func (t *IdentityTransport) transport(scope string) *httpcache.Transport {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.transports[scope]
	if !ok {
		tr = httpcache.NewTransport(t.newCache(scope))
		t.transports[scope] = tr
	}
	return tr
}

func cacheScope(req *http.Request) string {
	auth := req.Header.Get("Authorization")
	if auth == "" {
		return "anonymous"
	}
	sum := sha256.Sum256([]byte(auth))
	return hex.EncodeToString(sum[:8])
}
