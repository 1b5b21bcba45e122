package client

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		c := NewHTTPClient(Config{Timeout: 5 * time.Second})
		require.Equal(t, 5*time.Second, c.Timeout)
		require.Nil(t, c.Transport)
	})

	t.Run("memory cache", func(t *testing.T) {
		c := NewHTTPClient(Config{Cache: true})
		require.IsType(t, &IdentityTransport{}, c.Transport)
	})

	t.Run("disk cache", func(t *testing.T) {
		c := NewHTTPClient(Config{CacheDir: t.TempDir()})
		require.IsType(t, &IdentityTransport{}, c.Transport)
	})
}

func TestCachingHTTPClient_servesFromCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Cache-Control", "max-age=60")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewCachingHTTPClient(t.TempDir())
	for i := 0; i < 3; i++ {
		resp, err := c.Get(srv.URL + "/users")
		require.NoError(t, err)
		_, err = io.ReadAll(resp.Body)
		require.NoError(t, err)
		resp.Body.Close()
	}

	require.Equal(t, int32(1), hits.Load())
}

func TestCachingHTTPClient_cachePerIdentity(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "Bearer admin" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Cache-Control", "max-age=60")
		_, _ = w.Write([]byte(`[{"id":1,"name":"secret"}]`))
	}))
	defer srv.Close()

	get := func(c *http.Client, bearer string) (int, string) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/users", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+bearer)

		resp, err := c.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	tests := []struct {
		name   string
		client *http.Client
	}{
		{name: "memory", client: NewInMemoryCachingHTTPClient()},
		{name: "disk", client: NewCachingHTTPClient(t.TempDir())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits.Store(0)

			status, body := get(tt.client, "admin")
			require.Equal(t, http.StatusOK, status)
			require.Contains(t, body, "secret")

			status, body = get(tt.client, "guest")
			require.Equal(t, http.StatusForbidden, status)
			require.NotContains(t, body, "secret")

			status, _ = get(tt.client, "admin")
			require.Equal(t, http.StatusOK, status)

			require.Equal(t, int32(2), hits.Load())
		})
	}
}
