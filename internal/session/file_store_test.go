package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/userdesk/internal/token/tokentest"
)

func TestNewFileStore(t *testing.T) {
	t.Run("creates directory with correct permissions", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "state")

		store, err := NewFileStore(dir, "https://api.example.com")
		require.NoError(t, err)
		assert.NotNil(t, store)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

		info, err = os.Stat(store.Path())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("requires origin", func(t *testing.T) {
		_, err := NewFileStore(t.TempDir(), "")
		require.Error(t, err)
	})

	t.Run("keeps existing document", func(t *testing.T) {
		dir := t.TempDir()
		first, err := NewFileStore(dir, "https://api.example.com")
		require.NoError(t, err)
		require.NoError(t, first.Set(context.Background(), "tok"))

		second, err := NewFileStore(dir, "https://api.example.com")
		require.NoError(t, err)
		raw, err := second.Get(context.Background())
		require.NoError(t, err)
		require.Equal(t, "tok", raw)
	})
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("empty slot", func(t *testing.T) {
		store, err := NewFileStore(t.TempDir(), "https://api.example.com")
		require.NoError(t, err)

		_, err = store.Get(ctx)
		require.ErrorIs(t, err, ErrNoToken)
	})

	t.Run("set get clear", func(t *testing.T) {
		store, err := NewFileStore(t.TempDir(), "https://api.example.com")
		require.NoError(t, err)

		require.NoError(t, store.Set(ctx, "first"))
		require.NoError(t, store.Set(ctx, "second"))

		raw, err := store.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, "second", raw)

		require.NoError(t, store.Clear(ctx))
		_, err = store.Get(ctx)
		require.ErrorIs(t, err, ErrNoToken)

		require.NoError(t, store.Clear(ctx))
	})

	t.Run("origins are isolated", func(t *testing.T) {
		dir := t.TempDir()
		a, err := NewFileStore(dir, "https://a.example.com")
		require.NoError(t, err)
		b, err := NewFileStore(dir, "https://B.example.com/")
		require.NoError(t, err)

		require.NoError(t, a.Set(ctx, "token-a"))
		require.NoError(t, b.Set(ctx, "token-b"))
		require.NoError(t, a.Clear(ctx))

		_, err = a.Get(ctx)
		require.ErrorIs(t, err, ErrNoToken)
		raw, err := b.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, "token-b", raw)

		data, err := os.ReadFile(b.Path())
		require.NoError(t, err)
		var doc fileDocument
		require.NoError(t, json.Unmarshal(data, &doc))
		require.Equal(t, 1, doc.Version)
		require.Equal(t, map[string]string{"https://b.example.com": "token-b"}, doc.Sessions)
	})

	t.Run("missing document is an empty slot", func(t *testing.T) {
		store, err := NewFileStore(t.TempDir(), "https://api.example.com")
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, "tok"))
		require.NoError(t, os.Remove(store.Path()))

		_, err = store.Get(ctx)
		require.ErrorIs(t, err, ErrNoToken)
		require.NoError(t, store.Clear(ctx))

		require.NoError(t, store.Set(ctx, "again"))
		raw, err := store.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, "again", raw)
	})

	t.Run("corrupt document", func(t *testing.T) {
		store, err := NewFileStore(t.TempDir(), "https://api.example.com")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(store.Path(), []byte("not json"), 0600))

		_, err = store.Get(ctx)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrNoToken)

		require.NoError(t, store.Clear(ctx))
		_, err = store.Get(ctx)
		require.ErrorIs(t, err, ErrNoToken)

		data, err := os.ReadFile(store.Path())
		require.NoError(t, err)
		var doc fileDocument
		require.NoError(t, json.Unmarshal(data, &doc))
		require.Empty(t, doc.Sessions)
	})

	t.Run("set replaces corrupt document", func(t *testing.T) {
		store, err := NewFileStore(t.TempDir(), "https://api.example.com")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(store.Path(), []byte("not json"), 0600))

		require.NoError(t, store.Set(ctx, "tok"))
		raw, err := store.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, "tok", raw)
	})

	t.Run("no temp file left behind", func(t *testing.T) {
		store, err := NewFileStore(t.TempDir(), "https://api.example.com")
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, "tok"))

		_, err = os.Stat(store.Path() + ".tmp")
		require.True(t, os.IsNotExist(err))
	})
}

func TestFileStore_managerRecovers(t *testing.T) {
	ctx := context.Background()

	t.Run("document removed while signed in", func(t *testing.T) {
		store, err := NewFileStore(t.TempDir(), "https://api.example.com")
		require.NoError(t, err)

		m := NewManager(store)
		m.Init(ctx)
		_, err = m.Login(ctx, tokentest.Issue(t, "alice", time.Now().Add(time.Hour)))
		require.NoError(t, err)

		require.NoError(t, os.Remove(store.Path()))

		require.NoError(t, m.Logout(ctx))
		res, err := m.Login(ctx, tokentest.Issue(t, "bob", time.Now().Add(time.Hour)))
		require.NoError(t, err)
		require.Equal(t, OutcomeLoggedIn, res.Outcome)
		require.Equal(t, "bob", m.Current().Identity)
	})

	t.Run("corrupt document", func(t *testing.T) {
		store, err := NewFileStore(t.TempDir(), "https://api.example.com")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(store.Path(), []byte("not json"), 0600))

		m := NewManager(store)
		res := m.Init(ctx)
		require.Equal(t, OutcomeNoToken, res.Outcome)
		require.Error(t, res.Err)

		require.NoError(t, m.Logout(ctx))
		_, err = store.Get(ctx)
		require.ErrorIs(t, err, ErrNoToken)

		res, err = m.Login(ctx, tokentest.Issue(t, "alice", time.Now().Add(time.Hour)))
		require.NoError(t, err)
		require.Equal(t, OutcomeLoggedIn, res.Outcome)
	})
}
