package commands

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/userdesk/internal/config"
	"github.com/wolfeidau/userdesk/internal/guard"
	"github.com/wolfeidau/userdesk/internal/session"
	"github.com/wolfeidau/userdesk/internal/token"
	"github.com/wolfeidau/userdesk/internal/token/tokentest"
	"github.com/wolfeidau/userdesk/internal/users"
	"github.com/wolfeidau/userdesk/internal/users/userstest"
)

func newGlobals(t *testing.T, server string) (*Globals, *bytes.Buffer) {
	t.Helper()

	out := &bytes.Buffer{}
	return &Globals{
		Version: "test",
		Config: &config.Config{
			Server:  server,
			Timeout: 5 * time.Second,
			Session: config.Session{
				Backend: config.BackendFile,
				Dir:     t.TempDir(),
			},
		},
		Out: out,
	}, out
}

func storedToken(t *testing.T, globals *Globals) (string, bool) {
	t.Helper()

	store, err := session.NewFileStore(globals.Config.Session.Dir, globals.Config.Server)
	require.NoError(t, err)

	tok, err := store.Get(context.Background())
	if err != nil {
		require.ErrorIs(t, err, session.ErrNoToken)
		return "", false
	}
	return tok, true
}

func TestFlags_Resolve(t *testing.T) {
	f := &Flags{
		Server:         "http://localhost:8080/api",
		SessionBackend: config.BackendMemory,
		Timeout:        time.Second,
	}

	cfg, err := f.Resolve()
	require.NoError(t, err)
	assert.Equal(t, config.BackendMemory, cfg.Session.Backend)
	assert.Equal(t, time.Second, cfg.Timeout)

	f.SessionBackend = config.BackendRedis
	_, err = f.Resolve()
	require.Error(t, err)
}

func TestLoginStatusLogout(t *testing.T) {
	ctx := context.Background()
	globals, out := newGlobals(t, "http://localhost:8080/api")

	raw := tokentest.Issue(t, "alice", time.Now().Add(time.Hour), "ADMIN")

	login := &LoginCmd{Token: raw}
	require.NoError(t, login.Run(ctx, globals))
	assert.Equal(t, "Logged in as alice (ADMIN)\n", out.String())

	stored, ok := storedToken(t, globals)
	require.True(t, ok)
	assert.Equal(t, raw, stored)

	out.Reset()
	require.NoError(t, (&StatusCmd{}).Run(ctx, globals))
	assert.Contains(t, out.String(), "Authenticated:  true")
	assert.Contains(t, out.String(), "Identity:       alice")
	assert.Contains(t, out.String(), "Roles:          ADMIN")

	out.Reset()
	require.NoError(t, (&LogoutCmd{}).Run(ctx, globals))
	assert.Equal(t, "Logged out.\n", out.String())

	_, ok = storedToken(t, globals)
	assert.False(t, ok)

	out.Reset()
	require.NoError(t, (&StatusCmd{}).Run(ctx, globals))
	assert.Contains(t, out.String(), "Authenticated:  false")
}

func TestLogin_fromStdin(t *testing.T) {
	globals, out := newGlobals(t, "http://localhost:8080/api")
	globals.In = strings.NewReader(tokentest.Issue(t, "bob", time.Now().Add(time.Hour)) + "\n")

	require.NoError(t, (&LoginCmd{}).Run(context.Background(), globals))
	assert.Equal(t, "Logged in as bob\n", out.String())
}

func TestLogin_withPassword(t *testing.T) {
	ctx := context.Background()
	raw := tokentest.Issue(t, "alice", time.Now().Add(time.Hour), "ADMIN")
	srv := userstest.NewServer(t, raw, users.User{Name: "Alice", Email: "alice@example.com", Password: "pw", Roles: []string{users.RoleAdmin}})
	globals, out := newGlobals(t, srv.URL)

	require.NoError(t, (&LoginCmd{Email: "alice@example.com", Password: "pw"}).Run(ctx, globals))
	assert.Equal(t, "Logged in as alice (ADMIN)\n", out.String())

	stored, ok := storedToken(t, globals)
	require.True(t, ok)
	assert.Equal(t, raw, stored)

	out.Reset()
	globals.In = strings.NewReader("pw\n")
	require.NoError(t, (&LoginCmd{Email: "alice@example.com"}).Run(ctx, globals))
	assert.Equal(t, "Password: Logged in as alice (ADMIN)\n", out.String())

	err := (&LoginCmd{Email: "alice@example.com", Password: "wrong"}).Run(ctx, globals)
	require.ErrorIs(t, err, users.ErrInvalidCredentials)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	raw := tokentest.Issue(t, "bob", time.Now().Add(time.Hour), "USER")
	srv := userstest.NewServer(t, raw)
	globals, out := newGlobals(t, srv.URL)

	require.NoError(t, (&RegisterCmd{Name: "Bob", Email: "bob@example.com", Password: "secret"}).Run(ctx, globals))
	assert.Equal(t, "Registered bob@example.com\nLogged in as bob (USER)\n", out.String())

	stored, ok := storedToken(t, globals)
	require.True(t, ok)
	assert.Equal(t, raw, stored)
	require.Len(t, srv.Users(), 1)
}

func TestLogin_noToken(t *testing.T) {
	globals, _ := newGlobals(t, "http://localhost:8080/api")
	globals.In = strings.NewReader("")

	err := (&LoginCmd{}).Run(context.Background(), globals)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token given")
}

func TestLogin_malformed(t *testing.T) {
	globals, _ := newGlobals(t, "http://localhost:8080/api")

	err := (&LoginCmd{Token: "not-a-jwt"}).Run(context.Background(), globals)
	require.ErrorIs(t, err, token.ErrDecode)

	_, ok := storedToken(t, globals)
	assert.False(t, ok)
}

func TestLogin_expiredWarns(t *testing.T) {
	ctx := context.Background()
	globals, out := newGlobals(t, "http://localhost:8080/api")
	raw := tokentest.Issue(t, "bob", time.Now().Add(-time.Hour))

	require.NoError(t, (&LoginCmd{Token: raw}).Run(ctx, globals))
	assert.Contains(t, out.String(), "Warning: this token has already expired")

	out.Reset()
	require.NoError(t, (&StatusCmd{}).Run(ctx, globals))
	assert.Contains(t, out.String(), "The stored token had expired and was removed.")

	_, ok := storedToken(t, globals)
	assert.False(t, ok)
}

func TestLogin_strictRejectsExpired(t *testing.T) {
	globals, _ := newGlobals(t, "http://localhost:8080/api")
	globals.Config.StrictLogin = true
	raw := tokentest.Issue(t, "bob", time.Now().Add(-time.Hour))

	err := (&LoginCmd{Token: raw}).Run(context.Background(), globals)
	require.ErrorIs(t, err, token.ErrExpired)
}

func TestStatus_json(t *testing.T) {
	ctx := context.Background()
	globals, out := newGlobals(t, "http://localhost:8080/api")

	require.NoError(t, (&LoginCmd{Token: tokentest.Issue(t, "alice", time.Now().Add(time.Hour), "USER")}).Run(ctx, globals))

	out.Reset()
	require.NoError(t, (&StatusCmd{JSON: true}).Run(ctx, globals))
	assert.Contains(t, out.String(), `"authenticated": true`)
	assert.Contains(t, out.String(), `"identity": "alice"`)
}

func TestUsers_requireLogin(t *testing.T) {
	srv := userstest.NewServer(t, "unused")
	globals, _ := newGlobals(t, srv.URL)

	err := (&UsersListCmd{}).Run(context.Background(), globals)
	require.ErrorIs(t, err, guard.ErrLoginRequired)
	assert.Empty(t, srv.Calls())
}

func TestUsers_crud(t *testing.T) {
	ctx := context.Background()
	raw := tokentest.Issue(t, "alice", time.Now().Add(time.Hour), "ADMIN")
	srv := userstest.NewServer(t, raw, users.User{
		Name:   "Alice",
		Email:  "alice@example.com",
		Roles:  []string{users.RoleAdmin},
		Active: true,
	})
	globals, out := newGlobals(t, srv.URL)

	require.NoError(t, (&LoginCmd{Token: raw}).Run(ctx, globals))

	out.Reset()
	require.NoError(t, (&UsersListCmd{}).Run(ctx, globals))
	assert.Contains(t, out.String(), "alice@example.com")
	assert.Contains(t, out.String(), "active")

	out.Reset()
	create := &UsersCreateCmd{Name: "Bob", Email: "bob@example.com", Password: "s3cret", Roles: "USER,GUEST"}
	require.NoError(t, create.Run(ctx, globals))
	assert.Equal(t, "Created user 2 (bob@example.com)\n", out.String())

	name := "Robert"
	active := false
	out.Reset()
	update := &UsersUpdateCmd{ID: 2, Name: &name, Active: &active}
	require.NoError(t, update.Run(ctx, globals))
	assert.Equal(t, "Updated user 2 (bob@example.com)\n", out.String())

	stored := srv.Users()
	require.Len(t, stored, 2)
	assert.Equal(t, "Robert", stored[1].Name)
	assert.False(t, stored[1].Active)
	assert.Equal(t, []string{users.RoleUser, users.RoleGuest}, stored[1].Roles)

	out.Reset()
	globals.In = strings.NewReader("n\n")
	require.NoError(t, (&UsersDeleteCmd{ID: 2}).Run(ctx, globals))
	assert.Contains(t, out.String(), "Aborted.")
	assert.Len(t, srv.Users(), 2)

	out.Reset()
	require.NoError(t, (&UsersDeleteCmd{ID: 2, Yes: true}).Run(ctx, globals))
	assert.Equal(t, "Deleted user 2\n", out.String())
	assert.Len(t, srv.Users(), 1)
}

func TestUsers_createRejectsUnknownRole(t *testing.T) {
	globals, _ := newGlobals(t, "http://localhost:8080/api")

	err := (&UsersCreateCmd{Name: "Bob", Email: "bob@example.com", Password: "x", Roles: "ROOT"}).Run(context.Background(), globals)
	require.ErrorIs(t, err, users.ErrUnknownRole)
}

func TestUsers_rejectedTokenSignsOut(t *testing.T) {
	ctx := context.Background()
	srv := userstest.NewServer(t, "a-different-token")
	globals, _ := newGlobals(t, srv.URL)

	require.NoError(t, (&LoginCmd{Token: tokentest.Issue(t, "alice", time.Now().Add(time.Hour))}).Run(ctx, globals))

	err := (&UsersListCmd{}).Run(ctx, globals)
	require.ErrorIs(t, err, users.ErrUnauthorized)

	_, ok := storedToken(t, globals)
	assert.False(t, ok)
}
