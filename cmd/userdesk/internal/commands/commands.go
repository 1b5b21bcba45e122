package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/userdesk/internal/client"
	"github.com/wolfeidau/userdesk/internal/config"
	"github.com/wolfeidau/userdesk/internal/guard"
	"github.com/wolfeidau/userdesk/internal/session"
	"github.com/wolfeidau/userdesk/internal/users"
)

type Globals struct {
	Debug   bool
	Version string
	Config  *config.Config

	// Out and In default to stdout and stdin.
	Out io.Writer
	In  io.Reader
}

func (g *Globals) out() io.Writer {
	if g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func (g *Globals) in() io.Reader {
	if g.In == nil {
		return os.Stdin
	}
	return g.In
}

// Flags are shared by every command.
type Flags struct {
	Server      string        `help:"User management API URL" default:"http://localhost:8080/api" env:"USERDESK_SERVER"`
	ConfigFile  string        `help:"YAML config file, its values take precedence over flags" name:"config" type:"path" env:"USERDESK_CONFIG"`
	StrictLogin bool          `help:"Reject tokens that are already expired at login" env:"USERDESK_STRICT_LOGIN"`
	Timeout     time.Duration `help:"User API request timeout" default:"30s" env:"USERDESK_TIMEOUT"`

	SessionBackend string        `help:"Where the session token is kept (file, redis or memory)" default:"file" enum:"file,redis,memory" env:"USERDESK_SESSION_BACKEND"`
	SessionDir     string        `help:"Directory for the file session backend (default ~/.userdesk)" type:"path" env:"USERDESK_SESSION_DIR"`
	SessionTTL     time.Duration `help:"Expiry for the redis session key, 0 keeps it until logout" default:"0s" env:"USERDESK_SESSION_TTL"`
	RedisAddr      string        `help:"Redis address for the redis session backend" env:"USERDESK_REDIS_ADDR"`
	RedisPassword  string        `help:"Redis password" env:"USERDESK_REDIS_PASSWORD"`
	RedisDB        int           `help:"Redis database" default:"0" env:"USERDESK_REDIS_DB"`
	RedisPrefix    string        `help:"Redis key prefix" default:"userdesk" env:"USERDESK_REDIS_PREFIX"`

	Cache    bool   `help:"Cache cacheable API reads in memory" env:"USERDESK_CACHE"`
	CacheDir string `help:"Cache cacheable API reads on disk" type:"path" env:"USERDESK_CACHE_DIR"`
}

// Resolve merges the config file over the flags and validates the result.
func (f *Flags) Resolve() (*config.Config, error) {
	cfg := &config.Config{
		Server:      f.Server,
		StrictLogin: f.StrictLogin,
		Timeout:     f.Timeout,
		Session: config.Session{
			Backend:       f.SessionBackend,
			Dir:           f.SessionDir,
			RedisAddr:     f.RedisAddr,
			RedisPassword: f.RedisPassword,
			RedisDB:       f.RedisDB,
			RedisPrefix:   f.RedisPrefix,
			TTL:           f.SessionTTL,
		},
		Cache: config.Cache{
			Enabled: f.Cache,
			Dir:     f.CacheDir,
		},
	}

	if f.ConfigFile != "" {
		file, err := config.Load(f.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg.Merge(file)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// openStore builds the session store selected by cfg. The returned func
// releases any connection it holds.
func openStore(cfg *config.Config) (session.Store, func(), error) {
	noop := func() {}

	switch cfg.Session.Backend {
	case config.BackendMemory:
		return session.NewMemoryStore(), noop, nil
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		store, err := session.NewRedisStore(rdb, cfg.Session.RedisPrefix, cfg.Server, cfg.Session.TTL)
		if err != nil {
			rdb.Close()
			return nil, noop, err
		}
		return store, func() { rdb.Close() }, nil
	default:
		store, err := session.NewFileStore(cfg.Session.Dir, cfg.Server)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to initialize session store: %w", err)
		}
		return store, noop, nil
	}
}

// openSession builds the store and Manager and runs Init.
func openSession(ctx context.Context, globals *Globals) (*session.Manager, func(), error) {
	store, closeStore, err := openStore(globals.Config)
	if err != nil {
		return nil, nil, err
	}

	m := session.NewManager(store, session.WithStrictLogin(globals.Config.StrictLogin))

	res := m.Init(ctx)
	log.Debug().
		Str("outcome", res.Outcome.String()).
		Err(res.Err).
		Msg("session initialized")

	return m, closeStore, nil
}

// requireSession is the CLI form of the route guard.
func requireSession(m *session.Manager) error {
	if err := guard.Check(m.Current()); err != nil {
		return fmt.Errorf("%w\n\nSign in first:\n  userdesk login --token <TOKEN>", err)
	}
	return nil
}

func newUsersClient(globals *Globals, tokens users.TokenSource) (*users.Client, error) {
	cfg := globals.Config

	httpClient := client.NewHTTPClient(client.Config{
		ServerURL: cfg.Server,
		Timeout:   requestTimeout(cfg),
		Cache:     cfg.Cache.Enabled,
		CacheDir:  cfg.Cache.Dir,
		Debug:     globals.Debug,
	})
	return users.NewClient(cfg.Server, httpClient, tokens)
}

// newAuthClient never caches, login and register are POSTs.
func newAuthClient(globals *Globals) (*users.AuthClient, error) {
	cfg := globals.Config

	httpClient := client.NewHTTPClient(client.Config{
		ServerURL: cfg.Server,
		Timeout:   requestTimeout(cfg),
		Debug:     globals.Debug,
	})
	return users.NewAuthClient(cfg.Server, httpClient)
}

func requestTimeout(cfg *config.Config) time.Duration {
	if cfg.Timeout == 0 {
		return client.DefaultConfig().Timeout
	}
	return cfg.Timeout
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
