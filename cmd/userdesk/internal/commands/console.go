package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/userdesk/internal/console"
	httpmiddleware "github.com/wolfeidau/userdesk/internal/http"
	"github.com/wolfeidau/userdesk/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type ConsoleCmd struct {
	Listen      string   `help:"HTTP listen address" default:"127.0.0.1:8081" env:"USERDESK_LISTEN"`
	LoginPath   string   `help:"Path of the login page" default:"/login" env:"USERDESK_LOGIN_PATH"`
	CORSOrigins []string `help:"Origins allowed to read /api/session" env:"USERDESK_CORS_ORIGINS"`
	Telemetry   bool     `help:"Export metrics and traces over OTLP, configured with the OTEL_EXPORTER_OTLP_* variables" env:"USERDESK_TELEMETRY"`
}

func (c *ConsoleCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if c.Telemetry {
		log.Info().Msg("Telemetry is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "userdesk-console", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	// config file values win over flags
	file := globals.Config.Console
	if file.Listen != "" {
		c.Listen = file.Listen
	}
	if file.LoginPath != "" {
		c.LoginPath = file.LoginPath
	}
	if len(file.CORSOrigins) > 0 {
		c.CORSOrigins = file.CORSOrigins
	}

	m, closeStore, err := openSession(ctx, globals)
	if err != nil {
		return err
	}
	defer closeStore()

	usersClient, err := newUsersClient(globals, m)
	if err != nil {
		return err
	}

	authClient, err := newAuthClient(globals)
	if err != nil {
		return err
	}

	srv, err := console.New(console.Config{
		Sessions:    m,
		Users:       usersClient,
		Auth:        authClient,
		LoginPath:   c.LoginPath,
		CORSOrigins: c.CORSOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to create console: %w", err)
	}

	handler := httpmiddleware.RequestLogger(log.Logger)(srv.Handler())
	if c.Telemetry {
		handler = otelhttp.NewHandler(handler, "userdesk-console")
	}
	httpServer := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", c.Listen).
			Str("server", globals.Config.Server).
			Bool("authenticated", m.Current().Authenticated).
			Msg("Starting console")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down console")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}
