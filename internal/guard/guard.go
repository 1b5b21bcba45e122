// Package guard decides whether a navigation into a protected view may
// proceed for the current session.
package guard

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/userdesk/internal/session"
)

// DefaultLoginPath is the public login entry point.
const DefaultLoginPath = "/login"

// ErrLoginRequired is returned by Check for an unauthenticated session.
var ErrLoginRequired = errors.New("login required")

type contextKey string

const sessionContextKey contextKey = "session"

// SessionSource provides the session to evaluate.
type SessionSource interface {
	Current() session.Session
}

// Decision is the result of evaluating a navigation.
type Decision struct {
	Allow    bool
	Location string
}

// Evaluate allows destination iff s is authenticated, otherwise it redirects
// to loginPath, carrying destination in the next parameter.
func Evaluate(s session.Session, destination, loginPath string) Decision {
	if s.Authenticated {
		return Decision{Allow: true, Location: destination}
	}

	if loginPath == "" {
		loginPath = DefaultLoginPath
	}

	next := SafeNext(destination)
	if next == "" || next == loginPath {
		return Decision{Location: loginPath}
	}

	return Decision{Location: loginPath + "?next=" + url.QueryEscape(next)}
}

// Check is the non-HTTP form of Evaluate used by the CLI.
func Check(s session.Session) error {
	if !s.Authenticated {
		return ErrLoginRequired
	}
	return nil
}

// SafeNext returns next if it is a local absolute path, otherwise "".
func SafeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}

// Guard protects HTTP handlers with the session from a SessionSource.
type Guard struct {
	sessions  SessionSource
	loginPath string
}

// New creates a Guard redirecting to loginPath, or DefaultLoginPath if empty.
func New(sessions SessionSource, loginPath string) *Guard {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	return &Guard{sessions: sessions, loginPath: loginPath}
}

// LoginPath returns the login entry point.
func (g *Guard) LoginPath() string {
	return g.loginPath
}

// Require is a middleware that only calls next for an authenticated session.
// Any other request is redirected to the login entry point. The session is
// evaluated on every request and added to the request context.
func (g *Guard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := g.sessions.Current()

		decision := Evaluate(s, r.URL.RequestURI(), g.loginPath)
		if !decision.Allow {
			log.Debug().Str("path", r.URL.Path).Msg("No session, redirecting to login")
			http.Redirect(w, r, decision.Location, http.StatusFound)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole wraps Require and answers 403 when the session lacks role.
func (g *Guard) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, _ := SessionFromContext(r.Context())
			if !s.HasRole(role) {
				log.Debug().Str("identity", s.Identity).Str("role", role).Msg("Missing role")
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// SessionFromContext returns the session added by Require.
func SessionFromContext(ctx context.Context) (session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(session.Session)
	return s, ok
}
