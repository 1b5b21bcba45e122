package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/userdesk/internal/telemetry"
	"github.com/wolfeidau/userdesk/internal/token"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrNotAuthenticated is returned by Token when there is no session.
var ErrNotAuthenticated = errors.New("not authenticated")

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithStrictLogin makes Login reject tokens that are already expired, the
// same way Init does. It is off by default.
func WithStrictLogin(strict bool) Option {
	return func(m *Manager) {
		m.strictLogin = strict
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics sets the instruments session transitions are counted on.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// Manager holds the session for one origin.
type Manager struct {
	store       Store
	now         func() time.Time
	strictLogin bool
	logger      zerolog.Logger
	metrics     *telemetry.Metrics

	initOnce   sync.Once
	initResult Result

	// mu guards session and raw, and serialises store writes with
	// transitions.
	mu      sync.RWMutex
	session Session
	raw     string
}

// NewManager creates a Manager in the unauthenticated state. Call Init
// before serving any protected view.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		now:     time.Now,
		logger:  log.Logger,
		metrics: telemetry.GetMetrics(),
		session: anonymous(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Init restores the session from the store. It runs once; later calls
// return the first result.
func (m *Manager) Init(ctx context.Context) Result {
	m.initOnce.Do(func() {
		m.initResult = m.restore(ctx)
	})
	return m.initResult
}

func (m *Manager) restore(ctx context.Context) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := m.store.Get(ctx)
	if err != nil {
		m.session = anonymous()
		if errors.Is(err, ErrNoToken) {
			m.logger.Debug().Msg("no stored session")
			return m.result(OutcomeNoToken, nil)
		}
		m.logger.Warn().Err(err).Msg("failed to read stored session")
		m.metrics.StoreErrorsTotal.Add(ctx, 1, opAttr("get"))
		return m.result(OutcomeNoToken, err)
	}

	claims, err := token.Decode(raw)
	if err != nil {
		m.metrics.MalformedTotal.Add(ctx, 1, sourceAttr("init"))
		m.discard(ctx, err)
		return m.result(OutcomeMalformed, err)
	}

	if err := token.CheckExpiry(claims, m.now()); err != nil {
		m.metrics.ExpiredTotal.Add(ctx, 1, sourceAttr("init"))
		m.discard(ctx, err)
		return m.result(OutcomeExpired, err)
	}

	m.session = fromClaims(claims)
	m.raw = raw

	m.logger.Info().
		Str("identity", claims.Subject).
		Strs("roles", claims.Roles).
		Time("expiresAt", claims.ExpiresAt).
		Msg("session restored")
	m.metrics.RestoredTotal.Add(ctx, 1)

	return m.result(OutcomeRestored, nil)
}

// Login stores raw and authenticates with its claims. Expiry is only
// checked when the Manager was built WithStrictLogin. The error return is
// reserved for store failures, rejected tokens are reported in Result.Err.
func (m *Manager) Login(ctx context.Context, raw string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Set(ctx, raw); err != nil {
		m.metrics.StoreErrorsTotal.Add(ctx, 1, opAttr("set"))
		return Result{Session: m.session.clone()}, fmt.Errorf("failed to store token: %w", err)
	}

	claims, err := token.Decode(raw)
	if err != nil {
		m.metrics.MalformedTotal.Add(ctx, 1, sourceAttr("login"))
		m.discard(ctx, err)
		return m.result(OutcomeMalformed, err), nil
	}

	if err := token.CheckExpiry(claims, m.now()); err != nil {
		if m.strictLogin {
			m.metrics.ExpiredTotal.Add(ctx, 1, sourceAttr("login"))
			m.discard(ctx, err)
			return m.result(OutcomeExpired, err), nil
		}
		m.logger.Warn().
			Str("identity", claims.Subject).
			Time("expiresAt", claims.ExpiresAt).
			Msg("accepted expired token at login")
	}

	m.session = fromClaims(claims)
	m.raw = raw

	m.logger.Info().
		Str("identity", claims.Subject).
		Strs("roles", claims.Roles).
		Msg("logged in")
	m.metrics.LoginsTotal.Add(ctx, 1)

	return m.result(OutcomeLoggedIn, nil), nil
}

// Logout clears the store and drops the session. The session is dropped
// even when clearing the store fails.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity := m.session.Identity
	m.session = anonymous()
	m.raw = ""
	m.metrics.LogoutsTotal.Add(ctx, 1)

	if err := m.store.Clear(ctx); err != nil {
		m.metrics.StoreErrorsTotal.Add(ctx, 1, opAttr("clear"))
		return fmt.Errorf("failed to clear session: %w", err)
	}

	m.logger.Info().Str("identity", identity).Msg("logged out")

	return nil
}

// Current returns a copy of the session.
func (m *Manager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.session.clone()
}

// Token returns the raw token the current session was derived from. It is
// not re-read from the store, so another process signing in elsewhere does
// not change the identity used for API calls.
func (m *Manager) Token(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.session.Authenticated {
		return "", ErrNotAuthenticated
	}

	return m.raw, nil
}

// discard drops the session and clears an invalid token from the store.
// Callers hold mu.
func (m *Manager) discard(ctx context.Context, cause error) {
	m.session = anonymous()
	m.raw = ""

	if err := m.store.Clear(ctx); err != nil {
		m.metrics.StoreErrorsTotal.Add(ctx, 1, opAttr("clear"))
		m.logger.Warn().Err(err).Msg("failed to clear rejected token")
	}

	m.logger.Info().Err(cause).Msg("rejected stored token")
}

// result builds a Result from the current session. Callers hold mu.
func (m *Manager) result(outcome Outcome, err error) Result {
	return Result{
		Outcome: outcome,
		Session: m.session.clone(),
		Err:     err,
	}
}

func sourceAttr(source string) metric.AddOption {
	return metric.WithAttributes(attribute.String("source", source))
}

func opAttr(op string) metric.AddOption {
	return metric.WithAttributes(attribute.String("op", op))
}
