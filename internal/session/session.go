package session

import (
	"slices"
	"time"

	"github.com/wolfeidau/userdesk/internal/token"
)

// Session is the authentication state derived from the stored token.
type Session struct {
	Authenticated bool      `json:"authenticated"`
	Identity      string    `json:"identity,omitempty"`
	Roles         []string  `json:"roles"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
}

// HasRole reports whether the session carries role.
func (s Session) HasRole(role string) bool {
	return s.Authenticated && slices.Contains(s.Roles, role)
}

func anonymous() Session {
	return Session{Roles: []string{}}
}

func fromClaims(claims *token.Claims) Session {
	return Session{
		Authenticated: true,
		Identity:      claims.Subject,
		Roles:         slices.Clone(claims.Roles),
		ExpiresAt:     claims.ExpiresAt,
	}
}

func (s Session) clone() Session {
	s.Roles = slices.Clone(s.Roles)
	if s.Roles == nil {
		s.Roles = []string{}
	}
	return s
}

// Outcome records how a transition came about.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	// OutcomeNoToken means the store held no token.
	OutcomeNoToken
	// OutcomeRestored means a stored, unexpired token was accepted at init.
	OutcomeRestored
	// OutcomeMalformed means the token could not be decoded and was cleared.
	OutcomeMalformed
	// OutcomeExpired means the token was past its expiry and was cleared.
	OutcomeExpired
	// OutcomeLoggedIn means a token supplied at login was accepted.
	OutcomeLoggedIn
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoToken:
		return "no_token"
	case OutcomeRestored:
		return "restored"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeExpired:
		return "expired"
	case OutcomeLoggedIn:
		return "logged_in"
	default:
		return "unknown"
	}
}

// Result is returned by Init and Login. Err carries the reason a token was
// rejected and wraps token.ErrDecode or token.ErrExpired so callers can
// tell them apart.
type Result struct {
	Outcome Outcome
	Session Session
	Err     error
}
