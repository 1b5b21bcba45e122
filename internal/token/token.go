// Package token decodes bearer tokens issued by the external authentication
// service into the claims userdesk needs to derive a session.
//
// Signatures are not verified here: the user-management API verifies every
// request, the console only needs the subject, expiry and roles.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors
var (
	// ErrDecode is returned when a token is malformed or missing a required claim.
	ErrDecode = errors.New("token decode failed")

	// ErrExpired is returned when a well-formed token is past its expiry.
	ErrExpired = errors.New("token expired")
)

// Claims holds the decoded fields of a token.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	Roles     []string
}

// wireClaims mirrors the JSON payload of the token.
type wireClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

var parser = jwt.NewParser()

// Decode parses the raw token and returns its claims. It does not judge
// expiry, use CheckExpiry against the current time for that.
func Decode(raw string) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrDecode)
	}

	var wc wireClaims
	if _, _, err := parser.ParseUnverified(raw, &wc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if wc.Subject == "" {
		return nil, fmt.Errorf("%w: missing %q claim", ErrDecode, "sub")
	}
	if wc.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing %q claim", ErrDecode, "exp")
	}

	return &Claims{
		Subject:   wc.Subject,
		ExpiresAt: wc.ExpiresAt.Time,
		Roles:     uniqueRoles(wc.Roles),
	}, nil
}

// CheckExpiry returns ErrExpired unless the token expires strictly after now.
// Comparison is done at millisecond precision.
func CheckExpiry(claims *Claims, now time.Time) error {
	if claims.ExpiresAt.UnixMilli() > now.UnixMilli() {
		return nil
	}
	return fmt.Errorf("%w: expired at %s", ErrExpired, claims.ExpiresAt.UTC().Format(time.RFC3339))
}

func uniqueRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
