// Package tokentest issues tokens shaped like the external authentication
// service's, for use in tests.
package tokentest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// SigningKey is the HMAC key used for test tokens. Nothing in userdesk
// verifies it.
var SigningKey = []byte("userdesk-test-signing-key-0123456789")

type claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// Issue returns a signed token for subject expiring at exp.
func Issue(t *testing.T, subject string, exp time.Time, roles ...string) string {
	t.Helper()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "user-management",
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Roles: roles,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(SigningKey)
	require.NoError(t, err)
	return signed
}

// IssueMap signs arbitrary claims, for tokens missing required fields.
func IssueMap(t *testing.T, mc jwt.MapClaims) string {
	t.Helper()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(SigningKey)
	require.NoError(t, err)
	return signed
}
