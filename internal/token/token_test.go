package token

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/userdesk/internal/token/tokentest"
)

func TestDecode(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	t.Run("valid token", func(t *testing.T) {
		raw := tokentest.Issue(t, "alice", exp, "ADMIN", "USER")

		claims, err := Decode(raw)
		require.NoError(t, err)
		require.Equal(t, "alice", claims.Subject)
		require.True(t, exp.Equal(claims.ExpiresAt))
		require.Equal(t, []string{"ADMIN", "USER"}, claims.Roles)
	})

	t.Run("roles default to empty", func(t *testing.T) {
		raw := tokentest.Issue(t, "alice", exp)

		claims, err := Decode(raw)
		require.NoError(t, err)
		require.NotNil(t, claims.Roles)
		require.Empty(t, claims.Roles)
	})

	t.Run("duplicate roles collapse", func(t *testing.T) {
		raw := tokentest.Issue(t, "alice", exp, "USER", "ADMIN", "USER", "")

		claims, err := Decode(raw)
		require.NoError(t, err)
		require.Equal(t, []string{"USER", "ADMIN"}, claims.Roles)
	})

	t.Run("expired token still decodes", func(t *testing.T) {
		raw := tokentest.Issue(t, "bob", time.Now().Add(-10*time.Second))

		claims, err := Decode(raw)
		require.NoError(t, err)
		require.Equal(t, "bob", claims.Subject)
	})

	t.Run("signature is not verified", func(t *testing.T) {
		raw := tokentest.Issue(t, "alice", exp)
		tampered := raw[:len(raw)-4] + "AAAA"

		claims, err := Decode(tampered)
		require.NoError(t, err)
		require.Equal(t, "alice", claims.Subject)
	})
}

func TestDecode_errors(t *testing.T) {
	payload := func(s string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(s))
	}
	header := payload(`{"alg":"HS256","typ":"JWT"}`)

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "garbage", raw: "not-a-token"},
		{name: "two segments", raw: header + "." + payload(`{"sub":"alice"}`)},
		{name: "payload not base64", raw: header + ".!!!.sig"},
		{name: "payload not json", raw: header + "." + payload("hello") + ".sig"},
		{name: "exp not numeric", raw: header + "." + payload(`{"sub":"alice","exp":"tomorrow"}`) + ".sig"},
		{name: "roles not array", raw: header + "." + payload(`{"sub":"alice","exp":4102444800,"roles":"ADMIN"}`) + ".sig"},
		{name: "missing sub", raw: tokentest.IssueMap(t, jwt.MapClaims{"exp": float64(4102444800)})},
		{name: "missing exp", raw: tokentest.IssueMap(t, jwt.MapClaims{"sub": "alice"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := Decode(tt.raw)
			require.ErrorIs(t, err, ErrDecode)
			require.NotErrorIs(t, err, ErrExpired)
			require.Nil(t, claims)
		})
	}
}

func TestCheckExpiry(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		exp     time.Time
		expired bool
	}{
		{name: "future", exp: now.Add(time.Hour)},
		{name: "one millisecond ahead", exp: now.Add(time.Millisecond)},
		{name: "exactly now", exp: now, expired: true},
		{name: "past", exp: now.Add(-10 * time.Second), expired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckExpiry(&Claims{Subject: "alice", ExpiresAt: tt.exp}, now)
			if tt.expired {
				require.ErrorIs(t, err, ErrExpired)
				require.NotErrorIs(t, err, ErrDecode)
				return
			}
			require.NoError(t, err)
		})
	}
}
