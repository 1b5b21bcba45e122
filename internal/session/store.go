package session

import (
	"context"
	"errors"
	"strings"
)

// ErrNoToken is returned by Store.Get when the slot is empty.
var ErrNoToken = errors.New("no token stored")

// Store is a single persistent slot holding the raw token for one origin.
type Store interface {
	// Get returns the stored token or ErrNoToken.
	Get(ctx context.Context) (string, error)
	// Set replaces the stored token.
	Set(ctx context.Context, token string) error
	// Clear empties the slot. Clearing an empty slot is not an error.
	Clear(ctx context.Context) error
}

// NormalizeOrigin reduces a server URL to the form used as a slot key.
func NormalizeOrigin(origin string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
}
