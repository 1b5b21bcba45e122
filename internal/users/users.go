// Package users is a client for the user-management API consumed by the
// console: listing, creating, updating and deleting user records.
package users

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Roles understood by the user-management API.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
	RoleGuest = "GUEST"
)

// KnownRoles lists the assignable roles in display order.
var KnownRoles = []string{RoleAdmin, RoleUser, RoleGuest}

var (
	// ErrInvalidUser is returned when a user record fails local validation.
	ErrInvalidUser = errors.New("invalid user")

	// ErrUnknownRole is returned for a role outside KnownRoles.
	ErrUnknownRole = errors.New("unknown role")
)

// User is the JSON record exchanged with the API.
type User struct {
	ID         int64    `json:"id,omitempty"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Password   string   `json:"password,omitempty"`
	Roles      []string `json:"roles"`
	Active     bool     `json:"active"`
	CreateDate string   `json:"createDate,omitempty"`
}

// Validate checks the fields the API requires. A password is only
// required for new users, an empty one on update keeps the current one.
func (u *User) Validate(creating bool) error {
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidUser)
	}
	if !strings.Contains(u.Email, "@") {
		return fmt.Errorf("%w: email %q is not valid", ErrInvalidUser, u.Email)
	}
	if creating && u.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidUser)
	}
	for _, r := range u.Roles {
		if !slices.Contains(KnownRoles, r) {
			return fmt.Errorf("%w: %q", ErrUnknownRole, r)
		}
	}
	return nil
}

// ParseRoles splits a comma separated role list, upper-casing and
// de-duplicating entries.
func ParseRoles(s string) ([]string, error) {
	roles := []string{}
	for _, part := range strings.Split(s, ",") {
		r := strings.ToUpper(strings.TrimSpace(part))
		if r == "" || slices.Contains(roles, r) {
			continue
		}
		if !slices.Contains(KnownRoles, r) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRole, r)
		}
		roles = append(roles, r)
	}
	return roles, nil
}
