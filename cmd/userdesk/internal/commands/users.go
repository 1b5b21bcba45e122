package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/wolfeidau/userdesk/internal/session"
	"github.com/wolfeidau/userdesk/internal/users"
)

// UsersCmd manages users through the user-management API.
type UsersCmd struct {
	List   UsersListCmd   `cmd:"" help:"List users"`
	Create UsersCreateCmd `cmd:"" help:"Add a user"`
	Update UsersUpdateCmd `cmd:"" help:"Edit a user"`
	Delete UsersDeleteCmd `cmd:"" help:"Delete a user"`
}

// withUsers runs fn with an authenticated users client.
func withUsers(ctx context.Context, globals *Globals, fn func(*users.Client) error) error {
	m, closeStore, err := openSession(ctx, globals)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := requireSession(m); err != nil {
		return err
	}

	c, err := newUsersClient(globals, m)
	if err != nil {
		return err
	}

	err = fn(c)
	if errors.Is(err, users.ErrUnauthorized) {
		return rejected(ctx, m, err)
	}
	return err
}

// rejected signs out when the API no longer accepts the stored token.
func rejected(ctx context.Context, m *session.Manager, cause error) error {
	if err := m.Logout(ctx); err != nil {
		return errors.Join(cause, err)
	}
	return fmt.Errorf("%w\n\nThe server rejected the stored token and you have been signed out.\n"+
		"Sign in again:\n  userdesk login --token <TOKEN>", cause)
}

type UsersListCmd struct{}

func (u *UsersListCmd) Run(ctx context.Context, globals *Globals) error {
	return withUsers(ctx, globals, func(c *users.Client) error {
		list, err := c.List(ctx)
		if err != nil {
			return err
		}

		if len(list) == 0 {
			fmt.Fprintln(globals.out(), "No users found.")
			return nil
		}

		w := tabwriter.NewWriter(globals.out(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLES\tACTIVE")
		for _, user := range list {
			status := "inactive"
			if user.Active {
				status = "active"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", user.ID, user.Name, user.Email, strings.Join(user.Roles, ","), status)
		}
		return w.Flush()
	})
}

type UsersCreateCmd struct {
	Name     string `help:"Full name" required:""`
	Email    string `help:"Email address" required:""`
	Password string `help:"Initial password" required:"" env:"USERDESK_USER_PASSWORD"`
	Roles    string `help:"Comma separated roles (ADMIN, USER, GUEST)" default:"USER"`
	Inactive bool   `help:"Create the user as inactive"`
}

func (u *UsersCreateCmd) Run(ctx context.Context, globals *Globals) error {
	roles, err := users.ParseRoles(u.Roles)
	if err != nil {
		return err
	}

	return withUsers(ctx, globals, func(c *users.Client) error {
		created, err := c.Create(ctx, users.User{
			Name:     u.Name,
			Email:    u.Email,
			Password: u.Password,
			Roles:    roles,
			Active:   !u.Inactive,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(globals.out(), "Created user %d (%s)\n", created.ID, created.Email)
		return nil
	})
}

type UsersUpdateCmd struct {
	ID       int64   `arg:"" help:"User ID"`
	Name     *string `help:"Full name"`
	Email    *string `help:"Email address"`
	Password string  `help:"New password, empty keeps the current one" env:"USERDESK_USER_PASSWORD"`
	Roles    *string `help:"Comma separated roles (ADMIN, USER, GUEST)"`
	Active   *bool   `help:"Whether the user is active" negatable:""`
}

func (u *UsersUpdateCmd) Run(ctx context.Context, globals *Globals) error {
	return withUsers(ctx, globals, func(c *users.Client) error {
		current, err := c.Get(ctx, u.ID)
		if err != nil {
			return err
		}

		next := *current
		next.Password = u.Password
		if u.Name != nil {
			next.Name = *u.Name
		}
		if u.Email != nil {
			next.Email = *u.Email
		}
		if u.Roles != nil {
			roles, err := users.ParseRoles(*u.Roles)
			if err != nil {
				return err
			}
			next.Roles = roles
		}
		if u.Active != nil {
			next.Active = *u.Active
		}

		updated, err := c.Update(ctx, u.ID, next)
		if err != nil {
			return err
		}

		fmt.Fprintf(globals.out(), "Updated user %d (%s)\n", updated.ID, updated.Email)
		return nil
	})
}

type UsersDeleteCmd struct {
	ID  int64 `arg:"" help:"User ID"`
	Yes bool  `help:"Do not ask for confirmation" short:"y"`
}

func (u *UsersDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	return withUsers(ctx, globals, func(c *users.Client) error {
		if !u.Yes {
			fmt.Fprintf(globals.out(), "Delete user %d? Are you sure? [y/N] ", u.ID)
			answer, _ := bufio.NewReader(globals.in()).ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
				fmt.Fprintln(globals.out(), "Aborted.")
				return nil
			}
		}

		if err := c.Delete(ctx, u.ID); err != nil {
			return err
		}

		fmt.Fprintf(globals.out(), "Deleted user %d\n", u.ID)
		return nil
	})
}
