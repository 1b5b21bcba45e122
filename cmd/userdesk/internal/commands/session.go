package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfeidau/userdesk/internal/session"
	"github.com/wolfeidau/userdesk/internal/token"
	"github.com/wolfeidau/userdesk/internal/users"
)

type LoginCmd struct {
	Token    string `help:"Access token issued by the authentication service, read from stdin when empty" env:"USERDESK_TOKEN" xor:"method"`
	Email    string `help:"Sign in with email and password instead of a token" env:"USERDESK_EMAIL" xor:"method"`
	Password string `help:"Password for --email, read from stdin when empty" env:"USERDESK_PASSWORD"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	raw := strings.TrimSpace(l.Token)

	switch {
	case l.Email != "":
		password := l.Password
		if password == "" {
			fmt.Fprint(globals.out(), "Password: ")
			password = readLine(globals)
		}
		if password == "" {
			return errors.New("no password given, pass --password or pipe it on stdin")
		}

		auth, err := newAuthClient(globals)
		if err != nil {
			return err
		}
		resp, err := auth.Login(ctx, l.Email, password)
		if err != nil {
			return err
		}
		raw = resp.Token
	case raw == "":
		raw = readLine(globals)
	}

	if raw == "" {
		return errors.New("no token given, pass --token, --email or pipe a token on stdin")
	}

	return login(ctx, globals, raw)
}

type RegisterCmd struct {
	Name     string `help:"Full name" required:""`
	Email    string `help:"Email address" required:""`
	Password string `help:"Password, read from stdin when empty" env:"USERDESK_PASSWORD"`
}

func (r *RegisterCmd) Run(ctx context.Context, globals *Globals) error {
	password := r.Password
	if password == "" {
		fmt.Fprint(globals.out(), "Password: ")
		password = readLine(globals)
	}

	auth, err := newAuthClient(globals)
	if err != nil {
		return err
	}

	resp, err := auth.Register(ctx, users.User{Name: r.Name, Email: r.Email, Password: password})
	if err != nil {
		return err
	}

	fmt.Fprintf(globals.out(), "Registered %s\n", resp.Email)

	return login(ctx, globals, resp.Token)
}

// login hands raw to the session manager and reports the result.
func login(ctx context.Context, globals *Globals, raw string) error {
	m, closeStore, err := openSession(ctx, globals)
	if err != nil {
		return err
	}
	defer closeStore()

	res, err := m.Login(ctx, raw)
	if err != nil {
		return err
	}

	if res.Err != nil {
		return fmt.Errorf("token rejected: %w", res.Err)
	}

	fmt.Fprintf(globals.out(), "Logged in as %s\n", describe(res.Session))
	if token.CheckExpiry(&token.Claims{ExpiresAt: res.Session.ExpiresAt}, time.Now()) != nil {
		fmt.Fprintln(globals.out(), "Warning: this token has already expired, the next command will sign you out.")
	}

	return nil
}

func readLine(globals *Globals) string {
	line, _ := bufio.NewReader(globals.in()).ReadString('\n')
	return strings.TrimSpace(line)
}

type LogoutCmd struct{}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	m, closeStore, err := openSession(ctx, globals)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := m.Logout(ctx); err != nil {
		return err
	}

	fmt.Fprintln(globals.out(), "Logged out.")
	return nil
}

type StatusCmd struct {
	JSON bool `help:"Print the session as JSON"`
}

func (s *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	m, closeStore, err := openSession(ctx, globals)
	if err != nil {
		return err
	}
	defer closeStore()

	res := m.Init(ctx)
	current := m.Current()

	if s.JSON {
		enc := json.NewEncoder(globals.out())
		enc.SetIndent("", "  ")
		return enc.Encode(current)
	}

	out := globals.out()
	fmt.Fprintf(out, "Server:         %s\n", globals.Config.Server)

	if !current.Authenticated {
		fmt.Fprintln(out, "Authenticated:  false")
		switch res.Outcome {
		case session.OutcomeExpired:
			fmt.Fprintln(out, "The stored token had expired and was removed.")
		case session.OutcomeMalformed:
			fmt.Fprintln(out, "The stored token could not be read and was removed.")
		}
		return nil
	}

	fmt.Fprintln(out, "Authenticated:  true")
	fmt.Fprintf(out, "Identity:       %s\n", current.Identity)
	fmt.Fprintf(out, "Roles:          %s\n", strings.Join(current.Roles, ", "))
	fmt.Fprintf(out, "Expires:        %s\n", current.ExpiresAt.Local().Format("2006-01-02 15:04:05"))

	return nil
}

func describe(s session.Session) string {
	if len(s.Roles) == 0 {
		return s.Identity
	}
	return fmt.Sprintf("%s (%s)", s.Identity, strings.Join(s.Roles, ", "))
}
