package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/userdesk/cmd/userdesk/internal/commands"
	"github.com/wolfeidau/userdesk/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Flags commands.Flags `embed:""`

		Login    commands.LoginCmd    `cmd:"" help:"Sign in with an access token or email and password"`
		Register commands.RegisterCmd `cmd:"" help:"Create an account and sign in"`
		Logout   commands.LogoutCmd   `cmd:"" help:"Sign out and forget the stored token"`
		Status   commands.StatusCmd   `cmd:"" help:"Show the current session"`
		Users    commands.UsersCmd    `cmd:"" help:"Manage users"`
		Console  commands.ConsoleCmd  `cmd:"" help:"Serve the web console"`
		Debug    bool                 `help:"Enable debug mode."`
		Version  kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("userdesk"),
		kong.Description("Operator console for the user management API."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	logger.Setup(cli.Debug)

	cfg, err := cli.Flags.Resolve()
	cmd.FatalIfErrorf(err)

	err = cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version, Config: cfg})
	cmd.FatalIfErrorf(err)
}
