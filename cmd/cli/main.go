package main

import (
	"context"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgd/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Create   commands.CreateCmd   `cmd:"" help:"Create an organization and its admin"`
		Login    commands.LoginCmd    `cmd:"" help:"Log in as an organization admin"`
		Get      commands.GetCmd      `cmd:"" help:"Show an organization"`
		Update   commands.UpdateCmd   `cmd:"" help:"Rename your organization or change your credentials"`
		Delete   commands.DeleteCmd   `cmd:"" help:"Delete your organization and all its data"`
		Health   commands.HealthCmd   `cmd:"" help:"Check server health"`
		Sessions commands.SessionsCmd `cmd:"" help:"Manage stored login sessions"`

		Server         string        `help:"Server URL" default:"http://localhost:8000" env:"ORGD_SERVER"`
		Timeout        time.Duration `help:"Request timeout" default:"30s" env:"ORGD_TIMEOUT"`
		CredentialsDir string        `help:"Directory holding stored sessions (default ~/.orgd)" env:"ORGD_CREDENTIALS_DIR"`
		Debug          bool          `help:"Enable debug mode."`
		Version        kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("orgd-cli"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	level := zerolog.WarnLevel
	if cli.Debug {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	err := cmd.Run(&commands.Globals{
		Debug:          cli.Debug,
		Version:        version,
		ServerURL:      cli.Server,
		Timeout:        cli.Timeout,
		CredentialsDir: cli.CredentialsDir,
	})
	cmd.FatalIfErrorf(err)
}
