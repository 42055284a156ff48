package main

import (
	"github.com/alecthomas/kong"
	"github.com/wolfeidau/orgd/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Dev     bool `help:"Enable development mode (console logging at debug level)." env:"ORGD_DEV"`
		Version kong.VersionFlag
		Server  commands.ServerCmd `cmd:"" help:"Start the API server"`
		Seed    commands.SeedCmd   `cmd:"" help:"Insert documents from a YAML file into an organization's collection"`
	}
)

func main() {
	cmd := kong.Parse(&cli,
		kong.Name("orgd"),
		kong.Vars{
			"version": version,
		})
	err := cmd.Run(&commands.Globals{Dev: cli.Dev, Version: version})
	cmd.FatalIfErrorf(err)
}
