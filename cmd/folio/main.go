package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/bobmcallan/folio/internal/cli"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	for _, c := range cli.Commands {
		commander.Register(c.Command, c.Group)
	}

	flag.StringVar(&cli.ConfigPath, "config", "", "path to folio.toml (default: $FOLIO_CONFIG, then folio.toml next to the binary)")
	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
