package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/storage/postgres"
)

// Replaced in tests.
var (
	runMigrations      = postgres.RunMigrations
	rollbackMigrations = postgres.RollbackMigrations
	migrationVersion   = postgres.MigrationVersion
)

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "manage the postgres trade store schema" }
func (*migrateCmd) Usage() string {
	return `folio migrate up|down|version

  Applies, rolls back one step of, or reports the schema migrations of the
  postgres trade backend configured under [postgres].
`
}

func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: folio migrate up|down|version")
		return subcommands.ExitUsageError
	}

	config, err := common.LoadConfig(app.ResolveConfigPath(ConfigPath))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	url := config.Postgres.URL()

	switch f.Arg(0) {
	case "up":
		err = runMigrations(url)
	case "down":
		err = rollbackMigrations(url)
	case "version":
		var version uint
		var dirty bool
		if version, dirty, err = migrationVersion(url); err == nil {
			fmt.Fprintf(stdout, "version %d (dirty: %t)\n", version, dirty)
		}
	default:
		fmt.Fprintf(stderr, "unknown migrate action %q\n", f.Arg(0))
		return subcommands.ExitUsageError
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	if f.Arg(0) != "version" {
		fmt.Fprintf(stdout, "migrate %s: done\n", f.Arg(0))
	}
	return subcommands.ExitSuccess
}
