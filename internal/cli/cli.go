// Package cli implements the folio command-line subcommands.
package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/subcommands"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// ConfigPath is bound to the top-level -config flag.
var ConfigPath string

// Commands lists every subcommand with its help group.
var Commands = []struct {
	Command subcommands.Command
	Group   string
}{
	{&holdingsCmd{}, "engine"},
	{&realizedCmd{}, "engine"},
	{&valuationCmd{}, "engine"},
	{&chartCmd{}, "engine"},
	{&rateCmd{}, "engine"},
	{&tradesCmd{}, "data"},
	{&importCmd{}, "data"},
	{&migrateCmd{}, "admin"},
}

// Replaced in tests.
var (
	openApp           = app.NewApp
	stdout  io.Writer = os.Stdout
	stderr  io.Writer = os.Stderr
	now               = time.Now
)

// withApp opens the App, runs fn and closes it again.
func withApp(fn func(a *app.App) error) subcommands.ExitStatus {
	a, err := openApp(ConfigPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := fn(a); err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// viewFlags are shared by the commands that read a valuation view.
type viewFlags struct {
	owner    string
	currency string
	unify    bool
	class    string
	asJSON   bool
}

func (v *viewFlags) register(f *flag.FlagSet) {
	f.StringVar(&v.owner, "owner", "default", "owner whose trade log is read")
	f.StringVar(&v.currency, "currency", "", "view currency (default: configured reporting currency)")
	f.BoolVar(&v.unify, "unify", false, "convert every currency into the view currency")
	f.StringVar(&v.class, "class", "", "restrict to one asset class (equity-PK, equity-US, crypto, cash, metals, commodities, index)")
	f.BoolVar(&v.asJSON, "json", false, "print JSON instead of a table")
}

func (v *viewFlags) options() (interfaces.ValuationOptions, error) {
	opts := interfaces.ValuationOptions{
		Currency: strings.ToUpper(strings.TrimSpace(v.currency)),
		Unify:    v.unify,
	}
	if v.class != "" {
		class, err := models.ParseAssetClass(v.class)
		if err != nil {
			return opts, err
		}
		opts.AssetClass = class
	}
	return opts, nil
}

// parseOptionalDate parses s, or returns the zero time for "".
func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return models.ParseDate(s)
}

// formatMoney renders amount with the currency's symbol and minor units.
func formatMoney(amount float64, currency string) string {
	return money.NewFromFloat(amount, strings.ToUpper(currency)).Display()
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(models.DateLayout)
}
