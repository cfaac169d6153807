package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

type holdingsCmd struct {
	view viewFlags
	date string
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "show open positions and cash balances priced on a date" }
func (*holdingsCmd) Usage() string {
	return `folio holdings [-owner <id>] [-date YYYY-MM-DD] [-currency CCY] [-unify] [-class <class>] [-json]

  Replays the trade log up to the close of -date (default today) and prices
  every open position at the latest close on or before that date. Positions
  without any close are valued at their average cost.
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	c.view.register(f)
	f.StringVar(&c.date, "date", "", "as-of date (default: today)")
}

func (c *holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	opts, err := c.view.options()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitUsageError
	}
	asOf, err := parseOptionalDate(c.date)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitUsageError
	}

	return withApp(func(a *app.App) error {
		snap, err := a.PortfolioService.PricedSnapshot(ctx, c.view.owner, asOf, opts)
		if err != nil {
			return err
		}
		if c.view.asJSON {
			return printJSON(snap)
		}

		viewCcy := opts.Currency
		if viewCcy == "" {
			viewCcy = common.ValidateCurrency(a.Config.ReportingCurrency, a.Unifier.BaseCurrency())
		}

		fmt.Fprintf(stdout, "Holdings of %s as of %s\n\n", c.view.owner, formatDate(snap.AsOf))
		w := newTable()
		fmt.Fprintln(w, "KEY\tQUANTITY\tAVG COST\tPRICE\tSOURCE\tMARKET VALUE\tUNREALIZED\tVALUE ("+viewCcy+")\t")
		var total float64
		for _, h := range append(snap.Holdings, snap.Cash...) {
			value := formatMoney(h.ReportingValue, viewCcy)
			if h.Unconverted {
				value = "n/a"
			}
			total += h.ReportingValue
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
				h.Key,
				h.Quantity.String(),
				h.AvgCost.StringFixed(2),
				priceLabel(h),
				h.PriceSource,
				formatMoney(h.MarketValue, h.Key.Currency),
				formatMoney(h.UnrealizedGain, h.Key.Currency),
				value,
			)
		}
		fmt.Fprintf(w, "TOTAL\t\t\t\t\t\t\t%s\t\n", formatMoney(total, viewCcy))
		return w.Flush()
	})
}

func priceLabel(h models.Holding) string {
	if h.Price == 0 {
		return "-"
	}
	return fmt.Sprintf("%.4f (%s)", h.Price, formatDate(h.PriceDate))
}

type realizedCmd struct {
	owner  string
	asJSON bool
}

func (*realizedCmd) Name() string     { return "realized" }
func (*realizedCmd) Synopsis() string { return "show cumulative realized profit per position" }
func (*realizedCmd) Usage() string {
	return `folio realized [-owner <id>] [-json]

  Lists realized profit and loss from FIFO-matched sales, in each
  position's own currency. Removals never realize profit.
`
}

func (c *realizedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "owner", "default", "owner whose trade log is read")
	f.BoolVar(&c.asJSON, "json", false, "print JSON instead of a table")
}

func (c *realizedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app.App) error {
		realized, err := a.PortfolioService.Realized(ctx, c.owner)
		if err != nil {
			return err
		}
		if c.asJSON {
			return printJSON(realized)
		}
		if len(realized) == 0 {
			fmt.Fprintln(stdout, "No realized profit or loss.")
			return nil
		}

		w := newTable()
		fmt.Fprintln(w, "KEY\tPROCEEDS\tCOST\tREALIZED\t")
		for _, r := range realized {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
				r.Key,
				formatMoney(r.Proceeds.InexactFloat64(), r.Key.Currency),
				formatMoney(r.Cost.InexactFloat64(), r.Key.Currency),
				formatMoney(r.Realized.InexactFloat64(), r.Key.Currency),
			)
		}
		return w.Flush()
	})
}
