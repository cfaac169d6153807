package cli

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/storage/marketfs"
)

// windowFlags select the slice of a valuation series.
type windowFlags struct {
	from    string
	to      string
	refresh bool
}

func (w *windowFlags) register(f *flag.FlagSet) {
	f.StringVar(&w.from, "from", "", "first date of the window (default: first trade)")
	f.StringVar(&w.to, "to", "", "last date of the window (default: today)")
	f.BoolVar(&w.refresh, "refresh", false, "recompute even when the cached series is fresh")
}

func (w *windowFlags) apply(opts *interfaces.ValuationOptions) error {
	var err error
	if opts.From, err = parseOptionalDate(w.from); err != nil {
		return err
	}
	if opts.To, err = parseOptionalDate(w.to); err != nil {
		return err
	}
	if !opts.From.IsZero() && !opts.To.IsZero() && opts.To.Before(opts.From) {
		return fmt.Errorf("-to %s is before -from %s", w.to, w.from)
	}
	opts.Refresh = w.refresh
	return nil
}

func parseViewAndWindow(v *viewFlags, w *windowFlags) (interfaces.ValuationOptions, error) {
	opts, err := v.options()
	if err != nil {
		return opts, err
	}
	return opts, w.apply(&opts)
}

type valuationCmd struct {
	view   viewFlags
	window windowFlags
	daily  bool
}

func (*valuationCmd) Name() string     { return "valuation" }
func (*valuationCmd) Synopsis() string { return "show the daily portfolio value and time-weighted return" }
func (*valuationCmd) Usage() string {
	return `folio valuation [-owner <id>] [-currency CCY] [-unify] [-class <class>] [-from D] [-to D] [-daily] [-refresh] [-json]

  Prints a performance summary of the cached daily valuation series. With
  -daily every day of the window is listed. Cash flows are deposits and
  withdrawals; with -class cash, purchases and sales count as flows too.
`
}

func (c *valuationCmd) SetFlags(f *flag.FlagSet) {
	c.view.register(f)
	c.window.register(f)
	f.BoolVar(&c.daily, "daily", false, "list every day of the window")
}

func (c *valuationCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	opts, err := parseViewAndWindow(&c.view, &c.window)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitUsageError
	}

	return withApp(func(a *app.App) error {
		res, err := a.PortfolioService.Valuation(ctx, c.view.owner, opts)
		if err != nil {
			return err
		}
		if c.view.asJSON {
			return printJSON(res)
		}
		printValuation(res, c.daily)
		return nil
	})
}

func printValuation(res *interfaces.ValuationResult, daily bool) {
	ccy := res.Key.Currency
	p := res.Performance
	source := "computed"
	if res.FromCache {
		source = "cached"
	}

	fmt.Fprintf(stdout, "Valuation %s (%s at %s)\n\n", res.Key, source, res.ComputedAt.Format("2006-01-02 15:04:05"))
	if len(res.Series) == 0 {
		fmt.Fprintln(stdout, "No valuation data in the window.")
		return
	}

	w := newTable()
	fmt.Fprintf(w, "Period\t%s to %s\t\n", formatDate(p.StartDate), formatDate(p.EndDate))
	fmt.Fprintf(w, "Start value\t%s\t\n", formatMoney(p.StartValue, ccy))
	fmt.Fprintf(w, "End value\t%s\t\n", formatMoney(p.EndValue, ccy))
	fmt.Fprintf(w, "Net cash flow\t%s\t\n", formatMoney(p.NetCashFlow, ccy))
	fmt.Fprintf(w, "Realized\t%s\t\n", formatMoney(p.RealizedTotal, ccy))
	fmt.Fprintf(w, "Time-weighted return\t%.2f%%\t\n", p.TotalReturnPct)
	fmt.Fprintf(w, "Annualized\t%.2f%%\t\n", p.CAGRPct)
	fmt.Fprintf(w, "Max drawdown\t%.2f%%\t\n", p.MaxDrawdownPct)
	w.Flush()

	if !daily {
		return
	}

	fmt.Fprintln(stdout)
	w = newTable()
	fmt.Fprintln(w, "DATE\tCASH\tMARKET VALUE\tTOTAL\tFLOW\tRETURN\tINDEX\tEXCLUDED\t")
	for _, e := range res.Series {
		excluded := "-"
		if len(e.Excluded) > 0 {
			excluded = fmt.Sprint(e.Excluded)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.4f%%\t%.4f\t%s\t\n",
			formatDate(e.Date),
			formatMoney(e.Cash, ccy),
			formatMoney(e.MarketValue, ccy),
			formatMoney(e.TotalValue, ccy),
			formatMoney(e.CashFlow, ccy),
			e.DailyReturn*100,
			e.TWRIndex,
			excluded,
		)
	}
	w.Flush()
}

type chartCmd struct {
	view   viewFlags
	window windowFlags
	out    string
}

func (*chartCmd) Name() string     { return "chart" }
func (*chartCmd) Synopsis() string { return "render the valuation series as a PNG chart" }
func (*chartCmd) Usage() string {
	return `folio chart [-owner <id>] [-currency CCY] [-unify] [-class <class>] [-from D] [-to D] [-o file.png]

  Renders portfolio value and the time-weighted return index. Without -o the
  chart is written to <data_path>/charts/<owner>.png.
`
}

func (c *chartCmd) SetFlags(f *flag.FlagSet) {
	c.view.register(f)
	c.window.register(f)
	f.StringVar(&c.out, "o", "", "output file")
}

func (c *chartCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	opts, err := parseViewAndWindow(&c.view, &c.window)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return subcommands.ExitUsageError
	}

	return withApp(func(a *app.App) error {
		png, err := a.PortfolioService.ValuationChart(ctx, c.view.owner, opts)
		if err != nil {
			return err
		}

		path := c.out
		if path == "" {
			path = filepath.Join(a.Config.Storage.DataPath, "charts", chartName(c.view.owner))
		}
		if err := marketfs.WriteFileAtomic(filepath.Dir(path), filepath.Base(path), png); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Chart written to %s (%d bytes)\n", path, len(png))
		return nil
	})
}

func chartName(owner string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(owner) + ".png"
}
