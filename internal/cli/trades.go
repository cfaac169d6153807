package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/models"
)

type tradesCmd struct {
	owner  string
	asJSON bool
}

func (*tradesCmd) Name() string     { return "trades" }
func (*tradesCmd) Synopsis() string { return "list the trade log in replay order" }
func (*tradesCmd) Usage() string {
	return `folio trades [-owner <id>] [-json]
`
}

func (c *tradesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "owner", "default", "owner whose trade log is read")
	f.BoolVar(&c.asJSON, "json", false, "print JSON instead of a table")
}

func (c *tradesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(func(a *app.App) error {
		trades, err := a.TradeService.List(ctx, c.owner)
		if err != nil {
			return err
		}
		if c.asJSON {
			if trades == nil {
				trades = []models.Trade{}
			}
			return printJSON(trades)
		}

		w := newTable()
		fmt.Fprintln(w, "ID\tDATE\tKIND\tKEY\tQUANTITY\tPRICE\tAMOUNT\tNOTE\t")
		for _, t := range trades {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
				t.ID,
				formatDate(t.Date),
				strings.ToUpper(string(t.Kind)),
				t.Key(),
				t.Quantity.String(),
				t.Price.String(),
				formatMoney(t.Amount.InexactFloat64(), t.Currency),
				t.Note,
			)
		}
		return w.Flush()
	})
}

type rateCmd struct {
	month string
}

func (*rateCmd) Name() string     { return "rate" }
func (*rateCmd) Synopsis() string { return "show the exchange rate of a currency for a month" }
func (*rateCmd) Usage() string {
	return `folio rate [-month YYYY-MM] <CCY>...

  Resolves the value of one unit of each currency in the base currency,
  falling back to the nearest earlier month and then the latest known rate.
`
}

func (c *rateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.month, "month", "", "month to resolve (default: current month)")
}

func (c *rateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(stderr, "at least one currency is required")
		return subcommands.ExitUsageError
	}

	month := models.MonthOf(now().UTC())
	if c.month != "" {
		var err error
		if month, err = models.ParseYearMonth(c.month); err != nil {
			fmt.Fprintln(stderr, err)
			return subcommands.ExitUsageError
		}
	}

	return withApp(func(a *app.App) error {
		w := newTable()
		fmt.Fprintf(w, "CURRENCY\tMONTH\tRATE (%s)\t\n", a.Unifier.BaseCurrency())
		for _, ccy := range f.Args() {
			ccy = strings.ToUpper(ccy)
			rate, ok, err := a.Unifier.RateAt(ctx, ccy, month)
			if err != nil {
				return err
			}
			label := "not available"
			if ok {
				label = fmt.Sprintf("%.8g", rate)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t\n", ccy, month, label)
		}
		return w.Flush()
	})
}

type importCmd struct{}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "load prices, exchange rates and trades from JSON files" }
func (*importCmd) Usage() string {
	return `folio import <file.json>...

  Each file may hold "prices", "rates" and "trades" arrays. Malformed entries
  are skipped and reported; trades are validated and given fresh ids.
`
}

func (*importCmd) SetFlags(*flag.FlagSet) {}

func (*importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(stderr, "at least one file is required")
		return subcommands.ExitUsageError
	}

	return withApp(func(a *app.App) error {
		start := time.Now()
		var total app.ImportSummary
		for _, path := range f.Args() {
			sum, err := a.ImportFromFile(ctx, path)
			if err != nil {
				return err
			}
			total.PriceBars += sum.PriceBars
			total.Rates += sum.Rates
			total.Trades += sum.Trades
			total.Skipped += sum.Skipped
		}
		fmt.Fprintf(stdout, "Imported %d price bars, %d rates, %d trades (%d skipped) in %s\n",
			total.PriceBars, total.Rates, total.Trades, total.Skipped, time.Since(start).Round(time.Millisecond))
		return nil
	})
}
