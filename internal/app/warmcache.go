package app

import (
	"context"
	"os"
	"time"

	"github.com/bobmcallan/folio/internal/interfaces"
)

// WarmValuations computes the default valuation of each configured owner so
// the first request after a restart is served from the cache. Owners whose
// cached series is still current are not recomputed.
func (a *App) WarmValuations(ctx context.Context) {
	if os.Getenv("FOLIO_WARM_CACHE") == "off" {
		a.Logger.Info().Msg("Warm cache: disabled via FOLIO_WARM_CACHE=off")
		return
	}

	owners := a.Config.Engine.WarmOwners
	if len(owners) == 0 {
		a.Logger.Debug().Msg("Warm cache: no owners configured, skipping")
		return
	}

	start := time.Now()
	warmed := 0
	for _, owner := range owners {
		if ctx.Err() != nil {
			a.Logger.Info().Msg("Warm cache: cancelled")
			return
		}

		res, err := a.PortfolioService.Valuation(ctx, owner, interfaces.ValuationOptions{Unify: true})
		if err != nil {
			a.Logger.Warn().Err(err).Str("owner", owner).Msg("Warm cache: valuation failed")
			continue
		}
		a.Logger.Debug().
			Str("owner", owner).
			Bool("from_cache", res.FromCache).
			Int("days", len(res.Series)).
			Msg("Warm cache: owner ready")
		warmed++
	}

	a.Logger.Info().
		Int("owners", warmed).
		Dur("elapsed", time.Since(start)).
		Msg("Warm cache: complete")
}
