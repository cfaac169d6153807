// Package portfolio is the accounting and valuation engine: FIFO lot
// matching, point-in-time snapshots, the daily valuation timeline and its
// time-weighted return index.
package portfolio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/fx"
)

// Options tunes the service. Zero values take defaults.
type Options struct {
	ReportingCurrency string
	CacheTTL          time.Duration
	MaxDays           int
	Now               func() time.Time
}

// Service implements PortfolioService
type Service struct {
	trades    interfaces.TradeStore
	cache     interfaces.ValuationCache
	unifier   *fx.Unifier
	simulator *Simulator
	logger    *common.Logger

	reportingCurrency string
	ttl               time.Duration
	now               func() time.Time

	// one recomputation per valuation key at a time
	group singleflight.Group
}

// NewService creates a new portfolio service
func NewService(
	storage interfaces.StorageManager,
	prices interfaces.PriceResolver,
	unifier *fx.Unifier,
	opts Options,
	logger *common.Logger,
) *Service {
	if opts.ReportingCurrency == "" {
		opts.ReportingCurrency = unifier.BaseCurrency()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = common.FreshnessValuation
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		trades:            storage.TradeStore(),
		cache:             storage.ValuationCache(),
		unifier:           unifier,
		simulator:         NewSimulator(prices, unifier, opts.MaxDays, logger),
		logger:            logger,
		reportingCurrency: strings.ToUpper(opts.ReportingCurrency),
		ttl:               opts.CacheTTL,
		now:               opts.Now,
	}
}

func (s *Service) today() time.Time {
	return models.DateOf(s.now())
}

func (s *Service) listTrades(ctx context.Context, ownerID string) ([]models.Trade, error) {
	trades, err := s.trades.ListTrades(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list trades for %s: %w", models.ErrProviderUnavailable, ownerID, err)
	}
	return trades, nil
}

// viewKey resolves the cache key for a request.
func (s *Service) viewKey(ctx context.Context, ownerID string, opts interfaces.ValuationOptions) models.ValuationKey {
	ccy := strings.ToUpper(strings.TrimSpace(opts.Currency))
	if ccy == "" {
		ccy = common.ResolveReportingCurrency(ctx, s.reportingCurrency)
	}
	return models.ValuationKey{
		OwnerID:    ownerID,
		Currency:   ccy,
		Unify:      opts.Unify,
		AssetClass: opts.AssetClass,
	}
}

// Snapshot reconstructs holdings and cash at the close of asOf. A zero asOf
// means today.
func (s *Service) Snapshot(ctx context.Context, ownerID string, asOf time.Time) (*models.Snapshot, error) {
	trades, err := s.listTrades(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = s.today()
	}
	snap := BuildSnapshot(trades, asOf)
	snap.OwnerID = ownerID
	return snap, nil
}

// PricedSnapshot values every position of the view at asOf.
func (s *Service) PricedSnapshot(ctx context.Context, ownerID string, asOf time.Time, opts interfaces.ValuationOptions) (*models.Snapshot, error) {
	snap, err := s.Snapshot(ctx, ownerID, asOf)
	if err != nil {
		return nil, err
	}
	view := s.viewKey(ctx, ownerID, opts)

	conv := converter{view: view}
	if view.Unify {
		currencies := []string{view.Currency}
		for _, h := range snap.Holdings {
			currencies = append(currencies, h.Key.Currency)
		}
		for _, h := range snap.Cash {
			currencies = append(currencies, h.Key.Currency)
		}
		table, err := s.unifier.Table(ctx, currencies...)
		if err != nil {
			return nil, err
		}
		conv.table = table
	}

	price := func(lines []models.Holding) ([]models.Holding, error) {
		out := make([]models.Holding, 0, len(lines))
		for _, h := range lines {
			if !view.Includes(h.Key) {
				continue
			}
			if err := s.simulator.priceHolding(ctx, &h, conv, snap.AsOf); err != nil {
				return nil, err
			}
			out = append(out, h)
		}
		return out, nil
	}

	if snap.Holdings, err = price(snap.Holdings); err != nil {
		return nil, err
	}
	if !view.IncludesCash() {
		snap.Cash = []models.Holding{}
	} else if snap.Cash, err = price(snap.Cash); err != nil {
		return nil, err
	}

	realized := make([]models.RealizedPnL, 0, len(snap.Realized))
	for _, r := range snap.Realized {
		if view.Includes(r.Key) {
			realized = append(realized, r)
		}
	}
	snap.Realized = realized
	return snap, nil
}

// Realized returns cumulative realized P&L per position line over the whole
// trade log.
func (s *Service) Realized(ctx context.Context, ownerID string) ([]models.RealizedPnL, error) {
	trades, err := s.listTrades(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return BuildSnapshot(trades, time.Time{}).Realized, nil
}

// Valuation returns the cached daily series sliced to the requested window,
// recomputing the full series when the cache is absent or stale.
func (s *Service) Valuation(ctx context.Context, ownerID string, opts interfaces.ValuationOptions) (*interfaces.ValuationResult, error) {
	key := s.viewKey(ctx, ownerID, opts)

	v, fromCache, err := s.getOrCompute(ctx, key, opts.Refresh)
	if err != nil {
		return nil, err
	}

	series := v.Window(models.DateOf(opts.From), windowEnd(opts.To))
	perf := Summarize(series)
	if perf.RealizedTotal, err = s.realizedTotal(ctx, v); err != nil {
		return nil, err
	}

	return &interfaces.ValuationResult{
		Key:         key,
		ComputedAt:  v.ComputedAt,
		FromCache:   fromCache,
		Series:      series,
		Holdings:    v.Holdings,
		Realized:    v.Realized,
		Performance: perf,
	}, nil
}

// ValuationChart renders the requested window as a PNG.
func (s *Service) ValuationChart(ctx context.Context, ownerID string, opts interfaces.ValuationOptions) ([]byte, error) {
	res, err := s.Valuation(ctx, ownerID, opts)
	if err != nil {
		return nil, err
	}
	return RenderValuationChart(res.Series, res.Key.Currency)
}

// getOrCompute returns the cached valuation for key when it is current.
func (s *Service) getOrCompute(ctx context.Context, key models.ValuationKey, force bool) (*models.Valuation, bool, error) {
	if !force {
		cached, err := s.cache.Get(ctx, key)
		if err != nil {
			// the cache is not authoritative; fall through to a recompute
			s.logger.Warn().Err(err).Str("key", key.String()).Msg("Valuation cache read failed")
		}
		if cached != nil {
			current, err := s.isCurrent(ctx, cached)
			if err != nil {
				return nil, false, err
			}
			if current {
				s.logger.Debug().Str("key", key.String()).Msg("Valuation cache hit")
				return cached, true, nil
			}
		}
	}

	// Computation always runs to completion once started, so a caller that
	// goes away cannot leave a partial series behind.
	res, err, shared := s.group.Do(key.String(), func() (any, error) {
		return s.compute(context.WithoutCancel(ctx), key)
	})
	if err != nil {
		return nil, false, err
	}
	if shared {
		s.logger.Debug().Str("key", key.String()).Msg("Joined in-flight valuation")
	}
	return res.(*models.Valuation), false, nil
}

// isCurrent applies the staleness rules: age within TTL and no trade created
// after the series was computed.
func (s *Service) isCurrent(ctx context.Context, v *models.Valuation) (bool, error) {
	if !common.IsFresh(v.ComputedAt, s.now(), s.ttl) {
		return false, nil
	}
	latest, err := s.trades.LatestCreatedAt(ctx, v.Key.OwnerID)
	if err != nil {
		return false, fmt.Errorf("%w: failed to read trade log state for %s: %w", models.ErrProviderUnavailable, v.Key.OwnerID, err)
	}
	return !latest.After(v.ComputedAt), nil
}

// compute rebuilds the full series for key and writes it to the cache.
func (s *Service) compute(ctx context.Context, key models.ValuationKey) (*models.Valuation, error) {
	computedAt := s.now()

	trades, err := s.listTrades(ctx, key.OwnerID)
	if err != nil {
		return nil, err
	}

	v, err := s.simulator.Run(ctx, key, trades, computedAt)
	if err != nil {
		return nil, err
	}
	v.ComputedAt = computedAt

	if err := s.cache.Put(ctx, v); err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("Valuation cache write failed")
	}
	return v, nil
}

// realizedTotal converts realized P&L into the view currency at the end of
// the series. Lines without a known rate are left out; a rate store failure
// is returned.
func (s *Service) realizedTotal(ctx context.Context, v *models.Valuation) (float64, error) {
	date := s.today()
	if n := len(v.Series); n > 0 {
		date = v.Series[n-1].Date
	}
	var total float64
	for _, r := range v.Realized {
		amount := r.Realized.InexactFloat64()
		if !v.Key.Unify {
			total += amount
			continue
		}
		converted, ok, err := s.unifier.Convert(ctx, amount, r.Key.Currency, v.Key.Currency, date)
		if err != nil {
			return 0, err
		}
		if !ok {
			s.logger.Debug().Str("key", r.Key.String()).Msg("Realized P&L not convertible; excluded from total")
			continue
		}
		total += converted
	}
	return total, nil
}

// windowEnd turns a calendar date into an inclusive upper bound.
func windowEnd(to time.Time) time.Time {
	if to.IsZero() {
		return to
	}
	return models.DateOf(to)
}

var _ interfaces.PortfolioService = (*Service)(nil)
