// Package marketfs implements file-based storage for closing prices and
// exchange rates: one JSON file per asset and one per currency.
package marketfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Store keeps prices under <path>/prices and rates under <path>/fx.
type Store struct {
	basePath  string
	pricesDir string
	ratesDir  string
	mu        sync.RWMutex
	logger    *common.Logger
}

type priceFile struct {
	Key  string     `json:"key"`
	Bars []barEntry `json:"bars"`
}

type barEntry struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

type rateFile struct {
	Currency string      `json:"currency"`
	Rates    []rateEntry `json:"rates"`
}

type rateEntry struct {
	Month string  `json:"month"`
	Rate  float64 `json:"rate"`
}

// NewStore creates the directory layout under path.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	s := &Store{
		basePath:  path,
		pricesDir: filepath.Join(path, "prices"),
		ratesDir:  filepath.Join(path, "fx"),
		logger:    logger,
	}
	for _, dir := range []string{s.pricesDir, s.ratesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create market store path %s: %w", dir, err)
		}
	}

	logger.Info().Str("path", path).Msg("MarketFS store opened")
	return s, nil
}

// DataPath returns the base data path.
func (s *Store) DataPath() string {
	return s.basePath
}

func (s *Store) PriceStore() interfaces.PriceStore { return s }
func (s *Store) RateStore() interfaces.RateStore   { return s }

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// --- helpers ---

func sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(key)
}

func filePath(dir, key string) string {
	return filepath.Join(dir, sanitizeKey(key)+".json")
}

// readJSON returns false without error when the file does not exist.
func readJSON(dir, key string, dest interface{}) (bool, error) {
	path := filePath(dir, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return true, nil
}

func writeJSON(dir, key string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	jsonData = append(jsonData, '\n')
	return WriteFileAtomic(dir, sanitizeKey(key)+".json", jsonData)
}

// WriteFileAtomic writes data to dir/name through a temp file and rename, so
// readers never observe a partial file.
func WriteFileAtomic(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	target := filepath.Join(dir, name)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// --- PriceStore ---

func (s *Store) loadBars(key models.AssetKey) ([]models.PriceBar, error) {
	var f priceFile
	if _, err := readJSON(s.pricesDir, key.String(), &f); err != nil {
		return nil, err
	}
	bars := make([]models.PriceBar, 0, len(f.Bars))
	for _, b := range f.Bars {
		date, err := models.ParseDate(b.Date)
		if err != nil {
			s.logger.Warn().Str("key", key.String()).Str("date", b.Date).Msg("Skipping price bar with bad date")
			continue
		}
		bars = append(bars, models.PriceBar{Date: date, Close: b.Close})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func (s *Store) PriceAtOrBefore(_ context.Context, key models.AssetKey, date time.Time) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bars, err := s.loadBars(key)
	if err != nil {
		return 0, false, err
	}
	date = models.DateOf(date)
	idx := sort.Search(len(bars), func(i int) bool { return bars[i].Date.After(date) })
	if idx == 0 {
		return 0, false, nil
	}
	return bars[idx-1].Close, true, nil
}

func (s *Store) PriceHistory(_ context.Context, key models.AssetKey, from, to time.Time) ([]models.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bars, err := s.loadBars(key)
	if err != nil {
		return nil, err
	}
	out := bars[:0]
	for _, b := range bars {
		if !from.IsZero() && b.Date.Before(models.DateOf(from)) {
			continue
		}
		if !to.IsZero() && b.Date.After(models.DateOf(to)) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// SavePrices merges bars into the asset's file. A bar for an existing date
// replaces it.
func (s *Store) SavePrices(_ context.Context, key models.AssetKey, bars []models.PriceBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.loadBars(key)
	if err != nil {
		return err
	}
	byDate := make(map[string]float64, len(existing)+len(bars))
	for _, b := range existing {
		byDate[b.Date.Format(models.DateLayout)] = b.Close
	}
	for _, b := range bars {
		byDate[models.DateOf(b.Date).Format(models.DateLayout)] = b.Close
	}

	f := priceFile{Key: key.String(), Bars: make([]barEntry, 0, len(byDate))}
	for date, price := range byDate {
		f.Bars = append(f.Bars, barEntry{Date: date, Close: price})
	}
	sort.Slice(f.Bars, func(i, j int) bool { return f.Bars[i].Date < f.Bars[j].Date })

	if err := writeJSON(s.pricesDir, key.String(), f); err != nil {
		return fmt.Errorf("failed to save prices for %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key.String()).Int("bars", len(bars)).Msg("Prices saved")
	return nil
}

// --- RateStore ---

func (s *Store) loadRates(currency string) ([]models.FXRate, error) {
	var f rateFile
	if _, err := readJSON(s.ratesDir, currency, &f); err != nil {
		return nil, err
	}
	series := make([]models.FXRate, 0, len(f.Rates))
	for _, r := range f.Rates {
		month, err := models.ParseYearMonth(r.Month)
		if err != nil {
			s.logger.Warn().Str("currency", currency).Str("month", r.Month).Msg("Skipping rate with bad month")
			continue
		}
		series = append(series, models.FXRate{Currency: currency, Month: month, Rate: r.Rate})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Month.Before(series[j].Month) })
	return series, nil
}

func (s *Store) RateForMonth(_ context.Context, currency string, month models.YearMonth) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, err := s.loadRates(strings.ToUpper(currency))
	if err != nil {
		return 0, false, err
	}
	for _, r := range series {
		if r.Month == month {
			return r.Rate, true, nil
		}
	}
	return 0, false, nil
}

func (s *Store) LatestRate(_ context.Context, currency string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, err := s.loadRates(strings.ToUpper(currency))
	if err != nil || len(series) == 0 {
		return 0, false, err
	}
	return series[len(series)-1].Rate, true, nil
}

func (s *Store) RateSeries(_ context.Context, currency string) ([]models.FXRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadRates(strings.ToUpper(currency))
}

// SaveRates merges rates into the per-currency files. A rate for an existing
// month replaces it.
func (s *Store) SaveRates(_ context.Context, rates []models.FXRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grouped := make(map[string][]models.FXRate)
	for _, r := range rates {
		ccy := strings.ToUpper(r.Currency)
		grouped[ccy] = append(grouped[ccy], r)
	}

	for ccy, incoming := range grouped {
		existing, err := s.loadRates(ccy)
		if err != nil {
			return err
		}
		byMonth := make(map[string]float64, len(existing)+len(incoming))
		for _, r := range existing {
			byMonth[r.Month.String()] = r.Rate
		}
		for _, r := range incoming {
			byMonth[r.Month.String()] = r.Rate
		}

		f := rateFile{Currency: ccy, Rates: make([]rateEntry, 0, len(byMonth))}
		for month, rate := range byMonth {
			f.Rates = append(f.Rates, rateEntry{Month: month, Rate: rate})
		}
		sort.Slice(f.Rates, func(i, j int) bool { return f.Rates[i].Month < f.Rates[j].Month })

		if err := writeJSON(s.ratesDir, ccy, f); err != nil {
			return fmt.Errorf("failed to save rates for %s: %w", ccy, err)
		}
	}
	s.logger.Debug().Int("rates", len(rates)).Msg("Exchange rates saved")
	return nil
}

var (
	_ interfaces.PriceStore = (*Store)(nil)
	_ interfaces.RateStore  = (*Store)(nil)
)
