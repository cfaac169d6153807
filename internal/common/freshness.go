// Package common provides shared utilities for Folio
package common

import "time"

// Freshness TTLs for cached data
const (
	FreshnessValuation    = 24 * time.Hour // cached daily series
	FreshnessPriceHistory = 1 * time.Hour  // in-process price history
)

// DefaultMaxSimulationDays bounds the daily valuation loop (about 100 years).
const DefaultMaxSimulationDays = 36600

// IsFresh returns true if the given timestamp is within the TTL as of now
func IsFresh(updated, now time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return now.Sub(updated) < ttl
}
