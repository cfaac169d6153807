package surrealdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// CacheStore implements interfaces.ValuationCache using SurrealDB. The
// valuation is kept as a JSON payload; freshness is decided by the caller.
type CacheStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

type valuationRecord struct {
	CacheKey   string    `json:"cache_key"`
	OwnerID    string    `json:"owner_id"`
	ComputedAt time.Time `json:"computed_at"`
	Payload    string    `json:"payload"`
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(db *surrealdb.DB, logger *common.Logger) *CacheStore {
	return &CacheStore{db: db, logger: logger}
}

func valuationRID(key models.ValuationKey) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("valuation_cache", strings.ReplaceAll(key.String(), "|", "_"))
}

func (s *CacheStore) Get(ctx context.Context, key models.ValuationKey) (*models.Valuation, error) {
	rec, err := surrealdb.Select[valuationRecord](ctx, s.db, valuationRID(key))
	if err != nil && !isNotFoundError(err) {
		return nil, fmt.Errorf("failed to select cached valuation: %w", err)
	}
	if rec == nil || rec.Payload == "" {
		return nil, nil
	}

	var v models.Valuation
	if err := json.Unmarshal([]byte(rec.Payload), &v); err != nil {
		return nil, fmt.Errorf("failed to decode cached valuation %s: %w", key, err)
	}
	return &v, nil
}

func (s *CacheStore) Put(ctx context.Context, v *models.Valuation) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode valuation: %w", err)
	}

	rec := valuationRecord{
		CacheKey:   v.Key.String(),
		OwnerID:    v.Key.OwnerID,
		ComputedAt: v.ComputedAt.UTC(),
		Payload:    string(payload),
	}
	if err := upsert[valuationRecord](ctx, s.db, valuationRID(v.Key), rec); err != nil {
		return fmt.Errorf("failed to save valuation after retries: %w", err)
	}
	return nil
}

var _ interfaces.ValuationCache = (*CacheStore)(nil)
