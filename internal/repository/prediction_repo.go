package repository

import (
	"context"
	"fmt"

	"github.com/tkhuang/riskcast/internal/domain"
	"gorm.io/gorm"
)

// PredictionRepository persists scored fact rows. Duplicate detection and
// inserts are one round-trip per batch.
type PredictionRepository struct {
	db *gorm.DB
}

// NewPredictionRepository creates a new PredictionRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *PredictionRepository: repository instance bound to db.
func NewPredictionRepository(db *gorm.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// CheckDuplicates returns the subset of candidate keys that already exist,
// using a single superset query (scope + company IDs + years) filtered down
// in memory. Works identically on sqlite and postgres, unlike row-value IN.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - keys: candidate fact keys; all keys must share one scope per batch.
// Returns:
//   - map[domain.PredictionKey]bool: present for every key that exists.
//   - error: non-nil if the query fails.
func (r *PredictionRepository) CheckDuplicates(ctx context.Context, keys []domain.PredictionKey) (map[domain.PredictionKey]bool, error) {
	duplicates := make(map[domain.PredictionKey]bool)
	if len(keys) == 0 {
		return duplicates, nil
	}

	scope := keys[0].Scope
	companyIDs := make([]uint, 0, len(keys))
	years := make([]int, 0, len(keys))
	seenID := make(map[uint]bool, len(keys))
	seenYear := make(map[int]bool, len(keys))
	for _, k := range keys {
		if !seenID[k.CompanyID] {
			seenID[k.CompanyID] = true
			companyIDs = append(companyIDs, k.CompanyID)
		}
		if !seenYear[k.ReportingYear] {
			seenYear[k.ReportingYear] = true
			years = append(years, k.ReportingYear)
		}
	}

	var existing []domain.Prediction
	if err := r.db.WithContext(ctx).
		Where("scope = ? AND company_id IN ? AND reporting_year IN ?", scope, companyIDs, years).
		Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check duplicates: %w", err)
	}

	wanted := make(map[domain.PredictionKey]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}
	for i := range existing {
		if key := existing[i].Key(); wanted[key] {
			duplicates[key] = true
		}
	}

	return duplicates, nil
}

// BulkInsert persists a batch of predictions in one insert. A failure fails
// the whole batch; the caller records every row in it as failed. Batch
// atomicity trades granularity for throughput.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - predictions: fact rows to insert.
// Returns:
//   - error: non-nil if the insert fails.
func (r *PredictionRepository) BulkInsert(ctx context.Context, predictions []domain.Prediction) error {
	if len(predictions) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&predictions).Error
}

// CountByScope counts persisted predictions for a scope.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - scope: owning scope.
// Returns:
//   - int64: number of matching records.
//   - error: non-nil if the query fails.
func (r *PredictionRepository) CountByScope(ctx context.Context, scope string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Prediction{}).Where("scope = ?", scope).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
