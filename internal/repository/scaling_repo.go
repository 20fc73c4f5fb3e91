package repository

import (
	"context"
	"fmt"

	"github.com/tkhuang/riskcast/internal/domain"
	"gorm.io/gorm"
)

// scalingHistoryLimit bounds the scaling_events table to a ring of recent rows.
const scalingHistoryLimit = 100

// ScalingRepository is the append-only history log for scaling actions.
type ScalingRepository struct {
	db *gorm.DB
}

// NewScalingRepository creates a new ScalingRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ScalingRepository: repository instance bound to db.
func NewScalingRepository(db *gorm.DB) *ScalingRepository {
	return &ScalingRepository{db: db}
}

// Append inserts a new scaling event and prunes rows beyond the ring limit.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - event: event to record.
// Returns:
//   - error: non-nil if the insert fails. Prune failures only log table
//     growth risk; the insert has already landed.
func (r *ScalingRepository) Append(ctx context.Context, event *domain.ScalingEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to append scaling event: %w", err)
	}

	// Keep only the newest rows. Subquery keeps this a single statement on
	// both sqlite and postgres.
	return r.db.WithContext(ctx).
		Where("id NOT IN (?)", r.db.Model(&domain.ScalingEvent{}).
			Select("id").
			Order("id DESC").
			Limit(scalingHistoryLimit)).
		Delete(&domain.ScalingEvent{}).Error
}

// List retrieves the most recent scaling events, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of events to return; clamped to the ring size.
// Returns:
//   - []domain.ScalingEvent: matching events.
//   - error: non-nil if the query fails.
func (r *ScalingRepository) List(ctx context.Context, limit int) ([]domain.ScalingEvent, error) {
	if limit <= 0 || limit > scalingHistoryLimit {
		limit = scalingHistoryLimit
	}
	var events []domain.ScalingEvent
	if err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
