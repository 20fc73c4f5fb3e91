package repository

import (
	"context"
	"fmt"

	"github.com/tkhuang/riskcast/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CompanyRepository resolves the shared company dimension in bulk. All
// operations are batched: one lookup, one bulk insert, one re-read per call,
// never one round-trip per row.
type CompanyRepository struct {
	db *gorm.DB
}

// NewCompanyRepository creates a new CompanyRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CompanyRepository: repository instance bound to db.
func NewCompanyRepository(db *gorm.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// ResolveCompanies maps each symbol to a company ID within the scope,
// creating missing companies idempotently. Two batches racing to create the
// same symbol both land on the single row guaranteed by the unique index on
// (symbol, scope): the losing insert is a no-op and the final re-read picks
// up the winner's row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - symbols: entity symbols to resolve; duplicates are tolerated.
//   - scope: owning scope.
// Returns:
//   - map[string]uint: symbol -> company ID for every input symbol.
//   - error: non-nil if any round-trip fails.
func (r *CompanyRepository) ResolveCompanies(ctx context.Context, symbols []string, scope string) (map[string]uint, error) {
	resolved := make(map[string]uint, len(symbols))
	if len(symbols) == 0 {
		return resolved, nil
	}

	unique := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if !seen[s] {
			seen[s] = true
			unique = append(unique, s)
		}
	}

	var existing []domain.Company
	if err := r.db.WithContext(ctx).
		Where("scope = ? AND symbol IN ?", scope, unique).
		Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to look up companies: %w", err)
	}
	for _, c := range existing {
		resolved[c.Symbol] = c.ID
	}

	var missing []domain.Company
	for _, s := range unique {
		if _, ok := resolved[s]; !ok {
			missing = append(missing, domain.Company{Symbol: s, Scope: scope})
		}
	}
	if len(missing) == 0 {
		return resolved, nil
	}

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "scope"}},
		DoNothing: true,
	}).Create(&missing).Error; err != nil {
		return nil, fmt.Errorf("failed to create companies: %w", err)
	}

	// Re-read instead of trusting returned IDs: rows that lost a concurrent
	// create race come back without a primary key.
	var created []domain.Company
	if err := r.db.WithContext(ctx).
		Where("scope = ? AND symbol IN ?", scope, unique).
		Find(&created).Error; err != nil {
		return nil, fmt.Errorf("failed to re-read companies: %w", err)
	}
	for _, c := range created {
		resolved[c.Symbol] = c.ID
	}

	return resolved, nil
}
