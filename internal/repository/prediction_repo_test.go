package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkhuang/riskcast/internal/domain"
)

func TestCompanyRepository_ResolveCompanies(t *testing.T) {
	repo := NewCompanyRepository(newTestDB(t))
	ctx := context.Background()

	ids, err := repo.ResolveCompanies(ctx, []string{"ACME", "GLOBEX", "ACME"}, "tenant-a")
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotZero(t, ids["ACME"])
	assert.NotZero(t, ids["GLOBEX"])

	// A second resolution returns the same IDs, not new rows.
	again, err := repo.ResolveCompanies(ctx, []string{"ACME", "INITECH"}, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, ids["ACME"], again["ACME"])
	assert.NotZero(t, again["INITECH"])

	// The same symbol in another scope is a different company.
	other, err := repo.ResolveCompanies(ctx, []string{"ACME"}, "tenant-b")
	require.NoError(t, err)
	assert.NotEqual(t, ids["ACME"], other["ACME"])
}

func TestCompanyRepository_ConcurrentResolveSingleRow(t *testing.T) {
	db := newTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// In-memory sqlite is per-connection; pin the pool to one so both
	// goroutines race against the same database.
	sqlDB.SetMaxOpenConns(1)

	repo := NewCompanyRepository(db)
	results := make([]map[string]uint, 2)
	errs := make([]error, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = repo.ResolveCompanies(context.Background(), []string{"ACME", "GLOBEX"}, "tenant-a")
		}(i)
	}
	wg.Wait()

	// Both callers get the same IDs and the losing insert is a no-op: one
	// row per symbol, never two.
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0], results[1])

	var count int64
	require.NoError(t, db.Model(&domain.Company{}).Where("scope = ?", "tenant-a").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestPredictionRepository_BulkInsertAndDuplicates(t *testing.T) {
	db := newTestDB(t)
	companies := NewCompanyRepository(db)
	predictions := NewPredictionRepository(db)
	ctx := context.Background()

	ids, err := companies.ResolveCompanies(ctx, []string{"ACME", "GLOBEX"}, "tenant-a")
	require.NoError(t, err)

	batch := []domain.Prediction{
		{
			CompanyID:        ids["ACME"],
			ReportingYear:    2024,
			ReportingQuarter: "Q4",
			Scope:            "tenant-a",
			JobID:            "job-1",
			RiskScore:        0.31,
			RiskLabel:        "low",
			ModelVersion:     "risk-v1",
		},
		{
			CompanyID:        ids["GLOBEX"],
			ReportingYear:    2024,
			ReportingQuarter: "Q2",
			Scope:            "tenant-a",
			JobID:            "job-1",
			RiskScore:        0.78,
			RiskLabel:        "high",
			ModelVersion:     "risk-v1",
		},
	}
	require.NoError(t, predictions.BulkInsert(ctx, batch))

	keys := []domain.PredictionKey{
		{CompanyID: ids["ACME"], ReportingYear: 2024, ReportingQuarter: "Q4", Scope: "tenant-a"},
		{CompanyID: ids["ACME"], ReportingYear: 2023, ReportingQuarter: "Q4", Scope: "tenant-a"},
		{CompanyID: ids["GLOBEX"], ReportingYear: 2024, ReportingQuarter: "Q2", Scope: "tenant-a"},
		{CompanyID: ids["GLOBEX"], ReportingYear: 2024, ReportingQuarter: "Q3", Scope: "tenant-a"},
	}
	dups, err := predictions.CheckDuplicates(ctx, keys)
	require.NoError(t, err)
	assert.True(t, dups[keys[0]])
	assert.False(t, dups[keys[1]])
	assert.True(t, dups[keys[2]])
	assert.False(t, dups[keys[3]])

	// The same key in another scope is not a duplicate.
	foreign, err := predictions.CheckDuplicates(ctx, []domain.PredictionKey{
		{CompanyID: ids["ACME"], ReportingYear: 2024, ReportingQuarter: "Q4", Scope: "tenant-b"},
	})
	require.NoError(t, err)
	for _, hit := range foreign {
		assert.False(t, hit)
	}

	count, err := predictions.CountByScope(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestPredictionRepository_CheckDuplicatesEmptyKeys(t *testing.T) {
	predictions := NewPredictionRepository(newTestDB(t))
	dups, err := predictions.CheckDuplicates(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, dups)
}
