package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tkhuang/riskcast/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.BulkJob{},
		&domain.JobPayload{},
		&domain.Company{},
		&domain.Prediction{},
		&domain.ScalingEvent{},
	))
	return db
}
