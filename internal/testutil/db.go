// Package testutil builds throwaway databases for package tests.
package testutil

import (
	"testing"

	"buildtrack-backend/internal/database"
	"buildtrack-backend/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory SQLite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every pooled connection to :memory: would be a fresh, empty database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db, zap.NewNop()))
	return db
}

// NewStore returns a record store over a fresh test database.
func NewStore(t *testing.T) (*store.GormStore, *gorm.DB) {
	t.Helper()
	db := NewDB(t)
	return store.NewGormStore(db), db
}
