// Package psqltest opens migrated in-memory databases for tests.
package psqltest

import (
	"context"
	"testing"

	"medmine/medmine/sources/psql"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// New returns a migrated sqlite database private to t.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := psql.Open(context.Background(), sqlite.Open(":memory:"))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// every new connection would see a fresh empty :memory: database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(db.Close)
	return db.DB
}
