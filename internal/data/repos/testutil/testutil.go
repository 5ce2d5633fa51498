// Package testutil opens a real metadata store for repository tests.
//
// TEST_POSTGRES_DSN selects Postgres. TEST_DB_DRIVER=sqlite runs the same
// tests against a throwaway sqlite file instead. With neither set the tests
// skip.
package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/evidence-backend/internal/data/db"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

type shared struct {
	once sync.Once
	svc  *db.Service
	err  error
	skip string
}

var store shared

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	return logger.Nop()
}

func testConfig() (db.Config, string) {
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		return db.Config{Driver: db.DriverPostgres, URL: dsn}, ""
	}
	if os.Getenv("TEST_DB_DRIVER") == db.DriverSQLite {
		dir, err := os.MkdirTemp("", "evidence-repo-test-")
		if err != nil {
			return db.Config{}, "sqlite temp dir: " + err.Error()
		}
		return db.Config{Driver: db.DriverSQLite, SQLitePath: filepath.Join(dir, "evidence.db")}, ""
	}
	return db.Config{}, "set TEST_POSTGRES_DSN or TEST_DB_DRIVER=sqlite to run repo integration tests"
}

// DB returns a migrated handle shared by every test in the package.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	store.once.Do(func() {
		cfg, skip := testConfig()
		if skip != "" {
			store.skip = skip
			return
		}
		store.svc, store.err = db.Open(logger.Nop(), cfg)
		if store.err == nil {
			store.err = db.AutoMigrateAll(store.svc.DB())
		}
	})
	if store.skip != "" {
		tb.Skip(store.skip)
	}
	if store.err != nil {
		tb.Fatalf("open test db: %v", store.err)
	}
	return store.svc.DB()
}

// Tx opens a transaction rolled back when the test ends.
func Tx(tb testing.TB, gdb *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := gdb.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() { _ = tx.Rollback().Error })
	return tx
}
