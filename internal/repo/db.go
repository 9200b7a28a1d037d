// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and schema migrations.
package repo

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-mess-offline/internal/domain"
)

// pragmas are applied to every pooled connection through the DSN. WAL lets the
// HTTP readers proceed while a queue write is in flight; busy_timeout makes
// concurrent writers wait for the lock instead of failing with SQLITE_BUSY.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
	"busy_timeout(5000)",
}

const (
	maxOpenConns    = 10
	connMaxIdleTime = 5 * time.Minute
	connMaxLifetime = 30 * time.Minute
)

// OpenSQLite opens (or creates) the SQLite database at path. The parent
// directory must already exist.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	q := url.Values{"_pragma": pragmas}
	db, err := gorm.Open(sqlite.Open(path+"?"+q.Encode()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetMaxIdleConns(maxOpenConns)
		sqlDB.SetConnMaxIdleTime(connMaxIdleTime)
		sqlDB.SetConnMaxLifetime(connMaxLifetime)
	}
	return db, nil
}

// EnableTracing installs the OpenTelemetry GORM plugin so every query is
// recorded as a span under the caller's context.
func EnableTracing(db *gorm.DB) error {
	return db.Use(tracing.NewPlugin(tracing.WithoutMetrics()))
}

// AutoMigrateRecords creates the record store schema: the records table with
// its type/timestamp indices, plus idempotency bookkeeping for the HTTP layer.
func AutoMigrateRecords(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.StoredRecord{},
		&domain.Idempotency{},
	)
}

// AutoMigrateEdge creates the edge cache schema.
func AutoMigrateEdge(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.CacheGeneration{},
		&domain.CachedResponse{},
	)
}
