package db

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite opens the embedded store. SQLite allows a single writer, so the
// pool is capped at one connection and every transaction runs exclusively.
// An in-memory database is shared by all callers of the returned handle.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if path == ":memory:" || path == "" {
		dsn = "file::memory:"
	}
	gdb, err := gorm.Open(sqlite.Open(dsn+sqliteParams(dsn)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return gdb, nil
}

func sqliteParams(dsn string) string {
	sep := "?"
	for _, c := range dsn {
		if c == '?' {
			sep = "&"
			break
		}
	}
	return sep + "_foreign_keys=on&_busy_timeout=5000"
}

// GormFromContext returns the gorm transaction opened by GormTxManager, or
// fallback when ctx carries none.
func GormFromContext(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(GormTxKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return fallback.WithContext(ctx)
}

// GormTxManager runs units of work in gorm transactions.
type GormTxManager struct {
	db *gorm.DB
}

func NewGormTxManager(gdb *gorm.DB) *GormTxManager {
	return &GormTxManager{db: gdb}
}

// WithinTx mirrors TxManager.WithinTx for the gorm-backed stores.
func (m *GormTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(GormTxKey).(*gorm.DB); ok {
		return fn(ctx)
	}
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, GormTxKey, tx))
	})
}
