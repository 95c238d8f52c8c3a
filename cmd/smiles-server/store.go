package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/lbecken/smiles/internal/config"
	"github.com/lbecken/smiles/internal/domain/directory"
	"github.com/lbecken/smiles/internal/domain/scheduling"
	"github.com/lbecken/smiles/internal/platform/db"
)

// store bundles the repositories of one storage backend.
type store struct {
	driver       string
	appointments scheduling.AppointmentRepository
	directory    directory.Repository
	tx           interface {
		WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	}
	pool  *pgxpool.Pool
	gorm  *gorm.DB
	close func()
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		gdb, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		st, err := newGormStore(gdb)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite store")
		return st, nil
	case config.StoreDriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to database")
		return &store{
			driver:       config.StoreDriverPostgres,
			appointments: scheduling.NewAppointmentRepoPG(pool),
			directory:    directory.NewRepoPG(pool),
			tx:           db.NewTxManager(pool),
			pool:         pool,
			close:        pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// newGormStore migrates the embedded schema and wires the gorm repositories.
func newGormStore(gdb *gorm.DB) (*store, error) {
	if err := directory.AutoMigrateGorm(gdb); err != nil {
		return nil, fmt.Errorf("migrate directory: %w", err)
	}
	if err := scheduling.AutoMigrateGorm(gdb); err != nil {
		return nil, fmt.Errorf("migrate appointments: %w", err)
	}
	return &store{
		driver:       config.StoreDriverSQLite,
		appointments: scheduling.NewAppointmentRepoGorm(gdb),
		directory:    directory.NewRepoGorm(gdb),
		tx:           db.NewGormTxManager(gdb),
		gorm:         gdb,
		close: func() {
			if sqlDB, err := gdb.DB(); err == nil {
				sqlDB.Close()
			}
		},
	}, nil
}

func (s *store) Ping(ctx context.Context) error {
	if s.pool != nil {
		return s.pool.Ping(ctx)
	}
	sqlDB, err := s.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// healthHandler reports pool stats for Postgres and a plain ping otherwise.
func (s *store) healthHandler() echo.HandlerFunc {
	if s.pool != nil {
		return db.HealthHandler(s.pool)
	}
	return db.ReadinessHandler(map[string]db.Pinger{s.driver: s})
}
