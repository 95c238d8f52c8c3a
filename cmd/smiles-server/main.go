package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lbecken/smiles/internal/config"
	"github.com/lbecken/smiles/internal/domain/directory"
	"github.com/lbecken/smiles/internal/domain/scheduling"
	"github.com/lbecken/smiles/internal/platform/auth"
	"github.com/lbecken/smiles/internal/platform/db"
	"github.com/lbecken/smiles/internal/platform/events"
	"github.com/lbecken/smiles/internal/platform/metrics"
	"github.com/lbecken/smiles/internal/platform/middleware"
	"github.com/lbecken/smiles/internal/platform/validation"
	"github.com/lbecken/smiles/migrations"
)

const (
	version        = "0.1.0"
	maxBodySize    = "1M"
	requestTimeout = 30 * time.Second
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smiles-server",
		Short: "Dental appointment scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the appointment API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Read migrations from this directory instead of the embedded set")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withMigrator(ctx, dir, func(m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withMigrator(ctx, dir, func(m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	return cmd
}

// withMigrator runs fn against the Postgres store. The embedded store is
// migrated by gorm whenever it is opened.
func withMigrator(ctx context.Context, dir string, fn func(m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreDriver == config.StoreDriverSQLite {
		st, err := openStore(ctx, cfg, zerolog.Nop())
		if err != nil {
			return err
		}
		st.close()
		fmt.Printf("SQLite schema at %s is up to date.\n", cfg.SQLitePath)
		return nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	var files fs.FS = migrations.Files
	if dir != "" {
		files = os.DirFS(dir)
	}
	return fn(db.NewMigrator(pool, files))
}

func seedCmd() *cobra.Command {
	opts := directory.DefaultSeedOptions()
	var seed uint64

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the registry with demo facilities, staff, rooms and patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx := cmd.Context()
			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			sum, err := directory.NewSeeder(st.directory, st.tx, seed, logger).Seed(ctx, opts)
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			fmt.Printf("Seeded %d facilities, %d staff, %d rooms, %d patients.\n",
				sum.Facilities, sum.Staff, sum.Rooms, sum.Patients)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Facilities, "facilities", opts.Facilities, "Number of facilities")
	cmd.Flags().IntVar(&opts.DentistsPerFacility, "dentists", opts.DentistsPerFacility, "Dentists per facility")
	cmd.Flags().IntVar(&opts.ChairsPerFacility, "chairs", opts.ChairsPerFacility, "Chairs per facility")
	cmd.Flags().IntVar(&opts.PatientsPerFacility, "patients", opts.PatientsPerFacility, "Patients per facility")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Random seed for generated data")
	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: requests without a token act as admin")
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.close()

	deps := map[string]db.Pinger{st.driver: st}

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if cfg.RedisURL != "" {
		rdb, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		rp := events.NewRedisPublisher(rdb, cfg.EventsChannel)
		publisher = rp
		deps["redis"] = rp
		logger.Info().Str("channel", cfg.EventsChannel).Msg("publishing appointment events to redis")
	}

	e := newServer(cfg, logger, st, publisher, deps)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", st.driver).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with its middleware chain and routes.
func newServer(cfg *config.Config, logger zerolog.Logger, st *store, publisher events.Publisher, deps map[string]db.Pinger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit(maxBodySize))
	e.Use(echomw.ContextTimeout(requestTimeout))

	// Health and metrics stay outside authentication.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", st.healthHandler())
	e.GET("/health/ready", db.ReadinessHandler(deps))
	if cfg.MetricsEnabled {
		metrics.Register()
		e.GET("/metrics", metrics.Handler())
	}

	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}
	apiV1.Use(middleware.Audit(logger, auditToEvents(publisher)))

	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	dir := NewDirectoryAdapter(st.directory)
	svc := scheduling.NewService(
		st.appointments,
		st.tx,
		dir,
		auth.NewFacilityPolicy(dir),
		scheduling.WithEvents(publisher),
		scheduling.WithLogger(logger),
	)
	scheduling.NewHandler(svc, logger).RegisterRoutes(apiV1)

	return e
}

// auditToEvents forwards audit entries to the event stream under "audit".
func auditToEvents(p events.Publisher) middleware.AuditRecorder {
	return middleware.AuditRecorderFunc(func(entry middleware.AuditEntry) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return p.Publish(ctx, "audit", entry)
	})
}
