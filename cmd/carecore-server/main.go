package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/clinic/carecore/internal/config"
	"github.com/clinic/carecore/internal/domain/adherence"
	"github.com/clinic/carecore/internal/domain/analytics"
	"github.com/clinic/carecore/internal/domain/registry"
	"github.com/clinic/carecore/internal/domain/scheduling"
	"github.com/clinic/carecore/internal/domain/store"
	"github.com/clinic/carecore/internal/platform/auth"
	"github.com/clinic/carecore/internal/platform/blobstore"
	"github.com/clinic/carecore/internal/platform/db"
	"github.com/clinic/carecore/internal/platform/docanalysis"
	"github.com/clinic/carecore/internal/platform/middleware"
	"github.com/clinic/carecore/internal/platform/notification"
	"github.com/clinic/carecore/internal/platform/sandbox"
	"github.com/clinic/carecore/internal/platform/telemetry"
	"github.com/clinic/carecore/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "carecore-server",
		Short: "Patient care coordination API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the care coordination API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print clinic analytics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			overviewOnly, _ := cmd.Flags().GetBool("overview")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pool, repo, err := openPersistence(ctx, cfg)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			st, err := buildStore(ctx, cfg, logger, repo, time.Now)
			if err != nil {
				return err
			}
			return writeReport(ctx, cmd.OutOrStdout(), analytics.NewEngine(st, cfg.Policy()), overviewOnly)
		},
	}
	cmd.Flags().Bool("overview", false, "Print only the clinic overview")
	return cmd
}

func writeReport(ctx context.Context, w io.Writer, engine *analytics.Engine, overviewOnly bool) error {
	var v interface{} = engine.Report(ctx)
	if overviewOnly {
		v = engine.Overview(ctx)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, pool, err := openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, pool, err := openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func openMigrator(ctx context.Context) (*db.Migrator, *pgxpool.Pool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Persistent() {
		return nil, nil, errors.New("DATABASE_URL is required for migrations")
	}
	pool, err := db.Open(ctx, poolConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, db.Migrations()), pool, nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openPersistence connects to Postgres and applies migrations when
// DATABASE_URL is set. Both results are nil in in-memory mode.
func openPersistence(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, snapshotRepo, error) {
	if !cfg.Persistent() {
		return nil, nil, nil
	}
	pool, err := db.Open(ctx, poolConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.NewMigrator(pool, db.Migrations()).Up(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	return pool, db.NewSnapshotRepoPG(pool), nil
}

// snapshotRepo is the persistence the store is built on: a saved snapshot
// to resume from, and a Persister for later commits.
type snapshotRepo interface {
	store.Persister
	Load(ctx context.Context) (store.Snapshot, bool, error)
}

// buildStore resumes from the persisted snapshot when there is one and
// otherwise seeds demo data. A freshly seeded store is saved immediately so
// a restart resumes from the same records.
func buildStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger, repo snapshotRepo, now func() time.Time) (*store.Store, error) {
	pol := cfg.Policy()
	opts := []store.Option{
		store.WithClock(now),
		store.WithLocation(pol.Location),
		store.WithLogger(logger.With().Str("component", "store").Logger()),
	}

	var initial store.Snapshot
	resumed := false
	if repo != nil {
		snap, ok, err := repo.Load(ctx)
		if err != nil {
			return nil, err
		}
		initial, resumed = snap, ok
	}
	if !resumed {
		seedCfg := sandbox.DefaultSeedConfig()
		seedCfg.IncludeDemo = cfg.SeedDemo
		seedCfg.PatientCount = cfg.SeedPatients
		seedCfg.Seed = cfg.Seed
		var result *sandbox.SeedResult
		initial, result = sandbox.NewSeeder(seedCfg, pol).Generate(now())
		logger.Info().
			Int("patients", result.Patients).
			Int("clinicians", result.Clinicians).
			Int("appointments", result.Appointments).
			Int64("seed", result.Seed).
			Msg("seeded initial snapshot")
	}
	opts = append(opts, store.WithInitial(initial))
	if repo != nil {
		opts = append(opts, store.WithPersister(repo))
	}

	st, err := store.New(opts...)
	if err != nil {
		return nil, err
	}
	if repo != nil && !resumed {
		if err := repo.Save(ctx, st.Snapshot()); err != nil {
			return nil, fmt.Errorf("save seeded snapshot: %w", err)
		}
	}
	if resumed {
		logger.Info().
			Int("patients", len(initial.Patients)).
			Int("appointments", len(initial.Appointments)).
			Msg("resumed persisted snapshot")
	}
	return st, nil
}

// newServer wires middleware and every route. pool may be nil.
func newServer(cfg *config.Config, logger zerolog.Logger, st *store.Store, pool *pgxpool.Pool, metrics *telemetry.Provider) *echo.Echo {
	pol := cfg.Policy()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger, metrics.RecordPanic))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger, auth.PublicRoutes))
	security := middleware.SecurityConfig{}
	if cfg.TLSEnabled {
		security = middleware.TLSSecurity()
	}
	e.Use(middleware.SecurityHeaders(security))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.HeaderUserID, auth.HeaderUserRole},
	}))
	e.Use(metrics.MetricsMiddleware())
	e.Use(auth.IdentityMiddleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())

	apiV1 := e.Group("/api/v1")

	blobs := blobstore.NewInMemoryStore()
	blobstore.NewHandler(blobs).RegisterRoutes(apiV1)

	sender := notification.NewLogSender(logger)
	notifications := notification.NewManager(sender, sender, nil)
	dispatcher := notification.NewDispatcher(notifications, st, logger)
	notification.NewHandler(notifications, dispatcher, pol, st.Now).RegisterRoutes(apiV1)

	hub := websocket.NewHub(logger)
	websocket.NewHandler(hub, cfg.CORSOrigins, logger).RegisterRoutes(apiV1)

	schedSvc := scheduling.NewService(st, pol, metrics, logger).
		WithNotifier(dispatcher).
		WithNotifier(websocket.NewFeed(hub, st.Now))
	scheduling.NewHandler(schedSvc).RegisterRoutes(apiV1)

	adhSvc := adherence.NewService(st, pol, metrics, logger)
	adherence.NewHandler(adhSvc).RegisterRoutes(apiV1)

	regSvc := registry.NewService(st, blobs, docanalysis.NewCanned(), metrics, logger)
	registry.NewHandler(regSvc).RegisterRoutes(apiV1)

	analytics.NewHandler(analytics.NewEngine(st, pol)).RegisterRoutes(apiV1)

	if !cfg.IsProduction() {
		sandbox.NewSeedHandler(pol, st.Now).RegisterRoutes(apiV1.Group("/sandbox"))
	}

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, repo, err := openPersistence(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if pool != nil {
		defer pool.Close()
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("DATABASE_URL not set, running in memory only")
	}

	st, err := buildStore(ctx, cfg, logger, repo, time.Now)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build store")
	}

	metrics := telemetry.NewProvider(telemetry.Config{Environment: cfg.Env, RuntimeMetrics: true})
	e := newServer(cfg, logger, st, pool, metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
