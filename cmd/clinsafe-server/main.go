package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinsafe/clinsafe/internal/config"
	"github.com/clinsafe/clinsafe/internal/domain/catalog"
	"github.com/clinsafe/clinsafe/internal/domain/conflict"
	"github.com/clinsafe/clinsafe/internal/domain/emergency"
	"github.com/clinsafe/clinsafe/internal/domain/oversight"
	"github.com/clinsafe/clinsafe/internal/platform/auth"
	"github.com/clinsafe/clinsafe/internal/platform/db"
	"github.com/clinsafe/clinsafe/internal/platform/hipaa"
	"github.com/clinsafe/clinsafe/internal/platform/middleware"
	"github.com/clinsafe/clinsafe/internal/platform/telemetry"
)

const serverVersion = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinsafe-server",
		Short: "Clinical Safety Engine API Server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(catalogCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinical safety API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool)
			statuses, err := migrator.Status(ctx)
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
		},
	}
	cmd.AddCommand(statusCmd)

	// migrate down - keep as warning
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the embedded runner.")
			fmt.Println("Restore the database from a backup taken before the migration instead.")
			return nil
		},
	})

	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the clinical reference catalog",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print catalog entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			builtinOnly, _ := cmd.Flags().GetBool("builtin")

			snap := catalog.Default()
			if !builtinOnly {
				cfg, err := config.Load()
				if err != nil {
					return err
				}

				ctx := context.Background()
				pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolConfig(cfg))
				if err != nil {
					return err
				}
				defer pool.Close()

				svc := catalog.NewService(
					catalog.NewDrugInteractionRepoPG(pool),
					catalog.NewFoodInteractionRepoPG(pool),
					catalog.NewCrossReactivityRepoPG(pool),
					zerolog.Nop(),
				)
				snap, err = svc.Reload(ctx)
				if err != nil {
					return fmt.Errorf("failed to load catalog: %w", err)
				}
			}

			stats := snap.Stats()
			fmt.Printf("Drug entries:      %d\n", stats.DrugEntries)
			fmt.Printf("Drug interactions: %d\n", stats.DrugInteractions)
			fmt.Printf("Food interactions: %d\n", stats.FoodInteractions)
			fmt.Printf("Allergens:         %d\n", stats.Allergens)
			fmt.Printf("Built-in rows:     %d\n", stats.BuiltinRows)
			fmt.Printf("Custom rows:       %d\n", stats.CustomRows)
			return nil
		},
	}
	statsCmd.Flags().Bool("builtin", false, "Show built-in entries only, without connecting to the database")
	cmd.AddCommand(statsCmd)

	return cmd
}

// poolConfig maps the loaded configuration onto database pool settings.
func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}
}

// detectionConfig maps the loaded configuration onto the conflict detector's
// switches. Every pass and threshold is operator-controllable through the
// environment; the conservative defaults live in config.Load.
func detectionConfig(cfg *config.Config) conflict.DetectionConfig {
	return conflict.DetectionConfig{
		EnableMedicationInteractions: cfg.EnableMedicationInteractions,
		EnableAllergyConflicts:       cfg.EnableAllergyConflicts,
		EnableConditionCompatibility: cfg.EnableConditionCompatibility,
		AutoResolveMinorConflicts:    cfg.AutoResolveMinorConflicts,
		ClinicalOversightRequired:    cfg.ClinicalOversightRequired,
		EmergencyOverrideEnabled:     cfg.EmergencyOverrideEnabled,
		ReviewConflictThreshold:      cfg.ReviewConflictThreshold,
	}
}

// rateLimitConfig maps the loaded configuration onto the rate limiter,
// falling back to the default limits when unset.
func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 {
		return middleware.DefaultRateLimitConfig()
	}
	return rl
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		logger = logger.Level(level)
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Telemetry
	tp := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceName:    "clinsafe",
		ServiceVersion: serverVersion,
		Environment:    cfg.Env,
	})
	defer tp.Shutdown(context.Background())

	// Decision audit trail
	auditLogger := hipaa.NewAuditLogger(pool, logger)

	// Reference catalog: built-in entries merged with custom rows from the
	// database. A failed load is not fatal; the built-in snapshot still
	// covers the core interaction set.
	catalogSvc := catalog.NewService(
		catalog.NewDrugInteractionRepoPG(pool),
		catalog.NewFoodInteractionRepoPG(pool),
		catalog.NewCrossReactivityRepoPG(pool),
		logger,
	)
	if _, err := catalogSvc.Reload(ctx); err != nil {
		logger.Warn().Err(err).Msg("catalog reload failed, serving built-in entries only")
	}

	// Domain services
	oversightSvc := oversight.NewService(oversight.NewAlertRepoPG(pool), auditLogger, tp, logger)
	conflictSvc := conflict.NewService(conflict.NewCheckRepoPG(pool), catalogSvc, detectionConfig(cfg), auditLogger, tp, logger)
	emergencySvc := emergency.NewService(emergency.NewCheckRepoPG(pool), catalogSvc, cfg.EmergencyOverrideEnabled, auditLogger, tp, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Break-Glass"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.JWTSecret),
			Skipper:    auth.AuthSkipper,
		}))
	}

	// Break-glass is only honored when emergency override is enabled.
	if cfg.EmergencyOverrideEnabled {
		e.Use(middleware.BreakGlass(logger))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// Telemetry middleware
	e.Use(tp.TracingMiddleware())
	e.Use(tp.MetricsMiddleware())

	// Request hygiene: size limits and input sanitization run before any
	// body is parsed or screened.
	e.Use(middleware.BodyLimit("1M", "5M"))
	e.Use(middleware.Sanitize(logger))

	// Clinical oversight gate: screens inbound bodies and wraps outbound
	// responses. The safety endpoints themselves are skipped (see
	// DefaultGateConfig); the gate protects the general API surface.
	if cfg.OversightGateEnabled {
		e.Use(middleware.OversightGate(middleware.DefaultGateConfig(), oversightSvc, logger))
	}

	// API group
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitConfig(cfg)))
	apiV1.Use(middleware.RequestTimeout(30 * time.Second))

	// Domain handlers
	conflictHandler := conflict.NewHandler(conflictSvc)
	conflictHandler.RegisterRoutes(apiV1)

	emergencyHandler := emergency.NewHandler(emergencySvc)
	emergencyHandler.RegisterRoutes(apiV1)

	oversightHandler := oversight.NewHandler(oversightSvc)
	oversightHandler.RegisterRoutes(apiV1)

	// Catalog routes serve reference data; GETs carry ETags so clients can
	// revalidate cheaply between reloads.
	catalogGroup := apiV1.Group("", middleware.ETagMiddleware(middleware.DefaultCacheConfig()))
	catalogHandler := catalog.NewHandler(catalogSvc)
	catalogHandler.RegisterRoutes(catalogGroup)

	// Decision audit queries and retention policy inspection
	auditGroup := apiV1.Group("", auth.RequireRole("admin"))
	auditSearchHandler := hipaa.NewAuditSearchHandler(hipaa.NewDecisionSearcher(pool))
	auditSearchHandler.RegisterRoutes(auditGroup)

	retentionSvc := hipaa.NewRetentionService(hipaa.DefaultRetentionPolicies(), logger)
	retentionHandler := hipaa.NewRetentionHandler(retentionSvc, hipaa.NewRecordCounterPG(pool))
	retentionHandler.RegisterRoutes(auditGroup)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "clinsafe",
			"version": serverVersion,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Prometheus metrics
	e.GET("/metrics", tp.PrometheusHandler())

	// WriteTimeout outlasts the per-request deadline so a timed-out handler
	// still gets its 504 written.
	for _, srv := range []*http.Server{e.Server, e.TLSServer} {
		srv.ReadHeaderTimeout = 10 * time.Second
		srv.ReadTimeout = 30 * time.Second
		srv.WriteTimeout = 60 * time.Second
		srv.IdleTimeout = 2 * time.Minute
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
