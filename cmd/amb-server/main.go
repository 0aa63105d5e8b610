package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/amb/amb/internal/config"
	"github.com/amb/amb/internal/domain/arbitration"
	"github.com/amb/amb/internal/domain/corridor"
	"github.com/amb/amb/internal/domain/fleet"
	"github.com/amb/amb/internal/domain/route"
	"github.com/amb/amb/internal/domain/signal"
	"github.com/amb/amb/internal/domain/telemetry"
	"github.com/amb/amb/internal/platform/auth"
	"github.com/amb/amb/internal/platform/db"
	"github.com/amb/amb/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "amb-server",
		Short: "Ambulance priority corridor API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the corridor API server",
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

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

// tokenCmd mints tokens for demo and operations use. An ambulance token is
// bound to its vehicle; dispatcher and admin tokens are not.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			role, _ := cmd.Flags().GetString("role")
			ambulanceID, _ := cmd.Flags().GetString("ambulance")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSecret == "" {
				return fmt.Errorf("AUTH_SECRET must be set to issue tokens")
			}
			if role == "ambulance" && ambulanceID == "" {
				return fmt.Errorf("--ambulance is required for the ambulance role")
			}
			if subject == "" {
				subject = role
				if ambulanceID != "" {
					subject = ambulanceID
				}
			}

			token, err := auth.IssueToken([]byte(cfg.AuthSecret), subject, ambulanceID, []string{role}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Token subject (defaults to role or ambulance id)")
	cmd.Flags().String("role", "dispatcher", "Role: admin, dispatcher or ambulance")
	cmd.Flags().String("ambulance", "", "Ambulance id to bind the token to")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
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

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Static catalogs
	catalog, err := route.Load(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load signal catalog")
	}
	registry, err := fleet.LoadRegistry(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load fleet roster")
	}
	logger.Info().
		Int("signals", len(catalog.SignalPositions())).
		Int("hospitals", len(registry.Hospitals())).
		Int("ambulances", len(registry.Ambulances())).
		Msg("catalogs loaded")

	// Engine state
	signalStore := signal.NewStore()
	signalStore.Preload(catalog.SignalPositions())
	telemetryStore := telemetry.NewStore()

	// Fleet service over Postgres
	fleetSvc := fleet.NewService(
		fleet.NewEmergencyRepoPG(pool),
		fleet.NewTripRepoPG(pool),
		registry,
		logger,
	)
	fleetSvc.SetTxRunner(db.NewTxRunner(pool))
	if err := fleetSvc.WarmActiveTrips(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to warm active trips")
	}

	// Corridor pipeline
	resolver := arbitration.NewResolver(telemetryStore, catalog)
	selector := corridor.NewSelector(catalog, telemetryStore, fleetSvc)
	planner := corridor.NewPlanner(selector, catalog, telemetryStore, fleetSvc, signalStore, resolver, logger)
	fleetSvc.SetActivator(planner)

	// GPS simulator re-plans the corridor after every simulated movement,
	// same as a real position report would.
	simulator := telemetry.NewSimulator(telemetryStore, logger)
	simulator.SetTickHook(func(vehicleID string) {
		sev, ok := fleetSvc.ActiveSeverity(vehicleID)
		if !ok {
			return
		}
		if _, err := planner.Activate(vehicleID, sev.String()); err != nil {
			logger.Warn().Err(err).Str("vehicle_id", vehicleID).Msg("corridor update failed")
		}
	})

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() && cfg.AuthSecret == "" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware([]byte(cfg.AuthSecret)))
	}

	// API group
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	// Simulation runs outlive the requests that start them; they stop on
	// server shutdown.
	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()

	// Domain handlers
	fleet.NewHandler(fleetSvc).RegisterRoutes(apiV1)
	telemetry.NewHandler(telemetryStore, simulator, catalog, runCtx).RegisterRoutes(apiV1)
	signal.NewHandler(signalStore).RegisterRoutes(apiV1)
	corridor.NewHandler(planner).RegisterRoutes(apiV1)
	arbitration.NewHandler(resolver).RegisterRoutes(apiV1)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	ossignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancelRuns()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
