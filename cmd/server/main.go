package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/config"
	"retailpos/backend/internal/httpapi"
	"retailpos/backend/internal/jobs"
	"retailpos/backend/internal/logger"
	"retailpos/backend/internal/sequence"
	"retailpos/backend/internal/service"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/memory"
	pgstore "retailpos/backend/internal/store/postgres"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "retailpos",
		Short:         "Multi-store point of sale backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}
			return logger.Setup(config.Load().Log)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(config.Load())
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading configuration (default .env when present)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(config.Load())
		},
	})
	root.AddCommand(newMigrateCmd())
	return root
}

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			if err := pgstore.MigrateUp(cfg.DatabaseURL); err != nil {
				return err
			}
			migrateLog := logger.WithComponent("migrate")
			migrateLog.Info().Msg("migrations applied")
			return nil
		},
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default one step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			if err := pgstore.MigrateDown(cfg.DatabaseURL, steps); err != nil {
				return err
			}
			migrateLog := logger.WithComponent("migrate")
			migrateLog.Info().Int("steps", steps).Msg("migrations rolled back")
			return nil
		},
	})
	return migrateCmd
}

func runServer(cfg config.Config) error {
	log := logger.WithComponent("server")
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		if cfg.MigrateOnStart {
			if err := pgstore.MigrateUp(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("migrate on start: %w", err)
			}
			log.Info().Msg("migrations applied")
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable (%w) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info().Msg("repository: in-memory")
	}

	var counter store.CounterStore = repo
	var summaries cache.SummaryCache = cache.NewMemorySummaryCache()
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := client.Ping(ctx).Err(); err != nil {
			if cfg.SequenceBackend == "redis" {
				return fmt.Errorf("SEQUENCE_BACKEND=redis but redis is unavailable: %w", err)
			}
			log.Warn().Err(err).Msg("redis unavailable, using in-process summary cache")
			_ = client.Close()
		} else {
			summaries = cache.NewRedisSummaryCache(client)
			if cfg.SequenceBackend == "redis" {
				counter = sequence.NewRedisCounter(client)
			}
			closers = append(closers, client.Close)
			log.Info().Str("sequence_backend", cfg.SequenceBackend).Msg("cache: redis")
		}
	} else if cfg.SequenceBackend == "redis" {
		return errors.New("SEQUENCE_BACKEND=redis requires REDIS_ADDR")
	}

	sequencer := sequence.NewGenerator(counter, loc)
	svc := service.New(repo, sequencer, summaries, service.Settings{
		Location:           loc,
		SummaryTTL:         cfg.DashboardCacheTTL(),
		RejectUnderpayment: cfg.RejectUnderpayment,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	watcher, err := jobs.NewLowStockWatcher(svc, cfg.LowStockScanSpec, loc)
	if err != nil {
		return err
	}
	watcher.Start()

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Address()).Str("timezone", loc.String()).Msg("POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case <-sig:
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	watcher.Stop(shutdownCtx)

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
	return runErr
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	switch cfg.SequenceBackend {
	case "", "store", "redis":
	default:
		return fmt.Errorf("SEQUENCE_BACKEND must be store or redis, got %q", cfg.SequenceBackend)
	}
	return nil
}
