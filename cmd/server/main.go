package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diewo77/invoice-engine/auth"
	"github.com/diewo77/invoice-engine/internal/config"
	"github.com/diewo77/invoice-engine/internal/db"
	"github.com/diewo77/invoice-engine/internal/logger"
	"github.com/diewo77/invoice-engine/internal/scheduler"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var rootCmd = &cobra.Command{
	Use:           "invoice-engine",
	Short:         "Multi-tenant invoicing engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, tokenCmd, recurrenceCmd)
	recurrenceCmd.AddCommand(tickCmd)

	seedCmd.Flags().String("tenant", "default", "tenant to seed")
	tokenCmd.Flags().String("tenant", "default", "tenant the token grants access to")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	tickCmd.Flags().String("as-of", "", "evaluate schedules at this RFC3339 time instead of now")
}

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// loadConfig reads the configuration and sets up global logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Setup(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the recurrence scheduler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		deps, err := buildDeps(ctx, cfg)
		if err != nil {
			return err
		}
		defer deps.Close()
		return serve(ctx, cfg, deps)
	},
}

func serve(ctx context.Context, cfg *config.Config, deps *Deps) error {
	log := logger.WithComponent("server")
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      NewApp(deps),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Bool("dev", cfg.App.Dev).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(deps.Invoices, cfg.Scheduler.Schedule, deps.Metrics, logger.WithComponent("scheduler"))
		if err := sched.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			<-sched.Stop().Done()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gdb, err := openDB(cfg)
		if err != nil {
			return err
		}
		if err := migrate(cfg, gdb); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.WithComponent("cmd").Info().Str("driver", cfg.Database.Driver).Msg("migrations completed successfully")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Store default invoicing settings for a tenant",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tenant, _ := cmd.Flags().GetString("tenant")
		gdb, err := openDB(cfg)
		if err != nil {
			return err
		}
		if err := db.Seed(gdb, tenant, cfg.Tenant.BaseCurrency); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		logger.WithComponent("cmd").Info().Str("tenant", tenant).Msg("seeding completed successfully")
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for a tenant",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tenant, _ := cmd.Flags().GetString("tenant")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		secret := cfg.Auth.JWTSecret
		if secret == "" {
			secret = devSecret
		}
		token, err := auth.NewAuthenticator(secret, cfg.App.Dev).Issue(tenant, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var recurrenceCmd = &cobra.Command{
	Use:   "recurrence",
	Short: "Recurring invoice maintenance",
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Generate due recurring invoices and send scheduled ones once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		asOf := time.Now().UTC()
		if raw, _ := cmd.Flags().GetString("as-of"); raw != "" {
			if asOf, err = time.Parse(time.RFC3339, raw); err != nil {
				return fmt.Errorf("--as-of: %w", err)
			}
		}
		deps, err := buildDeps(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer deps.Close()

		report, err := deps.Invoices.TickAll(cmd.Context(), asOf)
		logger.WithComponent("cmd").Info().
			Int("generated", len(report.Generated)).
			Int("sent", len(report.Sent)).
			Int("failed", report.Failed).
			Msg("recurrence tick finished")
		return err
	},
}
