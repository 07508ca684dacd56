package main

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/invoice-engine/auth"
	"github.com/diewo77/invoice-engine/internal/activity"
	"github.com/diewo77/invoice-engine/internal/config"
	"github.com/diewo77/invoice-engine/internal/db"
	"github.com/diewo77/invoice-engine/internal/events"
	"github.com/diewo77/invoice-engine/internal/invoice"
	"github.com/diewo77/invoice-engine/internal/lock"
	"github.com/diewo77/invoice-engine/internal/logger"
	"github.com/diewo77/invoice-engine/internal/metrics"
	"github.com/diewo77/invoice-engine/internal/notify"
	"github.com/diewo77/invoice-engine/internal/payment"
	"github.com/diewo77/invoice-engine/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// devSecret signs tokens in dev mode when JWT_SECRET is unset.
const devSecret = "dev-jwt-secret"

// Deps holds every long-lived component built from the configuration.
type Deps struct {
	Config    *config.Config
	DB        *gorm.DB
	Registry  *prometheus.Registry
	Metrics   *metrics.InvoiceMetrics
	Publisher events.Publisher
	Auth      *auth.Authenticator
	Tenants   *services.TenantService
	Contacts  *services.ContactService
	Invoices  *services.InvoiceService

	closers []func() error
}

// Close releases external connections in reverse order.
func (d *Deps) Close() {
	log := logger.WithComponent("wire")
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	return db.Open(cfg.Database, cfg.App.Dev && cfg.Log.Level == "debug", logger.WithComponent("db"))
}

// migrate applies the SQL migrations on postgres and gorm automigration on sqlite.
func migrate(cfg *config.Config, gdb *gorm.DB) error {
	if cfg.Database.Driver == "postgres" {
		return db.RunSQLMigrations(cfg.Database.URL())
	}
	return db.AutoMigrate(gdb)
}

func buildDeps(ctx context.Context, cfg *config.Config) (*Deps, error) {
	log := logger.WithComponent("wire")
	d := &Deps{Config: cfg}

	gdb, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	d.DB = gdb
	if cfg.App.Migrations || cfg.Database.Driver == "sqlite" {
		if err := migrate(cfg, gdb); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("migrations completed")
	}

	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	d.Metrics = metrics.New(d.Registry)

	pub, err := events.FromConfig(cfg.Events, logger.WithComponent("events"))
	if err != nil {
		return nil, err
	}
	d.Publisher = pub
	d.closers = append(d.closers, pub.Close)

	currencies, err := invoice.ParseCurrencyTable(cfg.Tenant.CurrencyPrecision)
	if err != nil {
		return nil, fmt.Errorf("CURRENCY_PRECISION: %w", err)
	}
	d.Tenants = services.NewTenantService(gdb, services.TenantDefaults{
		BaseCurrency: cfg.Tenant.BaseCurrency,
		Currencies:   currencies,
	}, logger.WithComponent("tenants"))
	d.Contacts = services.NewContactService(gdb)

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using in-process locks")
			_ = client.Close()
		} else {
			locker = lock.NewRedisLocker(client, "invoice-engine:lock:", time.Minute)
			d.closers = append(d.closers, client.Close)
		}
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger.WithComponent("notify"))
	if cfg.Notify.Driver == "webhook" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	}

	var gateway payment.Gateway = payment.NewFakeGateway(fmt.Sprintf("http://localhost:%s", cfg.Server.Port))
	if cfg.Payment.Provider == "stripe" {
		gateway = payment.NewStripeGateway(cfg.Payment.StripeKey)
	}

	d.Invoices = services.NewInvoiceService(services.Deps{
		DB:       gdb,
		Tenants:  d.Tenants,
		Recorder: activity.NewRecorder(pub, d.Metrics, logger.WithComponent("activity")),
		Notifier: notifier,
		Gateway:  gateway,
		Locker:   locker,
		Metrics:  d.Metrics,
		Log:      logger.WithComponent("invoices"),
	})

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = devSecret
	}
	d.Auth = auth.NewAuthenticator(secret, cfg.App.Dev)
	return d, nil
}
