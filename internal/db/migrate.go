package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/diewo77/invoice-engine/internal/models"
	migrate "github.com/golang-migrate/migrate/v4"
	// Registers the postgres driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&models.TenantSettings{},
		&models.Contact{},
		&models.Invoice{},
		&models.LineItem{},
		&models.RecurrenceRule{},
		&models.PaymentLink{},
		&models.Payment{},
		&models.ActivityRecord{},
	}
}

// AutoMigrate creates or updates tables from the gorm models. It backs sqlite
// databases and development; production postgres uses the SQL migrations.
func AutoMigrate(db *gorm.DB) error {
	for _, m := range Models() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	for _, table := range []string{"invoices", "line_items", "recurrence_rules", "activity_records"} {
		if !db.Migrator().HasTable(table) {
			return errors.New("missing table after migration: " + table)
		}
	}
	return nil
}

// RunSQLMigrations applies the embedded migrations to the postgres database at dsn.
// Key=value DSNs are converted to the URL form golang-migrate expects.
func RunSQLMigrations(dsn string) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, ToURLDSN(NormalizeDSN(dsn)))
	if err != nil {
		return err
	}
	defer m.Close()
	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
