// Package db provides the Postgres connection, schema migrations and the
// GORM-backed ledger store.
package db

import (
	"embed"
	"fmt"
	stdlog "log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"roundledger/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open opens a database connection using the provided configuration.
// It returns nil when no database is configured.
func Open(cfg config.Config) (*gorm.DB, error) {
	// Configure GORM logger (Silent to avoid cluttering output; only errors will be logged)
	newLogger := logger.New(
		stdlog.New(os.Stdout, "", stdlog.LstdFlags),
		logger.Config{
			SlowThreshold:             0,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	if cfg.DBDialect == "" || cfg.DBDsn == "" {
		return nil, nil
	}

	switch cfg.DBDialect {
	case config.DatabaseSchemePostgres:
		return gorm.Open(postgres.Open(cfg.DBDsn), &gorm.Config{Logger: newLogger})
	default:
		return nil, fmt.Errorf("unsupported DB_DIALECT: %s", cfg.DBDialect)
	}
}

func newMigrate(gdb *gorm.DB) (*migrate.Migrate, error) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, "open embedded migrations")
	}
	driver, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "create migrate driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return nil, errors.Wrap(err, "create migrator")
	}
	return m, nil
}

// MigrateUp applies all pending schema migrations.
func MigrateUp(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	m, err := newMigrate(gdb)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migrate up")
	}
	return nil
}

// MigrateDown rolls back steps migrations.
func MigrateDown(gdb *gorm.DB, steps int) error {
	if gdb == nil {
		return nil
	}
	m, err := newMigrate(gdb)
	if err != nil {
		return err
	}
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migrate down")
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func SchemaVersion(gdb *gorm.DB) (uint, bool, error) {
	m, err := newMigrate(gdb)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
