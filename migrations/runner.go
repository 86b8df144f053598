package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Runner drives golang-migrate against the embedded catalog. The catalog is
// verified at construction and again before every state-changing command.
type Runner struct {
	config  *Config
	catalog *Catalog
	migrate *migrate.Migrate
	db      *sql.DB
	logger  *slog.Logger
}

// NewRunner verifies the embedded catalog, connects to the database, and
// wires up a migrate instance reading from the catalog.
func NewRunner(cfg *Config, logger *slog.Logger) (*Runner, error) {
	catalog := NewCatalog(nil)
	if err := catalog.Verify(); err != nil {
		return nil, fmt.Errorf("migration catalog verification failed: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: cfg.MigrationTable,
	})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	source, err := iofs.New(catalog.FS(), ".")
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{logger: logger}

	logger.Info("migration runner ready",
		slog.String("database", cfg.RedactedURL()),
		slog.String("table", cfg.MigrationTable),
		slog.Int("catalog_max_sequence", catalog.MaxSequence()),
	)

	return &Runner{
		config:  cfg,
		catalog: catalog,
		migrate: m,
		db:      db,
		logger:  logger,
	}, nil
}

// Up applies every pending migration.
func (r *Runner) Up() error {
	if err := r.catalog.Verify(); err != nil {
		return fmt.Errorf("catalog verification failed: %w", err)
	}

	err := r.migrate.Up()

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		r.logger.Info("no pending migrations")
	case err != nil:
		return fmt.Errorf("migrate up: %w", err)
	default:
		r.logger.Info("migrations applied")
	}

	return nil
}

// Down rolls back the most recently applied migration.
func (r *Runner) Down() error {
	if err := r.catalog.Verify(); err != nil {
		return fmt.Errorf("catalog verification failed: %w", err)
	}

	err := r.migrate.Steps(-1)

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		r.logger.Info("no migrations to roll back")
	case err != nil:
		return fmt.Errorf("migrate down: %w", err)
	default:
		r.logger.Info("rolled back one migration")
	}

	return nil
}

// Status reports the applied version against the catalog.
func (r *Runner) Status() error {
	version, dirty, err := r.currentVersion()
	if err != nil {
		return err
	}

	r.logger.Info("migration status",
		slog.Int("applied_version", version),
		slog.Int("catalog_version", r.catalog.MaxSequence()),
		slog.Bool("dirty", dirty),
		slog.Int("pending", max(r.catalog.MaxSequence()-version, 0)),
	)

	if dirty {
		r.logger.Warn("schema is dirty; resolve the failed migration before continuing")
	}

	if version > r.catalog.MaxSequence() {
		r.logger.Warn("database schema is newer than this migrator",
			slog.Int("applied_version", version),
			slog.Int("catalog_version", r.catalog.MaxSequence()),
		)
	}

	return nil
}

// Version reports the applied schema version.
func (r *Runner) Version() error {
	version, dirty, err := r.currentVersion()
	if err != nil {
		return err
	}

	r.logger.Info("schema version",
		slog.Int("version", version),
		slog.Bool("dirty", dirty),
	)

	return nil
}

// Drop removes every table in the database. Destructive; main gates it
// behind an interactive confirmation.
func (r *Runner) Drop() error {
	if err := r.catalog.Verify(); err != nil {
		return fmt.Errorf("catalog verification failed: %w", err)
	}

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("migrate drop: %w", err)
	}

	r.logger.Info("all tables dropped")

	return nil
}

// Close releases the migrate source and both database handles.
func (r *Runner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		if sourceErr != nil {
			errs = append(errs, fmt.Errorf("close migration source: %w", sourceErr))
		}

		if dbErr != nil {
			errs = append(errs, fmt.Errorf("close migrate database handle: %w", dbErr))
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	return errors.Join(errs...)
}

// currentVersion normalizes migrate's version lookup: an empty schema is
// version 0, not an error.
func (r *Runner) currentVersion() (int, bool, error) {
	version, dirty, err := r.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}

	return int(version), dirty, nil // #nosec G115 -- sequence numbers are small
}

// migrateLogger forwards golang-migrate's output to slog.
type migrateLogger struct {
	logger *slog.Logger
}

var _ migrate.Logger = (*migrateLogger)(nil)

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf("migrate: "+format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
