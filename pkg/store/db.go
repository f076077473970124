package store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

// Supported database/sql driver names
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed migrations
var migrations embed.FS

// DB is the relational store for comments, classifications and votes
type DB struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger
}

// Open connects to the database and pings it
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (*DB, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		// one writer at a time; keeps in-memory databases alive as well
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	logger.Info("connected to database", zap.String("driver", driver))
	return &DB{db: db, driver: driver, logger: logger}, nil
}

// Migrate applies pending schema migrations for the configured driver
func (s *DB) Migrate() error {
	src, err := iofs.New(migrations, "migrations/"+s.driver)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	var target database.Driver
	switch s.driver {
	case DriverSQLite:
		target, err = sqlite.WithInstance(s.db.DB, &sqlite.Config{})
	case DriverPostgres:
		target, err = postgres.WithInstance(s.db.DB, &postgres.Config{})
	}
	if err != nil {
		return fmt.Errorf("couldn't get database instance for running migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.driver, target)
	if err != nil {
		return fmt.Errorf("couldn't create migrate instance: %w", err)
	}

	// m.Close would close the shared *sql.DB as well
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("couldn't run database migration: %w", err)
	}

	s.logger.Debug("database migrations applied", zap.String("driver", s.driver))
	return nil
}

// X exposes the underlying handle for stores sharing the connection
func (s *DB) X() *sqlx.DB {
	return s.db
}

// Driver returns the database/sql driver name
func (s *DB) Driver() string {
	return s.driver
}

// Ping checks that the database is reachable
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *DB) Close() error {
	return s.db.Close()
}

func (s *DB) rebind(query string) string {
	return s.db.Rebind(query)
}
