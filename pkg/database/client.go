// Package database provides the control-plane persistence client and
// migration utilities, a GORM-over-pgx analogue of the teacher's Ent
// client (entgo.io/ent needs a code-generation step this project avoids;
// see DESIGN.md).
package database

import (
	"context"
	stdsql "database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds database connection and pool configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string // unused by the embedded-migrations path; kept for parity with Config loaded from YAML
}

// Client wraps a *gorm.DB and the underlying *sql.DB for health checks.
// Gorm is a named field, not an anonymous embed, so it can coexist with
// the DB() accessor below without a field/method name clash.
type Client struct {
	Gorm *gorm.DB
	db   *stdsql.DB
}

// DB returns the underlying database/sql handle for health checks and
// connection-pool statistics.
func (c *Client) DB() *stdsql.DB { return c.db }

// NewClient opens a pooled pgx connection, wraps it in GORM, runs pending
// migrations, and returns a ready-to-use Client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	sqlDB, err := stdsql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to open gorm client: %w", err)
	}

	if err := runMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{Gorm: gormDB, db: sqlDB}, nil
}

// NewClientFromGorm wraps an already-open *gorm.DB (useful for tests
// built on go-sqlmock), skipping connection setup and migrations.
func NewClientFromGorm(gormDB *gorm.DB, sqlDB *stdsql.DB) *Client {
	return &Client{Gorm: gormDB, db: sqlDB}
}

func hasEmbeddedMigrations() (bool, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return false, fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && len(entry.Name()) > 4 && entry.Name()[len(entry.Name())-4:] == ".sql" {
			return true, nil
		}
	}
	return false, nil
}
