// Package backends provides database backend implementations.
package backends

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend wraps the SQLite database connection with additional functionality.
type SQLiteBackend struct {
	DB     *sql.DB
	Config SQLiteConfig

	Migrator *Migrator
	Health   *HealthChecker
}

// SQLiteConfig holds SQLite-specific configuration.
type SQLiteConfig struct {
	Path        string
	JournalMode string
	BusyTimeout int
}

// DSN builds the go-sqlite3 connection string. Foreign keys are always on;
// whatsmeow's sqlstore refuses to run without them.
func (c SQLiteConfig) DSN() string {
	return fmt.Sprintf("file:%s?_journal_mode=%s&_busy_timeout=%d&_foreign_keys=on",
		c.Path, c.JournalMode, c.BusyTimeout)
}

// OpenSQLite opens or creates a SQLite database with the given configuration.
func OpenSQLite(config SQLiteConfig) (*SQLiteBackend, error) {
	if config.Path == "" {
		config.Path = "./data/arcabot.db"
	}
	if config.JournalMode == "" {
		config.JournalMode = "WAL"
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5000
	}

	// Ensure parent directory exists
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", config.Path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteBackend{
		DB:     db,
		Config: config,
		Migrator: NewMigrator(db, SQLiteMigrations(), `
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY,
				applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`),
		Health: NewHealthChecker(db, "SELECT sqlite_version()"),
	}, nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.DB.Close()
}

// Migrator applies versioned schema steps and records them in schema_version.
type Migrator struct {
	db         *sql.DB
	migrations []Migration
	versionDDL string
}

// NewMigrator creates a migrator over the given ordered migrations.
func NewMigrator(db *sql.DB, migrations []Migration, versionDDL string) *Migrator {
	return &Migrator{db: db, migrations: migrations, versionDDL: versionDDL}
}

// CurrentVersion returns the current schema version (0 when never migrated).
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		// Table might not exist yet
		return 0, nil
	}
	return version, nil
}

// Migrate applies migrations up to the target version (0 = latest).
func (m *Migrator) Migrate(ctx context.Context, target int) error {
	if _, err := m.db.ExecContext(ctx, m.versionDDL); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if mig.Version <= current {
			continue
		}
		if target > 0 && mig.Version > target {
			break
		}
		if _, err := m.db.ExecContext(ctx, mig.SQL); err != nil {
			return fmt.Errorf("apply migration %d: %w", mig.Version, err)
		}
		if _, err := m.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES ($1)", mig.Version); err != nil {
			return fmt.Errorf("record migration %d: %w", mig.Version, err)
		}
	}

	return nil
}

// NeedsMigration returns true if schema is outdated.
func (m *Migrator) NeedsMigration(ctx context.Context) (bool, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	return current < LatestVersion, nil
}

// HealthChecker monitors database health.
type HealthChecker struct {
	db           *sql.DB
	versionQuery string
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker(db *sql.DB, versionQuery string) *HealthChecker {
	return &HealthChecker{db: db, versionQuery: versionQuery}
}

// Ping checks database connectivity.
func (h *HealthChecker) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Status returns detailed health status.
func (h *HealthChecker) Status(ctx context.Context) map[string]any {
	stats := h.db.Stats()

	healthy := true
	var errText string
	var version string
	if err := h.db.QueryRowContext(ctx, h.versionQuery).Scan(&version); err != nil {
		healthy = false
		errText = err.Error()
		version = "unknown"
	}

	return map[string]any{
		"healthy":    healthy,
		"error":      errText,
		"version":    version,
		"open_conns": stats.OpenConnections,
		"in_use":     stats.InUse,
		"idle":       stats.Idle,
		"wait_count": stats.WaitCount,
	}
}
