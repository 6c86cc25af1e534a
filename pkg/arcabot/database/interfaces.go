// Package database provides the storage backend layer (Database Hub) for
// ArcaBot. SQLite is the default backend and requires zero configuration;
// PostgreSQL covers self-hosted Postgres and Supabase projects.
package database

import (
	"context"
	"database/sql"
	"time"
)

// BackendType identifies the type of database backend.
type BackendType string

const (
	BackendSQLite     BackendType = "sqlite"
	BackendPostgreSQL BackendType = "postgresql"
)

// Backend represents an open database backend with its capabilities.
type Backend struct {
	// Name is the identifier for this backend (e.g. "primary").
	Name string

	// Type indicates the database type.
	Type BackendType

	// DB is the underlying database connection.
	DB *sql.DB

	// Config holds the backend configuration.
	Config Config

	// Migrator handles schema migrations.
	Migrator Migrator

	// Health monitors database health.
	Health HealthChecker
}

// Dialect returns the SQL dialect name understood by whatsmeow's sqlstore
// for this backend ("sqlite3" or "postgres").
func (b *Backend) Dialect() string {
	if b.Type == BackendPostgreSQL {
		return "postgres"
	}
	return "sqlite3"
}

// Migrator interface for database schema migrations.
type Migrator interface {
	// CurrentVersion returns the current schema version.
	CurrentVersion(ctx context.Context) (int, error)

	// Migrate applies migrations up to the target version.
	// If target is 0, migrates to the latest version.
	Migrate(ctx context.Context, target int) error

	// NeedsMigration returns true if the schema is outdated.
	NeedsMigration(ctx context.Context) (bool, error)
}

// HealthChecker interface for monitoring database health.
type HealthChecker interface {
	// Ping checks basic database connectivity.
	Ping(ctx context.Context) error

	// Status returns detailed health status.
	Status(ctx context.Context) HealthStatus
}

// HealthStatus represents the health state of a database backend.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Version string        `json:"version"`
	Error   string        `json:"error,omitempty"`

	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// BackendFactory creates database backends based on configuration.
type BackendFactory interface {
	// Create creates a new backend with the given configuration.
	Create(config Config) (*Backend, error)
}
