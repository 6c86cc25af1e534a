package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/database/backends"
)

// SQLiteFactory creates SQLite backends.
type SQLiteFactory struct{}

// Create creates a new SQLite backend with the given configuration.
func (f *SQLiteFactory) Create(config Config) (*Backend, error) {
	if config.Type != BackendSQLite {
		return nil, fmt.Errorf("sqlite factory cannot create %s backend", config.Type)
	}

	sqliteBackend, err := backends.OpenSQLite(backends.SQLiteConfig{
		Path:        config.Path,
		JournalMode: config.JournalMode,
		BusyTimeout: config.BusyTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &Backend{
		Type:     BackendSQLite,
		DB:       sqliteBackend.DB,
		Config:   config,
		Migrator: sqliteBackend.Migrator,
		Health:   &healthWrapper{sqliteBackend.Health},
	}, nil
}

// PostgreSQLFactory creates PostgreSQL backends (including Supabase).
type PostgreSQLFactory struct {
	logger *slog.Logger
}

// NewPostgreSQLFactory creates a new PostgreSQL factory.
func NewPostgreSQLFactory(logger *slog.Logger) *PostgreSQLFactory {
	return &PostgreSQLFactory{logger: logger}
}

// Create creates a new PostgreSQL backend with the given configuration.
func (f *PostgreSQLFactory) Create(config Config) (*Backend, error) {
	if config.Type != BackendPostgreSQL {
		return nil, fmt.Errorf("postgresql factory cannot create %s backend", config.Type)
	}

	pgBackend, err := backends.OpenPostgreSQL(backends.PostgreSQLConfig{
		Host:            config.Host,
		Port:            config.Port,
		Database:        config.Database,
		User:            config.User,
		Password:        config.Password,
		SSLMode:         config.SSLMode,
		MaxOpenConns:    config.MaxOpenConns,
		MaxIdleConns:    config.MaxIdleConns,
		ConnMaxLifetime: config.ConnMaxLifetime,
		SupabaseURL:     config.SupabaseURL,
	}, f.logger)
	if err != nil {
		return nil, err
	}

	return &Backend{
		Type:     BackendPostgreSQL,
		DB:       pgBackend.DB,
		Config:   config,
		Migrator: pgBackend.Migrator,
		Health:   &healthWrapper{pgBackend.Health},
	}, nil
}

// healthWrapper adapts the backends health checker to HealthChecker.
type healthWrapper struct {
	h *backends.HealthChecker
}

func (w *healthWrapper) Ping(ctx context.Context) error {
	return w.h.Ping(ctx)
}

func (w *healthWrapper) Status(ctx context.Context) HealthStatus {
	status := w.h.Status(ctx)
	return HealthStatus{
		Healthy:         extractBool(status, "healthy"),
		Version:         extractString(status, "version"),
		Error:           extractString(status, "error"),
		OpenConnections: extractInt(status, "open_conns"),
		InUse:           extractInt(status, "in_use"),
		Idle:            extractInt(status, "idle"),
		WaitCount:       extractInt64(status, "wait_count"),
	}
}

func extractBool(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func extractString(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func extractInt(m map[string]any, key string) int {
	v, _ := m[key].(int)
	return v
}

func extractInt64(m map[string]any, key string) int64 {
	v, _ := m[key].(int64)
	return v
}
