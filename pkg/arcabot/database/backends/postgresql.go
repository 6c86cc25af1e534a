package backends

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// PostgreSQLBackend wraps the PostgreSQL database connection.
type PostgreSQLBackend struct {
	DB     *sql.DB
	Config PostgreSQLConfig

	Migrator *Migrator
	Health   *HealthChecker

	logger *slog.Logger
}

// PostgreSQLConfig holds PostgreSQL-specific configuration.
type PostgreSQLConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// SupabaseURL is the project URL, e.g. https://abcd.supabase.co.
	SupabaseURL string
}

// OpenPostgreSQL opens a PostgreSQL database connection through pgx.
func OpenPostgreSQL(config PostgreSQLConfig, logger *slog.Logger) (*PostgreSQLBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if config.Host == "" {
		config.Host = "localhost"
	}
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 25
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 10
	}
	if config.ConnMaxLifetime == 0 {
		config.ConnMaxLifetime = 30 * time.Minute
	}

	db, err := sql.Open("pgx", BuildPostgreSQLDSN(config))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Debug("postgresql connected", "host", config.Host, "database", config.Database)

	return &PostgreSQLBackend{
		DB:     db,
		Config: config,
		Migrator: NewMigrator(db, PostgreSQLMigrations(), `
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY,
				applied_at TIMESTAMPTZ DEFAULT NOW()
			)`),
		Health: NewHealthChecker(db, "SELECT version()"),
		logger: logger,
	}, nil
}

// BuildPostgreSQLDSN builds the connection string. A Supabase project URL
// is translated into its direct database host (db.<ref>.supabase.co).
func BuildPostgreSQLDSN(config PostgreSQLConfig) string {
	if config.SupabaseURL != "" {
		if u, err := url.Parse(config.SupabaseURL); err == nil {
			parts := strings.Split(u.Host, ".")
			if len(parts) >= 3 && parts[1] == "supabase" {
				dbHost := "db." + u.Host
				user := config.User
				if user == "" {
					user = "postgres"
				}
				database := config.Database
				if database == "" {
					database = "postgres"
				}
				return fmt.Sprintf("host=%s port=5432 user=%s password=%s dbname=%s sslmode=require",
					dbHost, user, config.Password, database)
			}
		}
	}

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode)
}

// Close closes the database connection.
func (b *PostgreSQLBackend) Close() error {
	return b.DB.Close()
}
