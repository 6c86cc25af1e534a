package backends

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenSQLite(t *testing.T) {
	config := SQLiteConfig{
		Path:        filepath.Join(t.TempDir(), "nested", "test.db"),
		JournalMode: "WAL",
		BusyTimeout: 5000,
	}

	backend, err := OpenSQLite(config)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer backend.Close()

	if backend.DB == nil {
		t.Fatal("DB is nil")
	}
	if err := backend.DB.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestSQLiteConfig_DSN(t *testing.T) {
	dsn := SQLiteConfig{Path: "data/a.db", JournalMode: "WAL", BusyTimeout: 100}.DSN()

	for _, want := range []string{"file:data/a.db", "_journal_mode=WAL", "_busy_timeout=100", "_foreign_keys=on"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("expected DSN %q to contain %q", dsn, want)
		}
	}
}

func TestSQLiteBackend_Migration(t *testing.T) {
	backend, err := OpenSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()

	t.Run("partial target stops early", func(t *testing.T) {
		if err := backend.Migrator.Migrate(ctx, 1); err != nil {
			t.Fatalf("Migrate failed: %v", err)
		}
		version, _ := backend.Migrator.CurrentVersion(ctx)
		if version != 1 {
			t.Errorf("expected version 1, got %d", version)
		}
		needs, _ := backend.Migrator.NeedsMigration(ctx)
		if !needs {
			t.Error("expected migration to still be needed")
		}
	})

	t.Run("latest", func(t *testing.T) {
		if err := backend.Migrator.Migrate(ctx, 0); err != nil {
			t.Fatalf("Migrate failed: %v", err)
		}
		version, _ := backend.Migrator.CurrentVersion(ctx)
		if version != LatestVersion {
			t.Errorf("expected version %d, got %d", LatestVersion, version)
		}
		needs, _ := backend.Migrator.NeedsMigration(ctx)
		if needs {
			t.Error("expected no migration needed after running migrations")
		}
	})
}

func TestSQLiteBackend_Health(t *testing.T) {
	backend, err := OpenSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer backend.Close()

	if err := backend.Health.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	status := backend.Health.Status(context.Background())
	if healthy, _ := status["healthy"].(bool); !healthy {
		t.Errorf("expected healthy status, got %v", status)
	}
}

func TestBuildPostgreSQLDSN(t *testing.T) {
	t.Run("standard", func(t *testing.T) {
		dsn := BuildPostgreSQLDSN(PostgreSQLConfig{
			Host: "db.local", Port: 5433, User: "bot", Password: "pw", Database: "arca", SSLMode: "disable",
		})
		expected := "host=db.local port=5433 user=bot password=pw dbname=arca sslmode=disable"
		if dsn != expected {
			t.Errorf("expected %q, got %q", expected, dsn)
		}
	})

	t.Run("supabase project url", func(t *testing.T) {
		dsn := BuildPostgreSQLDSN(PostgreSQLConfig{
			SupabaseURL: "https://abcd.supabase.co",
			Password:    "secret",
		})
		expected := "host=db.abcd.supabase.co port=5432 user=postgres password=secret dbname=postgres sslmode=require"
		if dsn != expected {
			t.Errorf("expected %q, got %q", expected, dsn)
		}
	})
}
