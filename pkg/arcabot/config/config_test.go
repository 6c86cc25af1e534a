package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/database"
)

func TestParseConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := ParseConfig([]byte("{}"))
		if err != nil {
			t.Fatalf("ParseConfig failed: %v", err)
		}
		if cfg.Database.Backend != database.BackendSQLite {
			t.Errorf("expected sqlite backend, got %s", cfg.Database.Backend)
		}
		if cfg.WhatsApp.ReconnectDelay != time.Second {
			t.Errorf("expected 1s reconnect delay, got %s", cfg.WhatsApp.ReconnectDelay)
		}
		if cfg.Dispatch.Schedule != "@every 1m" {
			t.Errorf("expected @every 1m, got %q", cfg.Dispatch.Schedule)
		}
		if !cfg.Metrics.Enabled {
			t.Error("expected metrics enabled by default")
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected defaults to validate, got %v", err)
		}
	})

	t.Run("overrides keep unrelated defaults", func(t *testing.T) {
		data := `
ai:
  provider: openai
  model: gpt-4o
whatsapp:
  reconnect_delay: 5s
  send_rate: 2
metrics:
  address: ":9191"
`
		cfg, err := ParseConfig([]byte(data))
		if err != nil {
			t.Fatalf("ParseConfig failed: %v", err)
		}
		if cfg.AI.Provider != "openai" || cfg.AI.Model != "gpt-4o" {
			t.Errorf("unexpected ai config %+v", cfg.AI)
		}
		if cfg.AI.MaxOutputTokens != 1000 {
			t.Errorf("expected default max tokens kept, got %d", cfg.AI.MaxOutputTokens)
		}
		if cfg.WhatsApp.ReconnectDelay != 5*time.Second || cfg.WhatsApp.Limit.Rate != 2 {
			t.Errorf("unexpected whatsapp config %+v", cfg.WhatsApp)
		}
		if cfg.WhatsApp.Limit.Burst != 10 {
			t.Errorf("expected default burst kept, got %d", cfg.WhatsApp.Limit.Burst)
		}
		if !cfg.Metrics.Enabled || cfg.Metrics.Address != ":9191" {
			t.Errorf("unexpected metrics config %+v", cfg.Metrics)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		if _, err := ParseConfig([]byte("ai: [")); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AI.Provider = "llama"
	cfg.Logging.Format = "xml"
	cfg.Dispatch.Schedule = "not a schedule"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"ai.provider", "logging.format", "dispatch.schedule"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("ARCABOT_TEST_KEY", "secret")

	tests := []struct {
		in   string
		want string
	}{
		{"key: ${ARCABOT_TEST_KEY}", "key: secret"},
		{"key: $ARCABOT_TEST_KEY", "key: secret"},
		{"key: ${ARCABOT_TEST_MISSING:-fallback}", "key: fallback"},
		{"key: ${ARCABOT_TEST_MISSING}", "key: ${ARCABOT_TEST_MISSING}"},
		{"key: ${ARCABOT_TEST_KEY:-fallback}", "key: secret"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	_, err := expandEnvVarsWithValidation("password: ${ARCABOT_TEST_MISSING:?set the db password}\nother: x")
	if err == nil || !strings.Contains(err.Error(), "set the db password") {
		t.Errorf("expected required variable error, got %v", err)
	}
	if strings.Contains(err.Error(), "other") {
		t.Errorf("expected message cut at end of line, got %v", err)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ARCABOT_TEST_DB", "bots.db")
	data := `
database:
  sqlite:
    path: ${ARCABOT_TEST_DB}
dispatch:
  uploads_dir: files
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("relative paths and keyring key", func(t *testing.T) {
		if err := StoreKeyring(KeyringKey("gemini"), "from-keyring"); err != nil {
			t.Fatalf("StoreKeyring failed: %v", err)
		}
		defer DeleteKeyring(KeyringKey("gemini"))

		cfg, err := LoadConfigFromFile(path)
		if err != nil {
			t.Fatalf("LoadConfigFromFile failed: %v", err)
		}
		if cfg.Database.SQLite.Path != filepath.Join(dir, "bots.db") {
			t.Errorf("expected sqlite path next to config, got %s", cfg.Database.SQLite.Path)
		}
		if cfg.Dispatch.Media.Dir != filepath.Join(dir, "files") {
			t.Errorf("expected uploads dir next to config, got %s", cfg.Dispatch.Media.Dir)
		}
		if cfg.AI.APIKey != "from-keyring" {
			t.Errorf("expected key from keyring, got %q", cfg.AI.APIKey)
		}
	})

	t.Run("environment wins over keyring", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "from-env")
		cfg, err := LoadConfigFromFile(path)
		if err != nil {
			t.Fatalf("LoadConfigFromFile failed: %v", err)
		}
		if cfg.AI.APIKey != "from-env" {
			t.Errorf("expected key from env, got %q", cfg.AI.APIKey)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfigFromFile(filepath.Join(dir, "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestSaveConfigToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "configs", "config.yaml")
	t.Setenv("GEMINI_API_KEY", "gm-123")

	cfg := DefaultConfig()
	cfg.AI.APIKey = "gm-123"
	if err := SaveConfigToFile(cfg, path); err != nil {
		t.Fatalf("SaveConfigToFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "gm-123") {
		t.Error("expected api key written as an env reference")
	}
	if !strings.Contains(string(data), "${GEMINI_API_KEY}") {
		t.Errorf("expected env reference in:\n%s", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600, got %04o", perm)
	}

	cfg.Name = "segunda"
	if err := SaveConfigToFile(cfg, path); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("expected backup file: %v", err)
	}

	loaded, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.Name != "segunda" || loaded.AI.APIKey != "gm-123" {
		t.Errorf("unexpected reloaded config name=%q key=%q", loaded.Name, loaded.AI.APIKey)
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if got := FindConfigFile(); got != "" {
		t.Errorf("expected no config, got %q", got)
	}
	if err := os.MkdirAll("configs", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile("configs/config.yaml", []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := FindConfigFile(); got != "configs/config.yaml" {
		t.Errorf("expected configs/config.yaml, got %q", got)
	}
	if err := os.WriteFile("arcabot.yaml", []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := FindConfigFile(); got != "arcabot.yaml" {
		t.Errorf("expected arcabot.yaml to take precedence, got %q", got)
	}
}

func TestKeyringKey(t *testing.T) {
	if got := KeyringKey("OpenAI"); got != "openai_api_key" {
		t.Errorf("expected openai_api_key, got %s", got)
	}
	if got := KeyringKey(""); got != "gemini_api_key" {
		t.Errorf("expected gemini_api_key, got %s", got)
	}
}
