// Package config loads the ArcaBot YAML configuration, expanding
// environment references and resolving secrets from the environment and
// the OS keyring.
package config

import (
	"fmt"
	"strings"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/ai"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/database"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/dispatch"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/logging"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/metrics"
	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/transport/whatsapp"
)

// Config is the root configuration.
type Config struct {
	// Name identifies this instance in logs.
	Name string `yaml:"name"`

	Logging  logging.Config     `yaml:"logging"`
	Database database.HubConfig `yaml:"database"`
	WhatsApp whatsapp.Config    `yaml:"whatsapp"`
	AI       ai.Config          `yaml:"ai"`
	Dispatch dispatch.Config    `yaml:"dispatch"`
	Metrics  metrics.Config     `yaml:"metrics"`
}

// DefaultConfig returns a configuration that runs with SQLite and no
// config file.
func DefaultConfig() *Config {
	return &Config{
		Name:     "arcabot",
		Logging:  logging.DefaultConfig(),
		Database: database.DefaultHubConfig(),
		WhatsApp: whatsapp.DefaultConfig(),
		AI:       ai.DefaultConfig(),
		Dispatch: dispatch.DefaultConfig(),
		Metrics:  metrics.DefaultConfig(),
	}
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be text or json", c.Logging.Format))
	}

	switch c.Database.Backend {
	case "", database.BackendSQLite, database.BackendPostgreSQL:
	default:
		problems = append(problems, fmt.Sprintf("database.backend %q is not supported", c.Database.Backend))
	}

	switch strings.ToLower(c.AI.Provider) {
	case "", "gemini", "openai", "none":
	default:
		problems = append(problems, fmt.Sprintf("ai.provider %q must be gemini, openai or none", c.AI.Provider))
	}

	if c.WhatsApp.ReconnectDelay < 0 {
		problems = append(problems, "whatsapp.reconnect_delay must not be negative")
	}
	if c.WhatsApp.Limit.Rate < 0 || c.WhatsApp.Limit.Burst < 0 {
		problems = append(problems, "whatsapp.send_rate and send_burst must not be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		problems = append(problems, "metrics.address is required when metrics are enabled")
	}
	if err := c.Dispatch.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
