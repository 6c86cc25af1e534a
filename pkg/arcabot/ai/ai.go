// Package ai provides chat completion providers used by the auto-reply when
// a bot has AI mode enabled.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrDisabled is returned by the Disabled provider.
var ErrDisabled = errors.New("ai: provider disabled")

// Role is the author of a history turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation passed to a provider, oldest first.
type Turn struct {
	Role Role
	Text string
}

// Provider completes a conversation.
type Provider interface {
	// Complete returns the reply to message given the system instruction
	// and the prior history.
	Complete(ctx context.Context, systemInstruction string, history []Turn, message string) (string, error)
}

// Config holds AI provider settings.
type Config struct {
	// Provider is "gemini" (default), "openai" or "none".
	Provider string `yaml:"provider"`

	// Model overrides the provider default.
	Model string `yaml:"model"`

	// APIKey supports ${ENV_VAR} references. When empty the key is looked
	// up in the environment and then in the OS keyring.
	APIKey string `yaml:"api_key"`

	// BaseURL points the openai provider at a compatible endpoint.
	BaseURL string `yaml:"base_url"`

	// MaxOutputTokens caps the reply length.
	MaxOutputTokens int `yaml:"max_output_tokens"`

	// Timeout bounds one completion call.
	Timeout time.Duration `yaml:"timeout"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// DefaultConfig returns the default AI configuration.
func DefaultConfig() Config {
	return Config{
		Provider:        "gemini",
		MaxOutputTokens: 1000,
		Timeout:         30 * time.Second,
		Breaker:         DefaultBreakerConfig(),
	}
}

// KeyEnvVar returns the environment variable holding the provider's API
// key.
func KeyEnvVar(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}

// New builds the configured provider wrapped in a circuit breaker. A
// missing API key or the "none" provider yields a Disabled provider.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ai")

	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = "gemini"
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 1000
	}

	if name == "none" {
		return Disabled{Reason: "ai provider set to none"}, nil
	}
	if cfg.APIKey == "" {
		logger.Warn("ai: no api key configured, ai replies disabled", "provider", name, "env", KeyEnvVar(name))
		return Disabled{Reason: fmt.Sprintf("no api key for %s (set %s)", name, KeyEnvVar(name))}, nil
	}

	var (
		p   Provider
		err error
	)
	switch name {
	case "gemini":
		p, err = NewGemini(ctx, cfg)
	case "openai":
		p = NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 {
		p = withTimeout{next: p, timeout: cfg.Timeout}
	}

	logger.Info("ai: provider ready", "provider", name, "model", modelOrDefault(name, cfg.Model))
	return WithBreaker(p, name, cfg.Breaker, logger), nil
}

func modelOrDefault(provider, model string) string {
	if model != "" {
		return model
	}
	if provider == "openai" {
		return DefaultOpenAIModel
	}
	return DefaultGeminiModel
}

// Disabled always fails. It stands in when no provider can be built.
type Disabled struct {
	Reason string
}

func (d Disabled) Complete(context.Context, string, []Turn, string) (string, error) {
	if d.Reason == "" {
		return "", ErrDisabled
	}
	return "", fmt.Errorf("%w: %s", ErrDisabled, d.Reason)
}

type withTimeout struct {
	next    Provider
	timeout time.Duration
}

func (w withTimeout) Complete(ctx context.Context, system string, history []Turn, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return w.next.Complete(ctx, system, history, message)
}
