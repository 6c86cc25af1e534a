package config

import (
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/victorbta777-del/arcabot-flow/pkg/arcabot/ai"
)

// KeyringService is the service name used in the OS keyring.
const KeyringService = "arcabot"

// KeyringKey returns the keyring entry holding the provider's API key.
func KeyringKey(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "" || p == "none" {
		p = "gemini"
	}
	return p + "_api_key"
}

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(KeyringService, key, value)
}

// GetKeyring returns a secret from the OS keyring, or "" when missing or
// the keyring is unavailable.
func GetKeyring(key string) string {
	val, err := keyring.Get(KeyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(KeyringService, key)
}

// ResolveAPIKey looks the provider's key up in the environment and then
// in the OS keyring.
func ResolveAPIKey(provider string) string {
	if key := os.Getenv(ai.KeyEnvVar(provider)); key != "" {
		return key
	}
	return GetKeyring(KeyringKey(provider))
}
