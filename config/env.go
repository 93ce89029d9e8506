package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvNodeURL       = "NODE_URL"
	EnvPrivateKey    = "PRIVATE_KEY"
	EnvTrustedRelay  = "TRUSTED_RELAY"
	EnvEngineAddress = "ENGINE_ADDRESS"
	EnvLogLevel      = "LOG_LEVEL"
	EnvAdminSecret   = "ADMIN_SECRET"
)

// LoadEnv loads environment variables from .env files. Missing files are
// not an error and variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overrides file settings with environment variables
func (c *Config) ApplyEnv() {
	c.NodeURL = GetEnvWithDefault(EnvNodeURL, c.NodeURL)
	c.PrivateKey = GetEnvWithDefault(EnvPrivateKey, c.PrivateKey)
	c.Risk.TrustedRelay = GetEnvWithDefault(EnvTrustedRelay, c.Risk.TrustedRelay)
	c.EngineAddress = GetEnvWithDefault(EnvEngineAddress, c.EngineAddress)
	c.Logging.Level = GetEnvWithDefault(EnvLogLevel, c.Logging.Level)
	c.Admin.Secret = GetEnvWithDefault(EnvAdminSecret, c.Admin.Secret)
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
