package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sewardrichard/cost2class/internal/core"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// GitHub sync. Optional: the app is fully usable offline. Values set
	// through the sync settings page are stored in SQLite and take
	// precedence over these environment defaults.
	GitHubOwner string
	GitHubRepo  string
	GitHubToken string
	GitHubPath  string

	// Remote push
	SyncTimeout time.Duration

	// Default annual budget shown before any items exist, in rands.
	DefaultCurrency string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8082"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/cost2class.db"),

		GitHubOwner: getEnv("GITHUB_OWNER", ""),
		GitHubRepo:  getEnv("GITHUB_REPO", ""),
		GitHubToken: getEnv("GITHUB_TOKEN", ""),
		GitHubPath:  getEnv("GITHUB_PATH", "data.json"),

		SyncTimeout: getEnvDuration("SYNC_TIMEOUT", 30*time.Second),

		DefaultCurrency: getEnv("CURRENCY_SYMBOL", "R"),
	}

	return cfg
}

// SyncConfig returns the GitHub settings in domain form.
func (c *Config) SyncConfig() core.SyncConfig {
	return core.SyncConfig{
		Owner: c.GitHubOwner,
		Repo:  c.GitHubRepo,
		Token: c.GitHubToken,
		Path:  c.GitHubPath,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate SQLite configuration
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// GitHub sync is all-or-nothing: a partial triple is a misconfiguration,
	// not an offline setup.
	ghSet := 0
	for _, v := range []string{c.GitHubOwner, c.GitHubRepo, c.GitHubToken} {
		if v != "" {
			ghSet++
		}
	}
	if ghSet > 0 && ghSet < 3 {
		errors = append(errors, "GITHUB_OWNER, GITHUB_REPO and GITHUB_TOKEN must be set together or not at all")
	}
	if ghSet == 3 && c.GitHubPath == "" {
		errors = append(errors, "GITHUB_PATH cannot be empty when GitHub sync is configured")
	}

	if c.SyncTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync timeout %v: must be at least 1 second", c.SyncTimeout))
	} else if c.SyncTimeout > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync timeout %v: must be at most 1 hour", c.SyncTimeout))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
