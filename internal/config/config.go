// Package config holds the process-wide viper configuration singleton.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DirName is the per-project data directory.
const DirName = ".mnemo"

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Precedence: project .mnemo/config.yaml > ~/.config/mn/config.yaml > ~/.mnemo/config.yaml
	configFileSet := false

	// 1. Walk up from CWD so commands work from subdirectories.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, DirName, "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// 2. User config directory (~/.config/mn/config.yaml)
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "mn", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// 3. Home directory (~/.mnemo/config.yaml)
	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configPath := filepath.Join(homeDir, DirName, "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
			}
		}
	}

	// Environment variables take precedence over the config file,
	// e.g. MN_DB, MN_ACTOR, MN_NO_DAEMON.
	v.SetEnvPrefix("MN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("no-daemon", false)
	v.SetDefault("db", "")
	v.SetDefault("actor", "")
	v.SetDefault("lock-timeout", "30s")

	// Semantic scorer collaborators
	v.SetDefault("embed.model", "nomic-embed-text")
	v.SetDefault("embed.enabled", true)

	// Hybrid retrieval weight defaults
	v.SetDefault("retrieval.weight-lexical", 0.3)
	v.SetDefault("retrieval.weight-semantic", 0.5)
	v.SetDefault("retrieval.weight-graph", 0.2)

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}
	return nil
}

func ensure() *viper.Viper {
	if v == nil {
		_ = Initialize()
	}
	return v
}

// GetString returns a string config value.
func GetString(key string) string { return ensure().GetString(key) }

// GetBool returns a boolean config value.
func GetBool(key string) bool { return ensure().GetBool(key) }

// GetFloat64 returns a float config value.
func GetFloat64(key string) float64 { return ensure().GetFloat64(key) }

// Set overrides a config value. Intended for initialization and tests.
func Set(key string, value any) { ensure().Set(key, value) }

// FindDir walks up from the working directory looking for a .mnemo
// directory. Returns the empty string when none exists.
func FindDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	return ""
}

// DatabasePath resolves the database location: explicit config first,
// then the nearest .mnemo directory.
func DatabasePath() string {
	if db := GetString("db"); db != "" {
		return db
	}
	if dir := FindDir(); dir != "" {
		return filepath.Join(dir, "mnemo.db")
	}
	return ""
}

// PolicyPath returns the policy file location for the nearest .mnemo
// directory, or empty when outside a workspace.
func PolicyPath() string {
	if dir := FindDir(); dir != "" {
		return filepath.Join(dir, "policy.toml")
	}
	return ""
}
