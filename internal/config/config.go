package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Placeholder values used when a required setting is not configured.
// Validate rejects them so a misconfigured run fails before any network call.
const (
	PlaceholderClientID     = "default_client_id_here"
	PlaceholderClientSecret = "default_client_secret_here"
	PlaceholderSonarrURL    = "default_sonarr_url_here"
	PlaceholderSonarrAPIKey = "default_sonarr_apikey_here"
)

const (
	defaultTraktURL    = "https://api.trakt.tv"
	defaultHistoryDays = 7
	defaultLogLevel    = "info"
	defaultLogFormat   = "text"
	tokenFileName      = "token.json"
)

// TraktConfig holds the registered OAuth application for the watch-history provider.
type TraktConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	URL          string `toml:"url"`
}

// SonarrConfig holds the library-manager endpoint and API key.
type SonarrConfig struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// CredentialsConfig points at the persisted authorization record.
type CredentialsConfig struct {
	Path string `toml:"path"`
}

// SweepConfig controls the reconciliation pass.
type SweepConfig struct {
	HistoryDays int  `toml:"history_days"`
	DryRun      bool `toml:"dry_run"`
}

// LogConfig controls log level and output format ("text" or "json").
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config holds all watchsweep configuration.
type Config struct {
	Trakt       TraktConfig       `toml:"trakt"`
	Sonarr      SonarrConfig      `toml:"sonarr"`
	Credentials CredentialsConfig `toml:"credentials"`
	Sweep       SweepConfig       `toml:"sweep"`
	Log         LogConfig         `toml:"log"`
}

// HistoryDaysOrDefault returns Sweep.HistoryDays if set, otherwise defaultHistoryDays.
func (c Config) HistoryDaysOrDefault() int {
	if c.Sweep.HistoryDays > 0 {
		return c.Sweep.HistoryDays
	}
	return defaultHistoryDays
}

// Validate reports every required setting that is still unset or a placeholder.
func (c Config) Validate() error {
	var problems []string
	if isUnset(c.Trakt.ClientID, PlaceholderClientID) {
		problems = append(problems, "trakt.client_id (TRAKT_ID)")
	}
	if isUnset(c.Trakt.ClientSecret, PlaceholderClientSecret) {
		problems = append(problems, "trakt.client_secret (TRAKT_SECRET)")
	}
	if isUnset(c.Sonarr.URL, PlaceholderSonarrURL) {
		problems = append(problems, "sonarr.url (SONARR_URL)")
	}
	if isUnset(c.Sonarr.APIKey, PlaceholderSonarrAPIKey) {
		problems = append(problems, "sonarr.api_key (SONARR_APIKEY)")
	}
	if len(problems) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(problems, ", "))
	}
	return nil
}

// ValidateTrakt is Validate restricted to the watch-history settings, for commands that never touch the library.
func (c Config) ValidateTrakt() error {
	if isUnset(c.Trakt.ClientID, PlaceholderClientID) || isUnset(c.Trakt.ClientSecret, PlaceholderClientSecret) {
		return errors.New("missing configuration: trakt.client_id and trakt.client_secret are required")
	}
	return nil
}

func isUnset(value, placeholder string) bool {
	v := strings.TrimSpace(value)
	return v == "" || v == placeholder
}

// Default returns a Config populated with placeholders and defaults.
func Default() Config {
	return Config{
		Trakt: TraktConfig{
			ClientID:     PlaceholderClientID,
			ClientSecret: PlaceholderClientSecret,
			URL:          defaultTraktURL,
		},
		Sonarr: SonarrConfig{
			URL:    PlaceholderSonarrURL,
			APIKey: PlaceholderSonarrAPIKey,
		},
		Credentials: CredentialsConfig{Path: DefaultCredentialsPath()},
		Sweep:       SweepConfig{HistoryDays: defaultHistoryDays},
		Log:         LogConfig{Level: defaultLogLevel, Format: defaultLogFormat},
	}
}

// LoadFrom reads configuration from the given TOML file path on top of Default.
// If the file does not exist, defaults are used without error.
// Environment variables always take precedence over file values:
//   - TRAKT_ID, TRAKT_CLIENT_ID, TRAKT_API_KEY override trakt.client_id
//   - TRAKT_SECRET, TRAKT_CLIENT_SECRET        override trakt.client_secret
//   - SONARR_URL                               overrides sonarr.url
//   - SONARR_APIKEY, SONARR_API_KEY            override sonarr.api_key
//   - WATCHSWEEP_CREDENTIALS                   overrides credentials.path
//   - TOKEN_PATH                               sets credentials.path to TOKEN_PATH/token.json
func LoadFrom(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Credentials.Path = expandHome(cfg.Credentials.Path)
	return cfg, nil
}

// DefaultConfigPath returns the default path for the watchsweep config file.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return home + "/.config/watchsweep/config.toml"
}

// DefaultCredentialsPath returns the default location of the persisted authorization.
func DefaultCredentialsPath() string {
	home, _ := os.UserHomeDir()
	return home + "/.config/watchsweep/trakt.json"
}

var envBindings = map[string][]string{
	"trakt.client_id":     {"TRAKT_ID", "TRAKT_CLIENT_ID", "TRAKT_API_KEY"},
	"trakt.client_secret": {"TRAKT_SECRET", "TRAKT_CLIENT_SECRET"},
	"trakt.url":           {"TRAKT_URL"},
	"sonarr.url":          {"SONARR_URL"},
	"sonarr.api_key":      {"SONARR_APIKEY", "SONARR_API_KEY"},
	"credentials.path":    {"WATCHSWEEP_CREDENTIALS"},
	"token_path":          {"TOKEN_PATH"},
	"sweep.history_days":  {"WATCHSWEEP_HISTORY_DAYS"},
	"log.level":           {"LOG_LEVEL"},
	"log.format":          {"LOG_FORMAT"},
}

func applyEnvOverrides(cfg *Config) error {
	v := viper.New()
	for key, names := range envBindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("binding %s: %w", key, err)
		}
	}

	setString := func(key string, dst *string) {
		if s := strings.TrimSpace(v.GetString(key)); s != "" {
			*dst = s
		}
	}
	setString("trakt.client_id", &cfg.Trakt.ClientID)
	setString("trakt.client_secret", &cfg.Trakt.ClientSecret)
	setString("trakt.url", &cfg.Trakt.URL)
	setString("sonarr.url", &cfg.Sonarr.URL)
	setString("sonarr.api_key", &cfg.Sonarr.APIKey)
	setString("log.level", &cfg.Log.Level)
	setString("log.format", &cfg.Log.Format)

	if dir := strings.TrimSpace(v.GetString("token_path")); dir != "" {
		cfg.Credentials.Path = filepath.Join(dir, tokenFileName)
	}
	setString("credentials.path", &cfg.Credentials.Path)

	if v.IsSet("sweep.history_days") {
		days := v.GetInt("sweep.history_days")
		if days <= 0 {
			return fmt.Errorf("WATCHSWEEP_HISTORY_DAYS must be a positive integer, got %q", v.GetString("sweep.history_days"))
		}
		cfg.Sweep.HistoryDays = days
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// Save writes cfg to the given TOML file path, creating parent directories as needed.
// Existing file contents are overwritten. Permissions on the written file are 0600.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	if encErr := toml.NewEncoder(f).Encode(cfg); encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}
