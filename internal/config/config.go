package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	// AppDir is the per-user directory holding config, cache, journal and logs.
	AppDir = ".episode-matcher"

	ProviderTVDB = "tvdb"
	ProviderTMDB = "tmdb"

	IconsAuto  = "auto"
	IconsEmoji = "emoji"
	IconsASCII = "ascii"

	envTVDBKey  = "TVDB_API_KEY"
	envTMDBKey  = "TMDB_API_KEY"
	envProvider = "EPISODE_MATCHER_PROVIDER"
	envPager    = "PAGER"
)

// ErrMissingCredential reports that the selected metadata service has no API key.
var ErrMissingCredential = errors.New("missing API key")

// Config holds every user-tunable setting.
type Config struct {
	Provider    string `toml:"provider"`
	TVDBAPIKey  string `toml:"tvdb_api_key"`
	TMDBAPIKey  string `toml:"tmdb_api_key"`
	Language    string `toml:"language"`
	PromptSize  int64  `toml:"prompt_size"`
	TailSeconds int    `toml:"tail_seconds"`
	SampleFPS   int    `toml:"sample_fps"`

	SubtitleLanguage string `toml:"subtitle_language"`
	Pager            string `toml:"pager"`
	Placeholder      string `toml:"placeholder"`
	CachePath        string `toml:"cache_path"`

	// Icons is auto, emoji or ascii. Colors are lipgloss color strings; empty
	// keeps the built-in palette.
	Icons        string `toml:"icons"`
	PrimaryColor string `toml:"primary_color"`
	AccentColor  string `toml:"accent_color"`

	EnableLogging    bool `toml:"enable_logging"`
	LogRetentionDays int  `toml:"log_retention_days"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:         ProviderTVDB,
		Language:         "eng",
		PromptSize:       0,
		TailSeconds:      15,
		SampleFPS:        1,
		SubtitleLanguage: "eng",
		Pager:            "less",
		Placeholder:      "-",
		Icons:            IconsAuto,
		EnableLogging:    true,
		LogRetentionDays: 30,
	}
}

// Dir returns ~/.episode-matcher.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, AppDir), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultCachePath returns ~/.episode-matcher/cache.json.
func DefaultCachePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.json"), nil
}

// Load reads the configuration from disk and applies environment overrides.
// A .env file in the working directory is honoured but never overrides
// variables already set in the environment.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit file path.
func LoadFrom(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv()
	cfg.fillDefaults()

	if cfg.CachePath == "" {
		if cfg.CachePath, err = DefaultCachePath(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(envTVDBKey)); v != "" {
		c.TVDBAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(envTMDBKey)); v != "" {
		c.TMDBAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(envProvider)); v != "" {
		c.Provider = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(envPager)); v != "" {
		c.Pager = v
	}
}

func (c *Config) fillDefaults() {
	defaults := DefaultConfig()
	if c.Provider == "" {
		c.Provider = defaults.Provider
	}
	if c.Language == "" {
		c.Language = defaults.Language
	}
	if c.TailSeconds <= 0 {
		c.TailSeconds = defaults.TailSeconds
	}
	if c.SampleFPS <= 0 {
		c.SampleFPS = defaults.SampleFPS
	}
	if c.SubtitleLanguage == "" {
		c.SubtitleLanguage = defaults.SubtitleLanguage
	}
	if c.Pager == "" {
		c.Pager = defaults.Pager
	}
	if c.Placeholder == "" {
		c.Placeholder = defaults.Placeholder
	}
	if c.Icons == "" {
		c.Icons = defaults.Icons
	}
	if c.LogRetentionDays == 0 {
		c.LogRetentionDays = defaults.LogRetentionDays
	}
}

// APIKey returns the credential for the named provider or ErrMissingCredential.
func (c *Config) APIKey(provider string) (string, error) {
	var key, env string
	switch provider {
	case ProviderTVDB:
		key, env = c.TVDBAPIKey, envTVDBKey
	case ProviderTMDB:
		key, env = c.TMDBAPIKey, envTMDBKey
	default:
		return "", fmt.Errorf("unknown provider %q", provider)
	}
	if strings.TrimSpace(key) == "" {
		path, _ := ConfigPath()
		return "", fmt.Errorf("%w for %s: set %s or add %s_api_key to %s",
			ErrMissingCredential, provider, env, provider, path)
	}
	return key, nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderTVDB, ProviderTMDB:
	default:
		return fmt.Errorf("invalid provider %q: must be %s or %s", c.Provider, ProviderTVDB, ProviderTMDB)
	}
	if c.PromptSize < 0 {
		return fmt.Errorf("prompt_size must not be negative")
	}
	if len([]rune(c.Placeholder)) != 1 || strings.ContainsAny(c.Placeholder, `/\:*?"<>|`) {
		return fmt.Errorf("placeholder must be a single filesystem-safe character, got %q", c.Placeholder)
	}
	switch c.Icons {
	case IconsAuto, IconsEmoji, IconsASCII:
	default:
		return fmt.Errorf("invalid icons %q: must be %s, %s or %s", c.Icons, IconsAuto, IconsEmoji, IconsASCII)
	}
	return nil
}

// Save writes the configuration to ~/.episode-matcher/config.toml.
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
