// Package config initializes the application's configuration. It uses the
// Viper library to read settings from a config file, environment variables,
// and command-line flags, providing a unified configuration system.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// InitConfig installs defaults and wires environment overrides. It is designed
// to be called once at startup, before any typed Load function runs. An empty
// cfgFile falls back to the standard search paths.
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("novelpress")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.novelpress")
		viper.AddConfigPath("/etc/novelpress/")
	}

	const defaultUA = "novelpress/1.0 (+https://github.com/tanukirift/novelpress)"
	viper.SetDefault("fetch.user_agent", defaultUA)
	viper.SetDefault("fetch.retries", 3)
	viper.SetDefault("fetch.backoff_base", "500ms")
	viper.SetDefault("fetch.timeout", "15s")
	viper.SetDefault("fetch.host_qps", 2.0)

	viper.SetDefault("harvest.output_dir", "data/works")
	viper.SetDefault("harvest.concurrency", 4)
	viper.SetDefault("harvest.delay", "1s")
	viper.SetDefault("harvest.max_episodes", 0)

	viper.SetDefault("translate.provider", "claude")
	viper.SetDefault("translate.model", "")
	viper.SetDefault("translate.target_lang", "English")
	viper.SetDefault("translate.concurrency", 2)
	viper.SetDefault("translate.delay", "500ms")
	viper.SetDefault("translate.max_attempts", 3)
	viper.SetDefault("translate.backoff_base", "2s")
	viper.SetDefault("translate.timeout", "120s")
	viper.SetDefault("translate.max_tokens", 8192)

	viper.SetDefault("server.addr", ":8080")

	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.table", "chapters")

	viper.SetEnvPrefix("NOVELPRESS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Missing config file is fine; defaults and env cover everything.
	_ = viper.ReadInConfig()
}

// Fetch holds the resilient HTTP layer settings.
type Fetch struct {
	UserAgent   string
	Retries     int
	BackoffBase time.Duration
	Timeout     time.Duration
	HostQPS     float64
}

// Harvest holds batch harvesting settings.
type Harvest struct {
	OutputDir   string
	Concurrency int
	Delay       time.Duration
	MaxEpisodes int
}

// Translate holds translation stage settings.
type Translate struct {
	Provider    string
	Model       string
	APIKey      string
	TargetLang  string
	Concurrency int
	Delay       time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// Database holds publication sink settings.
type Database struct {
	DSN   string
	Table string
}

// LoadFetch constructs Fetch from Viper.
func LoadFetch(v *viper.Viper) (Fetch, error) {
	cfg := Fetch{
		UserAgent:   v.GetString("fetch.user_agent"),
		Retries:     v.GetInt("fetch.retries"),
		BackoffBase: v.GetDuration("fetch.backoff_base"),
		Timeout:     v.GetDuration("fetch.timeout"),
		HostQPS:     v.GetFloat64("fetch.host_qps"),
	}
	return cfg, cfg.Validate()
}

// Validate checks for obviously bad configuration combinations.
func (c Fetch) Validate() error {
	if c.Retries < 0 {
		return fmt.Errorf("fetch.retries must be >= 0, got %d", c.Retries)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive, got %s", c.Timeout)
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("fetch.backoff_base must be positive, got %s", c.BackoffBase)
	}
	return nil
}

// LoadHarvest constructs Harvest from Viper.
func LoadHarvest(v *viper.Viper) (Harvest, error) {
	cfg := Harvest{
		OutputDir:   v.GetString("harvest.output_dir"),
		Concurrency: v.GetInt("harvest.concurrency"),
		Delay:       v.GetDuration("harvest.delay"),
		MaxEpisodes: v.GetInt("harvest.max_episodes"),
	}
	return cfg, cfg.Validate()
}

// Validate checks harvest settings.
func (c Harvest) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("harvest.output_dir is required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("harvest.concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.MaxEpisodes < 0 {
		return fmt.Errorf("harvest.max_episodes must be >= 0, got %d", c.MaxEpisodes)
	}
	return nil
}

// LoadTranslate constructs Translate from Viper. The API key is read from
// provider-specific env vars first so secrets stay out of config files.
func LoadTranslate(v *viper.Viper) (Translate, error) {
	cfg := Translate{
		Provider:    strings.ToLower(v.GetString("translate.provider")),
		Model:       v.GetString("translate.model"),
		APIKey:      v.GetString("translate.api_key"),
		TargetLang:  v.GetString("translate.target_lang"),
		Concurrency: v.GetInt("translate.concurrency"),
		Delay:       v.GetDuration("translate.delay"),
		MaxAttempts: v.GetInt("translate.max_attempts"),
		BackoffBase: v.GetDuration("translate.backoff_base"),
		Timeout:     v.GetDuration("translate.timeout"),
		MaxTokens:   v.GetInt("translate.max_tokens"),
		Temperature: v.GetFloat64("translate.temperature"),
	}
	return cfg, cfg.Validate()
}

// Validate checks translation settings.
func (c Translate) Validate() error {
	switch c.Provider {
	case "claude", "gemini":
	default:
		return fmt.Errorf("translate.provider must be claude or gemini, got %q", c.Provider)
	}
	if c.TargetLang == "" {
		return fmt.Errorf("translate.target_lang is required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("translate.concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("translate.max_attempts must be >= 1, got %d", c.MaxAttempts)
	}
	return nil
}

// LoadDatabase constructs Database from Viper.
func LoadDatabase(v *viper.Viper) Database {
	return Database{
		DSN:   v.GetString("database.dsn"),
		Table: v.GetString("database.table"),
	}
}
