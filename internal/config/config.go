// Package config loads the application configuration from a YAML file,
// a .env file, and environment variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Targets  TargetsConfig  `mapstructure:"targets"`
	Download DownloadConfig `mapstructure:"download"`
	Filter   FilterConfig   `mapstructure:"filter"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
}

type APIConfig struct {
	// Token is the API bearer token. Required for restricted content.
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
}

type TargetsConfig struct {
	// Users are usernames, numeric ids, or profile URLs.
	Users []string `mapstructure:"users"`

	// Collections are collection ids or collection URLs.
	Collections []string `mapstructure:"collections"`
}

type DownloadConfig struct {
	OutputDir string `mapstructure:"output_dir"`

	// Concurrency is the per-unit download pool size.
	Concurrency int `mapstructure:"concurrency"`

	// UnitConcurrency is how many units run simultaneously.
	UnitConcurrency int `mapstructure:"unit_concurrency"`
}

type FilterConfig struct {
	// After keeps only items created after this date, formatted as
	// "2006-01" or "2006-01-02". Empty disables the bound.
	After string `mapstructure:"after"`

	// ExcludedTagIDs is forwarded to collection queries.
	ExcludedTagIDs []int64 `mapstructure:"excluded_tag_ids"`
}

type CacheConfig struct {
	// Enabled switches the Redis resolver cache on.
	Enabled   bool   `mapstructure:"enabled"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ParseDate parses a "2006-01" or "2006-01-02" date. The month form means
// the first of the month; an empty string yields the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM or YYYY-MM-DD", s)
}

// AfterTime parses the After date.
func (f FilterConfig) AfterTime() (time.Time, error) {
	return ParseDate(f.After)
}

// Validate checks constraints a run cannot recover from.
func (c *Config) Validate() error {
	if len(c.Targets.Users) == 0 && len(c.Targets.Collections) == 0 {
		return fmt.Errorf("no targets configured: set targets.users or targets.collections")
	}
	if c.Download.OutputDir == "" {
		return fmt.Errorf("download.output_dir cannot be empty")
	}
	if _, err := c.Filter.AfterTime(); err != nil {
		return err
	}
	return nil
}

// Load reads the configuration. An explicit configPath must exist; with an
// empty path the default locations are searched and a missing file is
// fine.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("api.base_url", "https://civitai.com")
	v.SetDefault("targets.users", []string{})
	v.SetDefault("targets.collections", []string{})
	v.SetDefault("download.output_dir", "./downloads")
	v.SetDefault("download.concurrency", 2)
	v.SetDefault("download.unit_concurrency", 2)
	v.SetDefault("filter.excluded_tag_ids", []int64{})
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("api.token", "CIVITAI_TOKEN")
	v.BindEnv("cache.redis_addr", "REDIS_ADDR")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
