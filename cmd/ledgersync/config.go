package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds process configuration, loaded from environment variables
// with an optional config file underneath.
type Config struct {
	APIBaseURL string
	APIToken   string

	PageSize          int
	FullSync          bool
	SyncInterval      time.Duration
	ResumeWindow      time.Duration
	EnrichConcurrency int
	CacheTTL          time.Duration

	RedisAddr   string
	DatabaseURL string
	StateFile   string
	OutputFile  string

	HTTPAddr string
}

// LoadConfig loads configuration: defaults, then an optional config file,
// then environment variables on top.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("ledgersync")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	v.AutomaticEnv()

	config := &Config{
		APIBaseURL:        v.GetString("API_BASE_URL"),
		APIToken:          v.GetString("API_TOKEN"),
		PageSize:          v.GetInt("PAGE_SIZE"),
		FullSync:          v.GetBool("FULL_SYNC"),
		SyncInterval:      v.GetDuration("SYNC_INTERVAL"),
		ResumeWindow:      v.GetDuration("RESUME_WINDOW"),
		EnrichConcurrency: v.GetInt("ENRICH_CONCURRENCY"),
		CacheTTL:          v.GetDuration("CACHE_TTL"),
		RedisAddr:         v.GetString("REDIS_ADDR"),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		StateFile:         v.GetString("STATE_FILE"),
		OutputFile:        v.GetString("OUTPUT_FILE"),
		HTTPAddr:          v.GetString("HTTP_ADDR"),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("API_BASE_URL", "https://api.up.com.au/api/v1")
	v.SetDefault("PAGE_SIZE", 100)
	v.SetDefault("FULL_SYNC", false)
	v.SetDefault("SYNC_INTERVAL", time.Duration(0))
	v.SetDefault("RESUME_WINDOW", time.Minute)
	v.SetDefault("ENRICH_CONCURRENCY", 8)
	v.SetDefault("CACHE_TTL", 5*time.Minute)
	v.SetDefault("STATE_FILE", "data/sync_state.json")
	v.SetDefault("HTTP_ADDR", ":8080")
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.APIToken == "" {
		return errors.New("API_TOKEN is required")
	}
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", c.PageSize)
	}
	return nil
}
