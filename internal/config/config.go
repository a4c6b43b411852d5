package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"YTO_ENV" default:"development"`

	HTTPPort    int           `envconfig:"YTO_HTTP_PORT" default:"8080"`
	HTTPTimeout time.Duration `envconfig:"YTO_HTTP_TIMEOUT" default:"15s"`

	YTDLPPath        string        `envconfig:"YTO_YTDLP_PATH" default:"yt-dlp"`
	DownloadDir      string        `envconfig:"YTO_DOWNLOAD_DIR" default:"./downloads"`
	ConcurrencyLimit int           `envconfig:"YTO_CONCURRENCY_LIMIT" default:"2"`
	TerminationGrace time.Duration `envconfig:"YTO_TERMINATION_GRACE" default:"5s"`

	StateFile    string `envconfig:"YTO_STATE_FILE" default:"./state/jobs.json"`
	LogTailLines int    `envconfig:"YTO_LOG_TAIL_LINES" default:"500"`
	EventBuffer  int    `envconfig:"YTO_EVENT_BUFFER" default:"64"`

	RetentionAge   time.Duration `envconfig:"YTO_RETENTION_AGE" default:"24h"`
	RetentionSweep time.Duration `envconfig:"YTO_RETENTION_SWEEP" default:"1h"`

	ShutdownTimeout time.Duration `envconfig:"YTO_SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"YTO_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"YTO_LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.YTDLPPath == "" {
		return fmt.Errorf("downloader path cannot be empty")
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("download directory cannot be empty")
	}

	if c.ConcurrencyLimit < 1 {
		return fmt.Errorf("concurrency limit must be at least 1: %d", c.ConcurrencyLimit)
	}
	if c.TerminationGrace <= 0 {
		return fmt.Errorf("termination grace must be positive: %s", c.TerminationGrace)
	}

	if c.LogTailLines <= 0 {
		return fmt.Errorf("log tail lines must be positive: %d", c.LogTailLines)
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("event buffer must be positive: %d", c.EventBuffer)
	}

	if c.RetentionAge <= 0 {
		return fmt.Errorf("retention age must be positive: %s", c.RetentionAge)
	}
	if c.RetentionSweep <= 0 {
		return fmt.Errorf("retention sweep interval must be positive: %s", c.RetentionSweep)
	}

	return nil
}
