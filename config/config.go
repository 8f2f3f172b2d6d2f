package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/RyanBlaney/sonido-markers/analyzer"
	"github.com/RyanBlaney/sonido-markers/cache"
	"github.com/RyanBlaney/sonido-markers/logging"
	"github.com/RyanBlaney/sonido-markers/transcode"
	"github.com/RyanBlaney/sonido-markers/transcribe"
)

// Config is the process configuration. It is loaded once and not mutated afterwards.
type Config struct {
	Server   ServerConfig              `toml:"server"`
	Analysis analyzer.Params           `toml:"analysis"`
	Decoder  transcode.DecoderConfig   `toml:"decoder"`
	Deepgram transcribe.DeepgramConfig `toml:"deepgram"`
	Redis    cache.RedisConfig         `toml:"redis"`
	Logging  LoggingConfig             `toml:"logging"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr            string        `toml:"addr"`
	DefaultMode     string        `toml:"default_mode"`
	MaxUploadBytes  int64         `toml:"max_upload_bytes"`
	FetchTimeout    time.Duration `toml:"fetch_timeout"`
	RequestTimeout  time.Duration `toml:"request_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// LoggingConfig selects the logger backend
type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // "json" (zap) or "text"
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			DefaultMode:     string(analyzer.ModeFull),
			MaxUploadBytes:  200 << 20,
			FetchTimeout:    2 * time.Minute,
			RequestTimeout:  10 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Analysis: analyzer.DefaultParams(),
		Decoder:  *transcode.DefaultDecoderConfig(),
		Deepgram: transcribe.DefaultDeepgramConfig(),
		Redis: cache.RedisConfig{
			TTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load layers defaults, the TOML file at path (skipped when path is empty),
// a .env file in the working directory and finally the process environment.
// Variables already set in the environment win over .env entries.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if value, ok := os.LookupEnv(key); ok && value != "" {
			*dst = value
		}
	}

	setString("DEEPGRAM_API_KEY", &c.Deepgram.APIKey)
	setString("SONIDO_ADDR", &c.Server.Addr)
	setString("SONIDO_MODE", &c.Server.DefaultMode)
	setString("SONIDO_LOG_LEVEL", &c.Logging.Level)
	setString("SONIDO_LOG_FORMAT", &c.Logging.Format)
	setString("SONIDO_LOG_FILE", &c.Logging.File)
	setString("SONIDO_REDIS_ADDR", &c.Redis.Addr)
	setString("SONIDO_REDIS_PASSWORD", &c.Redis.Password)
	setString("FFMPEG_PATH", &c.Decoder.FFmpegPath)
	setString("FFPROBE_PATH", &c.Decoder.FFprobePath)

	if value, ok := os.LookupEnv("SONIDO_REDIS_DB"); ok && value != "" {
		db, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SONIDO_REDIS_DB %q: %w", value, err)
		}
		c.Redis.DB = db
	}

	return nil
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("invalid analysis config: %w", err)
	}
	if _, err := analyzer.ParseMode(c.Server.DefaultMode); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("invalid server config: empty listen address")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid server config: max_upload_bytes must be positive")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format %q (want json or text)", c.Logging.Format)
	}
	return nil
}

// TranscriptionEnabled reports whether a Deepgram key is configured
func (c *Config) TranscriptionEnabled() bool {
	return c.Deepgram.APIKey != ""
}

// CacheEnabled reports whether a Redis address is configured
func (c *Config) CacheEnabled() bool {
	return c.Redis.Addr != ""
}

// NewLogger builds the logger described by the logging section
func (c *Config) NewLogger() (logging.Logger, error) {
	level := logging.ParseLevel(c.Logging.Level)

	if strings.ToLower(c.Logging.Format) == "text" {
		logger := logging.NewDefaultLogger()
		logger.SetLevel(level)
		return logger, nil
	}

	logger, err := logging.NewZapLogger(logging.ZapConfig{
		Level:      level,
		OutputPath: c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   true,
	})
	if err != nil {
		return nil, err
	}
	return logger, nil
}
