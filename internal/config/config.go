package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	MaxMessageBytes   int64   `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	HistoryLimit      int     `mapstructure:"history_limit" yaml:"history_limit"`
	ChatPoints        int64   `mapstructure:"chat_points" yaml:"chat_points"`
	ChatRatePerSecond float64 `mapstructure:"chat_rate_per_second" yaml:"chat_rate_per_second"`
	ChatBurst         int     `mapstructure:"chat_burst" yaml:"chat_burst"`
	SendQueueSize     int     `mapstructure:"send_queue_size" yaml:"send_queue_size"`

	// Presence mirror. Disabled when RedisAddr is empty.
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`

	// Media grants. Disabled unless all three are set.
	LiveKitURL       string `mapstructure:"livekit_url" yaml:"livekit_url"`
	LiveKitAPIKey    string `mapstructure:"livekit_api_key" yaml:"livekit_api_key"`
	LiveKitAPISecret string `mapstructure:"livekit_api_secret" yaml:"livekit_api_secret"`

	PaymentWebhookSecret string `mapstructure:"payment_webhook_secret" yaml:"payment_webhook_secret"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "astrotv.db",
		JWTSecret:         "dev-secret",
		MaxMessageBytes:   4096,
		HistoryLimit:      50,
		ChatPoints:        1,
		ChatRatePerSecond: 0,
		ChatBurst:         10,
		SendQueueSize:     64,
	}
}

// MediaEnabled reports whether viewer media grants can be issued.
func (c Config) MediaEnabled() bool {
	return c.LiveKitURL != "" && c.LiveKitAPIKey != "" && c.LiveKitAPISecret != ""
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	switch {
	case c.JWTSecret == "":
		return errors.New("config: jwt_secret is required")
	case c.HistoryLimit < 0:
		return fmt.Errorf("config: history_limit must be >= 0, got %d", c.HistoryLimit)
	case c.ChatPoints < 0:
		return fmt.Errorf("config: chat_points must be >= 0, got %d", c.ChatPoints)
	case c.SendQueueSize <= 0:
		return fmt.Errorf("config: send_queue_size must be > 0, got %d", c.SendQueueSize)
	case c.MaxMessageBytes <= 0:
		return fmt.Errorf("config: max_message_bytes must be > 0, got %d", c.MaxMessageBytes)
	}
	return nil
}
