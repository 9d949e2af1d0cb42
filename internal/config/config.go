package config

import "time"

// Config holds engine and daemon configuration values.
type Config struct {
	HubURL    string `mapstructure:"hub_url" yaml:"hub_url"`
	TokenPath string `mapstructure:"token_path" yaml:"token_path"`
	CachePath string `mapstructure:"cache_path" yaml:"cache_path"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`

	// DebugAddr is the local read-only status/metrics API. Empty disables it.
	DebugAddr string `mapstructure:"debug_addr" yaml:"debug_addr"`

	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	BackoffMin       time.Duration `mapstructure:"backoff_min" yaml:"backoff_min"`
	BackoffMax       time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`
	SealCooldown     time.Duration `mapstructure:"seal_cooldown" yaml:"seal_cooldown"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	HistoryThreshold     int           `mapstructure:"history_threshold" yaml:"history_threshold"`
	ReadPositionInterval time.Duration `mapstructure:"read_position_interval" yaml:"read_position_interval"`
	MembersPollInterval  time.Duration `mapstructure:"members_poll_interval" yaml:"members_poll_interval"`
	TypingIdle           time.Duration `mapstructure:"typing_idle" yaml:"typing_idle"`

	NotifyDesktop bool `mapstructure:"notify_desktop" yaml:"notify_desktop"`
	NotifySound   bool `mapstructure:"notify_sound" yaml:"notify_sound"`
	NotifyVoice   bool `mapstructure:"notify_voice" yaml:"notify_voice"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		HubURL:               "ws://localhost:9200/ws",
		TokenPath:            "fiora-sync.token",
		CachePath:            "fiora-sync.db",
		LogLevel:             "info",
		DebugAddr:            "127.0.0.1:9300",
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		BackoffMin:           500 * time.Millisecond,
		BackoffMax:           30 * time.Second,
		SealCooldown:         time.Minute,
		ShutdownTimeout:      5 * time.Second,
		HistoryThreshold:     15,
		ReadPositionInterval: 30 * time.Second,
		MembersPollInterval:  60 * time.Second,
		TypingIdle:           3 * time.Second,
		NotifyDesktop:        true,
		NotifySound:          true,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.HubURL != "" {
		c.HubURL = other.HubURL
	}
	if other.TokenPath != "" {
		c.TokenPath = other.TokenPath
	}
	if other.CachePath != "" {
		c.CachePath = other.CachePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DebugAddr != "" {
		c.DebugAddr = other.DebugAddr
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}
