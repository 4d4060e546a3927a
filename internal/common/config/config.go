// internal/common/config/config.go
package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BridgeConfig controls the two pub/sub channels between the panel and the
// page-side injector.
type BridgeConfig struct {
	ChannelPrefix string `mapstructure:"channel_prefix"`
	ReplyTimeout  int    `mapstructure:"reply_timeout"` // milliseconds
}

func (b BridgeConfig) ReplyTimeoutDuration() time.Duration {
	return time.Duration(b.ReplyTimeout) * time.Millisecond
}

// AnalysisConfig controls the remote scoring service client and the batch
// fan-out over discovered links.
type AnalysisConfig struct {
	ServiceURL  string `mapstructure:"service_url"`
	Timeout     int    `mapstructure:"timeout"` // milliseconds
	Concurrency int    `mapstructure:"concurrency"`
}

func (a AnalysisConfig) TimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Millisecond
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
