// Package config loads server settings from defaults, WHITEBOARD_* env
// vars, an optional yaml file and command line flags, in increasing order
// of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	APIListenAddr string `mapstructure:"api-listen-addr"`
	WSListenAddr  string `mapstructure:"ws-listen-addr"`
	LogLevel      string `mapstructure:"log-level"`

	ReadLimit     int64         `mapstructure:"read-limit"`
	SendQueueLen  int           `mapstructure:"send-queue-len"`
	PingInterval  time.Duration `mapstructure:"ping-interval"`
	PongWait      time.Duration `mapstructure:"pong-wait"`
	WriteDeadline time.Duration `mapstructure:"write-deadline"`
}

// Load resolves the configuration. The flag set must already be parsed;
// file is an optional yaml config path.
func Load(fs *pflag.FlagSet, file string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api-listen-addr", ":8080")
	v.SetDefault("ws-listen-addr", ":8888")
	v.SetDefault("log-level", "debug")
	v.SetDefault("read-limit", 32768)
	v.SetDefault("send-queue-len", 256)
	v.SetDefault("ping-interval", "5s")
	v.SetDefault("pong-wait", "7s")
	v.SetDefault("write-deadline", "5s")

	v.SetEnvPrefix("whiteboard")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
