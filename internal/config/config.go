package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	MaxMessageLen  int `mapstructure:"max_message_len"`
	MaxConnections int `mapstructure:"max_connections"`

	TypingTTL           time.Duration `mapstructure:"typing_ttl"`
	TypingSweepInterval time.Duration `mapstructure:"typing_sweep_interval"`

	SendBuffer int           `mapstructure:"send_buffer"`
	SlowGrace  time.Duration `mapstructure:"slow_grace"`

	RateLimitBurst    int           `mapstructure:"rate_limit_burst"`
	RateLimitInterval time.Duration `mapstructure:"rate_limit_interval"`

	MaxDecodeErrors int  `mapstructure:"max_decode_errors"`
	RenameBroadcast bool `mapstructure:"rename_broadcast"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 4096)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("max_message_len", 512)
	v.SetDefault("max_connections", 1024)
	v.SetDefault("typing_ttl", "7s")
	v.SetDefault("typing_sweep_interval", "2s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("slow_grace", "10s")
	v.SetDefault("rate_limit_burst", 10)
	v.SetDefault("rate_limit_interval", "1s")
	v.SetDefault("max_decode_errors", 5)
	v.SetDefault("rename_broadcast", false)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}
