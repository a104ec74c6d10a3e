package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the runtime configuration of the riskeval command. Values are
// resolved in order of increasing precedence: built-in defaults, an optional
// .env file, RISKEVAL_* environment variables, then flags.
type Config struct {
	Env              string        `mapstructure:"env"`
	LogLevel         string        `mapstructure:"log_level"`
	AmountLimitCents int           `mapstructure:"amount_limit_cents"`
	BlockedCountry   string        `mapstructure:"blocked_country"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

var (
	envFile string
	cfg     Config
)

func initConfig() {
	// Non-fatal: .env may not exist outside local development.
	if envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load()
	}

	viper.SetDefault("env", "local")
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("amount_limit_cents", 50_00)
	viper.SetDefault("blocked_country", "XX")
	viper.SetDefault("cache_ttl", 10*time.Minute)

	viper.SetEnvPrefix("riskeval")
	viper.AutomaticEnv()

	_ = viper.Unmarshal(&cfg)
}

// newLogger builds the process logger from the configured level. Unknown
// levels fall back to warn rather than failing startup.
func newLogger(cfg Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
