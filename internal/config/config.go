// Package config loads engine configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config holds all engine settings. Monetary limits arrive as strings and
// are parsed into decimals so no precision is lost on the way in.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	// OracleURL points at the randomness coordinator. Empty enables the
	// local dev source.
	OracleURL string `env:"ORACLE_URL"`

	// OperatorKeys are the principals granted the privileged operation set.
	OperatorKeys []string `env:"OPERATOR_KEYS" envSeparator:","`

	MinBetRaw      string `env:"MIN_BET" envDefault:"1"`
	MaxBetRaw      string `env:"MAX_BET" envDefault:"10000"`
	BotBankrollRaw string `env:"BOT_BANKROLL" envDefault:"100000"`
	BotCount       int    `env:"BOT_COUNT" envDefault:"10"`

	WeekDuration time.Duration `env:"WEEK_DURATION" envDefault:"168h"`
	ClaimWindow  time.Duration `env:"REBATE_CLAIM_WINDOW" envDefault:"168h"`
	CacheTTL     time.Duration `env:"CACHE_TTL" envDefault:"30s"`

	MinBet      decimal.Decimal `env:"-"`
	MaxBet      decimal.Decimal `env:"-"`
	BotBankroll decimal.Decimal `env:"-"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var err error
	if cfg.MinBet, err = decimal.NewFromString(cfg.MinBetRaw); err != nil {
		return nil, fmt.Errorf("config: invalid MIN_BET %q: %w", cfg.MinBetRaw, err)
	}
	if cfg.MaxBet, err = decimal.NewFromString(cfg.MaxBetRaw); err != nil {
		return nil, fmt.Errorf("config: invalid MAX_BET %q: %w", cfg.MaxBetRaw, err)
	}
	if cfg.BotBankroll, err = decimal.NewFromString(cfg.BotBankrollRaw); err != nil {
		return nil, fmt.Errorf("config: invalid BOT_BANKROLL %q: %w", cfg.BotBankrollRaw, err)
	}

	if cfg.MinBet.GreaterThan(cfg.MaxBet) {
		return nil, fmt.Errorf("config: MIN_BET %s exceeds MAX_BET %s", cfg.MinBet, cfg.MaxBet)
	}
	return &cfg, nil
}
