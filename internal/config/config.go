package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	LedgerLockRedis = "redis"
	LedgerLockLocal = "local"
	LedgerLockNone  = "none"
)

type Config struct {
	DatabaseDSN    string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL    string `env:"RABBITMQ_URL,required=true"`
	RedisURL       string `env:"REDIS_URL,required=true"`
	SMSProviderURL string `env:"SMS_PROVIDER_URL,required=true"`
	SMSFromNumber  string `env:"SMS_FROM_NUMBER,required=true"`

	SMSProviderTimeout time.Duration `env:"SMS_PROVIDER_TIMEOUT,default=10s"`
	RateLimitPerSec    int           `env:"RATE_LIMIT_PER_SEC,default=100"`

	FallbackDelay        time.Duration `env:"FALLBACK_DELAY,default=5m"`
	FallbackScanInterval time.Duration `env:"FALLBACK_SCAN_INTERVAL,default=30s"`
	FallbackScanLimit    int           `env:"FALLBACK_SCAN_LIMIT,default=200"`
	FallbackConcurrency  int           `env:"FALLBACK_CONCURRENCY,default=8"`
	FallbackMaxAttempts  int           `env:"FALLBACK_MAX_ATTEMPTS,default=3"`
	FallbackRetryBackoff time.Duration `env:"FALLBACK_RETRY_BACKOFF,default=5m"`
	FallbackCycleTimeout time.Duration `env:"FALLBACK_CYCLE_TIMEOUT,default=2m"`

	LedgerLockMode        string        `env:"LEDGER_LOCK_MODE,default=redis"`
	TrialCredits          int           `env:"TRIAL_CREDITS,default=50"`
	TrialDuration         time.Duration `env:"TRIAL_DURATION,default=336h"`
	SubscriptionCreditTTL time.Duration `env:"SUBSCRIPTION_CREDIT_TTL,default=720h"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.LedgerLockMode = strings.ToLower(strings.TrimSpace(c.LedgerLockMode))
	switch c.LedgerLockMode {
	case LedgerLockRedis, LedgerLockLocal, LedgerLockNone:
	default:
		return fmt.Errorf("invalid LEDGER_LOCK_MODE %q", c.LedgerLockMode)
	}

	if c.FallbackScanInterval <= 0 {
		return fmt.Errorf("FALLBACK_SCAN_INTERVAL must be positive")
	}
	if c.FallbackMaxAttempts < 1 {
		return fmt.Errorf("FALLBACK_MAX_ATTEMPTS must be at least 1")
	}
	if c.TrialCredits < 0 {
		return fmt.Errorf("TRIAL_CREDITS must not be negative")
	}
	return nil
}
