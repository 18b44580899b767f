package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "GROUPBUY"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App      AppConfig
	Ledger   LedgerConfig
	Redis    RedisConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Bank     BankConfig
	Eventing EventingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GROUPBUY_APP_ENV" required:"true"`
	Port         string `envconfig:"GROUPBUY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"GROUPBUY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GROUPBUY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// LedgerConfig carries the global platform parameters. Settlement reads the
// values in force at fulfillment time, not the values at order creation.
type LedgerConfig struct {
	PlatformFeeBps    int64         `envconfig:"GROUPBUY_PLATFORM_FEE_BPS" default:"100"`
	RewardPoolBps     int64         `envconfig:"GROUPBUY_REWARD_POOL_BPS" default:"50"`
	StakeAmount       int64         `envconfig:"GROUPBUY_STAKE_AMOUNT" default:"0"`
	PlatformAccount   uuid.UUID     `envconfig:"GROUPBUY_PLATFORM_ACCOUNT" required:"true"`
	AdminAccount      uuid.UUID     `envconfig:"GROUPBUY_ADMIN_ACCOUNT"`
	DefaultJoinWindow time.Duration `envconfig:"GROUPBUY_DEFAULT_JOIN_WINDOW" default:"168h"`
}

func (l LedgerConfig) validate() error {
	if l.PlatformFeeBps < 0 || l.PlatformFeeBps > 10000 {
		return fmt.Errorf("platform fee bps must be within [0,10000], got %d", l.PlatformFeeBps)
	}
	if l.RewardPoolBps < 0 || l.RewardPoolBps > 10000 {
		return fmt.Errorf("reward pool bps must be within [0,10000], got %d", l.RewardPoolBps)
	}
	if l.StakeAmount < 0 {
		return fmt.Errorf("stake amount must be non-negative, got %d", l.StakeAmount)
	}
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"GROUPBUY_REDIS_URL"`
	Address      string        `envconfig:"GROUPBUY_REDIS_ADDRESS"`
	Password     string        `envconfig:"GROUPBUY_REDIS_PASSWORD"`
	DB           int           `envconfig:"GROUPBUY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GROUPBUY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GROUPBUY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GROUPBUY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GROUPBUY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GROUPBUY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint is configured; the idempotency
// layer is skipped entirely when it is not.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type GCPConfig struct {
	ProjectID       string `envconfig:"GROUPBUY_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"GROUPBUY_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"GROUPBUY_PUBSUB_NOTIFICATION_TOPIC" default:"groupbuy-ledger-events"`
}

// BankConfig seeds the in-memory value-transfer banks in dev mode.
type BankConfig struct {
	SeedAccounts []uuid.UUID `envconfig:"GROUPBUY_BANK_SEED_ACCOUNTS"`
	SeedBalance  int64       `envconfig:"GROUPBUY_BANK_SEED_BALANCE" default:"1000000"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"GROUPBUY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}
