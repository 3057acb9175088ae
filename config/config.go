package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Push     PushConfig     `mapstructure:"push"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// FeedConfig configures the affiliate commission feed client.
type FeedConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Email      string        `mapstructure:"email"`
	Password   string        `mapstructure:"password"`
	PageSize   int           `mapstructure:"page_size"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// PushConfig configures the push-notification sender.
type PushConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	ServerKey string        `mapstructure:"server_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LedgerConfig holds the business parameters of the ledger engine.
// Percentages are fractions (0.1 = 10%), amounts are in minor units.
type LedgerConfig struct {
	UserPercentage     float64 `mapstructure:"user_percentage"`
	ReferralPercentage float64 `mapstructure:"referral_percentage"`
	BonusPercentage    float64 `mapstructure:"bonus_percentage"`
	MinCashoutAmount   int64   `mapstructure:"min_cashout_amount"`
}

// WorkerConfig holds background loop intervals and queue names.
type WorkerConfig struct {
	ReconcileInterval  time.Duration `mapstructure:"reconcile_interval"`
	RewardPollInterval time.Duration `mapstructure:"reward_poll_interval"`
	EventQueue         string        `mapstructure:"event_queue"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: CBL_ (CashBack Ledger).
// Nested keys use underscore: CBL_DATABASE_HOST, CBL_LEDGER_BONUS_PERCENTAGE, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "cashback_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("feed.base_url", "")
	v.SetDefault("feed.email", "")
	v.SetDefault("feed.password", "")
	v.SetDefault("feed.page_size", 40)
	v.SetDefault("feed.session_ttl", "55m")
	v.SetDefault("feed.timeout", "10s")
	v.SetDefault("feed.max_retries", 3)
	v.SetDefault("push.endpoint", "")
	v.SetDefault("push.server_key", "")
	v.SetDefault("push.timeout", "10s")
	v.SetDefault("ledger.user_percentage", 0.6)
	v.SetDefault("ledger.referral_percentage", 0.1)
	v.SetDefault("ledger.bonus_percentage", 0.1)
	v.SetDefault("ledger.min_cashout_amount", 5000)
	v.SetDefault("worker.reconcile_interval", "30m")
	v.SetDefault("worker.reward_poll_interval", "1m")
	v.SetDefault("worker.event_queue", "events:achievements")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: CBL_DATABASE_HOST -> database.host
	v.SetEnvPrefix("CBL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
