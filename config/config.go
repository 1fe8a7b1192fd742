// config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full service configuration. Values come from an optional
// config/config.yaml and are overridden by environment variables
// (SERVER_PORT, DATABASE_URL, ...).
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Competition CompetitionConfig `mapstructure:"competition"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	R2          R2Config          `mapstructure:"r2"`
	RabbitMQ    RabbitMQConfig    `mapstructure:"rabbitmq"`
	Workers     WorkersConfig     `mapstructure:"workers"`
	LogLevel    string            `mapstructure:"log_level"`
}

type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	ServiceToken   string `mapstructure:"service_token"`   // bearer token the gateway must present
	AllowedOrigins string `mapstructure:"allowed_origins"` // comma separated
	AdminRoles     string `mapstructure:"admin_roles"`     // roles granting competition management
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type CompetitionConfig struct {
	DefaultPrizeCredits int `mapstructure:"default_prize_credits"`
	PreviewSize         int `mapstructure:"preview_size"`
}

// LedgerConfig selects the credit ledger backend: "http" talks to the usage
// service, "db" uses the local credit_accounts table.
type LedgerConfig struct {
	Driver  string        `mapstructure:"driver"`
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type R2Config struct {
	AccountID       string `mapstructure:"account_id"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	Bucket          string `mapstructure:"bucket"`
	PublicBaseURL   string `mapstructure:"public_base_url"` // CDN in front of the bucket, optional
}

// Enabled reports whether winner snapshots should be archived.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.Bucket != ""
}

type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type WorkersConfig struct {
	CloserInterval      time.Duration `mapstructure:"closer_interval"`
	FulfillmentInterval time.Duration `mapstructure:"fulfillment_interval"`
	LeaseTTL            time.Duration `mapstructure:"lease_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5300)
	v.SetDefault("server.allowed_origins", "http://localhost:3000")
	v.SetDefault("server.admin_roles", "admin")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("competition.default_prize_credits", 10)
	v.SetDefault("competition.preview_size", 5)
	v.SetDefault("ledger.driver", "db")
	v.SetDefault("ledger.timeout", 10*time.Second)
	v.SetDefault("rabbitmq.exchange", "competition_events")
	v.SetDefault("workers.closer_interval", time.Minute)
	v.SetDefault("workers.fulfillment_interval", 15*time.Minute)
	v.SetDefault("workers.lease_ttl", 5*time.Minute)
	v.SetDefault("log_level", "info")
}

// Load reads .env (if present), config/config.yaml (if present) and the
// environment, in increasing priority.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Legacy names used by the deployment.
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("server.service_token", "SERVER_SERVICE_TOKEN", "GAME_SERVICE_TOKEN")
	_ = v.BindEnv("server.allowed_origins", "SERVER_ALLOWED_ORIGINS", "ALLOWED_ORIGINS")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID", "CLOUDFLARE_ACCOUNT_ID")
	_ = v.BindEnv("r2.bucket", "R2_BUCKET", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.access_key_secret", "R2_ACCESS_KEY_SECRET")
	_ = v.BindEnv("r2.public_base_url", "R2_PUBLIC_BASE_URL", "CDN_BASE_URL")
	_ = v.BindEnv("rabbitmq.url", "RABBITMQ_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable not set")
	}
	if c.Server.ServiceToken == "" {
		return errors.New("GAME_SERVICE_TOKEN is not set; service cannot authenticate the gateway")
	}
	switch c.Ledger.Driver {
	case "db":
	case "http":
		if c.Ledger.BaseURL == "" {
			return errors.New("ledger.base_url is required when ledger.driver is http")
		}
	default:
		return fmt.Errorf("unknown ledger driver %q", c.Ledger.Driver)
	}
	if c.Competition.DefaultPrizeCredits <= 0 {
		return errors.New("competition.default_prize_credits must be positive")
	}
	return nil
}

// AdminRoleList splits Server.AdminRoles into trimmed role names.
func (c *Config) AdminRoleList() []string {
	return splitList(c.Server.AdminRoles)
}

// OriginList splits Server.AllowedOrigins into trimmed origins.
func (c *Config) OriginList() []string {
	return splitList(c.Server.AllowedOrigins)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
