package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Auction        AuctionConfig        `yaml:"auction"`
	Discord        DiscordConfig        `yaml:"discord"`
	Database       DatabaseConfig       `yaml:"database"`
	Redis          RedisConfig          `yaml:"redis"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
}

// AuctionConfig holds the bidding rules applied when the session is first initialised.
type AuctionConfig struct {
	MinBidIncrement            int       `yaml:"min_bid_increment"`
	UnsoldPriceReductionFactor float64   `yaml:"unsold_price_reduction_factor"`
	AllowSelfRaise             bool      `yaml:"allow_self_raise"`
	AuctionDate                time.Time `yaml:"auction_date"`
	// BidLockTTL bounds how long a per-player bid lock may be held.
	BidLockTTL time.Duration `yaml:"bid_lock_ttl"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Token       string `yaml:"token"`
	GuildID     string `yaml:"guild_id"`
	AdminRoleID string `yaml:"admin_role_id"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "sqlx" or "memory"
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis settings. An empty Addr keeps pub/sub and bid locks in-process.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AdminToken      string        `yaml:"admin_token"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	// Environment is reported as deployment.environment, e.g. "staging".
	Environment  string `yaml:"environment"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	// SampleRatio is the fraction of root traces kept, 0 to 1.
	SampleRatio    float64       `yaml:"sample_ratio"`
	MetricInterval time.Duration `yaml:"metric_interval"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// Environment variables that override secrets from the YAML file.
const (
	EnvDiscordToken     = "AUCTIOND_DISCORD_TOKEN"
	EnvDatabasePassword = "AUCTIOND_DATABASE_PASSWORD"
	EnvRedisPassword    = "AUCTIOND_REDIS_PASSWORD"
	EnvAdminToken       = "AUCTIOND_ADMIN_TOKEN"
)

// Defaults returns the configuration used for any field the file leaves unset.
func Defaults() Config {
	return Config{
		Auction: AuctionConfig{
			MinBidIncrement:            100,
			UnsoldPriceReductionFactor: 0.5,
			AllowSelfRaise:             true,
			BidLockTTL:                 5 * time.Second,
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "sqlx",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "auctiond",
			ServiceVersion: "0.1.0",
			SampleRatio:    1,
			MetricInterval: 30 * time.Second,
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "auctiond-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
	}
}

// Load reads a YAML configuration file from the given path and applies
// environment overrides. A .env file next to the config is loaded first if present.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDiscordToken); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv(EnvDatabasePassword); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv(EnvAdminToken); v != "" {
		c.Server.AdminToken = v
	}
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlx", "memory":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"sqlx\" or \"memory\"", c.Database.Driver)
	}
	if c.Auction.MinBidIncrement <= 0 {
		return fmt.Errorf("auction.min_bid_increment must be positive, got %d", c.Auction.MinBidIncrement)
	}
	if f := c.Auction.UnsoldPriceReductionFactor; f <= 0 || f > 1 {
		return fmt.Errorf("auction.unsold_price_reduction_factor must be in (0,1], got %v", f)
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be in [0,1], got %v", r)
	}
	if c.Telemetry.MetricInterval <= 0 {
		return fmt.Errorf("telemetry.metric_interval must be positive, got %s", c.Telemetry.MetricInterval)
	}
	if c.Discord.Enabled && c.Discord.Token == "" {
		return errors.New("discord.token is required when discord is enabled")
	}
	return nil
}
