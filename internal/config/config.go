package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Service struct {
		Name        string `mapstructure:"name"`
		Version     string `mapstructure:"version"`
		Environment string `mapstructure:"environment"`
		LogLevel    string `mapstructure:"log_level"`
	} `mapstructure:"service"`

	HTTP struct {
		Port    string        `mapstructure:"port"`
		Timeout time.Duration `mapstructure:"timeout"`

		// RateLimit is requests per actor per RateWindow; 0 disables it
		RateLimit  int           `mapstructure:"rate_limit"`
		RateWindow time.Duration `mapstructure:"rate_window"`
	} `mapstructure:"http"`

	DB struct {
		Host         string `mapstructure:"host"`
		Port         string `mapstructure:"port"`
		User         string `mapstructure:"user"`
		Password     string `mapstructure:"password"`
		Name         string `mapstructure:"name"`
		SSLMode      string `mapstructure:"sslmode"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
		MaxIdleConns int    `mapstructure:"max_idle_conns"`
		AutoMigrate  bool   `mapstructure:"auto_migrate"`
	} `mapstructure:"db"`

	Ledger struct {
		LockTimeout       time.Duration `mapstructure:"lock_timeout"`
		TxTimeout         time.Duration `mapstructure:"tx_timeout"`
		SerializableStock bool          `mapstructure:"serializable_stock"`
		BlockSaleOversell bool          `mapstructure:"block_sale_oversell"`
		// DefaultVarianceThreshold is a decimal string, e.g. "5.00"
		DefaultVarianceThreshold string `mapstructure:"default_variance_threshold"`
		Timezone                 string `mapstructure:"timezone"`
	} `mapstructure:"ledger"`

	Redis struct {
		Addr       string        `mapstructure:"addr"`
		Password   string        `mapstructure:"password"`
		DB         int           `mapstructure:"db"`
		DefaultTTL time.Duration `mapstructure:"default_ttl"`
	} `mapstructure:"redis"`

	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		GroupID string   `mapstructure:"group_id"`
		Enabled bool     `mapstructure:"enabled"`
	} `mapstructure:"kafka"`

	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"auth"`

	Tracing struct {
		Enabled        bool   `mapstructure:"enabled"`
		JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	} `mapstructure:"tracing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "commerce-ledger")
	v.SetDefault("service.version", "1.0.0")
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.log_level", "info")

	v.SetDefault("http.port", "8080")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.rate_limit", 120)
	v.SetDefault("http.rate_window", time.Minute)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "ledgerdb")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.auto_migrate", false)

	v.SetDefault("ledger.lock_timeout", 3*time.Second)
	v.SetDefault("ledger.tx_timeout", 10*time.Second)
	v.SetDefault("ledger.serializable_stock", true)
	v.SetDefault("ledger.block_sale_oversell", false)
	v.SetDefault("ledger.default_variance_threshold", "5.00")
	v.SetDefault("ledger.timezone", "UTC")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.default_ttl", 5*time.Minute)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.group_id", "commerce-ledger")
	v.SetDefault("kafka.enabled", false)

	v.SetDefault("auth.jwt_secret", "change-me")

	v.SetDefault("tracing.enabled", true)
	v.SetDefault("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")
}

// Load reads configuration from an optional file and LEDGER_* environment
// variables, e.g. LEDGER_DB_HOST or LEDGER_LEDGER_LOCK_TIMEOUT.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate rejects settings the service cannot start with
func (c Config) Validate() error {
	if _, err := c.VarianceThreshold(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.enabled requires kafka.brokers")
	}
	return nil
}

// VarianceThreshold parses the configured default close threshold
func (c Config) VarianceThreshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Ledger.DefaultVarianceThreshold)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid ledger.default_variance_threshold %q: %w", c.Ledger.DefaultVarianceThreshold, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("ledger.default_variance_threshold must not be negative")
	}
	return d, nil
}

// Location is the timezone business dates are computed in
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger.timezone %q: %w", c.Ledger.Timezone, err)
	}
	return loc, nil
}

func (c Config) IsDevelopment() bool {
	return c.Service.Environment == "development"
}
