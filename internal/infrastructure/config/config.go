package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "SHOPFRONT"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	OTLP    OTLPConfig    `mapstructure:"otlp"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Port          string `mapstructure:"port"`
	Host          string `mapstructure:"host"`
	SecureCookies bool   `mapstructure:"secure_cookies"`
}

type OTLPConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

type CatalogConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Driver        string `mapstructure:"driver"`
	Path          string `mapstructure:"path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Storage drivers
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// option binds a config key to a command-line flag and the environment
// variables that may override it.
type option struct {
	key   string
	flag  string
	usage string
	envs  []string
}

var options = []option{
	{"server.host", "host", "HTTP listen host", []string{"SERVER_HOST"}},
	{"server.port", "port", "HTTP listen port", []string{"SERVER_PORT"}},
	{"server.secure_cookies", "secure-cookies", "mark the session cookie Secure", nil},
	{"otlp.enabled", "telemetry", "export traces and metrics over OTLP", []string{"OTEL_ENABLED"}},
	{"otlp.endpoint", "otlp-endpoint", "OTLP gRPC collector endpoint", []string{"OTEL_EXPORTER_OTLP_ENDPOINT"}},
	{"otlp.service_name", "service-name", "service name reported to telemetry", []string{"OTEL_SERVICE_NAME"}},
	{"otlp.environment", "environment", "deployment environment", []string{"OTEL_ENVIRONMENT"}},
	{"catalog.base_url", "catalog-url", "base URL of the product catalog API", nil},
	{"catalog.timeout", "catalog-timeout", "timeout for catalog requests", nil},
	{"storage.driver", "storage", "visitor state storage: memory, sqlite or redis", nil},
	{"storage.path", "storage-path", "sqlite database file", nil},
	{"storage.redis_addr", "redis-addr", "redis address", []string{"REDIS_ADDR"}},
	{"storage.redis_password", "redis-password", "redis password", []string{"REDIS_PASSWORD"}},
	{"storage.redis_db", "redis-db", "redis database number", nil},
	{"log.level", "log-level", "log level: debug, info, warn or error", nil},
}

// LoadConfig loads configuration from flags and environment variables
func LoadConfig() *Config {
	cfg, err := Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}
	return cfg
}

// Parse builds the configuration from args, the environment and defaults,
// in that order of precedence.
func Parse(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("shopfront", pflag.ContinueOnError)
	fs.String("host", "0.0.0.0", "")
	fs.String("port", "8080", "")
	fs.Bool("secure-cookies", false, "")
	fs.Bool("telemetry", false, "")
	fs.String("otlp-endpoint", "localhost:4317", "")
	fs.String("service-name", "shopfront", "")
	fs.String("environment", "development", "")
	fs.String("catalog-url", "https://fakestoreapi.com", "")
	fs.Duration("catalog-timeout", 10*time.Second, "")
	fs.String("storage", DriverMemory, "")
	fs.String("storage-path", "shopfront.db", "")
	fs.String("redis-addr", "localhost:6379", "")
	fs.String("redis-password", "", "")
	fs.Int("redis-db", 0, "")
	fs.String("log-level", "info", "")

	v := viper.New()

	for _, o := range options {
		f := fs.Lookup(o.flag)
		f.Usage = o.usage
		if err := v.BindPFlag(o.key, f); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", o.flag, err)
		}
		envs := append([]string{envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(o.key, ".", "_"))}, o.envs...)
		if err := v.BindEnv(append([]string{o.key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", o.key, err)
		}
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that the flag types cannot
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog base URL is required")
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}
