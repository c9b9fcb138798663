package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Crypto   CryptoConfig   `mapstructure:"crypto"`
	Device   DeviceConfig   `mapstructure:"device"`
	WS       WSConfig       `mapstructure:"ws"`
	Fare     FareConfig     `mapstructure:"fare"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, memory
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"` // bounds wallet row lock waits
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type CryptoConfig struct {
	Secret string `mapstructure:"secret"` // 32-byte hex-encoded master secret
}

type DeviceConfig struct {
	Key string `mapstructure:"key"` // Shared credential presented by scanner devices
}

type WSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"` // empty = same-origin only
	SendBuffer       int           `mapstructure:"send_buffer"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// PingPeriod returns how often pings are sent; it must be shorter than PongWait.
func (w WSConfig) PingPeriod() time.Duration {
	return (w.PongWait * 9) / 10
}

type FareConfig struct {
	DisplayWindow time.Duration `mapstructure:"display_window"`
	Timezone      string        `mapstructure:"timezone"` // daily stats reset at local midnight
}

type PaymentConfig struct {
	GatewaySecret string        `mapstructure:"gateway_secret"` // empty = recharge disabled
	OrderTTL      time.Duration `mapstructure:"order_ttl"`
	ReplayTTL     time.Duration `mapstructure:"replay_ttl"`
	MaxAmount     int64         `mapstructure:"max_amount"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from .env, the config file and environment variables.
// Environment variables override file values. Prefix: FARE_.
// Nested keys use underscore: FARE_DATABASE_HOST, FARE_DEVICE_KEY, etc.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("FARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional, env vars can suffice
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "fare_gateway")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_timeout", "5s")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_timeout", "5s")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "12h")
	v.SetDefault("jwt.issuer", "rfid-fare-gateway")
	v.SetDefault("crypto.secret", "")
	v.SetDefault("device.key", "")
	v.SetDefault("ws.allowed_origins", []string{})
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.max_message_size", 4096)
	v.SetDefault("ws.write_wait", "10s")
	v.SetDefault("ws.pong_wait", "60s")
	v.SetDefault("ws.operation_timeout", "5s")
	v.SetDefault("fare.display_window", "3s")
	v.SetDefault("fare.timezone", "Local")
	v.SetDefault("payment.gateway_secret", "")
	v.SetDefault("payment.order_ttl", "30m")
	v.SetDefault("payment.replay_ttl", "720h")
	v.SetDefault("payment.max_amount", 10000)
	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Database.Driver))
	}
	if secret, err := hex.DecodeString(c.Crypto.Secret); err != nil || len(secret) != 32 {
		errs = append(errs, errors.New("crypto.secret must be 64 hex characters (32 bytes)"))
	}
	if c.Device.Key == "" {
		errs = append(errs, errors.New("device.key is required"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.WS.PongWait <= 0 || c.WS.WriteWait <= 0 || c.WS.OperationTimeout <= 0 {
		errs = append(errs, errors.New("ws timeouts must be positive"))
	}
	if c.WS.SendBuffer <= 0 {
		errs = append(errs, errors.New("ws.send_buffer must be positive"))
	}
	if _, err := c.Fare.Location(); err != nil {
		errs = append(errs, fmt.Errorf("fare.timezone: %w", err))
	}

	return errors.Join(errs...)
}

// Location resolves the timezone used for "today" boundaries.
func (f FareConfig) Location() (*time.Location, error) {
	if f.Timezone == "" || f.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(f.Timezone)
}

// RechargeEnabled reports whether the payment collaborator is configured.
func (c *Config) RechargeEnabled() bool {
	return c.Payment.GatewaySecret != "" && c.Redis.Enabled
}
