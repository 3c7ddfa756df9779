package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type AppConfig struct {
	Name      string `toml:"name"`
	Port      string `toml:"port"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

type DBConfig struct {
	// Driver is "mysql" or "postgres".
	Driver   string `toml:"driver"`
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	Name     string `toml:"name"`
	User     string `toml:"user"`
	Pass     string `toml:"pass"`
	LogLevel string `toml:"log_level"`
	// DSN overrides every field above when set.
	DSN string `toml:"dsn"`
}

type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	IdempTTLSecs int    `toml:"idempotency_ttl_seconds"`
}

type AuthConfig struct {
	JWTSecret     string `toml:"jwt_secret"`
	WebhookSecret string `toml:"webhook_secret"`
}

type S3Config struct {
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	KeyPrefix string `toml:"key_prefix"`
}

type BankConfig struct {
	AccessToken string `toml:"access_token"`
	Mock        bool   `toml:"mock"`
	Method      string `toml:"method"`
}

type ServiceConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

type FormalizationConfig struct {
	LockTTLSecs     int `toml:"lock_ttl_seconds"`
	SyncConcurrency int `toml:"sync_concurrency"`
	HTTPTimeoutSecs int `toml:"http_timeout_seconds"`
}

type Config struct {
	App           AppConfig           `toml:"app"`
	DB            DBConfig            `toml:"db"`
	Redis         RedisConfig         `toml:"redis"`
	Auth          AuthConfig          `toml:"auth"`
	S3            S3Config            `toml:"s3"`
	Bank          BankConfig          `toml:"bank"`
	DocGen        ServiceConfig       `toml:"docgen"`
	ESign         ServiceConfig       `toml:"esign"`
	Formalization FormalizationConfig `toml:"formalization"`
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getenvBool(k string, d bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return d
}

func defaults() *Config {
	return &Config{
		App:   AppConfig{Name: "loan-proposal-service", Port: "8080", LogLevel: "info", LogFormat: "json"},
		DB:    DBConfig{Driver: "mysql", Host: "mysql", Port: "3306", Name: "proposals", User: "proposals", Pass: "proposals", LogLevel: "warn"},
		Redis: RedisConfig{Addr: "redis:6379", IdempTTLSecs: 300},
		S3:    S3Config{Bucket: "loan-proposals", Region: "us-east-1"},
		Bank:  BankConfig{Method: "bolbradesco"},
		Formalization: FormalizationConfig{
			LockTTLSecs:     120,
			SyncConcurrency: 4,
			HTTPTimeoutSecs: 15,
		},
	}
}

// Load reads .env (if present), then the TOML file named by CONFIG_FILE, then
// environment variables. Later sources win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}
	c := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadToml(path, c); err != nil {
			return nil, err
		}
	}
	c.applyEnv()
	return c, nil
}

func loadToml(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.App.Name = getenv("APP_NAME", c.App.Name)
	c.App.Port = getenv("APP_PORT", c.App.Port)
	c.App.LogLevel = getenv("LOG_LEVEL", c.App.LogLevel)
	c.App.LogFormat = getenv("LOG_FORMAT", c.App.LogFormat)

	c.DB.Driver = getenv("DB_DRIVER", c.DB.Driver)
	c.DB.Host = getenv("DB_HOST", getenv("MYSQL_HOST", c.DB.Host))
	c.DB.Port = getenv("DB_PORT", getenv("MYSQL_PORT", c.DB.Port))
	c.DB.Name = getenv("DB_NAME", getenv("MYSQL_DB", c.DB.Name))
	c.DB.User = getenv("DB_USER", getenv("MYSQL_USER", c.DB.User))
	c.DB.Pass = getenv("DB_PASS", getenv("MYSQL_PASS", c.DB.Pass))
	c.DB.LogLevel = getenv("DB_LOG_LEVEL", c.DB.LogLevel)
	c.DB.DSN = getenv("DB_DSN", c.DB.DSN)

	c.Redis.Addr = getenv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getenv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getenvInt("REDIS_DB", c.Redis.DB)
	c.Redis.IdempTTLSecs = getenvInt("IDEMPOTENCY_TTL_SECONDS", c.Redis.IdempTTLSecs)

	c.Auth.JWTSecret = getenv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.WebhookSecret = getenv("WEBHOOK_SECRET", c.Auth.WebhookSecret)

	c.S3.Bucket = getenv("S3_BUCKET", c.S3.Bucket)
	c.S3.Region = getenv("AWS_REGION", c.S3.Region)
	c.S3.Endpoint = getenv("S3_ENDPOINT", c.S3.Endpoint)
	c.S3.AccessKey = getenv("AWS_ACCESS_KEY_ID", c.S3.AccessKey)
	c.S3.SecretKey = getenv("AWS_SECRET_ACCESS_KEY", c.S3.SecretKey)
	c.S3.KeyPrefix = getenv("S3_KEY_PREFIX", c.S3.KeyPrefix)

	c.Bank.AccessToken = getenv("MERCADOPAGO_ACCESS_TOKEN", c.Bank.AccessToken)
	c.Bank.Mock = getenvBool("PAYMENT_GATEWAY_MOCK", c.Bank.Mock)
	c.Bank.Method = getenv("PAYMENT_METHOD_ID", c.Bank.Method)

	c.DocGen.URL = getenv("DOCGEN_URL", c.DocGen.URL)
	c.DocGen.Token = getenv("DOCGEN_TOKEN", c.DocGen.Token)
	c.ESign.URL = getenv("ESIGN_URL", c.ESign.URL)
	c.ESign.Token = getenv("ESIGN_TOKEN", c.ESign.Token)

	c.Formalization.LockTTLSecs = getenvInt("INSTRUMENT_LOCK_TTL_SECONDS", c.Formalization.LockTTLSecs)
	c.Formalization.SyncConcurrency = getenvInt("STORAGE_SYNC_CONCURRENCY", c.Formalization.SyncConcurrency)
	c.Formalization.HTTPTimeoutSecs = getenvInt("HTTP_CLIENT_TIMEOUT_SECONDS", c.Formalization.HTTPTimeoutSecs)
}

func (c *Config) Validate() error {
	if c.App.Port == "" {
		return errors.New("missing APP_PORT")
	}
	switch strings.ToLower(c.DB.Driver) {
	case "mysql", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		if c.DB.Host == "" || c.DB.Port == "" || c.DB.Name == "" || c.DB.User == "" {
			return errors.New("missing DB config (DB_HOST/PORT/NAME/USER)")
		}
		// ensure port is valid
		if _, err := net.LookupPort("tcp", c.DB.Port); err != nil {
			return fmt.Errorf("invalid DB_PORT %q: %w", c.DB.Port, err)
		}
	}
	if c.Redis.Addr == "" {
		return errors.New("missing REDIS_ADDR")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must have at least 16 characters")
	}
	if c.Auth.WebhookSecret == "" {
		return errors.New("missing WEBHOOK_SECRET")
	}
	if c.DocGen.URL == "" || c.ESign.URL == "" {
		return errors.New("missing DOCGEN_URL or ESIGN_URL")
	}
	if c.S3.Bucket == "" {
		return errors.New("missing S3_BUCKET")
	}
	if !c.Bank.Mock && c.Bank.AccessToken == "" {
		return errors.New("missing MERCADOPAGO_ACCESS_TOKEN (or set PAYMENT_GATEWAY_MOCK=true)")
	}
	if c.Formalization.SyncConcurrency < 1 {
		return errors.New("STORAGE_SYNC_CONCURRENCY must be at least 1")
	}
	return nil
}

func (c *Config) dbAddr() string { return net.JoinHostPort(c.DB.Host, c.DB.Port) }

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DB.DSN != "" {
		return c.DB.DSN
	}
	if strings.HasPrefix(strings.ToLower(c.DB.Driver), "postgres") {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			c.DB.Host, c.DB.Port, c.DB.User, c.DB.Pass, c.DB.Name)
	}
	// parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4,utf8",
		c.DB.User, c.DB.Pass, c.dbAddr(), c.DB.Name)
}

func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.Redis.IdempTTLSecs) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Formalization.LockTTLSecs) * time.Second
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Formalization.HTTPTimeoutSecs) * time.Second
}
