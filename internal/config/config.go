package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Paystack  PaystackConfig  `yaml:"paystack"`
	Auth      AuthConfig      `yaml:"auth"`
	Store     StoreConfig     `yaml:"store"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type AppConfig struct {
	Name         string        `yaml:"name"`
	Port         string        `yaml:"port"`
	Env          string        `yaml:"env"`
	LogLevel     string        `yaml:"log_level"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MongoConfig points at the gateway event archive. An empty URI disables it.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// KafkaConfig configures order event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type PaystackConfig struct {
	BaseURL     string        `yaml:"base_url"`
	PublicKey   string        `yaml:"public_key"`
	SecretKey   string        `yaml:"secret_key"`
	CallbackURL string        `yaml:"callback_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type StoreConfig struct {
	Tag        string `yaml:"tag"`
	PaymentFor string `yaml:"payment_for"`
	Currency   string `yaml:"currency"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.Name = "estore"
	cfg.App.Port = "8080"
	cfg.App.Env = "development"
	cfg.App.LogLevel = "info"
	cfg.App.ReadTimeout = 10 * time.Second
	cfg.App.WriteTimeout = 10 * time.Second
	cfg.App.IdleTimeout = 120 * time.Second

	cfg.Postgres.SSLMode = "disable"
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2
	cfg.Postgres.MaxConnLifetime = 30 * time.Minute
	cfg.Postgres.MigrationsPath = "migrations"

	cfg.Redis.Addr = "localhost:6379"

	cfg.Mongo.Database = "estore"
	cfg.Mongo.Collection = "gateway_events"

	cfg.Kafka.Topic = "estore.order-events"
	cfg.Kafka.GroupID = "estore-notifier"

	cfg.Paystack.BaseURL = "https://api.paystack.co"
	cfg.Paystack.Timeout = 8 * time.Second

	cfg.Store.Tag = "estore"
	cfg.Store.PaymentFor = "productsOrder"
	cfg.Store.Currency = "KES"

	cfg.RateLimit.RPS = 5
	cfg.RateLimit.Burst = 10

	return cfg
}

// NewConfig builds the configuration from defaults, an optional YAML file and
// the environment, in that order of precedence. A .env file in the working
// directory is loaded into the environment first when present.
func NewConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return nil
}

func applyEnv(cfg *Config) error {
	envString(&cfg.App.Name, "APP_NAME")
	envString(&cfg.App.Port, "APP_PORT")
	envString(&cfg.App.Env, "APP_ENV")
	envString(&cfg.App.LogLevel, "LOG_LEVEL")
	if err := envDuration(&cfg.App.ReadTimeout, "HTTP_READ_TIMEOUT"); err != nil {
		return err
	}
	if err := envDuration(&cfg.App.WriteTimeout, "HTTP_WRITE_TIMEOUT"); err != nil {
		return err
	}
	if err := envDuration(&cfg.App.IdleTimeout, "HTTP_IDLE_TIMEOUT"); err != nil {
		return err
	}

	envString(&cfg.Postgres.Host, "DB_HOST")
	envString(&cfg.Postgres.Port, "DB_PORT")
	envString(&cfg.Postgres.User, "DB_USER")
	envString(&cfg.Postgres.Password, "DB_PASSWORD")
	envString(&cfg.Postgres.DBName, "DB_NAME")
	envString(&cfg.Postgres.SSLMode, "DB_SSLMODE")
	envString(&cfg.Postgres.MigrationsPath, "DB_MIGRATIONS_PATH")

	if err := envInt32(&cfg.Postgres.MaxConns, "DB_MAX_CONNS"); err != nil {
		return err
	}
	if err := envInt32(&cfg.Postgres.MinConns, "DB_MIN_CONNS"); err != nil {
		return err
	}
	if err := envDuration(&cfg.Postgres.MaxConnLifetime, "DB_MAX_CONN_LIFETIME"); err != nil {
		return err
	}

	envString(&cfg.Redis.Addr, "REDIS_ADDR")
	envString(&cfg.Redis.Password, "REDIS_PASSWORD")
	if err := envInt(&cfg.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}

	envString(&cfg.Mongo.URI, "MONGODB_URI")
	envString(&cfg.Mongo.Database, "MONGODB_DATABASE")
	envString(&cfg.Mongo.Collection, "MONGODB_COLLECTION")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	envString(&cfg.Kafka.Topic, "KAFKA_TOPIC")
	envString(&cfg.Kafka.GroupID, "KAFKA_GROUP_ID")

	envString(&cfg.Paystack.BaseURL, "PAYSTACK_BASE_URL")
	envString(&cfg.Paystack.PublicKey, "PAYSTACK_PUBLIC_KEY")
	envString(&cfg.Paystack.SecretKey, "PAYSTACK_SECRET_KEY")
	envString(&cfg.Paystack.CallbackURL, "PAYSTACK_CALLBACK_URL")
	if err := envDuration(&cfg.Paystack.Timeout, "PAYSTACK_TIMEOUT"); err != nil {
		return err
	}

	envString(&cfg.Auth.JWTSecret, "AUTH_JWT_SECRET")
	envString(&cfg.Auth.Issuer, "AUTH_ISSUER")

	envString(&cfg.Store.Tag, "STORE_TAG")
	envString(&cfg.Store.PaymentFor, "STORE_PAYMENT_FOR")
	envString(&cfg.Store.Currency, "STORE_CURRENCY")

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS %q: %w", v, err)
		}
		cfg.RateLimit.RPS = rps
	}
	if err := envInt(&cfg.RateLimit.Burst, "RATE_LIMIT_BURST"); err != nil {
		return err
	}

	return nil
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string

	required := map[string]string{
		"DB_HOST":             c.Postgres.Host,
		"DB_PORT":             c.Postgres.Port,
		"DB_USER":             c.Postgres.User,
		"DB_NAME":             c.Postgres.DBName,
		"PAYSTACK_SECRET_KEY": c.Paystack.SecretKey,
		"AUTH_JWT_SECRET":     c.Auth.JWTSecret,
	}
	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_NAME", "PAYSTACK_SECRET_KEY", "AUTH_JWT_SECRET"} {
		if strings.TrimSpace(required[key]) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Postgres.MinConns > c.Postgres.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.Postgres.MinConns, c.Postgres.MaxConns)
	}

	// A gateway call has to finish while the response can still be written.
	if c.Paystack.Timeout <= 0 || c.App.WriteTimeout <= 0 {
		return errors.New("PAYSTACK_TIMEOUT and HTTP_WRITE_TIMEOUT must be positive")
	}
	if c.Paystack.Timeout >= c.App.WriteTimeout {
		return fmt.Errorf("PAYSTACK_TIMEOUT (%s) must be shorter than HTTP_WRITE_TIMEOUT (%s)", c.Paystack.Timeout, c.App.WriteTimeout)
	}

	return nil
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func envInt32(dst *int32, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = int32(n)
	return nil
}

func envDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
