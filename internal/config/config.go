package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type Config struct {
	Env       string `env:"APP_ENV" env-default:"local"`
	HTTP      HTTPConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Postgres  PostgresConfig
	Mongo     MongoConfig
	Stream    StreamConfig
	Reconcile ReconcileConfig
}

type HTTPConfig struct {
	Address        string   `env:"HTTP_ADDR" env-default:"0.0.0.0:8080"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
}

type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET"`
}

type StorageConfig struct {
	Driver  string        `env:"STORAGE_DRIVER" env-default:"postgres"`
	Timeout time.Duration `env:"STORAGE_TIMEOUT" env-default:"5s"`
}

type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `env:"POSTGRES_PORT" env-default:"5432"`
	User     string `env:"POSTGRES_USER" env-default:"postgres"`
	Password string `env:"POSTGRES_PASSWORD"`
	DB       string `env:"POSTGRES_DB" env-default:"polls"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI" env-default:"mongodb://localhost:27017/?replicaSet=rs0"`
	Database string `env:"MONGO_DB" env-default:"polls"`
}

type StreamConfig struct {
	Interval  time.Duration `env:"STREAM_INTERVAL" env-default:"1s"`
	KeepAlive time.Duration `env:"STREAM_KEEP_ALIVE" env-default:"30s"`
}

type ReconcileConfig struct {
	Concurrency int `env:"RECONCILE_CONCURRENCY" env-default:"4"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Stream.Interval <= 0 || c.Stream.KeepAlive <= 0 {
		return errors.New("stream interval and keep-alive must be positive")
	}
	return nil
}

// RequireAuthSecret fails when no token secret is configured. Only the HTTP
// server needs one.
func (c *Config) RequireAuthSecret() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

// DSN builds the lib/pq connection string. The storage timeout becomes the
// server-side statement_timeout.
func (c PostgresConfig) DSN(timeout time.Duration) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   c.DB,
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	if timeout > 0 {
		q.Set("statement_timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// LoadPostgres reads only the database settings, for tools that need nothing else.
func LoadPostgres() (PostgresConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return PostgresConfig{}, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg PostgresConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return PostgresConfig{}, fmt.Errorf("failed to read postgres config: %w", err)
	}
	return cfg, nil
}
