package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DispatchOutbox = "outbox"
	DispatchInline = "inline"
)

type Config struct {
	HTTPAddr string
	LogLevel string

	PGURL      string
	DBMaxConns int32

	AuthSecret    string
	AuthAlgorithm string

	UserServiceURL      string
	UserServiceEmail    string
	UserServicePassword string
	UserServiceTimeout  time.Duration
	LoginTimeout        time.Duration

	EmailServiceURL     string
	EmailServiceTimeout time.Duration

	DispatchMode        string
	DispatchMaxAttempts int
	KafkaBrokers        []string
	InvoiceTopic        string
	KafkaWriteTimeout   time.Duration
	RedisAddr           string

	OTelEndpoint string

	RateLimitRPS   float64
	RateLimitBurst int

	Issuer   Issuer
	Currency string
}

// Issuer is the seller identity printed on every invoice.
type Issuer struct {
	Name    string
	Address string
	Email   string
	VATID   string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:            env("HTTP_ADDR", ":8080"),
		LogLevel:            env("LOG_LEVEL", "info"),
		PGURL:               os.Getenv("PG_URL"),
		DBMaxConns:          int32(envInt("DB_MAX_CONNS", 10)),
		AuthSecret:          os.Getenv("AUTH_SECRET"),
		AuthAlgorithm:       env("AUTH_ALGORITHM", "HS256"),
		UserServiceURL:      env("USER_SERVICE_URL", "http://localhost:8081"),
		UserServiceEmail:    os.Getenv("USER_SERVICE_EMAIL"),
		UserServicePassword: os.Getenv("USER_SERVICE_PASSWORD"),
		UserServiceTimeout:  envDuration("USER_SERVICE_TIMEOUT", 10*time.Second),
		LoginTimeout:        envDuration("USER_SERVICE_LOGIN_TIMEOUT", 5*time.Second),
		EmailServiceURL:     env("EMAIL_SERVICE_URL", "http://localhost:8082"),
		EmailServiceTimeout: envDuration("EMAIL_SERVICE_TIMEOUT", 15*time.Second),
		DispatchMode:        env("INVOICE_DISPATCH_MODE", DispatchOutbox),
		DispatchMaxAttempts: envInt("DISPATCH_MAX_ATTEMPTS", 5),
		KafkaBrokers:        []string{env("KAFKA_ADDR", "localhost:9092")},
		InvoiceTopic:        env("INVOICE_TOPIC", "invoice.events"),
		KafkaWriteTimeout:   envDuration("KAFKA_WRITE_TIMEOUT", 10*time.Second),
		RedisAddr:           env("REDIS_ADDR", "localhost:6379"),
		OTelEndpoint:        os.Getenv("OTEL_EXPORTER_ENDPOINT"),
		RateLimitRPS:        envFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:      envInt("RATE_LIMIT_BURST", 40),
		Issuer: Issuer{
			Name:    env("ISSUER_NAME", "Rahti Brewing Oy"),
			Address: env("ISSUER_ADDRESS", ""),
			Email:   env("ISSUER_EMAIL", ""),
			VATID:   env("ISSUER_VAT_ID", ""),
		},
		Currency: env("INVOICE_CURRENCY", "EUR"),
	}

	if cfg.PGURL == "" {
		cfg.PGURL = postgresURL(
			env("DB_HOST", "localhost"),
			env("DB_PORT", "5432"),
			env("DB_NAME", "orders"),
			env("DB_USER", "postgres"),
			env("DB_PASSWORD", "postgres"),
		)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.UserServiceEmail == "" {
		slog.Warn("USER_SERVICE_EMAIL not set; user-service login will fail and invoices cannot be addressed")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.AuthSecret == "" {
		errs = append(errs, errors.New("AUTH_SECRET is required"))
	}
	switch c.DispatchMode {
	case DispatchOutbox, DispatchInline:
	default:
		errs = append(errs, fmt.Errorf("INVOICE_DISPATCH_MODE must be %q or %q, got %q", DispatchOutbox, DispatchInline, c.DispatchMode))
	}
	if c.DispatchMaxAttempts < 1 {
		errs = append(errs, errors.New("DISPATCH_MAX_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}

func postgresURL(host, port, name, user, password string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     host + ":" + port,
		Path:     name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}

func envFloat(k string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(k), 64)
	if err != nil {
		return def
	}
	return v
}

func envDuration(k string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(k))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
