package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LockStrategy selects how same-ticket syncs are serialized.
type LockStrategy string

const (
	LockNone  LockStrategy = "none"
	LockLocal LockStrategy = "local"
	LockRedis LockStrategy = "redis"
)

type Config struct {
	AppHost   string
	HTTPPort  string
	AppEnv    string
	LogLevel  string
	LogFormat string

	Zendesk struct {
		Subdomain string
		Email     string
		Token     string
	}

	// KafkaBrokers/KafkaTopic — if set, ticket change notifications are
	// published to Kafka. NotifyURL — if set, notifications are also POSTed
	// to a downstream HTTP subscriber (best-effort).
	KafkaBrokers []string
	KafkaTopic   string
	NotifyURL    string

	LockStrategy LockStrategy
	RedisAddr    string

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:      getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:     firstEnv("APP_PORT", "HTTP_PORT", "8098"),
		AppEnv:       getEnv("APP_ENV", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:   getEnv("KAFKA_TOPIC_TICKET", "zendesk.ticket.events"),
		NotifyURL:    getEnv("NOTIFY_URL", ""),
		LockStrategy: LockStrategy(getEnv("LOCK_STRATEGY", string(LockNone))),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
	}
	cfg.Zendesk.Subdomain = getEnv("ZENDESK_SUBDOMAIN", "")
	cfg.Zendesk.Email = getEnv("ZENDESK_EMAIL", "")
	cfg.Zendesk.Token = getEnv("ZENDESK_TOKEN", "")
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "zendesk_sync")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DB.Host == "" || c.DB.Database == "" {
		return errors.New("config: DB_HOST and DB_DATABASE are required")
	}
	if c.Zendesk.Subdomain == "" || c.Zendesk.Email == "" || c.Zendesk.Token == "" {
		return errors.New("config: ZENDESK_SUBDOMAIN, ZENDESK_EMAIL and ZENDESK_TOKEN are required")
	}
	if c.AppEnv == "production" && c.DB.Password == "" {
		return errors.New("config: in production DB_PASSWORD is required")
	}
	switch c.LockStrategy {
	case LockNone, LockLocal, LockRedis:
	default:
		return fmt.Errorf("config: unknown LOCK_STRATEGY %q", c.LockStrategy)
	}
	if c.LockStrategy == LockRedis && c.RedisAddr == "" {
		return errors.New("config: LOCK_STRATEGY=redis requires REDIS_ADDR")
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

// ZendeskBaseURL is the API root for the configured subdomain.
func (c *Config) ZendeskBaseURL() string {
	return fmt.Sprintf("https://%s.zendesk.com/api/v2", c.Zendesk.Subdomain)
}

func splitList(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
