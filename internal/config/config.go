// Package config loads and validates startup configuration for the
// messaging core from environment variables and an optional
// config.yaml, failing closed on any missing or malformed required
// value (spec.md §6).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully validated startup configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Blob      BlobConfig
	Auth      AuthConfig
	WebSocket WebSocketConfig
	RateLimit RateLimitConfig
	Search    SearchConfig
}

type ServerConfig struct {
	HTTPPort       int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	WriterDSN     string
	ReaderDSN     string // empty means no read replica; reads fall back to writer
	MaxOpenConns  int
	MaxIdleConns  int
	ConnMaxIdle   time.Duration
	StmtTimeout   time.Duration
}

type RedisConfig struct {
	Addrs    []string
	Password string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// BlobConfig documents the external blob service's coordinates; the core
// only ever stores keys/URLs it's handed, per spec.md §1/§4.6.
type BlobConfig struct {
	Endpoint    string
	Bucket      string
	Credentials string
}

type AuthConfig struct {
	AccessSecret   []byte
	RefreshSecret  []byte
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
}

type WebSocketConfig struct {
	AllowedOrigins []string
	MaxConnections int64
	HandshakeTimeout time.Duration
}

type RateLimitConfig struct {
	SendPerSecond   int
	AuthWindow      time.Duration
	AuthMaxAttempts int
}

type SearchConfig struct {
	Language string
}

// Load reads configuration from the environment (prefix MSG_) and an
// optional config.yaml in the working directory, then validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("msg")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	v.SetDefault("server.http_port", 8081)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_idle", 15*time.Minute)
	v.SetDefault("database.stmt_timeout", 5*time.Second)
	v.SetDefault("auth.access_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("websocket.max_connections", int64(20000))
	v.SetDefault("websocket.handshake_timeout", 45*time.Second)
	v.SetDefault("rate_limit.send_per_second", 10)
	v.SetDefault("rate_limit.auth_window", 15*time.Minute)
	v.SetDefault("rate_limit.auth_max_attempts", 5)
	v.SetDefault("search.language", "english")
	v.SetDefault("kafka.topic", "chat-events")

	cfg := &Config{
		Server: ServerConfig{
			HTTPPort:       v.GetInt("server.http_port"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		},
		Database: DatabaseConfig{
			WriterDSN:    v.GetString("database.writer_dsn"),
			ReaderDSN:    v.GetString("database.reader_dsn"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
			MaxIdleConns: v.GetInt("database.max_idle_conns"),
			ConnMaxIdle:  v.GetDuration("database.conn_max_idle"),
			StmtTimeout:  v.GetDuration("database.stmt_timeout"),
		},
		Redis: RedisConfig{
			Addrs:    v.GetStringSlice("redis.addrs"),
			Password: v.GetString("redis.password"),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetStringSlice("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
		Blob: BlobConfig{
			Endpoint:    v.GetString("blob.endpoint"),
			Bucket:      v.GetString("blob.bucket"),
			Credentials: v.GetString("blob.credentials"),
		},
		Auth: AuthConfig{
			AccessSecret:  []byte(v.GetString("auth.access_secret")),
			RefreshSecret: []byte(v.GetString("auth.refresh_secret")),
			AccessTTL:     v.GetDuration("auth.access_ttl"),
			RefreshTTL:    v.GetDuration("auth.refresh_ttl"),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins:   v.GetStringSlice("server.allowed_origins"),
			MaxConnections:   v.GetInt64("websocket.max_connections"),
			HandshakeTimeout: v.GetDuration("websocket.handshake_timeout"),
		},
		RateLimit: RateLimitConfig{
			SendPerSecond:   v.GetInt("rate_limit.send_per_second"),
			AuthWindow:      v.GetDuration("rate_limit.auth_window"),
			AuthMaxAttempts: v.GetInt("rate_limit.auth_max_attempts"),
		},
		Search: SearchConfig{
			Language: v.GetString("search.language"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.WriterDSN == "" {
		return fmt.Errorf("config: database.writer_dsn is required")
	}
	if len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("config: redis.addrs is required")
	}
	if c.Blob.Endpoint == "" {
		return fmt.Errorf("config: blob.endpoint is required")
	}
	if len(c.Auth.AccessSecret) < 32 {
		return fmt.Errorf("config: auth.access_secret must be at least 32 bytes")
	}
	if len(c.Auth.RefreshSecret) < 32 {
		return fmt.Errorf("config: auth.refresh_secret must be at least 32 bytes")
	}
	if string(c.Auth.AccessSecret) == string(c.Auth.RefreshSecret) {
		return fmt.Errorf("config: auth.access_secret and auth.refresh_secret must be distinct")
	}
	if len(c.Server.AllowedOrigins) == 0 {
		return fmt.Errorf("config: server.allowed_origins is required")
	}
	return nil
}
