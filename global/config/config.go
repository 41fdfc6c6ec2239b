// Package config loads gateway configuration from env plus an optional .env
// file via viper. Env vars override .env values.
package config

import (
	"time"

	"github.com/spf13/viper"

	"bizlink/tools/security"
)

type AppConfig struct {
	// ListenAddr is the HTTP listen address for /ws and /auth (e.g. :8080).
	ListenAddr string `mapstructure:"LISTEN_ADDR"`
	// NodeID identifies this gateway instance (snowflake node + relay origin).
	NodeID int64 `mapstructure:"NODE_ID"`
	// GatewayID is the presence-mirror value; defaults to gateway_<NODE_ID>.
	GatewayID string `mapstructure:"GATEWAY_ID"`

	// JWTSecret signs access and refresh tokens.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTAccessTTL / JWTRefreshTTL are Go durations ("15m", "168h").
	JWTAccessTTL  time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	JWTRefreshTTL time.Duration `mapstructure:"JWT_REFRESH_TTL"`

	// DatabaseURL is the Postgres DSN; empty runs the gateway storage-less.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr enables the presence mirror; empty disables it.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	// NatsURL enables the cross-gateway relay; empty runs standalone.
	NatsURL string `mapstructure:"NATS_URL"`

	// FanoutWorkers/FanoutQueue size the broadcast worker pool.
	FanoutWorkers int `mapstructure:"FANOUT_WORKERS"`
	FanoutQueue   int `mapstructure:"FANOUT_QUEUE"`
	// SendQueueSize is the per-connection outbound buffer.
	SendQueueSize int `mapstructure:"SEND_QUEUE_SIZE"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine (CI, containers)

	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("GATEWAY_ID", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("NATS_URL", "")
	v.SetDefault("FANOUT_WORKERS", 4)
	v.SetDefault("FANOUT_QUEUE", 1024)
	v.SetDefault("SEND_QUEUE_SIZE", 256)

	var c AppConfig
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if c.GatewayID == "" {
		c.GatewayID = "gateway_" + v.GetString("NODE_ID")
	}
	return &c, nil
}

// JWTOptions builds the signing options used by both the auth endpoints and
// the socket handshake verifier.
func (c *AppConfig) JWTOptions() security.Options {
	opts := security.DefaultOptions([]byte(c.JWTSecret))
	opts.AccessTTL = c.JWTAccessTTL
	opts.RefreshTTL = c.JWTRefreshTTL
	return opts
}
