package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidConfig indicates the provided redis configuration is invalid.
var ErrInvalidConfig = errors.New("invalid snapshot redis config")

// RedisConfig selects a redis deployment for snapshots. A MasterName switches
// to sentinel mode; more than one address without it selects cluster mode.
type RedisConfig struct {
	Addresses    []string
	Address      string   `env:"WALLET_REDIS_ADDR"`
	MasterName   string   `env:"WALLET_REDIS_MASTER_NAME"`
	Password     string   `env:"WALLET_REDIS_PASSWORD"`
	DB           int      `env:"WALLET_REDIS_DB"`
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// String returns a redacted representation to prevent accidental credential logging.
func (c RedisConfig) String() string {
	return fmt.Sprintf("RedisConfig{Addresses:%v, MasterName:%s, DB:%d, Password:REDACTED}", c.addrs(), c.MasterName, c.DB)
}

// GoString returns a redacted representation for fmt %#v.
func (c RedisConfig) GoString() string { return c.String() }

func (c RedisConfig) addrs() []string {
	out := make([]string, 0, len(c.Addresses)+1)

	if addr := strings.TrimSpace(c.Address); addr != "" {
		out = append(out, addr)
	}

	for _, addr := range c.Addresses {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}

	return out
}

const maxPoolSize = 100

func normalizeRedisConfig(cfg RedisConfig) (RedisConfig, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 3 * time.Second
	}

	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 3 * time.Second
	}

	if cfg.PoolSize == 0 {
		cfg.PoolSize = 4
	}

	if cfg.PoolSize > maxPoolSize {
		cfg.PoolSize = maxPoolSize
	}

	if len(cfg.addrs()) == 0 {
		return RedisConfig{}, configError("at least one address is required")
	}

	if cfg.DB < 0 {
		return RedisConfig{}, configError("db must not be negative")
	}

	if cfg.DialTimeout < 0 || cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 {
		return RedisConfig{}, configError("timeouts must not be negative")
	}

	return cfg, nil
}

// Connect builds a redis.UniversalClient from cfg and pings it.
func Connect(ctx context.Context, cfg RedisConfig) (redis.UniversalClient, error) {
	normalized, err := normalizeRedisConfig(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        normalized.addrs(),
		MasterName:   strings.TrimSpace(normalized.MasterName),
		Password:     normalized.Password,
		DB:           normalized.DB,
		DialTimeout:  normalized.DialTimeout,
		ReadTimeout:  normalized.ReadTimeout,
		WriteTimeout: normalized.WriteTimeout,
		PoolSize:     normalized.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("snapshot redis ping: %w", err)
	}

	return client, nil
}

func configError(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
