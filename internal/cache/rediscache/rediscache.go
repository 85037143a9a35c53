// Package rediscache backs cache.Store with a Redis connection pool, so
// a fleet of proxy processes can share one cache instead of each
// holding its own isolated, cold LRU. Adapted from the teacher's
// standalone Redis cache.Cache implementation onto the proxy's
// cache.Store seam.
package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/SuoChen1008/caching-fttp-proxy-server/internal/cache"
)

// Config controls the connection pool backing a Store.
type Config struct {
	// Address is the Redis server address, e.g. "localhost:6379".
	// Required.
	Address string

	// Password authenticates the connection. Optional.
	Password string

	// DB selects the Redis database number. Optional, defaults to 0.
	DB int

	// MaxIdle bounds idle pooled connections. Optional, defaults to 10.
	MaxIdle int

	// MaxActive bounds total pooled connections. Optional, defaults to 100.
	MaxActive int

	// IdleTimeout closes idle connections older than this. Optional,
	// defaults to 5 minutes.
	IdleTimeout time.Duration

	// ConnectTimeout, ReadTimeout, WriteTimeout bound the respective
	// socket operations. Optional, each defaults to 5 seconds.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxIdle == 0 {
		c.MaxIdle = 10
	}
	if c.MaxActive == 0 {
		c.MaxActive = 100
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Store is a cache.Store backed by a Redis connection pool.
type Store struct {
	pool *redis.Pool
}

// keyPrefix avoids collision with other data sharing the same Redis
// keyspace.
const keyPrefix = "proxycache:"

// New dials cfg.Address and returns a Store backed by a connection
// pool, after verifying the connection with a PING.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("rediscache: address is required")
	}
	cfg = cfg.withDefaults()

	pool := &redis.Pool{
		MaxIdle:     cfg.MaxIdle,
		MaxActive:   cfg.MaxActive,
		IdleTimeout: cfg.IdleTimeout,
		Dial: func() (redis.Conn, error) {
			opts := []redis.DialOption{
				redis.DialConnectTimeout(cfg.ConnectTimeout),
				redis.DialReadTimeout(cfg.ReadTimeout),
				redis.DialWriteTimeout(cfg.WriteTimeout),
				redis.DialDatabase(cfg.DB),
			}
			if cfg.Password != "" {
				opts = append(opts, redis.DialPassword(cfg.Password))
			}
			return redis.Dial("tcp", cfg.Address, opts...)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}

	conn := pool.Get()
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("rediscache: connect to %s: %w", cfg.Address, err)
	}

	return &Store{pool: pool}, nil
}

// Get returns the response stored under key, or ok=false if absent.
// Context cancellation is not propagated to the underlying call; redigo
// has no per-call context support.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	conn := s.pool.Get()
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", keyPrefix+key))
	if err != nil {
		if err == redis.ErrNil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("rediscache: get %q: %w", key, err)
	}
	return data, true, nil
}

// Set stores value under key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	conn := s.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("SET", keyPrefix+key, value); err != nil {
		return fmt.Errorf("rediscache: set %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	conn := s.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("DEL", keyPrefix+key); err != nil {
		return fmt.Errorf("rediscache: delete %q: %w", key, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

var _ cache.Store = (*Store)(nil)
