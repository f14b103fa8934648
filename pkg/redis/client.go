package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options selects how to reach Redis. URL wins over Addr when set.
type Options struct {
	URL      string
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Client wraps go-redis client with the key namespace shared by every component.
type Client struct {
	*redis.Client
	Keys   Keyspace
	logger *zap.Logger
}

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var ro *redis.Options
	if opts.URL != "" {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		ro = parsed
	} else {
		ro = &redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}
	}
	rdb := redis.NewClient(ro)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("Redis client connected", zap.String("addr", ro.Addr), zap.String("prefix", opts.Prefix))
	return &Client{Client: rdb, Keys: Keyspace(opts.Prefix), logger: logger}, nil
}

// Keyspace prefixes keys so several sites can share one database.
type Keyspace string

// Key joins parts with ':' under the prefix: Keyspace("birthday").Key("rsvp", id) == "birthday:rsvp:<id>".
func (k Keyspace) Key(parts ...string) string {
	if k == "" {
		return strings.Join(parts, ":")
	}
	return string(k) + ":" + strings.Join(parts, ":")
}
