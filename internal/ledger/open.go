package ledger

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Options selects and configures a ledger backend.
type Options struct {
	Backend string `yaml:"backend" env:"LEDGER_BACKEND"`
	// Path is the JSON document used by the file backend.
	Path string `yaml:"path" env:"LEDGER_PATH"`
	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn" env:"LEDGER_DSN"`

	RedisAddr     string `yaml:"redis_addr" env:"LEDGER_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"LEDGER_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"LEDGER_REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" env:"LEDGER_REDIS_PREFIX"`
}

// Open returns the backend named by opts.Backend. An empty backend is memory.
func Open(ctx context.Context, opts Options) (Ledger, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		if opts.Path == "" {
			return nil, bserr.Newf(bserr.KindInvalidConfig, "ledger.open", "file backend requires a path")
		}
		f, err := OpenFile(opts.Path)
		if err != nil {
			return nil, err
		}
		return f, nil
	case BackendPostgres:
		if opts.DSN == "" {
			return nil, bserr.Newf(bserr.KindInvalidConfig, "ledger.open", "postgres backend requires a dsn")
		}
		p, err := OpenPostgres(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendRedis:
		if opts.RedisAddr == "" {
			return nil, bserr.Newf(bserr.KindInvalidConfig, "ledger.open", "redis backend requires an address")
		}
		r, err := OpenRedis(ctx, &redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		}, opts.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, bserr.New(bserr.KindInvalidConfig, "ledger.open", fmt.Errorf("unknown backend %q", opts.Backend))
	}
}
