package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mitchellh/mapstructure"

	loamAdapter "github.com/passbooklabs/passbook/internal/adapters/loam"
	"github.com/passbooklabs/passbook/internal/adapters/memory"
	"github.com/passbooklabs/passbook/internal/adapters/redis"
	"github.com/passbooklabs/passbook/pkg/apps"
	"github.com/passbooklabs/passbook/pkg/ports"
)

// Options is the mapstructure shape of the analyzer's option map.
type Options struct {
	// DefaultFormat is the pack used when an upload does not name one.
	DefaultFormat string `mapstructure:"default_format"`

	// FormatsDir points at a provisioned pack store. Empty serves only the
	// builtin formats.
	FormatsDir string `mapstructure:"formats_dir"`

	// MaxUploadBytes overrides the 10 MiB upload cap.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`

	// Cache is injected by the runtime from the resolved configuration.
	Cache CacheOptions `mapstructure:"cache"`
}

// CacheOptions mirrors the runtime cache configuration through the option map.
type CacheOptions struct {
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	TTL           string `mapstructure:"ttl"`
}

// Register wires the analyzer into a registry.
func Register(reg *apps.Registry) {
	reg.Register(Name, Factory())
}

// Factory builds analyzer instances from the runtime option map. Every worker
// gets its own instance; sharing results across workers is the job of the
// cache backend, not the handler.
func Factory() apps.Factory {
	return func(ctx context.Context, rt apps.Runtime) (http.Handler, error) {
		var opts Options
		if err := mapstructure.Decode(rt.Options, &opts); err != nil {
			return nil, fmt.Errorf("analyzer options: %w", err)
		}

		cfg, err := opts.build(ctx, rt.Logger)
		if err != nil {
			return nil, err
		}
		return New(cfg), nil
	}
}

func (o Options) build(ctx context.Context, log *slog.Logger) (Config, error) {
	cfg := Config{
		Logger:         log,
		DefaultFormat:  o.DefaultFormat,
		MaxUploadBytes: o.MaxUploadBytes,
	}

	if o.FormatsDir != "" {
		store, err := loamAdapter.Open(o.FormatsDir, loamAdapter.WithLogger(log))
		if err != nil {
			return Config{}, fmt.Errorf("analyzer formats: %w", err)
		}
		cfg.Formats = store
	}

	cache, err := o.Cache.build(ctx, log)
	if err != nil {
		return Config{}, err
	}
	cfg.Cache = cache

	return cfg, nil
}

func (o CacheOptions) build(ctx context.Context, log *slog.Logger) (ports.Cache, error) {
	ttl := time.Duration(-1)
	if o.TTL != "" {
		d, err := time.ParseDuration(o.TTL)
		if err != nil {
			return nil, fmt.Errorf("analyzer cache ttl %q: %w", o.TTL, err)
		}
		ttl = d
	}

	switch o.Backend {
	case "", "memory":
		if ttl < 0 {
			return memory.NewCache(), nil
		}
		return memory.NewCache(memory.WithTTL(ttl)), nil
	case "redis":
		opts := []redis.Option{redis.WithLogger(log)}
		if ttl >= 0 {
			opts = append(opts, redis.WithTTL(ttl))
		}
		c := redis.New(o.RedisAddr, o.RedisPassword, o.RedisDB, opts...)
		if err := c.Ping(ctx); err != nil {
			return nil, fmt.Errorf("analyzer cache: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("analyzer cache: unknown backend %q", o.Backend)
	}
}
