// Package config resolves the runtime configuration once at startup.
//
// Sources, highest precedence first: CLI flags (applied by the command
// layer), the PORT environment variable, an optional YAML file, and built-in
// defaults. The resolved Config is immutable afterwards; nothing re-reads
// the environment mid-process.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/passbooklabs/passbook/pkg/domain"
)

// Worker class names accepted by the supervisor.
const (
	ClassProcess = "process"
	ClassInline  = "inline"
)

// Config is the root configuration for a passbook runtime.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Restart  RestartConfig `yaml:"restart"`
	Cache    CacheConfig   `yaml:"cache"`
	App      AppConfig     `yaml:"app"`
	LogLevel string        `yaml:"log_level"`
}

// ServerConfig controls the listening socket and the worker pool.
type ServerConfig struct {
	// Bind is the master's listen address. It must be supplied by a flag,
	// PORT, or the config file; there is no built-in default.
	Bind        string   `yaml:"bind"`
	Workers     int      `yaml:"workers"`
	WorkerClass string   `yaml:"worker_class"`
	GracePeriod Duration `yaml:"grace_period"`
	BootTimeout Duration `yaml:"boot_timeout"`
	MaxInFlight int      `yaml:"max_inflight"`
	RateLimit   float64  `yaml:"rate_limit"`
	RateBurst   int      `yaml:"rate_burst"`
	// ControlAddr enables the supervisor's control listener when non-empty.
	ControlAddr string `yaml:"control_addr"`
}

// RestartConfig is the worker restart policy.
type RestartConfig struct {
	MaxRetries   int      `yaml:"max_retries"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	Multiplier   float64  `yaml:"multiplier"`
	// ResetAfter is how long a worker must stay serving before its retry
	// budget resets.
	ResetAfter Duration `yaml:"reset_after"`
}

// CacheConfig selects the analysis cache backend.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend       string   `yaml:"backend"`
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	RedisDB       int      `yaml:"redis_db"`
	TTL           Duration `yaml:"ttl"`
}

// AppConfig names the application to serve and carries its options.
type AppConfig struct {
	Ref     string         `yaml:"ref"`
	Options map[string]any `yaml:"options"`
}

// Default returns the built-in defaults. The bind address and application
// reference are deliberately empty: both must come from flag, env, or file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Workers:     1,
			WorkerClass: ClassProcess,
			GracePeriod: Duration(30 * time.Second),
			BootTimeout: Duration(30 * time.Second),
			MaxInFlight: 1024,
		},
		Restart: RestartConfig{
			MaxRetries:   5,
			InitialDelay: Duration(time.Second),
			MaxDelay:     Duration(time.Minute),
			Multiplier:   2.0,
			ResetAfter:   Duration(time.Minute),
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     Duration(15 * time.Minute),
		},
		App: AppConfig{
			Ref: "analyzer",
		},
		LogLevel: "info",
	}
}

// Load reads the optional YAML file at path over the defaults. An empty path
// returns the defaults unchanged; a missing explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := cfg.unmarshalStrict(data); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) unmarshalStrict(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(c)
	if errors.Is(err, io.EOF) { // empty file
		return nil
	}
	return err
}

// ApplyEnv overlays environment values using lookup (os.LookupEnv in
// production). Only PORT participates: PORT=8080 maps to bind 0.0.0.0:8080
// and overrides any file-provided bind.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	port, ok := lookup("PORT")
	if !ok || port == "" {
		return nil
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("%w: PORT=%q is not an integer", domain.ErrInvalidPort, port)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("%w: PORT=%d outside 1..65535", domain.ErrInvalidPort, n)
	}
	c.Server.Bind = "0.0.0.0:" + port
	return nil
}

// Validate checks the resolved configuration for conditions that must fail
// startup before any socket is bound.
func (c *Config) Validate() error {
	if c.Server.Bind == "" {
		return domain.ErrNoBindAddress
	}
	if c.Server.Workers < 1 {
		return fmt.Errorf("server.workers must be at least 1, got %d", c.Server.Workers)
	}
	switch c.Server.WorkerClass {
	case ClassProcess, ClassInline:
	default:
		return fmt.Errorf("unknown worker class %q (want %s or %s)", c.Server.WorkerClass, ClassProcess, ClassInline)
	}
	if c.Server.MaxInFlight < 1 {
		return fmt.Errorf("server.max_inflight must be at least 1, got %d", c.Server.MaxInFlight)
	}
	if c.Restart.Multiplier < 1 {
		return fmt.Errorf("restart.multiplier must be at least 1, got %v", c.Restart.Multiplier)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache backend %q (want memory or redis)", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return errors.New("cache.redis_addr is required for the redis backend")
	}
	if c.App.Ref == "" {
		return errors.New("app.ref is required")
	}
	return nil
}

// AppOptions returns the application option map with runtime-owned entries
// merged in: the cache settings travel under the "cache" key so an app
// factory can build its own cache client. The stored map is not mutated.
func (c *Config) AppOptions() map[string]any {
	opts := make(map[string]any, len(c.App.Options)+1)
	for k, v := range c.App.Options {
		opts[k] = v
	}
	opts["cache"] = map[string]any{
		"backend":        c.Cache.Backend,
		"redis_addr":     c.Cache.RedisAddr,
		"redis_password": c.Cache.RedisPassword,
		"redis_db":       c.Cache.RedisDB,
		"ttl":            time.Duration(c.Cache.TTL).String(),
	}
	return opts
}
