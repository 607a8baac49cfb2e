package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/passbooklabs/passbook/pkg/domain"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "passbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func envWith(key, value string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		if k == key {
			return value, true
		}
		return "", false
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Empty(t, cfg.Server.Bind, "bind must come from flag, env, or file")
	assert.Equal(t, 1, cfg.Server.Workers)
	assert.Equal(t, ClassProcess, cfg.Server.WorkerClass)
	assert.Equal(t, 30*time.Second, cfg.Server.GracePeriod.Std())
	assert.Equal(t, 30*time.Second, cfg.Server.BootTimeout.Std())
	assert.Equal(t, 1024, cfg.Server.MaxInFlight)
	assert.Equal(t, 5, cfg.Restart.MaxRetries)
	assert.Equal(t, time.Second, cfg.Restart.InitialDelay.Std())
	assert.Equal(t, time.Minute, cfg.Restart.MaxDelay.Std())
	assert.Equal(t, 2.0, cfg.Restart.Multiplier)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "analyzer", cfg.App.Ref)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
server:
  bind: "127.0.0.1:9000"
  workers: 4
  worker_class: inline
  grace_period: 5s
restart:
  max_retries: 2
cache:
  backend: redis
  redis_addr: "localhost:6379"
  ttl: 1h
app:
  ref: analyzer
  options:
    formats_dir: /etc/passbook/formats
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Bind)
	assert.Equal(t, 4, cfg.Server.Workers)
	assert.Equal(t, ClassInline, cfg.Server.WorkerClass)
	assert.Equal(t, 5*time.Second, cfg.Server.GracePeriod.Std())
	assert.Equal(t, 2, cfg.Restart.MaxRetries)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL.Std())
	assert.Equal(t, "/etc/passbook/formats", cfg.App.Options["formats_dir"])
	assert.Equal(t, "debug", cfg.LogLevel)

	// Fields the file does not mention keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.BootTimeout.Std())
	assert.Equal(t, time.Second, cfg.Restart.InitialDelay.Std())
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := writeFile(t, "server:\n  bindd: \"oops\"\n")
	_, err := Load(path)
	assert.Error(t, err, "typoed keys must not be silently ignored")
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name     string
		port     string
		wantBind string
		wantErr  bool
	}{
		{"valid port", "8080", "0.0.0.0:8080", false},
		{"not a number", "http", "", true},
		{"zero", "0", "", true},
		{"too large", "70000", "", true},
		{"negative", "-1", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := cfg.ApplyEnv(envWith("PORT", tt.port))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidPort)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBind, cfg.Server.Bind)
		})
	}
}

func TestApplyEnv_NoPortKeepsBind(t *testing.T) {
	cfg := Default()
	cfg.Server.Bind = "127.0.0.1:9000"
	require.NoError(t, cfg.ApplyEnv(noEnv))
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Bind)
}

func TestApplyEnv_PortOverridesFileBind(t *testing.T) {
	cfg := Default()
	cfg.Server.Bind = "127.0.0.1:9000"
	require.NoError(t, cfg.ApplyEnv(envWith("PORT", "8081")))
	assert.Equal(t, "0.0.0.0:8081", cfg.Server.Bind)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Server.Bind = "0.0.0.0:8080"
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("no bind", func(t *testing.T) {
		cfg := valid()
		cfg.Server.Bind = ""
		assert.ErrorIs(t, cfg.Validate(), domain.ErrNoBindAddress)
	})

	t.Run("zero workers", func(t *testing.T) {
		cfg := valid()
		cfg.Server.Workers = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown worker class", func(t *testing.T) {
		cfg := valid()
		cfg.Server.WorkerClass = "thread"
		assert.Error(t, cfg.Validate())
	})

	t.Run("redis backend requires addr", func(t *testing.T) {
		cfg := valid()
		cfg.Cache.Backend = "redis"
		cfg.Cache.RedisAddr = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing app ref", func(t *testing.T) {
		cfg := valid()
		cfg.App.Ref = ""
		assert.Error(t, cfg.Validate())
	})
}

func TestAppOptions(t *testing.T) {
	cfg := Default()
	cfg.App.Options = map[string]any{"formats_dir": "/x"}
	cfg.Cache.Backend = "redis"
	cfg.Cache.RedisAddr = "localhost:6379"
	cfg.Cache.TTL = Duration(time.Hour)

	opts := cfg.AppOptions()
	assert.Equal(t, "/x", opts["formats_dir"])

	cache, ok := opts["cache"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "redis", cache["backend"])
	assert.Equal(t, "localhost:6379", cache["redis_addr"])
	assert.Equal(t, "1h0m0s", cache["ttl"])

	// The configured map is copied, not aliased.
	opts["formats_dir"] = "/y"
	assert.Equal(t, "/x", cfg.App.Options["formats_dir"])
}

func TestDurationYAML(t *testing.T) {
	var d Duration
	require.NoError(t, yaml.Unmarshal([]byte(`"90s"`), &d))
	assert.Equal(t, 90*time.Second, d.Std())

	assert.Error(t, yaml.Unmarshal([]byte(`300`), &d), "bare integers need a unit")

	out, err := yaml.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "1m30s\n", string(out))
}
