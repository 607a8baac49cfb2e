package analyzer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passbooklabs/passbook/internal/apps/analyzer"
	"github.com/passbooklabs/passbook/internal/logging"
	"github.com/passbooklabs/passbook/pkg/apps"
)

func TestFactory_BuildsFromOptionMap(t *testing.T) {
	factory := analyzer.Factory()

	h, err := factory(context.Background(), apps.Runtime{
		Logger: logging.NewNop(),
		Options: map[string]any{
			"default_format": "hdfc",
			"cache":          map[string]any{"backend": "memory", "ttl": "1m"},
		},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/formats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegister_ResolvableByName(t *testing.T) {
	reg := apps.NewRegistry()
	analyzer.Register(reg)

	_, err := reg.Resolve(analyzer.Name)
	assert.NoError(t, err)
}

func TestFactory_RejectsUnknownCacheBackend(t *testing.T) {
	factory := analyzer.Factory()

	_, err := factory(context.Background(), apps.Runtime{
		Logger:  logging.NewNop(),
		Options: map[string]any{"cache": map[string]any{"backend": "memcached"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestFactory_RejectsUnparsableTTL(t *testing.T) {
	factory := analyzer.Factory()

	_, err := factory(context.Background(), apps.Runtime{
		Logger:  logging.NewNop(),
		Options: map[string]any{"cache": map[string]any{"backend": "memory", "ttl": "soon"}},
	})
	assert.Error(t, err)
}

func TestFactory_RejectsMissingFormatsDir(t *testing.T) {
	factory := analyzer.Factory()

	_, err := factory(context.Background(), apps.Runtime{
		Logger:  logging.NewNop(),
		Options: map[string]any{"formats_dir": filepath.Join(t.TempDir(), "absent")},
	})
	assert.Error(t, err)
}

func TestFactory_RedisBackendWiresThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	factory := analyzer.Factory()

	h, err := factory(context.Background(), apps.Runtime{
		Logger: logging.NewNop(),
		Options: map[string]any{
			"cache": map[string]any{"backend": "redis", "redis_addr": mr.Addr(), "ttl": "1m"},
		},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, upload(t, "/analyze", []byte(statementCSV), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, mr.Keys(), "analysis result lands in redis")
}

func TestFactory_RedisBackendFailsFastWhenUnreachable(t *testing.T) {
	factory := analyzer.Factory()

	_, err := factory(context.Background(), apps.Runtime{
		Logger:  logging.NewNop(),
		Options: map[string]any{"cache": map[string]any{"backend": "redis", "redis_addr": "127.0.0.1:1"}},
	})
	assert.Error(t, err)
}
