package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passbooklabs/passbook/pkg/domain"
)

// RunCacheContract runs a suite of tests to verify that a Cache implementation
// adheres to the defined interface contract.
//
// advance moves the adapter's clock forward for expiry checks; pass nil for
// adapters without a controllable clock and the expiry subtest is skipped.
func RunCacheContract(t *testing.T, cache Cache, advance func(d time.Duration)) {
	ctx := context.Background()
	key := "contract-test-" + time.Now().Format("20060102150405")

	t.Run("Set and Get", func(t *testing.T) {
		err := cache.Set(ctx, key, []byte(`{"n":42}`))
		require.NoError(t, err, "Set should not return error")

		got, err := cache.Get(ctx, key)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, []byte(`{"n":42}`), got)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := cache.Get(ctx, "non-existent-"+key)
		assert.ErrorIs(t, err, domain.ErrCacheMiss)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, key, []byte("first")))
		require.NoError(t, cache.Set(ctx, key, []byte("second")))

		got, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got)
	})

	t.Run("Expiry", func(t *testing.T) {
		if advance == nil {
			t.Skip("adapter has no controllable clock")
		}

		require.NoError(t, cache.Set(ctx, key+"-ttl", []byte("soon gone")))
		advance(24 * time.Hour)

		_, err := cache.Get(ctx, key+"-ttl")
		assert.ErrorIs(t, err, domain.ErrCacheMiss, "Get after expiry should return ErrCacheMiss")
	})
}
