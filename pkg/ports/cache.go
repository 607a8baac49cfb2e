package ports

import "context"

// Cache stores computed analysis results keyed by content digest.
// Entries are byte slices; callers own the encoding.
type Cache interface {
	// Get retrieves the value for key.
	// Returns domain.ErrCacheMiss if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, subject to the adapter's TTL policy.
	Set(ctx context.Context, key string, value []byte) error
}
