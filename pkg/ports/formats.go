package ports

import (
	"context"

	"github.com/passbooklabs/passbook/pkg/statement"
)

// FormatLoader resolves statement format packs by name.
type FormatLoader interface {
	// GetFormat returns the spec for name.
	// Returns domain.ErrUnknownFormat if no pack carries that name.
	GetFormat(ctx context.Context, name string) (*statement.FormatSpec, error)

	// ListFormats returns the names of every loaded pack, sorted.
	ListFormats(ctx context.Context) ([]string, error)
}
