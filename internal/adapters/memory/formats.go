package memory

import (
	"context"
	"sort"

	"github.com/passbooklabs/passbook/pkg/domain"
	"github.com/passbooklabs/passbook/pkg/statement"
)

// FormatStore implements ports.FormatLoader over a fixed set of specs.
// It serves the compiled-in formats when no provisioned store is configured.
type FormatStore struct {
	specs map[string]*statement.FormatSpec
}

// NewFormatStore creates a loader holding the builtin specs plus extra.
// A spec in extra with a builtin's name replaces it.
func NewFormatStore(extra ...*statement.FormatSpec) *FormatStore {
	specs := make(map[string]*statement.FormatSpec)
	for _, spec := range statement.Builtin() {
		specs[spec.Name] = spec
	}
	for _, spec := range extra {
		specs[spec.Name] = spec
	}
	return &FormatStore{specs: specs}
}

// GetFormat returns the spec for name, or domain.ErrUnknownFormat.
func (s *FormatStore) GetFormat(ctx context.Context, name string) (*statement.FormatSpec, error) {
	spec, ok := s.specs[name]
	if !ok {
		return nil, domain.ErrUnknownFormat
	}
	return spec, nil
}

// ListFormats returns every known format name, sorted.
func (s *FormatStore) ListFormats(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(s.specs))
	for name := range s.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
