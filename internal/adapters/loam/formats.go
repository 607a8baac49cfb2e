// Package loam reads provisioned format packs out of a loam document store.
// The provisioner writes the store; this adapter is its read side.
package loam

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/loam"
	"gopkg.in/yaml.v3"

	"github.com/passbooklabs/passbook/internal/logging"
	"github.com/passbooklabs/passbook/pkg/domain"
	"github.com/passbooklabs/passbook/pkg/statement"
)

// lockID is the lockfile document the provisioner writes next to the packs.
// It is bookkeeping, never a format.
const lockID = "installed"

// FormatStore implements ports.FormatLoader over a provisioned pack store,
// layered on the specs compiled into the binary. A provisioned pack shadows
// a builtin with the same name.
type FormatStore struct {
	repo    *loam.TypedRepository[domain.InstalledPack]
	builtin map[string]*statement.FormatSpec
	log     *slog.Logger
}

// Option configures a FormatStore.
type Option func(*FormatStore)

// WithLogger sets the logger for pack load diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(s *FormatStore) {
		s.log = log
	}
}

// Open opens the pack store at dir. The directory must exist; serving never
// creates stores, only `passbook provision` does.
func Open(dir string, opts ...Option) (*FormatStore, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("format store: %w", err)
	}

	repo, err := loam.Init(dir, loam.WithReadOnly(true))
	if err != nil {
		return nil, fmt.Errorf("format store %s: %w", dir, err)
	}

	return NewFromRepo(loam.NewTypedRepository[domain.InstalledPack](repo), opts...), nil
}

// NewFromRepo wraps an already initialized repository.
func NewFromRepo(repo *loam.TypedRepository[domain.InstalledPack], opts ...Option) *FormatStore {
	s := &FormatStore{
		repo:    repo,
		builtin: make(map[string]*statement.FormatSpec),
		log:     logging.NewNop(),
	}
	for _, spec := range statement.Builtin() {
		s.builtin[spec.Name] = spec
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetFormat returns the provisioned spec for name, falling back to the
// builtin set. Returns domain.ErrUnknownFormat when neither has it.
func (s *FormatStore) GetFormat(ctx context.Context, name string) (*statement.FormatSpec, error) {
	if name != lockID {
		doc, err := s.repo.Get(ctx, name)
		if err == nil {
			spec, perr := parseSpec(doc.Content)
			if perr != nil {
				return nil, fmt.Errorf("pack %q: %w", name, perr)
			}
			s.log.Debug("provisioned pack loaded", "format", name, "version", doc.Data.Version)
			return spec, nil
		}
		s.log.Debug("pack not in store, trying builtins", "format", name, "err", err)
	}

	if spec, ok := s.builtin[name]; ok {
		return spec, nil
	}
	return nil, fmt.Errorf("format %q: %w", name, domain.ErrUnknownFormat)
}

// ListFormats returns the union of provisioned and builtin pack names, sorted.
func (s *FormatStore) ListFormats(ctx context.Context) ([]string, error) {
	docs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list packs: %w", err)
	}

	seen := make(map[string]bool, len(docs)+len(s.builtin))
	for name := range s.builtin {
		seen[name] = true
	}
	for _, doc := range docs {
		name := trimExtension(doc.ID)
		if name == lockID {
			continue
		}
		seen[name] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func parseSpec(content string) (*statement.FormatSpec, error) {
	var spec statement.FormatSpec
	if err := yaml.Unmarshal([]byte(content), &spec); err != nil {
		return nil, fmt.Errorf("parse format spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// trimExtension normalizes a document ID to a pack name. Loam document IDs
// may carry the storage extension depending on how they were listed.
func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
