package provision

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/passbooklabs/passbook/pkg/domain"
)

// Index is the published pack catalog, an index.yaml at the source root.
type Index struct {
	Packs map[string][]Release `yaml:"packs"`
}

// Release is one published version of a pack.
type Release struct {
	Version string `yaml:"version"`
	Path    string `yaml:"path"`
	Digest  string `yaml:"digest"` // hex SHA-256, optionally "sha256:" prefixed
}

// Resolve picks the highest release satisfying the requirement.
func (ix *Index) Resolve(req Requirement) (Release, error) {
	releases, ok := ix.Packs[req.Name]
	if !ok {
		return Release{}, fmt.Errorf("%w: %q", domain.ErrUnknownPack, req.Name)
	}

	var best *Release
	for i := range releases {
		r := &releases[i]
		if !req.Constraint.Matches(r.Version) {
			continue
		}
		if best == nil || semver.Compare(r.Version, best.Version) > 0 {
			best = r
		}
	}
	if best == nil {
		return Release{}, fmt.Errorf("%w: %s", domain.ErrNoVersion, req)
	}
	return *best, nil
}

func parseIndex(data []byte) (*Index, error) {
	var ix Index
	if err := yaml.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("parsing index: %w", err)
	}
	if len(ix.Packs) == 0 {
		return nil, fmt.Errorf("parsing index: no packs published")
	}
	return &ix, nil
}

// Source reads a pack index and its artifacts from one location.
type Source interface {
	// Index loads and parses index.yaml.
	Index(ctx context.Context) (*Index, error)

	// Artifact fetches one artifact by its index path. One attempt, no
	// retries: a failed fetch fails the provisioning run.
	Artifact(ctx context.Context, path string) ([]byte, error)
}

// OpenSource builds a Source for base: an HTTP(S) base URL or a local
// directory.
func OpenSource(base string, client *http.Client) Source {
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		if client == nil {
			client = &http.Client{Timeout: 30 * time.Second}
		}
		return &httpSource{base: base, client: client}
	}
	return &dirSource{dir: base}
}

type dirSource struct {
	dir string
}

func (s *dirSource) Index(ctx context.Context) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, "index.yaml"))
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	return parseIndex(data)
}

func (s *dirSource) Artifact(ctx context.Context, path string) ([]byte, error) {
	if !filepath.IsLocal(path) {
		return nil, fmt.Errorf("artifact path %q escapes the source directory", path)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", path, err)
	}
	return data, nil
}

type httpSource struct {
	base   string
	client *http.Client
}

func (s *httpSource) Index(ctx context.Context) (*Index, error) {
	data, err := s.get(ctx, "index.yaml")
	if err != nil {
		return nil, err
	}
	return parseIndex(data)
}

func (s *httpSource) Artifact(ctx context.Context, path string) ([]byte, error) {
	return s.get(ctx, path)
}

func (s *httpSource) get(ctx context.Context, path string) ([]byte, error) {
	u, err := url.JoinPath(s.base, path)
	if err != nil {
		return nil, fmt.Errorf("joining %q to index base: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %s", u, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", u, err)
	}
	return data, nil
}
