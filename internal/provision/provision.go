package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"gopkg.in/yaml.v3"

	"github.com/passbooklabs/passbook/internal/logging"
	"github.com/passbooklabs/passbook/pkg/domain"
	"github.com/passbooklabs/passbook/pkg/statement"
)

// LockID is the store document recording the installed set.
const LockID = "installed.md"

// Lock is the content of the lock document.
type Lock struct {
	GeneratedAt string                 `yaml:"generated_at" json:"generated_at" mapstructure:"generated_at"`
	Packs       []domain.InstalledPack `yaml:"packs" json:"packs" mapstructure:"packs"`
}

// Provisioner runs the manifest → resolve → fetch → verify → commit pipeline.
type Provisioner struct {
	source Source
	store  string
	log    *slog.Logger
	now    func() time.Time
}

// Option configures the provisioner.
type Option func(*Provisioner)

// WithLogger sets the provisioner's logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Provisioner) { p.log = log }
}

// WithClock overrides the timestamp source for lock records.
func WithClock(now func() time.Time) Option {
	return func(p *Provisioner) { p.now = now }
}

// New builds a provisioner installing from source into the loam store at
// store.
func New(source Source, store string, opts ...Option) *Provisioner {
	p := &Provisioner{
		source: source,
		store:  store,
		log:    logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type stagedPack struct {
	pack    domain.InstalledPack
	content []byte
}

// Run provisions every requirement in the manifest at manifestPath. Every
// artifact is fetched and verified before anything is written; the store is
// updated in one transaction or not at all.
func (p *Provisioner) Run(ctx context.Context, manifestPath string) ([]domain.InstalledPack, error) {
	reqs, err := ParseManifestFile(manifestPath)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		p.log.Warn("manifest declares no packs", "manifest", manifestPath)
	}

	index, err := p.source.Index(ctx)
	if err != nil {
		return nil, err
	}

	staged := make([]stagedPack, 0, len(reqs))
	for _, req := range reqs {
		sp, err := p.stage(ctx, index, req)
		if err != nil {
			return nil, err
		}
		staged = append(staged, sp)
	}

	return p.commit(ctx, staged)
}

// stage resolves one requirement, fetches its artifact and verifies both the
// digest and that the artifact is a usable format pack.
func (p *Provisioner) stage(ctx context.Context, index *Index, req Requirement) (stagedPack, error) {
	rel, err := index.Resolve(req)
	if err != nil {
		return stagedPack{}, err
	}

	data, err := p.source.Artifact(ctx, rel.Path)
	if err != nil {
		return stagedPack{}, err
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	want := strings.TrimPrefix(rel.Digest, "sha256:")
	if !strings.EqualFold(digest, want) {
		return stagedPack{}, fmt.Errorf("%w: %s@%s: index declares %s, artifact is %s",
			domain.ErrDigestMismatch, req.Name, rel.Version, want, digest)
	}

	var spec statement.FormatSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return stagedPack{}, fmt.Errorf("pack %s@%s: %w", req.Name, rel.Version, err)
	}
	if err := spec.Validate(); err != nil {
		return stagedPack{}, fmt.Errorf("pack %s@%s: %w", req.Name, rel.Version, err)
	}
	if spec.Name != req.Name {
		return stagedPack{}, fmt.Errorf("pack %s@%s declares format name %q", req.Name, rel.Version, spec.Name)
	}

	p.log.Info("pack staged", "pack", req.Name, "version", rel.Version)
	return stagedPack{
		pack: domain.InstalledPack{
			Name:        req.Name,
			Version:     rel.Version,
			Digest:      digest,
			InstalledAt: p.now().UTC().Format(time.RFC3339),
		},
		content: data,
	}, nil
}

// commit writes every staged pack plus the lock document in one loam
// transaction. Documents are markdown with YAML frontmatter: the install
// record in the frontmatter, the verified artifact bytes as the body.
func (p *Provisioner) commit(ctx context.Context, staged []stagedPack) ([]domain.InstalledPack, error) {
	if err := os.MkdirAll(p.store, 0o755); err != nil {
		return nil, fmt.Errorf("creating pack store: %w", err)
	}
	repo, err := loam.Init(p.store, loam.WithVersioning(false))
	if err != nil {
		return nil, fmt.Errorf("opening pack store: %w", err)
	}
	svc := core.NewService(repo)

	tx, err := svc.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting store transaction: %w", err)
	}

	installed := make([]domain.InstalledPack, 0, len(staged))
	for _, sp := range staged {
		content, err := frontmatterDoc(sp.pack, string(sp.content))
		if err != nil {
			return nil, fmt.Errorf("encoding pack %s: %w", sp.pack.Name, err)
		}
		if err := tx.Save(ctx, core.Document{
			ID:      sp.pack.Name + ".md",
			Content: content,
		}); err != nil {
			return nil, fmt.Errorf("saving pack %s: %w", sp.pack.Name, err)
		}
		installed = append(installed, sp.pack)
	}
	sort.Slice(installed, func(i, j int) bool { return installed[i].Name < installed[j].Name })

	lock, err := frontmatterDoc(Lock{
		GeneratedAt: p.now().UTC().Format(time.RFC3339),
		Packs:       installed,
	}, "Written by passbook provision. Do not edit.\n")
	if err != nil {
		return nil, fmt.Errorf("encoding lock: %w", err)
	}
	if err := tx.Save(ctx, core.Document{
		ID:      LockID,
		Content: lock,
	}); err != nil {
		return nil, fmt.Errorf("saving lock: %w", err)
	}

	if err := tx.Commit(ctx, fmt.Sprintf("provision %d packs", len(installed))); err != nil {
		return nil, fmt.Errorf("committing pack store: %w", err)
	}

	p.log.Info("pack store committed", "packs", len(installed), "store", p.store)
	return installed, nil
}

// frontmatterDoc renders a store document: meta as YAML frontmatter, body
// below it.
func frontmatterDoc(meta any, body string) (string, error) {
	fm, err := yaml.Marshal(meta)
	if err != nil {
		return "", err
	}
	return "---\n" + string(fm) + "---\n" + body, nil
}
