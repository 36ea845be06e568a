package bsr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/birbparty/toolcache/registry"
	"github.com/birbparty/toolcache/toolerr"
)

const completeMarker = ".complete"

// Resolver materialises BSR module trees, consulting the local tree
// cache, an optional OCI mirror, and an external `buf export` in that
// order.
type Resolver struct {
	root     string // "<cache root>/bsr"
	reg      *registry.Client
	defaults map[string]string
	bufPath  string
	exporter bufExporter
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRegistry sets the OCI registry client (C2) used for the mirror
// tier. If unset, the mirror tier is skipped and `buf export` is tried
// directly after the local tree cache.
func WithRegistry(c *registry.Client) Option {
	return func(r *Resolver) { r.reg = c }
}

// WithDefaultVersions overrides/extends the curated default-version
// table, keyed by "registry/owner/module".
func WithDefaultVersions(defaults map[string]string) Option {
	return func(r *Resolver) {
		for k, v := range defaults {
			r.defaults[k] = v
		}
	}
}

// WithBufPath overrides the `buf` executable invoked for the external-tool
// tier. Defaults to "buf" resolved via PATH.
func WithBufPath(path string) Option {
	return func(r *Resolver) {
		r.bufPath = path
		r.exporter = &subprocessBufExporter{bufPath: path}
	}
}

// withExporter overrides the export tier's implementation; unexported,
// used only by this package's own tests to avoid requiring `buf` on PATH.
func withExporter(e bufExporter) Option {
	return func(r *Resolver) { r.exporter = e }
}

// New creates a Resolver rooted at <root>/bsr (root typically the
// process's shared cache directory, per spec.md §6's on-disk layout).
func New(root string, opts ...Option) (*Resolver, error) {
	const op = "bsr.New"
	defaults, err := loadEmbeddedDefaults()
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		root:     filepath.Join(root, "bsr"),
		defaults: defaults,
		bufPath:  "buf",
	}
	r.exporter = &subprocessBufExporter{bufPath: r.bufPath}
	for _, opt := range opts {
		opt(r)
	}
	if err := os.MkdirAll(r.treesDir(), 0o755); err != nil {
		return nil, toolerr.New(op, toolerr.KindInternal, err)
	}
	return r, nil
}

func (r *Resolver) treesDir() string { return filepath.Join(r.root, "trees") }

func (r *Resolver) treeDir(coord Coordinate) string {
	return filepath.Join(r.treesDir(), hash(coord))
}

// Resolve returns a directory containing coord's .proto files, using the
// local tree cache if complete, else the OCI mirror, else `buf export`.
func (r *Resolver) Resolve(ctx context.Context, coord Coordinate) (string, error) {
	const op = "bsr.Resolve"

	if coord.Version == "" {
		v, err := r.defaultVersionFor(coord)
		if err != nil {
			return "", err
		}
		coord.Version = v
	}

	dir := r.treeDir(coord)
	if isComplete(dir) {
		return dir, nil
	}

	if r.reg != nil {
		path, err := r.resolveViaOCIMirror(ctx, coord, dir)
		if err == nil {
			return path, nil
		}
		// not-found/transport failures from the mirror fall through to
		// the external tool tier; anything else (integrity-mismatch) is
		// fatal, matching the ladder discipline in resolver (C4).
		if !toolerr.Is(err, toolerr.KindNotFound) && !toolerr.Retryable(err) {
			return "", toolerr.New(op, toolerr.KindOf(err), err)
		}
	}

	path, err := r.resolveViaBufExport(ctx, coord, dir)
	if err != nil {
		return "", toolerr.New(op, toolerr.KindOf(err), err)
	}
	return path, nil
}

func isComplete(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, completeMarker))
	return err == nil
}

func markComplete(dir string) error {
	return os.WriteFile(filepath.Join(dir, completeMarker), []byte{}, 0o644)
}

// atomicMoveIntoTree renames a fully-materialised staging directory into
// place as dir, then writes the completion marker — the same
// temp-then-rename discipline the digest cache (C1) uses for blobs.
func atomicMoveIntoTree(staging, dir string) error {
	const op = "bsr.atomicMoveIntoTree"
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return toolerr.New(op, toolerr.KindInternal, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return toolerr.New(op, toolerr.KindInternal, err)
	}
	if err := os.Rename(staging, dir); err != nil {
		return toolerr.New(op, toolerr.KindInternal, err)
	}
	if err := markComplete(dir); err != nil {
		return toolerr.New(op, toolerr.KindInternal, fmt.Errorf("mark tree complete: %w", err))
	}
	return nil
}
