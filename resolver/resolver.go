// Package resolver implements the Artifact Resolver (C4): given
// (tool, version, platform) it runs a strategy ladder — in-process memo,
// package-manager installer, OCI registry, HTTP origin — and returns a
// path to a ready-to-execute file, using the fastest strategy that
// succeeds. Grounded on original_source/tools/oras_protoc.py's
// ProtocOrasDistributor (the ladder and metrics shape) and on the
// teacher's authHeaderCache (the in-process memo's map+mutex discipline).
package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/birbparty/toolcache/cache"
	"github.com/birbparty/toolcache/installer"
	"github.com/birbparty/toolcache/internal/httpfetch"
	"github.com/birbparty/toolcache/registry"
	"github.com/birbparty/toolcache/toolerr"
)

// state names the resolver's one-way state machine, spec.md §4.4.
type state int

const (
	stateNew state = iota
	stateCheckMemo
	stateTryPM
	stateTryOCI
	stateTryHTTP
	stateDone
	stateError
)

// Resolver runs the strategy ladder for one process. It is safe for
// concurrent use; identical concurrent requests collapse into a single
// strategy run via singleflight.
type Resolver struct {
	registry   *registry.Client
	blobCache  *cache.Cache
	installers []installer.Installer
	table      *Table
	wrapperDir string
	httpDir    string

	metrics *Metrics
	sf      singleflight.Group

	memoMu sync.Mutex
	memo   map[Key]string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRegistry sets the OCI registry client (C2) used by the OCI strategy.
func WithRegistry(c *registry.Client) Option {
	return func(r *Resolver) { r.registry = c }
}

// WithBlobCache sets the digest cache (C1) the HTTP strategy inserts
// downloaded files into.
func WithBlobCache(c *cache.Cache) Option {
	return func(r *Resolver) { r.blobCache = c }
}

// WithInstallers sets the package-manager installers tried, in order, by
// the PM strategy.
func WithInstallers(installers ...installer.Installer) Option {
	return func(r *Resolver) { r.installers = installers }
}

// WithTable sets the compile-time (tool, version, platform) → location
// table consulted by the OCI and HTTP strategies.
func WithTable(t *Table) Option {
	return func(r *Resolver) { r.table = t }
}

// WithWrapperDir sets where package-manager-installed wrapper scripts are
// written. Unset by default, in which case no extra wrapper is written
// for an installer result that carries only a binary path.
func WithWrapperDir(dir string) Option {
	return func(r *Resolver) { r.wrapperDir = dir }
}

// WithHTTPScratchDir sets the scratch directory HTTP downloads land in
// before verification. Defaults to os.TempDir().
func WithHTTPScratchDir(dir string) Option {
	return func(r *Resolver) { r.httpDir = dir }
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		table:   NewTable(),
		metrics: newMetrics(),
		memo:    make(map[Key]string),
		httpDir: os.TempDir(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Metrics returns a read-only snapshot of every strategy's hit/miss/
// elapsed-time counters observed so far.
func (r *Resolver) Metrics() map[Strategy]StrategyMetrics {
	return r.metrics.Snapshot()
}

// Resolve runs the strategy ladder for (tool, version, platform) and
// returns a path to a ready-to-execute file. A second, identical call in
// the same process returns the memoized path with zero network I/O.
func (r *Resolver) Resolve(ctx context.Context, tool, version, platform string) (string, error) {
	const op = "resolver.Resolve"
	key := Key{Tool: tool, Version: version, Platform: platform}

	if path, ok := r.memoLookup(key); ok {
		r.metrics.recordHit(StrategyMemo, 0)
		return path, nil
	}
	r.metrics.recordMiss(StrategyMemo, 0)

	sfKey := fmt.Sprintf("%s@%s/%s", key.Tool, key.Version, key.Platform)
	v, err, _ := r.sf.Do(sfKey, func() (interface{}, error) {
		// Re-check the memo: a sibling request may have completed the
		// ladder while this one waited to enter singleflight.
		if path, ok := r.memoLookup(key); ok {
			return path, nil
		}
		return r.runLadder(ctx, key)
	})
	if err != nil {
		return "", toolerr.New(op, toolerr.KindOf(err), err)
	}
	return v.(string), nil
}

func (r *Resolver) memoLookup(key Key) (string, bool) {
	r.memoMu.Lock()
	defer r.memoMu.Unlock()
	path, ok := r.memo[key]
	return path, ok
}

func (r *Resolver) memoStore(key Key, path string) {
	r.memoMu.Lock()
	defer r.memoMu.Unlock()
	r.memo[key] = path
}

// runLadder drives the one-way state machine: TRY_PM → TRY_OCI →
// TRY_HTTP → DONE/ERROR. No strategy is retried within one request. An
// integrity-mismatch or auth-required failure ends the ladder without
// trying the remaining strategies.
func (r *Resolver) runLadder(ctx context.Context, key Key) (string, error) {
	st := stateTryPM
	var lastErr error

	for {
		switch st {
		case stateTryPM:
			path, err := r.tryPM(ctx, key)
			if err == nil {
				r.memoStore(key, path)
				return path, nil
			}
			lastErr = err
			st = stateTryOCI
			if toolerr.Is(err, toolerr.KindIntegrityMismatch) || toolerr.Is(err, toolerr.KindAuthRequired) {
				st = stateError
			}

		case stateTryOCI:
			path, err := r.tryOCI(ctx, key)
			if err == nil {
				r.memoStore(key, path)
				return path, nil
			}
			lastErr = err
			st = stateTryHTTP
			if toolerr.Is(err, toolerr.KindIntegrityMismatch) || toolerr.Is(err, toolerr.KindAuthRequired) {
				st = stateError
			}

		case stateTryHTTP:
			path, err := r.tryHTTP(ctx, key)
			if err == nil {
				r.memoStore(key, path)
				return path, nil
			}
			lastErr = err
			st = stateError

		case stateError:
			if lastErr == nil {
				lastErr = fmt.Errorf("no strategy could resolve %s@%s/%s", key.Tool, key.Version, key.Platform)
			}
			return "", toolerr.New("resolver.runLadder", toolerr.KindOf(lastErr), lastErr)
		}
	}
}

// tryPM attempts the package-manager strategy: the first configured
// installer that is available and declares support for key.Tool.
func (r *Resolver) tryPM(ctx context.Context, key Key) (string, error) {
	const op = "resolver.tryPM"
	start := time.Now()

	var chosen installer.Installer
	for _, inst := range r.installers {
		if inst.Available(ctx) && inst.Supports(key.Tool) {
			chosen = inst
			break
		}
	}
	if chosen == nil {
		r.metrics.recordMiss(StrategyPM, time.Since(start))
		return "", toolerr.New(op, toolerr.KindNotFound, fmt.Errorf("no installer supports %s", key.Tool))
	}

	res, err := chosen.Install(ctx, installer.PluginSpec{Name: key.Tool, Version: key.Version})
	if err != nil {
		r.metrics.recordMiss(StrategyPM, time.Since(start))
		return "", err
	}

	path := res.BinaryPath
	if res.WrapperPath != "" {
		path = res.WrapperPath
	} else if r.wrapperDir != "" {
		// Register a stable shim even for a directly-executable binary so
		// every successful PM install exposes the same kind of path.
		wrapperDir := r.wrapperDir
		if wp, werr := installer.WriteWrapper(wrapperDir, key.Tool, res.BinaryPath); werr == nil {
			path = wp
		}
	}

	r.metrics.recordHit(StrategyPM, time.Since(start))
	return path, nil
}

// tryOCI attempts the OCI registry strategy via the compile-time table
// and C2.Pull.
func (r *Resolver) tryOCI(ctx context.Context, key Key) (string, error) {
	const op = "resolver.tryOCI"
	start := time.Now()

	loc, ok := r.table.OCI[key]
	if !ok || r.registry == nil {
		r.metrics.recordMiss(StrategyOCI, time.Since(start))
		return "", toolerr.New(op, toolerr.KindNotFound, fmt.Errorf("no OCI location for %s@%s/%s", key.Tool, key.Version, key.Platform))
	}

	result, err := r.registry.Pull(ctx, loc.Ref, loc.ExpectedDigest)
	if err != nil {
		r.metrics.recordMiss(StrategyOCI, time.Since(start))
		return "", err
	}

	path, ok := result.Files[key.Tool]
	if !ok {
		for _, p := range result.Files {
			path = p
			break
		}
	}
	if path == "" {
		r.metrics.recordMiss(StrategyOCI, time.Since(start))
		return "", toolerr.New(op, toolerr.KindProtocolError, fmt.Errorf("pulled manifest for %s has no usable layer", loc.Ref))
	}

	r.metrics.recordHit(StrategyOCI, time.Since(start))
	return path, nil
}

// tryHTTP attempts the HTTP-origin strategy: download from a pinned URL,
// verify SHA-256, unpack if needed, and insert into C1.
func (r *Resolver) tryHTTP(ctx context.Context, key Key) (string, error) {
	const op = "resolver.tryHTTP"
	start := time.Now()

	loc, ok := r.table.HTTP[key]
	if !ok {
		r.metrics.recordMiss(StrategyHTTP, time.Since(start))
		return "", toolerr.New(op, toolerr.KindNotFound, fmt.Errorf("no HTTP location for %s@%s/%s", key.Tool, key.Version, key.Platform))
	}
	if r.blobCache == nil {
		r.metrics.recordMiss(StrategyHTTP, time.Since(start))
		return "", toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("no blob cache configured for HTTP strategy"))
	}

	downloaded, err := httpfetch.Download(ctx, loc.URL, loc.SHA256, r.httpDir)
	if err != nil {
		r.metrics.recordMiss(StrategyHTTP, time.Since(start))
		return "", err
	}
	defer os.Remove(downloaded) //nolint:errcheck

	src := downloaded
	if loc.ArchiveMember != "" {
		extracted := filepath.Join(r.httpDir, fmt.Sprintf("extracted-%s-%s", key.Tool, key.Version))
		if err := httpfetch.ExtractMember(downloaded, loc.ArchiveMember, extracted); err != nil {
			r.metrics.recordMiss(StrategyHTTP, time.Since(start))
			return "", err
		}
		defer os.Remove(extracted) //nolint:errcheck
		src = extracted
	}

	f, err := os.Open(src)
	if err != nil {
		r.metrics.recordMiss(StrategyHTTP, time.Since(start))
		return "", toolerr.New(op, toolerr.KindInternal, err)
	}
	defer f.Close()

	digest := "sha256:" + loc.SHA256
	path, err := r.blobCache.Insert(digest, f)
	if err != nil {
		r.metrics.recordMiss(StrategyHTTP, time.Since(start))
		return "", err
	}

	r.metrics.recordHit(StrategyHTTP, time.Since(start))
	return path, nil
}
