// Package cache implements the content-addressable blob store (C1): files
// keyed by a "sha256:<hex>" digest, sharded by the first two hex characters
// to bound directory fan-out, written atomically via a temp-file-then-rename
// protocol so concurrent readers never observe a partial write.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/birbparty/toolcache/toolerr"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
	hashChunkSize         = 8 * 1024
	digestAlgoPrefix      = "sha256:"
)

// Cache is a digest-addressed blob store rooted at a directory, typically
// "<cacheroot>/oras". It is safe for concurrent use by multiple goroutines
// and multiple processes.
type Cache struct {
	dir            string
	shardPrefixLen int
	dirPerm        fs.FileMode
	maxBytes       int64
	bytes          atomic.Int64
	pruneMu        sync.Mutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithShardPrefixLen sets how many hex characters of the digest are used to
// shard entries into subdirectories. 0 disables sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Cache) { c.shardPrefixLen = n }
}

// WithDirPerm sets the permission bits used when creating cache directories.
func WithDirPerm(mode fs.FileMode) Option {
	return func(c *Cache) { c.dirPerm = mode }
}

// WithMaxBytes caps total cache size; 0 disables the limit. Exceeding it
// triggers LRU-by-mtime pruning on insert.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) { c.maxBytes = n }
}

// New creates a cache rooted at dir, creating it if absent.
func New(dir string, opts ...Option) (*Cache, error) {
	const op = "cache.New"
	if dir == "" {
		return nil, toolerr.New(op, toolerr.KindConfigInvalid, errors.New("cache dir is empty"))
	}
	c := &Cache{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.shardPrefixLen < 0 {
		return nil, toolerr.New(op, toolerr.KindConfigInvalid, errors.New("shard prefix length must be >= 0"))
	}
	if c.maxBytes < 0 {
		return nil, toolerr.New(op, toolerr.KindConfigInvalid, errors.New("max bytes must be >= 0"))
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, toolerr.New(op, toolerr.KindInternal, err)
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, toolerr.New(op, toolerr.KindInternal, err)
	}
	c.bytes.Store(size)
	return c, nil
}

// Lookup returns the path of the cached blob for digest, and whether it
// exists. It is a pure stat: no content is read or verified.
func (c *Cache) Lookup(digest string) (path string, ok bool) {
	p, err := c.path(digest)
	if err != nil {
		return "", false
	}
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// Insert streams r into the cache under digest, verifying the streamed
// content hashes to digest before the file becomes visible. The write goes
// to a sibling temp file first, is fsynced, then renamed into place so
// concurrent readers never see a partial blob. If the digest is already
// present when Insert starts, it returns the existing path without
// writing. Two concurrent writers of the same digest may both finish
// their write; the later rename replaces the earlier file, which is
// harmless because both hold identical bytes by construction.
func (c *Cache) Insert(digest string, r io.Reader) (path string, err error) {
	const op = "cache.Insert"
	path, err = c.path(digest)
	if err != nil {
		return "", toolerr.New(op, toolerr.KindConfigInvalid, err)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return path, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return "", toolerr.New(op, toolerr.KindInternal, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".partial.*")
	if err != nil {
		return "", toolerr.New(op, toolerr.KindInternal, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	h := sha256.New()
	written, err := io.Copy(tmp, io.TeeReader(r, h))
	if err != nil {
		tmp.Close()
		cleanup()
		return "", toolerr.New(op, toolerr.KindTransportFailed, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return "", toolerr.New(op, toolerr.KindInternal, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", toolerr.New(op, toolerr.KindInternal, err)
	}

	got := digestAlgoPrefix + hex.EncodeToString(h.Sum(nil))
	if got != digest {
		cleanup()
		return "", toolerr.New(op, toolerr.KindIntegrityMismatch, fmt.Errorf("computed %s, expected %s", got, digest))
	}

	if ok, err := c.ensureCapacity(written); err != nil {
		cleanup()
		return "", toolerr.New(op, toolerr.KindInternal, err)
	} else if !ok {
		cleanup()
		return "", toolerr.New(op, toolerr.KindInternal, fmt.Errorf("blob of %d bytes exceeds cache max-bytes limit", written))
	}

	if err := os.Rename(tmpPath, path); err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			cleanup()
			return path, nil
		}
		cleanup()
		return "", toolerr.New(op, toolerr.KindInternal, err)
	}
	c.bytes.Add(written)
	return path, nil
}

// Verify streams the blob at path and confirms it hashes to digest. On
// mismatch the file is deleted and a KindIntegrityMismatch error returned,
// so a corrupt entry never lingers to fail the same way twice.
func (c *Cache) Verify(path, digest string) error {
	const op = "cache.Verify"
	f, err := os.Open(path)
	if err != nil {
		return toolerr.New(op, toolerr.KindInternal, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return toolerr.New(op, toolerr.KindInternal, err)
	}
	got := digestAlgoPrefix + hex.EncodeToString(h.Sum(nil))
	if got != digest {
		_ = os.Remove(path)
		return toolerr.New(op, toolerr.KindIntegrityMismatch, fmt.Errorf("computed %s, expected %s", got, digest))
	}
	return nil
}

// Delete removes the cached blob for digest, if present.
func (c *Cache) Delete(digest string) error {
	const op = "cache.Delete"
	path, err := c.path(digest)
	if err != nil {
		return toolerr.New(op, toolerr.KindConfigInvalid, err)
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return nil
		}
		return toolerr.New(op, toolerr.KindInternal, statErr)
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return toolerr.New(op, toolerr.KindInternal, err)
	}
	c.bytes.Add(-info.Size())
	return nil
}

// Evict walks all cached entries and removes those for which keep returns
// false. keep receives the digest string and the entry's mod time.
func (c *Cache) Evict(keep func(digest string, modTime time.Time) bool) (freed int64, err error) {
	const op = "cache.Evict"
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	err = filepath.WalkDir(c.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || strings.Contains(d.Name(), ".partial.") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		digest := digestAlgoPrefix + d.Name()
		if keep(digest, info.ModTime()) {
			return nil
		}
		if err := os.Remove(p); err != nil {
			return err
		}
		freed += info.Size()
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	if err != nil {
		return 0, toolerr.New(op, toolerr.KindInternal, err)
	}
	c.bytes.Add(-freed)
	return freed, nil
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *Cache) MaxBytes() int64 { return c.maxBytes }

// SizeBytes returns the current total size of cached blobs.
func (c *Cache) SizeBytes() int64 { return c.bytes.Load() }

// Prune removes entries, oldest first by mtime, until the cache is at or
// below targetBytes.
func (c *Cache) Prune(targetBytes int64) (freed int64, err error) {
	const op = "cache.Prune"
	if targetBytes < 0 {
		targetBytes = 0
	}
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, targetBytes)
	if err != nil {
		return 0, toolerr.New(op, toolerr.KindInternal, err)
	}
	c.bytes.Store(remaining)
	return freed, nil
}

func (c *Cache) path(digest string) (string, error) {
	if !strings.HasPrefix(digest, digestAlgoPrefix) {
		return "", fmt.Errorf("unsupported digest algorithm in %q", digest)
	}
	hexHash := strings.TrimPrefix(digest, digestAlgoPrefix)
	if len(hexHash) != 64 {
		return "", fmt.Errorf("malformed sha256 digest %q", digest)
	}
	if c.shardPrefixLen <= 0 {
		return filepath.Join(c.dir, hexHash), nil
	}
	prefixLen := c.shardPrefixLen
	if prefixLen > len(hexHash) {
		prefixLen = len(hexHash)
	}
	return filepath.Join(c.dir, hexHash[:prefixLen], hexHash), nil
}

func (c *Cache) ensureCapacity(need int64) (bool, error) {
	if c.maxBytes <= 0 {
		return true, nil
	}
	if need > c.maxBytes {
		return false, nil
	}
	if c.SizeBytes()+need <= c.maxBytes {
		return true, nil
	}
	if _, err := c.Prune(c.maxBytes - need); err != nil {
		return false, err
	}
	return c.SizeBytes()+need <= c.maxBytes, nil
}

// Digest computes the "sha256:<hex>" digest of r, streaming in fixed-size
// chunks rather than buffering the whole input in memory.
func Digest(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return digestAlgoPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

type dirEntry struct {
	path    string
	size    int64
	modTime time.Time
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	return total, err
}

func pruneDir(root string, targetBytes int64) (freed, remaining int64, err error) {
	entries := make([]dirEntry, 0)
	var total int64

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		entries = append(entries, dirEntry{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if errors.Is(walkErr, os.ErrNotExist) {
		return 0, 0, nil
	}
	if walkErr != nil {
		return 0, 0, walkErr
	}

	remaining = total
	if remaining <= targetBytes {
		return 0, remaining, nil
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].path < entries[j].path
		}
		return entries[i].modTime.Before(entries[j].modTime)
	})

	for _, e := range entries {
		if remaining <= targetBytes {
			break
		}
		if err := os.Remove(e.path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return freed, remaining, err
		}
		remaining -= e.size
		freed += e.size
	}
	return freed, remaining, nil
}
