package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/birbparty/toolcache/toolerr"
)

func digestOf(content []byte) string {
	sum := sha256.Sum256(content)
	return digestAlgoPrefix + hex.EncodeToString(sum[:])
}

func TestCacheInsertLookup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	content := []byte("hello")
	digest := digestOf(content)

	path, err := c.Insert(digest, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("content = %q, want %q", got, content)
	}

	lookupPath, ok := c.Lookup(digest)
	if !ok {
		t.Fatal("Lookup() ok = false, want true")
	}
	if lookupPath != path {
		t.Fatalf("Lookup() path = %q, want %q", lookupPath, path)
	}

	hexHash := digest[len(digestAlgoPrefix):]
	wantPath := filepath.Join(dir, hexHash[:defaultShardPrefixLen], hexHash)
	if path != wantPath {
		t.Fatalf("Insert() path = %q, want %q", path, wantPath)
	}
}

func TestCacheShardDisable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir, WithShardPrefixLen(0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	content := []byte("flat")
	digest := digestOf(content)

	path, err := c.Insert(digest, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	hexHash := digest[len(digestAlgoPrefix):]
	if path != filepath.Join(dir, hexHash) {
		t.Fatalf("Insert() path = %q, want flat layout", path)
	}
}

func TestNewEmptyDir(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New() error = nil, want error")
	}
}

func TestCacheInsertIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	content := []byte("cached twice")
	digest := digestOf(content)

	if _, err := c.Insert(digest, bytes.NewReader(content)); err != nil {
		t.Fatalf("Insert() #1 error = %v", err)
	}
	if _, err := c.Insert(digest, bytes.NewReader(content)); err != nil {
		t.Fatalf("Insert() #2 error = %v (should be a no-op)", err)
	}

	path, ok := c.Lookup(digest)
	if !ok {
		t.Fatal("Lookup() ok = false, want true")
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("content = %q, want %q", got, content)
	}
}

func TestCacheInsertDigestMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	wrongDigest := digestOf([]byte("something else"))
	_, err = c.Insert(wrongDigest, bytes.NewReader([]byte("actual content")))
	if !toolerr.Is(err, toolerr.KindIntegrityMismatch) {
		t.Fatalf("Insert() err = %v, want KindIntegrityMismatch", err)
	}

	if _, ok := c.Lookup(wrongDigest); ok {
		t.Fatal("Lookup() ok = true after a failed insert, want false")
	}
}

func TestCacheVerifyDeletesOnMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	content := []byte("original")
	digest := digestOf(content)
	path, err := c.Insert(digest, bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	err = c.Verify(path, digest)
	if !toolerr.Is(err, toolerr.KindIntegrityMismatch) {
		t.Fatalf("Verify() err = %v, want KindIntegrityMismatch", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("Verify() should delete the file on mismatch")
	}
}

func TestCacheConcurrentInsertSameDigest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	content := bytes.Repeat([]byte("x"), 64*1024)
	digest := digestOf(content)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Insert(digest, bytes.NewReader(content))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Insert() goroutine %d error = %v", i, err)
		}
	}

	path, ok := c.Lookup(digest)
	if !ok {
		t.Fatal("Lookup() ok = false, want true")
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("content mismatch after concurrent insert")
	}

	dirEntries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range dirEntries {
		if bytes.Contains([]byte(e.Name()), []byte(".partial.")) {
			t.Fatalf("leftover partial file %q after concurrent insert", e.Name())
		}
	}
}

func TestCachePruneEvictsOldestFirst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var digests []string
	for i := 0; i < 3; i++ {
		content := bytes.Repeat([]byte{byte('a' + i)}, 100)
		digest := digestOf(content)
		if _, err := c.Insert(digest, bytes.NewReader(content)); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		digests = append(digests, digest)
	}

	freed, err := c.Prune(150)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if freed < 100 {
		t.Fatalf("Prune() freed = %d, want >= 100", freed)
	}
	if c.SizeBytes() > 150 {
		t.Fatalf("SizeBytes() = %d after prune, want <= 150", c.SizeBytes())
	}

	if _, ok := c.Lookup(digests[0]); ok {
		t.Fatal("oldest entry should have been pruned first")
	}
}

func TestCacheDelete(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	content := []byte("to be deleted")
	digest := digestOf(content)
	if _, err := c.Insert(digest, bytes.NewReader(content)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if err := c.Delete(digest); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := c.Lookup(digest); ok {
		t.Fatal("Lookup() ok = true after Delete, want false")
	}
	if err := c.Delete(digest); err != nil {
		t.Fatalf("Delete() on absent entry error = %v, want nil", err)
	}
}

func TestDigest(t *testing.T) {
	t.Parallel()

	content := []byte("digest me")
	got, err := Digest(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	want := digestOf(content)
	if got != want {
		t.Fatalf("Digest() = %q, want %q", got, want)
	}
}
