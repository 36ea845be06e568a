package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	defaultTTL     = 5 * time.Minute
	defaultMaxSize = 256
)

type entry struct {
	key     string
	value   []byte
	expires time.Time
}

// lruTTL is an LRU cache bounded by count with TTL expiry, the same shape
// as the registry/oras auth header cache, generalized to byte-slice values
// so it can back both RefCache and ManifestCache.
type lruTTL struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	entries map[string]*list.Element
	order   *list.List
}

func newLRUTTL(ttl time.Duration, maxSize int) *lruTTL {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	return &lruTTL{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

func (c *lruTTL) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*entry) //nolint:errcheck // type invariant maintained by set
	if time.Now().After(e.expires) {
		c.removeLocked(elem, key)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return e.value, true
}

func (c *lruTTL) set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry) //nolint:errcheck // type invariant maintained by set
		e.value = value
		e.expires = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		oldEntry := oldest.Value.(*entry) //nolint:errcheck // type invariant maintained by set
		c.removeLocked(oldest, oldEntry.key)
	}

	e := &entry{key: key, value: value, expires: time.Now().Add(c.ttl)}
	elem := c.order.PushFront(e)
	c.entries[key] = elem
}

func (c *lruTTL) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem, key)
	}
}

func (c *lruTTL) removeLocked(elem *list.Element, key string) {
	c.order.Remove(elem)
	delete(c.entries, key)
}

// InMemoryRefCache is a process-local RefCache backed by an LRU+TTL store.
type InMemoryRefCache struct{ c *lruTTL }

// NewInMemoryRefCache creates a RefCache with the given TTL and entry cap
// (0 for either uses the package defaults).
func NewInMemoryRefCache(ttl time.Duration, maxSize int) *InMemoryRefCache {
	return &InMemoryRefCache{c: newLRUTTL(ttl, maxSize)}
}

func (r *InMemoryRefCache) GetDigest(ref string) (string, bool) {
	v, ok := r.c.get(ref)
	if !ok {
		return "", false
	}
	return string(v), true
}

func (r *InMemoryRefCache) PutDigest(ref, digest string) error {
	r.c.set(ref, []byte(digest))
	return nil
}

func (r *InMemoryRefCache) Delete(ref string) error {
	r.c.delete(ref)
	return nil
}

// InMemoryManifestCache is a process-local ManifestCache backed by an
// LRU+TTL store.
type InMemoryManifestCache struct{ c *lruTTL }

// NewInMemoryManifestCache creates a ManifestCache with the given TTL and
// entry cap (0 for either uses the package defaults).
func NewInMemoryManifestCache(ttl time.Duration, maxSize int) *InMemoryManifestCache {
	return &InMemoryManifestCache{c: newLRUTTL(ttl, maxSize)}
}

func (m *InMemoryManifestCache) GetManifest(digest string) ([]byte, bool) {
	return m.c.get(digest)
}

func (m *InMemoryManifestCache) PutManifest(digest string, raw []byte) error {
	m.c.set(digest, raw)
	return nil
}

func (m *InMemoryManifestCache) Delete(digest string) error {
	m.c.delete(digest)
	return nil
}
