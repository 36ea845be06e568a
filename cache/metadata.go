package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/birbparty/toolcache/internal/refparse"
	"github.com/birbparty/toolcache/toolerr"
)

// MetadataRecord is the sidecar JSON persisted alongside a resolved
// ArtifactRef so callers can answer "is this ref known?" and list what is
// cached without reading blob content.
type MetadataRecord struct {
	Ref           string    `json:"ref"`
	Digest        string    `json:"digest"`
	Size          int64     `json:"size"`
	CachedAt      time.Time `json:"cached_at"`
	OriginalTitle string    `json:"original_title,omitempty"`
}

// MetadataStore persists MetadataRecords as one JSON file per ref, named by
// the ref's safe-filename transform, under a "metadata" directory.
type MetadataStore struct {
	dir string
}

// NewMetadataStore creates a metadata sidecar store rooted at dir.
func NewMetadataStore(dir string) (*MetadataStore, error) {
	const op = "cache.NewMetadataStore"
	if dir == "" {
		return nil, toolerr.New(op, toolerr.KindConfigInvalid, errors.New("metadata dir is empty"))
	}
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, toolerr.New(op, toolerr.KindInternal, err)
	}
	return &MetadataStore{dir: dir}, nil
}

func (s *MetadataStore) path(ref string) string {
	return filepath.Join(s.dir, refparse.SafeFilename(ref)+".json")
}

// Put writes (or overwrites) the metadata record for ref atomically.
func (s *MetadataStore) Put(rec MetadataRecord) error {
	const op = "cache.MetadataStore.Put"
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return toolerr.New(op, toolerr.KindInternal, err)
	}
	path := s.path(rec.Ref)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return toolerr.New(op, toolerr.KindInternal, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return toolerr.New(op, toolerr.KindInternal, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return toolerr.New(op, toolerr.KindInternal, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return toolerr.New(op, toolerr.KindInternal, err)
	}
	return nil
}

// Get reads the metadata record for ref, if present.
func (s *MetadataStore) Get(ref string) (MetadataRecord, bool, error) {
	const op = "cache.MetadataStore.Get"
	data, err := os.ReadFile(s.path(ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return MetadataRecord{}, false, nil
		}
		return MetadataRecord{}, false, toolerr.New(op, toolerr.KindInternal, err)
	}
	var rec MetadataRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return MetadataRecord{}, false, toolerr.New(op, toolerr.KindInternal, fmt.Errorf("corrupt metadata for %q: %w", ref, err))
	}
	return rec, true, nil
}

// Delete removes the metadata record for ref, if present.
func (s *MetadataStore) Delete(ref string) error {
	const op = "cache.MetadataStore.Delete"
	if err := os.Remove(s.path(ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return toolerr.New(op, toolerr.KindInternal, err)
	}
	return nil
}

// List returns every known metadata record.
func (s *MetadataStore) List() ([]MetadataRecord, error) {
	const op = "cache.MetadataStore.List"
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, toolerr.New(op, toolerr.KindInternal, err)
	}
	var recs []MetadataRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var rec MetadataRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
