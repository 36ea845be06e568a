package bsr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/birbparty/toolcache/toolerr"
)

// mirrorRef maps a coordinate to its OCI mirror ref by a fixed rule:
// "<registry>/<owner>/<module>:<version>" — the same shape as any other
// artifact ref, so the mirror tier is just another registry repository,
// grounded on original_source/tools/oras_bsr.py's coordinate-to-ORAS-ref
// convention.
func mirrorRef(coord Coordinate) string {
	return fmt.Sprintf("%s/%s/%s:%s", coord.Registry, coord.Owner, coord.Module, coord.Version)
}

// resolveViaOCIMirror pulls coord's mirror ref and expands every layer
// (each titled with its relative .proto path) into a staging directory,
// which is then atomically moved into the tree cache.
func (r *Resolver) resolveViaOCIMirror(ctx context.Context, coord Coordinate, dir string) (string, error) {
	const op = "bsr.resolveViaOCIMirror"

	result, err := r.reg.Pull(ctx, mirrorRef(coord), "")
	if err != nil {
		return "", err
	}
	if len(result.Files) == 0 {
		return "", toolerr.New(op, toolerr.KindProtocolError, fmt.Errorf("mirror ref %s has no files", mirrorRef(coord)))
	}

	staging, err := os.MkdirTemp(r.treesDir(), "staging-*")
	if err != nil {
		return "", toolerr.New(op, toolerr.KindInternal, err)
	}
	defer os.RemoveAll(staging) //nolint:errcheck

	for relPath, cachePath := range result.Files {
		dest := filepath.Join(staging, relPath)
		if err := copyFile(cachePath, dest); err != nil {
			return "", toolerr.New(op, toolerr.KindInternal, err)
		}
	}

	if err := atomicMoveIntoTree(staging, dir); err != nil {
		return "", err
	}
	return dir, nil
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}
