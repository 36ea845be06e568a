// Package bsr implements the BSR Dependency Resolver (C6): given a Buf
// Schema Registry coordinate, it produces a local directory containing
// the module's .proto files, via a three-tier lookup (local tree cache →
// OCI mirror → external `buf export`). It never parses .proto content.
package bsr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/birbparty/toolcache/toolerr"
)

// Coordinate identifies one BSR module: registry/owner/module[:version].
// Grounded on original_source/tools/bsr_client.py's BSRDependency, which
// carries the same four fields (there called repository/name/version).
type Coordinate struct {
	Registry string
	Owner    string
	Module   string
	Version  string // empty means "use the curated default"
}

// String reassembles the canonical coordinate string.
func (c Coordinate) String() string {
	base := fmt.Sprintf("%s/%s/%s", c.Registry, c.Owner, c.Module)
	if c.Version == "" {
		return base
	}
	return base + ":" + c.Version
}

// moduleKey identifies the module independent of version, the key into
// the curated default-version table.
func (c Coordinate) moduleKey() string {
	return fmt.Sprintf("%s/%s/%s", c.Registry, c.Owner, c.Module)
}

// ParseCoordinate parses "registry/owner/module[:version]" into a
// Coordinate.
func ParseCoordinate(s string) (Coordinate, error) {
	const op = "bsr.ParseCoordinate"
	version := ""
	head := s
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		head, version = s[:i], s[i+1:]
	}
	parts := strings.Split(head, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Coordinate{}, toolerr.New(op, toolerr.KindConfigInvalid,
			fmt.Errorf("coordinate %q must have the form registry/owner/module[:version]", s))
	}
	return Coordinate{Registry: parts[0], Owner: parts[1], Module: parts[2], Version: version}, nil
}

// hash returns the tree-cache directory name for coord (including its
// version), the hash(coord) in spec.md §4.6's "<root>/bsr/trees/<hash(coord)>".
func hash(coord Coordinate) string {
	sum := sha256.Sum256([]byte(coord.String()))
	return hex.EncodeToString(sum[:])
}
