package bsr

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/birbparty/toolcache/toolerr"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// loadEmbeddedDefaults parses the embedded manifest mapping a module key
// (registry/owner/module) to its curated default version; callers may
// override or extend the result via WithDefaultVersions.
func loadEmbeddedDefaults() (map[string]string, error) {
	const op = "bsr.loadEmbeddedDefaults"
	var m map[string]string
	if err := yaml.Unmarshal(defaultsYAML, &m); err != nil {
		return nil, toolerr.New(op, toolerr.KindInternal, err)
	}
	return m, nil
}

// defaultVersionFor resolves coord's curated default version, or returns
// an error if the module is unknown and no version was requested —
// spec.md §4.6's "unknown modules fail with a clear error".
func (r *Resolver) defaultVersionFor(coord Coordinate) (string, error) {
	const op = "bsr.defaultVersionFor"
	v, ok := r.defaults[coord.moduleKey()]
	if !ok {
		return "", toolerr.New(op, toolerr.KindNotFound,
			fmt.Errorf("module %s has no version specified and no curated default", coord.moduleKey()))
	}
	return v, nil
}
