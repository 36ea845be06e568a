package resolver

import (
	"context"

	"github.com/birbparty/toolcache/toolerr"
)

// Bundle is a named set of plugins (e.g. "go-development") resolved
// together; resolution is atomic as a group — ResolveBundle has no
// partial-success return, per SPEC_FULL.md's expansion of the Bundle data
// model.
type Bundle struct {
	Name    string
	Members []Key
}

// ResolveBundle resolves every member of b and returns their paths keyed
// by tool name, or fails entirely (returning no paths) if any member
// fails.
func (r *Resolver) ResolveBundle(ctx context.Context, b Bundle) (map[string]string, error) {
	const op = "resolver.ResolveBundle"
	paths := make(map[string]string, len(b.Members))
	for _, key := range b.Members {
		path, err := r.Resolve(ctx, key.Tool, key.Version, key.Platform)
		if err != nil {
			return nil, toolerr.New(op, toolerr.KindOf(err), err)
		}
		paths[key.Tool] = path
	}
	return paths, nil
}
