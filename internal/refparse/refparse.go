// Package refparse parses and validates artifact reference strings of the
// form "registry/repository(:tag|@digest)" into their components, and
// produces safe filenames for sidecar metadata records.
package refparse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/birbparty/toolcache/toolerr"
)

// Ref is a parsed artifact reference. Exactly one of Tag or Digest is set.
type Ref struct {
	Registry   string
	Repository string
	Tag        string
	Digest     string
}

// IsDigest reports whether this ref pins an immutable digest rather than a
// mutable tag.
func (r Ref) IsDigest() bool { return r.Digest != "" }

// String reassembles the canonical reference string.
func (r Ref) String() string {
	if r.IsDigest() {
		return fmt.Sprintf("%s/%s@%s", r.Registry, r.Repository, r.Digest)
	}
	return fmt.Sprintf("%s/%s:%s", r.Registry, r.Repository, r.Tag)
}

// Parse validates and splits ref into Registry, Repository, and Tag or
// Digest. The grammar is registry + "/" + repository + (":"tag | "@"digest);
// exactly one of tag or digest must be present.
func Parse(ref string) (Ref, error) {
	const op = "refparse.Parse"
	if ref == "" {
		return Ref{}, toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("empty reference"))
	}

	if i := strings.LastIndexByte(ref, '@'); i >= 0 {
		head, dgst := ref[:i], ref[i+1:]
		d, err := digest.Parse(dgst)
		if err != nil {
			return Ref{}, toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("invalid digest %q: %w", dgst, err))
		}
		reg, repo, err := splitHeadPath(head)
		if err != nil {
			return Ref{}, toolerr.New(op, toolerr.KindConfigInvalid, err)
		}
		return Ref{Registry: reg, Repository: repo, Digest: d.String()}, nil
	}

	if i := strings.LastIndexByte(ref, ':'); i >= 0 && strings.ContainsRune(ref[:i], '/') {
		head, tag := ref[:i], ref[i+1:]
		if tag == "" {
			return Ref{}, toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("empty tag in %q", ref))
		}
		if !tagPattern.MatchString(tag) {
			return Ref{}, toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("invalid tag %q", tag))
		}
		reg, repo, err := splitHeadPath(head)
		if err != nil {
			return Ref{}, toolerr.New(op, toolerr.KindConfigInvalid, err)
		}
		return Ref{Registry: reg, Repository: repo, Tag: tag}, nil
	}

	return Ref{}, toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("reference %q has neither tag nor digest", ref))
}

var tagPattern = regexp.MustCompile(`^[\w][\w.-]{0,127}$`)

func splitHeadPath(head string) (registry, repository string, err error) {
	i := strings.IndexByte(head, '/')
	if i <= 0 || i == len(head)-1 {
		return "", "", fmt.Errorf("reference %q missing registry/repository split", head)
	}
	return head[:i], head[i+1:], nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^\w\-_.]`)

// SafeFilename converts an artifact reference (or any free-form string) into
// a filesystem-safe name by replacing every character outside [A-Za-z0-9_.-]
// with an underscore, matching the sidecar metadata naming rule.
func SafeFilename(ref string) string {
	return unsafeFilenameChars.ReplaceAllString(ref, "_")
}
