package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/birbparty/toolcache/toolerr"
)

// CurrentVersion is one target repository's already-published latest
// version, keyed by a caller-supplied name (registry, repository, or any
// other label the caller wants echoed back in error messages).
type CurrentVersion struct {
	Target  string
	Version string // "" means the target has no published version yet
}

// CheckConsistency reports whether candidate is strictly greater than
// every target's latest published version. Pure function, no I/O — the
// caller is responsible for gathering each target's CurrentVersion first,
// per spec.md §4.8's cross-repository consistency rule.
func CheckConsistency(candidate string, targets []CurrentVersion) error {
	const op = "version.CheckConsistency"

	cv, err := semver.NewVersion(candidate)
	if err != nil {
		return toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("invalid candidate version %q: %w", candidate, err))
	}

	for _, t := range targets {
		if t.Version == "" {
			continue
		}
		latest, err := semver.NewVersion(t.Version)
		if err != nil {
			return toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("target %s has unparseable version %q: %w", t.Target, t.Version, err))
		}
		if !cv.GreaterThan(latest) {
			return toolerr.New(op, toolerr.KindPreconditionFailed,
				fmt.Errorf("candidate version %s does not exceed target %s's latest %s", candidate, t.Target, t.Version))
		}
	}

	return nil
}
