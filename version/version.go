// Package version classifies changes between a current and baseline set of
// proto files and computes the resulting semantic version bump (C8).
// Grounded on original_source/tools/bsr_version_manager.py's
// ChangeType/VersionIncrement enums and file-diff classification, with the
// Python module's hand-rolled semver regex replaced by
// github.com/Masterminds/semver/v3.
package version

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/birbparty/toolcache/toolerr"
)

// ChangeKind classifies one detected schema change, ordered by severity
// (Breaking > Feature > Fix > Docs).
type ChangeKind int

const (
	Docs ChangeKind = iota
	Fix
	Feature
	Breaking
)

func (k ChangeKind) String() string {
	switch k {
	case Breaking:
		return "breaking"
	case Feature:
		return "feature"
	case Fix:
		return "fix"
	case Docs:
		return "docs"
	default:
		return "unknown"
	}
}

// Bump is the semantic version increment a set of changes produces.
type Bump int

const (
	BumpNone Bump = iota
	BumpPatch
	BumpMinor
	BumpMajor
)

func (b Bump) String() string {
	switch b {
	case BumpMajor:
		return "major"
	case BumpMinor:
		return "minor"
	case BumpPatch:
		return "patch"
	default:
		return "none"
	}
}

// SchemaChange records one classified difference between the current and
// baseline file sets.
type SchemaChange struct {
	Kind        ChangeKind
	FilePath    string
	Description string
}

// BreakingChangeChecker reports whether a modified file carries a breaking
// change, e.g. by shelling out to `buf breaking`. Modified files default
// to Fix; a checker can upgrade the classification to Breaking, mirroring
// bsr_version_manager.py's `_detect_buf_breaking_changes` step.
type BreakingChangeChecker interface {
	IsBreaking(filePath string) (bool, error)
}

// Analysis is the outcome of classifying a current file set against a
// baseline.
type Analysis struct {
	Changes      []SchemaChange
	Bump         Bump
	NextVersion  string
	BaseVersion  string // "" if there was no baseline
}

// Analyze classifies current against baseline (both sets of relative file
// paths) and computes the resulting version. baseVersion is the existing
// published version; an empty baseVersion means no prior release and
// always yields v1.0.0/Feature regardless of the file sets, per spec.md
// §4.8's "no baseline" rule.
func Analyze(current, baseline []string, baseVersion string, checker BreakingChangeChecker) (Analysis, error) {
	const op = "version.Analyze"

	if baseVersion == "" {
		return Analysis{
			Changes:     []SchemaChange{{Kind: Feature, FilePath: "*", Description: "initial schema version"}},
			Bump:        BumpMinor,
			NextVersion: "v1.0.0",
		}, nil
	}

	changes, err := classify(current, baseline, checker)
	if err != nil {
		return Analysis{}, err
	}

	bump := bumpFor(changes)
	next, err := applyBump(baseVersion, bump)
	if err != nil {
		return Analysis{}, toolerr.New(op, toolerr.KindConfigInvalid, err)
	}

	return Analysis{Changes: changes, Bump: bump, NextVersion: next, BaseVersion: baseVersion}, nil
}

func classify(current, baseline []string, checker BreakingChangeChecker) ([]SchemaChange, error) {
	const op = "version.classify"

	currentSet := toSet(current)
	baselineSet := toSet(baseline)

	var changes []SchemaChange

	var added []string
	for f := range currentSet {
		if !baselineSet[f] {
			added = append(added, f)
		}
	}
	sort.Strings(added)
	for _, f := range added {
		changes = append(changes, SchemaChange{Kind: Feature, FilePath: f, Description: fmt.Sprintf("added proto file: %s", f)})
	}

	var removed []string
	for f := range baselineSet {
		if !currentSet[f] {
			removed = append(removed, f)
		}
	}
	sort.Strings(removed)
	for _, f := range removed {
		changes = append(changes, SchemaChange{Kind: Breaking, FilePath: f, Description: fmt.Sprintf("removed proto file: %s", f)})
	}

	var common []string
	for f := range currentSet {
		if baselineSet[f] {
			common = append(common, f)
		}
	}
	sort.Strings(common)
	for _, f := range common {
		kind := Fix
		if checker != nil {
			breaking, err := checker.IsBreaking(f)
			if err != nil {
				return nil, toolerr.New(op, toolerr.KindInternal, err)
			}
			if breaking {
				kind = Breaking
			}
		}
		changes = append(changes, SchemaChange{Kind: kind, FilePath: f, Description: fmt.Sprintf("modified proto file: %s", f)})
	}

	return changes, nil
}

func toSet(files []string) map[string]bool {
	s := make(map[string]bool, len(files))
	for _, f := range files {
		s[f] = true
	}
	return s
}

func bumpFor(changes []SchemaChange) Bump {
	if len(changes) == 0 {
		return BumpNone
	}
	max := Docs
	for _, c := range changes {
		if c.Kind > max {
			max = c.Kind
		}
	}
	switch max {
	case Breaking:
		return BumpMajor
	case Feature:
		return BumpMinor
	default:
		return BumpPatch
	}
}

func applyBump(current string, bump Bump) (string, error) {
	v, err := semver.NewVersion(current)
	if err != nil {
		return "", fmt.Errorf("parse current version %q: %w", current, err)
	}
	var next semver.Version
	switch bump {
	case BumpMajor:
		next = v.IncMajor()
	case BumpMinor:
		next = v.IncMinor()
	case BumpPatch:
		next = v.IncPatch()
	default:
		next = *v
	}
	return "v" + next.String(), nil
}
