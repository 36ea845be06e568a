package version

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/birbparty/toolcache/toolerr"
)

func TestAnalyzeNoBaselineYieldsInitialVersion(t *testing.T) {
	a, err := Analyze([]string{"a.proto"}, nil, "", nil)
	require.NoError(t, err)
	require.Equal(t, "v1.0.0", a.NextVersion)
	require.Equal(t, BumpMinor, a.Bump)
	require.Len(t, a.Changes, 1)
	require.Equal(t, Feature, a.Changes[0].Kind)
}

func TestAnalyzeAddedFileIsFeatureBumpsMinor(t *testing.T) {
	a, err := Analyze([]string{"a.proto", "b.proto"}, []string{"a.proto"}, "v1.2.3", nil)
	require.NoError(t, err)
	require.Equal(t, "v1.3.0", a.NextVersion)
	require.Equal(t, BumpMinor, a.Bump)
}

// TestAnalyzeRemovedFileIsBreakingBumpsMajor covers scenario S6: version
// bump on a breaking change.
func TestAnalyzeRemovedFileIsBreakingBumpsMajor(t *testing.T) {
	a, err := Analyze([]string{"a.proto"}, []string{"a.proto", "b.proto"}, "v1.2.3", nil)
	require.NoError(t, err)
	require.Equal(t, "v2.0.0", a.NextVersion)
	require.Equal(t, BumpMajor, a.Bump)

	var breaking *SchemaChange
	for i := range a.Changes {
		if a.Changes[i].Kind == Breaking {
			breaking = &a.Changes[i]
		}
	}
	require.NotNil(t, breaking)
	require.Equal(t, "b.proto", breaking.FilePath)
}

func TestAnalyzeModifiedFileDefaultsToFixBumpsPatch(t *testing.T) {
	a, err := Analyze([]string{"a.proto"}, []string{"a.proto"}, "v1.2.3", nil)
	require.NoError(t, err)
	require.Equal(t, "v1.2.4", a.NextVersion)
	require.Equal(t, BumpPatch, a.Bump)
	require.Equal(t, Fix, a.Changes[0].Kind)
}

type fakeChecker struct {
	breaking map[string]bool
}

func (f *fakeChecker) IsBreaking(path string) (bool, error) { return f.breaking[path], nil }

func TestAnalyzeModifiedFileUpgradedToBreakingByChecker(t *testing.T) {
	checker := &fakeChecker{breaking: map[string]bool{"a.proto": true}}
	a, err := Analyze([]string{"a.proto"}, []string{"a.proto"}, "v1.2.3", checker)
	require.NoError(t, err)
	require.Equal(t, "v2.0.0", a.NextVersion)
	require.Equal(t, Breaking, a.Changes[0].Kind)
}

func TestCheckConsistencyRejectsNonIncreasingVersion(t *testing.T) {
	err := CheckConsistency("v1.0.0", []CurrentVersion{{Target: "repoA", Version: "v1.0.0"}})
	require.Error(t, err)
	require.Equal(t, toolerr.KindPreconditionFailed, toolerr.KindOf(err))
}

func TestCheckConsistencyAcceptsStrictIncrease(t *testing.T) {
	err := CheckConsistency("v1.2.0", []CurrentVersion{
		{Target: "repoA", Version: "v1.1.0"},
		{Target: "repoB", Version: ""},
	})
	require.NoError(t, err)
}

func TestCheckConsistencyRejectsIfAnyTargetFails(t *testing.T) {
	err := CheckConsistency("v1.2.0", []CurrentVersion{
		{Target: "repoA", Version: "v1.1.0"},
		{Target: "repoB", Version: "v1.5.0"},
	})
	require.Error(t, err)
	require.Equal(t, toolerr.KindPreconditionFailed, toolerr.KindOf(err))
}
