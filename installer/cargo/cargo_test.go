package cargo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/birbparty/toolcache/installer"
)

func TestSupports(t *testing.T) {
	i := New(map[string]string{"prost-build": "prost-build"})
	require.True(t, i.Supports("prost-build"))
	require.True(t, i.Supports("protoc-gen-prost"))
	require.False(t, i.Supports("npm-only-tool"))
}

func TestCrateFor(t *testing.T) {
	i := New(map[string]string{"prost-build": "prost-build-crate"})
	require.Equal(t, "prost-build-crate", i.crateFor(installer.PluginSpec{Name: "prost-build"}))
	require.Equal(t, "protoc-gen-tonic", i.crateFor(installer.PluginSpec{Name: "protoc-gen-tonic"}))
}

func TestName(t *testing.T) {
	require.Equal(t, "cargo", New(nil).Name())
}
