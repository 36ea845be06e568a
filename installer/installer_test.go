package installer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteWrapperUnix(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteWrapper(dir, "protoc-gen-foo", "/opt/real/protoc-gen-foo")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "protoc-gen-foo"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "/opt/real/protoc-gen-foo")
}

func TestPluginSpecDefaults(t *testing.T) {
	s := PluginSpec{Name: "protoc-gen-go"}
	require.Equal(t, "protoc-gen-go", s.binaryName())
	require.Equal(t, "protoc-gen-go", s.packageName())

	s2 := PluginSpec{Name: "x", BinaryName: "y", Package: "z"}
	require.Equal(t, "y", s2.binaryName())
	require.Equal(t, "z", s2.packageName())
}
