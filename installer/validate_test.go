package installer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestValidatePostInstallToleratesNonZeroExit(t *testing.T) {
	path := writeScript(t, "echo usage: tool; exit 1\n")
	require.True(t, ValidatePostInstall(context.Background(), path))
}

func TestValidatePostInstallRejectsCommandNotFound(t *testing.T) {
	path := writeScript(t, "echo 'sh: tool: command not found' 1>&2; exit 127\n")
	require.False(t, ValidatePostInstall(context.Background(), path))
}

func TestValidatePostInstallAcceptsZeroExit(t *testing.T) {
	path := writeScript(t, "echo v1.0.0; exit 0\n")
	require.True(t, ValidatePostInstall(context.Background(), path))
}
