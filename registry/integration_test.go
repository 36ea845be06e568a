//go:build integration

package registry_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/birbparty/toolcache/cache"
	"github.com/birbparty/toolcache/registry"
)

// startRegistryContainer boots a registry:2 container and returns its
// host:port address, grounded on meigma-blob's integration/helpers_test.go
// shared-container pattern (one container per test run, plain HTTP).
func startRegistryContainer(ctx context.Context, t *testing.T) string {
	t.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		t.Skip("SKIP_DOCKER_TESTS is set")
	}

	req := testcontainers.ContainerRequest{
		Image:        "registry:2",
		ExposedPorts: []string{"5000/tcp"},
		WaitingFor:   wait.ForHTTP("/v2/").WithPort("5000/tcp").WithStatusCodeMatcher(func(status int) bool { return status >= 200 && status < 300 }),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start registry container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err, "resolve registry host")
	port, err := container.MappedPort(ctx, "5000/tcp")
	require.NoError(t, err, "resolve registry port")

	return fmt.Sprintf("%s:%s", host, port.Port())
}

// TestPushPullRoundTripAgainstLiveRegistry exercises the real
// oras-go-backed OCIClient end-to-end: push a file through the default
// client, then pull it back and compare content, against a genuine
// registry:2 instance rather than a fake.
func TestPushPullRoundTripAgainstLiveRegistry(t *testing.T) {
	ctx := context.Background()
	addr := startRegistryContainer(ctx, t)

	blobCache, err := cache.New(t.TempDir())
	require.NoError(t, err)

	client := registry.New(registry.WithPlainHTTP(), registry.WithBlobCache(blobCache))

	dir := t.TempDir()
	path := filepath.Join(dir, "protoc")
	content := []byte("protoc-binary-bytes-for-integration-test")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	ref := fmt.Sprintf("%s/tools/protoc:integration-test", addr)
	digest, err := client.Push(ctx, ref, []registry.PushFile{{Path: path, Title: "protoc"}}, map[string]string{"source": "integration-test"})
	require.NoError(t, err)
	require.NotEmpty(t, digest)

	result, err := client.Pull(ctx, ref, "")
	require.NoError(t, err)
	require.Equal(t, digest, result.Digest)

	cachedPath, ok := result.Files["protoc"]
	require.True(t, ok)
	got, err := os.ReadFile(cachedPath)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

// TestPullByDigestRejectsMismatch verifies the integrity-mismatch guard
// against a live registry: pulling with a wrong expected digest fails
// rather than silently accepting the manifest.
func TestPullByDigestRejectsMismatch(t *testing.T) {
	ctx := context.Background()
	addr := startRegistryContainer(ctx, t)

	blobCache, err := cache.New(t.TempDir())
	require.NoError(t, err)
	client := registry.New(registry.WithPlainHTTP(), registry.WithBlobCache(blobCache))

	dir := t.TempDir()
	path := filepath.Join(dir, "buf")
	require.NoError(t, os.WriteFile(path, []byte("buf-binary"), 0o644))

	ref := fmt.Sprintf("%s/tools/buf:integration-test", addr)
	_, err = client.Push(ctx, ref, []registry.PushFile{{Path: path, Title: "buf"}}, nil)
	require.NoError(t, err)

	_, err = client.Pull(ctx, ref, "sha256:0000000000000000000000000000000000000000000000000000000000000000")
	require.Error(t, err)
}
