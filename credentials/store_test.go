package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/birbparty/toolcache/toolerr"
)

func TestStoreEnvSource(t *testing.T) {
	t.Setenv("EXAMPLE_TOKEN", "abcd1234efgh5678")
	s := New(WithEnvPrefix(map[string]string{"registry.example.com": "EXAMPLE"}))
	cred, err := s.Lookup(context.Background(), "registry.example.com")
	require.NoError(t, err)
	require.Equal(t, "abcd1234efgh5678", cred.Token)
	require.Equal(t, AuthMethodEnv, cred.AuthMethod)
}

func TestStoreFallsThroughToEncryptedStore(t *testing.T) {
	dir := t.TempDir()
	s := New(WithEncryptedStore(dir))
	require.NoError(t, s.enc.put(Credential{Registry: "registry.example.com", Token: "storedtoken123"}))

	cred, err := s.Lookup(context.Background(), "registry.example.com")
	require.NoError(t, err)
	require.Equal(t, "storedtoken123", cred.Token)
}

func TestStoreNoSourceProducesAuthRequired(t *testing.T) {
	s := New()
	_, err := s.Lookup(context.Background(), "registry.example.com")
	require.Error(t, err)
	require.Equal(t, toolerr.KindAuthRequired, toolerr.KindOf(err))
}

func TestStoreWriteBackToEncryptedStore(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EXAMPLE_TOKEN", "envtoken12345678")
	s := New(WithEnvPrefix(map[string]string{"registry.example.com": "EXAMPLE"}), WithEncryptedStore(dir))

	_, err := s.Lookup(context.Background(), "registry.example.com")
	require.NoError(t, err)

	cred, ok, err := s.enc.get("registry.example.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "envtoken12345678", cred.Token)
}

func TestStoreLogout(t *testing.T) {
	dir := t.TempDir()
	s := New(WithEncryptedStore(dir))
	require.NoError(t, s.enc.put(Credential{Registry: "registry.example.com", Token: "storedtoken123"}))
	require.NoError(t, s.Logout("registry.example.com"))

	_, ok, err := s.enc.get("registry.example.com")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEncryptedStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	enc1 := newEncryptedStore(dir)
	require.NoError(t, enc1.put(Credential{Registry: "r", Token: "secret-value-123"}))

	enc2 := newEncryptedStore(dir)
	cred, ok, err := enc2.get("r")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "secret-value-123", cred.Token)

	info, err := os.Stat(filepath.Join(dir, blobFileName))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(storeFileMode), info.Mode().Perm())
}

func TestMasked(t *testing.T) {
	require.Equal(t, "abcd…wxyz", Masked("abcdefghijklmnopqrstuvwxyz"))
	require.Equal(t, "****", Masked("short"))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("a-valid-token-1234"))
	require.Error(t, Validate(""))
	require.Error(t, Validate("short"))
	require.Error(t, Validate("has a space in it 1234"))
}

func TestParseNetrc(t *testing.T) {
	entries, err := parseNetrc("machine registry.example.com login bob password s3cr3t\nmachine other.example.com login alice password hunter2\n")
	require.NoError(t, err)
	require.Equal(t, netrcEntry{login: "bob", password: "s3cr3t"}, entries["registry.example.com"])
	require.Equal(t, netrcEntry{login: "alice", password: "hunter2"}, entries["other.example.com"])
}
