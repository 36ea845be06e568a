package registry

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/require"

	tccache "github.com/birbparty/toolcache/cache"
	"github.com/birbparty/toolcache/toolerr"
)

// fakeOCI is an in-memory OCIClient used to test Client without a real
// registry.
type fakeOCI struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	manifests map[string]ocispec.Manifest
	tags      map[string]string // tag -> manifest digest
	resolveN  atomic.Int32
	failNext  error
}

func newFakeOCI() *fakeOCI {
	return &fakeOCI{
		blobs:     make(map[string][]byte),
		manifests: make(map[string]ocispec.Manifest),
		tags:      make(map[string]string),
	}
}

func (f *fakeOCI) takeFailure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeOCI) PushBlob(_ context.Context, _ string, desc *ocispec.Descriptor, r io.Reader) error {
	if err := f.takeFailure(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[desc.Digest.String()] = data
	return nil
}

func (f *fakeOCI) FetchBlob(_ context.Context, _ string, desc *ocispec.Descriptor) (io.ReadCloser, error) {
	if err := f.takeFailure(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	data, ok := f.blobs[desc.Digest.String()]
	f.mu.Unlock()
	if !ok {
		return nil, ErrNotFoundFake
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeOCI) PushManifest(_ context.Context, _, tag string, manifest *ocispec.Manifest, raw []byte) (ocispec.Descriptor, error) {
	if err := f.takeFailure(); err != nil {
		return ocispec.Descriptor{}, err
	}
	d := digest.FromBytes(raw)
	f.mu.Lock()
	f.manifests[d.String()] = *manifest
	f.tags[tag] = d.String()
	f.mu.Unlock()
	return ocispec.Descriptor{MediaType: manifest.MediaType, Digest: d, Size: int64(len(raw))}, nil
}

func (f *fakeOCI) FetchManifest(_ context.Context, _ string, expected *ocispec.Descriptor) (ocispec.Manifest, []byte, error) {
	if err := f.takeFailure(); err != nil {
		return ocispec.Manifest{}, nil, err
	}
	f.mu.Lock()
	m, ok := f.manifests[expected.Digest.String()]
	f.mu.Unlock()
	if !ok {
		return ocispec.Manifest{}, nil, ErrNotFoundFake
	}
	raw, err := marshalManifest(m)
	return m, raw, err
}

func (f *fakeOCI) Resolve(_ context.Context, _, ref string) (ocispec.Descriptor, error) {
	f.resolveN.Add(1)
	if err := f.takeFailure(); err != nil {
		return ocispec.Descriptor{}, err
	}
	f.mu.Lock()
	d, ok := f.tags[ref]
	f.mu.Unlock()
	if !ok {
		return ocispec.Descriptor{}, ErrNotFoundFake
	}
	dgst, err := digest.Parse(d)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	return ocispec.Descriptor{Digest: dgst}, nil
}

func (f *fakeOCI) Tag(_ context.Context, _ string, desc *ocispec.Descriptor, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags[tag] = desc.Digest.String()
	return nil
}

func (f *fakeOCI) ListTags(_ context.Context, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var tags []string
	for t := range f.tags {
		tags = append(tags, t)
	}
	return tags, nil
}

func (f *fakeOCI) BlobURL(_, digest string) (string, error) { return "http://fake/" + digest, nil }
func (f *fakeOCI) AuthHeaders(_ context.Context, _ string) (http.Header, error) {
	return http.Header{}, nil
}
func (f *fakeOCI) InvalidateAuthHeaders(_ string) error { return nil }

// ErrNotFoundFake stands in for a registry 404 in tests.
var ErrNotFoundFake = toolerr.New("fakeOCI", toolerr.KindNotFound, nil)

func newTestClient(t *testing.T, oci OCIClient) *Client {
	t.Helper()
	bc, err := tccache.New(t.TempDir())
	require.NoError(t, err)
	return New(WithOCIClient(oci), WithBlobCache(bc))
}

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPushPullRoundTrip(t *testing.T) {
	dir := t.TempDir()
	binPath := writeTempFile(t, dir, "protoc", "#!/bin/sh\necho hi\n")

	oci := newFakeOCI()
	c := newTestClient(t, oci)

	ref := "registry.example.com/tools/protoc:v27.0"
	digestStr, err := c.Push(context.Background(), ref, []PushFile{
		{Path: binPath, Title: "protoc", Role: RoleBinary},
	}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, digestStr)

	result, err := c.Pull(context.Background(), ref, "")
	require.NoError(t, err)
	require.Equal(t, digestStr, result.Digest)
	require.Contains(t, result.Files, "protoc")

	got, err := os.ReadFile(result.Files["protoc"])
	require.NoError(t, err)
	require.Equal(t, "#!/bin/sh\necho hi\n", string(got))
}

func TestPullExpectedDigestMismatch(t *testing.T) {
	dir := t.TempDir()
	binPath := writeTempFile(t, dir, "protoc", "content")

	oci := newFakeOCI()
	c := newTestClient(t, oci)
	ref := "registry.example.com/tools/protoc:v27.0"
	_, err := c.Push(context.Background(), ref, []PushFile{{Path: binPath, Title: "protoc"}}, nil)
	require.NoError(t, err)

	_, err = c.Pull(context.Background(), ref, "sha256:0000000000000000000000000000000000000000000000000000000000000000")
	require.True(t, toolerr.Is(err, toolerr.KindIntegrityMismatch))
}

func TestPushRequiresTag(t *testing.T) {
	oci := newFakeOCI()
	c := newTestClient(t, oci)
	_, err := c.Push(context.Background(), "registry.example.com/tools/protoc@sha256:"+
		"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd", nil, nil)
	require.True(t, toolerr.Is(err, toolerr.KindConfigInvalid))
}

func TestResolveDigestUsesRefCache(t *testing.T) {
	dir := t.TempDir()
	binPath := writeTempFile(t, dir, "buf", "binary")

	oci := newFakeOCI()
	c := newTestClient(t, oci)
	ref := "registry.example.com/tools/buf:v1.47.2"
	_, err := c.Push(context.Background(), ref, []PushFile{{Path: binPath, Title: "buf"}}, nil)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), ref)
	require.NoError(t, err)
	resolvesAfterFirst := oci.resolveN.Load()

	_, err = c.Fetch(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, resolvesAfterFirst, oci.resolveN.Load(), "second fetch should hit the ref cache, not re-resolve")
}

func TestPrimaryLayerAmbiguous(t *testing.T) {
	m := &Manifest{raw: ocispec.Manifest{Layers: []ocispec.Descriptor{
		{Annotations: map[string]string{ocispec.AnnotationTitle: "a.proto"}},
		{Annotations: map[string]string{ocispec.AnnotationTitle: "b.proto"}},
	}}}
	_, err := m.PrimaryLayer("protoc")
	require.True(t, toolerr.Is(err, toolerr.KindProtocolError))
}

func TestPrimaryLayerSingle(t *testing.T) {
	m := &Manifest{raw: ocispec.Manifest{Layers: []ocispec.Descriptor{
		{Annotations: map[string]string{ocispec.AnnotationTitle: "protoc"}},
	}}}
	desc, err := m.PrimaryLayer("protoc")
	require.NoError(t, err)
	require.Equal(t, "protoc", Title(desc))
}
