package registry

import (
	"context"
	"io"
	"net/http"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// OCIClient is the low-level OCI registry operation set the high-level
// Client builds on. It abstracts oras-go/v2 so tests can substitute a mock.
type OCIClient interface {
	PushBlob(ctx context.Context, repoRef string, desc *ocispec.Descriptor, r io.Reader) error
	FetchBlob(ctx context.Context, repoRef string, desc *ocispec.Descriptor) (io.ReadCloser, error)
	PushManifest(ctx context.Context, repoRef, tag string, manifest *ocispec.Manifest, raw []byte) (ocispec.Descriptor, error)
	FetchManifest(ctx context.Context, repoRef string, expected *ocispec.Descriptor) (ocispec.Manifest, []byte, error)
	Resolve(ctx context.Context, repoRef, ref string) (ocispec.Descriptor, error)
	Tag(ctx context.Context, repoRef string, desc *ocispec.Descriptor, tag string) error
	ListTags(ctx context.Context, repoRef string) ([]string, error)
	BlobURL(repoRef, digest string) (string, error)
	AuthHeaders(ctx context.Context, repoRef string) (http.Header, error)
	InvalidateAuthHeaders(repoRef string) error
}
