package registry

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/birbparty/toolcache/internal/refparse"
	"github.com/birbparty/toolcache/toolerr"
)

// PullResult is the outcome of a successful Pull: every layer's restored
// title mapped to its path in the digest cache (C1), plus the resolved
// manifest digest.
type PullResult struct {
	Digest string
	Files  map[string]string // title -> cache path
}

// Pull resolves ref (tag or digest), fetches its manifest, verifies and
// caches every layer's content by digest, and returns the cache paths
// keyed by each layer's title annotation. If expectedDigest is non-empty,
// the manifest's own digest must match it exactly.
func (c *Client) Pull(ctx context.Context, ref string, expectedDigest string) (*PullResult, error) {
	const op = "registry.Pull"
	ctx, cancel := context.WithTimeout(ctx, c.pullTimeout)
	defer cancel()

	manifest, err := c.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	if expectedDigest != "" && manifest.Digest() != expectedDigest {
		return nil, toolerr.New(op, toolerr.KindIntegrityMismatch,
			fmt.Errorf("manifest digest %s does not match expected %s", manifest.Digest(), expectedDigest))
	}

	files := make(map[string]string, len(manifest.Layers()))
	for _, layer := range manifest.Layers() {
		path, err := c.pullLayer(ctx, ref, layer)
		if err != nil {
			return nil, err
		}
		title := Title(layer)
		if title == "" {
			title = layer.Digest.String()
		}
		files[title] = path
	}

	return &PullResult{Digest: manifest.Digest(), Files: files}, nil
}

func (c *Client) pullLayer(ctx context.Context, ref string, desc ocispec.Descriptor) (string, error) {
	const op = "registry.pullLayer"
	digest := desc.Digest.String()

	if c.blobCache != nil {
		if path, ok := c.blobCache.Lookup(digest); ok {
			return path, nil
		}
	}

	var rc io.ReadCloser
	err := withRetry(ctx, func() error {
		var fetchErr error
		rc, fetchErr = c.oci.FetchBlob(ctx, ref, &desc)
		return mapOCIErr(op, fetchErr)
	})
	if err != nil {
		return "", err
	}
	defer rc.Close()

	if c.blobCache == nil {
		return "", toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("no blob cache configured"))
	}
	path, err := c.blobCache.Insert(digest, rc)
	if err != nil {
		return "", err
	}
	return path, nil
}

// Fetch resolves ref and returns its parsed manifest, using the ref and
// manifest caches where possible.
func (c *Client) Fetch(ctx context.Context, ref string) (*Manifest, error) {
	const op = "registry.Fetch"

	parsed, err := refparse.Parse(ref)
	if err != nil {
		return nil, err
	}

	digest, err := c.resolveDigest(ctx, ref, parsed)
	if err != nil {
		return nil, err
	}

	if c.manifestCache != nil {
		if raw, ok := c.manifestCache.GetManifest(digest); ok {
			var m ocispec.Manifest
			if jsonErr := decodeManifest(raw, &m); jsonErr == nil {
				if parsed, parseErr := parseManifest(&m, digest); parseErr == nil {
					return parsed, nil
				}
				c.manifestCache.Delete(digest) //nolint:errcheck // best-effort cleanup
			}
		}
	}

	desc, err := digestDescriptor(digest)
	if err != nil {
		return nil, err
	}

	var raw []byte
	var rawManifest ocispec.Manifest
	err = withRetry(ctx, func() error {
		var fetchErr error
		rawManifest, raw, fetchErr = c.oci.FetchManifest(ctx, ref, &desc)
		return mapOCIErr(op, fetchErr)
	})
	if err != nil {
		return nil, err
	}

	parsedManifest, err := parseManifest(&rawManifest, digest)
	if err != nil {
		return nil, err
	}
	if c.manifestCache != nil {
		_ = c.manifestCache.PutManifest(digest, raw) //nolint:errcheck // best-effort
	}
	return parsedManifest, nil
}

func (c *Client) resolveDigest(ctx context.Context, ref string, parsed refparse.Ref) (string, error) {
	const op = "registry.resolveDigest"
	if parsed.IsDigest() {
		return parsed.Digest, nil
	}

	if c.refCache != nil {
		if digest, ok := c.refCache.GetDigest(ref); ok {
			return digest, nil
		}
	}

	var desc ocispec.Descriptor
	err := withRetry(ctx, func() error {
		var resolveErr error
		desc, resolveErr = c.oci.Resolve(ctx, ref, parsed.Tag)
		return mapOCIErr(op, resolveErr)
	})
	if err != nil {
		return "", err
	}

	digest := desc.Digest.String()
	if c.refCache != nil {
		_ = c.refCache.PutDigest(ref, digest) //nolint:errcheck // best-effort
	}
	return digest, nil
}

// ListTags returns the tags currently bound in ref's repository.
func (c *Client) ListTags(ctx context.Context, ref string) ([]string, error) {
	const op = "registry.ListTags"
	var tags []string
	err := withRetry(ctx, func() error {
		var listErr error
		tags, listErr = c.oci.ListTags(ctx, ref)
		return mapOCIErr(op, listErr)
	})
	return tags, err
}

// ResolveTag is a pure lookup for the digest a tag currently refers to,
// bypassing the ref cache so it always reflects the registry's current
// state.
func (c *Client) ResolveTag(ctx context.Context, ref string) (string, error) {
	const op = "registry.ResolveTag"
	parsed, err := refparse.Parse(ref)
	if err != nil {
		return "", err
	}
	if parsed.IsDigest() {
		return parsed.Digest, nil
	}
	var desc ocispec.Descriptor
	err = withRetry(ctx, func() error {
		var resolveErr error
		desc, resolveErr = c.oci.Resolve(ctx, ref, parsed.Tag)
		return mapOCIErr(op, resolveErr)
	})
	if err != nil {
		return "", err
	}
	return desc.Digest.String(), nil
}

func digestDescriptor(dgst string) (ocispec.Descriptor, error) {
	d, err := parseDigest(dgst)
	if err != nil {
		return ocispec.Descriptor{}, toolerr.New("registry.digestDescriptor", toolerr.KindConfigInvalid, err)
	}
	return ocispec.Descriptor{Digest: d}, nil
}

// restoreFile copies the content at srcPath into destDir/title and
// returns the destination path, for code in this package that needs the
// file at a chosen location rather than at its cache path.
func restoreFile(srcPath, destDir, title string) (string, error) {
	destPath := filepath.Join(destDir, title)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", err
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer src.Close()
	dst, err := os.Create(destPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return destPath, nil
}
