package registry

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/birbparty/toolcache/internal/refparse"
	"github.com/birbparty/toolcache/toolerr"
)

// PushFile describes one local file to include as a manifest layer.
type PushFile struct {
	// Path is the local file to upload.
	Path string
	// Title is recorded as the layer's org.opencontainers.image.title
	// annotation — the filename to restore on pull.
	Title string
	// MediaType overrides the default file media type, if non-empty.
	MediaType string
	// Role, if non-empty, is recorded as the layer's role annotation
	// (e.g. RoleBinary) and consulted by Manifest.PrimaryLayer.
	Role string
}

// Push builds a manifest per §3 from files, uploads the config and every
// layer (order unspecified), then the manifest, and returns the final
// manifest digest. ref must carry a tag (a digest-only ref cannot be
// pushed to, since nothing would bind to it).
func (c *Client) Push(ctx context.Context, ref string, files []PushFile, annotations map[string]string) (string, error) {
	const op = "registry.Push"
	ctx, cancel := context.WithTimeout(ctx, c.pushTimeout)
	defer cancel()

	parsed, err := refparse.Parse(ref)
	if err != nil {
		return "", err
	}
	if parsed.IsDigest() {
		return "", toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("push target %q must carry a tag, not a digest", ref))
	}
	if len(files) == 0 {
		return "", toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("no files to push"))
	}

	configDesc, err := c.pushEmptyConfig(ctx, ref)
	if err != nil {
		return "", toolerr.New(op, toolerr.KindTransportFailed, fmt.Errorf("push config: %w", err))
	}

	layers := make([]ocispec.Descriptor, 0, len(files))
	for _, f := range files {
		desc, err := c.pushFile(ctx, ref, f)
		if err != nil {
			return "", err
		}
		layers = append(layers, desc)
	}

	manifest := buildManifest(configDesc, layers, annotations)
	raw, err := marshalManifest(manifest)
	if err != nil {
		return "", toolerr.New(op, toolerr.KindInternal, err)
	}

	var manifestDesc ocispec.Descriptor
	err = withRetry(ctx, func() error {
		var pushErr error
		manifestDesc, pushErr = c.oci.PushManifest(ctx, ref, parsed.Tag, &manifest, raw)
		return mapOCIErr(op, pushErr)
	})
	if err != nil {
		return "", err
	}

	return manifestDesc.Digest.String(), nil
}

func (c *Client) pushEmptyConfig(ctx context.Context, ref string) (ocispec.Descriptor, error) {
	const op = "registry.pushEmptyConfig"
	config := []byte("{}")
	desc := ocispec.Descriptor{
		MediaType: ocispec.MediaTypeEmptyJSON,
		Digest:    digest.FromBytes(config),
		Size:      int64(len(config)),
	}
	err := withRetry(ctx, func() error {
		return mapOCIErr(op, c.oci.PushBlob(ctx, ref, &desc, bytes.NewReader(config)))
	})
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

func (c *Client) pushFile(ctx context.Context, ref string, f PushFile) (ocispec.Descriptor, error) {
	const op = "registry.pushFile"
	file, err := os.Open(f.Path)
	if err != nil {
		return ocispec.Descriptor{}, toolerr.New(op, toolerr.KindConfigInvalid, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return ocispec.Descriptor{}, toolerr.New(op, toolerr.KindInternal, err)
	}

	sum, err := digestFile(file)
	if err != nil {
		return ocispec.Descriptor{}, toolerr.New(op, toolerr.KindInternal, err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		return ocispec.Descriptor{}, toolerr.New(op, toolerr.KindInternal, err)
	}

	mediaType := f.MediaType
	if mediaType == "" {
		mediaType = MediaTypeFile
	}
	title := f.Title
	if title == "" {
		title = info.Name()
	}

	annotations := map[string]string{ocispec.AnnotationTitle: title}
	if f.Role != "" {
		annotations[AnnotationRole] = f.Role
	}

	desc := ocispec.Descriptor{
		MediaType:   mediaType,
		Digest:      sum,
		Size:        info.Size(),
		Annotations: annotations,
	}

	err = withRetry(ctx, func() error {
		if _, seekErr := file.Seek(0, 0); seekErr != nil {
			return toolerr.New(op, toolerr.KindInternal, seekErr)
		}
		return mapOCIErr(op, c.oci.PushBlob(ctx, ref, &desc, file))
	})
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

func digestFile(f *os.File) (digest.Digest, error) {
	return digest.FromReader(f)
}

// annotationCreated returns the manifest-level creation-time annotation
// key and its RFC 3339 UTC value for t.
func annotationCreated(t time.Time) (string, string) {
	return ocispec.AnnotationCreated, t.UTC().Format(time.RFC3339)
}
