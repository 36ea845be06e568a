// Package publisher implements the Artifact Publisher (C7): it packages
// a set of local files as an OCI artifact manifest and pushes it,
// uploading layers with bounded parallelism. Grounded on
// registry/push.go's manifest-build/upload structure, generalized from
// the teacher's fixed two-layer (index+data) manifest to an
// N-layer-per-file manifest, and on
// original_source/tools/artifact_publisher.py for the per-file digest/size
// computation and additional-tag application loop.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"golang.org/x/sync/errgroup"

	"github.com/birbparty/toolcache/internal/refparse"
	"github.com/birbparty/toolcache/registry"
	"github.com/birbparty/toolcache/toolerr"
)

const defaultConcurrency = 4

// File describes one local file to publish.
type File struct {
	// Path is the local file to upload.
	Path string
	// Title is recorded as the layer's title annotation (the relative
	// path to restore on pull). Defaults to filepath.Base(Path).
	Title string
}

// Result is the outcome of a successful Publish.
type Result struct {
	Digest string
	Tags   []string
}

// Publisher uploads artifact manifests built from local files via a
// registry.OCIClient, the same low-level transport seam registry.Client
// uses.
type Publisher struct {
	oci          registry.OCIClient
	verifyClient *registry.Client
	concurrency  int
	verifyOnPush bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithConcurrency overrides the default bounded parallelism (4) for
// layer uploads.
func WithConcurrency(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithRoundTripVerification enables pulling the ref back immediately
// after push and asserting the file set, sizes, and digests match,
// using client for the verification pull.
func WithRoundTripVerification(client *registry.Client) Option {
	return func(p *Publisher) {
		p.verifyClient = client
		p.verifyOnPush = true
	}
}

// New creates a Publisher uploading through oci.
func New(oci registry.OCIClient, opts ...Option) *Publisher {
	p := &Publisher{oci: oci, concurrency: defaultConcurrency}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish validates every file, computes digests, uploads config then
// every layer (bounded concurrency) then the manifest, and returns the
// manifest digest. extraTags, if non-empty, are applied by re-pushing the
// manifest under each additional tag name.
func (p *Publisher) Publish(ctx context.Context, ref string, files []File, annotations map[string]string, extraTags ...string) (Result, error) {
	const op = "publisher.Publish"

	parsed, err := refparse.Parse(ref)
	if err != nil {
		return Result{}, err
	}
	if parsed.IsDigest() {
		return Result{}, toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("publish target %q must carry a tag, not a digest", ref))
	}
	if len(files) == 0 {
		return Result{}, toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("no files to publish"))
	}

	descs, err := p.prepareDescriptors(files)
	if err != nil {
		return Result{}, err
	}

	configDesc, err := p.pushConfig(ctx, ref)
	if err != nil {
		return Result{}, toolerr.New(op, toolerr.KindTransportFailed, err)
	}

	if err := p.uploadLayers(ctx, ref, files, descs); err != nil {
		return Result{}, err
	}

	manifest := buildManifest(configDesc, descs, annotations)
	raw, err := json.Marshal(manifest)
	if err != nil {
		return Result{}, toolerr.New(op, toolerr.KindInternal, err)
	}

	var manifestDesc ocispec.Descriptor
	err = withRetry(ctx, func() error {
		var pushErr error
		manifestDesc, pushErr = p.oci.PushManifest(ctx, ref, parsed.Tag, &manifest, raw)
		return mapErr(op, pushErr)
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{Digest: manifestDesc.Digest.String()}

	for _, tag := range extraTags {
		if err := withRetry(ctx, func() error {
			return mapErr(op, p.oci.Tag(ctx, ref, &manifestDesc, tag))
		}); err != nil {
			return Result{}, err
		}
		result.Tags = append(result.Tags, tag)
	}

	if p.verifyOnPush {
		if err := p.verifyRoundTrip(ctx, ref, result.Digest, files); err != nil {
			return Result{}, err
		}
	}

	return result, nil
}

func (p *Publisher) prepareDescriptors(files []File) ([]ocispec.Descriptor, error) {
	const op = "publisher.prepareDescriptors"
	descs := make([]ocispec.Descriptor, len(files))
	for i, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			return nil, toolerr.New(op, toolerr.KindConfigInvalid, err)
		}
		if !info.Mode().IsRegular() {
			return nil, toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("%s is not a regular file", f.Path))
		}

		file, err := os.Open(f.Path)
		if err != nil {
			return nil, toolerr.New(op, toolerr.KindInternal, err)
		}
		d, err := digest.FromReader(file)
		file.Close()
		if err != nil {
			return nil, toolerr.New(op, toolerr.KindInternal, err)
		}

		title := f.Title
		if title == "" {
			title = filepath.Base(f.Path)
		}
		descs[i] = ocispec.Descriptor{
			MediaType:   registry.MediaTypeFile,
			Digest:      d,
			Size:        info.Size(),
			Annotations: map[string]string{ocispec.AnnotationTitle: title},
		}
	}
	return descs, nil
}

func (p *Publisher) pushConfig(ctx context.Context, ref string) (ocispec.Descriptor, error) {
	const op = "publisher.pushConfig"
	config := []byte("{}")
	desc := ocispec.Descriptor{
		MediaType: ocispec.MediaTypeEmptyJSON,
		Digest:    digest.FromBytes(config),
		Size:      int64(len(config)),
	}
	err := withRetry(ctx, func() error {
		return mapErr(op, p.oci.PushBlob(ctx, ref, &desc, bytes.NewReader(config)))
	})
	return desc, err
}

// uploadLayers uploads every file's layer with bounded concurrency
// (default 4). A hard failure (auth, integrity, protocol) cancels the
// remaining uploads; a transport failure exhausts its own retry budget
// and is recorded but lets siblings finish, per spec.md §5's cancellation
// rule.
func (p *Publisher) uploadLayers(ctx context.Context, ref string, files []File, descs []ocispec.Descriptor) error {
	const op = "publisher.uploadLayers"
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	var softMu sync.Mutex
	var softErr error

	for idx := range files {
		i := idx
		g.Go(func() error {
			f, err := os.Open(files[i].Path)
			if err != nil {
				return toolerr.New(op, toolerr.KindInternal, err)
			}
			defer f.Close()

			desc := descs[i]
			err = withRetry(gctx, func() error {
				if _, seekErr := f.Seek(0, 0); seekErr != nil {
					return toolerr.New(op, toolerr.KindInternal, seekErr)
				}
				return mapErr(op, p.oci.PushBlob(gctx, ref, &desc, f))
			})
			if err == nil {
				return nil
			}
			if isHardFailure(err) {
				return err
			}
			softMu.Lock()
			if softErr == nil {
				softErr = err
			}
			softMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return softErr
}

func isHardFailure(err error) bool {
	switch toolerr.KindOf(err) {
	case toolerr.KindAuthRequired, toolerr.KindAuthFailed, toolerr.KindIntegrityMismatch, toolerr.KindProtocolError:
		return true
	default:
		return false
	}
}

func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *toolerr.Error
	if errors.As(err, &te) {
		return err
	}
	return toolerr.New(op, toolerr.KindTransportFailed, err)
}

func buildManifest(configDesc ocispec.Descriptor, layers []ocispec.Descriptor, annotations map[string]string) ocispec.Manifest {
	ann := make(map[string]string, len(annotations)+1)
	for k, v := range annotations {
		ann[k] = v
	}
	if _, ok := ann[ocispec.AnnotationCreated]; !ok {
		ann[ocispec.AnnotationCreated] = time.Now().UTC().Format(time.RFC3339)
	}
	return ocispec.Manifest{
		Versioned:    specs.Versioned{SchemaVersion: 2},
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: registry.ArtifactType,
		Config:       configDesc,
		Layers:       layers,
		Annotations:  ann,
	}
}

// withRetry retries fn with exponential backoff, limited to errors
// toolerr.Retryable deems transient (transport failures, timeouts) —
// mirrors registry/client.go's withRetry policy, duplicated here because
// Publisher talks to the raw registry.OCIClient rather than
// registry.Client.
func withRetry(ctx context.Context, fn func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !toolerr.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// verifyRoundTrip pulls ref back immediately after a push and checks that
// every published file reappears with the same size and digest, per
// spec.md §4.7's round-trip verification requirement.
func (p *Publisher) verifyRoundTrip(ctx context.Context, ref, expectedDigest string, files []File) error {
	const op = "publisher.verifyRoundTrip"

	result, err := p.verifyClient.Pull(ctx, ref, expectedDigest)
	if err != nil {
		return err
	}

	for _, f := range files {
		title := f.Title
		if title == "" {
			title = filepath.Base(f.Path)
		}
		cachePath, ok := result.Files[title]
		if !ok {
			return toolerr.New(op, toolerr.KindIntegrityMismatch, fmt.Errorf("published file %q missing after round-trip pull", title))
		}

		wantInfo, err := os.Stat(f.Path)
		if err != nil {
			return toolerr.New(op, toolerr.KindInternal, err)
		}
		gotInfo, err := os.Stat(cachePath)
		if err != nil {
			return toolerr.New(op, toolerr.KindInternal, err)
		}
		if wantInfo.Size() != gotInfo.Size() {
			return toolerr.New(op, toolerr.KindIntegrityMismatch, fmt.Errorf("file %q size mismatch after round-trip: want %d got %d", title, wantInfo.Size(), gotInfo.Size()))
		}

		wantFile, err := os.Open(f.Path)
		if err != nil {
			return toolerr.New(op, toolerr.KindInternal, err)
		}
		wantDigest, err := digest.FromReader(wantFile)
		wantFile.Close()
		if err != nil {
			return toolerr.New(op, toolerr.KindInternal, err)
		}

		gotFile, err := os.Open(cachePath)
		if err != nil {
			return toolerr.New(op, toolerr.KindInternal, err)
		}
		gotDigest, err := digest.FromReader(gotFile)
		gotFile.Close()
		if err != nil {
			return toolerr.New(op, toolerr.KindInternal, err)
		}

		if wantDigest != gotDigest {
			return toolerr.New(op, toolerr.KindIntegrityMismatch, fmt.Errorf("file %q digest mismatch after round-trip: want %s got %s", title, wantDigest, gotDigest))
		}
	}

	return nil
}
