package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/birbparty/toolcache/toolerr"
)

func marshalManifest(m ocispec.Manifest) ([]byte, error) {
	return json.Marshal(m)
}

// Manifest wraps a parsed OCI artifact manifest produced or consumed by
// this module: an arbitrary number of file layers plus descriptive
// annotations.
type Manifest struct {
	raw     ocispec.Manifest
	digest  string
	created time.Time
}

// Digest returns the manifest's own content digest.
func (m *Manifest) Digest() string { return m.digest }

// Annotations returns the manifest-level annotations.
func (m *Manifest) Annotations() map[string]string { return m.raw.Annotations }

// Created returns the creation timestamp recorded in annotations, or the
// zero time if absent or unparsable.
func (m *Manifest) Created() time.Time { return m.created }

// Layers returns every file layer descriptor, in manifest order.
func (m *Manifest) Layers() []ocispec.Descriptor { return m.raw.Layers }

// Raw returns the underlying OCI manifest.
func (m *Manifest) Raw() ocispec.Manifest { return m.raw }

// Title returns the org.opencontainers.image.title annotation for desc,
// the filename to restore on pull.
func Title(desc ocispec.Descriptor) string {
	return desc.Annotations[ocispec.AnnotationTitle]
}

// Role returns the role annotation for desc (e.g. "binary", "schema").
func Role(desc ocispec.Descriptor) string {
	return desc.Annotations[AnnotationRole]
}

// PrimaryLayer selects the single layer a pull caller means by "the"
// artifact file: the sole layer if there is only one; otherwise the layer
// whose title matches one of execNames or whose role is RoleBinary. If
// multiple layers qualify, or none do and there is more than one layer,
// selection is ambiguous and a protocol-error is returned — the caller
// must pick a layer by title instead.
func (m *Manifest) PrimaryLayer(execNames ...string) (ocispec.Descriptor, error) {
	const op = "registry.PrimaryLayer"
	layers := m.raw.Layers
	if len(layers) == 0 {
		return ocispec.Descriptor{}, toolerr.New(op, toolerr.KindProtocolError, fmt.Errorf("manifest has no layers"))
	}
	if len(layers) == 1 {
		return layers[0], nil
	}

	execSet := make(map[string]struct{}, len(execNames))
	for _, n := range execNames {
		execSet[n] = struct{}{}
	}

	var match ocispec.Descriptor
	var matches int
	for _, l := range layers {
		_, byName := execSet[Title(l)]
		byRole := Role(l) == RoleBinary
		if byName || byRole {
			match = l
			matches++
		}
	}
	if matches == 1 {
		return match, nil
	}
	return ocispec.Descriptor{}, toolerr.New(op, toolerr.KindProtocolError,
		fmt.Errorf("manifest has %d layers and no unambiguous primary (matches=%d)", len(layers), matches))
}

func parseManifest(raw *ocispec.Manifest, digest string) (*Manifest, error) {
	const op = "registry.parseManifest"
	if raw.MediaType != ocispec.MediaTypeImageManifest {
		return nil, toolerr.New(op, toolerr.KindProtocolError, fmt.Errorf("unexpected manifest media type %q", raw.MediaType))
	}
	if raw.ArtifactType != "" && raw.ArtifactType != ArtifactType {
		return nil, toolerr.New(op, toolerr.KindProtocolError, fmt.Errorf("unexpected artifact type %q", raw.ArtifactType))
	}
	if len(raw.Layers) == 0 {
		return nil, toolerr.New(op, toolerr.KindProtocolError, fmt.Errorf("manifest has no layers"))
	}

	var created time.Time
	if ts, ok := raw.Annotations[ocispec.AnnotationCreated]; ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			created = t
		}
	}

	return &Manifest{raw: *raw, digest: digest, created: created}, nil
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
		ArtifactType: ArtifactType,
		Config:       configDesc,
		Layers:       layers,
		Annotations:  ann,
	}
}
