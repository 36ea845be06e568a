package registry

import (
	"encoding/json"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

func parseDigest(s string) (digest.Digest, error) {
	return digest.Parse(s)
}

func decodeManifest(raw []byte, v *ocispec.Manifest) error {
	return json.Unmarshal(raw, v)
}
