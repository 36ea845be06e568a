package registry

import (
	"context"
	"fmt"

	"github.com/birbparty/toolcache/internal/refparse"
	"github.com/birbparty/toolcache/toolerr"
)

// Tag points tagRef's tag at the manifest identified by digest, which must
// already exist in tagRef's repository.
func (c *Client) Tag(ctx context.Context, tagRef, digest string) error {
	const op = "registry.Tag"
	parsed, err := refparse.Parse(tagRef)
	if err != nil {
		return err
	}
	if parsed.IsDigest() {
		return toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("tag target %q must carry a tag, not a digest", tagRef))
	}

	desc, err := c.oci.Resolve(ctx, tagRef, digest)
	if err != nil {
		return mapOCIErr(op, err)
	}
	return mapOCIErr(op, c.oci.Tag(ctx, tagRef, &desc, parsed.Tag))
}
