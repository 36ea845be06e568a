package registry

// Media types for artifacts distributed through this module.
const (
	// ArtifactType identifies an OCI 1.1 artifact produced by this module.
	ArtifactType = "application/vnd.birbparty.toolcache.artifact.v1"

	// MediaTypeFile is the default media type for a single distributed
	// file layer when the caller does not specify a more precise one.
	MediaTypeFile = "application/vnd.birbparty.toolcache.file.v1"
)

// Layer annotation keys carrying semantics beyond the OCI-standard ones.
const (
	// AnnotationRole marks a layer's purpose, e.g. "binary" or "schema".
	// Used by primary-layer selection during pull.
	AnnotationRole = "dev.birbparty.toolcache.role"

	// RoleBinary marks the layer that should be treated as the artifact's
	// primary executable when a pull caller asks for "the" file.
	RoleBinary = "binary"
)
