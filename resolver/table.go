package resolver

// Key identifies one resolvable artifact: a tool at a version for a
// platform, the same triple the package-manager, OCI, and HTTP strategies
// are all keyed on.
type Key struct {
	Tool     string
	Version  string
	Platform string
}

// OCILocation is where the OCI strategy finds an artifact: a ref to pull
// via the registry client (C2) and the digest its manifest must match.
type OCILocation struct {
	Ref            string
	ExpectedDigest string
}

// HTTPLocation is where the HTTP-origin strategy finds an artifact: a
// pinned URL and the SHA-256 its downloaded bytes must match.
type HTTPLocation struct {
	URL    string
	SHA256 string
	// ArchiveMember, if non-empty, is the path within a downloaded archive
	// to extract; an empty value means the download itself is the file.
	ArchiveMember string
}

// Table is the compile-time (tool, version, platform) → location mapping
// the OCI and HTTP strategies consult, grounded on
// original_source/tools/oras_protoc.py's per-version/per-platform artifact
// table (there keyed the same way, mapping to {oras_ref, digest,
// fallback_url, fallback_sha256}).
type Table struct {
	OCI  map[Key]OCILocation
	HTTP map[Key]HTTPLocation
}

// NewTable creates an empty Table; callers populate OCI/HTTP directly or
// via Add/AddHTTP.
func NewTable() *Table {
	return &Table{OCI: map[Key]OCILocation{}, HTTP: map[Key]HTTPLocation{}}
}

// Add registers an OCI location for key.
func (t *Table) Add(key Key, loc OCILocation) *Table {
	t.OCI[key] = loc
	return t
}

// AddHTTP registers an HTTP-origin location for key.
func (t *Table) AddHTTP(key Key, loc HTTPLocation) *Table {
	t.HTTP[key] = loc
	return t
}
