// Package oras provides a generic OCI client layer wrapping oras-go/v2.
//
// Client handles authentication, token/header caching, and OCI 1.0/1.1
// registry protocol details so the registry package above it can work in
// terms of plain descriptors and manifests.
package oras

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/errdef"
	orasregistry "oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
	"oras.land/oras-go/v2/registry/remote/retry"
)

// ErrNotFound is returned when the underlying oras-go call reports the
// repository, tag, or digest does not exist.
var ErrNotFound = errors.New("oras: not found")

// Client is a thin, authenticated OCI registry client built on oras-go/v2.
type Client struct {
	authClient  *auth.Client
	plainHTTP   bool
	userAgent   string
	headerCache *authHeaderCache
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithPlainHTTP disables TLS for registry connections (for local/test
// registries).
func WithPlainHTTP() Option {
	return func(c *Client) { c.plainHTTP = true }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithAnonymous disables credential lookup entirely; requests are sent
// unauthenticated.
func WithAnonymous() Option {
	return func(c *Client) {
		c.authClient.Credential = auth.StaticCredential("", auth.EmptyCredential)
	}
}

// WithStaticCredentials configures a single fixed username/password used for
// every registry host.
func WithStaticCredentials(username, password string) Option {
	return func(c *Client) {
		c.authClient.Credential = func(_ context.Context, _ string) (auth.Credential, error) {
			return auth.Credential{Username: username, Password: password}, nil
		}
	}
}

// WithStaticToken configures a single fixed bearer token used for every
// registry host.
func WithStaticToken(token string) Option {
	return func(c *Client) {
		c.authClient.Credential = func(_ context.Context, _ string) (auth.Credential, error) {
			return auth.Credential{AccessToken: token}, nil
		}
	}
}

// WithCredentialStore wires an arbitrary credentials.Store (e.g. the Docker
// config store) as the credential source.
func WithCredentialStore(store credentials.Store) Option {
	return func(c *Client) {
		c.authClient.Credential = credentials.Credential(store)
	}
}

// CredentialLookup is the minimal capability the credentials package (C3)
// exposes: resolve a username/secret pair for a registry host. A secret
// with no username is treated as a bearer token.
type CredentialLookup interface {
	Get(ctx context.Context, registry string) (username, secret string, err error)
}

// WithCredentialAdapter wires C3's credential store in as the credential
// source, bridging its (username, secret) shape to auth.Credential.
func WithCredentialAdapter(store CredentialLookup) Option {
	return func(c *Client) {
		c.authClient.Credential = func(ctx context.Context, reg string) (auth.Credential, error) {
			username, secret, err := store.Get(ctx, reg)
			if err != nil {
				return auth.EmptyCredential, err
			}
			if username == "" {
				return auth.Credential{AccessToken: secret}, nil
			}
			return auth.Credential{Username: username, Password: secret}, nil
		}
	}
}

// WithAuthHeaderCacheTTL overrides the default TTL for the in-process
// resolved-auth-header cache. A non-positive value disables the cache.
func WithAuthHeaderCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.headerCache = newAuthHeaderCache(ttl)
	}
}

// WithLogger attaches a logger used for debug-level tracing of requests.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New builds a Client with sane defaults: retrying HTTP transport, an
// auth token cache, and a one-minute auth header cache. No credential
// source is set; requests carry credentials only when an option
// supplies them.
func New(opts ...Option) *Client {
	c := &Client{
		authClient: &auth.Client{
			Client: retry.DefaultClient,
			Cache:  auth.NewCache(),
		},
		headerCache: newAuthHeaderCache(defaultAuthHeaderCacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.userAgent != "" {
		if c.authClient.Header == nil {
			c.authClient.Header = http.Header{}
		}
		c.authClient.Header.Set("User-Agent", c.userAgent)
	}
	return c
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

func parseRef(repoRef string) (orasregistry.Reference, error) {
	ref, err := orasregistry.ParseReference(repoRef)
	if err != nil {
		return orasregistry.Reference{}, fmt.Errorf("parse reference %q: %w", repoRef, err)
	}
	return ref, nil
}

func (c *Client) repository(repoRef string) (*remote.Repository, error) {
	ref, err := parseRef(repoRef)
	if err != nil {
		return nil, err
	}
	repo, err := remote.NewRepository(ref.String())
	if err != nil {
		return nil, fmt.Errorf("new repository %q: %w", repoRef, err)
	}
	repo.PlainHTTP = c.plainHTTP
	repo.Client = c.authClient
	return repo, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errdef.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// PushBlob uploads r as a blob for repoRef, matching the pre-computed
// digest and size in desc.
func (c *Client) PushBlob(ctx context.Context, repoRef string, desc *ocispec.Descriptor, r io.Reader) error {
	repo, err := c.repository(repoRef)
	if err != nil {
		return err
	}
	return mapErr(repo.Push(ctx, *desc, r))
}

// FetchBlob returns a reader for the blob described by desc.
func (c *Client) FetchBlob(ctx context.Context, repoRef string, desc *ocispec.Descriptor) (io.ReadCloser, error) {
	repo, err := c.repository(repoRef)
	if err != nil {
		return nil, err
	}
	rc, err := repo.Fetch(ctx, *desc)
	if err != nil {
		return nil, mapErr(err)
	}
	return rc, nil
}

// PushManifest uploads manifest, tagging it with tag.
func (c *Client) PushManifest(ctx context.Context, repoRef, tag string, manifest *ocispec.Manifest, raw []byte) (ocispec.Descriptor, error) {
	repo, err := c.repository(repoRef)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	desc := ocispec.Descriptor{
		MediaType: manifest.MediaType,
		Digest:    digestOf(raw),
		Size:      int64(len(raw)),
	}
	if err := repo.PushReference(ctx, desc, newReader(raw), tag); err != nil {
		return ocispec.Descriptor{}, mapErr(err)
	}
	return desc, nil
}

// FetchManifest fetches the manifest at expected and returns it parsed
// alongside the raw bytes (needed for exact re-digesting).
func (c *Client) FetchManifest(ctx context.Context, repoRef string, expected *ocispec.Descriptor) (ocispec.Manifest, []byte, error) {
	repo, err := c.repository(repoRef)
	if err != nil {
		return ocispec.Manifest{}, nil, err
	}
	rc, err := repo.Fetch(ctx, *expected)
	if err != nil {
		return ocispec.Manifest{}, nil, mapErr(err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return ocispec.Manifest{}, nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest ocispec.Manifest
	if err := decodeJSON(data, &manifest); err != nil {
		return ocispec.Manifest{}, nil, fmt.Errorf("decode manifest: %w", err)
	}
	return manifest, data, nil
}

// Resolve resolves ref (a tag or digest) to its descriptor.
func (c *Client) Resolve(ctx context.Context, repoRef, ref string) (ocispec.Descriptor, error) {
	repo, err := c.repository(repoRef)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	desc, err := repo.Resolve(ctx, ref)
	if err != nil {
		return ocispec.Descriptor{}, mapErr(err)
	}
	return desc, nil
}

// Tag points tag at the manifest described by desc.
func (c *Client) Tag(ctx context.Context, repoRef string, desc *ocispec.Descriptor, tag string) error {
	repo, err := c.repository(repoRef)
	if err != nil {
		return err
	}
	return mapErr(repo.Tag(ctx, *desc, tag))
}

// ListTags returns every tag currently bound in the repository.
func (c *Client) ListTags(ctx context.Context, repoRef string) ([]string, error) {
	repo, err := c.repository(repoRef)
	if err != nil {
		return nil, err
	}
	var tags []string
	err = repo.Tags(ctx, "", func(page []string) error {
		tags = append(tags, page...)
		return nil
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return tags, nil
}

// BlobURL returns the direct blob URL for digest in repoRef, for HTTP range
// access outside of oras-go's own fetch path.
func (c *Client) BlobURL(repoRef, digest string) (string, error) {
	ref, err := parseRef(repoRef)
	if err != nil {
		return "", err
	}
	scheme := "https"
	if c.plainHTTP {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/v2/%s/blobs/%s", scheme, ref.Registry, ref.Repository, digest), nil
}

// AuthHeaders resolves and caches an Authorization header for repoRef's
// host, suitable for a direct HTTP request outside the oras-go client.
func (c *Client) AuthHeaders(ctx context.Context, repoRef string) (http.Header, error) {
	ref, err := parseRef(repoRef)
	if err != nil {
		return nil, err
	}
	host := ref.Registry

	if c.headerCache != nil {
		if v, ok := c.headerCache.get(host); ok {
			return http.Header{"Authorization": []string{v}}, nil
		}
	}

	if c.authClient.Credential == nil {
		return http.Header{}, nil
	}
	cred, err := c.authClient.Credential(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve credential for %q: %w", host, err)
	}

	var header string
	switch {
	case cred.AccessToken != "":
		header = "Bearer " + cred.AccessToken
	case cred.RefreshToken != "":
		header = "Bearer " + cred.RefreshToken
	case cred.Username != "" || cred.Password != "":
		header = "Basic " + base64.StdEncoding.EncodeToString([]byte(cred.Username+":"+cred.Password))
	default:
		return http.Header{}, nil
	}

	if c.headerCache != nil {
		c.headerCache.set(host, header)
	}
	c.log().Debug("resolved auth header", "host", host)
	return http.Header{"Authorization": []string{header}}, nil
}

// InvalidateAuthHeaders clears any cached auth header for repoRef's host,
// forcing the next AuthHeaders call to re-resolve credentials.
func (c *Client) InvalidateAuthHeaders(repoRef string) error {
	ref, err := parseRef(repoRef)
	if err != nil {
		return err
	}
	if c.headerCache != nil {
		c.headerCache.invalidate(ref.Registry)
	}
	return nil
}
