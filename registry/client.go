// Package registry implements the Registry Client (C2): it speaks the OCI
// distribution protocol well enough to push and pull named artifacts,
// verifies every blob against its manifest-declared digest, translates
// tags to digests, and retries transient transport failures.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/birbparty/toolcache/cache"
	regcache "github.com/birbparty/toolcache/registry/cache"
	"github.com/birbparty/toolcache/registry/oras"
	"github.com/birbparty/toolcache/toolerr"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultPullTimeout    = 300 * time.Second
	defaultPushTimeout    = 600 * time.Second
	maxRetryAttempts      = 3
)

// Client is the high-level registry client used by the resolver (C4), the
// BSR dependency resolver (C6), and the publisher (C7).
type Client struct {
	oci           OCIClient
	blobCache     *cache.Cache
	refCache      regcache.RefCache
	manifestCache regcache.ManifestCache
	logger        *slog.Logger
	orasOpts      []oras.Option
	pullTimeout   time.Duration
	pushTimeout   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithOCIClient overrides the default oras-go-backed OCIClient, primarily
// for tests.
func WithOCIClient(oci OCIClient) Option {
	return func(c *Client) { c.oci = oci }
}

// WithBlobCache sets the digest cache (C1) pulled blobs are inserted into.
func WithBlobCache(bc *cache.Cache) Option {
	return func(c *Client) { c.blobCache = bc }
}

// WithRefCache overrides the tag->digest resolution cache.
func WithRefCache(rc regcache.RefCache) Option {
	return func(c *Client) { c.refCache = rc }
}

// WithManifestCache overrides the fetched-manifest cache.
func WithManifestCache(mc regcache.ManifestCache) Option {
	return func(c *Client) { c.manifestCache = mc }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithPlainHTTP passes through to the default oras-go client.
func WithPlainHTTP() Option {
	return func(c *Client) { c.orasOpts = append(c.orasOpts, oras.WithPlainHTTP()) }
}

// WithUserAgent passes through to the default oras-go client.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.orasOpts = append(c.orasOpts, oras.WithUserAgent(ua)) }
}

// WithCredentials passes through to the default oras-go client, wiring the
// credential store built by the credentials package (C3).
func WithCredentials(store oras.CredentialLookup) Option {
	return func(c *Client) {
		c.orasOpts = append(c.orasOpts, oras.WithCredentialAdapter(store))
	}
}

// WithPullTimeout overrides the default 300s budget for a whole Pull call.
func WithPullTimeout(d time.Duration) Option {
	return func(c *Client) { c.pullTimeout = d }
}

// WithPushTimeout overrides the default 600s budget for a whole Push call.
func WithPushTimeout(d time.Duration) Option {
	return func(c *Client) { c.pushTimeout = d }
}

// New creates a registry Client. If no OCIClient is supplied via
// WithOCIClient, a default oras-go-backed one is built from any
// pass-through options (WithPlainHTTP, WithUserAgent, ...).
func New(opts ...Option) *Client {
	c := &Client{
		refCache:      regcache.NewInMemoryRefCache(0, 0),
		manifestCache: regcache.NewInMemoryManifestCache(0, 0),
		pullTimeout:   defaultPullTimeout,
		pushTimeout:   defaultPushTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.oci == nil {
		orasOpts := c.orasOpts
		if c.logger != nil {
			orasOpts = append(orasOpts, oras.WithLogger(c.logger))
		}
		c.oci = oras.New(orasOpts...)
	}
	return c
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// withRetry retries fn up to maxRetryAttempts additional times with
// exponential backoff, but only for transport-failed/timeout kinds — any
// other error kind is returned immediately.
func withRetry(ctx context.Context, fn func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetryAttempts), ctx)
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

func mapOCIErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, oras.ErrNotFound) {
		return toolerr.New(op, toolerr.KindNotFound, err)
	}
	var te *toolerr.Error
	if errors.As(err, &te) {
		return err
	}
	return toolerr.New(op, toolerr.KindTransportFailed, err)
}
