package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/birbparty/toolcache/toolerr"
)

// source is one acquisition step in the ladder. It returns ok=false (no
// error) when it simply has nothing for registry, so the next source in
// the chain runs.
type source interface {
	lookup(ctx context.Context, registry string) (Credential, bool, error)
}

// Store answers "what credential should I use for this registry?" by
// trying each configured source in order and persisting whatever a
// later, more expensive source produces into the encrypted local store
// so the next lookup is cheap.
//
// Grounded on the teacher's dockerHubFallbackStore: a chain of lookups
// tried in order, short-circuiting on the first non-empty result.
type Store struct {
	sources []source
	enc     *encryptedStore
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithEnvPrefix adds the environment-variable source: looks up
// "<PREFIX>_TOKEN", or else the "<PREFIX>_USERNAME" and
// "<PREFIX>_PASSWORD" pair, for a registry matched against
// registryEnvNames.
func WithEnvPrefix(registryEnvNames map[string]string) Option {
	return func(s *Store) {
		s.sources = append(s.sources, &envSource{names: registryEnvNames})
	}
}

// WithNetrcFile adds the machine-scoped credentials file source (a
// netrc-equivalent, indexed by host).
func WithNetrcFile(path string) Option {
	return func(s *Store) {
		s.sources = append(s.sources, &netrcSource{path: path})
	}
}

// WithServiceAccountFile adds the service-account-file source: the file
// path itself comes from an environment variable, pathEnvVar.
func WithServiceAccountFile(pathEnvVar string) Option {
	return func(s *Store) {
		s.sources = append(s.sources, &serviceAccountSource{pathEnvVar: pathEnvVar})
	}
}

// WithInteractivePrompt adds the interactive-TTY source, only consulted
// when enabled is true and a TTY is attached (checked lazily at lookup
// time, not at construction).
func WithInteractivePrompt(enabled bool, prompt PromptFunc) Option {
	return func(s *Store) {
		if !enabled {
			return
		}
		s.sources = append(s.sources, &promptSource{prompt: prompt})
	}
}

// WithEncryptedStore adds the encrypted local store as both the final
// fallback source and the write-back target for everything acquired
// above it. dir is the cache root under which store.enc is written.
func WithEncryptedStore(dir string) Option {
	return func(s *Store) {
		enc := newEncryptedStore(dir)
		s.enc = enc
		s.sources = append(s.sources, enc)
	}
}

// WithLogger attaches a structured logger; token values are never
// passed to it unmasked.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New builds a Store trying its sources in the order they were added.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDefault builds a Store wired with the standard five-source ladder
// (spec.md §4.3): environment, netrc-equivalent file, service-account
// file, interactive prompt, encrypted local store, in that order.
func NewDefault(cacheDir string, registryEnvNames map[string]string, netrcPath string, interactive bool, prompt PromptFunc) *Store {
	return New(
		WithEnvPrefix(registryEnvNames),
		WithNetrcFile(netrcPath),
		WithServiceAccountFile("TOOLCACHE_SERVICE_ACCOUNT_FILE"),
		WithInteractivePrompt(interactive, prompt),
		WithEncryptedStore(cacheDir),
	)
}

func (s *Store) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Lookup runs the acquisition ladder for registry, returning the first
// source's non-empty, non-expired result. A credential found via a
// source other than the encrypted store is written back into it so
// subsequent lookups are cheap and do not re-prompt or re-read
// environment state that may no longer be set (e.g. a CI job's
// short-lived env var).
func (s *Store) Lookup(ctx context.Context, registry string) (Credential, error) {
	const op = "credentials.Lookup"
	for _, src := range s.sources {
		cred, ok, err := src.lookup(ctx, registry)
		if err != nil {
			return Credential{}, toolerr.New(op, toolerr.KindAuthFailed, err)
		}
		if !ok {
			continue
		}
		if cred.Expired(time.Now()) {
			s.log().Debug("discarding expired credential", "registry", registry, "auth_method", cred.AuthMethod)
			if s.enc != nil {
				_ = s.enc.delete(registry) //nolint:errcheck // best-effort cleanup
			}
			continue
		}
		s.log().Debug("resolved credential", "registry", registry, "auth_method", cred.AuthMethod, "token", Masked(cred.Token))
		if s.enc != nil && src != source(s.enc) {
			if err := s.enc.put(cred); err != nil {
				s.log().Warn("failed to persist credential to encrypted store", "registry", registry, "err", err)
			}
		}
		return cred, nil
	}
	return Credential{}, toolerr.New(op, toolerr.KindAuthRequired, fmt.Errorf("no credential source produced a token for %q", registry))
}

// Get implements oras.CredentialLookup, bridging this store directly into
// registry.WithCredentials.
func (s *Store) Get(ctx context.Context, registry string) (username, secret string, err error) {
	cred, err := s.Lookup(ctx, registry)
	if err != nil {
		if toolerr.Is(err, toolerr.KindAuthRequired) {
			return "", "", nil
		}
		return "", "", err
	}
	u, tok := cred.Get()
	return u, tok, nil
}

// Logout deletes any persisted credential for registry from the
// encrypted store, per spec.md's "credentials live until expiry or
// explicit logout".
func (s *Store) Logout(registry string) error {
	if s.enc == nil {
		return nil
	}
	return s.enc.delete(registry)
}

// --- environment source -----------------------------------------------

type envSource struct {
	names map[string]string // registry -> env var prefix
}

func (e *envSource) lookup(_ context.Context, registry string) (Credential, bool, error) {
	prefix, ok := e.names[registry]
	if !ok {
		return Credential{}, false, nil
	}
	if token := os.Getenv(prefix + "_TOKEN"); token != "" {
		return Credential{Registry: registry, Token: token, AuthMethod: AuthMethodEnv, CreatedAt: time.Now()}, true, nil
	}
	user := os.Getenv(prefix + "_USERNAME")
	pass := os.Getenv(prefix + "_PASSWORD")
	if user != "" && pass != "" {
		return Credential{Registry: registry, Username: user, Token: pass, AuthMethod: AuthMethodEnv, CreatedAt: time.Now()}, true, nil
	}
	return Credential{}, false, nil
}

// --- netrc-equivalent file source --------------------------------------

type netrcSource struct {
	path string
}

func (n *netrcSource) lookup(_ context.Context, registry string) (Credential, bool, error) {
	if n.path == "" {
		return Credential{}, false, nil
	}
	data, err := os.ReadFile(n.path)
	if os.IsNotExist(err) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, err
	}
	entries, err := parseNetrc(string(data))
	if err != nil {
		return Credential{}, false, err
	}
	e, ok := entries[registry]
	if !ok {
		return Credential{}, false, nil
	}
	return Credential{Registry: registry, Username: e.login, Token: e.password, AuthMethod: AuthMethodNetrc, CreatedAt: time.Now()}, true, nil
}

type netrcEntry struct{ login, password string }

// parseNetrc parses the "machine <host> login <user> password <secret>"
// triples of a netrc-format file. Only the fields this store needs
// (machine, login, password) are recognised; unknown tokens are ignored.
func parseNetrc(data string) (map[string]netrcEntry, error) {
	entries := make(map[string]netrcEntry)
	fields := strings.Fields(data)
	var machine string
	var entry netrcEntry
	flush := func() {
		if machine != "" {
			entries[machine] = entry
		}
		machine, entry = "", netrcEntry{}
	}
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "machine":
			flush()
			if i+1 < len(fields) {
				machine = fields[i+1]
				i++
			}
		case "login":
			if i+1 < len(fields) {
				entry.login = fields[i+1]
				i++
			}
		case "password":
			if i+1 < len(fields) {
				entry.password = fields[i+1]
				i++
			}
		}
	}
	flush()
	return entries, nil
}

// --- service-account file source ----------------------------------------

type serviceAccountSource struct {
	pathEnvVar string
}

func (s *serviceAccountSource) lookup(_ context.Context, registry string) (Credential, bool, error) {
	path := os.Getenv(s.pathEnvVar)
	if path == "" {
		return Credential{}, false, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return Credential{}, false, nil
	}
	return Credential{Registry: registry, Token: token, AuthMethod: AuthMethodServiceFile, CreatedAt: time.Now()}, true, nil
}

// --- interactive prompt source ------------------------------------------

// PromptFunc reads a token from the user, e.g. via term.ReadPassword on
// the attached TTY. registry is shown to the user so they know which
// service they are authenticating to.
type PromptFunc func(registry string) (token string, err error)

type promptSource struct {
	prompt PromptFunc
}

func (p *promptSource) lookup(_ context.Context, registry string) (Credential, bool, error) {
	if p.prompt == nil || !isTTY() {
		return Credential{}, false, nil
	}
	token, err := p.prompt(registry)
	if err != nil {
		return Credential{}, false, err
	}
	if token == "" {
		return Credential{}, false, nil
	}
	return Credential{Registry: registry, Token: token, AuthMethod: AuthMethodPrompt, CreatedAt: time.Now()}, true, nil
}

func isTTY() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
