// Package credentials implements the per-registry credential store (C3):
// a single ordered acquisition ladder (environment, netrc-equivalent
// file, service-account file, interactive prompt, encrypted local
// store), expiry-aware reads, and masked logging so a token never
// reaches a log line in full.
package credentials

import (
	"fmt"
	"time"
)

// AuthMethod identifies how a Credential was obtained.
type AuthMethod string

const (
	AuthMethodEnv         AuthMethod = "env"
	AuthMethodNetrc       AuthMethod = "netrc"
	AuthMethodServiceFile AuthMethod = "service-account-file"
	AuthMethodPrompt      AuthMethod = "prompt"
	AuthMethodEncrypted   AuthMethod = "encrypted-store"
)

// Credential is a per-registry secret as described in the data model: an
// opaque token, optionally paired with a username, tagged with the
// registry it is valid for and how it was obtained.
type Credential struct {
	Registry   string     `json:"registry"`
	Token      string     `json:"token"`
	Username   string     `json:"username,omitempty"`
	AuthMethod AuthMethod `json:"auth_method"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the credential's expiry, if any, has passed.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Masked returns the token in "<first4>…<last4>" form, safe to log. Tokens
// shorter than 9 characters are fully masked rather than risk leaking most
// of a short secret.
func Masked(token string) string {
	if len(token) < 9 {
		return "****"
	}
	return fmt.Sprintf("%s…%s", token[:4], token[len(token)-4:])
}

// Get returns the credential's (username, token) pair; Store.Get hands
// it on through the oras.CredentialLookup interface consumed by
// registry.WithCredentials.
func (c Credential) Get() (username, secret string) {
	return c.Username, c.Token
}
