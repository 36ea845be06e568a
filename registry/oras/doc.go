// Package oras provides a generic OCI client layer wrapping the ORAS library.
//
// Client provides blob-agnostic operations for interacting with OCI registries,
// handling authentication and OCI 1.0/1.1 compatibility transparently.
package oras
