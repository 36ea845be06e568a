// Package toolerr defines the closed error taxonomy shared by every
// component of the artifact distributor. Every exported operation that can
// fail returns (or wraps) an *Error, so callers inspect failures with
// errors.As/errors.Is instead of matching on message text.
package toolerr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of failure. The set is closed: callers may
// switch exhaustively over it.
type Kind int

const (
	// KindNotFound means the requested repository, ref, or coordinate does
	// not exist. Expected trigger to advance the resolver's strategy ladder.
	KindNotFound Kind = iota

	// KindAuthRequired means the operation needs credentials that were not
	// supplied. Callers must re-invoke after providing credentials; the
	// resolver does not fall back to another strategy for this kind.
	KindAuthRequired

	// KindAuthFailed means credentials were supplied but rejected.
	KindAuthFailed

	// KindIntegrityMismatch means computed content digest did not match the
	// expected digest. Fatal: the offending cache entry is deleted and the
	// resolver does not fall back further.
	KindIntegrityMismatch

	// KindTransportFailed means network, DNS, TLS, or a subprocess pipe
	// failed. Retried within budget before propagating.
	KindTransportFailed

	// KindProtocolError means a response was malformed or used an
	// unsupported schema.
	KindProtocolError

	// KindTimeout means an operation exceeded its bounded deadline.
	// Retried within budget like KindTransportFailed.
	KindTimeout

	// KindPreconditionFailed means a precondition the caller must satisfy
	// before the operation can proceed was not met (e.g. candidate version
	// not strictly greater than a target's latest).
	KindPreconditionFailed

	// KindInstallFailed means a package-manager installer was available and
	// declared support for the tool, but the install itself failed. Distinct
	// from "this manager does not support this tool" (which is not an
	// error at all, just a false return from Supports).
	KindInstallFailed

	// KindConfigInvalid means caller-supplied configuration failed
	// validation before any I/O was attempted.
	KindConfigInvalid

	// KindInternal covers everything else: invariant violations, bugs.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindAuthRequired:
		return "auth-required"
	case KindAuthFailed:
		return "auth-failed"
	case KindIntegrityMismatch:
		return "integrity-mismatch"
	case KindTransportFailed:
		return "transport-failed"
	case KindProtocolError:
		return "protocol-error"
	case KindTimeout:
		return "timeout"
	case KindPreconditionFailed:
		return "precondition-failed"
	case KindInstallFailed:
		return "install-failed"
	case KindConfigInvalid:
		return "config-invalid"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every component returns.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "registry.Pull"
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op with the given kind, optionally wrapping err.
func New(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind, looking through wrapping.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindInternal if err is
// not (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether an error kind is eligible for the retry budget
// described in the resolver and registry client: only transport failures
// and timeouts are retried automatically.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindTransportFailed || k == KindTimeout
}
