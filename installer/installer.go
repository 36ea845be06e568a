// Package installer implements the Package-Manager Installers (C5): a
// single capability contract satisfied by ecosystem-specific variants
// (cargo, npm) that the resolver (C4) consults before falling back to the
// OCI registry or HTTP origin.
package installer

import (
	"context"
	"time"
)

// PluginSpec identifies one installable tool: the key into the
// package-manager strategy.
type PluginSpec struct {
	Name string
	// Version is the exact version to install, e.g. "0.12.3".
	Version string
	// Package overrides Name as the ecosystem package/crate name, if the
	// plugin's binary name differs from its package name.
	Package string
	// BinaryName overrides Name as the binary/wrapper file name to expose.
	BinaryName string
	// GlobalInstall records whether a global (vs. per-project) installation
	// is wanted. The cargo and npm installers do not read it; npm always
	// installs globally.
	GlobalInstall bool
	// ExtraArgs are appended verbatim to the install command.
	ExtraArgs []string
}

// binaryName returns BinaryName if set, else Name.
func (s PluginSpec) binaryName() string {
	if s.BinaryName != "" {
		return s.BinaryName
	}
	return s.Name
}

// packageName returns Package if set, else Name.
func (s PluginSpec) packageName() string {
	if s.Package != "" {
		return s.Package
	}
	return s.Name
}

// Result is the outcome of a successful Install.
type Result struct {
	// BinaryPath is the real, ecosystem-installed binary location.
	BinaryPath string
	// WrapperPath is set when the installed binary is not directly
	// executable at a stable path (e.g. an npm console-script entry point)
	// and a shim was written to invoke it.
	WrapperPath string
	// InstallTime is how long the install step itself took, recorded for
	// parity with the resolver's own strategy metrics.
	InstallTime time.Duration
}

// Installer is the capability set every package-manager variant
// implements. Concrete installers are tagged variants of this one
// interface rather than duck-typed objects.
type Installer interface {
	// Name identifies the variant for logging and metrics, e.g. "cargo".
	Name() string

	// Available reports whether the host has this package manager's
	// toolchain present at all (e.g. `cargo` on PATH).
	Available(ctx context.Context) bool

	// Supports reports whether this manager knows how to install the named
	// tool. A false return is not an error; it just means "try the next
	// strategy", distinct from an Install failure.
	Supports(tool string) bool

	// Install performs the installation, idempotently if spec's exact
	// version is already present. Returns an *toolerr.Error with
	// KindInstallFailed if the manager declared support but the install
	// itself failed.
	Install(ctx context.Context, spec PluginSpec) (Result, error)

	// Uninstall removes a previously installed tool, reporting whether
	// anything was actually removed.
	Uninstall(ctx context.Context, spec PluginSpec) bool
}
