// Package cargo implements the Rust/system-package-style installer
// variant of C5: it shells out to a per-user installer subprocess (cargo
// install) and looks for the resulting binary in cargo's per-user bin
// directory, derived from CARGO_INSTALL_ROOT, CARGO_HOME or ~/.cargo.
// It does not query cargo itself for that location.
package cargo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/birbparty/toolcache/installer"
	"github.com/birbparty/toolcache/toolerr"
)

const defaultInstallTimeout = 5 * time.Minute

// Installer installs protoc plugins distributed as Rust crates via
// `cargo install`, grounded on original_source's rust-plugin configuration
// table (crate name, binary name per known plugin).
type Installer struct {
	// Crates maps a plugin name to the crate to `cargo install`, when it
	// differs from the plugin name itself.
	Crates map[string]string
	// Timeout bounds a single install invocation.
	Timeout time.Duration
}

// New creates a cargo Installer for the given known-plugin-to-crate table.
func New(crates map[string]string) *Installer {
	return &Installer{Crates: crates, Timeout: defaultInstallTimeout}
}

func (i *Installer) Name() string { return "cargo" }

// Available reports whether `cargo` is on PATH.
func (i *Installer) Available(ctx context.Context) bool {
	_, err := exec.LookPath("cargo")
	return err == nil
}

// Supports reports whether tool has a known crate mapping, or is itself a
// plausible crate name (protoc-gen-* convention).
func (i *Installer) Supports(tool string) bool {
	if _, ok := i.Crates[tool]; ok {
		return true
	}
	return strings.HasPrefix(tool, "protoc-gen-")
}

func (i *Installer) crateFor(spec installer.PluginSpec) string {
	if spec.Package != "" {
		return spec.Package
	}
	if c, ok := i.Crates[spec.Name]; ok {
		return c
	}
	return spec.Name
}

// cargoBinRoot returns cargo's per-user bin directory:
// $CARGO_INSTALL_ROOT/bin if set, else $CARGO_HOME/bin, else
// ~/.cargo/bin. It reads only the environment and the home directory;
// it does not run cargo.
func (i *Installer) cargoBinRoot(ctx context.Context) (string, error) {
	if root := os.Getenv("CARGO_INSTALL_ROOT"); root != "" {
		return filepath.Join(root, "bin"), nil
	}
	home := os.Getenv("CARGO_HOME")
	if home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		home = filepath.Join(dir, ".cargo")
	}
	return filepath.Join(home, "bin"), nil
}

// Install runs `cargo install --version <v> <crate>` and returns the
// resulting binary's path in cargo's own per-user bin directory.
// Idempotent: if the exact version is already installed, Install returns
// its existing path without re-invoking cargo.
func (i *Installer) Install(ctx context.Context, spec installer.PluginSpec) (installer.Result, error) {
	const op = "cargo.Install"
	start := time.Now()

	binRoot, err := i.cargoBinRoot(ctx)
	if err != nil {
		return installer.Result{}, toolerr.New(op, toolerr.KindInstallFailed, err)
	}
	binName := spec.Name
	if spec.BinaryName != "" {
		binName = spec.BinaryName
	}
	binPath := filepath.Join(binRoot, binName)

	if installed, ok := i.installedVersion(ctx, binPath); ok && installed == spec.Version {
		return installer.Result{BinaryPath: binPath, InstallTime: time.Since(start)}, nil
	}

	timeout := i.Timeout
	if timeout <= 0 {
		timeout = defaultInstallTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"install", "--version", spec.Version, i.crateFor(spec)}
	args = append(args, spec.ExtraArgs...)
	cmd := exec.CommandContext(runCtx, "cargo", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return installer.Result{}, toolerr.New(op, toolerr.KindInstallFailed,
			fmt.Errorf("cargo install %s@%s: %w: %s", i.crateFor(spec), spec.Version, err, stderr.String()))
	}

	if _, err := os.Stat(binPath); err != nil {
		return installer.Result{}, toolerr.New(op, toolerr.KindInstallFailed,
			fmt.Errorf("cargo reported success but binary %s is missing: %w", binPath, err))
	}
	return installer.Result{BinaryPath: binPath, InstallTime: time.Since(start)}, nil
}

// installedVersion best-effort probes an existing binary's --version
// output for the crate version; absence of a parseable version is not an
// error, just a cache miss.
func (i *Installer) installedVersion(ctx context.Context, binPath string) (string, bool) {
	if _, err := os.Stat(binPath); err != nil {
		return "", false
	}
	out, err := exec.CommandContext(ctx, binPath, "--version").Output()
	if err != nil {
		return "", false
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return "", false
	}
	return fields[len(fields)-1], true
}

// Uninstall runs `cargo uninstall <crate>`.
func (i *Installer) Uninstall(ctx context.Context, spec installer.PluginSpec) bool {
	cmd := exec.CommandContext(ctx, "cargo", "uninstall", i.crateFor(spec))
	return cmd.Run() == nil
}
