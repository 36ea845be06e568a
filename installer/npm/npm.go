// Package npm implements the Node-style installer variant of C5: it
// selects among up to three managers (pnpm, yarn, npm, in that preference
// order — fastest first) and installs globally through it, wrapping the
// installed entry point with a shim since Node console scripts rarely
// land at a stable path. Installing into a local workspace is not
// supported, and PluginSpec.GlobalInstall is not consulted.
package npm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/birbparty/toolcache/installer"
	"github.com/birbparty/toolcache/toolerr"
)

const defaultInstallTimeout = 5 * time.Minute

// preferenceOrder lists managers fastest-first, matching original_source's
// "pnpm > yarn > npm" default.
var preferenceOrder = []string{"pnpm", "yarn", "npm"}

// Installer installs protoc plugins distributed as npm packages,
// selecting a manager by preference and writing a wrapper script for the
// installed bin entry.
type Installer struct {
	// Packages maps a plugin name to its npm package, when it differs.
	Packages map[string]string
	// WrapperDir is where shim scripts are written.
	WrapperDir string
	// Timeout bounds a single install invocation.
	Timeout time.Duration

	manager string // resolved lazily by selectManager (Install/Uninstall); Available does not set it
}

// New creates an npm Installer with shims written under wrapperDir.
func New(packages map[string]string, wrapperDir string) *Installer {
	return &Installer{Packages: packages, WrapperDir: wrapperDir, Timeout: defaultInstallTimeout}
}

func (i *Installer) Name() string { return "npm" }

// selectManager picks the first available manager in preference order,
// caching the choice for the lifetime of the Installer.
func (i *Installer) selectManager() string {
	if i.manager != "" {
		return i.manager
	}
	for _, m := range preferenceOrder {
		if _, err := exec.LookPath(m); err == nil {
			i.manager = m
			return m
		}
	}
	i.manager = "npm"
	return i.manager
}

// Available reports whether any of pnpm, yarn, or npm is on PATH.
func (i *Installer) Available(ctx context.Context) bool {
	for _, m := range preferenceOrder {
		if _, err := exec.LookPath(m); err == nil {
			return true
		}
	}
	return false
}

// Supports reports whether tool has a known package mapping, or looks
// like a protoc plugin package name by convention.
func (i *Installer) Supports(tool string) bool {
	if _, ok := i.Packages[tool]; ok {
		return true
	}
	return len(tool) > len("protoc-gen-") && tool[:len("protoc-gen-")] == "protoc-gen-"
}

func (i *Installer) packageFor(spec installer.PluginSpec) string {
	if spec.Package != "" {
		return spec.Package
	}
	if p, ok := i.Packages[spec.Name]; ok {
		return p
	}
	return spec.Name
}

// globalBinDir asks the selected manager for its global bin directory
// rather than assuming a fixed location.
func (i *Installer) globalBinDir(ctx context.Context, manager string) (string, error) {
	var args []string
	switch manager {
	case "npm":
		args = []string{"config", "get", "prefix"}
	case "yarn":
		args = []string{"global", "bin"}
	case "pnpm":
		args = []string{"bin", "-g"}
	}
	out, err := exec.CommandContext(ctx, manager, args...).Output()
	if err != nil {
		return "", err
	}
	dir := string(bytes.TrimSpace(out))
	if manager == "npm" {
		dir = filepath.Join(dir, "bin")
	}
	return dir, nil
}

// Install installs spec's package globally via the selected manager, then
// locates (or wraps) its binary. Idempotent: an identical existing
// install is detected via the wrapper/binary already present at the
// deterministic path and left untouched.
func (i *Installer) Install(ctx context.Context, spec installer.PluginSpec) (installer.Result, error) {
	const op = "npm.Install"
	start := time.Now()

	binName := spec.Name
	if spec.BinaryName != "" {
		binName = spec.BinaryName
	}
	wrapperPath := filepath.Join(i.WrapperDir, binName)
	if _, err := os.Stat(wrapperPath); err == nil {
		return installer.Result{WrapperPath: wrapperPath, InstallTime: time.Since(start)}, nil
	}

	manager := i.selectManager()
	timeout := i.Timeout
	if timeout <= 0 {
		timeout = defaultInstallTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pkgSpec := fmt.Sprintf("%s@%s", i.packageFor(spec), spec.Version)
	var args []string
	switch manager {
	case "npm":
		args = []string{"install", "--global", pkgSpec}
	case "yarn":
		args = []string{"global", "add", pkgSpec}
	case "pnpm":
		args = []string{"add", "--global", pkgSpec}
	}
	args = append(args, spec.ExtraArgs...)

	cmd := exec.CommandContext(runCtx, manager, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return installer.Result{}, toolerr.New(op, toolerr.KindInstallFailed,
			fmt.Errorf("%s install %s: %w: %s", manager, pkgSpec, err, stderr.String()))
	}

	binDir, err := i.globalBinDir(runCtx, manager)
	if err != nil {
		return installer.Result{}, toolerr.New(op, toolerr.KindInstallFailed, err)
	}
	realBin := filepath.Join(binDir, binName)
	if _, err := os.Stat(realBin); err != nil {
		return installer.Result{}, toolerr.New(op, toolerr.KindInstallFailed,
			fmt.Errorf("%s reported success but binary %s is missing", manager, realBin))
	}

	wrapperPath, err = installer.WriteWrapper(i.WrapperDir, binName, realBin)
	if err != nil {
		return installer.Result{}, toolerr.New(op, toolerr.KindInstallFailed, err)
	}
	return installer.Result{BinaryPath: realBin, WrapperPath: wrapperPath, InstallTime: time.Since(start)}, nil
}

// Uninstall removes spec's package via the selected manager and deletes
// its wrapper script, reporting whether anything was actually removed.
func (i *Installer) Uninstall(ctx context.Context, spec installer.PluginSpec) bool {
	manager := i.selectManager()
	var args []string
	switch manager {
	case "npm":
		args = []string{"uninstall", "--global", i.packageFor(spec)}
	case "yarn":
		args = []string{"global", "remove", i.packageFor(spec)}
	case "pnpm":
		args = []string{"remove", "--global", i.packageFor(spec)}
	}
	ok := exec.CommandContext(ctx, manager, args...).Run() == nil

	binName := spec.Name
	if spec.BinaryName != "" {
		binName = spec.BinaryName
	}
	if err := os.Remove(filepath.Join(i.WrapperDir, binName)); err == nil {
		ok = true
	}
	return ok
}
