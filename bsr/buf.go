package bsr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/birbparty/toolcache/toolerr"
)

const defaultExportTimeout = 2 * time.Minute

// bufExporter shells out to the external `buf` tool to export a module's
// .proto files to a directory. Abstracted behind an interface so tests
// can substitute a fake rather than requiring `buf` on PATH, the same
// seam the registry package uses for OCIClient.
type bufExporter interface {
	Export(ctx context.Context, ref, destDir string) error
}

type subprocessBufExporter struct {
	bufPath string
	timeout time.Duration
}

// Export runs `buf export <ref> --output <destDir>`, grounded on
// original_source/tools/oras_buf.py's buf-export shell-out shape.
func (e *subprocessBufExporter) Export(ctx context.Context, ref, destDir string) error {
	const op = "bsr.bufExporter.Export"
	timeout := e.timeout
	if timeout <= 0 {
		timeout = defaultExportTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bufPath := e.bufPath
	if bufPath == "" {
		bufPath = "buf"
	}
	cmd := exec.CommandContext(runCtx, bufPath, "export", ref, "--output", destDir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return toolerr.New(op, toolerr.KindTransportFailed, fmt.Errorf("buf export %s: %w: %s", ref, err, stderr.String()))
	}
	return nil
}

// resolveViaBufExport exports coord to a staging directory via `buf
// export`, then atomically moves it into the tree cache.
func (r *Resolver) resolveViaBufExport(ctx context.Context, coord Coordinate, dir string) (string, error) {
	const op = "bsr.resolveViaBufExport"

	staging, err := os.MkdirTemp(r.treesDir(), "staging-*")
	if err != nil {
		return "", toolerr.New(op, toolerr.KindInternal, err)
	}
	defer os.RemoveAll(staging) //nolint:errcheck

	if err := r.exporter.Export(ctx, coord.String(), staging); err != nil {
		return "", err
	}
	if err := atomicMoveIntoTree(staging, dir); err != nil {
		return "", err
	}
	return dir, nil
}
