package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/birbparty/toolcache/toolerr"
)

// WriteWrapper writes a shim at <wrapperDir>/<binaryName>(.bat on windows)
// that execs target with any arguments forwarded, and returns its path.
// This is the stable, executable path the build system receives when the
// real binary lives somewhere the package manager chose (a console entry
// point, a local node_modules/.bin, ...).
func WriteWrapper(wrapperDir, binaryName, target string) (string, error) {
	const op = "installer.WriteWrapper"
	if err := os.MkdirAll(wrapperDir, 0o755); err != nil {
		return "", toolerr.New(op, toolerr.KindInternal, err)
	}

	var path, content string
	if runtime.GOOS == "windows" {
		path = filepath.Join(wrapperDir, binaryName+".bat")
		content = fmt.Sprintf("@echo off\r\n\"%s\" %%*\r\n", target)
	} else {
		path = filepath.Join(wrapperDir, binaryName)
		content = fmt.Sprintf("#!/bin/sh\nexec \"%s\" \"$@\"\n", target)
	}

	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return "", toolerr.New(op, toolerr.KindInternal, err)
	}
	return path, nil
}
