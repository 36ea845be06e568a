package resolver

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/birbparty/toolcache/toolerr"
)

// DetectPlatform computes the (os, arch) pair once per process, normalized
// to the fixed vocabulary spec.md §4.4 requires: os in
// {linux, darwin, windows}; arch in {x86_64, aarch64, arm64} with darwin
// reporting arm64 and linux reporting aarch64 for 64-bit ARM. Unknown
// combinations fail fast rather than guessing.
func DetectPlatform() (string, error) {
	platformOnce.Do(func() { platformValue, platformErr = detectPlatform() })
	return platformValue, platformErr
}

var (
	platformOnce  sync.Once
	platformValue string
	platformErr   error
)

func detectPlatform() (string, error) {
	const op = "resolver.DetectPlatform"

	var os_ string
	switch runtime.GOOS {
	case "linux":
		os_ = "linux"
	case "darwin":
		os_ = "darwin"
	case "windows":
		os_ = "windows"
	default:
		return "", toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("unsupported operating system %q", runtime.GOOS))
	}

	var arch string
	switch runtime.GOARCH {
	case "amd64", "386":
		arch = "x86_64"
	case "arm64":
		if os_ == "darwin" {
			arch = "arm64"
		} else {
			arch = "aarch64"
		}
	default:
		return "", toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("unsupported architecture %q", runtime.GOARCH))
	}

	return os_ + "-" + arch, nil
}
