package installer

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

// ValidatePostInstall runs path with a single flag (--version, then
// --help) and tolerates a non-zero exit: per spec.md §9's noted
// best-effort behaviour, only "command not found" in stderr is treated as
// a real failure, since some tools print their help and exit 1.
func ValidatePostInstall(ctx context.Context, path string) bool {
	for _, flag := range []string{"--version", "--help"} {
		cmd := exec.CommandContext(ctx, path, flag)
		var stderr strings.Builder
		cmd.Stderr = &stderr
		err := cmd.Run()
		if err == nil {
			return true
		}
		if strings.Contains(strings.ToLower(stderr.String()), "command not found") {
			continue
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit without "command not found" is tolerated.
			return true
		}
	}
	return false
}
