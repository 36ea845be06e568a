package credentials

import (
	"fmt"
	"unicode"

	"github.com/birbparty/toolcache/toolerr"
)

const (
	minTokenLen = 8
	maxTokenLen = 4096
)

// Validate checks a token's length and charset without inspecting its
// value in any log-visible way. Tokens must be non-empty, within bounds,
// and free of control characters (which would corrupt an Authorization
// header or a netrc-equivalent file line).
func Validate(token string) error {
	const op = "credentials.Validate"
	n := len(token)
	if n == 0 {
		return toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("token is empty"))
	}
	if n < minTokenLen {
		return toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("token shorter than %d characters", minTokenLen))
	}
	if n > maxTokenLen {
		return toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("token longer than %d characters", maxTokenLen))
	}
	for _, r := range token {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return toolerr.New(op, toolerr.KindConfigInvalid, fmt.Errorf("token contains whitespace or control characters"))
		}
	}
	return nil
}
