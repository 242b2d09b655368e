package sandbox

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/atelierlabs/concierge/pkg/domain"
)

// placeholderRe matches unresolved template placeholders like {top_n}.
// JSON object keys do not match: a quote follows their opening brace.
var placeholderRe = regexp.MustCompile(`\{[a-z][a-z0-9_]*\}`)

// hostPathPrefixes are path shapes whose appearance in output indicates a
// leak of host filesystem detail.
var hostPathPrefixes = []string{"/tmp/", "/home/", "/root/", "/var/", "/etc/", "/usr/"}

// checkOutput validates structural expectations on the raw stdout before
// it is parsed. A violation is a retryable domain.ErrInvalidOutput, not a
// user-facing result.
func checkOutput(out, scratch string) error {
	if scratch != "" && strings.Contains(out, scratch) {
		return fmt.Errorf("%w: output references the scratch directory", domain.ErrInvalidOutput)
	}
	for _, prefix := range hostPathPrefixes {
		if strings.Contains(out, prefix) {
			return fmt.Errorf("%w: output references host path %q", domain.ErrInvalidOutput, prefix)
		}
	}
	if m := placeholderRe.FindString(out); m != "" {
		return fmt.Errorf("%w: unresolved placeholder %s", domain.ErrInvalidOutput, m)
	}
	return nil
}
