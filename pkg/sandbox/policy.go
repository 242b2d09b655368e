package sandbox

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/atelierlabs/concierge/pkg/domain"
)

// allowedImports is the static module allowlist. Only data-manipulation
// libraries are reachable; process control, sockets and filesystem access
// are rejected before the interpreter ever starts.
var allowedImports = map[string]bool{
	"pandas":      true,
	"numpy":       true,
	"math":        true,
	"statistics":  true,
	"json":        true,
	"collections": true,
}

// forbiddenTokens are capabilities a script must not reach even without an
// import statement.
var forbiddenTokens = []string{
	"__import__",
	"open(",
	"eval(",
	"exec(",
	"compile(",
	"globals(",
	"breakpoint(",
}

var importRe = regexp.MustCompile(`(?m)^\s*(?:import|from)\s+([A-Za-z_][A-Za-z0-9_.]*)`)

// CheckPolicy statically validates a script against the sandbox allowlist.
// A violating script is never executed.
func CheckPolicy(code string) error {
	for _, m := range importRe.FindAllStringSubmatch(code, -1) {
		module := m[1]
		root := strings.SplitN(module, ".", 2)[0]
		if !allowedImports[root] {
			return fmt.Errorf("%w: import of %q is not allowed", domain.ErrPolicyViolation, module)
		}
	}
	for _, tok := range forbiddenTokens {
		if strings.Contains(code, tok) {
			return fmt.Errorf("%w: %q is not allowed", domain.ErrPolicyViolation, strings.TrimSuffix(tok, "("))
		}
	}
	return nil
}
