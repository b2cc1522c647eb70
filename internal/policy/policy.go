package policy

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
)

// CheckFunctionAllowed enforces the --enable-functions allowlist. Entries are
// "adapter.function", "adapter.*" or a bare adapter name. An empty list allows all.
func CheckFunctionAllowed(allowlist []string, adapterName, function string) error {
	if len(allowlist) == 0 {
		return nil
	}
	adapterName = normalize(adapterName)
	full := adapterName + "." + strings.TrimSpace(function)
	for _, allowed := range allowlist {
		entry := strings.TrimSpace(allowed)
		if entry == "" {
			continue
		}
		name, fn, hasFn := strings.Cut(entry, ".")
		if normalize(name) != adapterName {
			continue
		}
		if !hasFn || fn == "*" || normalize(name)+"."+fn == full {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, fmt.Sprintf("Function %s.%s is blocked by the enabled functions policy", adapterName, function))
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
