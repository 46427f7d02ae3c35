package translation

import "strings"

// DefaultPriority ranks backends from the premium specialised engine to the
// least capable one.
var DefaultPriority = []string{"indic", "llm", "glossary"}

// BuildChain orders the available backends by a priority table. Names with no
// available backend are returned as missing.
func BuildChain(priority []string, available map[string]Backend) ([]Backend, []string) {
	if len(priority) == 0 {
		priority = DefaultPriority
	}

	var (
		chain   []Backend
		missing []string
	)
	seen := make(map[string]bool)
	for _, name := range priority {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		backend, ok := available[name]
		if !ok || backend == nil {
			missing = append(missing, name)
			continue
		}
		chain = append(chain, backend)
	}
	return chain, missing
}
