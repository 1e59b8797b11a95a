package mangling

import "github.com/ianlancetaylor/demangle"

// Readable decorates a mangled name with a best-effort human-friendly
// C++-style rendering for diagnostic text. It never errors: a name that
// does not demangle under the Itanium grammar is returned unchanged by
// demangle.Filter. This is diagnostics-only — correctness-critical
// name splitting always goes through Parse/Demangle above, never this.
func Readable(name string) string {
	return demangle.Filter(name)
}
