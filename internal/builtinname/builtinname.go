// Package builtinname holds the fixed OpenCL built-in name tables
// spec.md §4.8 defines, shared by BuiltinRetargeter (which owns
// retargeting calls onto a safe twin) and CallSiteRewriter (which needs
// the same set to tell a genuinely unresolved external declaration from
// one BuiltinRetargeter will handle a phase later). Living outside both
// packages avoids BuiltinRetargeter's existing import of
// pass/callsite turning into a cycle.
package builtinname

import "fmt"

var vectorWidths = []int{2, 3, 4, 8, 16}

// atomicOps is the nine atomic variants spec.md §4.8 names.
var atomicOps = []string{"add", "sub", "xchg", "min", "max", "and", "or", "xor", "cmpxchg"}

// Unsafe is the fixed name-based set spec.md §4.8 lists: vector bulk
// load/store, work-group async copy and wait, the atomic family, and
// the pointer-taking math built-ins.
var Unsafe = buildUnsafeSet()

// Forbidden is the half-precision vector load/store set spec.md §4.8
// says the pass must abort on if any remain unresolved.
var Forbidden = buildForbiddenSet()

func buildUnsafeSet() map[string]bool {
	set := map[string]bool{
		"async_work_group_copy":         true,
		"async_work_group_strided_copy": true,
		"wait_group_events":             true,
		"fract":                         true,
		"frexp":                         true,
		"lgamma_r":                      true,
		"modf":                          true,
		"remquo":                        true,
		"sincos":                        true,
		"printf":                        true,
	}
	for _, w := range vectorWidths {
		set[fmt.Sprintf("vload%d", w)] = true
		set[fmt.Sprintf("vstore%d", w)] = true
	}
	for _, a := range atomicOps {
		set["atomic_"+a] = true
	}
	return set
}

func buildForbiddenSet() map[string]bool {
	set := map[string]bool{"vload_half": true, "vstore_half": true}
	for _, w := range vectorWidths {
		set[fmt.Sprintf("vload_half%d", w)] = true
		set[fmt.Sprintf("vstore_half%d", w)] = true
	}
	return set
}

// IsUnsafe reports whether name is in the fixed Unsafe set or the
// caller-supplied extra list loaded from the CLI's --config file
// (SPEC_FULL.md §2.2).
func IsUnsafe(name string, extra []string) bool {
	if Unsafe[name] {
		return true
	}
	for _, e := range extra {
		if e == name {
			return true
		}
	}
	return false
}
