// Package mangling implements the pass's Itanium-style length-prefix
// demangling and the custom safe-twin mangling scheme used by
// BuiltinRetargeter (spec.md §4.8, §4.9).
package mangling

import "strconv"

// Parsed is the result of splitting a mangled or plain name into its
// unqualified name and parameter suffix.
type Parsed struct {
	Name       string
	Suffix     string
	WasMangled bool
}

// Parse splits n of the form "_Z<len><name><params>" by reading the
// decimal length prefix and slicing exactly that many bytes off as the
// unqualified name; everything after is the parameter suffix, preserved
// verbatim. Names not in that form (including names produced by a prior
// Parse/Demangle call) are returned unchanged with WasMangled false,
// which is what gives Demangle its idempotence (spec.md §8 property 6).
func Parse(n string) Parsed {
	const prefix = "_Z"
	if len(n) <= len(prefix) || n[:len(prefix)] != prefix {
		return Parsed{Name: n}
	}
	rest := n[len(prefix):]
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == 0 {
		return Parsed{Name: n}
	}
	length, err := strconv.Atoi(rest[:i])
	if err != nil || length < 0 || i+length > len(rest) {
		return Parsed{Name: n}
	}
	return Parsed{
		Name:       rest[i : i+length],
		Suffix:     rest[i+length:],
		WasMangled: true,
	}
}

// Demangle returns the unqualified name plus its verbatim parameter
// suffix, with the "_Z<len>" prefix removed. For an already-unmangled
// name it is the identity function.
func Demangle(n string) string {
	p := Parse(n)
	return p.Name + p.Suffix
}

// SafeTwinName computes the custom safe-twin mangling for an unsafe
// built-in's name: "<base><original-suffix>" where base is the
// demangled unqualified name with a "__safe__" discriminator appended
// (spec.md §4.9).
func SafeTwinName(unsafeName string) string {
	p := Parse(unsafeName)
	return p.Name + "__safe__" + p.Suffix
}
