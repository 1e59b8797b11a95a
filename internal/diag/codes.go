package diag

// Error codes for the memory-safety lowering pass, in the E09xx range
// reserved for tooling errors, parallel to the teacher's E00xx-E08xx
// ranges.
//
// E0900-E0999: pass diagnostics
const (
	// E0900: the IR contains a construct this pass refuses to process
	// (a fence, a vararg use, an atomic read-modify-write/CAS).
	UnsupportedConstruct = "E0900"

	// E0901: a call targets an external declaration with no body and
	// no recognized built-in signature.
	UnresolvedExternal = "E0901"

	// E0902: a call targets a built-in name on the forbidden list.
	ForbiddenBuiltin = "E0902"

	// E0903: BoundsAnalyzer could not settle on a single BoundsInterval
	// for a pointer value.
	AmbiguousBounds = "E0903"

	// E0904: in strict mode, CallSiteRewriter found a pointer call
	// argument with no bounds recorded for it at all.
	MissingBounds = "E0904"

	// E0905: a single dereference site would need checks against more
	// than one BoundsInterval.
	MultiIntervalCheck = "E0905"
)

// Description returns a human-readable one-line description of a
// pass error code.
func Description(code string) string {
	switch code {
	case UnsupportedConstruct:
		return "IR construct is not supported by this pass"
	case UnresolvedExternal:
		return "call targets an external declaration with no recognized signature"
	case ForbiddenBuiltin:
		return "call targets a built-in this pass forbids outright"
	case AmbiguousBounds:
		return "pointer value has no single settled bounds interval"
	case MissingBounds:
		return "pointer call argument has no recorded bounds"
	case MultiIntervalCheck:
		return "dereference site requires checks against more than one bounds interval"
	default:
		return "unknown diagnostic code"
	}
}
