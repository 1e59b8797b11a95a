// Package pass defines the phase pipeline the memory-safety lowering
// pass runs as and the Context object threading the pass-local state
// each stage reads and writes. No process-global state is used: every
// map the design notes call out (argument-to-argument, function-to-
// function, value-to-bounds, safe-exceptions) lives on Context and is
// passed explicitly, the way the teacher's OptimizationPipeline passes
// a *ir.Program to every OptimizationPass.Apply call.
package pass

import (
	"clmemguard/internal/addrspace"
	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
)

// BoundsInterval is a pair of addresses delimiting a legal memory range.
// If Indirect, Low/High are not the bounds themselves but the addresses
// of slots holding them (spec GLOSSARY: Bounds interval).
type BoundsInterval struct {
	Low, High *ir.Value
	Indirect  bool
}

// Equal reports whether two intervals describe the same bound, which is
// what BoundsAnalyzer's tie-break check compares.
func (b *BoundsInterval) Equal(o *BoundsInterval) bool {
	if b == nil || o == nil {
		return b == o
	}
	return b.Low == o.Low && b.High == o.High && b.Indirect == o.Indirect
}

// Options configures one pass run. AllowUnsafeExceptions and
// EntryFunctions correspond to spec.md §6's --allow-unsafe-exceptions
// flag; EntryFunctions is the explicit configuration spec.md §9's
// design notes recommend in place of the fragile "argv.addr" name
// sniff. No "argv.addr" detection is done; FunctionIsEntry also treats
// a function named "main" as an entry, whether or not EntryFunctions is
// empty.
type Options struct {
	AllowUnsafeExceptions bool
	EntryFunctions        map[string]bool
	AddrTable             *addrspace.Table
}

// FunctionIsEntry reports whether fn should keep its original argument
// shape under permissive mode: either explicitly configured, or (the
// fallback) named "main".
func (o *Options) FunctionIsEntry(name string) bool {
	if o.EntryFunctions[name] {
		return true
	}
	return name == "main"
}

// Context bundles every pass-local map the stages share, built once and
// threaded explicitly from stage to stage (spec.md §9: "an
// implementation should hold them in one context object and pass it
// explicitly").
type Context struct {
	Options Options

	// FuncMap is the partial function from old function to new function
	// built by SignatureRewriter and frozen before BodyMover runs.
	FuncMap map[*ir.Function]*ir.Function

	// ArgMap is the partial function from old parameter to new
	// parameter, built alongside FuncMap.
	ArgMap map[*ir.Parameter]*ir.Parameter

	// ParamCurrent maps a fat-pointer new parameter to the value
	// BodyMover extracted for its "current" field, published so
	// BoundsAnalyzer can bind argument-derived bounds to the exact
	// value every in-body use of the original pointer now resolves to
	// (spec.md §4.5 source 1).
	ParamCurrent map[*ir.Parameter]*ir.Value

	// FoldedField records, for an old parameter that was one leg of a
	// manually-written safe built-in's folded pointer triple, which
	// field of the single new FatPointer parameter it corresponds to
	// (ir.FatPtrCurrent/Low/High). Absent for every other old pointer
	// parameter, which BodyMover treats as wanting the "current" field
	// only (spec.md §4.3).
	FoldedField map[*ir.Parameter]int

	// ValueBounds is BoundsAnalyzer's output: a partial function from
	// value to the single BoundsInterval it may be checked against.
	ValueBounds map[*ir.Value]*BoundsInterval

	// AddrSpaceBounds holds the one BoundsInterval for an address space
	// that contains exactly one consolidated allocation (spec.md §4.5
	// source 2).
	AddrSpaceBounds map[int]*BoundsInterval

	// SafeExceptions is the set SafetyProver populates: pointer values
	// proven never to need a runtime check.
	SafeExceptions map[*ir.Value]bool

	// BuiltinSafeTwins caches the unsafe-builtin -> safe-twin function
	// association BuiltinRetargeter discovers (spec.md §4.8).
	BuiltinSafeTwins map[*ir.Function]*ir.Function

	// Notes collects non-fatal diagnostics a stage wants surfaced without
	// aborting the run (a permissive-mode downgrade, or an informational
	// note like BuiltinRetargeter's synthesized-twin fallback). Pipeline
	// drains and prints this slice after every stage.
	Notes []*diag.CompilerError

	Reporter *diag.Reporter
}

// NewContext allocates an empty Context ready for the first stage.
func NewContext(opts Options, reporter *diag.Reporter) *Context {
	return &Context{
		Options:          opts,
		FuncMap:          map[*ir.Function]*ir.Function{},
		ArgMap:           map[*ir.Parameter]*ir.Parameter{},
		ParamCurrent:     map[*ir.Parameter]*ir.Value{},
		FoldedField:      map[*ir.Parameter]int{},
		ValueBounds:      map[*ir.Value]*BoundsInterval{},
		AddrSpaceBounds:  map[int]*BoundsInterval{},
		SafeExceptions:   map[*ir.Value]bool{},
		BuiltinSafeTwins: map[*ir.Function]*ir.Function{},
		Reporter:         reporter,
	}
}

// Abort reports a fatal diagnostic and panics with it so a deferred
// recover at the pipeline boundary can turn it into a process exit
// code (spec.md §7: "no recovery is attempted ... all errors terminate
// the pass").
func (c *Context) Abort(code, message string, loc diag.Location) {
	panic(diag.Abort(code, message, loc))
}
