// Package safety implements SafetyProver (spec.md §4.6's "safe
// exceptions" set, spec.md §8 scenarios E and F): it proves, by
// inspection rather than by runtime check, that certain pointer values
// can never be out of bounds, so CheckInjector can skip them.
package safety

import (
	"clmemguard/internal/ir"
	"clmemguard/internal/pass"
)

// Prover is a pass.Stage running at ir.PhaseSafetyProven.
type Prover struct{}

func (Prover) Name() string        { return "SafetyProver" }
func (Prover) Phase() ir.Phase     { return ir.PhaseSafetyProven }
func (Prover) Description() string {
	return "marks pointer values proven safe by inspection, exempting them from runtime checks"
}

func (Prover) Run(ctx *pass.Context, mod *ir.Module) error {
	markConstantProjectionsOfNamedGlobals(ctx, mod)
	markPermissiveEntryArguments(ctx, mod)
	return nil
}

// markConstantProjectionsOfNamedGlobals proves scenario F safe: a
// constant-indexed projection (GEPInst, whose indices are always
// compile-time constants) with a leading index of 0, rooted at a named
// (not unnamed_addr) internal global, stays within the global's own
// storage, since nothing outside the module can resize or replace it.
// Indices after the leading 0 are not range-checked against the
// global's type.
func markConstantProjectionsOfNamedGlobals(ctx *pass.Context, mod *ir.Module) {
	for _, fn := range mod.Functions {
		for _, blk := range fn.Blocks {
			for _, inst := range blk.Instructions {
				gep, ok := inst.(*ir.GEPInst)
				if !ok {
					continue
				}
				if g, ok := rootGlobal(mod, gep.Result); ok && g.Linkage == ir.LinkageInternal && !g.UnnamedAddr {
					ctx.SafeExceptions[gep.Result] = true
				}
			}
		}
	}
}

// rootGlobal walks a chain of GEPs whose leading index is 0 and casts
// back to the Def-less value it originates from, and reports whether
// that root is a module global's own address. Any other defining
// instruction, including a runtime-offset PtrAddInst, ends the walk
// with false.
func rootGlobal(mod *ir.Module, v *ir.Value) (*ir.Global, bool) {
	for {
		if v == nil {
			return nil, false
		}
		if v.Def == nil {
			for _, g := range mod.Globals {
				if g.Value == v {
					return g, true
				}
			}
			return nil, false
		}
		switch d := v.Def.(type) {
		case *ir.GEPInst:
			if len(d.Indices) == 0 || d.Indices[0] != 0 {
				return nil, false
			}
			v = d.Base
		case *ir.CastInst:
			v = d.Operand
		default:
			return nil, false
		}
	}
}

// markPermissiveEntryArguments proves scenario E safe: under
// --allow-unsafe-exceptions, the entry function's signature is left
// untouched (ctx.FuncMap[fn] == fn), and every value reachable from one
// of its exempted parameters is exempt too, the way the reference
// exempts everything reached from argv.
func markPermissiveEntryArguments(ctx *pass.Context, mod *ir.Module) {
	if !ctx.Options.AllowUnsafeExceptions {
		return
	}
	for fn, twin := range ctx.FuncMap {
		if twin != fn || !ctx.Options.FunctionIsEntry(fn.Name) {
			continue
		}
		for _, p := range fn.Params {
			if !isPointerLike(p.Type) {
				continue
			}
			floodSafe(ctx, p.Value)
		}
	}
}

func isPointerLike(t ir.Type) bool {
	switch t.(type) {
	case *ir.PointerType, *ir.FatPointerType:
		return true
	default:
		return false
	}
}

// floodSafe marks root and the result of every instruction that uses it
// (transitively, via its recorded uses, whatever the result's type) as a
// safe exception.
func floodSafe(ctx *pass.Context, root *ir.Value) {
	if root == nil {
		return
	}
	seen := map[*ir.Value]bool{}
	queue := []*ir.Value{root}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if v == nil || seen[v] {
			continue
		}
		seen[v] = true
		ctx.SafeExceptions[v] = true
		for _, use := range v.Uses {
			if result := use.User.GetResult(); result != nil {
				queue = append(queue, result)
			}
		}
	}
}
