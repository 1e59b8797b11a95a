// Package bounds implements BoundsAnalyzer (spec.md §4.5): it populates
// a ValueBounds map from pointer-typed value to the single
// BoundsInterval it may be checked against, combining argument-derived
// bounds, single-allocation address-space bounds, and dataflow along
// the instruction DAG (memoized against the phi cycles that dataflow
// graph contains, per spec.md §9).
package bounds

import (
	"fmt"

	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
	"clmemguard/internal/pass"
)

// Analyzer is a pass.Stage running at ir.PhaseBoundsAnalyzed.
type Analyzer struct{}

func (Analyzer) Name() string        { return "BoundsAnalyzer" }
func (Analyzer) Phase() ir.Phase     { return ir.PhaseBoundsAnalyzed }
func (Analyzer) Description() string {
	return "computes, for every pointer operand that needs one, its single bounds interval"
}

func (Analyzer) Run(ctx *pass.Context, mod *ir.Module) error {
	if err := bindArgumentDerived(ctx, mod); err != nil {
		return err
	}

	for _, fn := range mod.Functions {
		if fn.IsDeclaration {
			continue
		}
		for _, blk := range fn.Blocks {
			for _, inst := range blk.Instructions {
				if err := visitInstruction(ctx, inst); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// bindArgumentDerived implements spec.md §4.5 source 1: every
// fat-pointer parameter's extracted low/high is bound to the "current"
// value every in-body use of the original pointer argument now
// resolves to.
func bindArgumentDerived(ctx *pass.Context, mod *ir.Module) error {
	for old, newFn := range ctx.FuncMap {
		if old == newFn {
			continue
		}
		entry := newFn.Entry()
		if entry == nil {
			continue
		}
		for _, np := range newFn.Params[1:] {
			fpt, isFat := np.Type.(*ir.FatPointerType)
			if !isFat {
				continue
			}
			current, ok := ctx.ParamCurrent[np]
			if !ok {
				continue
			}
			ptrType := &ir.PointerType{Pointee: fpt.Pointee, AddrSpace: fpt.AddrSpace}
			lowVal := ir.FreshValue(mod, np.Name+".low", ptrType)
			highVal := ir.FreshValue(mod, np.Name+".high", ptrType)
			ir.EmitBefore(entry, 0, &ir.ExtractValueInst{ID: mod.NextID(), Result: highVal, Block: entry, Agg: np.Value, Index: ir.FatPtrHigh})
			ir.EmitBefore(entry, 0, &ir.ExtractValueInst{ID: mod.NextID(), Result: lowVal, Block: entry, Agg: np.Value, Index: ir.FatPtrLow})
			if _, err := bindBounds(ctx, current, &pass.BoundsInterval{Low: lowVal, High: highVal}); err != nil {
				return err
			}
		}
	}
	return nil
}

func visitInstruction(ctx *pass.Context, inst ir.Instruction) error {
	switch d := inst.(type) {
	case *ir.StoreInst:
		if isPointer(d.Pointer.Type) {
			if _, err := resolve(ctx, d.Pointer, map[*ir.Value]bool{}); err != nil {
				return err
			}
		}
		if isPointer(d.Value.Type) {
			valBounds, err := resolve(ctx, d.Value, map[*ir.Value]bool{})
			if err != nil {
				return err
			}
			if valBounds != nil {
				if _, err := bindBounds(ctx, d.Pointer, valBounds); err != nil {
					return err
				}
			}
		}
	case *ir.LoadInst:
		if _, err := resolve(ctx, d.Pointer, map[*ir.Value]bool{}); err != nil {
			return err
		}
		if d.Result != nil && isPointer(d.Result.Type) {
			if _, err := resolve(ctx, d.Result, map[*ir.Value]bool{}); err != nil {
				return err
			}
		}
	case *ir.CallInst:
		for _, a := range d.Args {
			if isPointer(a.Type) {
				if _, err := resolve(ctx, a, map[*ir.Value]bool{}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func isPointer(t ir.Type) bool {
	_, ok := t.(*ir.PointerType)
	return ok
}

// resolve computes (and caches) v's bounds interval by walking its
// producing instruction chain backward, per spec.md §4.5 source 4, with
// visiting used to terminate on phi cycles (spec.md §9).
func resolve(ctx *pass.Context, v *ir.Value, visiting map[*ir.Value]bool) (*pass.BoundsInterval, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := ctx.ValueBounds[v]; ok {
		return b, nil
	}
	if visiting[v] {
		return nil, nil
	}
	visiting[v] = true
	defer delete(visiting, v)

	if pt, ok := v.Type.(*ir.PointerType); ok {
		if b, ok := ctx.AddrSpaceBounds[pt.AddrSpace]; ok {
			return bindBounds(ctx, v, b)
		}
	}

	def := v.Def
	if def == nil {
		return nil, nil
	}

	switch d := def.(type) {
	case *ir.GEPInst:
		b, err := resolve(ctx, d.Base, visiting)
		if err != nil || b == nil {
			return nil, err
		}
		return bindBounds(ctx, v, b)
	case *ir.PtrAddInst:
		b, err := resolve(ctx, d.Base, visiting)
		if err != nil || b == nil {
			return nil, err
		}
		return bindBounds(ctx, v, b)
	case *ir.CastInst:
		b, err := resolve(ctx, d.Operand, visiting)
		if err != nil || b == nil {
			return nil, err
		}
		return bindBounds(ctx, v, b)
	case *ir.LoadInst:
		if b, ok := ctx.ValueBounds[d.Pointer]; ok {
			return bindBounds(ctx, v, b)
		}
		return nil, nil
	case *ir.PhiInst:
		var found *pass.BoundsInterval
		for _, incoming := range d.Incoming {
			b, err := resolve(ctx, incoming, visiting)
			if err != nil {
				return nil, err
			}
			if b == nil {
				continue
			}
			if found == nil {
				found = b
			} else if !found.Equal(b) {
				return nil, diag.Abort(diag.AmbiguousBounds,
					fmt.Sprintf("phi %q merges unequal bounds intervals", v.Name), diag.Location{})
			}
		}
		if found == nil {
			return nil, nil
		}
		return bindBounds(ctx, v, found)
	default:
		return nil, nil
	}
}

func bindBounds(ctx *pass.Context, v *ir.Value, b *pass.BoundsInterval) (*pass.BoundsInterval, error) {
	if b == nil {
		return nil, nil
	}
	if existing, ok := ctx.ValueBounds[v]; ok {
		if !existing.Equal(b) {
			return nil, diag.Abort(diag.AmbiguousBounds,
				fmt.Sprintf("value %q reached by two unequal bounds intervals", v.Name), diag.Location{})
		}
		return existing, nil
	}
	ctx.ValueBounds[v] = b
	return b, nil
}
