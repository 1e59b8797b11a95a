// Package bodymove implements BodyMover (spec.md §4.3): it transplants
// each original function's basic blocks into its SignatureRewriter
// twin and rewires every use of an old argument to the right
// projection of the new fat-pointer argument.
package bodymove

import (
	"clmemguard/internal/ir"
	"clmemguard/internal/pass"
)

// Mover is a pass.Stage running at ir.PhaseBodiesMoved.
type Mover struct{}

func (Mover) Name() string        { return "BodyMover" }
func (Mover) Phase() ir.Phase     { return ir.PhaseBodiesMoved }
func (Mover) Description() string {
	return "transplants function bodies into their rewritten signatures"
}

func (Mover) Run(ctx *pass.Context, mod *ir.Module) error {
	byNewParam := map[*ir.Parameter][]*ir.Parameter{}
	for old, np := range ctx.ArgMap {
		byNewParam[np] = append(byNewParam[np], old)
	}

	for old, newFn := range ctx.FuncMap {
		if old == newFn {
			continue // permissive-mode entry function: left untouched
		}

		newFn.Blocks = old.Blocks
		old.Blocks = nil
		newFn.IsDeclaration = false

		entry := newFn.Entry()
		if entry == nil {
			continue // declaration-only twin (e.g. a built-in stub): nothing to wire
		}

		for _, np := range newFn.Params[1:] { // index 0 is the leading program-allocations parameter
			legs := byNewParam[np]
			if len(legs) == 0 {
				continue
			}
			np.Value = ir.FreshValue(mod, np.Name, np.Type)

			fpt, isFat := np.Type.(*ir.FatPointerType)
			if !isFat {
				for _, leg := range legs {
					if leg.Value != nil {
						ir.ReplaceAllUses(leg.Value, np.Value)
					}
				}
				continue
			}

			fieldType := &ir.PointerType{Pointee: fpt.Pointee, AddrSpace: fpt.AddrSpace}
			for _, leg := range legs {
				fieldIdx := ir.FatPtrCurrent
				if idx, folded := ctx.FoldedField[leg]; folded {
					fieldIdx = idx
				}
				extracted := ir.FreshValue(mod, leg.Name+".field", fieldType)
				inst := &ir.ExtractValueInst{ID: mod.NextID(), Result: extracted, Block: entry, Agg: np.Value, Index: fieldIdx}
				ir.EmitBefore(entry, 0, inst)
				if leg.Value != nil {
					ir.ReplaceAllUses(leg.Value, extracted)
				}
				if fieldIdx == ir.FatPtrCurrent {
					ctx.ParamCurrent[np] = extracted
				}
			}
		}
	}
	return nil
}
