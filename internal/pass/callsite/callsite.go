// Package callsite implements CallSiteRewriter (spec.md §4.7): it
// retargets every call whose callee was rewritten, threading the
// leading program-allocations argument and materializing a fat pointer
// for each argument whose parameter became one.
package callsite

import (
	"fmt"

	"clmemguard/internal/builtinname"
	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
	"clmemguard/internal/mangling"
	"clmemguard/internal/pass"
	"clmemguard/internal/pass/signature"
)

// Rewriter is a pass.Stage running at ir.PhaseCallsRewritten.
// ExtraUnsafe is the same --config-loaded unsafe built-in list
// BuiltinRetargeter takes (SPEC_FULL.md §2.2): a callee on this list is
// left alone here even though it was never rewritten by
// SignatureRewriter, since BuiltinRetargeter claims it a phase later.
type Rewriter struct {
	ExtraUnsafe []string
}

func (Rewriter) Name() string        { return "CallSiteRewriter" }
func (Rewriter) Phase() ir.Phase     { return ir.PhaseCallsRewritten }
func (Rewriter) Description() string {
	return "retargets calls to rewritten callees and materializes fat-pointer arguments"
}

func (r Rewriter) Run(ctx *pass.Context, mod *ir.Module) error {
	for _, fn := range mod.Functions {
		if fn.IsDeclaration {
			continue
		}
		for _, blk := range fn.Blocks {
			for idx := 0; idx < len(blk.Instructions); idx++ {
				call, ok := blk.Instructions[idx].(*ir.CallInst)
				if !ok {
					continue
				}
				moved, err := rewriteCall(ctx, mod, fn, blk, idx, call, r.ExtraUnsafe)
				if err != nil {
					return err
				}
				idx += moved
			}
		}
	}
	return nil
}

// rewriteCall mutates call in place and reports how many extra
// instructions it spliced in before idx, so the caller's scan can skip
// over them.
func rewriteCall(ctx *pass.Context, mod *ir.Module, fn *ir.Function, blk *ir.BasicBlock, idx int, call *ir.CallInst, extraUnsafe []string) (int, error) {
	oldCallee := call.Callee
	if oldCallee == nil {
		return 0, nil
	}
	newCallee, ok := ctx.FuncMap[oldCallee]
	if !ok || newCallee == oldCallee {
		if oldCallee.IsDeclaration && !builtinname.IsUnsafe(oldCallee.Name, extraUnsafe) {
			return 0, reportUnresolvedExternal(ctx, fn, oldCallee)
		}
		return 0, nil
	}

	newArgs, newByVal, inserted, err := ConvertArgs(ctx, mod, fn, blk, idx, oldCallee.Name, oldCallee.Params, newCallee.Params, call.Args, call.ArgByVal)
	if err != nil {
		return 0, err
	}

	call.Callee = newCallee
	ir.ResetCallArgs(call, newArgs)
	call.ArgByVal = newByVal
	return inserted, nil
}

// reportUnresolvedExternal implements spec.md §7's UnresolvedExternal
// abort for a call to an external declaration with no recognized
// built-in signature and no rewritten twin. §6 downgrades this to a
// warning under --allow-unsafe-exceptions instead of aborting the run.
func reportUnresolvedExternal(ctx *pass.Context, fn *ir.Function, callee *ir.Function) error {
	loc := diag.Location{Function: fn.Name}
	message := fmt.Sprintf("call to external declaration %q (%s) has no recognized signature",
		callee.Name, mangling.Readable(callee.Name))
	if ctx.Options.AllowUnsafeExceptions {
		ctx.Notes = append(ctx.Notes, diag.Warn(diag.UnresolvedExternal, message, loc))
		return nil
	}
	return diag.Abort(diag.UnresolvedExternal, message, loc)
}

// ConvertArgs rebuilds a call's argument list against a callee whose
// signature gained a leading program-allocations parameter and fat-
// pointerized some of oldParams (spec.md §4.7). It is shared by
// CallSiteRewriter and BuiltinRetargeter, which spec.md §4.8 says
// retargets built-in calls "using the same argument-conversion rules as
// §4.7".
func ConvertArgs(ctx *pass.Context, mod *ir.Module, fn *ir.Function, blk *ir.BasicBlock, insertAt int, calleeName string, oldParams, newParams []*ir.Parameter, args []*ir.Value, oldByVal []bool) ([]*ir.Value, []bool, int, error) {
	newArgs := make([]*ir.Value, 0, len(newParams))
	newByVal := make([]bool, 0, len(newParams))
	newArgs = append(newArgs, ir.ConstOperand(mod, "pa.zero", ir.ConstInt{Ty: signature.ProgramAllocationsType, Value: 0}))
	newByVal = append(newByVal, false)

	inserted := 0
	for i, oldParam := range oldParams {
		argVal := args[i]
		newParam := newParams[i+1]

		if oldParam.Type.Equal(newParam.Type) {
			newArgs = append(newArgs, argVal)
			newByVal = append(newByVal, argByVal(oldByVal, i))
			continue
		}

		fpt, isFat := newParam.Type.(*ir.FatPointerType)
		if !isFat {
			return nil, nil, 0, diag.Abort(diag.UnsupportedConstruct,
				fmt.Sprintf("call to %q: argument %d's parameter type changed to something other than a fat pointer", calleeName, i),
				diag.Location{Function: fn.Name})
		}

		materialized, n, err := MaterializeArgument(ctx, mod, fn, blk, insertAt+inserted, argVal, fpt)
		if err != nil {
			return nil, nil, 0, err
		}
		inserted += n
		newArgs = append(newArgs, materialized)
		newByVal = append(newByVal, false)
	}

	return newArgs, newByVal, inserted, nil
}

func argByVal(argByVal []bool, i int) bool {
	if i < len(argByVal) {
		return argByVal[i]
	}
	return false
}

// MaterializeArgument implements spec.md §4.7's three forwarding rules,
// returning the fat-pointer value to pass and how many instructions it
// inserted into blk before insertAt.
func MaterializeArgument(ctx *pass.Context, mod *ir.Module, fn *ir.Function, blk *ir.BasicBlock, insertAt int, argVal *ir.Value, fpt *ir.FatPointerType) (*ir.Value, int, error) {
	for _, p := range fn.Params {
		if p.Value == argVal {
			if _, isFat := p.Type.(*ir.FatPointerType); isFat {
				return argVal, 0, nil
			}
		}
	}

	if ev, ok := argVal.Def.(*ir.ExtractValueInst); ok {
		if _, isFat := ev.Agg.Type.(*ir.FatPointerType); isFat {
			return ev.Agg, 0, nil
		}
	}

	interval, ok := ctx.ValueBounds[argVal]
	if !ok {
		if pt, isPtr := argVal.Type.(*ir.PointerType); isPtr {
			if b, ok2 := ctx.AddrSpaceBounds[pt.AddrSpace]; ok2 {
				interval, ok = b, true
			}
		}
	}
	if !ok {
		if !ctx.Options.AllowUnsafeExceptions {
			return nil, 0, diag.Abort(diag.MissingBounds,
				fmt.Sprintf("argument %q has no known bounds at this call site", argVal.Name), diag.Location{Function: fn.Name})
		}
		interval = &pass.BoundsInterval{
			Low:  ir.ConstOperand(mod, "lo.null", ir.ConstNull{Ty: argVal.Type}),
			High: ir.ConstOperand(mod, "hi.null", ir.ConstNull{Ty: argVal.Type}),
		}
	}

	n := 0
	low, low_n := derefIfIndirect(mod, blk, insertAt, "lo", interval.Low, interval.Indirect)
	n += low_n
	high, high_n := derefIfIndirect(mod, blk, insertAt+n, "hi", interval.High, interval.Indirect)
	n += high_n

	fatVal, stackN := materializeViaStack(mod, blk, insertAt+n, argVal.Name, fpt, argVal, low, high)
	n += stackN
	return fatVal, n, nil
}

func derefIfIndirect(mod *ir.Module, blk *ir.BasicBlock, insertAt int, name string, v *ir.Value, indirect bool) (*ir.Value, int) {
	if !indirect {
		return v, 0
	}
	pt := v.Type.(*ir.PointerType)
	loaded := ir.FreshValue(mod, name+".deref", pt.Pointee)
	ir.EmitBefore(blk, insertAt, &ir.LoadInst{ID: mod.NextID(), Result: loaded, Block: blk, Pointer: v})
	return loaded, 1
}

// materializeViaStack builds {current, low, high} by stack-allocating
// the aggregate, storing each field, and loading it back (spec.md §4.7),
// the opposite technique from kernelwrap's in-register insertvalue
// chain, which spec.md reserves for the wrapper-entry case only.
func materializeViaStack(mod *ir.Module, blk *ir.BasicBlock, insertAt int, name string, fpt *ir.FatPointerType, current, low, high *ir.Value) (*ir.Value, int) {
	n := 0
	fieldPtrType := &ir.PointerType{Pointee: fpt.Pointee, AddrSpace: fpt.AddrSpace}
	addr := ir.FreshValue(mod, name+".fp.addr", &ir.PointerType{Pointee: fpt, AddrSpace: 0})
	ir.EmitBefore(blk, insertAt+n, &ir.AllocaInst{ID: mod.NextID(), Result: addr, Block: blk, ElemType: fpt, AddrSpace: 0, Name: name + ".fp"})
	n++

	store := func(elem *ir.Value, index int) {
		fieldAddr := ir.FreshValue(mod, fmt.Sprintf("%s.fp%d", name, index), fieldPtrType)
		ir.EmitBefore(blk, insertAt+n, &ir.GEPInst{ID: mod.NextID(), Result: fieldAddr, Block: blk, Base: addr, Indices: []int64{int64(index)}})
		n++
		ir.EmitBefore(blk, insertAt+n, &ir.StoreInst{ID: mod.NextID(), Block: blk, Pointer: fieldAddr, Value: elem})
		n++
	}
	store(current, ir.FatPtrCurrent)
	store(low, ir.FatPtrLow)
	store(high, ir.FatPtrHigh)

	loaded := ir.FreshValue(mod, name+".fp", fpt)
	ir.EmitBefore(blk, insertAt+n, &ir.LoadInst{ID: mod.NextID(), Result: loaded, Block: blk, Pointer: addr})
	n++
	return loaded, n
}
