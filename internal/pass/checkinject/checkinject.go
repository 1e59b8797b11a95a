// Package checkinject implements CheckInjector (spec.md §4.6): for every
// load or store not proven safe, it splices the bounds comparison and
// branch structure spec.md's guard shape describes around the memory
// operation.
package checkinject

import (
	"fmt"

	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
	"clmemguard/internal/pass"
)

// Injector is a pass.Stage running at ir.PhaseChecksInjected.
type Injector struct{}

func (Injector) Name() string        { return "CheckInjector" }
func (Injector) Phase() ir.Phase     { return ir.PhaseChecksInjected }
func (Injector) Description() string {
	return "splices a high/low bounds guard around every unproven memory operation"
}

func (Injector) Run(ctx *pass.Context, mod *ir.Module) error {
	for _, fn := range mod.Functions {
		if fn.IsDeclaration {
			continue
		}
		if err := injectFunction(ctx, mod, fn); err != nil {
			return err
		}
	}
	return nil
}

func injectFunction(ctx *pass.Context, mod *ir.Module, fn *ir.Function) error {
	handled := map[ir.Instruction]bool{}
outer:
	for {
		for _, blk := range fn.Blocks {
			for idx, inst := range blk.Instructions {
				if handled[inst] {
					continue
				}
				ptr, ok := memoryPointer(inst)
				if !ok {
					handled[inst] = true
					continue
				}
				if ctx.SafeExceptions[ptr] {
					handled[inst] = true
					continue
				}
				interval, err := intervalFor(ctx, ptr)
				if err != nil {
					return err
				}
				if interval == nil {
					handled[inst] = true
					continue
				}
				handled[inst] = true
				if err := injectGuard(ctx, mod, fn, blk, idx, inst, ptr, interval); err != nil {
					return err
				}
				continue outer
			}
		}
		return nil
	}
}

func memoryPointer(inst ir.Instruction) (*ir.Value, bool) {
	switch d := inst.(type) {
	case *ir.LoadInst:
		return d.Pointer, true
	case *ir.StoreInst:
		return d.Pointer, true
	default:
		return nil, false
	}
}

// intervalFor reports the single bounds interval op's pointer resolves
// to, aborting with MultiIntervalCheck if the value's own dataflow-bound
// interval disagrees with its address space's.
func intervalFor(ctx *pass.Context, p *ir.Value) (*pass.BoundsInterval, error) {
	direct, hasDirect := ctx.ValueBounds[p]
	var addrSpace *pass.BoundsInterval
	if pt, ok := p.Type.(*ir.PointerType); ok {
		if b, ok := ctx.AddrSpaceBounds[pt.AddrSpace]; ok {
			addrSpace = b
		}
	}
	switch {
	case hasDirect && addrSpace != nil && !direct.Equal(addrSpace):
		return nil, diag.Abort(diag.MultiIntervalCheck,
			fmt.Sprintf("value %q has two candidate bounds intervals", p.Name), diag.Location{})
	case hasDirect:
		return direct, nil
	case addrSpace != nil:
		return addrSpace, nil
	default:
		return nil, nil
	}
}

func injectGuard(ctx *pass.Context, mod *ir.Module, fn *ir.Function, start *ir.BasicBlock, idx int, inst ir.Instruction, ptr *ir.Value, interval *pass.BoundsInterval) error {
	before := append([]ir.Instruction(nil), start.Instructions[:idx]...)
	after := append([]ir.Instruction(nil), start.Instructions[idx+1:]...)
	oldTerm := start.Terminator
	oldSuccessors := start.Successors

	checkLow := &ir.BasicBlock{Label: start.Label + ".check.low"}
	body := &ir.BasicBlock{Label: start.Label + ".body"}
	fail := &ir.BasicBlock{Label: start.Label + ".fail"}
	end := &ir.BasicBlock{Label: start.Label + ".end"}
	insertBlocksAfter(fn, start, checkLow, body, fail, end)

	start.Instructions = before
	start.Successors = nil

	pt := ptr.Type.(*ir.PointerType)
	wantPtrType := &ir.PointerType{Pointee: pt.Pointee, AddrSpace: pt.AddrSpace}

	highVal := derefIfIndirect(mod, start, "high", interval.High, interval.Indirect)
	castHigh := ensureType(mod, start, "high", highVal, wantPtrType)
	lastValid := ir.FreshValue(mod, "last_valid", wantPtrType)
	ir.Emit(start, &ir.GEPInst{ID: mod.NextID(), Result: lastValid, Block: start, Base: castHigh, Indices: []int64{-1}})
	inBoundsHigh := ir.FreshValue(mod, "in_bounds_high", &ir.IntType{Bits: 1})
	ir.Emit(start, &ir.CmpInst{ID: mod.NextID(), Result: inBoundsHigh, Block: start, Pred: "le", Left: ptr, Right: lastValid})
	start.Terminator = &ir.CondBranchInst{ID: mod.NextID(), Block: start, Cond: inBoundsHigh, TrueBlock: checkLow, FalseBlock: fail}
	inBoundsHigh.AddUse(start.Terminator)
	ir.Connect(start, checkLow)
	ir.Connect(start, fail)

	lowVal := derefIfIndirect(mod, checkLow, "low", interval.Low, interval.Indirect)
	castLow := ensureType(mod, checkLow, "low", lowVal, wantPtrType)
	firstValid := ir.FreshValue(mod, "first_valid", wantPtrType)
	ir.Emit(checkLow, &ir.GEPInst{ID: mod.NextID(), Result: firstValid, Block: checkLow, Base: castLow, Indices: []int64{0}})
	inBoundsLow := ir.FreshValue(mod, "in_bounds_low", &ir.IntType{Bits: 1})
	ir.Emit(checkLow, &ir.CmpInst{ID: mod.NextID(), Result: inBoundsLow, Block: checkLow, Pred: "ge", Left: ptr, Right: firstValid})
	checkLow.Terminator = &ir.CondBranchInst{ID: mod.NextID(), Block: checkLow, Cond: inBoundsLow, TrueBlock: body, FalseBlock: fail}
	inBoundsLow.AddUse(checkLow.Terminator)
	ir.Connect(checkLow, body)
	ir.Connect(checkLow, fail)

	ir.Reparent(inst, body)
	body.Terminator = &ir.JumpInst{ID: mod.NextID(), Block: body, Target: end}
	ir.Connect(body, end)

	fail.Terminator = &ir.JumpInst{ID: mod.NextID(), Block: fail, Target: end}
	ir.Connect(fail, end)

	if load, isLoad := inst.(*ir.LoadInst); isLoad {
		phiResult := ir.FreshValue(mod, load.Result.Name+".checked", load.Result.Type)
		ir.ReplaceAllUses(load.Result, phiResult)
		zero := ir.ConstOperand(mod, "zero", ir.ConstNull{Ty: load.Result.Type})
		phi := &ir.PhiInst{ID: mod.NextID(), Result: phiResult, Block: end, Incoming: map[*ir.BasicBlock]*ir.Value{
			body: load.Result,
			fail: zero,
		}}
		ir.Emit(end, phi)
	}

	for _, a := range after {
		ir.Reparent(a, end)
	}
	if oldTerm != nil {
		ir.ReparentTerminator(oldTerm, end)
	}
	end.Successors = oldSuccessors
	retargetPredecessor(oldSuccessors, start, end)
	rekeyPhiPredecessors(fn, start, end)

	return nil
}

func derefIfIndirect(mod *ir.Module, block *ir.BasicBlock, name string, v *ir.Value, indirect bool) *ir.Value {
	if !indirect {
		return v
	}
	pt := v.Type.(*ir.PointerType)
	loaded := ir.FreshValue(mod, name+".deref", pt.Pointee)
	ir.Emit(block, &ir.LoadInst{ID: mod.NextID(), Result: loaded, Block: block, Pointer: v})
	return loaded
}

func ensureType(mod *ir.Module, block *ir.BasicBlock, name string, v *ir.Value, want *ir.PointerType) *ir.Value {
	if v.Type.Equal(want) {
		return v
	}
	casted := ir.FreshValue(mod, name+".cast", want)
	ir.Emit(block, &ir.CastInst{ID: mod.NextID(), Result: casted, Block: block, Op: "bitcast", Operand: v, ToType: want})
	return casted
}

func insertBlocksAfter(fn *ir.Function, after *ir.BasicBlock, blocks ...*ir.BasicBlock) {
	idx := -1
	for i, b := range fn.Blocks {
		if b == after {
			idx = i
			break
		}
	}
	if idx == -1 {
		fn.Blocks = append(fn.Blocks, blocks...)
		return
	}
	rest := append([]*ir.BasicBlock(nil), fn.Blocks[idx+1:]...)
	fn.Blocks = append(fn.Blocks[:idx+1], blocks...)
	fn.Blocks = append(fn.Blocks, rest...)
}

func retargetPredecessor(blocks []*ir.BasicBlock, from, to *ir.BasicBlock) {
	for _, b := range blocks {
		for i, p := range b.Predecessors {
			if p == from {
				b.Predecessors[i] = to
			}
		}
	}
}

func rekeyPhiPredecessors(fn *ir.Function, from, to *ir.BasicBlock) {
	for _, blk := range fn.Blocks {
		for _, inst := range blk.Instructions {
			phi, ok := inst.(*ir.PhiInst)
			if !ok {
				continue
			}
			if v, has := phi.Incoming[from]; has {
				delete(phi.Incoming, from)
				phi.Incoming[to] = v
			}
		}
	}
}
