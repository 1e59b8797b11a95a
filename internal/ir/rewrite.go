package ir

// Emit appends inst to b, wiring def/use bookkeeping exactly the way
// Builder.emit does. Pass stages that synthesize instructions after
// construction (consolidation projections, wrapper bodies, check
// guards) use this instead of a Builder, since a Builder is scoped to
// the module it constructed and passes mutate an already-built module.
func Emit(b *BasicBlock, inst Instruction) {
	b.AddInstruction(inst)
	for _, op := range inst.GetOperands() {
		op.AddUse(inst)
	}
	if r := inst.GetResult(); r != nil {
		r.Def = inst
	}
}

// EmitBefore inserts inst into b at index i, with the same def/use
// wiring as Emit.
func EmitBefore(b *BasicBlock, i int, inst Instruction) {
	b.InsertBefore(i, inst)
	for _, op := range inst.GetOperands() {
		op.AddUse(inst)
	}
	if r := inst.GetResult(); r != nil {
		r.Def = inst
	}
}

// Connect records a control-flow edge from `from` to `to`, the same
// bookkeeping Builder.CondBranch/Jump perform for blocks assembled
// during construction. Pass stages that split blocks after construction
// (CheckInjector's guard splicing) use this to keep Predecessors/
// Successors consistent with the terminators they write.
func Connect(from, to *BasicBlock) {
	from.Successors = append(from.Successors, to)
	to.Predecessors = append(to.Predecessors, from)
}

// ReparentTerminator moves a block's terminator to to, without appending
// it to an Instructions list (terminators live in BasicBlock.Terminator).
func ReparentTerminator(term Terminator, to *BasicBlock) {
	to.Terminator = term
	switch i := term.(type) {
	case *ReturnInst:
		i.Block = to
	case *CondBranchInst:
		i.Block = to
	case *JumpInst:
		i.Block = to
	}
}

// Reparent moves inst into to (appending it) and updates the Block field
// every instruction carries, the bookkeeping CheckInjector needs when it
// splits a block and relocates the guarded memory operation into the new
// "body" block.
func Reparent(inst Instruction, to *BasicBlock) {
	to.AddInstruction(inst)
	switch i := inst.(type) {
	case *AllocaInst:
		i.Block = to
	case *LoadInst:
		i.Block = to
	case *StoreInst:
		i.Block = to
	case *GEPInst:
		i.Block = to
	case *PtrAddInst:
		i.Block = to
	case *CastInst:
		i.Block = to
	case *CmpInst:
		i.Block = to
	case *PhiInst:
		i.Block = to
	case *CallInst:
		i.Block = to
	case *ExtractValueInst:
		i.Block = to
	case *InsertValueInst:
		i.Block = to
	case *IntrinsicMemOpInst:
		i.Block = to
	case *UnsupportedInst:
		i.Block = to
	}
}

// ResetCallArgs replaces call's entire argument list, removing the stale
// def-use entries the old arguments held for call and wiring fresh ones
// for newArgs. Used wherever a pass rebuilds a call's argument list
// wholesale instead of patching one operand at a time (CallSiteRewriter
// threading the new leading parameter and fat-pointer arguments).
func ResetCallArgs(call *CallInst, newArgs []*Value) {
	for _, old := range call.Args {
		removeOneUse(old, call)
	}
	call.Args = newArgs
	for _, a := range newArgs {
		a.AddUse(call)
	}
}

func removeOneUse(v *Value, user Instruction) {
	if v == nil {
		return
	}
	for i, u := range v.Uses {
		if u.User == user {
			v.Uses = append(v.Uses[:i], v.Uses[i+1:]...)
			return
		}
	}
}

// ReplaceAllUses redirects every recorded use of old to new, mutating
// each using instruction's operand(s) in place. Every pass stage that
// retires a value (a consolidated allocation, an old function argument,
// a pre-check load) goes through this instead of hand-patching
// instructions, so the Uses bookkeeping never drifts from the
// instruction graph it describes.
func ReplaceAllUses(old, new *Value) {
	if old == nil || old == new {
		return
	}
	uses := old.Uses
	old.Uses = nil
	for _, u := range uses {
		replaceOperand(u.User, old, new)
		new.AddUse(u.User)
	}
}

func replaceOperand(inst Instruction, old, new *Value) {
	switch i := inst.(type) {
	case *LoadInst:
		if i.Pointer == old {
			i.Pointer = new
		}
	case *StoreInst:
		if i.Pointer == old {
			i.Pointer = new
		}
		if i.Value == old {
			i.Value = new
		}
	case *GEPInst:
		if i.Base == old {
			i.Base = new
		}
	case *PtrAddInst:
		if i.Base == old {
			i.Base = new
		}
		if i.Offset == old {
			i.Offset = new
		}
	case *CastInst:
		if i.Operand == old {
			i.Operand = new
		}
	case *CmpInst:
		if i.Left == old {
			i.Left = new
		}
		if i.Right == old {
			i.Right = new
		}
	case *PhiInst:
		for blk, v := range i.Incoming {
			if v == old {
				i.Incoming[blk] = new
			}
		}
	case *CallInst:
		for idx, a := range i.Args {
			if a == old {
				i.Args[idx] = new
			}
		}
	case *ExtractValueInst:
		if i.Agg == old {
			i.Agg = new
		}
	case *InsertValueInst:
		if i.Agg == old {
			i.Agg = new
		}
		if i.Elem == old {
			i.Elem = new
		}
	case *IntrinsicMemOpInst:
		if i.Dst == old {
			i.Dst = new
		}
		if i.Src == old {
			i.Src = new
		}
		if i.FillByte == old {
			i.FillByte = new
		}
		if i.Len == old {
			i.Len = new
		}
	case *ReturnInst:
		if i.Value == old {
			i.Value = new
		}
	case *CondBranchInst:
		if i.Cond == old {
			i.Cond = new
		}
	}
}
