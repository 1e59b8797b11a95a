package ir

// Instruction is implemented by every non-terminator and terminator
// instruction. Dispatch over it is a type switch (spec.md §9:
// "idiomatic reimplementation treats the IR instruction set as a tagged
// sum"). Go does not check such switches for exhaustiveness; a kind a
// switch does not list falls through to its default branch.
type Instruction interface {
	GetID() int
	GetResult() *Value
	GetOperands() []*Value
	GetBlock() *BasicBlock
	IsTerminator() bool
}

// Terminator is the subset of instructions that end a basic block.
type Terminator interface {
	Instruction
	GetSuccessors() []*BasicBlock
}

// AllocaInst allocates stack storage. Every entry-block AllocaInst is a
// StaticMemoryConsolidator candidate (spec.md §4.1).
type AllocaInst struct {
	ID        int
	Result    *Value
	Block     *BasicBlock
	ElemType  Type
	AddrSpace int
	Name      string // source-level name, used as the aggregate field name
}

// LoadInst reads through a pointer.
type LoadInst struct {
	ID      int
	Result  *Value
	Block   *BasicBlock
	Pointer *Value
}

// StoreInst writes a value through a pointer.
type StoreInst struct {
	ID      int
	Block   *BasicBlock
	Pointer *Value
	Value   *Value
}

// GEPInst computes a derived address from a base pointer and a chain of
// indices ("get-element-pointer", spec.md §3's address arithmetic).
// Indices of 0 from a constant-indexed base are what SafetyProver looks
// for (spec.md §4.6 scenario F).
type GEPInst struct {
	ID      int
	Result  *Value
	Block   *BasicBlock
	Base    *Value
	Indices []int64
}

// PtrAddInst computes a pointer plus a (possibly negative, possibly
// runtime-valued) element offset by address arithmetic. This is the
// dynamic-index counterpart to GEPInst's constant-index form, needed
// wherever the offset is not known until run time: a kernel wrapper's
// "high = p + n" (spec.md §4.4) and a check guard's "last valid
// address" computation (§4.6).
type PtrAddInst struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Base   *Value
	Offset *Value
}

// CastInst bitcasts or converts a value to ToType. Op names a cast kind
// ("bitcast", "ptrtoint", "inttoptr", "trunc", "zext", "sext", ...).
type CastInst struct {
	ID      int
	Result  *Value
	Block   *BasicBlock
	Op      string
	Operand *Value
	ToType  Type
}

// CmpInst is an integer or float comparison. Pred is one of "eq", "ne",
// "lt", "le", "gt", "ge" (signedness/ordering is carried in the operand
// types, which this pass never needs to branch on).
type CmpInst struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Pred   string
	Left   *Value
	Right  *Value
}

// PhiInst merges values along incoming control-flow edges.
type PhiInst struct {
	ID       int
	Result   *Value
	Block    *BasicBlock
	Incoming map[*BasicBlock]*Value
}

// CallInst invokes a function, by direct reference when the callee is
// known or by name when it resolves to an external declaration.
type CallInst struct {
	ID       int
	Result   *Value // nil for a void call
	Block    *BasicBlock
	Callee   *Function
	Args     []*Value
	ArgByVal []bool // parallel to Args; true where the corresponding parameter carries "by-value"
}

// ExtractValueInst reads one field out of an aggregate value.
type ExtractValueInst struct {
	ID     int
	Result *Value
	Block  *BasicBlock
	Agg    *Value
	Index  int
}

// InsertValueInst returns a copy of an aggregate value with one field
// replaced.
type InsertValueInst struct {
	ID      int
	Result  *Value
	Block   *BasicBlock
	Agg     *Value
	Elem    *Value
	Index   int
}

// IntrinsicMemOpKind enumerates the bulk memory intrinsics whose
// AlignHint StaticMemoryConsolidator conservatively reduces to 1
// (spec.md §4.1).
type IntrinsicMemOpKind string

const (
	MemCopy IntrinsicMemOpKind = "memcopy"
	MemSet  IntrinsicMemOpKind = "memset"
)

// IntrinsicMemOpInst is a bulk copy/set intrinsic call.
type IntrinsicMemOpInst struct {
	ID        int
	Block     *BasicBlock
	Kind      IntrinsicMemOpKind
	Dst       *Value
	Src       *Value // nil for memset
	FillByte  *Value // nil for memcopy
	Len       *Value
	AlignHint int
}

// UnsupportedKind enumerates the IR shapes spec.md §3/§7 never expects
// the pass to lower: fences, varargs use, and atomic RMW/CAS.
type UnsupportedKind string

const (
	UnsupportedFence    UnsupportedKind = "fence"
	UnsupportedVarArg   UnsupportedKind = "va_arg"
	UnsupportedAtomicOp UnsupportedKind = "atomic_rmw_or_cas"
)

// UnsupportedInst is a placeholder for a construct the producing
// front end emitted that this pass refuses to process; SignatureRewriter
// aborts with UnsupportedConstruct on one in any function body.
type UnsupportedInst struct {
	ID     int
	Block  *BasicBlock
	Kind   UnsupportedKind
	Detail string
}

// Terminators.

// ReturnInst returns from the current function, optionally with a value.
type ReturnInst struct {
	ID    int
	Block *BasicBlock
	Value *Value // nil for a void return
}

// CondBranchInst branches to TrueBlock or FalseBlock depending on Cond.
type CondBranchInst struct {
	ID         int
	Block      *BasicBlock
	Cond       *Value
	TrueBlock  *BasicBlock
	FalseBlock *BasicBlock
}

// JumpInst is an unconditional branch.
type JumpInst struct {
	ID     int
	Block  *BasicBlock
	Target *BasicBlock
}

// --- Instruction interface implementations ---

func (i *AllocaInst) GetID() int              { return i.ID }
func (i *AllocaInst) GetResult() *Value       { return i.Result }
func (i *AllocaInst) GetOperands() []*Value   { return nil }
func (i *AllocaInst) GetBlock() *BasicBlock   { return i.Block }
func (i *AllocaInst) IsTerminator() bool      { return false }

func (i *LoadInst) GetID() int            { return i.ID }
func (i *LoadInst) GetResult() *Value     { return i.Result }
func (i *LoadInst) GetOperands() []*Value { return []*Value{i.Pointer} }
func (i *LoadInst) GetBlock() *BasicBlock { return i.Block }
func (i *LoadInst) IsTerminator() bool    { return false }

func (i *StoreInst) GetID() int            { return i.ID }
func (i *StoreInst) GetResult() *Value     { return nil }
func (i *StoreInst) GetOperands() []*Value { return []*Value{i.Pointer, i.Value} }
func (i *StoreInst) GetBlock() *BasicBlock { return i.Block }
func (i *StoreInst) IsTerminator() bool    { return false }

func (i *GEPInst) GetID() int            { return i.ID }
func (i *GEPInst) GetResult() *Value     { return i.Result }
func (i *GEPInst) GetOperands() []*Value { return []*Value{i.Base} }
func (i *GEPInst) GetBlock() *BasicBlock { return i.Block }
func (i *GEPInst) IsTerminator() bool    { return false }

func (i *PtrAddInst) GetID() int            { return i.ID }
func (i *PtrAddInst) GetResult() *Value     { return i.Result }
func (i *PtrAddInst) GetOperands() []*Value { return []*Value{i.Base, i.Offset} }
func (i *PtrAddInst) GetBlock() *BasicBlock { return i.Block }
func (i *PtrAddInst) IsTerminator() bool    { return false }

func (i *CastInst) GetID() int            { return i.ID }
func (i *CastInst) GetResult() *Value     { return i.Result }
func (i *CastInst) GetOperands() []*Value { return []*Value{i.Operand} }
func (i *CastInst) GetBlock() *BasicBlock { return i.Block }
func (i *CastInst) IsTerminator() bool    { return false }

func (i *CmpInst) GetID() int            { return i.ID }
func (i *CmpInst) GetResult() *Value     { return i.Result }
func (i *CmpInst) GetOperands() []*Value { return []*Value{i.Left, i.Right} }
func (i *CmpInst) GetBlock() *BasicBlock { return i.Block }
func (i *CmpInst) IsTerminator() bool    { return false }

func (i *PhiInst) GetID() int        { return i.ID }
func (i *PhiInst) GetResult() *Value { return i.Result }
func (i *PhiInst) GetOperands() []*Value {
	ops := make([]*Value, 0, len(i.Incoming))
	for _, v := range i.Incoming {
		ops = append(ops, v)
	}
	return ops
}
func (i *PhiInst) GetBlock() *BasicBlock { return i.Block }
func (i *PhiInst) IsTerminator() bool    { return false }

func (i *CallInst) GetID() int            { return i.ID }
func (i *CallInst) GetResult() *Value     { return i.Result }
func (i *CallInst) GetOperands() []*Value { return i.Args }
func (i *CallInst) GetBlock() *BasicBlock { return i.Block }
func (i *CallInst) IsTerminator() bool    { return false }

func (i *ExtractValueInst) GetID() int            { return i.ID }
func (i *ExtractValueInst) GetResult() *Value     { return i.Result }
func (i *ExtractValueInst) GetOperands() []*Value { return []*Value{i.Agg} }
func (i *ExtractValueInst) GetBlock() *BasicBlock { return i.Block }
func (i *ExtractValueInst) IsTerminator() bool    { return false }

func (i *InsertValueInst) GetID() int            { return i.ID }
func (i *InsertValueInst) GetResult() *Value     { return i.Result }
func (i *InsertValueInst) GetOperands() []*Value { return []*Value{i.Agg, i.Elem} }
func (i *InsertValueInst) GetBlock() *BasicBlock { return i.Block }
func (i *InsertValueInst) IsTerminator() bool    { return false }

func (i *IntrinsicMemOpInst) GetID() int        { return i.ID }
func (i *IntrinsicMemOpInst) GetResult() *Value { return nil }
func (i *IntrinsicMemOpInst) GetOperands() []*Value {
	ops := []*Value{i.Dst}
	if i.Src != nil {
		ops = append(ops, i.Src)
	}
	if i.FillByte != nil {
		ops = append(ops, i.FillByte)
	}
	return append(ops, i.Len)
}
func (i *IntrinsicMemOpInst) GetBlock() *BasicBlock { return i.Block }
func (i *IntrinsicMemOpInst) IsTerminator() bool    { return false }

func (i *UnsupportedInst) GetID() int            { return i.ID }
func (i *UnsupportedInst) GetResult() *Value     { return nil }
func (i *UnsupportedInst) GetOperands() []*Value { return nil }
func (i *UnsupportedInst) GetBlock() *BasicBlock { return i.Block }
func (i *UnsupportedInst) IsTerminator() bool    { return false }

func (i *ReturnInst) GetID() int        { return i.ID }
func (i *ReturnInst) GetResult() *Value { return nil }
func (i *ReturnInst) GetOperands() []*Value {
	if i.Value != nil {
		return []*Value{i.Value}
	}
	return nil
}
func (i *ReturnInst) GetBlock() *BasicBlock        { return i.Block }
func (i *ReturnInst) IsTerminator() bool           { return true }
func (i *ReturnInst) GetSuccessors() []*BasicBlock { return nil }

func (i *CondBranchInst) GetID() int            { return i.ID }
func (i *CondBranchInst) GetResult() *Value     { return nil }
func (i *CondBranchInst) GetOperands() []*Value { return []*Value{i.Cond} }
func (i *CondBranchInst) GetBlock() *BasicBlock { return i.Block }
func (i *CondBranchInst) IsTerminator() bool    { return true }
func (i *CondBranchInst) GetSuccessors() []*BasicBlock {
	return []*BasicBlock{i.TrueBlock, i.FalseBlock}
}

func (i *JumpInst) GetID() int                   { return i.ID }
func (i *JumpInst) GetResult() *Value            { return nil }
func (i *JumpInst) GetOperands() []*Value        { return nil }
func (i *JumpInst) GetBlock() *BasicBlock        { return i.Block }
func (i *JumpInst) IsTerminator() bool           { return true }
func (i *JumpInst) GetSuccessors() []*BasicBlock { return []*BasicBlock{i.Target} }
