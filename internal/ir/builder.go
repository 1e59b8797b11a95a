package ir

// Builder constructs Module values directly, without going through a
// parser — parsing IR from on-disk form is out of scope for this
// repository (spec.md §1), so every test fixture and CLI demo module is
// assembled with a Builder exactly the way the teacher's IR builder
// assembles programs from an AST, minus the AST.
type Builder struct {
	mod         *Module
	valueSeq    int
	instSeq     int
	blockSeq    int
	curBlock    *BasicBlock
}

// NewBuilder starts a new module under construction.
func NewBuilder(name string) *Builder {
	return &Builder{mod: &Module{Name: name, Metadata: map[string][]*Function{}}}
}

// Module returns the module built so far.
func (b *Builder) Module() *Module { return b.mod }

func (b *Builder) nextValueID() int { id := b.valueSeq; b.valueSeq++; return id }
func (b *Builder) nextInstID() int  { id := b.instSeq; b.instSeq++; return id }

// NewValue allocates an SSA value with a fresh ID from the Builder's own
// counter; hint is used verbatim as its name.
func (b *Builder) NewValue(hint string, ty Type) *Value {
	id := b.nextValueID()
	return &Value{ID: id, Name: hint, Type: ty}
}

// AddGlobal appends a global to the module and returns it, binding its
// address to a fresh SSA value if the caller has not already set one.
func (b *Builder) AddGlobal(g *Global) *Global {
	if g.Value == nil {
		g.Value = b.NewValue(g.Name, g.PointerType())
	}
	b.mod.Globals = append(b.mod.Globals, g)
	return g
}

// DeclareFunction creates a function declaration (no body) and adds it
// to the module.
func (b *Builder) DeclareFunction(name string, params []*Parameter, ret Type) *Function {
	f := &Function{Name: name, Params: params, ReturnType: ret, IsDeclaration: true, Linkage: LinkageExternal}
	b.mod.Functions = append(b.mod.Functions, f)
	return f
}

// StartFunction creates a function with a fresh entry block, binds each
// parameter to an SSA value, and makes the entry block current.
func (b *Builder) StartFunction(name string, paramSpecs []ParamSpec, ret Type) *Function {
	f := &Function{Name: name, ReturnType: ret, Linkage: LinkageExternal}
	for _, spec := range paramSpecs {
		v := b.NewValue(spec.Name, spec.Type)
		f.Params = append(f.Params, &Parameter{Name: spec.Name, Type: spec.Type, Attrs: spec.Attrs, Value: v})
	}
	b.mod.Functions = append(b.mod.Functions, f)
	entry := b.Block("entry")
	f.AddBlock(entry)
	b.curBlock = entry
	return f
}

// ParamSpec is the minimal description needed to create a Parameter
// while starting a function.
type ParamSpec struct {
	Name  string
	Type  Type
	Attrs ParamAttrs
}

// Block creates a new, unattached basic block. Callers append it to a
// function with Function.AddBlock.
func (b *Builder) Block(label string) *BasicBlock {
	b.blockSeq++
	return &BasicBlock{Label: label}
}

// SetBlock makes blk the current insertion point.
func (b *Builder) SetBlock(blk *BasicBlock) { b.curBlock = blk }

// CurrentBlock returns the block new instructions are appended to.
func (b *Builder) CurrentBlock() *BasicBlock { return b.curBlock }

func (b *Builder) emit(inst Instruction) {
	b.curBlock.AddInstruction(inst)
	for _, op := range inst.GetOperands() {
		op.AddUse(inst)
	}
	if r := inst.GetResult(); r != nil {
		r.Def = inst
	}
}

func (b *Builder) Alloca(name string, elemType Type, addrSpace int) *Value {
	res := b.NewValue(name, &PointerType{Pointee: elemType, AddrSpace: addrSpace})
	b.emit(&AllocaInst{ID: b.nextInstID(), Result: res, Block: b.curBlock, ElemType: elemType, AddrSpace: addrSpace, Name: name})
	return res
}

func (b *Builder) Load(name string, ptr *Value) *Value {
	pt := ptr.Type.(*PointerType)
	res := b.NewValue(name, pt.Pointee)
	b.emit(&LoadInst{ID: b.nextInstID(), Result: res, Block: b.curBlock, Pointer: ptr})
	return res
}

func (b *Builder) Store(ptr, val *Value) {
	b.emit(&StoreInst{ID: b.nextInstID(), Block: b.curBlock, Pointer: ptr, Value: val})
}

func (b *Builder) GEP(name string, base *Value, indices ...int64) *Value {
	res := b.NewValue(name, base.Type)
	b.emit(&GEPInst{ID: b.nextInstID(), Result: res, Block: b.curBlock, Base: base, Indices: indices})
	return res
}

func (b *Builder) Cast(name, op string, operand *Value, to Type) *Value {
	res := b.NewValue(name, to)
	b.emit(&CastInst{ID: b.nextInstID(), Result: res, Block: b.curBlock, Op: op, Operand: operand, ToType: to})
	return res
}

func (b *Builder) Cmp(name, pred string, left, right *Value) *Value {
	res := b.NewValue(name, &IntType{Bits: 1})
	b.emit(&CmpInst{ID: b.nextInstID(), Result: res, Block: b.curBlock, Pred: pred, Left: left, Right: right})
	return res
}

func (b *Builder) Call(name string, callee *Function, args ...*Value) *Value {
	var res *Value
	if _, void := callee.ReturnType.(*VoidType); !void && callee.ReturnType != nil {
		res = b.NewValue(name, callee.ReturnType)
	}
	b.emit(&CallInst{ID: b.nextInstID(), Result: res, Block: b.curBlock, Callee: callee, Args: args})
	return res
}

func (b *Builder) ExtractValue(name string, agg *Value, index int, fieldType Type) *Value {
	res := b.NewValue(name, fieldType)
	b.emit(&ExtractValueInst{ID: b.nextInstID(), Result: res, Block: b.curBlock, Agg: agg, Index: index})
	return res
}

func (b *Builder) InsertValue(name string, agg, elem *Value, index int) *Value {
	res := b.NewValue(name, agg.Type)
	b.emit(&InsertValueInst{ID: b.nextInstID(), Result: res, Block: b.curBlock, Agg: agg, Elem: elem, Index: index})
	return res
}

func (b *Builder) Return(val *Value) {
	b.emit(&ReturnInst{ID: b.nextInstID(), Block: b.curBlock, Value: val})
}

func (b *Builder) CondBranch(cond *Value, trueBlock, falseBlock *BasicBlock) {
	inst := &CondBranchInst{ID: b.nextInstID(), Block: b.curBlock, Cond: cond, TrueBlock: trueBlock, FalseBlock: falseBlock}
	b.curBlock.Terminator = inst
	cond.AddUse(inst)
	connect(b.curBlock, trueBlock)
	connect(b.curBlock, falseBlock)
}

func (b *Builder) Jump(target *BasicBlock) {
	inst := &JumpInst{ID: b.nextInstID(), Block: b.curBlock, Target: target}
	b.curBlock.Terminator = inst
	connect(b.curBlock, target)
}

// MarkKernel registers fn as a kernel entry point in the module's
// "opencl.kernels" named metadata (spec.md §6).
func (b *Builder) MarkKernel(fn *Function) {
	b.mod.Metadata["opencl.kernels"] = append(b.mod.Metadata["opencl.kernels"], fn)
}
