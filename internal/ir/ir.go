// Package ir defines the typed SSA intermediate representation the pass
// operates on. This is the data model spec.md §3 describes: the pass
// mutates a Module in place and never revisits a phase once it has
// transitioned (see Phase below).
package ir

// Linkage mirrors the three linkage kinds spec.md §3 calls out for
// globals and functions.
type Linkage string

const (
	LinkageExternal Linkage = "external"
	LinkageInternal Linkage = "internal"
	LinkagePrivate  Linkage = "private"
)

// Phase is the module's position in the pipeline's state machine
// (spec.md §4.10). Transitions are unidirectional and each phase may run
// at most once.
type Phase int

const (
	PhaseParsed Phase = iota
	PhaseConsolidated
	PhaseSignaturesRewritten
	PhaseBodiesMoved
	PhaseKernelsWrapped
	PhaseBoundsAnalyzed
	PhaseSafetyProven
	PhaseChecksInjected
	PhaseCallsRewritten
	PhaseBuiltinsRetargeted
	PhaseDone
)

func (p Phase) String() string {
	names := [...]string{
		"parsed", "consolidated", "signatures-rewritten", "bodies-moved",
		"kernels-wrapped", "bounds-analyzed", "safety-proven",
		"checks-injected", "calls-rewritten", "builtins-retargeted", "done",
	}
	if int(p) < 0 || int(p) >= len(names) {
		return "unknown"
	}
	return names[p]
}

// Module is a container of globals, functions, and named metadata. The
// pass owns no entities directly; it mutates Module in place and holds
// only non-owning references into it (spec.md §3 "Ownership").
type Module struct {
	Name      string
	Globals   []*Global
	Functions []*Function
	// Metadata maps a named metadata node (e.g. "opencl.kernels") to the
	// functions it lists as operand 0 of each entry, in order.
	Metadata map[string][]*Function
	Phase    Phase

	idSeq int
}

// NextID hands out the next integer of the module's own counter (1, 2,
// ...), used by passes that synthesize new values and instructions after
// construction. The Builder numbers the values and instructions it
// creates from separate counters starting at 0, so an ID from NextID can
// coincide with one the Builder assigned.
func (m *Module) NextID() int {
	m.idSeq++
	return m.idSeq
}

// Advance validates and performs the module's one-way phase transition.
// It panics if called out of order: this is a programmer error in the
// pass, not a condition a caller can recover from.
func (m *Module) Advance(next Phase) {
	if next != m.Phase+1 {
		panic("ir: illegal phase transition from " + m.Phase.String() + " to " + next.String())
	}
	m.Phase = next
}

// Kernels returns the functions listed in the "opencl.kernels" named
// metadata node, the module's kernel entry points (spec.md §6).
func (m *Module) Kernels() []*Function {
	return m.Metadata["opencl.kernels"]
}

// FunctionByName looks up a function by name, or nil.
func (m *Module) FunctionByName(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// RemoveGlobal deletes g from the module's global list. It is a no-op if
// g is not present.
func (m *Module) RemoveGlobal(g *Global) {
	for i, other := range m.Globals {
		if other == g {
			m.Globals = append(m.Globals[:i], m.Globals[i+1:]...)
			return
		}
	}
}

// ReplaceKernelEntry swaps the host-visible entry point for a kernel from
// old to new in the "opencl.kernels" metadata node (spec.md §4.4).
func (m *Module) ReplaceKernelEntry(old, new *Function) {
	entries := m.Metadata["opencl.kernels"]
	for i, f := range entries {
		if f == old {
			entries[i] = new
			return
		}
	}
}

// Global is a named allocation in some address space (spec.md §3).
type Global struct {
	Name          string
	Type          Type // pointee type; the global's own type is Type addrspace(AddrSpace)*
	AddrSpace     int
	Initializer   Constant // nil for an external declaration
	Linkage       Linkage
	UnnamedAddr   bool // true means the global's address is not observable
	IsDeclaration bool
	// Value is the SSA value instructions reference when they take this
	// global's address. Like a Parameter's Value, it has no Def: its
	// "definition" is the Global itself.
	Value *Value
}

func (g *Global) PointerType() *PointerType {
	return &PointerType{Pointee: g.Type, AddrSpace: g.AddrSpace}
}

// Constant is a compile-time constant initializer. Only "simple
// constants" (spec.md §4.1) are accepted by StaticMemoryConsolidator;
// other constant shapes may still appear on declarations the pass never
// consolidates.
type Constant interface {
	constant()
	Type() Type
}

type ConstNull struct{ Ty Type }
type ConstInt struct {
	Ty    Type
	Value int64
}
type ConstFloat struct {
	Ty    Type
	Value float64
}

// ConstAggregate is a recursively-composed aggregate literal (array or
// struct) of other simple constants.
type ConstAggregate struct {
	Ty       Type
	Elements []Constant
}

// ConstOpaque stands in for any initializer StaticMemoryConsolidator
// must reject as non-simple (e.g. a reference to another global).
type ConstOpaque struct {
	Ty   Type
	Desc string
}

func (ConstNull) constant()       {}
func (ConstInt) constant()        {}
func (ConstFloat) constant()      {}
func (ConstAggregate) constant()  {}
func (ConstOpaque) constant()     {}
func (c ConstNull) Type() Type      { return c.Ty }
func (c ConstInt) Type() Type       { return c.Ty }
func (c ConstFloat) Type() Type     { return c.Ty }
func (c ConstAggregate) Type() Type { return c.Ty }
func (c ConstOpaque) Type() Type    { return c.Ty }

// IsSimple reports whether c is a "simple constant" per spec.md §4.1:
// null, integer, float, or an aggregate literal recursively composed of
// simple constants.
func IsSimple(c Constant) bool {
	switch v := c.(type) {
	case ConstNull, ConstInt, ConstFloat:
		return true
	case ConstAggregate:
		for _, e := range v.Elements {
			if !IsSimple(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ParamAttrs holds the subset of parameter attributes the pass cares
// about (spec.md §4.2): "no-capture" and "by-value".
type ParamAttrs struct {
	NoCapture bool
	ByVal     bool
}

// Parameter is a function argument.
type Parameter struct {
	Name  string
	Type  Type
	Attrs ParamAttrs
	// Value is the SSA value this parameter is bound to inside the
	// function body.
	Value *Value
}

// Function is an ordered list of basic blocks plus an argument list
// (spec.md §3).
type Function struct {
	Name          string
	Params        []*Parameter
	ReturnType    Type
	Blocks        []*BasicBlock
	Linkage       Linkage
	IsDeclaration bool
	IsIntrinsic   bool
	IsVarArg      bool
}

func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// AddBlock appends b to f's block list.
func (f *Function) AddBlock(b *BasicBlock) {
	f.Blocks = append(f.Blocks, b)
}

// ParamValue returns the SSA value bound to the named parameter, or nil.
func (f *Function) ParamValue(name string) *Value {
	for _, p := range f.Params {
		if p.Name == name {
			return p.Value
		}
	}
	return nil
}

// BasicBlock is an ordered list of instructions terminating in a
// branch/return. An entry block has no predecessors (spec.md §3).
type BasicBlock struct {
	Label        string
	Instructions []Instruction
	Terminator   Terminator
	Predecessors []*BasicBlock
	Successors   []*BasicBlock
}

// AddInstruction appends inst to b's instruction list.
func (b *BasicBlock) AddInstruction(inst Instruction) {
	b.Instructions = append(b.Instructions, inst)
}

// InsertBefore inserts inst immediately before the instruction at index i.
func (b *BasicBlock) InsertBefore(i int, inst Instruction) {
	b.Instructions = append(b.Instructions, nil)
	copy(b.Instructions[i+1:], b.Instructions[i:])
	b.Instructions[i] = inst
}

func connect(from, to *BasicBlock) {
	from.Successors = append(from.Successors, to)
	to.Predecessors = append(to.Predecessors, from)
}

// Value represents a value in SSA form: each Value has exactly one
// definition (spec.md §3). Def is nil for function parameters and
// globals, whose definitions live elsewhere.
type Value struct {
	ID   int
	Name string
	Type Type
	Def  Instruction
	Uses []*Use
}

// Use records one use of a Value by an instruction, for def-use
// traversal (bounds dataflow needs this in both directions).
type Use struct {
	Value *Value
	User  Instruction
}

// FreshValue allocates a new SSA value numbered from the module's own
// ID sequence, for use by pass stages that synthesize IR after the
// module has left the Builder's hands.
func FreshValue(mod *Module, hint string, ty Type) *Value {
	return &Value{ID: mod.NextID(), Name: hint, Type: ty}
}

// ConstOperand wraps a compile-time constant as a directly usable SSA
// operand, the same way a literal is referenced in a typed SSA IR
// without needing an instruction to materialize it. Like a Parameter's
// or Global's Value, it has no Def.
func ConstOperand(mod *Module, hint string, c Constant) *Value {
	return &Value{ID: mod.NextID(), Name: hint, Type: c.Type()}
}

// UndefOperand is a placeholder aggregate value used as the starting
// point of an InsertValue chain that builds a fat pointer field by
// field (spec.md §4.4), mirroring an "undef" literal in a typed SSA IR.
func UndefOperand(mod *Module, hint string, ty Type) *Value {
	return &Value{ID: mod.NextID(), Name: hint, Type: ty}
}

func (v *Value) AddUse(user Instruction) {
	if v == nil {
		return
	}
	v.Uses = append(v.Uses, &Use{Value: v, User: user})
}
