package ir_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clmemguard/internal/ir"
)

func TestBuilderAssemblesStraightLineFunction(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	fn := b.StartFunction("identity", []ir.ParamSpec{{Name: "x", Type: i32}}, i32)

	x := fn.ParamValue("x")
	require.NotNil(t, x)

	doubled := b.Cmp("unused", "eq", x, x)
	require.Equal(t, &ir.IntType{Bits: 1}, doubled.Type)

	ptr := b.Alloca("slot", i32, 1)
	b.Store(ptr, x)
	loaded := b.Load("reloaded", ptr)
	b.Return(loaded)

	mod := b.Module()
	require.Len(t, mod.Functions, 1)
	assert.Equal(t, "identity", mod.Functions[0].Name)
	assert.Len(t, mod.Functions[0].Blocks, 1)

	entry := fn.Entry()
	require.NotNil(t, entry)
	require.NotNil(t, entry.Terminator)
	_, isReturn := entry.Terminator.(*ir.ReturnInst)
	assert.True(t, isReturn)

	assert.Len(t, x.Uses, 3, "x is used twice by the cmp (both operands) and once by the store")
}

func TestBuilderCondBranchConnectsBlocks(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	fn := b.StartFunction("branchy", []ir.ParamSpec{{Name: "n", Type: i32}}, &ir.VoidType{})

	thenBlk := b.Block("then")
	elseBlk := b.Block("else")
	fn.AddBlock(thenBlk)
	fn.AddBlock(elseBlk)

	n := fn.ParamValue("n")
	zero := b.NewValue("zero", i32)
	cond := b.Cmp("iszero", "eq", n, zero)
	b.CondBranch(cond, thenBlk, elseBlk)

	b.SetBlock(thenBlk)
	b.Return(nil)
	b.SetBlock(elseBlk)
	b.Return(nil)

	entry := fn.Entry()
	assert.ElementsMatch(t, []*ir.BasicBlock{thenBlk, elseBlk}, entry.Successors)
	assert.Contains(t, thenBlk.Predecessors, entry)
	assert.Contains(t, elseBlk.Predecessors, entry)
}

func TestModuleAdvanceEnforcesOneWayTransitions(t *testing.T) {
	mod := &ir.Module{}
	require.Equal(t, ir.PhaseParsed, mod.Phase)

	mod.Advance(ir.PhaseConsolidated)
	assert.Equal(t, ir.PhaseConsolidated, mod.Phase)

	assert.Panics(t, func() {
		mod.Advance(ir.PhaseBoundsAnalyzed) // skips phases
	})
	assert.Panics(t, func() {
		mod.Advance(ir.PhaseParsed) // goes backwards
	})
}

func TestIsSimpleConstant(t *testing.T) {
	i32 := &ir.IntType{Bits: 32}
	assert.True(t, ir.IsSimple(ir.ConstInt{Ty: i32, Value: 7}))
	assert.True(t, ir.IsSimple(ir.ConstNull{Ty: i32}))
	assert.True(t, ir.IsSimple(ir.ConstAggregate{
		Ty:       &ir.ArrayType{Elem: i32, Count: 2},
		Elements: []ir.Constant{ir.ConstInt{Ty: i32, Value: 1}, ir.ConstInt{Ty: i32, Value: 2}},
	}))
	assert.False(t, ir.IsSimple(ir.ConstOpaque{Ty: i32, Desc: "relocation"}))
	assert.False(t, ir.IsSimple(ir.ConstAggregate{
		Ty:       &ir.ArrayType{Elem: i32, Count: 1},
		Elements: []ir.Constant{ir.ConstOpaque{Ty: i32}},
	}))
}

func TestFatPointerUnderlyingLayout(t *testing.T) {
	i32 := &ir.IntType{Bits: 32}
	fp := &ir.FatPointerType{Pointee: i32, AddrSpace: 1}
	st := fp.Underlying()
	require.Len(t, st.Fields, 3)
	ptrType, ok := st.Fields[ir.FatPtrCurrent].(*ir.PointerType)
	require.True(t, ok)
	assert.True(t, ptrType.Equal(st.Fields[ir.FatPtrLow]))
	assert.True(t, ptrType.Equal(st.Fields[ir.FatPtrHigh]))
}

func TestPrintRendersKernelMetadataAndBody(t *testing.T) {
	b := ir.NewBuilder("demo")
	i32 := &ir.IntType{Bits: 32}
	fn := b.StartFunction("square", []ir.ParamSpec{{Name: "n", Type: i32}}, i32)
	b.Return(fn.ParamValue("n"))
	b.MarkKernel(fn)

	out := ir.Print(b.Module())
	assert.True(t, strings.Contains(out, "opencl.kernels"))
	assert.True(t, strings.Contains(out, "@square"))
	assert.True(t, strings.Contains(out, "ret %n"))
}
