package bounds_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
	"clmemguard/internal/pass"
	"clmemguard/internal/pass/bodymove"
	"clmemguard/internal/pass/bounds"
	"clmemguard/internal/pass/kernelwrap"
	"clmemguard/internal/pass/signature"
)

func runUpTo(t *testing.T, mod *ir.Module, ctx *pass.Context) {
	t.Helper()
	require.NoError(t, signature.Rewriter{}.Run(ctx, mod))
	require.NoError(t, bodymove.Mover{}.Run(ctx, mod))
	require.NoError(t, kernelwrap.Builder{}.Run(ctx, mod))
	require.NoError(t, bounds.Analyzer{}.Run(ctx, mod))
}

func TestArgumentDerivedBoundsCoverDirectLoad(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	ptrTy := &ir.PointerType{Pointee: i32, AddrSpace: 1}
	k := b.StartFunction("square", []ir.ParamSpec{{Name: "a", Type: ptrTy}}, &ir.VoidType{})
	b.Load("v", k.Params[0].Value)
	b.Return(nil)
	b.MarkKernel(k)

	mod := b.Module()
	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	runUpTo(t, mod, ctx)

	newFn := ctx.FuncMap[k]
	current := ctx.ParamCurrent[newFn.Params[1]]
	require.NotNil(t, current)

	interval, ok := ctx.ValueBounds[current]
	require.True(t, ok)
	assert.NotNil(t, interval.Low)
	assert.NotNil(t, interval.High)
}

func TestSingleAllocationAddressSpaceBindsEveryPointer(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	ptrTy := &ir.PointerType{Pointee: i32, AddrSpace: 1}
	k := b.StartFunction("k", []ir.ParamSpec{{Name: "a", Type: ptrTy}}, &ir.VoidType{})
	derived := b.GEP("derived", k.Params[0].Value, 1)
	b.Load("v", derived)
	b.Return(nil)
	b.MarkKernel(k)

	mod := b.Module()
	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	runUpTo(t, mod, ctx)

	newFn := ctx.FuncMap[k]
	entry := newFn.Entry()
	require.NotNil(t, entry)

	var gepResult *ir.Value
	for _, inst := range entry.Instructions {
		if g, ok := inst.(*ir.GEPInst); ok {
			gepResult = g.Result
		}
	}
	require.NotNil(t, gepResult)

	_, ok := ctx.ValueBounds[gepResult]
	assert.True(t, ok, "a GEP derived from an argument bound via a single-allocation address space should resolve")
}

func TestStoredPointerBoundsPropagateToLocation(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	ptrTy := &ir.PointerType{Pointee: i32, AddrSpace: 1}
	fn := b.StartFunction("f", []ir.ParamSpec{{Name: "p", Type: ptrTy}}, &ir.VoidType{})
	slot := b.Alloca("slot", ptrTy, 0)
	b.Store(slot, fn.Params[0].Value)
	reloaded := b.Load("reloaded", slot)
	b.Load("v", reloaded)
	b.Return(nil)

	mod := b.Module()
	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	ctx.AddrSpaceBounds[1] = &pass.BoundsInterval{
		Low:  ir.FreshValue(mod, "lo", ptrTy),
		High: ir.FreshValue(mod, "hi", ptrTy),
	}

	require.NoError(t, bounds.Analyzer{}.Run(ctx, mod))

	_, ok := ctx.ValueBounds[slot]
	assert.True(t, ok, "storing a bound pointer through slot should bind slot's content bounds")
}
