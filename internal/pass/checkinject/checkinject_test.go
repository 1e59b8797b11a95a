package checkinject_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
	"clmemguard/internal/pass"
	"clmemguard/internal/pass/checkinject"
)

func buildLoadModule(t *testing.T) (*ir.Module, *ir.Function, *ir.LoadInst, *pass.Context) {
	t.Helper()
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	ptrTy := &ir.PointerType{Pointee: i32, AddrSpace: 1}
	fn := b.StartFunction("f", []ir.ParamSpec{{Name: "p", Type: ptrTy}}, i32)
	loaded := b.Load("v", fn.Params[0].Value)
	b.Return(loaded)

	mod := b.Module()
	var load *ir.LoadInst
	for _, inst := range fn.Entry().Instructions {
		if l, ok := inst.(*ir.LoadInst); ok {
			load = l
		}
	}
	require.NotNil(t, load)

	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	ctx.ValueBounds[fn.Params[0].Value] = &pass.BoundsInterval{
		Low:  ir.FreshValue(mod, "lo", ptrTy),
		High: ir.FreshValue(mod, "hi", ptrTy),
	}
	return mod, fn, load, ctx
}

func TestInjectsFiveBlockGuardAroundLoad(t *testing.T) {
	mod, fn, load, ctx := buildLoadModule(t)
	originalReturn := fn.Blocks[0].Terminator

	require.NoError(t, checkinject.Injector{}.Run(ctx, mod))

	require.Len(t, fn.Blocks, 5)
	labels := make([]string, len(fn.Blocks))
	for i, b := range fn.Blocks {
		labels[i] = b.Label
	}
	assert.Equal(t, []string{"entry", "entry.check.low", "entry.body", "entry.fail", "entry.end"}, labels)

	body := fn.Blocks[2]
	require.Len(t, body.Instructions, 1)
	assert.Same(t, load, body.Instructions[0])

	end := fn.Blocks[4]
	require.Len(t, end.Instructions, 1)
	phi, ok := end.Instructions[0].(*ir.PhiInst)
	require.True(t, ok)
	assert.Same(t, originalReturn, end.Terminator)
	assert.Equal(t, load.Result, phi.Incoming[body])
	fail := fn.Blocks[3]
	require.NotNil(t, phi.Incoming[fail])
	assert.Nil(t, phi.Incoming[fail].Def)
	assert.True(t, phi.Incoming[fail].Type.Equal(load.Result.Type))
}

func TestSkipsSafeException(t *testing.T) {
	mod, fn, load, ctx := buildLoadModule(t)
	ctx.SafeExceptions[load.Pointer] = true

	require.NoError(t, checkinject.Injector{}.Run(ctx, mod))

	assert.Len(t, fn.Blocks, 1)
}

func TestNoKnownBoundsSkipsInjection(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	ptrTy := &ir.PointerType{Pointee: i32, AddrSpace: 1}
	fn := b.StartFunction("f", []ir.ParamSpec{{Name: "p", Type: ptrTy}}, i32)
	loaded := b.Load("v", fn.Params[0].Value)
	b.Return(loaded)
	mod := b.Module()

	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	require.NoError(t, checkinject.Injector{}.Run(ctx, mod))
	assert.Len(t, fn.Blocks, 1)
}
