package kernelwrap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
	"clmemguard/internal/pass"
	"clmemguard/internal/pass/bodymove"
	"clmemguard/internal/pass/kernelwrap"
	"clmemguard/internal/pass/signature"
)

func TestBuildsHostVisibleWrapperWithCountParam(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	ptrTy := &ir.PointerType{Pointee: i32, AddrSpace: 1}
	k := b.StartFunction("square", []ir.ParamSpec{{Name: "a", Type: ptrTy}}, &ir.VoidType{})
	b.Return(nil)
	b.MarkKernel(k)

	mod := b.Module()
	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	require.NoError(t, signature.Rewriter{}.Run(ctx, mod))
	require.NoError(t, bodymove.Mover{}.Run(ctx, mod))
	require.NoError(t, kernelwrap.Builder{}.Run(ctx, mod))

	kernels := mod.Kernels()
	require.Len(t, kernels, 1)
	wrapper := kernels[0]
	assert.Equal(t, "square_w", wrapper.Name)
	require.Len(t, wrapper.Params, 2)
	assert.Equal(t, "a", wrapper.Params[0].Name)
	assert.Equal(t, "a_count", wrapper.Params[1].Name)

	entry := wrapper.Entry()
	require.NotNil(t, entry)

	var call *ir.CallInst
	for _, inst := range entry.Instructions {
		if c, ok := inst.(*ir.CallInst); ok {
			call = c
		}
	}
	require.NotNil(t, call)
	assert.Same(t, ctx.FuncMap[k], call.Callee)

	interval, ok := ctx.AddrSpaceBounds[1]
	require.True(t, ok)
	assert.True(t, interval.Indirect)
}
