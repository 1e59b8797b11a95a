package signature_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
	"clmemguard/internal/pass"
	"clmemguard/internal/pass/signature"
)

func TestRewritesPointerParameterToFatPointerWithLeadingParam(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	ptrTy := &ir.PointerType{Pointee: i32, AddrSpace: 1}
	fn := b.StartFunction("k", []ir.ParamSpec{{Name: "p", Type: ptrTy}}, &ir.VoidType{})
	b.Return(nil)

	mod := b.Module()
	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	require.NoError(t, signature.Rewriter{}.Run(ctx, mod))

	newFn, ok := ctx.FuncMap[fn]
	require.True(t, ok)
	require.Len(t, newFn.Params, 2)
	assert.Equal(t, signature.ProgramAllocationsParamName, newFn.Params[0].Name)
	fpt, ok := newFn.Params[1].Type.(*ir.FatPointerType)
	require.True(t, ok)
	assert.True(t, fpt.Pointee.Equal(i32))
}

func TestVariadicFunctionRejected(t *testing.T) {
	b := ir.NewBuilder("m")
	fn := b.StartFunction("va", nil, &ir.VoidType{})
	fn.IsVarArg = true
	b.Return(nil)

	mod := b.Module()
	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	err := signature.Rewriter{}.Run(ctx, mod)
	assert.Error(t, err)
}

func TestPointerReturningFunctionRejected(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	b.StartFunction("bad", nil, &ir.PointerType{Pointee: i32, AddrSpace: 0})
	b.Return(nil)

	mod := b.Module()
	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	err := signature.Rewriter{}.Run(ctx, mod)
	assert.Error(t, err)
}

func TestMainPreservedInPermissiveMode(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	fn := b.StartFunction("main", []ir.ParamSpec{{Name: "argc", Type: i32}}, i32)
	b.Return(fn.ParamValue("argc"))

	mod := b.Module()
	ctx := pass.NewContext(pass.Options{AllowUnsafeExceptions: true}, &diag.Reporter{})
	require.NoError(t, signature.Rewriter{}.Run(ctx, mod))

	assert.Same(t, fn, ctx.FuncMap[fn])
}

func TestFoldsPointerTripleForBuiltinReplacement(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	ptrTy := &ir.PointerType{Pointee: i32, AddrSpace: 1}
	fn := b.StartFunction("vstore4__safe__ifPf", []ir.ParamSpec{
		{Name: "cur", Type: ptrTy},
		{Name: "low", Type: ptrTy},
		{Name: "high", Type: ptrTy},
	}, &ir.VoidType{})
	b.Return(nil)

	mod := b.Module()
	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	require.NoError(t, signature.Rewriter{}.Run(ctx, mod))

	newFn := ctx.FuncMap[fn]
	require.Len(t, newFn.Params, 2) // leading + one folded fat pointer
	_, ok := newFn.Params[1].Type.(*ir.FatPointerType)
	assert.True(t, ok)

	assert.Equal(t, ir.FatPtrCurrent, ctx.FoldedField[fn.Params[0]])
	assert.Equal(t, ir.FatPtrLow, ctx.FoldedField[fn.Params[1]])
	assert.Equal(t, ir.FatPtrHigh, ctx.FoldedField[fn.Params[2]])
}
