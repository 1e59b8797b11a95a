package safety_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
	"clmemguard/internal/pass"
	"clmemguard/internal/pass/safety"
)

func TestConstantProjectionOfNamedInternalGlobalIsSafe(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	structTy := &ir.StructType{Name: "point", Fields: []ir.Type{i32, i32}}
	g := b.AddGlobal(&ir.Global{Name: "G", Type: structTy, AddrSpace: 0, Initializer: ir.ConstAggregate{Ty: structTy}, Linkage: ir.LinkageInternal})

	fn := b.StartFunction("f", nil, &ir.VoidType{})
	proj := b.GEP("proj", g.Value, 0)
	b.Load("v", proj)
	b.Return(nil)

	mod := b.Module()
	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	require.NoError(t, safety.Prover{}.Run(ctx, mod))

	assert.True(t, ctx.SafeExceptions[proj])
	_ = fn
}

func TestExternalGlobalProjectionIsNotSafe(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	g := b.AddGlobal(&ir.Global{Name: "ext", Type: i32, AddrSpace: 0, Linkage: ir.LinkageExternal, IsDeclaration: true})

	b.StartFunction("f", nil, &ir.VoidType{})
	proj := b.GEP("proj", g.Value, 0)
	b.Load("v", proj)
	b.Return(nil)

	mod := b.Module()
	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	require.NoError(t, safety.Prover{}.Run(ctx, mod))

	assert.False(t, ctx.SafeExceptions[proj])
}

func TestPermissiveEntryArgumentAndItsProjectionAreSafe(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	ptrTy := &ir.PointerType{Pointee: i32, AddrSpace: 0}
	fn := b.StartFunction("main", []ir.ParamSpec{{Name: "argv", Type: ptrTy}}, &ir.VoidType{})
	derived := b.GEP("derived", fn.Params[0].Value, 1)
	b.Load("v", derived)
	b.Return(nil)

	mod := b.Module()
	ctx := pass.NewContext(pass.Options{AllowUnsafeExceptions: true}, &diag.Reporter{})
	ctx.FuncMap[fn] = fn // SignatureRewriter leaves permissive-mode entries unchanged

	require.NoError(t, safety.Prover{}.Run(ctx, mod))

	assert.True(t, ctx.SafeExceptions[fn.Params[0].Value])
	assert.True(t, ctx.SafeExceptions[derived])
}
