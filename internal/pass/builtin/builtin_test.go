package builtin_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
	"clmemguard/internal/mangling"
	"clmemguard/internal/pass"
	"clmemguard/internal/pass/builtin"
	"clmemguard/internal/pass/signature"
)

func TestMatchesUserSuppliedSafeTwinAndRetargetsCall(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	ptrTy := &ir.PointerType{Pointee: i32, AddrSpace: 1}
	fpt := &ir.FatPointerType{Pointee: i32, AddrSpace: 1}

	oldBuiltin := b.DeclareFunction("atomic_add", []*ir.Parameter{
		{Name: "p", Type: ptrTy},
		{Name: "val", Type: i32},
	}, i32)

	twinSrc := b.DeclareFunction(mangling.SafeTwinName("atomic_add"), []*ir.Parameter{
		{Name: "p_current", Type: ptrTy},
		{Name: "p_low", Type: ptrTy},
		{Name: "p_high", Type: ptrTy},
		{Name: "val", Type: i32},
	}, i32)
	twinSrc.IsDeclaration = false
	twinSrc.AddBlock(&ir.BasicBlock{Label: "entry"})

	caller := b.StartFunction("caller", []ir.ParamSpec{{Name: "p", Type: fpt}}, &ir.VoidType{})
	valConst := ir.ConstOperand(b.Module(), "c1", ir.ConstInt{Ty: i32, Value: 1})
	b.Call("r", oldBuiltin, caller.Params[0].Value, valConst)
	b.Return(nil)
	mod := b.Module()

	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	require.NoError(t, signature.Rewriter{}.Run(ctx, mod))
	require.NoError(t, builtin.Retargeter{}.Run(ctx, mod))

	newTwin, ok := ctx.BuiltinSafeTwins[oldBuiltin]
	require.True(t, ok)
	assert.Same(t, ctx.FuncMap[twinSrc], newTwin)

	var call *ir.CallInst
	for _, inst := range caller.Entry().Instructions {
		if c, ok := inst.(*ir.CallInst); ok {
			call = c
		}
	}
	require.NotNil(t, call)
	assert.Same(t, newTwin, call.Callee)
	require.Len(t, call.Args, 3)
	assert.True(t, call.Args[1].Type.Equal(fpt))
}

func TestSynthesizesFallbackTwinWhenNoneSupplied(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	ptrTy := &ir.PointerType{Pointee: i32, AddrSpace: 1}

	oldBuiltin := b.DeclareFunction("atomic_sub", []*ir.Parameter{
		{Name: "p", Type: ptrTy},
		{Name: "val", Type: i32},
	}, i32)
	mod := b.Module()

	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	require.NoError(t, builtin.Retargeter{}.Run(ctx, mod))

	twin, ok := ctx.BuiltinSafeTwins[oldBuiltin]
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(twin.Name, mangling.SafeTwinName("atomic_sub")+"."))
	assert.True(t, twin.IsDeclaration)
	require.Len(t, twin.Params, 3)
	_, isFat := twin.Params[1].Type.(*ir.FatPointerType)
	assert.True(t, isFat)

	found := false
	for _, fn := range mod.Functions {
		if fn == twin {
			found = true
		}
	}
	assert.True(t, found)
}

func TestForbiddenBuiltinCallAborts(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	ptrTy := &ir.PointerType{Pointee: i32, AddrSpace: 1}

	forbidden := b.DeclareFunction("vload_half4", []*ir.Parameter{
		{Name: "offset", Type: i32},
		{Name: "p", Type: ptrTy},
	}, i32)

	caller := b.StartFunction("caller", []ir.ParamSpec{{Name: "p", Type: ptrTy}}, &ir.VoidType{})
	offset := ir.ConstOperand(b.Module(), "c0", ir.ConstInt{Ty: i32, Value: 0})
	b.Call("r", forbidden, offset, caller.Params[0].Value)
	b.Return(nil)
	mod := b.Module()

	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	err := builtin.Retargeter{}.Run(ctx, mod)
	require.Error(t, err)
	assert.Contains(t, err.Error(), diag.ForbiddenBuiltin)
}
