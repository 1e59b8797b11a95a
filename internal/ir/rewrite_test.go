package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clmemguard/internal/ir"
)

func TestReplaceAllUsesRewritesOperandsAndUseLists(t *testing.T) {
	b := ir.NewBuilder("m")
	i32 := &ir.IntType{Bits: 32}
	fn := b.StartFunction("f", nil, &ir.VoidType{})
	old := b.Alloca("old", i32, 0)
	b.Store(old, old)
	loaded := b.Load("x", old)
	b.Return(loaded)

	newVal := b.NewValue("new", old.Type)
	ir.ReplaceAllUses(old, newVal)

	require.Empty(t, old.Uses)
	require.NotEmpty(t, newVal.Uses)

	entry := fn.Entry()
	store := entry.Instructions[1].(*ir.StoreInst)
	assert.Equal(t, newVal, store.Pointer)
	assert.Equal(t, newVal, store.Value)

	load := entry.Instructions[2].(*ir.LoadInst)
	assert.Equal(t, newVal, load.Pointer)
}
