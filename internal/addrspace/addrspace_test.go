package addrspace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clmemguard/internal/addrspace"
)

func TestSPIRAndNVPTXAgreeOnGlobalButNotConstant(t *testing.T) {
	spir := addrspace.New(addrspace.SPIR)
	nvptx := addrspace.New(addrspace.NVPTX)

	assert.Equal(t, 1, spir.Number(addrspace.Global))
	assert.Equal(t, 1, nvptx.Number(addrspace.Global))
	assert.NotEqual(t, spir.Number(addrspace.Constant), nvptx.Number(addrspace.Constant))
}

func TestClassOfRoundTrips(t *testing.T) {
	spir := addrspace.New(addrspace.SPIR)
	class, ok := spir.ClassOf(spir.Number(addrspace.Local))
	require.True(t, ok)
	assert.Equal(t, addrspace.Local, class)

	_, ok = spir.ClassOf(999)
	assert.False(t, ok)
}

func TestOverrideRemapsBothDirections(t *testing.T) {
	tbl := addrspace.New(addrspace.SPIR)
	tbl.Override(addrspace.Constant, 7)
	assert.Equal(t, 7, tbl.Number(addrspace.Constant))
	class, ok := tbl.ClassOf(7)
	require.True(t, ok)
	assert.Equal(t, addrspace.Constant, class)
}

func TestNewPanicsOnUnknownConvention(t *testing.T) {
	assert.Panics(t, func() {
		addrspace.New(addrspace.Convention("amdgcn"))
	})
}
