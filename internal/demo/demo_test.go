package demo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clmemguard/internal/addrspace"
	"clmemguard/internal/demo"
	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
	"clmemguard/internal/pass"
	"clmemguard/internal/pass/bodymove"
	"clmemguard/internal/pass/bounds"
	"clmemguard/internal/pass/builtin"
	"clmemguard/internal/pass/callsite"
	"clmemguard/internal/pass/checkinject"
	"clmemguard/internal/pass/consolidate"
	"clmemguard/internal/pass/kernelwrap"
	"clmemguard/internal/pass/safety"
	"clmemguard/internal/pass/signature"
)

func runFullPipeline(t *testing.T, mod *ir.Module) *pass.Context {
	t.Helper()
	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})
	stages := []pass.Stage{
		consolidate.Consolidator{},
		signature.Rewriter{},
		bodymove.Mover{},
		kernelwrap.Builder{},
		bounds.Analyzer{},
		safety.Prover{},
		checkinject.Injector{},
		callsite.Rewriter{},
		builtin.Retargeter{},
	}
	for _, stage := range stages {
		require.NoError(t, stage.Run(ctx, mod), stage.Name())
		mod.Advance(stage.Phase())
	}
	mod.Advance(ir.PhaseDone)
	return ctx
}

func TestEveryDemoModuleRunsEndToEnd(t *testing.T) {
	table := addrspace.New(addrspace.SPIR)
	for _, name := range demo.Names {
		t.Run(name, func(t *testing.T) {
			mod, err := demo.Build(name, table)
			require.NoError(t, err)
			runFullPipeline(t, mod)
			assert.Equal(t, ir.PhaseDone, mod.Phase)
			assert.NotEmpty(t, mod.Kernels())
		})
	}
}

func TestUnknownDemoModuleErrors(t *testing.T) {
	_, err := demo.Build("does-not-exist", addrspace.New(addrspace.SPIR))
	assert.Error(t, err)
}

func TestAtomicDemoSynthesizesBuiltinTwin(t *testing.T) {
	mod, err := demo.Build("atomic", addrspace.New(addrspace.SPIR))
	require.NoError(t, err)
	ctx := runFullPipeline(t, mod)
	assert.NotEmpty(t, ctx.BuiltinSafeTwins)
}

func TestEveryDemoModuleHonorsAddrSpaceOverride(t *testing.T) {
	table := addrspace.New(addrspace.SPIR)
	table.Override(addrspace.Global, 42)
	for _, name := range demo.Names {
		t.Run(name, func(t *testing.T) {
			mod, err := demo.Build(name, table)
			require.NoError(t, err)
			foundGlobal := false
			for _, fn := range mod.Functions {
				for _, p := range fn.Params {
					if pt, ok := p.Type.(*ir.PointerType); ok && pt.AddrSpace == 42 {
						foundGlobal = true
					}
				}
			}
			assert.True(t, foundGlobal, "expected overridden global address space 42 on a kernel parameter")
		})
	}
}
