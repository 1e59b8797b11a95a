// Package demo builds small in-memory IR modules for cmd/clmemguard to
// run the pass against, standing in for the file-based IR source
// spec.md §1 places out of scope for this repository.
package demo

import (
	"fmt"

	"clmemguard/internal/addrspace"
	"clmemguard/internal/ir"
)

// Names lists the demo modules Build understands, in the order the
// CLI's usage text presents them.
var Names = []string{"square", "scale", "atomic"}

// Build constructs the named demo module against table's numbering, or
// an error if name is not one of Names. Every pointer in a demo module
// is resolved through table rather than a hardcoded integer, so the
// CLI's --addrspace convention and --config's addr_space_overrides
// (SPEC_FULL.md §2.2) change the IR Build hands the pipeline.
func Build(name string, table *addrspace.Table) (*ir.Module, error) {
	switch name {
	case "square":
		return buildSquare(table), nil
	case "scale":
		return buildScale(table), nil
	case "atomic":
		return buildAtomic(table), nil
	default:
		return nil, fmt.Errorf("demo: unknown module %q (want one of %v)", name, Names)
	}
}

// buildSquare is a single kernel round-tripping one element of a global
// buffer through a load and a store: square(int *a) { *a = *a; }. It
// exercises SignatureRewriter, BodyMover, KernelWrapperBuilder, and
// BoundsAnalyzer's argument-derived source with nothing else in play.
func buildSquare(table *addrspace.Table) *ir.Module {
	b := ir.NewBuilder("square_demo")
	i32 := &ir.IntType{Bits: 32}
	ptrTy := &ir.PointerType{Pointee: i32, AddrSpace: table.Number(addrspace.Global)}

	k := b.StartFunction("square", []ir.ParamSpec{{Name: "a", Type: ptrTy}}, &ir.VoidType{})
	v := b.Load("v", k.Params[0].Value)
	b.Store(k.Params[0].Value, v)
	b.Return(nil)
	b.MarkKernel(k)

	return b.Module()
}

// buildScale has a kernel with a function-local scratch allocation (a
// StaticMemoryConsolidator candidate) that forwards its buffer pointer
// unchanged to a helper function, exercising consolidation of a
// per-function address space alongside CallSiteRewriter's rule of
// forwarding the whole fat pointer an extractvalue came from.
func buildScale(table *addrspace.Table) *ir.Module {
	b := ir.NewBuilder("scale_demo")
	i32 := &ir.IntType{Bits: 32}
	ptrTy := &ir.PointerType{Pointee: i32, AddrSpace: table.Number(addrspace.Global)}
	scratchSpace := table.Number(addrspace.Private)

	helper := b.StartFunction("write_one", []ir.ParamSpec{{Name: "p", Type: ptrTy}}, &ir.VoidType{})
	one := ir.ConstOperand(b.Module(), "one", ir.ConstInt{Ty: i32, Value: 1})
	b.Store(helper.Params[0].Value, one)
	b.Return(nil)

	k := b.StartFunction("scale", []ir.ParamSpec{{Name: "buf", Type: ptrTy}}, &ir.VoidType{})
	scratch := b.Alloca("scratch", i32, scratchSpace)
	zero := ir.ConstOperand(b.Module(), "zero", ir.ConstInt{Ty: i32, Value: 0})
	b.Store(scratch, zero)
	b.Call("", helper, k.Params[0].Value)
	b.Return(nil)
	b.MarkKernel(k)

	return b.Module()
}

// buildAtomic has a kernel calling the unsafe atomic_add built-in with
// no user-supplied safe twin present, exercising BuiltinRetargeter's
// fallback synthesis path. The call's pointer argument is the fat
// pointer BodyMover extracted "current" from, so ConvertArgs forwards
// the whole aggregate (rule 2) instead of needing a bounds source.
func buildAtomic(table *addrspace.Table) *ir.Module {
	b := ir.NewBuilder("atomic_demo")
	i32 := &ir.IntType{Bits: 32}
	ptrTy := &ir.PointerType{Pointee: i32, AddrSpace: table.Number(addrspace.Global)}

	atomicAdd := b.DeclareFunction("atomic_add", []*ir.Parameter{
		{Name: "p", Type: ptrTy},
		{Name: "val", Type: i32},
	}, i32)

	k := b.StartFunction("bump", []ir.ParamSpec{{Name: "buf", Type: ptrTy}}, &ir.VoidType{})
	one := ir.ConstOperand(b.Module(), "one", ir.ConstInt{Ty: i32, Value: 1})
	b.Call("old", atomicAdd, k.Params[0].Value, one)
	b.Return(nil)
	b.MarkKernel(k)

	return b.Module()
}
