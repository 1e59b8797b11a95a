// Package consolidate implements StaticMemoryConsolidator (spec.md
// §4.1): it fuses every static allocation in an address space into one
// aggregate so the address space's bounds become a closed, statically
// known interval, which is the precondition BoundsAnalyzer's
// single-allocation rule (§4.5 source 2) and KernelWrapperBuilder both
// rely on.
package consolidate

import (
	"fmt"

	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
	"clmemguard/internal/pass"
)

// Consolidator is a pass.Stage running at ir.PhaseConsolidated.
type Consolidator struct{}

func (Consolidator) Name() string        { return "StaticMemoryConsolidator" }
func (Consolidator) Phase() ir.Phase     { return ir.PhaseConsolidated }
func (Consolidator) Description() string {
	return "fuses per-address-space globals and entry-block allocations into closed-interval aggregates"
}

// field is one pre-consolidation allocation slated to become a struct
// field, in stable discovery order.
type field struct {
	name string
	typ  ir.Type
	// exactly one of global/alloca is set.
	global *ir.Global
	alloca *ir.AllocaInst
	fn     *ir.Function // owning function, for function-local aggregates
}

func (Consolidator) Run(ctx *pass.Context, mod *ir.Module) error {
	byAddrSpace := map[int][]field{}
	// function-local address spaces (private stack allocations) are
	// keyed additionally by function so each function gets its own
	// aggregate, per spec.md §4.1 "consolidated into its function's
	// private-address-space aggregate".
	localByFunc := map[*ir.Function]map[int][]field{}

	for _, g := range mod.Globals {
		if g.IsDeclaration {
			continue
		}
		if g.UnnamedAddr {
			continue // address not observable: not eligible, and not an error either
		}
		if g.Initializer != nil && !ir.IsSimple(g.Initializer) {
			return AbortNonSimpleInitializer(g.Name)
		}
		byAddrSpace[g.AddrSpace] = append(byAddrSpace[g.AddrSpace], field{name: g.Name, typ: g.Type, global: g})
	}

	for _, fn := range mod.Functions {
		if fn.IsDeclaration || fn.IsIntrinsic {
			continue
		}
		entry := fn.Entry()
		if entry == nil {
			continue
		}
		for _, inst := range entry.Instructions {
			alloc, ok := inst.(*ir.AllocaInst)
			if !ok {
				continue
			}
			if localByFunc[fn] == nil {
				localByFunc[fn] = map[int][]field{}
			}
			localByFunc[fn][alloc.AddrSpace] = append(localByFunc[fn][alloc.AddrSpace],
				field{name: alloc.Name, typ: alloc.ElemType, alloca: alloc, fn: fn})
		}
	}

	for as, fields := range byAddrSpace {
		agg := buildAggregate(mod, fmt.Sprintf("__consolidated_as%d", as), as, fields)
		interval := &pass.BoundsInterval{Low: agg.Value, High: aggregateUpperBound(mod, agg)}
		ctx.AddrSpaceBounds[as] = interval
		rewriteFields(mod, agg, fields)
		for _, f := range fields {
			mod.RemoveGlobal(f.global)
		}
	}

	for fn, byAS := range localByFunc {
		for as, fields := range byAS {
			name := fmt.Sprintf("__consolidated_%s_as%d", fn.Name, as)
			agg := buildAggregate(mod, name, as, fields)
			ctx.AddrSpaceBounds[as] = &pass.BoundsInterval{Low: agg.Value, High: aggregateUpperBound(mod, agg)}
			rewriteFields(mod, agg, fields)
			removeAllocas(fn, fields)
		}
	}

	// Bulk memory intrinsics may now address fields of an aggregate, so
	// their alignment hint is conservatively reduced to 1.
	for _, fn := range mod.Functions {
		for _, blk := range fn.Blocks {
			for _, inst := range blk.Instructions {
				if mem, ok := inst.(*ir.IntrinsicMemOpInst); ok {
					mem.AlignHint = 1
				}
			}
		}
	}

	return nil
}

// buildAggregate creates one internal global struct aggregate over
// fields, in stable (discovery) order, per spec.md §4.1.
func buildAggregate(mod *ir.Module, name string, addrSpace int, fields []field) *ir.Global {
	// fields already arrives in discovery order (spec.md §4.1: "fields
	// are the pre-consolidation allocations in a stable order") since
	// callers only ever append to it while walking globals/allocas.
	fieldTypes := make([]ir.Type, len(fields))
	elements := make([]ir.Constant, len(fields))
	for i, f := range fields {
		fieldTypes[i] = f.typ
		if f.global != nil && f.global.Initializer != nil {
			elements[i] = f.global.Initializer
		} else {
			elements[i] = ir.ConstNull{Ty: f.typ}
		}
	}
	st := &ir.StructType{Name: name, Fields: fieldTypes}
	agg := &ir.Global{
		Name:        name,
		Type:        st,
		AddrSpace:   addrSpace,
		Initializer: ir.ConstAggregate{Ty: st, Elements: elements},
		Linkage:     ir.LinkageInternal,
	}
	agg.Value = ir.FreshValue(mod, name, agg.PointerType())
	mod.Globals = append(mod.Globals, agg)
	return agg
}

// aggregateUpperBound returns a value one element past the aggregate,
// the "high" endpoint of the address space's closed interval. It is
// synthesized lazily as a GEP off the aggregate's own address; no block
// hosts it since it is only ever read as an operand, never executed for
// side effects, mirroring how the original pointer value for a global
// is never itself "in" a block.
func aggregateUpperBound(mod *ir.Module, agg *ir.Global) *ir.Value {
	res := ir.FreshValue(mod, agg.Name+".end", agg.PointerType())
	res.Def = &ir.GEPInst{ID: mod.NextID(), Result: res, Base: agg.Value, Indices: []int64{1}}
	return res
}

// rewriteFields replaces every use of each pre-consolidation
// allocation's value with a projection into agg (spec.md §4.1
// "Rewrites"): &agg[0].f_i, computed once per function that needs it
// and shared by every use there.
func rewriteFields(mod *ir.Module, agg *ir.Global, fields []field) {
	for i, f := range fields {
		projType := &ir.PointerType{Pointee: f.typ, AddrSpace: agg.AddrSpace}
		proj := ir.FreshValue(mod, fmt.Sprintf("%s.f%d", agg.Name, i), projType)

		if f.global != nil {
			// A global's address is itself a compile-time constant with
			// no owning instruction (Global.Value has no Def either);
			// the projection is the same kind of constant address, just
			// computed relative to the aggregate instead of standing
			// alone.
			if f.global.Value == nil {
				continue
			}
			ir.ReplaceAllUses(f.global.Value, proj)
			continue
		}

		// A stack allocation's field projection is a real address
		// computation, materialized once at function entry and shared
		// by every use in that function (spec.md §4.1 "Rewrites").
		gep := &ir.GEPInst{ID: mod.NextID(), Result: proj, Base: agg.Value, Indices: []int64{0, int64(i)}}
		ir.EmitBefore(f.fn.Entry(), 0, gep)
		ir.ReplaceAllUses(f.alloca.Result, proj)
	}
}

func removeAllocas(fn *ir.Function, fields []field) {
	dead := map[*ir.AllocaInst]bool{}
	for _, f := range fields {
		dead[f.alloca] = true
	}
	entry := fn.Entry()
	kept := entry.Instructions[:0]
	for _, inst := range entry.Instructions {
		if a, ok := inst.(*ir.AllocaInst); ok && dead[a] {
			continue
		}
		kept = append(kept, inst)
	}
	entry.Instructions = kept
}

// AbortNonSimpleInitializer builds the coded UnsupportedConstruct
// diag.CompilerError that Run returns for a global whose initializer is
// not simple.
func AbortNonSimpleInitializer(globalName string) *diag.CompilerError {
	return diag.Abort(diag.UnsupportedConstruct,
		fmt.Sprintf("global %q has a non-simple initializer", globalName),
		diag.Location{})
}
