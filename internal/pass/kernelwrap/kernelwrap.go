// Package kernelwrap implements KernelWrapperBuilder (spec.md §4.4): it
// synthesizes, for each kernel, a host-visible wrapper taking
// (pointer, count) pairs, records dynamic per-argument bounds globals,
// and tail-calls the transformed internal kernel.
package kernelwrap

import (
	"fmt"

	"github.com/iancoleman/strcase"
	"github.com/segmentio/ksuid"

	"clmemguard/internal/ir"
	"clmemguard/internal/pass"
)

// addrSpacePrivate is the private address-space number, which is 0
// under both numbering conventions this repository recognizes
// (addrspace.SPIR and addrspace.NVPTX).
const addrSpacePrivate = 0

var i32Type ir.Type = &ir.IntType{Bits: 32}

// Builder is a pass.Stage running at ir.PhaseKernelsWrapped.
type Builder struct{}

func (Builder) Name() string        { return "KernelWrapperBuilder" }
func (Builder) Phase() ir.Phase     { return ir.PhaseKernelsWrapped }
func (Builder) Description() string {
	return "synthesizes host-visible (pointer, count) wrappers for each kernel entry point"
}

func (Builder) Run(ctx *pass.Context, mod *ir.Module) error {
	kernels := append([]*ir.Function(nil), mod.Kernels()...)

	for _, k := range kernels {
		kPrime, ok := ctx.FuncMap[k]
		if !ok {
			return fmt.Errorf("kernel %q has no rewritten twin; SignatureRewriter must run first", k.Name)
		}
		wrapper := buildWrapper(ctx, mod, k, kPrime)
		mod.Functions = append(mod.Functions, wrapper)
		mod.ReplaceKernelEntry(k, wrapper)
		kPrime.Linkage = ir.LinkageInternal
	}
	return nil
}

func buildWrapper(ctx *pass.Context, mod *ir.Module, k, kPrime *ir.Function) *ir.Function {
	wrapperName := strcase.ToSnake(k.Name) + "_w"
	wrapper := &ir.Function{Name: wrapperName, ReturnType: &ir.VoidType{}, Linkage: ir.LinkageExternal}
	entry := &ir.BasicBlock{Label: "entry"}
	wrapper.AddBlock(entry)

	callArgs := []*ir.Value{ir.ConstOperand(mod, "pa.zero", ir.ConstInt{Ty: i32Type, Value: 0})}

	for _, p := range k.Params {
		newParam := &ir.Parameter{Name: p.Name, Type: p.Type}
		newParam.Value = ir.FreshValue(mod, p.Name, p.Type)
		wrapper.Params = append(wrapper.Params, newParam)

		pt, isPointer := p.Type.(*ir.PointerType)
		if !isPointer {
			callArgs = append(callArgs, newParam.Value)
			continue
		}

		countParam := &ir.Parameter{Name: strcase.ToSnake(p.Name) + "_count", Type: i32Type}
		countParam.Value = ir.FreshValue(mod, countParam.Name, i32Type)
		wrapper.Params = append(wrapper.Params, countParam)

		highVal := ir.FreshValue(mod, p.Name+".high", pt)
		ir.Emit(entry, &ir.PtrAddInst{ID: mod.NextID(), Result: highVal, Block: entry, Base: newParam.Value, Offset: countParam.Value})

		minG, maxG := boundsGlobals(mod, k.Name, p.Name, pt)
		ir.Emit(entry, &ir.StoreInst{ID: mod.NextID(), Block: entry, Pointer: minG.Value, Value: newParam.Value})
		ir.Emit(entry, &ir.StoreInst{ID: mod.NextID(), Block: entry, Pointer: maxG.Value, Value: highVal})
		ctx.AddrSpaceBounds[pt.AddrSpace] = &pass.BoundsInterval{Low: minG.Value, High: maxG.Value, Indirect: true}

		fatVal := buildFatPointer(mod, entry, p.Name, pt, newParam.Value, newParam.Value, highVal)
		callArgs = append(callArgs, fatVal)
	}

	callResult := (*ir.Value)(nil)
	if _, void := kPrime.ReturnType.(*ir.VoidType); !void {
		callResult = ir.FreshValue(mod, "ret", kPrime.ReturnType)
	}
	ir.Emit(entry, &ir.CallInst{ID: mod.NextID(), Result: callResult, Block: entry, Callee: kPrime, Args: callArgs})
	entry.Terminator = &ir.ReturnInst{ID: mod.NextID(), Block: entry}

	return wrapper
}

// boundsGlobals allocates the two module-level private globals holding
// a pointer parameter's dynamic low/high bound, named uniquely per
// kernel with a ksuid suffix so two kernels sharing a parameter name
// never collide.
func boundsGlobals(mod *ir.Module, kernelName, paramName string, pt *ir.PointerType) (min, max *ir.Global) {
	suffix := ksuid.New().String()
	min = &ir.Global{Name: fmt.Sprintf("%s.%s.min.%s", kernelName, paramName, suffix), Type: pt, AddrSpace: addrSpacePrivate, Linkage: ir.LinkageInternal, Initializer: ir.ConstNull{Ty: pt}}
	max = &ir.Global{Name: fmt.Sprintf("%s.%s.max.%s", kernelName, paramName, suffix), Type: pt, AddrSpace: addrSpacePrivate, Linkage: ir.LinkageInternal, Initializer: ir.ConstNull{Ty: pt}}
	min.Value = ir.FreshValue(mod, min.Name, min.PointerType())
	max.Value = ir.FreshValue(mod, max.Name, max.PointerType())
	mod.Globals = append(mod.Globals, min, max)
	return min, max
}

// buildFatPointer constructs a {current, low, high} fat pointer value
// in-register via an InsertValue chain starting from an undef
// aggregate, the SSA equivalent of the stack-allocate/store/load
// sequence spec.md §4.4 describes.
func buildFatPointer(mod *ir.Module, block *ir.BasicBlock, name string, pt *ir.PointerType, current, low, high *ir.Value) *ir.Value {
	fpType := &ir.FatPointerType{Pointee: pt.Pointee, AddrSpace: pt.AddrSpace}
	undef := ir.UndefOperand(mod, name+".fp.undef", fpType)

	step := func(agg *ir.Value, elem *ir.Value, idx int) *ir.Value {
		res := ir.FreshValue(mod, fmt.Sprintf("%s.fp%d", name, idx), fpType)
		ir.Emit(block, &ir.InsertValueInst{ID: mod.NextID(), Result: res, Block: block, Agg: agg, Elem: elem, Index: idx})
		return res
	}

	v := step(undef, current, ir.FatPtrCurrent)
	v = step(v, low, ir.FatPtrLow)
	v = step(v, high, ir.FatPtrHigh)
	return v
}
