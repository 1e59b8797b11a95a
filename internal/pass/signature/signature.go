// Package signature implements SignatureRewriter (spec.md §4.2): it
// produces, for each eligible function, a twin whose pointer parameters
// have been replaced by fat pointers, with an empty body left for
// BodyMover to fill in.
package signature

import (
	"fmt"
	"strings"

	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
	"clmemguard/internal/pass"
)

// ProgramAllocationsType is the type spec.md §4.2 assigns the leading
// implicit parameter every rewritten function gains. spec.md §9 flags
// this parameter as plumbed everywhere but meaningful nowhere; this
// repository keeps it exactly that way (see DESIGN.md's Open Question
// decision) rather than inventing a use for it or silently dropping it.
var ProgramAllocationsType ir.Type = &ir.IntType{Bits: 32}

// ProgramAllocationsParamName is the synthesized leading parameter's
// name in every rewritten function.
const ProgramAllocationsParamName = "__program_allocations"

// Rewriter is a pass.Stage running at ir.PhaseSignaturesRewritten.
type Rewriter struct{}

func (Rewriter) Name() string        { return "SignatureRewriter" }
func (Rewriter) Phase() ir.Phase     { return ir.PhaseSignaturesRewritten }
func (Rewriter) Description() string {
	return "builds fat-pointer signatures for every function that needs them"
}

// IsBuiltinReplacementName reports whether name marks a manually-written
// safe replacement for an unsafe built-in (spec.md §4.9's custom
// mangling: "base typically ends with __safe__").
func IsBuiltinReplacementName(name string) bool {
	return strings.Contains(name, "__safe__")
}

func (Rewriter) Run(ctx *pass.Context, mod *ir.Module) error {
	originals := append([]*ir.Function(nil), mod.Functions...)

	for _, fn := range originals {
		if fn.IsDeclaration || fn.IsIntrinsic {
			continue
		}
		if fn.IsVarArg {
			return diag.Abort(diag.UnsupportedConstruct,
				fmt.Sprintf("function %q is variadic", fn.Name), diag.Location{Function: fn.Name})
		}
		if isPointerOrArray(fn.ReturnType) {
			return diag.Abort(diag.UnsupportedConstruct,
				fmt.Sprintf("function %q returns a pointer or array type", fn.Name), diag.Location{Function: fn.Name})
		}
		for _, blk := range fn.Blocks {
			for _, inst := range blk.Instructions {
				if u, ok := inst.(*ir.UnsupportedInst); ok {
					return diag.Abort(diag.UnsupportedConstruct,
						fmt.Sprintf("function %q contains an unsupported %s instruction", fn.Name, u.Kind), diag.Location{Function: fn.Name})
				}
			}
		}

		if ctx.Options.AllowUnsafeExceptions && ctx.Options.FunctionIsEntry(fn.Name) {
			// Permissive mode: the entry function keeps its original
			// shape (spec.md §6). Map it to itself so downstream
			// stages treat it as already rewritten.
			ctx.FuncMap[fn] = fn
			for _, p := range fn.Params {
				ctx.ArgMap[p] = p
			}
			continue
		}

		newFn := &ir.Function{
			Name:       fn.Name,
			ReturnType: fn.ReturnType,
			Linkage:    fn.Linkage,
		}

		leading := &ir.Parameter{Name: ProgramAllocationsParamName, Type: ProgramAllocationsType}
		newFn.Params = append(newFn.Params, leading)

		if IsBuiltinReplacementName(fn.Name) {
			if err := foldPointerTriples(ctx, fn, newFn); err != nil {
				return err
			}
		} else {
			for _, p := range fn.Params {
				newFn.Params = append(newFn.Params, convertOne(ctx, p))
			}
		}

		mod.Functions = append(mod.Functions, newFn)
		ctx.FuncMap[fn] = newFn
	}

	return nil
}

func isPointerOrArray(t ir.Type) bool {
	switch t.(type) {
	case *ir.PointerType, *ir.ArrayType:
		return true
	default:
		return false
	}
}

// convertOne converts a single parameter, replacing a pointer parameter
// with a same-pointee FatPointer parameter and preserving everything
// else (spec.md §4.2).
func convertOne(ctx *pass.Context, p *ir.Parameter) *ir.Parameter {
	pt, isPointer := p.Type.(*ir.PointerType)
	if !isPointer {
		np := &ir.Parameter{Name: p.Name, Type: p.Type, Attrs: p.Attrs}
		np.Attrs.NoCapture = false
		ctx.ArgMap[p] = np
		return np
	}
	np := &ir.Parameter{
		Name: p.Name,
		Type: &ir.FatPointerType{Pointee: pt.Pointee, AddrSpace: pt.AddrSpace},
		Attrs: ir.ParamAttrs{NoCapture: false, ByVal: false},
	}
	ctx.ArgMap[p] = np
	return np
}

// foldPointerTriples implements the manually-written safe-replacement
// rule: three sequential same-pointee-type pointer parameters fold back
// into a single FatPointer parameter (spec.md §4.2).
func foldPointerTriples(ctx *pass.Context, fn, newFn *ir.Function) error {
	i := 0
	for i < len(fn.Params) {
		p := fn.Params[i]
		pt, isPointer := p.Type.(*ir.PointerType)
		if !isPointer {
			newFn.Params = append(newFn.Params, convertOne(ctx, p))
			i++
			continue
		}
		if i+2 >= len(fn.Params) {
			return diag.Abort(diag.UnsupportedConstruct,
				fmt.Sprintf("builtin replacement %q has a trailing pointer parameter with no triple to fold", fn.Name),
				diag.Location{Function: fn.Name})
		}
		triple := fn.Params[i : i+3]
		for _, tp := range triple {
			otherPt, ok := tp.Type.(*ir.PointerType)
			if !ok || !otherPt.Equal(pt) {
				return diag.Abort(diag.UnsupportedConstruct,
					fmt.Sprintf("builtin replacement %q does not have three matching sequential pointer parameters starting at %q", fn.Name, p.Name),
					diag.Location{Function: fn.Name})
			}
		}
		np := &ir.Parameter{
			Name: p.Name,
			Type: &ir.FatPointerType{Pointee: pt.Pointee, AddrSpace: pt.AddrSpace},
		}
		newFn.Params = append(newFn.Params, np)
		for fieldIdx, tp := range triple {
			ctx.ArgMap[tp] = np
			ctx.FoldedField[tp] = fieldIdx
		}
		i += 3
	}
	return nil
}
