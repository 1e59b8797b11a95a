// Package builtin implements BuiltinRetargeter (spec.md §4.8): it
// retargets calls to a fixed set of unsafe OpenCL built-ins onto a
// fat-pointer-aware safe twin, synthesizing an empty declaration for
// any built-in with no twin already present in the module.
package builtin

import (
	"fmt"

	"github.com/segmentio/ksuid"

	"clmemguard/internal/builtinname"
	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
	"clmemguard/internal/mangling"
	"clmemguard/internal/pass"
	"clmemguard/internal/pass/callsite"
)

// Retargeter is a pass.Stage running at ir.PhaseBuiltinsRetargeted.
// ExtraUnsafe extends the fixed built-in name table with names loaded
// from the CLI's --config file (SPEC_FULL.md §2.2), treated exactly
// like a compiled-in unsafe built-in.
type Retargeter struct {
	ExtraUnsafe []string
}

func (Retargeter) Name() string        { return "BuiltinRetargeter" }
func (Retargeter) Phase() ir.Phase     { return ir.PhaseBuiltinsRetargeted }
func (Retargeter) Description() string {
	return "retargets unsafe built-in calls onto their fat-pointer-aware safe twins"
}

func (r Retargeter) Run(ctx *pass.Context, mod *ir.Module) error {
	if err := rejectForbidden(mod); err != nil {
		return err
	}

	for _, fn := range snapshot(mod.Functions) {
		if !fn.IsDeclaration || !builtinname.IsUnsafe(fn.Name, r.ExtraUnsafe) {
			continue
		}
		if !hasPointerParam(fn) {
			continue
		}
		if _, done := ctx.BuiltinSafeTwins[fn]; done {
			continue
		}
		twin := findTwin(mod, fn)
		if twin == nil {
			twin = synthesizeTwin(mod, fn)
			ctx.Notes = append(ctx.Notes, diag.Warn("",
				fmt.Sprintf("no safe twin found for %q (%s); synthesized declaration-only twin %q",
					fn.Name, mangling.Readable(fn.Name), twin.Name),
				diag.Location{Function: fn.Name}))
		}
		ctx.BuiltinSafeTwins[fn] = twin
	}

	for _, fn := range mod.Functions {
		if fn.IsDeclaration {
			continue
		}
		if err := retargetCalls(ctx, mod, fn); err != nil {
			return err
		}
	}
	return nil
}

func snapshot(fns []*ir.Function) []*ir.Function {
	return append([]*ir.Function(nil), fns...)
}

func rejectForbidden(mod *ir.Module) error {
	for _, fn := range mod.Functions {
		if fn.IsDeclaration {
			continue
		}
		for _, blk := range fn.Blocks {
			for _, inst := range blk.Instructions {
				call, ok := inst.(*ir.CallInst)
				if !ok || call.Callee == nil {
					continue
				}
				if builtinname.Forbidden[call.Callee.Name] {
					return diag.Abort(diag.ForbiddenBuiltin,
						fmt.Sprintf("built-in %q is forbidden and remains unresolved", call.Callee.Name),
						diag.Location{Function: fn.Name})
				}
			}
		}
	}
	return nil
}

func hasPointerParam(fn *ir.Function) bool {
	for _, p := range fn.Params {
		if _, ok := p.Type.(*ir.PointerType); ok {
			return true
		}
	}
	return false
}

// liftedParams computes the fat-pointerized parameter shape spec.md
// §4.8 calls "the derived signature": every pointer parameter becomes a
// same-pointee, same-address-space FatPointer, in parameter order, with
// no leading program-allocations slot (that is added separately once a
// candidate function, itself already SignatureRewriter-shaped, is
// compared against it).
func liftedParams(fn *ir.Function) []ir.Type {
	lifted := make([]ir.Type, len(fn.Params))
	for i, p := range fn.Params {
		if pt, ok := p.Type.(*ir.PointerType); ok {
			lifted[i] = &ir.FatPointerType{Pointee: pt.Pointee, AddrSpace: pt.AddrSpace}
		} else {
			lifted[i] = p.Type
		}
	}
	return lifted
}

// findTwin searches the module for a user-supplied safe twin: a
// function named per mangling.SafeTwinName whose parameters (after its
// own leading program-allocations slot) match the built-in's
// fat-pointerized signature exactly.
func findTwin(mod *ir.Module, fn *ir.Function) *ir.Function {
	wantName := mangling.SafeTwinName(fn.Name)
	want := liftedParams(fn)

	for _, cand := range mod.Functions {
		if cand == fn || cand.Name != wantName {
			continue
		}
		if len(cand.Params) != len(want)+1 {
			continue
		}
		match := true
		for i, t := range want {
			if !cand.Params[i+1].Type.Equal(t) {
				match = false
				break
			}
		}
		if match {
			return cand
		}
	}
	return nil
}

// synthesizeTwin builds the fallback spec.md §4.8 describes: an empty
// declaration shaped exactly like a SignatureRewriter twin (leading
// program-allocations parameter, fat-pointerized pointer parameters).
// Its name carries a ksuid suffix, the same uniqueness technique
// pass/kernelwrap uses for its dynamic-bounds globals, so two unsafe
// built-ins synthesized in the same run never collide on name alone.
func synthesizeTwin(mod *ir.Module, fn *ir.Function) *ir.Function {
	twin := &ir.Function{
		Name:          mangling.SafeTwinName(fn.Name) + "." + ksuid.New().String(),
		ReturnType:    fn.ReturnType,
		IsDeclaration: true,
		Linkage:       ir.LinkageExternal,
	}
	twin.Params = append(twin.Params, &ir.Parameter{Name: "__program_allocations", Type: &ir.IntType{Bits: 32}})
	lifted := liftedParams(fn)
	for i, p := range fn.Params {
		twin.Params = append(twin.Params, &ir.Parameter{Name: p.Name, Type: lifted[i]})
	}
	mod.Functions = append(mod.Functions, twin)
	return twin
}

func retargetCalls(ctx *pass.Context, mod *ir.Module, fn *ir.Function) error {
	handled := map[*ir.CallInst]bool{}
outer:
	for {
		for _, blk := range fn.Blocks {
			for idx, inst := range blk.Instructions {
				call, ok := inst.(*ir.CallInst)
				if !ok || handled[call] || call.Callee == nil {
					continue
				}
				twin, retarget := ctx.BuiltinSafeTwins[call.Callee]
				if !retarget {
					handled[call] = true
					continue
				}
				newArgs, newByVal, _, err := callsite.ConvertArgs(ctx, mod, fn, blk, idx, call.Callee.Name, call.Callee.Params, twin.Params, call.Args, call.ArgByVal)
				if err != nil {
					return err
				}
				call.Callee = twin
				ir.ResetCallArgs(call, newArgs)
				call.ArgByVal = newByVal
				handled[call] = true
				continue outer
			}
		}
		return nil
	}
}
