package ir

import (
	"fmt"
	"strings"
)

// Print renders a module as readable (not re-parseable) text, used by
// the CLI's -v flag and by tests that assert on the shape of rewritten
// IR rather than walking the struct graph by hand.
func Print(m *Module) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; module %s (phase: %s)\n", m.Name, m.Phase)

	for _, g := range m.Globals {
		fmt.Fprintf(&sb, "@%s = %s addrspace(%d) global %s\n", g.Name, g.Linkage, g.AddrSpace, g.Type)
	}

	if kernels := m.Metadata["opencl.kernels"]; len(kernels) > 0 {
		names := make([]string, len(kernels))
		for i, k := range kernels {
			names[i] = k.Name
		}
		fmt.Fprintf(&sb, "!opencl.kernels = !{%s}\n", strings.Join(names, ", "))
	}

	for _, fn := range m.Functions {
		printFunction(&sb, fn)
	}
	return sb.String()
}

func printFunction(sb *strings.Builder, fn *Function) {
	kw := "define"
	if fn.IsDeclaration {
		kw = "declare"
	}
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = fmt.Sprintf("%s %%%s", p.Type, p.Name)
	}
	fmt.Fprintf(sb, "%s %s @%s(%s) {\n", kw, fn.ReturnType, fn.Name, strings.Join(params, ", "))
	for _, blk := range fn.Blocks {
		printBlock(sb, blk)
	}
	sb.WriteString("}\n")
}

func printBlock(sb *strings.Builder, b *BasicBlock) {
	fmt.Fprintf(sb, "%s:\n", b.Label)
	for _, inst := range b.Instructions {
		fmt.Fprintf(sb, "  %s\n", printInstruction(inst))
	}
	if b.Terminator != nil {
		fmt.Fprintf(sb, "  %s\n", printInstruction(b.Terminator))
	}
}

func valName(v *Value) string {
	if v == nil {
		return "<nil>"
	}
	return "%" + v.Name
}

func printInstruction(inst Instruction) string {
	switch i := inst.(type) {
	case *AllocaInst:
		return fmt.Sprintf("%s = alloca %s addrspace(%d)", valName(i.Result), i.ElemType, i.AddrSpace)
	case *LoadInst:
		return fmt.Sprintf("%s = load %s", valName(i.Result), valName(i.Pointer))
	case *StoreInst:
		return fmt.Sprintf("store %s, %s", valName(i.Value), valName(i.Pointer))
	case *GEPInst:
		return fmt.Sprintf("%s = gep %s, %v", valName(i.Result), valName(i.Base), i.Indices)
	case *PtrAddInst:
		return fmt.Sprintf("%s = ptradd %s, %s", valName(i.Result), valName(i.Base), valName(i.Offset))
	case *CastInst:
		return fmt.Sprintf("%s = %s %s to %s", valName(i.Result), i.Op, valName(i.Operand), i.ToType)
	case *CmpInst:
		return fmt.Sprintf("%s = cmp %s %s, %s", valName(i.Result), i.Pred, valName(i.Left), valName(i.Right))
	case *PhiInst:
		parts := make([]string, 0, len(i.Incoming))
		for blk, v := range i.Incoming {
			parts = append(parts, fmt.Sprintf("[%s: %s]", blk.Label, valName(v)))
		}
		return fmt.Sprintf("%s = phi %s", valName(i.Result), strings.Join(parts, ", "))
	case *CallInst:
		args := make([]string, len(i.Args))
		for j, a := range i.Args {
			args[j] = valName(a)
		}
		prefix := ""
		if i.Result != nil {
			prefix = valName(i.Result) + " = "
		}
		return fmt.Sprintf("%scall @%s(%s)", prefix, i.Callee.Name, strings.Join(args, ", "))
	case *ExtractValueInst:
		return fmt.Sprintf("%s = extractvalue %s, %d", valName(i.Result), valName(i.Agg), i.Index)
	case *InsertValueInst:
		return fmt.Sprintf("%s = insertvalue %s, %s, %d", valName(i.Result), valName(i.Agg), valName(i.Elem), i.Index)
	case *IntrinsicMemOpInst:
		return fmt.Sprintf("%s %s, %s, align %d", i.Kind, valName(i.Dst), valName(i.Len), i.AlignHint)
	case *UnsupportedInst:
		return fmt.Sprintf("unsupported<%s> %s", i.Kind, i.Detail)
	case *ReturnInst:
		if i.Value == nil {
			return "ret void"
		}
		return fmt.Sprintf("ret %s", valName(i.Value))
	case *CondBranchInst:
		return fmt.Sprintf("br %s, label %s, label %s", valName(i.Cond), i.TrueBlock.Label, i.FalseBlock.Label)
	case *JumpInst:
		return fmt.Sprintf("br label %s", i.Target.Label)
	default:
		return fmt.Sprintf("<unknown instruction %T>", inst)
	}
}
