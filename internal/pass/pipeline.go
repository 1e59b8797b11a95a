package pass

import (
	"fmt"
	"io"

	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
)

// Stage is one phase of the pipeline. Unlike the teacher's
// OptimizationPass (which may be re-applied until it reports no
// further change), a Stage runs exactly once per module and advances
// the module's Phase on success (spec.md §4.10: "no phase may run
// twice").
type Stage interface {
	Name() string
	Description() string
	Phase() ir.Phase
	Run(ctx *Context, mod *ir.Module) error
}

// Pipeline runs an ordered list of Stages against a module, advancing
// its phase after each one, the way the teacher's OptimizationPipeline
// runs an ordered list of OptimizationPasses — except here order is
// fixed by the state machine, not by insertion order chosen at
// construction time. Verbose mode (SPEC_FULL.md §2.3's -v flag) prints
// the full IR again after every phase transition, not just once at the
// end.
type Pipeline struct {
	stages  []Stage
	out     io.Writer
	verbose bool
}

// NewPipeline builds a pipeline over stages, which must already be in
// the phase order spec.md §4.10 defines; Run verifies this.
func NewPipeline(out io.Writer, verbose bool, stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages, out: out, verbose: verbose}
}

// Run executes every stage in order, reporting progress to the
// pipeline's writer. An error a Stage returns is wrapped with the
// stage's name and returned as is; a *diag.CompilerError a Stage panics
// with is printed through ctx.Reporter and returned. The caller is
// expected to treat any non-nil return as "discard the module" per
// spec.md §5.
func (p *Pipeline) Run(ctx *Context, mod *ir.Module) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if cerr, ok := r.(*diag.CompilerError); ok {
				fmt.Fprint(p.out, ctx.Reporter.Format(cerr))
				err = cerr
				return
			}
			panic(r)
		}
	}()

	for _, stage := range p.stages {
		if stage.Phase() != mod.Phase+1 {
			return fmt.Errorf("pass: stage %s expects to run at phase %s, module is at %s",
				stage.Name(), (mod.Phase + 1).String(), mod.Phase)
		}
		fmt.Fprintf(p.out, "  - %s: %s\n", stage.Name(), stage.Description())
		if err := stage.Run(ctx, mod); err != nil {
			return fmt.Errorf("pass: stage %s failed: %w", stage.Name(), err)
		}
		p.drainNotes(ctx)
		mod.Advance(stage.Phase())
		fmt.Fprintf(p.out, "    done (module now %s)\n", mod.Phase)
		if p.verbose {
			fmt.Fprintln(p.out, ir.Print(mod))
		}
	}
	return nil
}

// drainNotes prints and clears every non-fatal diagnostic a stage
// recorded on ctx.Notes during its Run (spec.md §6's permissive-mode
// warnings, and informational notes like a synthesized builtin twin).
func (p *Pipeline) drainNotes(ctx *Context) {
	for _, note := range ctx.Notes {
		fmt.Fprint(p.out, ctx.Reporter.Format(note))
	}
	ctx.Notes = ctx.Notes[:0]
}
