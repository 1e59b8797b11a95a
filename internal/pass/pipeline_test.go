package pass_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clmemguard/internal/diag"
	"clmemguard/internal/ir"
	"clmemguard/internal/pass"
)

// noteStage is a minimal pass.Stage that queues one ctx.Notes entry and
// runs at PhaseConsolidated (Pipeline advances the module), used to exercise Pipeline's
// note-draining and verbose-dump behavior without a full pass stage.
type noteStage struct{}

func (noteStage) Name() string        { return "NoteStage" }
func (noteStage) Description() string { return "queues a note" }
func (noteStage) Phase() ir.Phase     { return ir.PhaseConsolidated }
func (noteStage) Run(ctx *pass.Context, mod *ir.Module) error {
	ctx.Notes = append(ctx.Notes, diag.Warn("", "a queued note", diag.Location{Function: "m"}))
	return nil
}

func TestPipelineDrainsNotesAfterEachStage(t *testing.T) {
	mod := ir.NewBuilder("m").Module()
	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})

	var out strings.Builder
	pipeline := pass.NewPipeline(&out, false, noteStage{})
	require.NoError(t, pipeline.Run(ctx, mod))

	assert.Empty(t, ctx.Notes, "notes should be drained once printed")
	assert.Contains(t, out.String(), "a queued note")
}

func TestPipelineVerboseModePrintsIRAfterEachStage(t *testing.T) {
	mod := ir.NewBuilder("m").Module()
	ctx := pass.NewContext(pass.Options{}, &diag.Reporter{})

	var out strings.Builder
	pipeline := pass.NewPipeline(&out, true, noteStage{})
	require.NoError(t, pipeline.Run(ctx, mod))

	assert.Contains(t, out.String(), ir.Print(mod))
}
