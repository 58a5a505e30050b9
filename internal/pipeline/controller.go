// Package pipeline sequences the end-to-end generation run: ingest, design
// selection, layout orchestration, sanitization, assembly, self-healing and
// finalization. The controller owns the failure contract: assembly failure
// is fatal, everything else degrades, and the telemetry ledger is flushed on
// every terminal path.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"stitcher/internal/assembly"
	"stitcher/internal/config"
	"stitcher/internal/design"
	"stitcher/internal/doctor"
	"stitcher/internal/logging"
	"stitcher/internal/profile"
	"stitcher/internal/security"
	"stitcher/internal/trace"
)

// Stage names one controller state. Stage names are persisted in the state
// file and the trace, so they are part of the on-disk contract.
type Stage string

const (
	StageInit          Stage = "INIT"
	StageIngest        Stage = "INGEST"
	StageDesignSelect  Stage = "DESIGN_SELECT"
	StageOrchestrate   Stage = "ORCHESTRATE"
	StageSecurityAudit Stage = "SECURITY_AUDIT"
	StageAssemble      Stage = "ASSEMBLE"
	StageSelfHeal      Stage = "SELF_HEAL"
	StageFinalize      Stage = "FINALIZE"
	StageDone          Stage = "DONE"
	StageFailed        Stage = "FAILED"
)

// Mode selects the DESIGN_SELECT branch.
type Mode string

const (
	// ModeSynthesis fans out variant generation and picks the approved slot.
	ModeSynthesis Mode = "synthesis"
	// ModeReference accepts an operator-supplied descriptor verbatim as the
	// design token, bypassing generation.
	ModeReference Mode = "reference"
	// ModeCached loads the last approved token from disk, falling back to
	// the default token when none exists.
	ModeCached Mode = "cached"
)

// Previewer assembles per-variant previews and a selection gallery. It is
// optional: a nil Previewer skips the review step.
type Previewer interface {
	GeneratePreviews(ctx context.Context, plan []string, variants design.VariantSet) []string
	BuildGallery(previewPaths []string) (string, error)
}

// Options carries the operator's choices for one run.
type Options struct {
	Workspace       string
	ProfilePath     string
	Mode            Mode
	Reference       string
	ApprovedVariant int
	SkipPreviews    bool
}

// Deps wires the controller's collaborators. Everything is injected so runs
// are reproducible and testable with stub backends.
type Deps struct {
	Config      *config.Config
	Ledger      *trace.Ledger
	Store       *StateStore
	Tokens      *design.TokenStore
	Guardian    *security.Guardian
	Planner     *Planner
	Synthesizer *design.Synthesizer
	Assembler   assembly.Assembler
	Previewer   Previewer
	Doctor      *doctor.Doctor
}

// Controller drives one run through the stage sequence.
type Controller struct {
	deps Deps
	opts Options
	log  *logging.Logger

	runID    string
	stage    Stage
	artifact string
}

func NewController(deps Deps, opts Options) *Controller {
	if opts.Mode == "" {
		opts.Mode = ModeSynthesis
	}
	return &Controller{
		deps: deps,
		opts: opts,
		log:  logging.Get(logging.CategoryPipeline),
	}
}

// Stage reports the controller's current (or terminal) stage.
func (c *Controller) Stage() Stage { return c.stage }

// Artifact reports the final artifact path after a successful run.
func (c *Controller) Artifact() string { return c.artifact }

// Run executes the full pipeline. A non-nil error means the run reached
// FAILED; the ledger is flushed on every return path, including panics,
// so a failed run always explains its last successful stage.
func (c *Controller) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = c.fail(fmt.Errorf("stage %s panicked: %v", c.stage, r))
		}
		if ferr := c.deps.Ledger.Flush(); ferr != nil {
			c.log.Error("telemetry flush failed: %v", ferr)
		}
	}()

	c.runID = uuid.NewString()
	c.enter(StageInit, map[string]any{"run_id": c.runID, "mode": string(c.opts.Mode)})
	if serr := c.deps.Store.SetRunID(c.runID); serr != nil {
		c.log.Warn("could not stamp run id: %v", serr)
	}

	c.enter(StageIngest, nil)
	brand, err := profile.Load(c.opts.Workspace, c.opts.ProfilePath)
	if err != nil {
		return c.fail(fmt.Errorf("profile ingestion: %w", err))
	}
	if merr := profile.SaveMemory(c.opts.Workspace, brand); merr != nil {
		c.log.Warn("brand memory not persisted: %v", merr)
	}

	c.enter(StageDesignSelect, map[string]any{"mode": string(c.opts.Mode)})
	token, err := c.selectDesign(ctx, brand)
	if err != nil {
		return c.fail(fmt.Errorf("design selection: %w", err))
	}

	c.enter(StageOrchestrate, nil)
	plan := c.orchestrate(ctx, brand)

	c.enter(StageSecurityAudit, nil)
	plan = c.auditPlan(plan)

	c.enter(StageAssemble, map[string]any{"plan": []string(plan), "variant": token.VariantName})
	artifact, aerr := c.deps.Assembler.StitchAll(ctx, []string(plan), token, "")
	if aerr != nil {
		return c.fail(fmt.Errorf("%w: %v", ErrAssemblyFailure, aerr))
	}
	c.artifact = artifact

	c.enter(StageSelfHeal, nil)
	if herr := c.selfHeal(artifact); herr != nil {
		c.log.Warn("self-heal incomplete, keeping unpatched artifact: %v", herr)
		c.record("SELF_HEAL_SKIPPED", trace.LevelWarning, map[string]any{"error": herr.Error()})
	}

	c.enter(StageFinalize, map[string]any{"artifact": artifact})
	if ferr := c.deps.Store.MarkComplete(string(StageFinalize), nil); ferr != nil {
		c.log.Warn("finalize not persisted: %v", ferr)
	}

	c.stage = StageDone
	c.record("RUN_COMPLETE", trace.LevelInfo, map[string]any{"artifact": artifact})
	return nil
}

// selectDesign resolves the design token per the operator's mode.
func (c *Controller) selectDesign(ctx context.Context, brand *profile.BrandProfile) (design.Token, error) {
	switch c.opts.Mode {
	case ModeReference:
		if c.opts.Reference == "" {
			return design.Token{}, fmt.Errorf("reference mode requires a reference descriptor")
		}
		token := design.IngestExternalReference(c.opts.Reference)
		c.record("EXTERNAL_REFERENCE_ACCEPTED", trace.LevelInfo, map[string]any{"reference": c.opts.Reference})
		return token, c.deps.Tokens.Save(token)

	case ModeCached:
		token, ok := c.deps.Tokens.Load()
		if !ok {
			c.log.Warn("no approved design on disk, using default token")
			c.record("DESIGN_CACHE_MISS", trace.LevelWarning, nil)
		}
		return token, nil

	default:
		return c.synthesizeDesign(ctx, brand)
	}
}

// synthesizeDesign runs the full fan-out branch: optional market research,
// K-way variant synthesis (cached across runs), previews, then approval of
// one slot.
func (c *Controller) synthesizeDesign(ctx context.Context, brand *profile.BrandProfile) (design.Token, error) {
	var variants design.VariantSet

	state, serr := c.deps.Store.Load()
	if serr != nil {
		c.log.Warn("state load: %v", serr)
	}
	if c.deps.Store.IsComplete(string(StageDesignSelect)) && len(state.CachedVariantSet) > 0 {
		variants = state.CachedVariantSet
		c.record("VARIANTS_CACHE_HIT", trace.LevelInfo, map[string]any{"count": len(variants)})
	} else {
		insight := c.deps.Synthesizer.PerformResearch(ctx, brand.Industry)
		variants = c.deps.Synthesizer.GenerateVariants(ctx, c.variantCount(), insight)
		if merr := c.deps.Store.MarkComplete(string(StageDesignSelect), variants); merr != nil {
			c.log.Warn("variant cache not persisted: %v", merr)
		}
	}

	if c.deps.Previewer != nil && !c.opts.SkipPreviews {
		previewPlan := FilterToAvailable(fallbackPlan, c.deps.Config.AvailableComponents)
		paths := c.deps.Previewer.GeneratePreviews(ctx, []string(previewPlan), variants)
		if gallery, gerr := c.deps.Previewer.BuildGallery(paths); gerr != nil {
			c.log.Warn("gallery not written: %v", gerr)
		} else {
			c.record("GALLERY_READY", trace.LevelInfo, map[string]any{"path": gallery, "previews": len(paths)})
		}
	}

	idx := c.opts.ApprovedVariant
	if idx < 0 || idx >= len(variants) {
		idx = 0
	}
	token := variants[idx]
	c.record("DESIGN_APPROVED", trace.LevelInfo, map[string]any{"variant": token.VariantName, "slot": idx})
	return token, c.deps.Tokens.Save(token)
}

// orchestrate produces the layout plan, skipping generation when a prior
// run already committed one.
func (c *Controller) orchestrate(ctx context.Context, brand *profile.BrandProfile) LayoutPlan {
	state, serr := c.deps.Store.Load()
	if serr != nil {
		c.log.Warn("state load: %v", serr)
	}
	if c.deps.Store.IsComplete(string(StageOrchestrate)) && len(state.CachedPlan) > 0 {
		c.record("PLAN_CACHE_HIT", trace.LevelInfo, map[string]any{"plan": []string(state.CachedPlan)})
		return state.CachedPlan
	}

	plan := c.deps.Planner.GeneratePlan(ctx, brand)
	if merr := c.deps.Store.MarkComplete(string(StageOrchestrate), plan); merr != nil {
		c.log.Warn("plan cache not persisted: %v", merr)
	}
	return plan
}

// auditPlan pushes the plan through the sanitization gate. The gate edge is
// unconditional: cached and fresh plans alike pass through before assembly.
// A rejected plan continues as empty rather than aborting the run.
func (c *Controller) auditPlan(plan LayoutPlan) LayoutPlan {
	sanitized := c.deps.Guardian.AuditAndSanitize([]string(plan), "layout_plan")
	cleaned := LayoutPlan(CoerceSections(sanitized))
	if len(cleaned) < len(plan) {
		c.log.Warn("sanitization reduced plan from %d to %d sections", len(plan), len(cleaned))
		c.record("PLAN_SANITIZED", trace.LevelWarning, map[string]any{
			"error":  ErrSecurityViolation.Error(),
			"before": len(plan),
			"after":  len(cleaned),
		})
	}
	return cleaned
}

// selfHeal runs the diagnostic table against the artifact, applies targeted
// patches, then scrubs leftover placeholders. Failures here never fail the
// run.
func (c *Controller) selfHeal(artifact string) error {
	data, err := os.ReadFile(artifact)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDiagnosticPatchFailure, err)
	}

	content := string(data)
	diags := c.deps.Doctor.RunDiagnostic(content)
	if len(diags) > 0 {
		patched := c.deps.Doctor.AutonomousPatch(content, diags)
		if patched != content {
			if werr := os.WriteFile(artifact, []byte(patched), 0644); werr != nil {
				return fmt.Errorf("%w: %v", ErrDiagnosticPatchFailure, werr)
			}
		}
	}

	if perr := assembly.Polish(artifact); perr != nil {
		return fmt.Errorf("%w: %v", ErrDiagnosticPatchFailure, perr)
	}
	return nil
}

// enter commits a stage transition to the log and the ledger. The per-stage
// ledger entries are the run's audit trail: a failed run shows exactly how
// far it got.
func (c *Controller) enter(stage Stage, details map[string]any) {
	c.stage = stage
	c.log.Info("stage: %s", stage)
	c.deps.Ledger.Record("PIPELINE", string(stage), trace.LevelInfo, details)
}

// fail converts any stage error into the FAILED terminal state.
func (c *Controller) fail(cause error) error {
	failedAt := c.stage
	c.stage = StageFailed
	c.log.Error("run failed at %s: %v", failedAt, cause)
	c.record("RUN_FAILED", trace.LevelCritical, map[string]any{
		"stage": string(failedAt),
		"error": cause.Error(),
	})
	return fmt.Errorf("%w at %s: %w", ErrRunFailed, failedAt, cause)
}

func (c *Controller) record(event string, level trace.Level, details map[string]any) {
	c.deps.Ledger.Record("PIPELINE", event, level, details)
}

func (c *Controller) variantCount() int {
	if n := c.deps.Config.Pipeline.VariantCount; n > 0 {
		return n
	}
	return 5
}

// TracePath returns the canonical trace file location for a workspace.
func TracePath(workspace string) string {
	return filepath.Join(workspace, ".stitcher", "trace.json")
}
