package pipeline

import (
	"fmt"
	"path/filepath"

	"stitcher/internal/assembly"
	"stitcher/internal/config"
	"stitcher/internal/design"
	"stitcher/internal/doctor"
	"stitcher/internal/generator"
	"stitcher/internal/llm"
	"stitcher/internal/security"
	"stitcher/internal/trace"
)

// BuildDeps wires the production dependency graph for one workspace. Each
// generation role gets its own backend client so model identifiers stay
// per-role; the research client is optional and degrades to the stock
// insight when the backend refuses it.
func BuildDeps(cfg *config.Config, opts Options) (Deps, error) {
	if cfg == nil {
		return Deps{}, ErrConfigurationMissing
	}
	ws := opts.Workspace
	ledger := trace.NewLedger(TracePath(ws))

	layoutClient, err := llm.New(cfg, cfg.Models.Layout)
	if err != nil {
		return Deps{}, fmt.Errorf("layout backend: %w", err)
	}
	writingClient, err := llm.New(cfg, cfg.Models.Writing)
	if err != nil {
		return Deps{}, fmt.Errorf("writing backend: %w", err)
	}
	assemblyClient, err := llm.New(cfg, cfg.Models.Assembly)
	if err != nil {
		return Deps{}, fmt.Errorf("assembly backend: %w", err)
	}
	researchClient, err := llm.New(cfg, cfg.Models.Research)
	if err != nil {
		researchClient = nil
	}

	outputDir := cfg.Pipeline.OutputDir
	if outputDir == "" {
		outputDir = "output"
	}
	engine := assembly.NewEngine(
		assemblyClient,
		ledger,
		filepath.Join(ws, outputDir),
		filepath.Join(ws, "components"),
	)

	return Deps{
		Config:      cfg,
		Ledger:      ledger,
		Store:       NewStateStore(ws),
		Tokens:      design.NewTokenStore(ws),
		Guardian:    security.NewGuardian(cfg.Security, ledger),
		Planner:     NewPlanner(generator.New(layoutClient, ledger), cfg.AvailableComponents, ledger),
		Synthesizer: design.NewSynthesizer(generator.New(writingClient, ledger), researchClient, ledger, cfg.Pipeline.Vibe),
		Assembler:   engine,
		Previewer:   engine,
		Doctor:      doctor.NewDoctor(ledger),
	}, nil
}
