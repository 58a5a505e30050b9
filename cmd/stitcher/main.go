package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stitcher/internal/config"
	"stitcher/internal/design"
	"stitcher/internal/logging"
	"stitcher/internal/pipeline"
	"stitcher/internal/trace"
)

var (
	// Global flags
	verbose   bool
	workspace string
	timeout   time.Duration

	// Run flags
	mode            string
	profilePath     string
	reference       string
	approvedVariant int
	skipPreviews    bool

	// Trace flags
	traceLimit int

	cfg    *config.Config
	logger *zap.Logger
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF41")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ade80"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#facc15"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "stitcher",
	Short: "stitcher - autonomous website generation pipeline",
	Long: `stitcher turns a structured business profile into a generated,
validated landing page through a resilient multi-stage pipeline.

Malformed model output is self-repaired within a bounded budget, design
variants are synthesized in parallel with deterministic fallbacks, all
generated content passes a sanitization gate before assembly, and every
stage transition lands in an auditable telemetry ledger under .stitcher/.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, _ = os.Getwd()
		}

		cfg, err = config.Load(workspace)
		if err != nil {
			return fmt.Errorf("failed to load manifest: %w", err)
		}
		if verbose {
			cfg.Logging.DebugMode = true
		}
		if lerr := logging.Initialize(workspace, cfg.Logging); lerr != nil {
			logger.Warn("file logging disabled", zap.Error(lerr))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runCmd executes one full pipeline run
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the full generation pipeline",
	Long: `Runs the pipeline end to end:
  1. Ingest the brand profile (file, brand memory, or demo seed)
  2. Select a design direction (synthesis, reference override, or cached)
  3. Orchestrate the layout plan
  4. Sanitize the plan (unconditional security gate)
  5. Assemble the final artifact
  6. Self-heal structural defects
  7. Finalize and flush telemetry

Design modes:
  synthesis  - fan out variant generation, preview, approve one slot
  reference  - follow an operator-supplied reference verbatim (--reference)
  cached     - reuse the last approved design token`,
	RunE: runPipeline,
}

// statusCmd shows workspace status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workspace and pipeline status",
	RunE:  showStatus,
}

// traceCmd prints the telemetry ledger
var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Print the telemetry ledger for this workspace",
	RunE:  showTrace,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Run timeout")

	runCmd.Flags().StringVarP(&mode, "mode", "m", "synthesis", "Design mode: synthesis, reference, cached")
	runCmd.Flags().StringVarP(&profilePath, "profile", "p", "", "Path to a brand profile JSON file")
	runCmd.Flags().StringVar(&reference, "reference", "", "Reference descriptor/URL for reference mode")
	runCmd.Flags().IntVar(&approvedVariant, "variant", 0, "Variant slot to approve in synthesis mode")
	runCmd.Flags().BoolVar(&skipPreviews, "skip-previews", false, "Skip per-variant preview generation")

	traceCmd.Flags().IntVarP(&traceLimit, "limit", "n", 0, "Show only the last N entries")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(traceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runPipeline drives one end-to-end run.
func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	opts := pipeline.Options{
		Workspace:       workspace,
		ProfilePath:     profilePath,
		Mode:            pipeline.Mode(mode),
		Reference:       reference,
		ApprovedVariant: approvedVariant,
		SkipPreviews:    skipPreviews,
	}
	switch opts.Mode {
	case pipeline.ModeSynthesis, pipeline.ModeReference, pipeline.ModeCached:
	default:
		return fmt.Errorf("unknown mode %q (want synthesis, reference or cached)", mode)
	}
	if opts.Mode == pipeline.ModeReference && reference == "" {
		return fmt.Errorf("reference mode requires --reference")
	}

	deps, err := pipeline.BuildDeps(cfg, opts)
	if err != nil {
		return err
	}

	logger.Info("Starting pipeline run",
		zap.String("workspace", workspace),
		zap.String("mode", mode),
	)

	controller := pipeline.NewController(deps, opts)
	runErr := controller.Run(ctx)

	fmt.Println(titleStyle.Render("STITCHER RUN SUMMARY"))
	fmt.Println(mutedStyle.Render("====================="))
	if runErr != nil {
		fmt.Printf("%s %v\n", failStyle.Render("✗ FAILED:"), runErr)
		fmt.Println(mutedStyle.Render("  See 'stitcher trace' for the full ledger."))
		return runErr
	}
	fmt.Printf("%s %s\n", okStyle.Render("✓ Artifact:"), controller.Artifact())
	fmt.Printf("%s %s\n", okStyle.Render("✓ Ledger:  "), pipeline.TracePath(workspace))
	return nil
}

// showStatus displays workspace status
func showStatus(cmd *cobra.Command, args []string) error {
	fmt.Println(titleStyle.Render("stitcher Workspace Status"))
	fmt.Println(mutedStyle.Render("========================="))
	fmt.Printf("Workspace: %s\n", workspace)
	fmt.Printf("Backend:   %s\n", cfg.LLM.Provider)
	fmt.Println()

	if token, ok := design.NewTokenStore(workspace).Load(); ok {
		fmt.Printf("%s %s\n", okStyle.Render("✓ Approved design:"), token.VariantName)
	} else {
		fmt.Println(warnStyle.Render("✗ No approved design (synthesis mode will create one)"))
	}

	state, err := pipeline.NewStateStore(workspace).Load()
	if err != nil {
		fmt.Printf("%s %v\n", warnStyle.Render("✗ State file:"), err)
	}
	if len(state.CompletedSteps) == 0 {
		fmt.Println(mutedStyle.Render("  No completed stages yet"))
	} else {
		fmt.Printf("%s %v\n", okStyle.Render("✓ Completed stages:"), state.CompletedSteps)
	}
	if len(state.CachedPlan) > 0 {
		fmt.Printf("%s %v\n", okStyle.Render("✓ Cached plan:"), []string(state.CachedPlan))
	}
	if n := len(state.CachedVariantSet); n > 0 {
		fmt.Printf("%s %d variants\n", okStyle.Render("✓ Cached synthesis:"), n)
	}

	entries, err := trace.ReadFile(pipeline.TracePath(workspace))
	if err != nil {
		fmt.Printf("%s %v\n", warnStyle.Render("✗ Trace file:"), err)
		return nil
	}
	fmt.Printf("%s %d entries\n", okStyle.Render("✓ Telemetry:"), len(entries))
	return nil
}

// showTrace prints the persisted ledger, newest last.
func showTrace(cmd *cobra.Command, args []string) error {
	entries, err := trace.ReadFile(pipeline.TracePath(workspace))
	if err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println(mutedStyle.Render("No telemetry recorded yet."))
		return nil
	}

	if traceLimit > 0 && len(entries) > traceLimit {
		entries = entries[len(entries)-traceLimit:]
	}

	for _, e := range entries {
		level := mutedStyle.Render(string(e.Level))
		switch e.Level {
		case trace.LevelWarning:
			level = warnStyle.Render(string(e.Level))
		case trace.LevelCritical:
			level = failStyle.Render(string(e.Level))
		}
		fmt.Printf("%s  %-8s %-18s %s", e.Timestamp, level, e.Agent, e.Event)
		if len(e.Details) > 0 {
			fmt.Printf("  %s", mutedStyle.Render(fmt.Sprintf("%v", e.Details)))
		}
		fmt.Println()
	}
	return nil
}
