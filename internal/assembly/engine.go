// Package assembly turns a sanitized plan and a design token into HTML
// artifacts. The engine is the pipeline's assembly collaborator: it either
// returns the path of a produced artifact or an explicit error, never a
// silently empty success.
package assembly

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"stitcher/internal/design"
	"stitcher/internal/llm"
	"stitcher/internal/logging"
	"stitcher/internal/trace"
)

// Assembler is what the pipeline controller depends on.
type Assembler interface {
	// StitchAll produces the final artifact for plan and token, writing to
	// outputOverride when non-empty.
	StitchAll(ctx context.Context, plan []string, token design.Token, outputOverride string) (string, error)
}

const constructionPromptTemplate = `ACT AS: Principal Frontend Engineer.
STRUCTURAL_PLAN: %s

DESIGN_SYSTEM:
- PRIMARY: %s
- BG_COLOR: %s
- TEXT_COLOR: %s
- HEADING_FONT: %s
- BORDER_RADIUS: %s

COMPONENT_LIBRARY (USE THESE EXACT STRUCTURES):
%s

TASK:
Assemble a complete landing page.
1. Use the EXACT HTML structures provided in COMPONENT_LIBRARY.
2. Ensure high contrast: text must be TEXT_COLOR against BG_COLOR.
3. Return ONLY the raw HTML/CSS code. No markdown formatting.`

// Engine assembles artifacts via the generation backend, grounding the model
// on the on-disk component library so structures are not invented.
type Engine struct {
	client       llm.Client
	ledger       *trace.Ledger
	log          *logging.Logger
	outputDir    string
	componentDir string
}

// NewEngine creates an Engine. componentDir may be empty or missing; the
// engine then assembles without a component library.
func NewEngine(client llm.Client, ledger *trace.Ledger, outputDir, componentDir string) *Engine {
	return &Engine{
		client:       client,
		ledger:       ledger,
		log:          logging.Get(logging.CategoryAssembly),
		outputDir:    outputDir,
		componentDir: componentDir,
	}
}

// StitchAll synthesizes the final HTML for the given plan and token.
func (e *Engine) StitchAll(ctx context.Context, plan []string, token design.Token, outputOverride string) (string, error) {
	if e.client == nil {
		return "", fmt.Errorf("no assembly backend configured")
	}

	label := token.VariantName
	if label == "" {
		label = "Final"
	}
	e.log.Info("performing high-fidelity synthesis for: %s", label)

	library := e.readComponentLibrary()

	target := outputOverride
	if target == "" {
		target = filepath.Join(e.outputDir, "index.html")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	prompt := fmt.Sprintf(constructionPromptTemplate,
		strings.Join(plan, ", "),
		token.Colors.Primary,
		token.Colors.Background,
		token.Colors.Text,
		token.Typography.Heading,
		token.BorderRadius,
		library,
	)

	raw, err := e.client.Complete(ctx, prompt)
	if err != nil {
		e.log.Error("synthesis failure at %s: %v", target, err)
		return "", fmt.Errorf("assembly synthesis failed: %w", err)
	}

	content := StripFences(raw)
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("assembly produced empty artifact for %s", label)
	}

	if err := os.WriteFile(target, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	if e.ledger != nil {
		e.ledger.Record("ASSEMBLY_ENGINE", "ARTIFACT_WRITTEN", trace.LevelInfo, map[string]any{
			"variant": label,
			"path":    target,
		})
	}
	return target, nil
}

// GeneratePreviews assembles every variant concurrently into
// output/previews/variant_<i>.html. Failed slots are dropped from the
// returned paths; preview failure is not fatal to the run.
func (e *Engine) GeneratePreviews(ctx context.Context, plan []string, variants design.VariantSet) []string {
	e.log.Info("triggering parallel generation for %d design directions", len(variants))

	previewDir := filepath.Join(e.outputDir, "previews")
	paths := make([]string, len(variants))

	var g errgroup.Group
	for i, variant := range variants {
		slot, tok := i, variant
		g.Go(func() error {
			target := filepath.Join(previewDir, fmt.Sprintf("variant_%d.html", slot))
			path, err := e.StitchAll(ctx, plan, tok, target)
			if err != nil {
				e.log.Error("preview %d failed: %v", slot, err)
				return nil
			}
			paths[slot] = path
			return nil
		})
	}
	_ = g.Wait()

	produced := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			produced = append(produced, p)
		}
	}
	return produced
}

// readComponentLibrary concatenates the on-disk component sources so the
// model uses real structures instead of hallucinating them.
func (e *Engine) readComponentLibrary() string {
	if e.componentDir == "" {
		return ""
	}
	entries, err := os.ReadDir(e.componentDir)
	if err != nil {
		return ""
	}

	var sb strings.Builder
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".html") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(e.componentDir, entry.Name()))
		if err != nil {
			continue
		}
		sb.WriteString("\n\n")
		sb.Write(data)
		sb.WriteString("\n")
	}
	return sb.String()
}

// StripFences unwraps content the model wrapped in markdown code fences.
// Unfenced content passes through unchanged.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)

	for _, opener := range []string{"```html", "```"} {
		if !strings.HasPrefix(trimmed, opener) {
			continue
		}
		body := trimmed[len(opener):]
		if end := strings.Index(body, "```"); end != -1 {
			body = body[:end]
		}
		return strings.TrimSpace(body)
	}
	return trimmed
}
