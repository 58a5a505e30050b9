package design

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"stitcher/internal/generator"
	"stitcher/internal/llm"
	"stitcher/internal/logging"
	"stitcher/internal/trace"
)

const variantSystemPrompt = "You are a senior UI/UX consultant. You always answer with a single valid JSON object and nothing else."

const variantPromptTemplate = `ACT AS: Senior UI/UX Consultant.
VARIANT_NUMBER: %d
BRAND_VIBE: %s
%s
TASK: Generate ONE unique UI design variation.
REQUIREMENTS:
- Return ONLY a valid JSON object.
- Structure: {"variant_name": "STR", "colors": {"primary": "HEX", "secondary": "HEX", "bg": "HEX", "text": "HEX"}, "typography": {"heading": "STR", "body": "STR"}, "border_radius": "STR"}`

const researchPromptTemplate = `ACT AS: UI/UX Market Researcher.
NICHE: %s
TASK: Identify current high-converting design trends for this niche.
Return a concise summary and reasoning.`

// stockInsight keeps variant prompts useful when the research call fails.
const stockInsight = "Standard modern professional layouts."

// Synthesizer fans out variant generation across independent slots.
type Synthesizer struct {
	gen      *generator.Generator
	research llm.Client
	ledger   *trace.Ledger
	log      *logging.Logger
	vibe     string
}

// NewSynthesizer creates a Synthesizer. gen drives design synthesis;
// research (optional) is the narrative-writing backend used for the market
// research step.
func NewSynthesizer(gen *generator.Generator, research llm.Client, ledger *trace.Ledger, vibe string) *Synthesizer {
	return &Synthesizer{
		gen:      gen,
		research: research,
		ledger:   ledger,
		log:      logging.Get(logging.CategoryDesign),
		vibe:     vibe,
	}
}

// GenerateVariants issues count independent generation requests concurrently
// and collects results in request order. A slot that exhausts its retry
// budget contributes its deterministic fallback token; the fan-out itself
// never fails and the returned set always has exactly count entries.
func (s *Synthesizer) GenerateVariants(ctx context.Context, count int, researchInsight string) VariantSet {
	if count < 1 {
		return VariantSet{}
	}

	s.log.Info("initiating parallel synthesis of %d variants", count)

	insightContext := ""
	if researchInsight != "" {
		insightContext = "RESEARCH_INSIGHTS: " + researchInsight
	}

	results := make(VariantSet, count)

	var g errgroup.Group
	for i := 0; i < count; i++ {
		slot := i
		g.Go(func() error {
			req := generator.Request{
				Agent:  "UI_UX_DESIGNER",
				Label:  fmt.Sprintf("variant_%d", slot+1),
				System: variantSystemPrompt,
				Prompt: fmt.Sprintf(variantPromptTemplate, slot+1, s.vibe, insightContext),
			}

			var token Token
			if err := s.gen.SynthesizeJSON(ctx, req, &token); err != nil {
				s.log.Error("variant %d failed, substituting fallback: %v", slot+1, err)
				results[slot] = FallbackToken(slot)
				return nil
			}
			if token.VariantName == "" {
				token.VariantName = fmt.Sprintf("Unnamed_Variant_%d", slot+1)
			}
			results[slot] = token
			return nil
		})
	}
	// Workers only ever return nil; failure isolation is per-slot fallback.
	_ = g.Wait()

	s.log.Info("parallel synthesis complete")
	return results
}

// PerformResearch runs the optional competitive-research step. Failure is
// non-fatal and yields a stock insight.
func (s *Synthesizer) PerformResearch(ctx context.Context, niche string) string {
	if s.research == nil {
		return stockInsight
	}
	s.log.Info("researching design patterns for: %s", niche)

	insight, err := s.research.Complete(ctx, fmt.Sprintf(researchPromptTemplate, niche))
	if err != nil {
		s.log.Error("research failed: %v", err)
		if s.ledger != nil {
			s.ledger.Record("UI_UX_DESIGNER", "MARKET_RESEARCH_FAILED", trace.LevelWarning, map[string]any{"error": err.Error()})
		}
		return stockInsight
	}

	if s.ledger != nil {
		s.ledger.Record("UI_UX_DESIGNER", "MARKET_RESEARCH", trace.LevelInfo, map[string]any{"niche": niche})
	}
	return insight
}
