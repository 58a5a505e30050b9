package pipeline

import (
	"context"
	"fmt"
	"strings"

	"stitcher/internal/generator"
	"stitcher/internal/logging"
	"stitcher/internal/profile"
	"stitcher/internal/trace"
)

const layoutSystemPrompt = "You are a senior information architect. You always answer with a single valid JSON array of section identifiers and nothing else."

const layoutPromptTemplate = `ACT AS: Senior Information Architect.
BUSINESS: %s (%s)
SERVICES: %s
BRAND_VIBE: %s
AVAILABLE_COMPONENTS: [%s]
TASK: Select and order the page sections for a high-converting landing page.
OUTPUT: A JSON array of component identifiers drawn ONLY from AVAILABLE_COMPONENTS, in display order.`

// fallbackPlan keeps assembly alive when plan generation exhausts its
// budget and the raw output cannot be coerced.
var fallbackPlan = []string{"hero", "pricing", "footer"}

// Planner turns a brand profile into a LayoutPlan via the repairable
// generation loop. It never returns an error: exhaustion degrades to
// coercion of the model's last output, then to the static fallback.
type Planner struct {
	gen       *generator.Generator
	available []string
	ledger    *trace.Ledger
	log       *logging.Logger
}

func NewPlanner(gen *generator.Generator, available []string, ledger *trace.Ledger) *Planner {
	return &Planner{
		gen:       gen,
		available: available,
		ledger:    ledger,
		log:       logging.Get(logging.CategoryPipeline),
	}
}

// GeneratePlan produces the section order for one run.
func (p *Planner) GeneratePlan(ctx context.Context, brand *profile.BrandProfile) LayoutPlan {
	req := generator.Request{
		Agent:  "ORCHESTRATOR",
		Label:  "layout_plan",
		System: layoutSystemPrompt,
		Prompt: fmt.Sprintf(layoutPromptTemplate,
			brand.Brand,
			brand.Industry,
			serviceNames(brand),
			brand.Vibe,
			strings.Join(p.available, ", "),
		),
	}

	var payload PlanPayload
	raw, err := p.gen.Synthesize(ctx, req, &payload)

	var sections []string
	if err != nil {
		// Budget exhausted. The last raw output may still be a
		// pseudo-array worth salvaging before giving up on it.
		sections = CoerceSections(raw)
		if len(sections) > 0 {
			p.log.Warn("layout plan salvaged by coercion: %v", sections)
			p.record("PLAN_COERCED", trace.LevelWarning, map[string]any{"sections": sections})
		}
	} else {
		sections = payload.Sections()
	}

	plan := FilterToAvailable(sections, p.available)
	if len(plan) == 0 {
		plan = FilterToAvailable(fallbackPlan, p.available)
		p.log.Warn("layout plan empty, substituting fallback: %v", plan)
		p.record("PLAN_FALLBACK", trace.LevelWarning, map[string]any{"plan": []string(plan)})
	}
	return plan
}

func (p *Planner) record(event string, level trace.Level, details map[string]any) {
	if p.ledger == nil {
		return
	}
	p.ledger.Record("ORCHESTRATOR", event, level, details)
}

func serviceNames(brand *profile.BrandProfile) string {
	names := make([]string, 0, len(brand.Services))
	for _, s := range brand.Services {
		names = append(names, s.Name)
	}
	if len(names) == 0 {
		return "general services"
	}
	return strings.Join(names, ", ")
}
