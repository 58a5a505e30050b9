package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stitcher/internal/generator"
	"stitcher/internal/profile"
	"stitcher/internal/trace"
)

// fixedLLM answers every call with the same text (or error) and counts calls.
type fixedLLM struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
}

func (f *fixedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *fixedLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fixedLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var testComponents = []string{"hero", "features", "pricing", "testimonials", "footer"}

func newTestPlanner(t *testing.T, client *fixedLLM) (*Planner, *trace.Ledger) {
	t.Helper()
	ledger := trace.NewLedger(filepath.Join(t.TempDir(), "trace.json"))
	return NewPlanner(generator.New(client, ledger), testComponents, ledger), ledger
}

func TestGeneratePlan_ValidJSONFirstAttempt(t *testing.T) {
	client := &fixedLLM{response: `["hero","pricing","footer"]`}
	p, _ := newTestPlanner(t, client)

	plan := p.GeneratePlan(context.Background(), &profile.BrandProfile{Brand: "Acme"})

	assert.Equal(t, LayoutPlan{"hero", "pricing", "footer"}, plan)
	assert.Equal(t, 1, client.callCount())
}

func TestGeneratePlan_UnknownSectionsFiltered(t *testing.T) {
	client := &fixedLLM{response: `["hero","carousel","footer"]`}
	p, _ := newTestPlanner(t, client)

	plan := p.GeneratePlan(context.Background(), &profile.BrandProfile{Brand: "Acme"})
	assert.Equal(t, LayoutPlan{"hero", "footer"}, plan)
}

func TestGeneratePlan_PseudoArraySalvagedAfterExhaustion(t *testing.T) {
	// "[hero, pricing]" is not valid JSON, so every repair attempt fails;
	// the coercion of the last raw output must still recover the sequence.
	client := &fixedLLM{response: "[hero, pricing]"}
	p, ledger := newTestPlanner(t, client)

	plan := p.GeneratePlan(context.Background(), &profile.BrandProfile{Brand: "Acme"})

	assert.Equal(t, LayoutPlan{"hero", "pricing"}, plan)
	assert.Equal(t, generator.MaxAttempts, client.callCount())

	var coerced bool
	for _, e := range ledger.Snapshot() {
		if e.Event == "PLAN_COERCED" {
			coerced = true
		}
	}
	assert.True(t, coerced, "expected a PLAN_COERCED ledger entry")
}

func TestGeneratePlan_GarbageFallsBackToStaticPlan(t *testing.T) {
	client := &fixedLLM{response: "I am unable to produce a layout."}
	p, ledger := newTestPlanner(t, client)

	plan := p.GeneratePlan(context.Background(), &profile.BrandProfile{Brand: "Acme"})

	assert.Equal(t, LayoutPlan{"hero", "pricing", "footer"}, plan)

	var fellBack bool
	for _, e := range ledger.Snapshot() {
		if e.Event == "PLAN_FALLBACK" {
			fellBack = true
		}
	}
	assert.True(t, fellBack, "expected a PLAN_FALLBACK ledger entry")
}

func TestGeneratePlan_BackendDownFallsBack(t *testing.T) {
	client := &fixedLLM{err: context.DeadlineExceeded}
	p, _ := newTestPlanner(t, client)

	plan := p.GeneratePlan(context.Background(), &profile.BrandProfile{Brand: "Acme"})
	assert.Equal(t, LayoutPlan{"hero", "pricing", "footer"}, plan)
}

func TestGeneratePlan_PromptCarriesProfile(t *testing.T) {
	client := &capturingPlanLLM{response: `["hero"]`}
	ledger := trace.NewLedger(filepath.Join(t.TempDir(), "trace.json"))
	p := NewPlanner(generator.New(client, ledger), testComponents, ledger)

	brand := &profile.BrandProfile{
		Brand:    "Acme Dental",
		Industry: "dentistry",
		Vibe:     "calm and clinical",
		Services: []profile.Service{{Name: "Whitening"}, {Name: "Implants"}},
	}
	p.GeneratePlan(context.Background(), brand)

	require.NotEmpty(t, client.prompts)
	prompt := client.prompts[0]
	assert.Contains(t, prompt, "Acme Dental")
	assert.Contains(t, prompt, "dentistry")
	assert.Contains(t, prompt, "Whitening, Implants")
	assert.Contains(t, prompt, "calm and clinical")
	assert.Contains(t, prompt, "hero, features, pricing, testimonials, footer")
}

type capturingPlanLLM struct {
	mu       sync.Mutex
	response string
	prompts  []string
}

func (c *capturingPlanLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *capturingPlanLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, userPrompt)
	c.mu.Unlock()
	return c.response, nil
}
