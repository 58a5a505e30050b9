// Package generator wraps one generative call with schema validation and a
// bounded self-repair retry loop. Malformed output is fed back to the model
// for correction; the attempt budget is hard and exhausting it is an error
// the caller must answer with a static fallback.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"stitcher/internal/llm"
	"stitcher/internal/logging"
	"stitcher/internal/trace"
)

// MaxAttempts is the total generative-call budget per request:
// one initial attempt plus two repairs.
const MaxAttempts = 3

// ErrUnrecoverable is returned when the attempt budget is exhausted or the
// backend failed in a way retrying cannot fix. Callers substitute their
// static fallback; the pipeline never dies here.
var ErrUnrecoverable = errors.New("generation unrecoverable")

// Request describes one structured-generation request.
type Request struct {
	// Agent names the requesting component in the ledger.
	Agent string
	// Label identifies the slot/purpose for trace details (e.g. "variant_3").
	Label string
	// System and Prompt form the initial generative call.
	System string
	Prompt string
}

// Generator drives the attempt loop against one backend client.
type Generator struct {
	client llm.Client
	ledger *trace.Ledger
	log    *logging.Logger
}

// New creates a Generator.
func New(client llm.Client, ledger *trace.Ledger) *Generator {
	return &Generator{
		client: client,
		ledger: ledger,
		log:    logging.Get(logging.CategoryGenerator),
	}
}

// SynthesizeJSON runs the generate-parse-repair loop and unmarshals the
// model's JSON into out. The attempt counter is plain loop data, so the
// budget is visible and stack-safe. Every attempt, success or failure,
// lands one ledger entry tagged with the attempt number.
func (g *Generator) SynthesizeJSON(ctx context.Context, req Request, out any) error {
	_, err := g.Synthesize(ctx, req, out)
	return err
}

// Synthesize is SynthesizeJSON plus the model's last raw output. On budget
// exhaustion the raw text lets callers attempt their own salvage coercion
// before falling back.
func (g *Generator) Synthesize(ctx context.Context, req Request, out any) (string, error) {
	if g.client == nil {
		g.record(req, 0, "NO_BACKEND", trace.LevelCritical, "")
		return "", fmt.Errorf("%w: no backend client configured", ErrUnrecoverable)
	}

	var lastRaw, lastParseErr string

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		prompt := req.Prompt
		if attempt > 0 && lastRaw != "" {
			prompt = buildRepairPrompt(req.Label, lastRaw, lastParseErr)
			g.log.Warn("%s: JSON corrupt, healing attempt %d", req.Label, attempt)
			g.record(req, attempt, "SELF_HEALING_TRIGGER", trace.LevelWarning, lastParseErr)
		}

		raw, err := g.client.CompleteWithSystem(ctx, req.System, prompt)
		if err != nil {
			g.log.Error("%s: backend call failed on attempt %d: %v", req.Label, attempt, err)
			g.record(req, attempt, "BACKEND_FAILURE", trace.LevelWarning, err.Error())
			if !llm.IsRetryable(err) {
				return lastRaw, fmt.Errorf("%w: %v", ErrUnrecoverable, err)
			}
			// Transient backend failure consumes budget like a parse failure.
			// There is no bad output to repair, so the next attempt reuses
			// the original prompt.
			lastRaw, lastParseErr = "", ""
			continue
		}

		candidate := ExtractJSON(raw)
		if candidate == "" {
			candidate = raw
		}
		if err := json.Unmarshal([]byte(candidate), out); err != nil {
			g.log.Warn("%s: parse failure on attempt %d: %v", req.Label, attempt, err)
			g.record(req, attempt, "PARSE_FAILURE", trace.LevelWarning, err.Error())
			lastRaw, lastParseErr = raw, err.Error()
			continue
		}

		g.record(req, attempt, "SYNTHESIS_SUCCESS", trace.LevelInfo, "")
		return raw, nil
	}

	// The verdict entry carries the total attempt count, past the 0-based
	// numbering of the per-attempt entries, so the audit trail separates
	// the last attempt from the exhaustion itself.
	g.record(req, MaxAttempts, "BUDGET_EXHAUSTED", trace.LevelCritical, lastParseErr)
	return lastRaw, fmt.Errorf("%w: %d attempts exhausted for %s", ErrUnrecoverable, MaxAttempts, req.Label)
}

func (g *Generator) record(req Request, attempt int, event string, level trace.Level, detail string) {
	if g.ledger == nil {
		return
	}
	details := map[string]any{
		"label":   req.Label,
		"attempt": attempt,
	}
	if detail != "" {
		details["error"] = detail
	}
	g.ledger.Record(req.Agent, event, level, details)
}

// buildRepairPrompt feeds the parse error and the malformed output back to
// the model; its sole task is correction.
func buildRepairPrompt(label, badOutput, parseErr string) string {
	return fmt.Sprintf(
		"Your previous JSON for %s failed parsing.\nERROR: %s\nBAD_OUTPUT: %s\nFIX: Return ONLY the corrected JSON, nothing else.",
		label, parseErr, badOutput,
	)
}
