// Package doctor identifies structural defects in assembled markup and
// applies narrow, targeted patches. Detection and patching are table-driven:
// adding a defect kind means adding one rule, not touching existing ones.
package doctor

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"stitcher/internal/logging"
	"stitcher/internal/trace"
)

// Diagnostic tags one detectable structural defect kind. Unknown tags are
// tolerated by the patcher so future kinds can flow through older code.
type Diagnostic string

const (
	DiagDivMismatch     Diagnostic = "DIV_MISMATCH"
	DiagSectionMismatch Diagnostic = "SECTION_MISMATCH"
	DiagEmptyClasses    Diagnostic = "EMPTY_CLASSES"
	DiagEmptyStyles     Diagnostic = "EMPTY_STYLES"
)

// rule pairs one diagnostic with its detector and its patch. Patches must be
// idempotent and must not reintroduce a diagnostic they did not target.
type rule struct {
	tag    Diagnostic
	detect func(content string) bool
	patch  func(content string) string
}

var (
	emptyClassRe = regexp.MustCompile(`\s?class=(""|'')`)
	emptyStyleRe = regexp.MustCompile(`\s?style=(""|'')`)
)

// diagnosticTable is evaluated in order; RunDiagnostic output order follows it.
var diagnosticTable = []rule{
	{
		tag:    DiagDivMismatch,
		detect: func(c string) bool { o, cl := tagCounts(c, "div"); return o != cl },
		patch:  func(c string) string { return balanceTag(c, "div") },
	},
	{
		tag:    DiagSectionMismatch,
		detect: func(c string) bool { o, cl := tagCounts(c, "section"); return o != cl },
		patch:  func(c string) string { return balanceTag(c, "section") },
	},
	{
		tag:    DiagEmptyClasses,
		detect: func(c string) bool { return emptyClassRe.MatchString(c) },
		patch:  func(c string) string { return emptyClassRe.ReplaceAllString(c, "") },
	},
	{
		tag:    DiagEmptyStyles,
		detect: func(c string) bool { return emptyStyleRe.MatchString(c) },
		patch:  func(c string) string { return emptyStyleRe.ReplaceAllString(c, "") },
	},
}

// Doctor inspects generated markup and applies surgical fixes.
type Doctor struct {
	ledger *trace.Ledger
	log    *logging.Logger
}

// NewDoctor creates a Doctor reporting into the given ledger.
func NewDoctor(ledger *trace.Ledger) *Doctor {
	return &Doctor{
		ledger: ledger,
		log:    logging.Get(logging.CategoryDoctor),
	}
}

// RunDiagnostic inspects content and returns the defects found, in table
// order. It has no side effects beyond telemetry.
func (d *Doctor) RunDiagnostic(content string) []Diagnostic {
	var found []Diagnostic
	for _, r := range diagnosticTable {
		if r.detect(content) {
			found = append(found, r.tag)
		}
	}
	if len(found) > 0 {
		d.log.Warn("diagnostics found: %v", found)
		if d.ledger != nil {
			tags := make([]string, len(found))
			for i, f := range found {
				tags[i] = string(f)
			}
			d.ledger.Record("DOCTOR", "DIAGNOSTICS_FOUND", trace.LevelWarning, map[string]any{"diagnostics": tags})
		}
	}
	return found
}

// AutonomousPatch applies the targeted fix for each diagnostic. Unknown tags
// are skipped; an empty diagnostic set returns the input unchanged.
func (d *Doctor) AutonomousPatch(content string, diagnostics []Diagnostic) string {
	patched := content
	for _, diag := range diagnostics {
		r, ok := lookupRule(diag)
		if !ok {
			d.log.Warn("no patch registered for diagnostic %s", diag)
			continue
		}
		patched = r.patch(patched)
		d.log.Warn("patched %s by surgical injection", diag)
		if d.ledger != nil {
			d.ledger.Record("DOCTOR", "PATCH_APPLIED", trace.LevelWarning, map[string]any{"diagnostic": string(diag)})
		}
	}
	return patched
}

func lookupRule(tag Diagnostic) (rule, bool) {
	for _, r := range diagnosticTable {
		if r.tag == tag {
			return r, true
		}
	}
	return rule{}, false
}

// tagCounts counts opening and closing occurrences of tag using the HTML
// tokenizer, so tags inside attribute values or text do not miscount.
// Self-closing tokens are inherently balanced and ignored.
func tagCounts(content, tag string) (open, closed int) {
	z := html.NewTokenizer(strings.NewReader(content))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return open, closed
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) == tag {
				open++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == tag {
				closed++
			}
		}
	}
}

// balanceTag appends missing closing tags, or prepends missing opening tags,
// until counts match. Unrelated content is left untouched.
func balanceTag(content, tag string) string {
	open, closed := tagCounts(content, tag)
	for open > closed {
		content += "\n</" + tag + ">"
		closed++
	}
	for closed > open {
		content = "<" + tag + ">\n" + content
		open++
	}
	return content
}
