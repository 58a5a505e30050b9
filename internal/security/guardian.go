// Package security treats all generated content as untrusted input. The
// Guardian is the mandatory gate between generation and anything that
// persists or assembles that content.
package security

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"stitcher/internal/config"
	"stitcher/internal/logging"
	"stitcher/internal/trace"
)

// Guardian validates and cleans untrusted generated payloads. Construction
// compiles the configured pattern blacklist once; the policy is immutable for
// the run.
type Guardian struct {
	maxPayloadSize int
	patterns       []compiledPattern
	ledger         *trace.Ledger
	log            *logging.Logger
}

type compiledPattern struct {
	source string
	re     *regexp.Regexp
}

// NewGuardian builds a Guardian from the manifest security section.
// Patterns that fail to compile are skipped with a warning rather than
// failing the run; the rest of the policy still applies.
func NewGuardian(cfg config.SecurityConfig, ledger *trace.Ledger) *Guardian {
	g := &Guardian{
		maxPayloadSize: cfg.MaxPayloadSize,
		ledger:         ledger,
		log:            logging.Get(logging.CategorySecurity),
	}
	for _, p := range cfg.BlacklistedPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			g.log.Warn("skipping uncompilable pattern %q: %v", p, err)
			continue
		}
		g.patterns = append(g.patterns, compiledPattern{source: p, re: re})
	}
	return g
}

// AuditAndSanitize validates data integrity and strips blacklisted vectors.
// A size or encoding violation rejects the payload outright (empty string,
// CRITICAL trace) — the run continues; content loss is visible in the ledger.
// Sanitization is idempotent: clean content passes through unchanged.
func (g *Guardian) AuditAndSanitize(payload any, label string) string {
	content, ok := coerceToString(payload)
	if !ok {
		g.log.Error("integrity check failure for %s: unstringifiable payload", label)
		g.record("INTEGRITY_VIOLATION", trace.LevelCritical, label, nil)
		return ""
	}

	// len() counts UTF-8 bytes; this is the DoS ceiling, a hard stop rather
	// than a truncation.
	if g.maxPayloadSize > 0 && len(content) > g.maxPayloadSize {
		g.log.Error("payload size violation blocked for %s: %d bytes", label, len(content))
		g.record("SIZE_VIOLATION", trace.LevelCritical, label, map[string]any{"bytes": len(content)})
		return ""
	}

	if !utf8.ValidString(content) {
		g.log.Error("encoding violation blocked for %s", label)
		g.record("ENCODING_VIOLATION", trace.LevelCritical, label, nil)
		return ""
	}

	// Stripping a match can splice its surroundings into a fresh match
	// (e.g. "javasjavascript:cript:" collapses to "javascript:"), so the
	// pass repeats until no pattern fires. Every effective replacement
	// shortens the string, so the fixpoint terminates.
	sanitized := content
	for changed := true; changed; {
		changed = false
		for _, p := range g.patterns {
			if !p.re.MatchString(sanitized) {
				continue
			}
			next := p.re.ReplaceAllString(sanitized, "")
			if next == sanitized {
				continue
			}
			g.log.Warn("malicious pattern intercepted in %s: %s", label, p.source)
			g.record("PATTERN_STRIPPED", trace.LevelWarning, label, map[string]any{"pattern": p.source})
			sanitized = next
			changed = true
		}
	}

	return sanitized
}

func (g *Guardian) record(event string, level trace.Level, label string, details map[string]any) {
	if g.ledger == nil {
		return
	}
	if details == nil {
		details = map[string]any{}
	}
	details["component"] = label
	g.ledger.Record("SECURITY_GUARDIAN", event, level, details)
}

// coerceToString turns the supported payload shapes into one string for
// uniform size and pattern checks. Sequences are stringified
// deterministically via JSON.
func coerceToString(payload any) (string, bool) {
	switch v := payload.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case []string:
		data, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(data), true
	case fmt.Stringer:
		return v.String(), true
	case nil:
		return "", true
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return strings.TrimSpace(string(data)), true
	}
}
