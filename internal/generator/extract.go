package generator

import "strings"

// ExtractJSON pulls the most plausible JSON document out of raw model text:
// a fenced code block first, then the first balanced object, then the first
// balanced array. Returns "" when nothing JSON-shaped is present.
func ExtractJSON(s string) string {
	if block := extractFencedBlock(s); block != "" {
		return block
	}
	if obj := extractBalanced(s, '{', '}'); obj != "" {
		return obj
	}
	return extractBalanced(s, '[', ']')
}

// extractFencedBlock extracts the body of a ```json ... ``` (or bare ```)
// code fence.
func extractFencedBlock(s string) string {
	start := strings.Index(s, "```json")
	if start == -1 {
		start = strings.Index(s, "```")
		if start == -1 {
			return ""
		}
	}

	rest := s[start:]
	nl := strings.Index(rest, "\n")
	if nl == -1 {
		return ""
	}
	body := rest[nl+1:]

	end := strings.Index(body, "```")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(body[:end])
}

// extractBalanced returns the first balanced opener..closer span.
func extractBalanced(s string, opener, closer byte) string {
	start := strings.IndexByte(s, opener)
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
