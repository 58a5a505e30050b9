// Package design handles brand-to-visual translation: parallel synthesis of
// candidate design directions, deterministic fallbacks, operator overrides,
// and persistence of the approved token.
package design

import "fmt"

// Colors holds the color roles of one design direction.
type Colors struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Background string `json:"bg"`
	Text       string `json:"text"`
}

// Typography holds the typographic roles.
type Typography struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Token describes one visual direction.
type Token struct {
	VariantName  string     `json:"variant_name"`
	Colors       Colors     `json:"colors"`
	Typography   Typography `json:"typography"`
	BorderRadius string     `json:"border_radius"`
	// ExternalLink is set only on operator-supplied reference overrides.
	ExternalLink string `json:"external_link,omitempty"`
}

// VariantSet is an ordered sequence of tokens; index equals generation
// request index and stays stable across retries and fan-out.
type VariantSet []Token

// FallbackToken returns the deterministic offline token for slot i. It keeps
// the pipeline alive when the backend is down, and slot 0 doubles as the
// documented default when no cached design exists.
func FallbackToken(i int) Token {
	return Token{
		VariantName: fmt.Sprintf("Stable_Default_%d", i),
		Colors: Colors{
			Primary:    "#00FF41",
			Secondary:  "#1A1A1A",
			Background: "#0D0D0D",
			Text:       "#FFFFFF",
		},
		Typography: Typography{
			Heading: "JetBrains Mono",
			Body:    "Inter",
		},
		BorderRadius: "4px",
	}
}

// IngestExternalReference wraps an operator-supplied reference descriptor as
// a token, bypassing generation entirely. The descriptor is carried verbatim
// for the assembly collaborator to follow.
func IngestExternalReference(reference string) Token {
	return Token{
		VariantName: "Human_Selection_Override",
		Colors: Colors{
			Primary:    "FOLLOW_REFERENCE",
			Secondary:  "FOLLOW_REFERENCE",
			Background: "FOLLOW_REFERENCE",
			Text:       "FOLLOW_REFERENCE",
		},
		Typography: Typography{
			Heading: "REPLICATE_REFERENCE",
			Body:    "REPLICATE_REFERENCE",
		},
		BorderRadius: "MATCH_REFERENCE",
		ExternalLink: reference,
	}
}
