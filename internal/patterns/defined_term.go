package patterns

import "strings"

// DefinedTermMatch is one A2 hit: a parenthesized quoted label and its span
// in the source text (used to associate it with the nearest preceding party
// name — the text right before Start is typically "PartyName, a Delaware
// corporation").
type DefinedTermMatch struct {
	Label      string
	Start, End int
}

// MatchDefinedTermRoles finds every A2 defined-term label in text.
func MatchDefinedTermRoles(text string) []DefinedTermMatch {
	var out []DefinedTermMatch
	locs := definedTermRole.Re.FindAllStringSubmatchIndex(text, -1)
	for _, loc := range locs {
		label := text[loc[2]:loc[3]]
		out = append(out, DefinedTermMatch{Label: strings.TrimSpace(label), Start: loc[0], End: loc[1]})
	}
	return out
}
