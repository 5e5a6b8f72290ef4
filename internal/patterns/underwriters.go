package patterns

import (
	"regexp"
	"strings"
)

var (
	underwriterRepresentatives = compile(NameUnderwriterRepresent,
		`(?is)((?:[A-Z][A-Za-z0-9&.,'\- ]+?(?:,\s*|\s+and\s+))+[A-Z][A-Za-z0-9&.,'\- ]+?)\s*,?\s+as\s+(?:representatives? of the several underwriters|joint bookrunning managers|joint lead managers|representatives of the underwriters)`)

	underwriterSimple = compile(NameUnderwriterSimple,
		`(?i)underwriters?\s+(?:are|include)\s+((?:[A-Z][A-Za-z0-9&.,'\- ]+?(?:,\s*|\s+and\s+))+[A-Z][A-Za-z0-9&.,'\- ]+)`)
)

var underwriterStopwords = regexp.MustCompile(`(?i)^(the|several|certain|other)$`)

// MatchUnderwriters finds the span of underwriter/lead-manager names via
// both patterns and splits it into individual bank names.
func MatchUnderwriters(text string) (names []string, pattern string) {
	if m := underwriterRepresentatives.Re.FindStringSubmatch(text); m != nil {
		return splitUnderwriterSpan(m[1]), underwriterRepresentatives.Name
	}
	if m := underwriterSimple.Re.FindStringSubmatch(text); m != nil {
		return splitUnderwriterSpan(m[1]), underwriterSimple.Name
	}
	return nil, ""
}

func splitUnderwriterSpan(span string) []string {
	span = strings.ReplaceAll(span, " and ", ", ")
	raw := strings.Split(span, ",")
	var out []string
	for _, r := range raw {
		name := strings.TrimSpace(r)
		if name == "" || underwriterStopwords.MatchString(name) {
			continue
		}
		out = append(out, name)
	}
	return out
}
