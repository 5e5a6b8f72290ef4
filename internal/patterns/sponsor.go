package patterns

import (
	"regexp"
	"strings"
)

// sponsorAffiliation is A3: "affiliates of"/"funds managed by"/"portfolio
// company(ies) of"/"controlled by" followed by a capitalized name, stopping
// at a sentence terminator or conjunction.
var sponsorAffiliation = compile(NameSponsorAffiliation,
	`(?i:affiliates of|funds managed by|portfolio compan(?:y|ies) of|controlled by)\s+((?:[A-Z][A-Za-z0-9&.,'\-]*\s*){1,6})`)

var sponsorStopWord = regexp.MustCompile(`(?i)^(and|or|which|that|who)$`)

// negatedSponsorPhrase suppresses a sponsor match when found in the
// surrounding ±150-character context.
var negatedSponsorPhrase = regexp.MustCompile(`(?i)not a financial sponsor|no sponsor|non-sponsored|independent of any sponsor`)

// sponsorSeedList is the Tier-1 known private-equity firm list, grounded on
// the original implementation's bank_resolver-style seed approach applied to
// sponsors instead of banks. Matches here are confidence 0.95; pattern-only
// matches (not in this list) are confidence 0.85.
var sponsorSeedList = []struct {
	Canonical string
	Aliases   []string
}{
	{"Blackstone", []string{"Blackstone Inc.", "The Blackstone Group", "Blackstone Group Inc."}},
	{"KKR", []string{"Kohlberg Kravis Roberts", "KKR & Co."}},
	{"Apollo Global Management", []string{"Apollo", "Apollo Global"}},
	{"Carlyle Group", []string{"The Carlyle Group", "Carlyle"}},
	{"TPG", []string{"TPG Inc.", "Texas Pacific Group"}},
	{"Bain Capital", []string{"Bain Capital Private Equity"}},
	{"Warburg Pincus", []string{}},
	{"Silver Lake", []string{"Silver Lake Partners"}},
	{"Vista Equity Partners", []string{"Vista Equity"}},
	{"Thoma Bravo", []string{}},
	{"Advent International", []string{"Advent"}},
	{"CVC Capital Partners", []string{"CVC"}},
	{"Cerberus Capital Management", []string{"Cerberus"}},
	{"Leonard Green & Partners", []string{"Leonard Green"}},
	{"Clayton, Dubilier & Rice", []string{"CD&R"}},
	{"Ares Management", []string{"Ares"}},
	{"Brookfield Asset Management", []string{"Brookfield"}},
	{"EQT", []string{"EQT Partners", "EQT AB"}},
	{"General Atlantic", []string{}},
	{"Permira", []string{}},
}

var sponsorSeedIndex map[string]string

func init() {
	sponsorSeedIndex = make(map[string]string)
	for _, s := range sponsorSeedList {
		sponsorSeedIndex[strings.ToLower(s.Canonical)] = s.Canonical
		for _, a := range s.Aliases {
			sponsorSeedIndex[strings.ToLower(a)] = s.Canonical
		}
	}
}

// SponsorMatch is one A3 hit.
type SponsorMatch struct {
	RawName        string
	Normalized     string
	SourcePattern  string
	Confidence     float64
	ContextSnippet string
	IsNegated      bool
}

const sponsorContextRadius = 150

// MatchSponsors scans text for A3 sponsor-affiliation matches, applying
// seed-list promotion and negation suppression.
func MatchSponsors(text string) []SponsorMatch {
	var out []SponsorMatch
	locs := sponsorAffiliation.Re.FindAllStringSubmatchIndex(text, -1)
	for _, loc := range locs {
		nameStart, nameEnd := loc[2], loc[3]
		raw := trimSponsorName(text[nameStart:nameEnd])
		if raw == "" {
			continue
		}
		lo := loc[0] - sponsorContextRadius
		if lo < 0 {
			lo = 0
		}
		hi := loc[1] + sponsorContextRadius
		if hi > len(text) {
			hi = len(text)
		}
		context := text[lo:hi]
		negated := negatedSponsorPhrase.MatchString(context)

		normalized := strings.ToLower(strings.TrimSpace(raw))
		sourcePattern := NameSponsorAffiliation
		confidence := 0.85
		if canonical, ok := sponsorSeedIndex[normalized]; ok {
			normalized = strings.ToLower(canonical)
			sourcePattern = NameSponsorSeedList
			confidence = 0.95
		}

		out = append(out, SponsorMatch{
			RawName:        raw,
			Normalized:     normalized,
			SourcePattern:  sourcePattern,
			Confidence:     confidence,
			ContextSnippet: context,
			IsNegated:      negated,
		})
	}
	return out
}

func trimSponsorName(raw string) string {
	words := strings.Fields(raw)
	var kept []string
	for _, w := range words {
		bare := strings.TrimRight(w, ".,;")
		if sponsorStopWord.MatchString(bare) {
			break
		}
		kept = append(kept, w)
		if strings.HasSuffix(w, ".") && !corporateSuffixWord.MatchString(w) {
			break
		}
	}
	return strings.TrimRight(strings.Join(kept, " "), ".,;")
}

// IsKnownSponsor reports whether normalized is in the Tier-1 seed list (used
// by the Clusterer to set Deal.UnresolvedSponsorEntity).
func IsKnownSponsor(normalized string) bool {
	_, ok := sponsorSeedIndex[strings.ToLower(normalized)]
	return ok
}
