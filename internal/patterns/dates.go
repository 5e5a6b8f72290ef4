package patterns

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	agreementDateDatedAs = compile(NameAgreementDateDatedAs,
		`(?i)dated\s+(?:as of\s+)?([A-Z][a-z]+\s+\d{1,2},?\s+\d{4})`)

	agreementDateEntered = compile(NameAgreementDateEntered,
		`(?i)entered into on\s+([A-Z][a-z]+\s+\d{1,2},?\s+\d{4})`)

	agreementDateOrdinal = compile(NameAgreementDateOrdinal,
		`(?i)the\s+(\d{1,2})(?:st|nd|rd|th)\s+day of\s+([A-Z][a-z]+),?\s+(\d{4})`)

	agreementDateISO = compile(NameAgreementDateISO,
		`\b(\d{4})-(\d{2})-(\d{2})\b`)
)

var monthIndex = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
}

// AgreementDateMatch is a parsed, ISO-normalized agreement date hit.
type AgreementDateMatch struct {
	RawText string
	ISO     string // YYYY-MM-DD
	Pattern string
}

// MatchAgreementDate tries each alternate in priority order and returns the
// first one that both matches AND parses; a match that fails to parse is
// dropped rather than guessed at, per spec §4.2.
func MatchAgreementDate(text string) (AgreementDateMatch, bool) {
	if m := agreementDateDatedAs.Re.FindStringSubmatch(text); m != nil {
		if iso, ok := parseLongDate(m[1]); ok {
			return AgreementDateMatch{RawText: m[0], ISO: iso, Pattern: agreementDateDatedAs.Name}, true
		}
	}
	if m := agreementDateEntered.Re.FindStringSubmatch(text); m != nil {
		if iso, ok := parseLongDate(m[1]); ok {
			return AgreementDateMatch{RawText: m[0], ISO: iso, Pattern: agreementDateEntered.Name}, true
		}
	}
	if m := agreementDateOrdinal.Re.FindStringSubmatch(text); m != nil {
		day, err := strconv.Atoi(m[1])
		if err == nil {
			if month, ok := monthIndex[strings.ToLower(m[2])]; ok {
				year, err := strconv.Atoi(m[3])
				if err == nil {
					return AgreementDateMatch{
						RawText: m[0],
						ISO:     fmt.Sprintf("%04d-%02d-%02d", year, month, day),
						Pattern: agreementDateOrdinal.Name,
					}, true
				}
			}
		}
	}
	if m := agreementDateISO.Re.FindStringSubmatch(text); m != nil {
		year, yerr := strconv.Atoi(m[1])
		month, merr := strconv.Atoi(m[2])
		day, derr := strconv.Atoi(m[3])
		if yerr == nil && merr == nil && derr == nil && month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			return AgreementDateMatch{
				RawText: m[0],
				ISO:     fmt.Sprintf("%04d-%02d-%02d", year, month, day),
				Pattern: agreementDateISO.Name,
			}, true
		}
	}
	return AgreementDateMatch{}, false
}

var monthNameSplit = regexp.MustCompile(`\s+`)

func parseLongDate(raw string) (string, bool) {
	raw = strings.TrimRight(raw, ",")
	parts := monthNameSplit.Split(raw, -1)
	if len(parts) != 3 {
		return "", false
	}
	month, ok := monthIndex[strings.ToLower(parts[0])]
	if !ok {
		return "", false
	}
	day, err := strconv.Atoi(strings.TrimRight(parts[1], ","))
	if err != nil || day < 1 || day > 31 {
		return "", false
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}
