package patterns

import (
	"regexp"
	"strconv"
)

var debtInstrumentPattern = compile(NameDebtInstrument,
	`(?i)\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(million|billion|mm|mil|bn|m|b)?\s+(?:aggregate principal amount of\s+)?(?:[\d.]+%\s+)?(Senior Notes|Senior Subordinated Notes|Debentures|Senior Secured Notes|Term Loan B|Term Loan A|Term Loan|Revolving Credit Facility|Revolver|Bridge Loan|Bridge Facility)(?:\s+due\s+(\d{4}))?`)

var instrumentTypeTable = map[string]string{
	"senior notes":              "bond",
	"senior subordinated notes": "bond",
	"senior secured notes":      "bond",
	"debentures":                "bond",
	"term loan b":               "term_loan",
	"term loan a":               "term_loan",
	"term loan":                 "term_loan",
	"revolving credit facility": "rcf",
	"revolver":                  "rcf",
	"bridge loan":               "bridge",
	"bridge facility":           "bridge",
}

var wsCollapse = regexp.MustCompile(`\s+`)

// DebtInstrumentMatch is one debt/credit-facility instrument hit.
type DebtInstrumentMatch struct {
	RawText        string
	AmountUSD      *float64
	InstrumentNoun string
	InstrumentType string // coarse label from instrumentTypeTable
	MaturityYear   string
}

// MatchDebtInstruments finds every debt-instrument / credit-facility hit in text.
func MatchDebtInstruments(text string) []DebtInstrumentMatch {
	var out []DebtInstrumentMatch
	matches := debtInstrumentPattern.Re.FindAllStringSubmatch(text, -1)
	for _, m := range matches {
		var amount *float64
		if numStr := m[1]; numStr != "" {
			if val, err := strconv.ParseFloat(removeCommas(numStr), 64); err == nil {
				if scale := m[2]; scale != "" {
					if mult, ok := scaleMultipliers[toLowerASCII(scale)]; ok {
						val *= mult
					}
				}
				amount = &val
			}
		}
		noun := m[3]
		key := toLowerASCII(wsCollapse.ReplaceAllString(noun, " "))
		out = append(out, DebtInstrumentMatch{
			RawText:        m[0],
			AmountUSD:      amount,
			InstrumentNoun: noun,
			InstrumentType: instrumentTypeTable[key],
			MaturityYear:   m[4],
		})
	}
	return out
}

func removeCommas(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != ',' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
