package patterns

import (
	"strconv"
	"strings"
)

var scaleMultipliers = map[string]float64{
	"million": 1_000_000,
	"m":       1_000_000,
	"mm":      1_000_000,
	"mil":     1_000_000,
	"billion": 1_000_000_000,
	"b":       1_000_000_000,
	"bn":      1_000_000_000,
}

// AmountMatch is one A4 currency-amount hit.
type AmountMatch struct {
	RawText   string
	AmountUSD float64
}

// MatchCurrencyAmounts finds every A4 hit in text: "$" followed by a numeric
// string with optional commas/decimal and an optional scale word, scaled to
// a USD float.
func MatchCurrencyAmounts(text string) []AmountMatch {
	var out []AmountMatch
	matches := currencyAmount.Re.FindAllStringSubmatch(text, -1)
	for _, m := range matches {
		numStr := strings.ReplaceAll(m[1], ",", "")
		val, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			continue
		}
		if scale := strings.ToLower(m[2]); scale != "" {
			if mult, ok := scaleMultipliers[scale]; ok {
				val *= mult
			}
		}
		out = append(out, AmountMatch{RawText: m[0], AmountUSD: val})
	}
	return out
}
