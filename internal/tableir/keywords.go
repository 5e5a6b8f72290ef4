package tableir

import (
	"regexp"
	"strings"
)

// roleKeywords is the fixed role-keyword set from §4.3 rule 3.
var roleKeywords = []string{
	"bookrunner", "joint bookrunner", "active bookrunner", "passive bookrunner",
	"co-manager", "lead manager", "underwriter", "arranger",
	"joint lead arranger", "mandated lead arranger",
	"administrative agent", "syndication agent", "documentation agent",
	"collateral agent", "paying agent", "financial advisor", "fairness opinion",
}

// MatchesRoleKeyword reports whether text contains any role-keyword set member.
func MatchesRoleKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range roleKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// headerRoleFallback maps a header cell's text to the fallback role keyword
// used when no role column and no in-row role keyword is found (§4.3 rule 5).
// "bank"/"institution" headings fall back to the generic "participant" label.
var headerRoleFallback = []struct {
	headings []string
	role     string
}{
	{[]string{"underwriter"}, "underwriter"},
	{[]string{"lender"}, "lender"},
	{[]string{"arranger"}, "arranger"},
	{[]string{"bank", "institution"}, "participant"},
}

// FallbackRoleForHeader inspects the table's header text for a fallback role
// keyword; returns "" if none of the fixed fallback labels appear.
func FallbackRoleForHeader(headerText string) string {
	lower := strings.ToLower(headerText)
	for _, f := range headerRoleFallback {
		for _, h := range f.headings {
			if strings.Contains(lower, h) {
				return f.role
			}
		}
	}
	return ""
}

// bigBankNames is the large-global-bank component of the bank-name regex
// set from §4.3 rule 4.
var bigBankNames = []string{
	"JPMorgan", "J.P. Morgan", "Goldman Sachs", "Morgan Stanley", "Bank of America",
	"Merrill Lynch", "Citigroup", "Citi", "Wells Fargo", "Barclays", "Credit Suisse",
	"Deutsche Bank", "UBS", "HSBC", "BNP Paribas", "Societe Generale", "Mizuho",
	"MUFG", "Sumitomo Mitsui", "RBC Capital", "Royal Bank of Canada", "BMO Capital",
	"TD Securities", "Jefferies", "Evercore", "Lazard", "Moelis", "Houlihan Lokey",
	"Nomura", "Santander", "BBVA", "Scotiabank", "PNC", "Truist", "Fifth Third",
	"KeyBanc", "SunTrust", "Regions Bank",
}

var bigBankNamesLower []string

func init() {
	for _, n := range bigBankNames {
		bigBankNamesLower = append(bigBankNamesLower, strings.ToLower(n))
	}
}

// bankSuffixPattern is the suffix-pattern component of the bank-name regex
// set: "LLC|Inc.|N.A.|Bank|Securities|Capital".
var bankSuffixPattern = regexp.MustCompile(`(?i)\b(LLC|Inc\.?|N\.A\.|Bank|Securities|Capital)\b`)

// MatchesBankName reports whether text hits the big-bank-name list or the
// corporate-suffix pattern (and is not purely numeric).
func MatchesBankName(text string) bool {
	if isNumericOnly(text) {
		return false
	}
	lower := strings.ToLower(text)
	for _, n := range bigBankNamesLower {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return bankSuffixPattern.MatchString(text)
}
