package patterns

import "regexp"

var (
	item101Marker = regexp.MustCompile(`(?i)item\s+1\.01\b.{0,60}?entry into a material definitive agreement`)
	item801Marker = regexp.MustCompile(`(?i)item\s+8\.01\b.{0,40}?other events`)

	definitiveAgreementPhrase = regexp.MustCompile(`(?i)entry into a material definitive agreement|definitive agreement`)
	purchaseAgreementPhrase   = regexp.MustCompile(`(?i)purchase agreement`)
	underwritingAgreementPhrase = regexp.MustCompile(`(?i)underwriting agreement`)

	agreementAndPlanHeader = regexp.MustCompile(`(?i)agreement and plan of merger`)
)

// HasItem101 reports whether text contains the Item 1.01 section marker.
func HasItem101(text string) bool { return item101Marker.MatchString(text) }

// HasItem801 reports whether text contains the Item 8.01 section marker.
func HasItem801(text string) bool { return item801Marker.MatchString(text) }

// HasDefinitiveAgreementPhrase reports a definitive-agreement phrase hit.
func HasDefinitiveAgreementPhrase(text string) bool { return definitiveAgreementPhrase.MatchString(text) }

// HasPurchaseOrUnderwritingAgreement reports a purchase/underwriting agreement phrase hit.
func HasPurchaseOrUnderwritingAgreement(text string) bool {
	return purchaseAgreementPhrase.MatchString(text) || underwritingAgreementPhrase.MatchString(text)
}

// HasAgreementAndPlanHeader reports the "AGREEMENT AND PLAN OF MERGER" header.
func HasAgreementAndPlanHeader(text string) bool { return agreementAndPlanHeader.MatchString(text) }

// materialKeywords is the material-exhibit keyword set used to mark ex-10.*
// exhibits material (spec §4.4, §7).
var materialKeywords = regexp.MustCompile(`(?i)credit|commitment|bridge|loan|indenture|financing`)

// IsMaterialDescription reports whether an exhibit description matches the
// material-keyword set.
func IsMaterialDescription(description string) bool { return materialKeywords.MatchString(description) }

var equityCommitmentPhrase = regexp.MustCompile(`(?i)equity commitment`)

// IsEquityCommitmentDescription reports whether a description implies an
// equity commitment letter.
func IsEquityCommitmentDescription(description string) bool {
	return equityCommitmentPhrase.MatchString(description)
}

var backgroundOfMergerHeading = regexp.MustCompile(`(?i)background of the merger|opinion of\b`)

// HasBackgroundOfMergerSection reports the supplemented proxy-statement
// section heading (see SPEC_FULL §4.4).
func HasBackgroundOfMergerSection(text string) bool { return backgroundOfMergerHeading.MatchString(text) }

var fairnessOpinionSentence = regexp.MustCompile(`(?i)[^.]*\b(opinion|fairness|financial advisor)\b[^.]*\.`)

// FindFairnessOpinionSentences returns every sentence mentioning opinion,
// fairness, or financial advisor language.
func FindFairnessOpinionSentences(text string) []string {
	return fairnessOpinionSentence.FindAllString(text, -1)
}
