package extract

import (
	"strings"
	"testing"

	"github.com/txplain/txplain/internal/models"
)

func TestFromMergerAgreementAssignsRolesFromDefinedTerms(t *testing.T) {
	preamble := `AGREEMENT AND PLAN OF MERGER

This Agreement and Plan of Merger is entered into by and among Acquirer Holdings, Inc., a Delaware corporation ("Parent"), Merger Sub I, Inc., a Delaware corporation, and Target Operating Company, Inc., a Delaware corporation (the "Company").`

	filing := &models.Filing{ID: 1, FormType: "8-K"}
	exhibit := &models.Exhibit{ID: 2, FilingID: 1, Type: models.ExhibitTypeMergerAgreement, NormalizedText: preamble}

	result := fromMergerAgreement(filing, exhibit)
	if len(result.Alerts) != 0 {
		t.Fatalf("expected no alerts, got %+v", result.Alerts)
	}
	if len(result.Facts) == 0 {
		t.Fatalf("expected party facts")
	}

	roles := make(map[string]string)
	for _, f := range result.Facts {
		if p, ok := f.AsPartyDefinition(); ok {
			roles[p.PartyNameNormalized] = p.RoleLabel
		}
	}

	if roles["target operating company"] != "Company" {
		t.Errorf("expected target to resolve to Company, got %q (%v)", roles["target operating company"], roles)
	}
}

func TestFromMergerAgreementAlertsOnMissingPartyList(t *testing.T) {
	preamble := "AGREEMENT AND PLAN OF MERGER\n\nThis is a preamble with no recognizable party-list phrasing whatsoever."
	filing := &models.Filing{ID: 1}
	exhibit := &models.Exhibit{ID: 2, FilingID: 1, Type: models.ExhibitTypeMergerAgreement, NormalizedText: preamble}

	result := fromMergerAgreement(filing, exhibit)
	if len(result.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(result.Alerts))
	}
	if result.Alerts[0].Type != models.AlertTypeFailedPrivateTargetExtraction {
		t.Errorf("got alert type %q", result.Alerts[0].Type)
	}
	if result.Alerts[0].PreambleHash == "" {
		t.Error("expected a non-empty preamble hash")
	}
}

func TestFrom8KFinancingPrefersDebtInstrumentOverAdvisorMention(t *testing.T) {
	body := `Item 8.01 Other Events.

On the closing date, the Company issued $500 million aggregate principal amount of 6.000% Senior Notes due 2031, with Goldman Sachs and Morgan Stanley acting as representatives of the several underwriters.`
	filing := &models.Filing{ID: 9, FormType: "8-K", NormalizedText: body}

	result := from8K(filing)

	var sawFinancing bool
	for _, f := range result.Facts {
		if f.FactType == models.FactTypeFinancingMention {
			sawFinancing = true
			payload, _ := f.AsFinancingMention()
			if payload.InstrumentType != "bond" {
				t.Errorf("expected bond instrument type, got %q", payload.InstrumentType)
			}
			if len(payload.Participants) == 0 {
				t.Error("expected underwriter participants attached to the financing mention")
			}
		}
		if f.FactType == models.FactTypeAdvisorMention {
			t.Errorf("did not expect a standalone advisor mention when a debt instrument was found: %+v", f)
		}
	}
	if !sawFinancing {
		t.Fatal("expected a financing mention fact")
	}
}

func TestFrom8KFallsBackToAdvisorMentionWithoutDebtInstrument(t *testing.T) {
	body := `Item 8.01 Other Events.

The underwriting agreement was entered into with Goldman Sachs and Morgan Stanley as representatives of the several underwriters, relating to a public offering of common stock.`
	filing := &models.Filing{ID: 9, FormType: "8-K", NormalizedText: body}

	result := from8K(filing)

	var advisorCount int
	for _, f := range result.Facts {
		if f.FactType == models.FactTypeAdvisorMention {
			advisorCount++
		}
	}
	if advisorCount == 0 {
		t.Fatal("expected advisor mentions when no debt instrument is present")
	}
}

func TestFrom8KDedupsItem801AgainstPurchaseAgreementPhrase(t *testing.T) {
	body := `Item 8.01 Other Events.

The Company announced $250 million aggregate principal amount of Senior Notes due 2029 pursuant to an underwriting agreement with the representatives of the several underwriters named therein.`
	filing := &models.Filing{ID: 3, FormType: "8-K", NormalizedText: body}

	result := from8K(filing)

	seen := make(map[string]int)
	for _, f := range result.Facts {
		seen[f.EvidenceSnippet[:min(len(f.EvidenceSnippet), 100)]]++
	}
	for snippet, count := range seen {
		if count > 1 {
			t.Errorf("expected evidence-prefix dedup to collapse duplicate facts, got %d for %q", count, snippet)
		}
	}
}

func TestSponsorFactsDropsNegatedMatches(t *testing.T) {
	text := "The Company confirmed this is not a financial sponsor transaction, though funds managed by Example Capital were mentioned in passing."
	result := sponsorFacts(text, 1, 2, "press_release")
	for _, f := range result.Facts {
		p, _ := f.AsSponsorMention()
		if p.IsNegated {
			t.Errorf("negated sponsor match should have been dropped: %+v", p)
		}
	}
}

func TestFromProxyStatementRequiresBackgroundSection(t *testing.T) {
	filing := &models.Filing{ID: 1}
	exhibit := &models.Exhibit{ID: 2, FilingID: 1, Type: models.ExhibitTypeProxyStatement, NormalizedText: "Nothing relevant here."}
	result := fromProxyStatement(filing, exhibit)
	if len(result.Facts) != 0 {
		t.Errorf("expected no facts without a Background of the Merger section, got %+v", result.Facts)
	}
}

func TestExtractTableParticipantsFindsBankRoleTriples(t *testing.T) {
	html := `<table><tr><th>Bank</th><th>Role</th></tr><tr><td>JPMorgan Chase Bank, N.A.</td><td>Administrative Agent</td></tr></table>`
	triples := ExtractTableParticipants(html)
	if len(triples) != 1 {
		t.Fatalf("expected 1 triple, got %d", len(triples))
	}
	if !strings.Contains(triples[0].BankNameRaw, "JPMorgan") {
		t.Errorf("got bank %q", triples[0].BankNameRaw)
	}
}

func TestFrom8KFinancingMergesTableParticipantsWithTextUnderwriters(t *testing.T) {
	body := `Item 8.01 Other Events.

On the closing date, the Company issued $500 million aggregate principal amount of 6.000% Senior Notes due 2031, with Goldman Sachs acting as representative of the several underwriters.

<table><tr><th>Underwriter</th><th>Principal Amount</th></tr>
<tr><td>J.P. Morgan Securities LLC</td><td>$150,000,000</td></tr>
<tr><td>Barclays Capital Inc.</td><td>$100,000,000</td></tr></table>`
	filing := &models.Filing{ID: 9, FormType: "8-K", RawMarkup: []byte(body), NormalizedText: body}

	result := from8K(filing)

	var participants []models.FinancingParticipantMention
	for _, f := range result.Facts {
		if f.FactType == models.FactTypeFinancingMention {
			payload, _ := f.AsFinancingMention()
			participants = append(participants, payload.Participants...)
		}
	}
	if len(participants) < 3 {
		t.Fatalf("expected at least 3 participants (1 text + 2 table), got %d: %+v", len(participants), participants)
	}

	var sawTableSource bool
	for _, p := range participants {
		if p.EvidenceSource == "table" {
			sawTableSource = true
		}
		if p.Role == "" {
			t.Errorf("expected a non-empty role for participant %+v", p)
		}
	}
	if !sawTableSource {
		t.Error("expected at least one participant sourced from the table parser")
	}
}

func TestFromExhibitRoutesUnderwritingToFinancingExtraction(t *testing.T) {
	body := `This Underwriting Agreement relates to $1,000,000,000 aggregate principal amount of Senior Notes due 2034.

<table><tr><th>Lender</th><th>Commitment</th><th>Role</th></tr>
<tr><td>JPMorgan Chase Bank, N.A.</td><td>$1,000,000,000</td><td>Administrative Agent and Joint Lead Arranger</td></tr></table>`
	filing := &models.Filing{ID: 1}
	exhibit := &models.Exhibit{ID: 2, FilingID: 1, Type: models.ExhibitTypeUnderwriting, Description: "Underwriting Agreement", RawContent: []byte(body), NormalizedText: body}

	result := FromExhibit(filing, exhibit)

	var found bool
	for _, f := range result.Facts {
		if f.FactType != models.FactTypeFinancingMention {
			continue
		}
		payload, _ := f.AsFinancingMention()
		for _, p := range payload.Participants {
			if strings.Contains(p.BankNameRaw, "JPMorgan") {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected a table-sourced JPMorgan participant from the underwriting exhibit, got %+v", result.Facts)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
