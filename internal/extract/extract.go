// Package extract implements the atomic-fact extractor: given a Filing and
// its Exhibits, it emits AtomicFacts and Alerts. It must never construct or
// mutate a Deal — clustering facts into deals is internal/cluster's job.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/normalize"
	"github.com/txplain/txplain/internal/patterns"
	"github.com/txplain/txplain/internal/tableir"
)

// Result is what one filing/exhibit extraction pass produces.
type Result struct {
	Facts  []*models.AtomicFact
	Alerts []*models.Alert
}

func (r *Result) append(other Result) {
	r.Facts = append(r.Facts, other.Facts...)
	r.Alerts = append(r.Alerts, other.Alerts...)
}

const preambleChars = 5000

// FromFiling extracts facts from an 8-K's own body plus every exhibit
// attached to it.
func FromFiling(filing *models.Filing) Result {
	var result Result

	if filing.FormType == "8-K" || filing.FormType == "8-K/A" {
		result.append(from8K(filing))
	}

	for _, exhibit := range filing.Exhibits {
		result.append(FromExhibit(filing, exhibit))
	}

	return result
}

// FromExhibit routes a single exhibit to the extractor for its type.
func FromExhibit(filing *models.Filing, exhibit *models.Exhibit) Result {
	switch exhibit.Type {
	case models.ExhibitTypeMergerAgreement:
		return fromMergerAgreement(filing, exhibit)
	case models.ExhibitTypeCreditAgreement, models.ExhibitTypeEquityCommitment:
		return fromEx10(filing, exhibit)
	case models.ExhibitTypePressRelease:
		return fromPressRelease(filing, exhibit)
	case models.ExhibitTypeProxyStatement:
		return fromProxyStatement(filing, exhibit)
	case models.ExhibitTypeUnderwriting:
		return fromUnderwritingAgreement(filing, exhibit)
	default:
		return Result{}
	}
}

func textOf(raw []byte, cached string) string {
	if cached != "" {
		return cached
	}
	text, err := normalize.Text(raw)
	if err != nil {
		return ""
	}
	return text
}

// from8K handles the 8-K main-document dispatch: Item 1.01 drives party and
// date extraction, Item 8.01 (or a bare purchase/underwriting phrase
// anywhere in the body) drives financing extraction, with evidence-prefix
// dedup between the two financing paths.
func from8K(filing *models.Filing) Result {
	var result Result
	text := textOf(filing.RawMarkup, filing.NormalizedText)
	if text == "" {
		return result
	}

	if patterns.HasItem101(text) && patterns.HasDefinitiveAgreementPhrase(text) {
		result.append(extractPartyMentions(text, filing.ID, "item_1.01"))
		if m, ok := patterns.MatchAgreementDate(text); ok {
			result.Facts = append(result.Facts, dealDateFact(filing.ID, 0, "item_1.01", m))
		}
	}

	if patterns.HasItem801(text) {
		result.append(extractFinancingMentions(filing.ID, 0, filing.RawMarkup, text, "item_8.01"))
	}

	if patterns.HasPurchaseOrUnderwritingAgreement(text) {
		extra := extractFinancingMentions(filing.ID, 0, filing.RawMarkup, text, "item_8.01")
		seen := make(map[string]bool, len(result.Facts))
		for _, f := range result.Facts {
			seen[prefix(f.EvidenceSnippet, 100)] = true
		}
		for _, f := range extra.Facts {
			key := prefix(f.EvidenceSnippet, 100)
			if !seen[key] {
				result.Facts = append(result.Facts, f)
				seen[key] = true
			}
		}
		result.Alerts = append(result.Alerts, extra.Alerts...)
	}

	return result
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// extractFinancingMentions is the financing extraction path shared by the
// 8-K item_8.01/purchase-agreement dispatch and the underwriting-agreement
// exhibit dispatch: it runs debt-instrument patterns over text and attaches
// every underwriter found in the same document as a participant, merging
// both the text-pattern hits and any bank/role/evidence triples the table
// parser found in the same raw document.
func extractFinancingMentions(filingID, exhibitID int64, rawHTML []byte, text, section string) Result {
	var result Result

	instruments := patterns.MatchDebtInstruments(text)
	uws, uwPattern := patterns.MatchUnderwriters(text)

	var participants []models.FinancingParticipantMention
	for _, name := range uws {
		participants = append(participants, models.FinancingParticipantMention{
			BankNameRaw:        name,
			BankNameNormalized: patterns.NormalizeParty(name),
			Role:               "underwriter",
			EvidenceSource:     "text",
		})
	}
	participants = append(participants, financingParticipantsFromTables(string(rawHTML))...)
	participants = dedupParticipants(participants)

	if len(instruments) > 0 {
		for _, inst := range instruments {
			payload := models.FinancingMentionPayload{
				InstrumentType:    inst.InstrumentType,
				InstrumentSubtype: inst.InstrumentNoun,
				AmountUSD:         inst.AmountUSD,
				AmountRaw:         inst.RawText,
				Currency:          "USD",
				Participants:      participants,
				Maturity:          inst.MaturityYear,
			}
			result.Facts = append(result.Facts, models.NewFinancingMentionFact(
				filingID, exhibitID, inst.RawText, payload, patterns.NameDebtInstrument, 0.85, section,
			))
		}
	} else {
		for _, p := range participants {
			payload := models.AdvisorMentionPayload{
				BankNameRaw:        p.BankNameRaw,
				BankNameNormalized: p.BankNameNormalized,
				Role:               "underwriter",
				ClientSide:         "issuer",
			}
			evidence := p.EvidenceSnippet
			if evidence == "" {
				evidence = p.BankNameRaw
			}
			pattern := uwPattern
			if pattern == "" {
				pattern = "table"
			}
			result.Facts = append(result.Facts, models.NewAdvisorMentionFact(
				filingID, exhibitID, evidence, payload, pattern, 0.8, section,
			))
		}
	}

	if m, ok := patterns.MatchAgreementDate(text); ok {
		result.Facts = append(result.Facts, dealDateFact(filingID, exhibitID, section, m))
	}

	return result
}

// financingParticipantsFromTables converts every (bank, role, evidence)
// triple the table parser finds in rawHTML into a participant mention
// sourced from "table" rather than free text.
func financingParticipantsFromTables(rawHTML string) []models.FinancingParticipantMention {
	var out []models.FinancingParticipantMention
	for _, triple := range ExtractTableParticipants(rawHTML) {
		row, col := triple.Row, triple.Col
		out = append(out, models.FinancingParticipantMention{
			BankNameRaw:        triple.BankNameRaw,
			BankNameNormalized: patterns.NormalizeParty(triple.BankNameRaw),
			Role:               triple.Role,
			EvidenceSnippet:    triple.Evidence,
			EvidenceSource:     "table",
			TableRow:           &row,
			TableCol:           &col,
		})
	}
	return out
}

// dedupParticipants drops a participant already seen under the same
// normalized-bank-name/role pair, keeping the first occurrence (text
// patterns are matched before table triples, so a bank found both ways
// keeps its free-text evidence).
func dedupParticipants(participants []models.FinancingParticipantMention) []models.FinancingParticipantMention {
	seen := make(map[string]bool, len(participants))
	out := participants[:0:0]
	for _, p := range participants {
		key := p.BankNameNormalized + "|" + strings.ToLower(p.Role)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// fromMergerAgreement is the primary source for private-target extraction:
// EX-2.1's preamble carries the authoritative party list.
func fromMergerAgreement(filing *models.Filing, exhibit *models.Exhibit) Result {
	var result Result
	text := textOf(exhibit.RawContent, exhibit.NormalizedText)
	if text == "" {
		return result
	}
	preamble := prefix(text, preambleChars)

	if !patterns.HasAgreementAndPlanHeader(preamble) {
		return result
	}

	span, patternName, ok := patterns.MatchPartyList(preamble)
	if !ok {
		result.Alerts = append(result.Alerts, failedExtractionAlert(filing.ID, exhibit.ID, preamble))
		return appendAgreementDate(result, filing.ID, exhibit.ID, preamble)
	}

	parties := patterns.SplitPartyList(span)
	roleMap := buildRoleMap(preamble)

	for i, raw := range parties {
		normalized := patterns.NormalizeParty(raw)
		display := patterns.DisplayParty(raw)

		roleLabel, hasRole := roleMap[normalized]
		confidence := 0.6
		if hasRole {
			confidence = 0.9
		} else {
			roleLabel = fallbackRoleLabel(parties, i)
		}
		if roleLabel == "" {
			roleLabel = "Unknown"
		}

		fact := models.NewPartyDefinitionFact(
			filing.ID, exhibit.ID, prefix(span, 500),
			models.PartyDefinitionPayload{
				PartyNameRaw:        raw,
				PartyNameNormalized: normalized,
				PartyNameDisplay:    display,
				RoleLabel:           roleLabel,
			},
			patternName, confidence, "preamble",
		)
		result.Facts = append(result.Facts, fact)
	}

	return appendAgreementDate(result, filing.ID, exhibit.ID, preamble)
}

// fallbackRoleLabel implements the "last of 3 is usually the target, first
// of 2+ is usually the acquirer" heuristic used when no defined-term label
// was found for a party.
func fallbackRoleLabel(parties []string, i int) string {
	switch {
	case len(parties) == 3 && i == 2:
		return "Company"
	case len(parties) >= 2 && i == 0:
		return "Parent"
	default:
		return ""
	}
}

// buildRoleMap pairs each A2 defined-term label with the party-name clause
// immediately preceding it in text, keyed by normalized party name.
func buildRoleMap(text string) map[string]string {
	out := make(map[string]string)
	for _, m := range patterns.MatchDefinedTermRoles(text) {
		label := m.Label
		if _, ok := patterns.RoleForLabel(label); !ok {
			continue
		}
		partyRaw := precedingPartyClause(text, m.Start)
		if partyRaw == "" {
			continue
		}
		out[patterns.NormalizeParty(partyRaw)] = label
	}
	return out
}

func precedingPartyClause(text string, end int) string {
	start := end - 160
	if start < 0 {
		start = 0
	}
	window := text[start:end]
	cut := strings.LastIndexAny(window, ",;")
	if cut == -1 {
		cut = strings.LastIndex(window, "(")
	}
	clause := window
	if cut != -1 {
		clause = window[cut+1:]
	}
	return strings.TrimSpace(clause)
}

func extractPartyMentions(text string, filingID int64, section string) Result {
	var result Result
	preamble := prefix(text, preambleChars)
	span, patternName, ok := patterns.MatchPartyList(preamble)
	if !ok {
		return result
	}
	for _, raw := range patterns.SplitPartyList(span) {
		fact := &models.AtomicFact{
			FactType:          models.FactTypePartyMention,
			FilingID:          filingID,
			EvidenceSnippet:   prefix(span, 500),
			SourceSection:     section,
			ExtractionMethod:  models.ExtractionMethodRegex,
			ExtractionPattern: patternName,
			Confidence:        0.7,
			Payload: models.PartyMentionPayload{
				PartyNameRaw:        raw,
				PartyNameNormalized: patterns.NormalizeParty(raw),
				PartyNameDisplay:    patterns.DisplayParty(raw),
				RoleLabel:           "Unknown",
			},
		}
		result.Facts = append(result.Facts, fact)
	}
	return result
}

// fromEx10 handles EX-10.* exhibits: commitment letters and credit
// agreements. A material-keyword hit on the description flags the exhibit;
// an "equity"/"commitment" description additionally drives sponsor
// extraction.
func fromEx10(filing *models.Filing, exhibit *models.Exhibit) Result {
	var result Result
	text := textOf(exhibit.RawContent, exhibit.NormalizedText)
	if text == "" {
		return result
	}

	if patterns.IsMaterialDescription(exhibit.Description) {
		exhibit.IsMaterial = true
	}

	if patterns.IsEquityCommitmentDescription(exhibit.Description) || strings.Contains(strings.ToLower(exhibit.Description), "commitment") {
		result.append(sponsorFacts(text, filing.ID, exhibit.ID, "equity_commitment"))
	}

	return result
}

// fromUnderwritingAgreement handles EX-1.* exhibits: underwriting
// agreements name the syndicate and facility terms directly, so they run
// the same financing extraction path as an 8-K's item 8.01 instead of the
// sponsor/party paths used by the other exhibit types.
func fromUnderwritingAgreement(filing *models.Filing, exhibit *models.Exhibit) Result {
	text := textOf(exhibit.RawContent, exhibit.NormalizedText)
	if text == "" {
		return Result{}
	}
	if patterns.IsMaterialDescription(exhibit.Description) {
		exhibit.IsMaterial = true
	}
	return extractFinancingMentions(filing.ID, exhibit.ID, exhibit.RawContent, text, "underwriting_agreement")
}

func fromPressRelease(filing *models.Filing, exhibit *models.Exhibit) Result {
	text := textOf(exhibit.RawContent, exhibit.NormalizedText)
	if text == "" {
		return Result{}
	}
	return sponsorFacts(text, filing.ID, exhibit.ID, "press_release")
}

// fromProxyStatement is a supplement beyond the distilled spec: DEFM14A/S-4
// "Background of the Merger" sections carry sponsor and advisor context the
// 8-K/merger-agreement dispatch never sees.
func fromProxyStatement(filing *models.Filing, exhibit *models.Exhibit) Result {
	var result Result
	text := textOf(exhibit.RawContent, exhibit.NormalizedText)
	if text == "" || !patterns.HasBackgroundOfMergerSection(text) {
		return result
	}

	result.append(sponsorFacts(text, filing.ID, exhibit.ID, "background_of_merger"))

	for _, sentence := range patterns.FindFairnessOpinionSentences(text) {
		uws, uwPattern := patterns.MatchUnderwriters(sentence)
		for _, name := range uws {
			payload := models.AdvisorMentionPayload{
				BankNameRaw:        name,
				BankNameNormalized: patterns.NormalizeParty(name),
				Role:               "fairness_opinion",
				ClientSide:         "unknown",
			}
			fact := models.NewAdvisorMentionFact(
				filing.ID, exhibit.ID, sentence, payload, uwPattern, 0.6, "background_of_merger",
			)
			result.Facts = append(result.Facts, fact)
		}
	}
	return result
}

func sponsorFacts(text string, filingID, exhibitID int64, section string) Result {
	var result Result
	for _, m := range patterns.MatchSponsors(text) {
		if m.IsNegated {
			continue
		}
		payload := models.SponsorMentionPayload{
			SponsorNameRaw:        m.RawName,
			SponsorNameNormalized: m.Normalized,
			SourcePattern:         m.SourcePattern,
			ContextSnippet:        m.ContextSnippet,
			IsNegated:             m.IsNegated,
		}
		fact := models.NewSponsorMentionFact(
			filingID, exhibitID, m.ContextSnippet, payload, m.SourcePattern, m.Confidence, section,
		)
		result.Facts = append(result.Facts, fact)
	}
	return result
}

func dealDateFact(filingID, exhibitID int64, section string, m patterns.AgreementDateMatch) *models.AtomicFact {
	return models.NewDealDateFact(
		filingID, exhibitID, "dated "+m.RawText,
		models.DealDatePayload{DateType: "agreement_date", DateValue: m.ISO, DateRaw: m.RawText},
		m.Pattern, section,
	)
}

func appendAgreementDate(result Result, filingID, exhibitID int64, preamble string) Result {
	if m, ok := patterns.MatchAgreementDate(preamble); ok {
		result.Facts = append(result.Facts, dealDateFact(filingID, exhibitID, "preamble", m))
	}
	return result
}

func failedExtractionAlert(filingID, exhibitID int64, preamble string) *models.Alert {
	sum := sha256.Sum256([]byte(preamble))
	return &models.Alert{
		Type:            models.AlertTypeFailedPrivateTargetExtraction,
		FilingID:        &filingID,
		ExhibitID:       &exhibitID,
		Title:           "Failed to extract parties from merger agreement preamble",
		Description:     `Could not find a "by and among/between" pattern in preamble`,
		PreambleHash:    hex.EncodeToString(sum[:]),
		PreamblePreview: prefix(preamble, 500),
	}
}

// ExtractTableParticipants runs the table parser over raw exhibit HTML and
// returns the (bank, role, evidence) triples it finds, so the caller can
// decide which financing event they belong to.
func ExtractTableParticipants(rawHTML string) []tableir.Triple {
	var triples []tableir.Triple
	for _, t := range tableir.ParseTables(rawHTML) {
		headerText := ""
		if t.HeaderRows > 0 {
			headerText = joinHeaderRow(t)
		}
		triples = append(triples, tableir.ExtractTriples(t, headerText)...)
	}
	return triples
}

func joinHeaderRow(t *tableir.Table) string {
	var b strings.Builder
	for c := 0; c < t.Cols; c++ {
		b.WriteString(t.Grid[0][c].Text)
		b.WriteString(" ")
	}
	return b.String()
}
