package models

import "time"

// FactType discriminates the closed set of Atomic Fact variants. There is no
// sum type in Go, so FactType plus a variant-specific payload behind
// AtomicFact.Payload stands in for one; see the typed accessors below.
type FactType string

const (
	FactTypePartyDefinition  FactType = "PARTY_DEFINITION"
	FactTypePartyMention     FactType = "PARTY_MENTION"
	FactTypeSponsorMention   FactType = "SPONSOR_MENTION"
	FactTypeDealDate         FactType = "DEAL_DATE"
	FactTypeFinancingMention FactType = "FINANCING_MENTION"
	FactTypeAdvisorMention   FactType = "ADVISOR_MENTION"
	FactTypeDealValue        FactType = "DEAL_VALUE"
	FactTypeManual           FactType = "MANUAL"
)

// ExtractionMethod records how a fact was produced.
type ExtractionMethod string

const (
	ExtractionMethodRegex  ExtractionMethod = "regex"
	ExtractionMethodTable  ExtractionMethod = "table"
	ExtractionMethodManual ExtractionMethod = "manual"
)

// AtomicFact is the sole output of extraction. deal_id is nullable and is
// write-once: only the Clusterer may set it, and only from nil.
type AtomicFact struct {
	ID int64

	FactType FactType

	FilingID  int64
	ExhibitID int64 // 0 if the fact isn't exhibit-scoped

	DealID *int64 // nil until the Clusterer assigns it

	EvidenceSnippet     string
	EvidenceStartOffset *int
	EvidenceEndOffset   *int
	SourceSection       string

	ExtractionMethod   ExtractionMethod
	ExtractionPattern  string
	Confidence         float64

	// Payload holds one of the *Payload structs below, chosen by FactType.
	// Construct facts only through the New*Fact constructors, which validate
	// the payload shape; read them only through the As* accessors.
	Payload any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PartyDefinitionPayload is the payload for FactTypePartyDefinition.
// Extracted from merger-agreement preambles and 8-K Item 1.01 sections.
type PartyDefinitionPayload struct {
	PartyNameRaw        string
	PartyNameNormalized string
	PartyNameDisplay    string
	RoleLabel           string // Company, Parent, Merger Sub, Purchaser, Buyer, ...
	CIK                 string
}

// PartyMentionPayload is a lighter-weight party reference (e.g. a party named
// outside a defined-term preamble).
type PartyMentionPayload struct {
	PartyNameRaw        string
	PartyNameNormalized string
	PartyNameDisplay    string
	RoleLabel           string
	CIK                 string
}

// SponsorMentionPayload is the payload for FactTypeSponsorMention.
type SponsorMentionPayload struct {
	SponsorNameRaw        string
	SponsorNameNormalized string
	SourcePattern         string // "seed_list" or "affiliation_pattern"
	ContextSnippet        string
	IsNegated             bool
}

// DealDatePayload is the payload for FactTypeDealDate.
type DealDatePayload struct {
	DateType  string // agreement_date, announcement_date, expected_close
	DateValue string // ISO 8601
	DateRaw   string
}

// FinancingParticipantMention is an embedded participant inside a
// FinancingMentionPayload, prior to bank resolution.
type FinancingParticipantMention struct {
	BankNameRaw        string
	BankNameNormalized string
	Role               string
	EvidenceSnippet    string
	EvidenceSource     string // "table", "text"
	TableRow           *int
	TableCol           *int
}

// FinancingMentionPayload is the payload for FactTypeFinancingMention.
type FinancingMentionPayload struct {
	InstrumentType    string // bond, term_loan, rcf, bridge
	InstrumentSubtype string // TLB, TLA, ...
	AmountUSD         *float64
	AmountRaw         string
	Currency          string
	Participants      []FinancingParticipantMention
	Purpose           string
	Maturity          string
	InterestRate      string
}

// AdvisorMentionPayload is the payload for FactTypeAdvisorMention.
type AdvisorMentionPayload struct {
	BankNameRaw        string
	BankNameNormalized string
	Role               string // lead_advisor, co_advisor, fairness_opinion, underwriter
	ClientSide         string // target, acquirer, issuer
	BankID              *int64
}

// DealValuePayload is the payload for FactTypeDealValue.
type DealValuePayload struct {
	AmountUSD float64
	AmountRaw string
	Currency  string
}

// ManualPayload wraps an arbitrary human-entered structure, keyed by an
// input_type the consuming stage is expected to understand.
type ManualPayload struct {
	InputType string
	Data      map[string]any
	EnteredBy string
	Notes     string
}

// AsPartyDefinition returns the typed payload if the fact is a PartyDefinition.
func (f *AtomicFact) AsPartyDefinition() (PartyDefinitionPayload, bool) {
	p, ok := f.Payload.(PartyDefinitionPayload)
	return p, ok && f.FactType == FactTypePartyDefinition
}

// AsPartyMention returns the typed payload if the fact is a PartyMention.
func (f *AtomicFact) AsPartyMention() (PartyMentionPayload, bool) {
	p, ok := f.Payload.(PartyMentionPayload)
	return p, ok && f.FactType == FactTypePartyMention
}

// AsSponsorMention returns the typed payload if the fact is a SponsorMention.
func (f *AtomicFact) AsSponsorMention() (SponsorMentionPayload, bool) {
	p, ok := f.Payload.(SponsorMentionPayload)
	return p, ok && f.FactType == FactTypeSponsorMention
}

// AsDealDate returns the typed payload if the fact is a DealDate.
func (f *AtomicFact) AsDealDate() (DealDatePayload, bool) {
	p, ok := f.Payload.(DealDatePayload)
	return p, ok && f.FactType == FactTypeDealDate
}

// AsFinancingMention returns the typed payload if the fact is a FinancingMention.
func (f *AtomicFact) AsFinancingMention() (FinancingMentionPayload, bool) {
	p, ok := f.Payload.(FinancingMentionPayload)
	return p, ok && f.FactType == FactTypeFinancingMention
}

// AsAdvisorMention returns the typed payload if the fact is an AdvisorMention.
func (f *AtomicFact) AsAdvisorMention() (AdvisorMentionPayload, bool) {
	p, ok := f.Payload.(AdvisorMentionPayload)
	return p, ok && f.FactType == FactTypeAdvisorMention
}

// AsDealValue returns the typed payload if the fact is a DealValue.
func (f *AtomicFact) AsDealValue() (DealValuePayload, bool) {
	p, ok := f.Payload.(DealValuePayload)
	return p, ok && f.FactType == FactTypeDealValue
}

// AsManual returns the typed payload if the fact is Manual.
func (f *AtomicFact) AsManual() (ManualPayload, bool) {
	p, ok := f.Payload.(ManualPayload)
	return p, ok && f.FactType == FactTypeManual
}

// NewPartyDefinitionFact constructs a validated PartyDefinition fact.
func NewPartyDefinitionFact(filingID, exhibitID int64, evidence string, payload PartyDefinitionPayload, pattern string, confidence float64, section string) *AtomicFact {
	return &AtomicFact{
		FactType:          FactTypePartyDefinition,
		FilingID:          filingID,
		ExhibitID:         exhibitID,
		EvidenceSnippet:   evidence,
		SourceSection:     section,
		ExtractionMethod:  ExtractionMethodRegex,
		ExtractionPattern: pattern,
		Confidence:        confidence,
		Payload:           payload,
	}
}

// NewSponsorMentionFact constructs a validated SponsorMention fact.
func NewSponsorMentionFact(filingID, exhibitID int64, evidence string, payload SponsorMentionPayload, pattern string, confidence float64, section string) *AtomicFact {
	return &AtomicFact{
		FactType:          FactTypeSponsorMention,
		FilingID:          filingID,
		ExhibitID:         exhibitID,
		EvidenceSnippet:   evidence,
		SourceSection:     section,
		ExtractionMethod:  ExtractionMethodRegex,
		ExtractionPattern: pattern,
		Confidence:        confidence,
		Payload:           payload,
	}
}

// NewDealDateFact constructs a validated DealDate fact.
func NewDealDateFact(filingID, exhibitID int64, evidence string, payload DealDatePayload, pattern string, section string) *AtomicFact {
	return &AtomicFact{
		FactType:          FactTypeDealDate,
		FilingID:          filingID,
		ExhibitID:         exhibitID,
		EvidenceSnippet:   evidence,
		SourceSection:     section,
		ExtractionMethod:  ExtractionMethodRegex,
		ExtractionPattern: pattern,
		Confidence:        1.0,
		Payload:           payload,
	}
}

// NewFinancingMentionFact constructs a validated FinancingMention fact.
func NewFinancingMentionFact(filingID, exhibitID int64, evidence string, payload FinancingMentionPayload, pattern string, confidence float64, section string) *AtomicFact {
	return &AtomicFact{
		FactType:          FactTypeFinancingMention,
		FilingID:          filingID,
		ExhibitID:         exhibitID,
		EvidenceSnippet:   evidence,
		SourceSection:     section,
		ExtractionMethod:  ExtractionMethodRegex,
		ExtractionPattern: pattern,
		Confidence:        confidence,
		Payload:           payload,
	}
}

// NewAdvisorMentionFact constructs a validated AdvisorMention fact.
func NewAdvisorMentionFact(filingID, exhibitID int64, evidence string, payload AdvisorMentionPayload, pattern string, confidence float64, section string) *AtomicFact {
	return &AtomicFact{
		FactType:          FactTypeAdvisorMention,
		FilingID:          filingID,
		ExhibitID:         exhibitID,
		EvidenceSnippet:   evidence,
		SourceSection:     section,
		ExtractionMethod:  ExtractionMethodRegex,
		ExtractionPattern: pattern,
		Confidence:        confidence,
		Payload:           payload,
	}
}

// NewManualFact constructs a Manual fact from a human-submitted payload; it
// always carries confidence 1.0 since it bypasses scoring entirely.
func NewManualFact(dealID *int64, payload ManualPayload) *AtomicFact {
	f := &AtomicFact{
		FactType:          FactTypeManual,
		DealID:            dealID,
		EvidenceSnippet:   "manual:" + payload.InputType,
		SourceSection:     "manual",
		ExtractionMethod:  ExtractionMethodManual,
		ExtractionPattern: "manual_input",
		Confidence:        1.0,
		Payload:           payload,
	}
	return f
}
