// Package reconcile links FinancingMention facts to Deals and materializes
// FinancingEvent/FinancingParticipant rows. It never creates Deals and never
// decides instrument classification — it only scores and links.
package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/txplain/txplain/internal/bank"
	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/store"
)

// DefaultMinConfidence is the floor below which an unlinked financing fact
// is left unmatched rather than attached to a weakly-related deal.
const DefaultMinConfidence = 0.5

type Stats struct {
	EventsCreated       int
	FactsLinked         int
	FactsProcessed      int
	LowConfidenceSkipped int
}

// match is the scored outcome of comparing one financing fact against one
// candidate deal.
type match struct {
	dealID      int64
	confidence  float64
	explanation string
}

// Reconciler links FinancingMention facts to Deals and builds FinancingEvent
// rows from them.
type Reconciler struct {
	Store         store.Store
	MinConfidence float64
	Banks         *bank.Resolver
}

func New(s store.Store) *Reconciler {
	return &Reconciler{Store: s, MinConfidence: DefaultMinConfidence, Banks: bank.New(s, bank.DefaultFuzzyThreshold)}
}

// ReconcileLinked materializes FinancingEvents for facts that clustering
// already attached to a deal_id, skipping any fact an event already exists
// for.
func (r *Reconciler) ReconcileLinked(ctx context.Context) (Stats, error) {
	var stats Stats

	linked, err := r.Store.LinkedFactsByType(ctx, models.FactTypeFinancingMention)
	if err != nil {
		return stats, fmt.Errorf("reconcile: fetch linked financing facts: %w", err)
	}

	for _, f := range linked {
		stats.FactsProcessed++

		exists, err := r.Store.FinancingEventExistsForFacts(ctx, []int64{f.ID})
		if err != nil {
			return stats, fmt.Errorf("reconcile: check existing event: %w", err)
		}
		if exists {
			continue
		}

		ev, err := r.eventFromFact(ctx, f, *f.DealID, 1.0, "direct link via clustering")
		if err != nil {
			return stats, err
		}
		if err := r.Store.CreateFinancingEvent(ctx, ev); err != nil {
			return stats, fmt.Errorf("reconcile: create financing event: %w", err)
		}
		stats.EventsCreated++
	}

	return stats, nil
}

// ReconcileUnlinked scores every deal-less financing fact against every
// CANDIDATE/OPEN deal and attaches it to the best match above MinConfidence.
func (r *Reconciler) ReconcileUnlinked(ctx context.Context) (Stats, error) {
	var stats Stats

	facts, err := r.Store.UnclusteredFactsByType(ctx, models.FactTypeFinancingMention)
	if err != nil {
		return stats, fmt.Errorf("reconcile: fetch financing facts: %w", err)
	}

	deals, err := r.Store.ListDealsByState(ctx, models.DealStateCandidate, models.DealStateOpen)
	if err != nil {
		return stats, fmt.Errorf("reconcile: list candidate deals: %w", err)
	}

	for _, f := range facts {
		if f.DealID != nil {
			continue
		}
		stats.FactsProcessed++

		best := bestDealMatch(f, deals)
		if best == nil || best.confidence < r.MinConfidence {
			stats.LowConfidenceSkipped++
			continue
		}

		assigned, err := r.Store.AssignFactDeal(ctx, f.ID, best.dealID)
		if err != nil {
			return stats, fmt.Errorf("reconcile: assign fact deal: %w", err)
		}
		if !assigned {
			continue
		}
		stats.FactsLinked++

		ev, err := r.eventFromFact(ctx, f, best.dealID, best.confidence, best.explanation)
		if err != nil {
			return stats, err
		}
		if err := r.Store.CreateFinancingEvent(ctx, ev); err != nil {
			return stats, fmt.Errorf("reconcile: create financing event: %w", err)
		}
		stats.EventsCreated++
	}

	return stats, nil
}

func bestDealMatch(f *models.AtomicFact, deals []*models.Deal) *match {
	evidence := strings.ToLower(f.EvidenceSnippet)

	var best *match
	for _, d := range deals {
		m := scoreDealMatch(d, evidence)
		if best == nil || m.confidence > best.confidence {
			best = m
		}
	}
	return best
}

// scoreDealMatch applies the additive signal weights: target-name match is
// the strong signal, acquirer-name moderate, sponsor-name weak. Confidence
// is clamped at 1.0.
func scoreDealMatch(d *models.Deal, evidenceLower string) *match {
	var confidence float64
	var explanations []string

	if d.TargetNameNormalized != "" {
		if strings.Contains(evidenceLower, d.TargetNameNormalized) {
			confidence += 0.5
			explanations = append(explanations, fmt.Sprintf("target name %q found in evidence", d.TargetNameDisplay))
		} else if ratio := partialRatio(d.TargetNameNormalized, evidenceLower); ratio > 0.85 {
			confidence += 0.4 * ratio
			explanations = append(explanations, fmt.Sprintf("target name fuzzy match: %.0f%%", ratio*100))
		}
	}

	if d.AcquirerNameNormalized != "" {
		if strings.Contains(evidenceLower, d.AcquirerNameNormalized) {
			confidence += 0.3
			explanations = append(explanations, fmt.Sprintf("acquirer %q found", d.AcquirerNameDisplay))
		} else if ratio := partialRatio(d.AcquirerNameNormalized, evidenceLower); ratio > 0.85 {
			confidence += 0.2 * ratio
			explanations = append(explanations, fmt.Sprintf("acquirer fuzzy match: %.0f%%", ratio*100))
		}
	}

	if d.SponsorNameNormalized != "" {
		if strings.Contains(evidenceLower, d.SponsorNameNormalized) {
			confidence += 0.2
			explanations = append(explanations, fmt.Sprintf("sponsor %q found", d.SponsorNameNormalized))
		} else if ratio := partialRatio(d.SponsorNameNormalized, evidenceLower); ratio > 0.80 {
			confidence += 0.1 * ratio
			explanations = append(explanations, fmt.Sprintf("sponsor fuzzy match: %.0f%%", ratio*100))
		}
	}

	if confidence > 1.0 {
		confidence = 1.0
	}

	explanation := "no strong signals"
	if len(explanations) > 0 {
		explanation = strings.Join(explanations, "; ")
	}

	return &match{dealID: d.ID, confidence: confidence, explanation: explanation}
}

// partialRatio approximates rapidfuzz's partial_ratio with a plain
// Levenshtein ratio over the shorter-vs-longer strings, since Go's stdlib
// and the example pack's levenshtein package only expose whole-string
// distance, not a sliding best-substring alignment. This is a deliberate
// simplification: it under-scores long evidence snippets relative to a
// short normalized name, while the fuzzy thresholds above keep the
// partial-ratio values (>0.85, >0.80), so fuzzy matches fire less often.
func partialRatio(needle, haystack string) float64 {
	if needle == "" || haystack == "" {
		return 0
	}
	if strings.Contains(haystack, needle) {
		return 1
	}
	maxLen := len(needle)
	if len(haystack) > maxLen {
		maxLen = len(haystack)
	}
	dist := levenshtein.ComputeDistance(needle, haystack)
	ratio := 1 - float64(dist)/float64(maxLen)
	if ratio < 0 {
		return 0
	}
	return ratio
}

// eventFromFact builds the FinancingEvent and its participants, resolving
// each participant's raw bank name against the canonical registry. A
// participant whose name doesn't clear the fuzzy threshold is left with a
// nil BankID and raises an UNRESOLVED_BANK alert instead of being silently
// auto-created, since a credit-agreement exhibit's OCR/table noise makes a
// wrong auto-created bank harder to undo than a flagged one.
func (r *Reconciler) eventFromFact(ctx context.Context, f *models.AtomicFact, dealID int64, confidence float64, explanation string) (*models.FinancingEvent, error) {
	p, ok := f.AsFinancingMention()
	if !ok {
		return nil, fmt.Errorf("reconcile: fact %d is not a FinancingMention", f.ID)
	}

	instrumentFamily := p.InstrumentType
	if instrumentFamily == "" {
		instrumentFamily = "unknown"
	}
	currency := p.Currency
	if currency == "" {
		currency = "USD"
	}

	ev := &models.FinancingEvent{
		DealID:                    dealID,
		InstrumentFamily:          instrumentFamily,
		InstrumentType:            p.InstrumentSubtype,
		AmountUSD:                 p.AmountUSD,
		AmountRaw:                 p.AmountRaw,
		Currency:                  currency,
		Purpose:                   p.Purpose,
		SourceExhibitID:           f.ExhibitID,
		SourceFactIDs:             []int64{f.ID},
		ReconciliationConfidence:  confidence,
		ReconciliationExplanation: explanation,
	}

	for _, pm := range p.Participants {
		participant := &models.FinancingParticipant{
			BankNameRaw:        pm.BankNameRaw,
			BankNameNormalized: bank.Normalize(pm.BankNameRaw),
			Role:               pm.Role,
			RoleNormalized:     normalizeRole(pm.Role),
			EvidenceSnippet:    pm.EvidenceSnippet,
			EvidenceSource:     pm.EvidenceSource,
			TableRow:           pm.TableRow,
			TableCol:           pm.TableCol,
		}

		if r.Banks != nil && pm.BankNameRaw != "" {
			match, err := r.Banks.Resolve(ctx, pm.BankNameRaw)
			if err != nil {
				return nil, fmt.Errorf("reconcile: resolve bank %q: %w", pm.BankNameRaw, err)
			}
			if match != nil {
				participant.BankID = &match.BankID
				participant.BankNameNormalized = bank.Normalize(match.BankName)
			} else if err := r.raiseUnresolvedBankAlert(ctx, f, dealID, pm.BankNameRaw); err != nil {
				return nil, err
			}
		}

		ev.Participants = append(ev.Participants, participant)
	}

	return ev, nil
}

func (r *Reconciler) raiseUnresolvedBankAlert(ctx context.Context, f *models.AtomicFact, dealID int64, bankNameRaw string) error {
	alert := &models.Alert{
		Type:        models.AlertTypeUnresolvedBank,
		DealID:      &dealID,
		Title:       fmt.Sprintf("Could not resolve bank name %q", bankNameRaw),
		Description: fmt.Sprintf("No exact, alias, or fuzzy match above %.0f%% against the bank registry; review and link manually.", r.Banks.FuzzyThreshold),
	}
	if f.FilingID != 0 {
		filingID := f.FilingID
		alert.FilingID = &filingID
	}
	if f.ExhibitID != 0 {
		exhibitID := f.ExhibitID
		alert.ExhibitID = &exhibitID
	}
	if err := r.Store.CreateAlert(ctx, alert); err != nil {
		return fmt.Errorf("reconcile: create unresolved bank alert: %w", err)
	}
	return nil
}

// normalizeRole maps a free-text participant role into the canonical
// vocabulary, preferring the more specific tag when multiple keywords match
// (e.g. "joint bookrunner" before "bookrunner").
func normalizeRole(role string) models.CanonicalRole {
	r := strings.ToLower(strings.TrimSpace(role))

	switch {
	case strings.Contains(r, "bookrunner"):
		if strings.Contains(r, "joint") {
			return models.RoleJointBookrunner
		}
		return models.RoleBookrunner
	case strings.Contains(r, "co-manager"), strings.Contains(r, "co manager"):
		return models.RoleCoManager
	case strings.Contains(r, "underwriter"):
		if strings.Contains(r, "lead") || strings.Contains(r, "senior") {
			return models.RoleLeadUnderwriter
		}
		return models.RoleUnderwriter
	case strings.Contains(r, "arranger"):
		if strings.Contains(r, "joint") && strings.Contains(r, "lead") {
			return models.RoleJointLeadArranger
		}
		if strings.Contains(r, "lead") || strings.Contains(r, "mandated") {
			return models.RoleLeadArranger
		}
		return models.RoleArranger
	case strings.Contains(r, "admin") && strings.Contains(r, "agent"):
		return models.RoleAdminAgent
	case strings.Contains(r, "syndication"):
		return models.RoleSyndicationAgent
	case strings.Contains(r, "agent"):
		return models.RoleAgent
	default:
		return models.RoleOther
	}
}
