// Package cluster groups atomic facts into Deals. It never extracts facts
// and never reconciles financing events — it only assigns deal_id.
//
// Two open questions carried over unresolved from the source system, by
// design: a secondary fact sharing an exhibit with party facts from two
// distinct deals (a rare multi-deal 8-K) attaches to whichever deal the
// locality lookup finds first, which can misattribute it; and
// display-name construction elsewhere in the pipeline strips parentheticals
// in a lossy way that this package does not attempt to correct.
package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/patterns"
	"github.com/txplain/txplain/internal/store"
)

// mergeThreshold is the Levenshtein-ratio floor above which two CANDIDATE/OPEN
// deals are reported as merge candidates.
const mergeThreshold = 0.85

// Stats summarizes one run of ClusterUnclusteredFacts, for logging.
type Stats struct {
	DealsCreated     int
	FactsAttached    int
	FactsSkipped     int
	LowConfidenceHit int
}

// ClusterUnclusteredFacts runs the primary then secondary clustering passes
// over every fact with deal_id still nil.
func ClusterUnclusteredFacts(ctx context.Context, s store.Store) (Stats, error) {
	var stats Stats

	partyFacts, err := s.UnclusteredFactsByType(ctx, models.FactTypePartyDefinition, models.FactTypePartyMention)
	if err != nil {
		return stats, fmt.Errorf("cluster: fetch unclustered party facts: %w", err)
	}

	for _, f := range partyFacts {
		if f.DealID != nil {
			continue // attached by an earlier iteration in this same batch
		}
		role, recognized := roleGroup(f)
		if !recognized || role != "target" {
			continue // only a target-role fact may drive deal creation
		}
		attached, err := clusterTargetFact(ctx, s, f, &stats)
		if err != nil {
			return stats, err
		}
		if !attached {
			stats.FactsSkipped++
		}
	}

	if err := attachSecondaryFacts(ctx, s, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// roleGroup maps a PartyDefinition/PartyMention fact's literal RoleLabel
// (e.g. "Company", "Parent") to the canonical party group patterns.go
// already keys by defined-term label, reusing the same table the Fact
// Extractor used to recognize the label in the first place.
func roleGroup(f *models.AtomicFact) (group string, recognized bool) {
	var label string
	if p, ok := f.AsPartyDefinition(); ok {
		label = p.RoleLabel
	} else if p, ok := f.AsPartyMention(); ok {
		label = p.RoleLabel
	} else {
		return "", false
	}
	return patterns.RoleForLabel(label)
}

func partyNormalized(f *models.AtomicFact) (raw, normalized, display, cik string) {
	if p, ok := f.AsPartyDefinition(); ok {
		return p.PartyNameRaw, p.PartyNameNormalized, p.PartyNameDisplay, p.CIK
	}
	if p, ok := f.AsPartyMention(); ok {
		return p.PartyNameRaw, p.PartyNameNormalized, p.PartyNameDisplay, p.CIK
	}
	return "", "", "", ""
}

// clusterTargetFact handles one target-role fact: find an acquirer-role
// sibling in the same exhibit (else filing), compute the deal key, and
// attach both facts to an existing or newly created deal.
func clusterTargetFact(ctx context.Context, s store.Store, target *models.AtomicFact, stats *Stats) (bool, error) {
	siblings, err := s.RelatedPartyFacts(ctx, target, target.ID)
	if err != nil {
		return false, fmt.Errorf("cluster: related party facts: %w", err)
	}

	var acquirer *models.AtomicFact
	for _, cand := range siblings {
		if group, ok := roleGroup(cand); ok && group == "acquirer" {
			acquirer = cand
			break
		}
	}
	if acquirer == nil {
		return false, nil // acquirer-first facts never create a deal; nothing to attach to yet
	}

	key, needsReview := buildDealKey(target, acquirer)

	deal, err := s.DealByKey(ctx, key)
	if err != nil && err != store.ErrNotFound {
		return false, fmt.Errorf("cluster: deal by key: %w", err)
	}

	if deal != nil {
		if deal.State == models.DealStateLocked {
			if err := raiseLowConfidenceAlert(ctx, s, target, deal); err != nil {
				return false, err
			}
			stats.LowConfidenceHit++
			return false, nil
		}
		return attachPair(ctx, s, deal.ID, target, acquirer, stats)
	}

	deal = newDealFromPair(target, acquirer, key, needsReview)
	if err := s.CreateDeal(ctx, deal); err != nil {
		if err == store.ErrDealKeyExists {
			existing, ferr := s.DealByKey(ctx, key)
			if ferr != nil {
				return false, fmt.Errorf("cluster: refetch after race on deal_key: %w", ferr)
			}
			return attachPair(ctx, s, existing.ID, target, acquirer, stats)
		}
		return false, fmt.Errorf("cluster: create deal: %w", err)
	}
	stats.DealsCreated++
	return attachPair(ctx, s, deal.ID, target, acquirer, stats)
}

func attachPair(ctx context.Context, s store.Store, dealID int64, target, acquirer *models.AtomicFact, stats *Stats) (bool, error) {
	for _, f := range []*models.AtomicFact{target, acquirer} {
		assigned, err := s.AssignFactDeal(ctx, f.ID, dealID)
		if err != nil {
			return false, fmt.Errorf("cluster: assign fact deal: %w", err)
		}
		if assigned {
			stats.FactsAttached++
		}
	}
	return true, nil
}

func raiseLowConfidenceAlert(ctx context.Context, s store.Store, target *models.AtomicFact, deal *models.Deal) error {
	a := &models.Alert{
		Type:        models.AlertTypeLowConfidenceMatch,
		FilingID:    &target.FilingID,
		DealID:      &deal.ID,
		Title:       "New party fact matches a locked deal's key",
		Description: fmt.Sprintf("deal_key %q already belongs to a LOCKED deal; the new fact was left unclustered", deal.DealKey),
	}
	if target.ExhibitID != 0 {
		a.ExhibitID = &target.ExhibitID
	}
	if err := s.CreateAlert(ctx, a); err != nil {
		return fmt.Errorf("cluster: create low confidence alert: %w", err)
	}
	return nil
}

// buildDealKey implements the three-tier priority. needsReview is true only
// for the name-only tier.
func buildDealKey(target, acquirer *models.AtomicFact) (key string, needsReview bool) {
	_, targetNorm, _, targetCIK := partyNormalized(target)
	_, acquirerNorm, _, acquirerCIK := partyNormalized(acquirer)

	switch {
	case acquirerCIK != "" && targetCIK != "":
		return fmt.Sprintf("cik:%s:cik:%s", acquirerCIK, targetCIK), false
	case acquirerCIK != "":
		return fmt.Sprintf("cik:%s:name:%s", acquirerCIK, targetNorm), false
	default:
		return fmt.Sprintf("name:%s:name:%s", acquirerNorm, targetNorm), true
	}
}

func newDealFromPair(target, acquirer *models.AtomicFact, key string, needsReview bool) *models.Deal {
	targetRaw, targetNorm, targetDisplay, targetCIK := partyNormalized(target)
	acquirerRaw, acquirerNorm, acquirerDisplay, acquirerCIK := partyNormalized(acquirer)

	state := models.DealStateCandidate
	if needsReview {
		state = models.DealStateNeedsReview
	}

	return &models.Deal{
		State:                   state,
		DealKey:                 key,
		AcquirerCIK:             acquirerCIK,
		AcquirerNameRaw:         acquirerRaw,
		AcquirerNameDisplay:     acquirerDisplay,
		AcquirerNameNormalized:  acquirerNorm,
		TargetCIK:               targetCIK,
		TargetNameRaw:           targetRaw,
		TargetNameDisplay:       targetDisplay,
		TargetNameNormalized:    targetNorm,
		MarketTag:               models.MarketTagUnknown,
		UnresolvedSponsorEntity: false,
	}
}

// attachSecondaryFacts runs after the primary pass: every remaining
// unclustered SponsorMention/DealDate/AdvisorMention/FinancingMention fact is
// attached to whichever deal a same-exhibit-else-same-filing party fact
// already belongs to, if any.
func attachSecondaryFacts(ctx context.Context, s store.Store, stats *Stats) error {
	facts, err := s.UnclusteredFactsByType(ctx,
		models.FactTypeSponsorMention, models.FactTypeDealDate,
		models.FactTypeAdvisorMention, models.FactTypeFinancingMention)
	if err != nil {
		return fmt.Errorf("cluster: fetch unclustered secondary facts: %w", err)
	}

	for _, f := range facts {
		dealID, ok, err := s.DealIDForLocality(ctx, f)
		if err != nil {
			return fmt.Errorf("cluster: deal id for locality: %w", err)
		}
		if !ok {
			stats.FactsSkipped++
			continue
		}

		assigned, err := s.AssignFactDeal(ctx, f.ID, dealID)
		if err != nil {
			return fmt.Errorf("cluster: assign secondary fact: %w", err)
		}
		if !assigned {
			continue
		}
		stats.FactsAttached++

		deal, err := s.GetDeal(ctx, dealID)
		if err != nil {
			return fmt.Errorf("cluster: fetch deal for secondary update: %w", err)
		}

		switch f.FactType {
		case models.FactTypeSponsorMention:
			updateSponsor(deal, f)
		case models.FactTypeDealDate:
			updateDate(deal, f)
		}

		if err := s.UpdateDeal(ctx, deal); err != nil {
			return fmt.Errorf("cluster: update deal from secondary fact: %w", err)
		}
	}
	return nil
}

func updateSponsor(deal *models.Deal, f *models.AtomicFact) {
	p, ok := f.AsSponsorMention()
	if !ok || f.Confidence <= deal.SponsorConfidence {
		return
	}
	deal.SponsorNameRaw = p.SponsorNameRaw
	deal.SponsorNameNormalized = p.SponsorNameNormalized
	deal.SponsorConfidence = f.Confidence
	deal.SponsorEvidence = &models.SponsorEvidence{
		FactID:         f.ID,
		Snippet:        p.ContextSnippet,
		PatternMatched: p.SourcePattern,
	}
	sponsorBacked := true
	deal.IsSponsorBacked = &sponsorBacked
	deal.UnresolvedSponsorEntity = !patterns.IsKnownSponsor(p.SponsorNameNormalized)
}

func updateDate(deal *models.Deal, f *models.AtomicFact) {
	p, ok := f.AsDealDate()
	if !ok {
		return
	}
	t, err := time.Parse("2006-01-02", p.DateValue)
	if err != nil {
		return
	}
	switch p.DateType {
	case "agreement_date":
		if deal.AgreementDate == nil {
			deal.AgreementDate = &t
		}
	case "announcement_date":
		if deal.AnnouncementDate == nil {
			deal.AnnouncementDate = &t
		}
	case "expected_close":
		if deal.ExpectedClose == nil {
			deal.ExpectedClose = &t
		}
	}
}

// FindMergeCandidates pairwise-compares target_name_normalized across every
// CANDIDATE/OPEN deal and returns pairs whose Levenshtein ratio exceeds
// mergeThreshold. O(n^2): acceptable at the deal-catalog scale this system
// operates at, and the same complexity deal_clusterer.py accepts.
func FindMergeCandidates(ctx context.Context, s store.Store) ([][2]*models.Deal, error) {
	deals, err := s.ListDealsByState(ctx, models.DealStateCandidate, models.DealStateOpen)
	if err != nil {
		return nil, fmt.Errorf("cluster: list deals for merge scan: %w", err)
	}

	var pairs [][2]*models.Deal
	for i := 0; i < len(deals); i++ {
		for j := i + 1; j < len(deals); j++ {
			if levenshteinRatio(deals[i].TargetNameNormalized, deals[j].TargetNameNormalized) > mergeThreshold {
				pairs = append(pairs, [2]*models.Deal{deals[i], deals[j]})
			}
		}
	}
	return pairs, nil
}

func levenshteinRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// MergeDeals moves every fact and financing event from source to target,
// records a resolved DealMergeCandidate alert citing the source's deal key,
// and deletes the source deal. Caller picks which of a candidate pair is
// the survivor.
func MergeDeals(ctx context.Context, s store.Store, source, target *models.Deal) error {
	if err := s.MoveFactsToDeal(ctx, source.ID, target.ID); err != nil {
		return fmt.Errorf("cluster: move facts during merge: %w", err)
	}
	if err := s.MoveFinancingEventsToDeal(ctx, source.ID, target.ID); err != nil {
		return fmt.Errorf("cluster: move financing events during merge: %w", err)
	}

	now := time.Now()
	alert := &models.Alert{
		Type:            models.AlertTypeDealMergeCandidate,
		DealID:          &target.ID,
		Title:           "Deals merged as duplicates",
		Description:     fmt.Sprintf("merged deal_key %q into %q on target-name similarity", source.DealKey, target.DealKey),
		IsResolved:      true,
		ResolvedAt:      &now,
		ResolvedBy:      "cluster.MergeDeals",
		ResolutionNotes: fmt.Sprintf("source deal_key: %s", source.DealKey),
	}
	if err := s.CreateAlert(ctx, alert); err != nil {
		return fmt.Errorf("cluster: create merge alert: %w", err)
	}

	if err := s.DeleteDeal(ctx, source.ID); err != nil {
		return fmt.Errorf("cluster: delete source deal after merge: %w", err)
	}
	return nil
}
