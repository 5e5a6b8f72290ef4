package cluster

import (
	"context"
	"testing"

	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/store"
)

func mustCreateFact(t *testing.T, ctx context.Context, s store.Store, f *models.AtomicFact) *models.AtomicFact {
	t.Helper()
	if err := s.CreateFact(ctx, f); err != nil {
		t.Fatalf("create fact: %v", err)
	}
	return f
}

func TestClusterCreatesDealFromTargetAndAcquirerPair(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	target := mustCreateFact(t, ctx, a, &models.AtomicFact{
		FactType: models.FactTypePartyDefinition, FilingID: 1, ExhibitID: 10, EvidenceSnippet: "t",
		Payload: models.PartyDefinitionPayload{PartyNameRaw: "Target Co", PartyNameNormalized: "target co", RoleLabel: "Company"},
	})
	acquirer := mustCreateFact(t, ctx, a, &models.AtomicFact{
		FactType: models.FactTypePartyDefinition, FilingID: 1, ExhibitID: 10, EvidenceSnippet: "a",
		Payload: models.PartyDefinitionPayload{PartyNameRaw: "Acquirer Inc", PartyNameNormalized: "acquirer inc", CIK: "0001", RoleLabel: "Parent"},
	})

	stats, err := ClusterUnclusteredFacts(ctx, a)
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if stats.DealsCreated != 1 {
		t.Fatalf("expected 1 deal created, got %d", stats.DealsCreated)
	}
	if stats.FactsAttached != 2 {
		t.Fatalf("expected 2 facts attached, got %d", stats.FactsAttached)
	}

	got, _ := a.GetFact(ctx, target.ID)
	if got.DealID == nil {
		t.Fatal("expected target fact to carry a deal_id")
	}
	gotAcquirer, _ := a.GetFact(ctx, acquirer.ID)
	if gotAcquirer.DealID == nil || *gotAcquirer.DealID != *got.DealID {
		t.Fatal("expected both facts to land on the same deal")
	}

	deal, err := a.GetDeal(ctx, *got.DealID)
	if err != nil {
		t.Fatalf("get deal: %v", err)
	}
	if deal.DealKey != "cik:0001:name:target co" {
		t.Errorf("expected tier-2 deal key, got %q", deal.DealKey)
	}
	if deal.State != models.DealStateCandidate {
		t.Errorf("expected CANDIDATE state for a cik-bearing key, got %s", deal.State)
	}
}

func TestClusterUsesNameOnlyKeyAndMarksNeedsReview(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	mustCreateFact(t, ctx, a, &models.AtomicFact{
		FactType: models.FactTypePartyDefinition, FilingID: 2, ExhibitID: 20, EvidenceSnippet: "t",
		Payload: models.PartyDefinitionPayload{PartyNameRaw: "Private Target LLC", PartyNameNormalized: "private target llc", RoleLabel: "Company"},
	})
	mustCreateFact(t, ctx, a, &models.AtomicFact{
		FactType: models.FactTypePartyDefinition, FilingID: 2, ExhibitID: 20, EvidenceSnippet: "a",
		Payload: models.PartyDefinitionPayload{PartyNameRaw: "Private Buyer LLC", PartyNameNormalized: "private buyer llc", RoleLabel: "Buyer"},
	})

	if _, err := ClusterUnclusteredFacts(ctx, a); err != nil {
		t.Fatalf("cluster: %v", err)
	}

	deals, err := a.ListDealsByState(ctx, models.DealStateNeedsReview)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("expected 1 NEEDS_REVIEW deal, got %d", len(deals))
	}
	if deals[0].DealKey != "name:private buyer llc:name:private target llc" {
		t.Errorf("got deal key %q", deals[0].DealKey)
	}
}

func TestClusterDoesNotCreateDealFromAcquirerOnlyFact(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	mustCreateFact(t, ctx, a, &models.AtomicFact{
		FactType: models.FactTypePartyDefinition, FilingID: 3, ExhibitID: 30, EvidenceSnippet: "a",
		Payload: models.PartyDefinitionPayload{PartyNameRaw: "Lonely Acquirer", PartyNameNormalized: "lonely acquirer", RoleLabel: "Parent"},
	})

	stats, err := ClusterUnclusteredFacts(ctx, a)
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}
	if stats.DealsCreated != 0 {
		t.Errorf("expected no deals created from an acquirer-only fact, got %d", stats.DealsCreated)
	}
}

func TestAttachSecondaryFactsUpdatesSponsorOnHigherConfidenceOnly(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	mustCreateFact(t, ctx, a, &models.AtomicFact{
		FactType: models.FactTypePartyDefinition, FilingID: 4, ExhibitID: 40, EvidenceSnippet: "t",
		Payload: models.PartyDefinitionPayload{PartyNameRaw: "Target Co", PartyNameNormalized: "target co", RoleLabel: "Company"},
	})
	mustCreateFact(t, ctx, a, &models.AtomicFact{
		FactType: models.FactTypePartyDefinition, FilingID: 4, ExhibitID: 40, EvidenceSnippet: "a",
		Payload: models.PartyDefinitionPayload{PartyNameRaw: "Acquirer Inc", PartyNameNormalized: "acquirer inc", RoleLabel: "Parent"},
	})
	if _, err := ClusterUnclusteredFacts(ctx, a); err != nil {
		t.Fatalf("primary cluster: %v", err)
	}

	low := &models.AtomicFact{
		FactType: models.FactTypeSponsorMention, FilingID: 4, ExhibitID: 40, EvidenceSnippet: "s1", Confidence: 0.5,
		Payload: models.SponsorMentionPayload{SponsorNameRaw: "Example Capital", SponsorNameNormalized: "example capital"},
	}
	a.CreateFact(ctx, low)
	high := &models.AtomicFact{
		FactType: models.FactTypeSponsorMention, FilingID: 4, ExhibitID: 40, EvidenceSnippet: "s2", Confidence: 0.9,
		Payload: models.SponsorMentionPayload{SponsorNameRaw: "Example Capital Partners", SponsorNameNormalized: "example capital partners"},
	}
	a.CreateFact(ctx, high)

	if err := attachSecondaryFacts(ctx, a, &Stats{}); err != nil {
		t.Fatalf("attach secondary: %v", err)
	}

	gotLow, _ := a.GetFact(ctx, low.ID)
	deal, err := a.GetDeal(ctx, *gotLow.DealID)
	if err != nil {
		t.Fatalf("get deal: %v", err)
	}
	if deal.SponsorNameNormalized != "example capital partners" {
		t.Errorf("expected the higher-confidence sponsor fact to win, got %q", deal.SponsorNameNormalized)
	}
	if deal.SponsorConfidence != 0.9 {
		t.Errorf("expected sponsor_confidence 0.9, got %v", deal.SponsorConfidence)
	}
}

func TestFindMergeCandidatesFindsSimilarTargetNames(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	d1 := &models.Deal{DealKey: "name:x:name:acme-corp", State: models.DealStateCandidate, TargetNameNormalized: "acme corp"}
	d2 := &models.Deal{DealKey: "name:y:name:acme-corps", State: models.DealStateCandidate, TargetNameNormalized: "acme corps"}
	d3 := &models.Deal{DealKey: "name:z:name:totally-unrelated", State: models.DealStateCandidate, TargetNameNormalized: "totally unrelated llc"}
	a.CreateDeal(ctx, d1)
	a.CreateDeal(ctx, d2)
	a.CreateDeal(ctx, d3)

	pairs, err := FindMergeCandidates(ctx, a)
	if err != nil {
		t.Fatalf("find merge candidates: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected 1 candidate pair, got %d", len(pairs))
	}
}

func TestMergeDealsMovesFactsAndDeletesSource(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	source := &models.Deal{DealKey: "name:a:name:b", State: models.DealStateCandidate, TargetNameNormalized: "b"}
	target := &models.Deal{DealKey: "name:c:name:d", State: models.DealStateCandidate, TargetNameNormalized: "d"}
	a.CreateDeal(ctx, source)
	a.CreateDeal(ctx, target)

	fact := &models.AtomicFact{FactType: models.FactTypeSponsorMention, EvidenceSnippet: "x"}
	a.CreateFact(ctx, fact)
	a.AssignFactDeal(ctx, fact.ID, source.ID)

	if err := MergeDeals(ctx, a, source, target); err != nil {
		t.Fatalf("merge: %v", err)
	}

	if _, err := a.GetDeal(ctx, source.ID); err != store.ErrNotFound {
		t.Errorf("expected source deal to be deleted, got err=%v", err)
	}
	got, _ := a.GetFact(ctx, fact.ID)
	if got.DealID == nil || *got.DealID != target.ID {
		t.Errorf("expected fact moved to target deal, got %v", got.DealID)
	}
}
