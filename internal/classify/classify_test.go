package classify

import (
	"context"
	"testing"

	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/store"
)

func TestClassifyFinancingEventDetectsTermLoanB(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	deal := &models.Deal{DealKey: "cik:1:cik:2", State: models.DealStateCandidate}
	a.CreateDeal(ctx, deal)

	fact := &models.AtomicFact{FactType: models.FactTypeFinancingMention, EvidenceSnippet: "an institutional Term Loan B facility"}
	a.CreateFact(ctx, fact)

	ev := &models.FinancingEvent{DealID: deal.ID, InstrumentFamily: "loan", SourceFactIDs: []int64{fact.ID}}
	if err := a.CreateFinancingEvent(ctx, ev); err != nil {
		t.Fatalf("create event: %v", err)
	}

	c := New(a)
	result, err := c.ClassifyFinancingEvent(ctx, ev)
	if err != nil {
		t.Fatalf("classify event: %v", err)
	}
	if result.MarketTag != models.MarketTagTermLoanB {
		t.Errorf("expected Term_Loan_B, got %s", result.MarketTag)
	}
	if ev.InstrumentType != "term_loan_b" {
		t.Errorf("expected instrument_type term_loan_b, got %s", ev.InstrumentType)
	}
}

func TestClassifyFinancingEventBridgeBeatsBond(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	fact := &models.AtomicFact{FactType: models.FactTypeFinancingMention, EvidenceSnippet: "a senior bridge facility"}
	a.CreateFact(ctx, fact)
	ev := &models.FinancingEvent{InstrumentFamily: "bond", SourceFactIDs: []int64{fact.ID}}
	if err := a.CreateFinancingEvent(ctx, ev); err != nil {
		t.Fatalf("create event: %v", err)
	}

	c := New(a)
	result, err := c.ClassifyFinancingEvent(ctx, ev)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.MarketTag != models.MarketTagBridge {
		t.Errorf("expected Bridge to take priority over bond family, got %s", result.MarketTag)
	}
}

func TestClassifyFinancingEventBondDefaultsToSponsorBacked(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	sponsorBacked := true
	deal := &models.Deal{DealKey: "cik:1:cik:2", State: models.DealStateCandidate, IsSponsorBacked: &sponsorBacked}
	a.CreateDeal(ctx, deal)

	fact := &models.AtomicFact{FactType: models.FactTypeFinancingMention, EvidenceSnippet: "senior notes due 2031"}
	a.CreateFact(ctx, fact)
	ev := &models.FinancingEvent{DealID: deal.ID, InstrumentFamily: "bond", SourceFactIDs: []int64{fact.ID}}
	a.CreateFinancingEvent(ctx, ev)

	c := New(a)
	result, err := c.ClassifyFinancingEvent(ctx, ev)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.MarketTag != models.MarketTagHYBond {
		t.Errorf("expected a sponsor-backed deal with no rating signal to default to HY_Bond, got %s", result.MarketTag)
	}
}

func TestClassifyDealAggregatesMarketTagByPriority(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	deal := &models.Deal{DealKey: "cik:1:cik:2", State: models.DealStateCandidate, MarketTag: models.MarketTagUnknown}
	a.CreateDeal(ctx, deal)

	a.CreateFinancingEvent(ctx, &models.FinancingEvent{DealID: deal.ID, MarketTag: models.MarketTagIGBond})
	a.CreateFinancingEvent(ctx, &models.FinancingEvent{DealID: deal.ID, MarketTag: models.MarketTagHYBond})

	c := New(a)
	result, err := c.ClassifyDeal(ctx, deal)
	if err != nil {
		t.Fatalf("classify deal: %v", err)
	}
	if result.MarketTag != models.MarketTagHYBond {
		t.Errorf("expected HY_Bond to outrank IG_Bond, got %s", result.MarketTag)
	}
}

func TestClassifyDealInfersSponsorBackedFromTLBFinancing(t *testing.T) {
	a := store.NewArena()
	ctx := context.Background()

	deal := &models.Deal{DealKey: "cik:1:cik:2", State: models.DealStateCandidate}
	a.CreateDeal(ctx, deal)
	a.CreateFinancingEvent(ctx, &models.FinancingEvent{DealID: deal.ID, InstrumentType: "term_loan_b", MarketTag: models.MarketTagTermLoanB})

	c := New(a)
	result, err := c.ClassifyDeal(ctx, deal)
	if err != nil {
		t.Fatalf("classify deal: %v", err)
	}
	if !result.IsSponsorBacked {
		t.Error("expected a deal with a term_loan_b financing event to infer sponsor-backed")
	}
}
