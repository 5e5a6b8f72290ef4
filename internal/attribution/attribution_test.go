package attribution

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/store"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "attribution_config.json")
	content := `{
		"advisory_fee_bps": {"default": 75, "deal_size_over_1B": 50, "deal_size_over_5B": 35},
		"underwriting_fee_bps": {"HY_Bond": 200, "Term_Loan_B": 150, "Unknown": 100},
		"role_splits": {
			"loan": {"lead_arranger": 0.6, "agent": 0.3, "other": 0.1}
		},
		"thresholds": {"fuzzy_bank_match_min": 92}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAttributionConfigFailsFastOnMissingFile(t *testing.T) {
	if _, err := LoadAttributionConfig("/nonexistent/path.json"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadAttributionConfigFailsFastOnMissingField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte(`{"advisory_fee_bps": {"default": 75}}`), 0o644)

	if _, err := LoadAttributionConfig(path); err == nil {
		t.Fatal("expected an error for a config missing required sections")
	}
}

func TestCalculateDealFeesUsesSizeTier(t *testing.T) {
	cfg, err := LoadAttributionConfig(writeTestConfig(t))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	a := store.NewArena()
	ctx := context.Background()
	dealValue := 6_000_000_000.0
	deal := &models.Deal{DealKey: "cik:1:cik:2", State: models.DealStateCandidate, DealValueUSD: &dealValue}
	if err := a.CreateDeal(ctx, deal); err != nil {
		t.Fatalf("create deal: %v", err)
	}

	e := New(a, cfg)
	result, err := e.CalculateDealFees(ctx, deal)
	if err != nil {
		t.Fatalf("calculate deal fees: %v", err)
	}
	if result.AdvisoryFeeUSD == nil {
		t.Fatal("expected an advisory fee estimate")
	}
	want := dealValue * (35.0 / 10000)
	if *result.AdvisoryFeeUSD != want {
		t.Errorf("expected %.2f (deal_size_over_5B tier), got %.2f", want, *result.AdvisoryFeeUSD)
	}
}

func TestAllocateToParticipantsSplitsByRoleWeight(t *testing.T) {
	cfg, err := LoadAttributionConfig(writeTestConfig(t))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	a := store.NewArena()
	ctx := context.Background()
	amount := 400_000_000.0
	ev := &models.FinancingEvent{InstrumentFamily: "loan", MarketTag: models.MarketTagTermLoanB, AmountUSD: &amount}
	if err := a.CreateFinancingEvent(ctx, ev); err != nil {
		t.Fatalf("create event: %v", err)
	}
	p1 := &models.FinancingParticipant{FinancingEventID: ev.ID, BankNameRaw: "Bank A", RoleNormalized: models.RoleLeadArranger}
	p2 := &models.FinancingParticipant{FinancingEventID: ev.ID, BankNameRaw: "Bank B", RoleNormalized: models.RoleAgent}
	a.CreateParticipant(ctx, p1)
	a.CreateParticipant(ctx, p2)

	e := New(a, cfg)
	fee, allocations, err := e.CalculateEventFee(ctx, ev)
	if err != nil {
		t.Fatalf("calculate event fee: %v", err)
	}
	wantFee := amount * (150.0 / 10000)
	if fee != wantFee {
		t.Errorf("expected total fee %.2f, got %.2f", wantFee, fee)
	}
	if len(allocations) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(allocations))
	}

	var arrangerShare, agentShare float64
	for _, a := range allocations {
		switch a.RoleNormalized {
		case models.RoleLeadArranger:
			arrangerShare = a.FeeUSD
		case models.RoleAgent:
			agentShare = a.FeeUSD
		}
	}
	wantArranger := fee * (0.6 / (0.6 + 0.3))
	if arrangerShare != wantArranger {
		t.Errorf("expected lead_arranger share %.4f, got %.4f", wantArranger, arrangerShare)
	}
	if agentShare <= 0 {
		t.Error("expected a nonzero agent share")
	}
}
