package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/pipeline"
	"github.com/txplain/txplain/internal/store"
)

func testServer() (*Server, *store.Arena) {
	a := store.NewArena()
	l := zerolog.Nop()
	core := pipeline.New(a, nil, nil, &l)
	return NewServer(":0", core, &l), a
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := testServer()
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", body["status"])
	}
}

func TestGetDealReturnsNotFoundForUnknownID(t *testing.T) {
	s, _ := testServer()
	req := httptest.NewRequest("GET", "/api/v1/deals/999", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetDealReturnsDealAndFinancingEvents(t *testing.T) {
	s, a := testServer()
	ctx := context.Background()

	sponsorBacked := true
	deal := &models.Deal{DealKey: "cik:1:cik:2", State: models.DealStateOpen, IsSponsorBacked: &sponsorBacked}
	if err := a.CreateDeal(ctx, deal); err != nil {
		t.Fatalf("create deal: %v", err)
	}
	event := &models.FinancingEvent{DealID: deal.ID, InstrumentType: "term_loan_b"}
	if err := a.CreateFinancingEvent(ctx, event); err != nil {
		t.Fatalf("create financing event: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/deals/"+itoa(deal.ID), nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Deal            models.Deal              `json:"deal"`
		FinancingEvents []models.FinancingEvent `json:"financing_events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Deal.ID != deal.ID {
		t.Errorf("expected deal id %d, got %d", deal.ID, body.Deal.ID)
	}
	if len(body.FinancingEvents) != 1 {
		t.Fatalf("expected 1 financing event, got %d", len(body.FinancingEvents))
	}
}

func TestSearchDealsFiltersByState(t *testing.T) {
	s, a := testServer()
	ctx := context.Background()

	a.CreateDeal(ctx, &models.Deal{DealKey: "cik:1:cik:2", TargetNameDisplay: "Alpha Target", State: models.DealStateOpen})
	a.CreateDeal(ctx, &models.Deal{DealKey: "cik:3:cik:4", TargetNameDisplay: "Beta Target", State: models.DealStateClosed})

	req := httptest.NewRequest("GET", "/api/v1/deals?state=OPEN", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Deals []models.Deal `json:"deals"`
		Total int           `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Total != 1 {
		t.Fatalf("expected 1 matching deal, got %d", body.Total)
	}
	if body.Deals[0].State != models.DealStateOpen {
		t.Errorf("expected OPEN deal, got %s", body.Deals[0].State)
	}
}

func TestListAlertsFiltersByStatus(t *testing.T) {
	s, a := testServer()
	ctx := context.Background()

	a.CreateAlert(ctx, &models.Alert{Type: models.AlertTypeUnresolvedBank, Title: "unresolved bank"})
	resolved := &models.Alert{Type: models.AlertTypeLowConfidenceMatch, Title: "low confidence"}
	a.CreateAlert(ctx, resolved)
	if err := a.ResolveAlert(ctx, resolved.ID, "analyst", "looked fine"); err != nil {
		t.Fatalf("resolve alert: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/alerts?status=open", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var body struct {
		Alerts []models.Alert `json:"alerts"`
		Count  int            `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Count != 1 {
		t.Fatalf("expected 1 open alert, got %d", body.Count)
	}
}

func TestSubmitManualInputEndpointResolvesAlert(t *testing.T) {
	s, a := testServer()
	ctx := context.Background()

	alert := &models.Alert{Type: models.AlertTypeUnparsedMaterialExhibit, Title: "needs manual input"}
	if err := a.CreateAlert(ctx, alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	body := `{"input_type":"credit_agreement_terms","data":{"facility_type":"term_loan_b"},"entered_by":"analyst@example.com"}`
	req := httptest.NewRequest("POST", "/api/v1/alerts/"+itoa(alert.ID)+"/manual-input", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resolved, err := a.GetAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if !resolved.IsResolved {
		t.Error("expected alert to be resolved")
	}
}

func TestSummaryEndpointCountsOpenAlerts(t *testing.T) {
	s, a := testServer()
	ctx := context.Background()
	a.CreateAlert(ctx, &models.Alert{Type: models.AlertTypeUnresolvedBank, Title: "x"})

	req := httptest.NewRequest("GET", "/api/v1/summary", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var body struct {
		OpenAlertCount int `json:"open_alert_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.OpenAlertCount != 1 {
		t.Errorf("expected 1 open alert, got %d", body.OpenAlertCount)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
