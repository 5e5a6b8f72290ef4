// Package api exposes the control surface and a narrow read interface over
// store.Store as HTTP endpoints. Handlers never call extraction, clustering,
// or pattern-matching code directly — only store.Store and pipeline.Core,
// matching the "narrow external read interface" requirement the facts
// pipeline is built against.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/pipeline"
	"github.com/txplain/txplain/internal/store"
)

// Server is the REST façade over one pipeline.Core.
type Server struct {
	router  *mux.Router
	core    *pipeline.Core
	store   store.Store
	address string
	log     *zerolog.Logger
	server  *http.Server
}

// NewServer constructs a Server bound to core's store and control surface.
func NewServer(address string, core *pipeline.Core, log *zerolog.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		core:    core,
		store:   core.Store,
		address: address,
		log:     log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/deals", s.handleSearchDeals).Methods("GET")
	v1.HandleFunc("/deals/{id}", s.handleGetDeal).Methods("GET")
	v1.HandleFunc("/deals/{id}/facts", s.handleGetDealFacts).Methods("GET")
	v1.HandleFunc("/alerts", s.handleListAlerts).Methods("GET")
	v1.HandleFunc("/alerts/{id}/manual-input", s.handleSubmitManualInput).Methods("POST")
	v1.HandleFunc("/ingest", s.handleIngest).Methods("POST")
	v1.HandleFunc("/run-pipeline", s.handleRunPipeline).Methods("POST")
	v1.HandleFunc("/summary", s.handleSummary).Methods("GET")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "magraph",
		"version":   "1.0.0",
	})
}

// handleSearchDeals backs GET /api/v1/deals?q=&sponsor_backed=&market_tag=&state=&page=&page_size=.
// state/market_tag/sponsor_backed are applied in-process against SearchDeals'
// free-text result since store.Store exposes no combined filter query (§6's
// narrow read interface favors a small store surface over an ad-hoc query
// builder per endpoint).
func (s *Server) handleSearchDeals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := atoiDefault(q.Get("page"), 1)
	pageSize := atoiDefault(q.Get("page_size"), 25)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 25
	}
	offset := (page - 1) * pageSize

	deals, err := s.store.SearchDeals(r.Context(), q.Get("q"), pageSize*5, 0)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to search deals", err)
		return
	}

	wantState := q.Get("state")
	wantMarketTag := q.Get("market_tag")
	wantSponsorBacked := q.Get("sponsor_backed")

	filtered := deals[:0:0]
	for _, d := range deals {
		if wantState != "" && string(d.State) != wantState {
			continue
		}
		if wantMarketTag != "" && string(d.MarketTag) != wantMarketTag {
			continue
		}
		if wantSponsorBacked != "" {
			want := wantSponsorBacked == "true"
			if d.IsSponsorBacked == nil || *d.IsSponsorBacked != want {
				continue
			}
		}
		filtered = append(filtered, d)
	}

	total := len(filtered)
	if offset > total {
		offset = total
	}
	end := offset + pageSize
	if end > total {
		end = total
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"deals":     dealViews(filtered[offset:end]),
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// dealView wraps a Deal with humanize-formatted display strings so API
// consumers don't have to reimplement dollar formatting client-side.
type dealView struct {
	*models.Deal
	DealValueDisplay               string `json:"deal_value_display,omitempty"`
	AdvisoryFeeEstimatedDisplay     string `json:"advisory_fee_estimated_display,omitempty"`
	UnderwritingFeeEstimatedDisplay string `json:"underwriting_fee_estimated_display,omitempty"`
}

func newDealView(d *models.Deal) dealView {
	return dealView{
		Deal:                            d,
		DealValueDisplay:                humanizeUSD(d.DealValueUSD),
		AdvisoryFeeEstimatedDisplay:     humanizeUSD(d.AdvisoryFeeEstimatedUSD),
		UnderwritingFeeEstimatedDisplay: humanizeUSD(d.UnderwritingFeeEstimatedUSD),
	}
}

func dealViews(deals []*models.Deal) []dealView {
	out := make([]dealView, len(deals))
	for i, d := range deals {
		out[i] = newDealView(d)
	}
	return out
}

// humanizeUSD renders a nullable USD amount as a comma-grouped dollar
// string, e.g. $1,250,000,000. Returns "" for a nil amount so omitempty
// drops it from the JSON response instead of serializing "$0".
func humanizeUSD(amountUSD *float64) string {
	if amountUSD == nil {
		return ""
	}
	return "$" + humanize.Commaf(*amountUSD)
}

// financingEventView wraps a FinancingEvent with a display string for its
// principal amount.
type financingEventView struct {
	*models.FinancingEvent
	AmountDisplay string `json:"amount_display,omitempty"`
}

func financingEventViews(events []*models.FinancingEvent) []financingEventView {
	out := make([]financingEventView, len(events))
	for i, ev := range events {
		out[i] = financingEventView{FinancingEvent: ev, AmountDisplay: humanizeUSD(ev.AmountUSD)}
	}
	return out
}

func (s *Server) handleGetDeal(w http.ResponseWriter, r *http.Request) {
	id, err := idFromPath(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid deal id", err)
		return
	}

	deal, err := s.store.GetDeal(r.Context(), id)
	if err == store.ErrNotFound {
		s.writeError(w, http.StatusNotFound, "deal not found", nil)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch deal", err)
		return
	}

	events, err := s.store.ListFinancingEventsByDeal(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch financing events", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"deal":             newDealView(deal),
		"financing_events": financingEventViews(events),
	})
}

func (s *Server) handleGetDealFacts(w http.ResponseWriter, r *http.Request) {
	id, err := idFromPath(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid deal id", err)
		return
	}

	facts, err := s.store.FactsByDeal(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch deal facts", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"facts": facts, "count": len(facts)})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	kind := models.AlertType(r.URL.Query().Get("kind"))

	alerts, err := s.store.ListAlerts(r.Context(), status, kind)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list alerts", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

type manualInputRequest struct {
	InputType string         `json:"input_type"`
	Data      map[string]any `json:"data"`
	EnteredBy string         `json:"entered_by"`
	Notes     string         `json:"notes"`
}

func (s *Server) handleSubmitManualInput(w http.ResponseWriter, r *http.Request) {
	id, err := idFromPath(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid alert id", err)
		return
	}

	var req manualInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.InputType == "" || req.EnteredBy == "" {
		s.writeError(w, http.StatusBadRequest, "input_type and entered_by are required", nil)
		return
	}

	input, err := s.core.SubmitManualInput(r.Context(), id, req.InputType, req.Data, req.EnteredBy, req.Notes)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to submit manual input", err)
		return
	}
	s.writeJSON(w, http.StatusOK, input)
}

type ingestRequest struct {
	CIK        string   `json:"cik"`
	FormTypes  []string `json:"form_types"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.CIK == "" {
		s.writeError(w, http.StatusBadRequest, "cik is required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	stats, err := s.core.Ingest(ctx, req.CIK, req.FormTypes, req.StartDate, req.EndDate)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "ingest failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	summaries, err := s.core.RunPipeline(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "pipeline run failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"stages": summaries})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	states := []models.DealState{
		models.DealStateCandidate, models.DealStateOpen, models.DealStateClosed,
		models.DealStateLocked, models.DealStateNeedsReview,
	}
	byState := make(map[string]int, len(states))
	for _, st := range states {
		deals, err := s.store.ListDealsByState(r.Context(), st)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to count deals", err)
			return
		}
		byState[string(st)] = len(deals)
	}

	openAlerts, err := s.store.ListAlerts(r.Context(), "open", "")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to count open alerts", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"deals_by_state":   byState,
		"open_alert_count": len(openAlerts),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("api: failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string, err error) {
	response := map[string]any{
		"error":     message,
		"timestamp": time.Now().UTC(),
	}
	if err != nil {
		response["details"] = err.Error()
		s.log.Warn().Int("status", statusCode).Str("message", message).Err(err).Msg("api error")
	}
	s.writeJSON(w, statusCode, response)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.log.Info().Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).Dur("elapsed", time.Since(start)).Msg("api request")
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.address,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.log.Info().Str("address", s.address).Msg("starting magraph API server")
	return s.server.ListenAndServe()
}

// Stop gracefully shuts the server down within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info().Msg("shutting down magraph API server")
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}

func idFromPath(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	return strconv.ParseInt(raw, 10, 64)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
