// Package pipeline exposes the three control-surface verbs
// (ingest/runPipeline/submitManualInput) as methods on Core, and adapts the
// teacher's dependency-ordered Tool runner into a fixed four-stage batch
// pipeline: cluster -> reconcile -> classify -> attribute.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/txplain/txplain/internal/attribution"
	"github.com/txplain/txplain/internal/classify"
	"github.com/txplain/txplain/internal/cluster"
	"github.com/txplain/txplain/internal/fetcher"
	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/reconcile"
	"github.com/txplain/txplain/internal/store"
)

// StageError reports which stage of a batch failed; RunPipeline returns it
// and runs no later stage. Adapted from the teacher's tools.ToolError
// (Tool/Message/Code) into this pipeline's Stage/Message/Cause shape.
type StageError struct {
	Stage   string
	Message string
	Cause   error
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *StageError) Unwrap() error { return e.Cause }

// Stage is one batch step of runPipeline. Unlike the teacher's Tool
// interface, stages here have a fixed, spec-mandated order rather than a
// dynamically computed dependency graph — cluster must run before
// reconcile, reconcile before classify, classify before attribute — so
// Stage carries no Dependencies() method.
type Stage interface {
	Name() string
	Run(ctx context.Context) (Summary, error)
}

// Summary is a stage's result, logged by the runner and returned to the
// CLI/API caller.
type Summary struct {
	Stage   string
	Details map[string]int
}

// Core bundles every collaborator the control surface needs: the store,
// the filing-registry fetcher, the attribution engine, and a logger held by
// reference (never a package-level global). The stages themselves do not
// log; RunPipeline logs each stage's timing and summary.
type Core struct {
	Store      store.Store
	Fetcher    *fetcher.Client
	Attribution *attribution.Engine
	Log        *zerolog.Logger
}

// New constructs a Core. attr may be nil if CalculateDealFees is never
// invoked by this process (e.g. a worker that only ingests).
func New(s store.Store, f *fetcher.Client, attr *attribution.Engine, log *zerolog.Logger) *Core {
	return &Core{Store: s, Fetcher: f, Attribution: attr, Log: log}
}

func (c *Core) stages() []Stage {
	return []Stage{
		clusterStage{store: c.Store},
		reconcileStage{reconciler: reconcile.New(c.Store)},
		classifyStage{classifier: classify.New(c.Store)},
		attributeStage{attribution: c.Attribution, store: c.Store},
	}
}

// RunPipeline runs cluster -> reconcile -> classify -> attribute in order,
// inside one logical batch. Each stage persists its own results through
// Store; a stage failure is wrapped in a StageError and the batch halts,
// matching §7's "database transactions are rolled back on any thrown error
// within a stage" (the transactional unit is the stage's own store calls).
func (c *Core) RunPipeline(ctx context.Context) ([]Summary, error) {
	var summaries []Summary
	for _, stage := range c.stages() {
		start := time.Now()
		summary, err := stage.Run(ctx)
		elapsed := time.Since(start)

		if err != nil {
			c.Log.Error().Str("stage", stage.Name()).Dur("elapsed", elapsed).Err(err).Msg("pipeline stage failed")
			return summaries, &StageError{Stage: stage.Name(), Message: "stage failed", Cause: err}
		}

		c.Log.Info().Str("stage", stage.Name()).Dur("elapsed", elapsed).Fields(summaryFields(summary)).Msg("pipeline stage completed")
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func summaryFields(s Summary) map[string]any {
	out := make(map[string]any, len(s.Details))
	for k, v := range s.Details {
		out[k] = v
	}
	return out
}

type clusterStage struct{ store store.Store }

func (clusterStage) Name() string { return "cluster" }

func (s clusterStage) Run(ctx context.Context) (Summary, error) {
	stats, err := cluster.ClusterUnclusteredFacts(ctx, s.store)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Stage: "cluster", Details: map[string]int{
		"deals_created":      stats.DealsCreated,
		"facts_attached":     stats.FactsAttached,
		"facts_skipped":      stats.FactsSkipped,
		"low_confidence_hit": stats.LowConfidenceHit,
	}}, nil
}

type reconcileStage struct{ reconciler *reconcile.Reconciler }

func (reconcileStage) Name() string { return "reconcile" }

func (s reconcileStage) Run(ctx context.Context) (Summary, error) {
	linked, err := s.reconciler.ReconcileLinked(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("reconcile linked: %w", err)
	}
	unlinked, err := s.reconciler.ReconcileUnlinked(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("reconcile unlinked: %w", err)
	}
	return Summary{Stage: "reconcile", Details: map[string]int{
		"events_created_linked":    linked.EventsCreated,
		"events_created_unlinked":  unlinked.EventsCreated,
		"facts_linked":             unlinked.FactsLinked,
		"facts_processed":          linked.FactsProcessed + unlinked.FactsProcessed,
		"low_confidence_skipped":   unlinked.LowConfidenceSkipped,
	}}, nil
}

type classifyStage struct{ classifier *classify.Classifier }

func (classifyStage) Name() string { return "classify" }

func (s classifyStage) Run(ctx context.Context) (Summary, error) {
	eventsClassified, dealsClassified, err := s.classifier.ClassifyAllUnclassified(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Stage: "classify", Details: map[string]int{
		"events_classified": eventsClassified,
		"deals_classified":  dealsClassified,
	}}, nil
}

type attributeStage struct {
	attribution *attribution.Engine
	store       store.Store
}

func (attributeStage) Name() string { return "attribute" }

func (s attributeStage) Run(ctx context.Context) (Summary, error) {
	if s.attribution == nil {
		return Summary{Stage: "attribute", Details: map[string]int{"deals_processed": 0}}, nil
	}

	var states = []models.DealState{
		models.DealStateCandidate, models.DealStateOpen, models.DealStateNeedsReview,
	}
	deals, err := s.store.ListDealsByState(ctx, states...)
	if err != nil {
		return Summary{}, err
	}

	processed := 0
	for _, deal := range deals {
		if _, err := s.attribution.CalculateDealFees(ctx, deal); err != nil {
			return Summary{}, fmt.Errorf("deal %d: %w", deal.ID, err)
		}
		processed++
	}
	return Summary{Stage: "attribute", Details: map[string]int{"deals_processed": processed}}, nil
}

// SubmitManualInput creates a ManualInput record, materializes a Manual
// atomic fact from it so downstream stages treat it identically to
// machine-extracted facts, and marks the originating alert resolved.
// Manual inputs bypass reconciliation scoring entirely (§7).
func (c *Core) SubmitManualInput(ctx context.Context, alertID int64, inputType string, data map[string]any, enteredBy, notes string) (*models.ManualInput, error) {
	alert, err := c.Store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: submit manual input: %w", err)
	}

	m := &models.ManualInput{
		AlertID:   &alertID,
		DealID:    alert.DealID,
		InputType: inputType,
		Data:      data,
		EnteredBy: enteredBy,
		Notes:     notes,
	}
	if err := c.Store.CreateManualInput(ctx, m); err != nil {
		return nil, fmt.Errorf("pipeline: create manual input: %w", err)
	}

	fact := models.NewManualFact(alert.DealID, models.ManualPayload{
		InputType: inputType,
		Data:      data,
		EnteredBy: enteredBy,
		Notes:     notes,
	})
	fact.FilingID = derefOr(alert.FilingID, 0)
	fact.ExhibitID = derefOr(alert.ExhibitID, 0)
	if err := c.Store.CreateFact(ctx, fact); err != nil {
		return nil, fmt.Errorf("pipeline: create manual fact: %w", err)
	}

	if err := c.Store.ResolveAlert(ctx, alertID, enteredBy, notes); err != nil {
		return nil, fmt.Errorf("pipeline: resolve alert: %w", err)
	}

	c.Log.Info().Int64("alert_id", alertID).Str("input_type", inputType).Str("entered_by", enteredBy).Msg("manual input submitted")
	return m, nil
}

func derefOr(v *int64, def int64) int64 {
	if v == nil {
		return def
	}
	return *v
}
