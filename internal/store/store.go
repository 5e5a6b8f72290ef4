// Package store defines the persistence boundary every pipeline stage and
// the REST façade operate through. A Store is the only way any component
// reads or writes Filings, Exhibits, AtomicFacts, Deals, FinancingEvents,
// Participants, Banks, and Alerts — no stage talks to a database directly.
package store

import (
	"context"
	"errors"

	"github.com/txplain/txplain/internal/models"
)

// ErrDealKeyExists is returned by CreateDeal when another deal already
// holds the given deal_key; the caller must refetch via DealByKey.
var ErrDealKeyExists = errors.New("store: deal_key already exists")

// ErrNotFound is returned by id-based lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// ErrFactAlreadyAssigned names the write-once conflict on a fact's deal_id.
// AssignFactDeal does not return it: it reports that case as assigned=false
// with a nil error.
var ErrFactAlreadyAssigned = errors.New("store: fact already assigned to a deal")

// Store is the full read/write surface backing the pipeline and the API
// façade. Implementations: an in-memory arena (memory.go) for tests and
// single-process runs, and a pgx/v4-backed store (pg/) for production.
type Store interface {
	// Filings & Exhibits
	CreateFiling(ctx context.Context, f *models.Filing) error
	GetFiling(ctx context.Context, id int64) (*models.Filing, error)
	FilingByAccession(ctx context.Context, accession string) (*models.Filing, error)
	CreateExhibit(ctx context.Context, e *models.Exhibit) error
	UpdateExhibit(ctx context.Context, e *models.Exhibit) error

	// Facts
	CreateFact(ctx context.Context, f *models.AtomicFact) error
	GetFact(ctx context.Context, id int64) (*models.AtomicFact, error)
	FactsByEvidencePrefix(ctx context.Context, exhibitID int64, pattern, prefix string) ([]*models.AtomicFact, error)
	UnclusteredFactsByType(ctx context.Context, types ...models.FactType) ([]*models.AtomicFact, error)
	// FactsByDeal returns every fact attached to dealID, for the REST
	// façade's GET /api/v1/deals/{id}/facts endpoint.
	FactsByDeal(ctx context.Context, dealID int64) ([]*models.AtomicFact, error)
	// LinkedFactsByType is the mirror of UnclusteredFactsByType: facts of the
	// given types that already carry a deal_id.
	LinkedFactsByType(ctx context.Context, types ...models.FactType) ([]*models.AtomicFact, error)
	RelatedPartyFacts(ctx context.Context, f *models.AtomicFact, excludeID int64) ([]*models.AtomicFact, error)
	// AssignFactDeal sets deal_id only if it is currently nil (compare-and-swap).
	// assigned is false (with nil error) when the fact already carried a deal_id.
	AssignFactDeal(ctx context.Context, factID, dealID int64) (assigned bool, err error)
	DealIDForLocality(ctx context.Context, f *models.AtomicFact) (int64, bool, error)
	MoveFactsToDeal(ctx context.Context, sourceDealID, targetDealID int64) error

	// Deals
	CreateDeal(ctx context.Context, d *models.Deal) error
	GetDeal(ctx context.Context, id int64) (*models.Deal, error)
	DealByKey(ctx context.Context, key string) (*models.Deal, error)
	UpdateDeal(ctx context.Context, d *models.Deal) error
	DeleteDeal(ctx context.Context, id int64) error
	ListDealsByState(ctx context.Context, states ...models.DealState) ([]*models.Deal, error)
	SearchDeals(ctx context.Context, query string, limit, offset int) ([]*models.Deal, error)

	// Financing events & participants
	CreateFinancingEvent(ctx context.Context, ev *models.FinancingEvent) error
	UpdateFinancingEvent(ctx context.Context, ev *models.FinancingEvent) error
	ListFinancingEventsByDeal(ctx context.Context, dealID int64) ([]*models.FinancingEvent, error)
	ListAllFinancingEvents(ctx context.Context) ([]*models.FinancingEvent, error)
	CreateParticipant(ctx context.Context, p *models.FinancingParticipant) error
	UpdateParticipant(ctx context.Context, p *models.FinancingParticipant) error
	MoveFinancingEventsToDeal(ctx context.Context, sourceDealID, targetDealID int64) error
	FinancingEventExistsForFacts(ctx context.Context, factIDs []int64) (bool, error)

	// Banks
	CreateBank(ctx context.Context, b *models.Bank) error
	GetBank(ctx context.Context, id int64) (*models.Bank, error)
	BankByNormalizedName(ctx context.Context, normalized string) (*models.Bank, error)
	ListBanks(ctx context.Context) ([]*models.Bank, error)

	// Alerts
	CreateAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, id int64) (*models.Alert, error)
	ResolveAlert(ctx context.Context, id int64, resolvedBy, notes string) error
	ListUnresolvedAlerts(ctx context.Context) ([]*models.Alert, error)
	// ListAlerts filters by resolution status ("open", "resolved", or "" for
	// both) and alert kind ("" for any kind), for the REST façade's alert queue.
	ListAlerts(ctx context.Context, status string, kind models.AlertType) ([]*models.Alert, error)

	// Manual inputs
	CreateManualInput(ctx context.Context, m *models.ManualInput) error
}
