package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/txplain/txplain/internal/models"
)

// Arena is the in-memory Store implementation: an identifier-indexed graph
// (map[int64]*T per entity) with no pointer cycles, matching the original
// SQLAlchemy-relationship graph's storage shape more closely than an
// in-memory pointer graph would. Safe for concurrent use.
type Arena struct {
	mu sync.Mutex

	nextID int64

	filings  map[int64]*models.Filing
	exhibits map[int64]*models.Exhibit
	facts    map[int64]*models.AtomicFact
	deals    map[int64]*models.Deal
	dealKeys map[string]int64
	events   map[int64]*models.FinancingEvent
	parts    map[int64]*models.FinancingParticipant
	banks    map[int64]*models.Bank
	alerts   map[int64]*models.Alert
	manualInputs map[int64]*models.ManualInput
}

// NewArena constructs an empty in-memory Store.
func NewArena() *Arena {
	return &Arena{
		filings:  make(map[int64]*models.Filing),
		exhibits: make(map[int64]*models.Exhibit),
		facts:    make(map[int64]*models.AtomicFact),
		deals:    make(map[int64]*models.Deal),
		dealKeys: make(map[string]int64),
		events:   make(map[int64]*models.FinancingEvent),
		parts:    make(map[int64]*models.FinancingParticipant),
		banks:    make(map[int64]*models.Bank),
		alerts:   make(map[int64]*models.Alert),
		manualInputs: make(map[int64]*models.ManualInput),
	}
}

func (a *Arena) allocID() int64 {
	a.nextID++
	return a.nextID
}

func (a *Arena) CreateFiling(_ context.Context, f *models.Filing) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	f.ID = a.allocID()
	a.filings[f.ID] = f
	return nil
}

func (a *Arena) GetFiling(_ context.Context, id int64) (*models.Filing, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.filings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return f, nil
}

func (a *Arena) FilingByAccession(_ context.Context, accession string) (*models.Filing, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, f := range a.filings {
		if f.AccessionNumber == accession {
			return f, nil
		}
	}
	return nil, ErrNotFound
}

func (a *Arena) CreateExhibit(_ context.Context, e *models.Exhibit) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	e.ID = a.allocID()
	a.exhibits[e.ID] = e
	return nil
}

func (a *Arena) UpdateExhibit(_ context.Context, e *models.Exhibit) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.exhibits[e.ID]; !ok {
		return ErrNotFound
	}
	a.exhibits[e.ID] = e
	return nil
}

func (a *Arena) CreateFact(_ context.Context, f *models.AtomicFact) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	f.ID = a.allocID()
	a.facts[f.ID] = f
	return nil
}

func (a *Arena) GetFact(_ context.Context, id int64) (*models.AtomicFact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.facts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return f, nil
}

func (a *Arena) FactsByDeal(_ context.Context, dealID int64) ([]*models.AtomicFact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*models.AtomicFact
	for _, f := range a.facts {
		if f.DealID != nil && *f.DealID == dealID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *Arena) FactsByEvidencePrefix(_ context.Context, exhibitID int64, pattern, prefix string) ([]*models.AtomicFact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*models.AtomicFact
	for _, f := range a.facts {
		if f.ExhibitID != exhibitID || f.ExtractionPattern != pattern {
			continue
		}
		if strings.HasPrefix(f.EvidenceSnippet, prefix) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (a *Arena) UnclusteredFactsByType(_ context.Context, types ...models.FactType) ([]*models.AtomicFact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	want := make(map[models.FactType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []*models.AtomicFact
	for _, f := range a.facts {
		if f.DealID == nil && want[f.FactType] {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *Arena) LinkedFactsByType(_ context.Context, types ...models.FactType) ([]*models.AtomicFact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	want := make(map[models.FactType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []*models.AtomicFact
	for _, f := range a.facts {
		if f.DealID != nil && want[f.FactType] {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RelatedPartyFacts finds sibling PartyDefinition/PartyMention facts in the
// same exhibit (or, if the fact has no exhibit, the same filing).
func (a *Arena) RelatedPartyFacts(_ context.Context, f *models.AtomicFact, excludeID int64) ([]*models.AtomicFact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*models.AtomicFact
	for _, cand := range a.facts {
		if cand.ID == excludeID {
			continue
		}
		if cand.FactType != models.FactTypePartyDefinition && cand.FactType != models.FactTypePartyMention {
			continue
		}
		if f.ExhibitID != 0 {
			if cand.ExhibitID != f.ExhibitID {
				continue
			}
		} else if cand.FilingID != f.FilingID {
			continue
		}
		out = append(out, cand)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *Arena) AssignFactDeal(_ context.Context, factID, dealID int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.facts[factID]
	if !ok {
		return false, ErrNotFound
	}
	if f.DealID != nil {
		return false, nil
	}
	id := dealID
	f.DealID = &id
	return true, nil
}

// DealIDForLocality finds the deal_id of a clustered party fact in the same
// exhibit/filing as f, for attaching secondary facts.
func (a *Arena) DealIDForLocality(_ context.Context, f *models.AtomicFact) (int64, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, cand := range a.facts {
		if cand.DealID == nil {
			continue
		}
		if cand.FactType != models.FactTypePartyDefinition && cand.FactType != models.FactTypePartyMention {
			continue
		}
		if f.ExhibitID != 0 {
			if cand.ExhibitID == f.ExhibitID {
				return *cand.DealID, true, nil
			}
			continue
		}
		if cand.FilingID == f.FilingID {
			return *cand.DealID, true, nil
		}
	}
	return 0, false, nil
}

func (a *Arena) MoveFactsToDeal(_ context.Context, sourceDealID, targetDealID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, f := range a.facts {
		if f.DealID != nil && *f.DealID == sourceDealID {
			id := targetDealID
			f.DealID = &id
		}
	}
	return nil
}

func (a *Arena) CreateDeal(_ context.Context, d *models.Deal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.dealKeys[d.DealKey]; exists {
		return ErrDealKeyExists
	}
	d.ID = a.allocID()
	a.deals[d.ID] = d
	a.dealKeys[d.DealKey] = d.ID
	return nil
}

func (a *Arena) GetDeal(_ context.Context, id int64) (*models.Deal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.deals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (a *Arena) DealByKey(_ context.Context, key string) (*models.Deal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.dealKeys[key]
	if !ok {
		return nil, ErrNotFound
	}
	return a.deals[id], nil
}

func (a *Arena) UpdateDeal(_ context.Context, d *models.Deal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	existing, ok := a.deals[d.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.DealKey != d.DealKey {
		delete(a.dealKeys, existing.DealKey)
		a.dealKeys[d.DealKey] = d.ID
	}
	a.deals[d.ID] = d
	return nil
}

func (a *Arena) DeleteDeal(_ context.Context, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.deals[id]
	if !ok {
		return ErrNotFound
	}
	delete(a.deals, id)
	delete(a.dealKeys, d.DealKey)
	return nil
}

func (a *Arena) ListDealsByState(_ context.Context, states ...models.DealState) ([]*models.Deal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	want := make(map[models.DealState]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	var out []*models.Deal
	for _, d := range a.deals {
		if len(want) == 0 || want[d.State] {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *Arena) SearchDeals(_ context.Context, query string, limit, offset int) ([]*models.Deal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	q := strings.ToLower(query)
	var matches []*models.Deal
	for _, d := range a.deals {
		if q == "" || strings.Contains(strings.ToLower(d.TargetNameDisplay), q) ||
			strings.Contains(strings.ToLower(d.AcquirerNameDisplay), q) {
			matches = append(matches, d)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	if offset >= len(matches) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matches) {
		end = len(matches)
	}
	return matches[offset:end], nil
}

func (a *Arena) CreateFinancingEvent(_ context.Context, ev *models.FinancingEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	ev.ID = a.allocID()
	a.events[ev.ID] = ev
	return nil
}

func (a *Arena) UpdateFinancingEvent(_ context.Context, ev *models.FinancingEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.events[ev.ID]; !ok {
		return ErrNotFound
	}
	a.events[ev.ID] = ev
	return nil
}

func (a *Arena) ListFinancingEventsByDeal(_ context.Context, dealID int64) ([]*models.FinancingEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*models.FinancingEvent
	for _, ev := range a.events {
		if ev.DealID == dealID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *Arena) ListAllFinancingEvents(_ context.Context) ([]*models.FinancingEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*models.FinancingEvent
	for _, ev := range a.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *Arena) CreateParticipant(_ context.Context, p *models.FinancingParticipant) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p.ID = a.allocID()
	a.parts[p.ID] = p
	if ev, ok := a.events[p.FinancingEventID]; ok {
		ev.Participants = append(ev.Participants, p)
	}
	return nil
}

func (a *Arena) UpdateParticipant(_ context.Context, p *models.FinancingParticipant) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.parts[p.ID]; !ok {
		return ErrNotFound
	}
	a.parts[p.ID] = p
	return nil
}

func (a *Arena) MoveFinancingEventsToDeal(_ context.Context, sourceDealID, targetDealID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ev := range a.events {
		if ev.DealID == sourceDealID {
			ev.DealID = targetDealID
		}
	}
	return nil
}

func (a *Arena) FinancingEventExistsForFacts(_ context.Context, factIDs []int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ev := range a.events {
		if sameFactSet(ev.SourceFactIDs, factIDs) {
			return true, nil
		}
	}
	return false, nil
}

func sameFactSet(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int64]bool, len(a))
	for _, id := range a {
		seen[id] = true
	}
	for _, id := range b {
		if !seen[id] {
			return false
		}
	}
	return true
}

func (a *Arena) CreateBank(_ context.Context, b *models.Bank) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	b.ID = a.allocID()
	a.banks[b.ID] = b
	return nil
}

func (a *Arena) GetBank(_ context.Context, id int64) (*models.Bank, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.banks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (a *Arena) BankByNormalizedName(_ context.Context, normalized string) (*models.Bank, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range a.banks {
		if b.NormalizedName == normalized {
			return b, nil
		}
	}
	return nil, ErrNotFound
}

func (a *Arena) ListBanks(_ context.Context) ([]*models.Bank, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*models.Bank
	for _, b := range a.banks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *Arena) CreateAlert(_ context.Context, al *models.Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	al.ID = a.allocID()
	a.alerts[al.ID] = al
	return nil
}

func (a *Arena) GetAlert(_ context.Context, id int64) (*models.Alert, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	al, ok := a.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return al, nil
}

func (a *Arena) ResolveAlert(_ context.Context, id int64, resolvedBy, notes string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	al, ok := a.alerts[id]
	if !ok {
		return ErrNotFound
	}
	al.IsResolved = true
	al.ResolvedBy = resolvedBy
	al.ResolutionNotes = notes
	return nil
}

func (a *Arena) ListUnresolvedAlerts(_ context.Context) ([]*models.Alert, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*models.Alert
	for _, al := range a.alerts {
		if !al.IsResolved {
			out = append(out, al)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *Arena) ListAlerts(_ context.Context, status string, kind models.AlertType) ([]*models.Alert, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*models.Alert
	for _, al := range a.alerts {
		switch status {
		case "open":
			if al.IsResolved {
				continue
			}
		case "resolved":
			if !al.IsResolved {
				continue
			}
		}
		if kind != "" && al.Type != kind {
			continue
		}
		out = append(out, al)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *Arena) CreateManualInput(_ context.Context, m *models.ManualInput) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	m.ID = a.allocID()
	a.manualInputs[m.ID] = m
	return nil
}
