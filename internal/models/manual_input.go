package models

import "time"

// ManualInput is a structured human-provided payload linked to an alert and
// a target entity. Persisting one also materializes a Manual atomic fact
// (see NewManualFact) so downstream stages treat it identically to
// machine-extracted facts.
type ManualInput struct {
	ID int64

	AlertID *int64

	DealID           *int64
	FinancingEventID *int64

	InputType string
	Data      map[string]any

	EnteredBy string
	EnteredAt time.Time
	Notes     string

	VerifiedAt *time.Time
	VerifiedBy string

	CreatedAt time.Time
	UpdatedAt time.Time
}
