package models

import "time"

// AlertType is the closed set of human-review task kinds.
type AlertType string

const (
	AlertTypeUnparsedMaterialExhibit       AlertType = "UNPARSED_MATERIAL_EXHIBIT"
	AlertTypeFailedPrivateTargetExtraction AlertType = "FAILED_PRIVATE_TARGET_EXTRACTION"
	AlertTypeFailedSponsorExtraction       AlertType = "FAILED_SPONSOR_EXTRACTION"
	AlertTypeLowConfidenceMatch            AlertType = "LOW_CONFIDENCE_MATCH"
	AlertTypeDealMergeCandidate            AlertType = "DEAL_MERGE_CANDIDATE"
	AlertTypeUnresolvedBank                AlertType = "UNRESOLVED_BANK"
)

// Alert is a human-review task raised by any pipeline stage.
type Alert struct {
	ID   int64
	Type AlertType

	FilingID  *int64
	ExhibitID *int64
	DealID    *int64

	Title       string
	Description string

	ExhibitLink  string
	FieldsNeeded []string

	PreambleHash    string
	PreamblePreview string

	IsResolved     bool
	ResolvedAt     *time.Time
	ResolvedBy     string
	ResolutionNotes string

	CreatedAt time.Time
	UpdatedAt time.Time
}
