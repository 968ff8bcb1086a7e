package model

import "time"

// ReviewStatus is the lifecycle state of a pending scholarship record.
type ReviewStatus string

const (
	StatusPending     ReviewStatus = "pending"
	StatusNeedsReview ReviewStatus = "needs_review"
	StatusApproved    ReviewStatus = "approved"
	StatusRejected    ReviewStatus = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s ReviewStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// PendingScholarship is one row of the human review queue. Exactly one row
// is created per attempted URL, even when extraction fails (Extracted nil).
// Rows are mutated only by reviewer actions and never deleted.
type PendingScholarship struct {
	ID              string                `json:"id"`
	SourceURL       string                `json:"source_url"` // normalized, unique
	RawPageText     string                `json:"raw_page_text"`
	Extracted       *ScholarshipExtracted `json:"extracted_data"`
	ExtractionModel string                `json:"extraction_model"`
	Confidence      float64               `json:"extraction_confidence"`
	Status          ReviewStatus          `json:"status"`
	ReviewerNotes   *string               `json:"reviewer_notes,omitempty"`
	ReviewedBy      *string               `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time            `json:"reviewed_at,omitempty"`
	ScholarshipID   *int64                `json:"scholarship_id,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}
