package submissions

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"thesis-portal/thesis-portal-backend/internal/identity"
)

// Status is the submission review state
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var (
	// ErrAlreadyReviewed is returned when reviewing a submission that is no
	// longer pending.
	ErrAlreadyReviewed = errors.New("submission already reviewed")
	// ErrResubmissionNotAllowed is returned when resubmitting against a
	// submission that is not rejected or not flagged resubmittable.
	ErrResubmissionNotAllowed = errors.New("resubmission not allowed")
)

// Ineligibility reasons, reported in eligibility-check order.
const (
	ReasonNoSupervisor        = "no accepted supervisor"
	ReasonRegistrationPending = "thesis registration not approved"
	ReasonAlreadySubmitted    = "phase already has a pending or approved submission"
	ReasonP1NotApproved       = "P1 not approved"
	ReasonP2NotApproved       = "P2 not approved"
)

// IneligibleError rejects a submission attempt with the first failed
// eligibility condition.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("not eligible to submit: %s", e.Reason)
}

// Submission is one phase deliverable under review. The supervisor is
// captured at creation time and keeps review authority even if the owner
// later switches supervisors.
type Submission struct {
	ID                uuid.UUID `db:"id" json:"id"`
	AuthorID          uuid.UUID `db:"author_id" json:"author_id"`
	identity.OwnerRef `json:"owner"`
	Phase             identity.Phase `db:"phase" json:"phase"`
	Title             string         `db:"title" json:"title"`
	FileKey           string         `db:"file_key" json:"file_key"`
	Status            Status         `db:"status" json:"status"`
	CanResubmit       bool           `db:"can_resubmit" json:"can_resubmit"`
	OriginalID        *uuid.UUID     `db:"original_id" json:"original_id,omitempty"`
	SupervisorID      uuid.UUID      `db:"supervisor_id" json:"supervisor_id"`
	SubmittedAt       time.Time      `db:"submitted_at" json:"submitted_at"`
	ReviewedAt        *time.Time     `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewComments    *string        `db:"review_comments" json:"review_comments,omitempty"`
}

// IsResubmission reports whether this submission replaces a rejected one
func (s *Submission) IsResubmission() bool { return s.OriginalID != nil }
