package supervision

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"thesis-portal/thesis-portal-backend/internal/identity"
)

// ErrCapacityExceeded is returned when accepting a request would exceed the
// faculty member's seat capacity.
var ErrCapacityExceeded = errors.New("seat capacity exceeded")

// RequestStatus is the lifecycle of a supervisor request
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
	// Seat increase requests resolve to approved instead of accepted.
	RequestApproved RequestStatus = "approved"
)

// SupervisorRequest is an owner's petition for a faculty member to supervise
// their thesis. At most one pending request per (owner, faculty) pair.
type SupervisorRequest struct {
	ID                uuid.UUID         `db:"id" json:"id"`
	identity.OwnerRef `json:"owner"`
	FacultyID         uuid.UUID     `db:"faculty_id" json:"faculty_id"`
	Status            RequestStatus `db:"status" json:"status"`
	RequestedAt       time.Time     `db:"requested_at" json:"requested_at"`
	RespondedAt       *time.Time    `db:"responded_at" json:"responded_at,omitempty"`
}

// Supervisee is one occupied seat: an owner under a faculty member's
// supervision. A group occupies a single seat regardless of its size.
type Supervisee struct {
	FacultyID         uuid.UUID `db:"faculty_id" json:"faculty_id"`
	identity.OwnerRef `json:"owner"`
	AcceptedAt        time.Time `db:"accepted_at" json:"accepted_at"`
}

// SeatInfo summarizes a faculty member's supervision load
type SeatInfo struct {
	Capacity        int `db:"capacity" json:"capacity"`
	Used            int `db:"used" json:"used"`
	Available       int `json:"available"`
	IndividualCount int `db:"individual_count" json:"individual_count"`
	GroupCount      int `db:"group_count" json:"group_count"`
}

// SeatIncreaseRequest is a faculty member's petition for more seats,
// reviewed by an administrator.
type SeatIncreaseRequest struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	FacultyID      uuid.UUID     `db:"faculty_id" json:"faculty_id"`
	RequestedSeats int           `db:"requested_seats" json:"requested_seats"`
	Reason         string        `db:"reason" json:"reason"`
	Status         RequestStatus `db:"status" json:"status"`
	RequestedAt    time.Time     `db:"requested_at" json:"requested_at"`
	ReviewedAt     *time.Time    `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy     *uuid.UUID    `db:"reviewed_by" json:"reviewed_by,omitempty"`
}
