package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is a user's portal role
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

// Phase is one of the three ordered thesis milestones
type Phase string

const (
	PhaseP1 Phase = "P1"
	PhaseP2 Phase = "P2"
	PhaseP3 Phase = "P3"
)

// ParsePhase validates a phase string
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhaseP1, PhaseP2, PhaseP3:
		return Phase(s), nil
	}
	return "", fmt.Errorf("invalid phase %q", s)
}

// OwnerType distinguishes individual from group ownership
type OwnerType string

const (
	OwnerStudent OwnerType = "student"
	OwnerGroup   OwnerType = "group"
)

// OwnerRef is a typed reference to the entity a submission or registration
// belongs to: an individual student or a whole group, never both.
type OwnerRef struct {
	Type OwnerType `db:"owner_type" json:"type"`
	ID   uuid.UUID `db:"owner_id" json:"id"`
}

// IndividualOwner builds an OwnerRef for a solo student
func IndividualOwner(studentID uuid.UUID) OwnerRef {
	return OwnerRef{Type: OwnerStudent, ID: studentID}
}

// GroupOwner builds an OwnerRef for a group
func GroupOwner(groupID uuid.UUID) OwnerRef {
	return OwnerRef{Type: OwnerGroup, ID: groupID}
}

// IsGroup reports whether the owner is a group
func (o OwnerRef) IsGroup() bool { return o.Type == OwnerGroup }

func (o OwnerRef) String() string {
	return fmt.Sprintf("%s:%s", o.Type, o.ID)
}

// RegistrationStatus is the lifecycle of a thesis registration
type RegistrationStatus string

const (
	RegistrationNotSubmitted RegistrationStatus = "not_submitted"
	RegistrationPending      RegistrationStatus = "pending"
	RegistrationApproved     RegistrationStatus = "approved"
	RegistrationRejected     RegistrationStatus = "rejected"
)

// Registration is the pre-approval record a student (or group) must get
// approved before any phase submission is allowed. It is embedded on the
// owner row; grouped students share the group's record.
type Registration struct {
	Status      RegistrationStatus `db:"registration_status" json:"status"`
	Title       *string            `db:"registration_title" json:"title,omitempty"`
	Description *string            `db:"registration_description" json:"description,omitempty"`
	SubmittedAt *time.Time         `db:"registration_submitted_at" json:"submitted_at,omitempty"`
	ReviewedAt  *time.Time         `db:"registration_reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy  *uuid.UUID         `db:"registration_reviewed_by" json:"reviewed_by,omitempty"`
	Comments    *string            `db:"registration_comments" json:"comments,omitempty"`
}

// Marks holds the per-phase marks assigned by the supervisor
type Marks struct {
	P1 *float64 `db:"p1_mark" json:"p1,omitempty"`
	P2 *float64 `db:"p2_mark" json:"p2,omitempty"`
	P3 *float64 `db:"p3_mark" json:"p3,omitempty"`
}

// User represents a portal account
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Email        string     `db:"email" json:"email"`
	Role         Role       `db:"role" json:"role"`
	SupervisorID *uuid.UUID `db:"supervisor_id" json:"supervisor_id,omitempty"`
	GroupID      *uuid.UUID `db:"group_id" json:"group_id,omitempty"`
	SeatCapacity int        `db:"seat_capacity" json:"seat_capacity"`
	Registration `json:"registration"`
	Marks        `json:"marks"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Owner returns the entity this student's thesis work belongs to. Group
// membership always takes precedence over the student's own fields.
func (u *User) Owner() OwnerRef {
	if u.GroupID != nil {
		return GroupOwner(*u.GroupID)
	}
	return IndividualOwner(u.ID)
}

// Group represents a thesis group of 2-4 students
type Group struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	SupervisorID *uuid.UUID `db:"supervisor_id" json:"supervisor_id,omitempty"`
	Registration `json:"registration"`
	Marks        `json:"marks"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// GroupMember links a student to a group
type GroupMember struct {
	GroupID   uuid.UUID `db:"group_id" json:"group_id"`
	StudentID uuid.UUID `db:"student_id" json:"student_id"`
	JoinedAt  time.Time `db:"joined_at" json:"joined_at"`
}

const (
	MinGroupSize = 2
	MaxGroupSize = 4
)

// Shared error taxonomy for the portal core. Packages layered on identity
// (submissions, supervision) add their own domain-specific errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrNotAuthorized = errors.New("not authorized")
	ErrInvalidState  = errors.New("invalid state")
	ErrNoSupervisor  = errors.New("no accepted supervisor")
)
