package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Type classifies a notification for the recipient's inbox
type Type string

const (
	TypeRegistrationSubmitted Type = "REGISTRATION_SUBMITTED"
	TypeRegistrationReviewed  Type = "REGISTRATION_REVIEWED"
	TypeSubmissionReceived    Type = "SUBMISSION_RECEIVED"
	TypeSubmissionReviewed    Type = "SUBMISSION_REVIEWED"
	TypeResubmissionAllowed   Type = "RESUBMISSION_ALLOWED"
	TypeSupervisorRequested   Type = "SUPERVISOR_REQUESTED"
	TypeSupervisorResponded   Type = "SUPERVISOR_RESPONDED"
	TypeSupervisionReleased   Type = "SUPERVISION_RELEASED"
	TypeSeatIncreaseReviewed  Type = "SEAT_INCREASE_REVIEWED"
	TypeGroupCreated          Type = "GROUP_CREATED"
	TypeMarkAssigned          Type = "MARK_ASSIGNED"
	TypeReviewReminder        Type = "REVIEW_REMINDER"
)

// Notification is one inbox entry for a user
type Notification struct {
	ID          uuid.UUID      `gorm:"primaryKey;type:uuid" json:"id"`
	RecipientID uuid.UUID      `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Type        Type           `gorm:"not null" json:"type"`
	Title       string         `gorm:"not null" json:"title"`
	Message     string         `gorm:"not null" json:"message"`
	RelatedID   *uuid.UUID     `gorm:"type:uuid" json:"related_id,omitempty"`
	Metadata    datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// Dispatcher delivers notifications to users. Delivery is best-effort and
// fire-and-forget: implementations never surface failures to the caller, so
// a dropped notification cannot block or roll back a state transition.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification)
}
