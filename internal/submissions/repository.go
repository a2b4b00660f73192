package submissions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"thesis-portal/thesis-portal-backend/internal/identity"
)

type Repository interface {
	// Create inserts a pending submission. A concurrent active submission
	// for the same owner and phase surfaces as an IneligibleError.
	Create(ctx context.Context, sub *Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Submission, error)
	ListByOwner(ctx context.Context, owner identity.OwnerRef) ([]Submission, error)
	ListBySupervisor(ctx context.Context, supervisorID uuid.UUID) ([]Submission, error)

	// OwnerPhaseState summarizes the owner's submissions per phase for the
	// eligibility check.
	OwnerPhaseState(ctx context.Context, owner identity.OwnerRef) (map[identity.Phase]PhaseRecord, error)

	// Review resolves a pending submission. Returns ErrAlreadyReviewed if
	// the submission is no longer pending.
	Review(ctx context.Context, id uuid.UUID, approved, allowResubmission bool, comments string) error

	// AllowResubmission flags a rejected submission as resubmittable.
	// Idempotent on already-flagged rejected submissions.
	AllowResubmission(ctx context.Context, id uuid.UUID) error

	// ListStalePending returns pending submissions submitted before the
	// cutoff, for review reminders.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]Submission, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, sub *Submission) error {
	query := `
		INSERT INTO submissions (id, author_id, owner_type, owner_id, phase, title,
		                         file_key, status, can_resubmit, original_id, supervisor_id)
		VALUES (:id, :author_id, :owner_type, :owner_id, :phase, :title,
		        :file_key, :status, :can_resubmit, :original_id, :supervisor_id)`
	_, err := r.db.NamedExecContext(ctx, query, sub)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return &IneligibleError{Reason: ReasonAlreadySubmitted}
	}
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Submission, error) {
	var sub Submission
	err := r.db.GetContext(ctx, &sub, "SELECT * FROM submissions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("submission %s: %w", id, identity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &sub, nil
}

func (r *postgresRepository) ListByOwner(ctx context.Context, owner identity.OwnerRef) ([]Submission, error) {
	var subs []Submission
	query := `
		SELECT * FROM submissions
		WHERE owner_type = $1 AND owner_id = $2
		ORDER BY submitted_at DESC`
	if err := r.db.SelectContext(ctx, &subs, query, owner.Type, owner.ID); err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, nil
}

func (r *postgresRepository) ListBySupervisor(ctx context.Context, supervisorID uuid.UUID) ([]Submission, error) {
	var subs []Submission
	query := `
		SELECT * FROM submissions
		WHERE supervisor_id = $1
		ORDER BY submitted_at DESC`
	if err := r.db.SelectContext(ctx, &subs, query, supervisorID); err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, nil
}

func (r *postgresRepository) OwnerPhaseState(ctx context.Context, owner identity.OwnerRef) (map[identity.Phase]PhaseRecord, error) {
	rows := []struct {
		Phase    identity.Phase `db:"phase"`
		Approved bool           `db:"approved"`
		Active   bool           `db:"active"`
	}{}
	query := `
		SELECT phase,
		       BOOL_OR(status = 'approved') AS approved,
		       BOOL_OR(status IN ('pending', 'approved')) AS active
		FROM submissions
		WHERE owner_type = $1 AND owner_id = $2
		GROUP BY phase`
	if err := r.db.SelectContext(ctx, &rows, query, owner.Type, owner.ID); err != nil {
		return nil, fmt.Errorf("failed to get phase state: %w", err)
	}

	state := make(map[identity.Phase]PhaseRecord, len(rows))
	for _, row := range rows {
		state[row.Phase] = PhaseRecord{Approved: row.Approved, Active: row.Active}
	}
	return state, nil
}

func (r *postgresRepository) Review(ctx context.Context, id uuid.UUID, approved, allowResubmission bool, comments string) error {
	status := StatusRejected
	canResubmit := allowResubmission
	if approved {
		status = StatusApproved
		canResubmit = false
	}

	// The pending guard makes concurrent reviews race on row count instead
	// of on an application check.
	result, err := r.db.ExecContext(ctx, `
		UPDATE submissions SET
			status = $2,
			can_resubmit = $3,
			reviewed_at = NOW(),
			review_comments = $4
		WHERE id = $1 AND status = 'pending'`,
		id, status, canResubmit, comments)
	if err != nil {
		return fmt.Errorf("failed to review submission: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("submission %s: %w", id, ErrAlreadyReviewed)
	}
	return nil
}

func (r *postgresRepository) AllowResubmission(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE submissions SET can_resubmit = TRUE
		WHERE id = $1 AND status = 'rejected'`, id)
	if err != nil {
		return fmt.Errorf("failed to allow resubmission: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("submission %s is not rejected: %w", id, identity.ErrInvalidState)
	}
	return nil
}

func (r *postgresRepository) ListStalePending(ctx context.Context, cutoff time.Time) ([]Submission, error) {
	var subs []Submission
	query := `
		SELECT * FROM submissions
		WHERE status = 'pending' AND submitted_at < $1
		ORDER BY submitted_at`
	if err := r.db.SelectContext(ctx, &subs, query, cutoff); err != nil {
		return nil, fmt.Errorf("failed to list stale submissions: %w", err)
	}
	return subs, nil
}
