package supervision

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"thesis-portal/thesis-portal-backend/internal/identity"
)

type Repository interface {
	// CreateRequest files a pending supervisor request. A duplicate pending
	// request for the same (owner, faculty) returns ErrInvalidState.
	CreateRequest(ctx context.Context, req *SupervisorRequest) error
	GetRequest(ctx context.Context, id uuid.UUID) (*SupervisorRequest, error)
	ListPendingForFaculty(ctx context.Context, facultyID uuid.UUID) ([]SupervisorRequest, error)
	ListPendingForOwner(ctx context.Context, owner identity.OwnerRef) ([]SupervisorRequest, error)

	// Accept consumes one seat atomically, links the supervisor onto the
	// owner, and auto-rejects the owner's other pending requests. Returns
	// ErrCapacityExceeded when the faculty member has no free seat and the
	// faculty ids whose requests were auto-rejected.
	Accept(ctx context.Context, requestID uuid.UUID) (autoRejected []uuid.UUID, err error)
	Reject(ctx context.Context, requestID uuid.UUID) error

	// Release frees the seat and clears the supervisor link. Past
	// submissions keep their stored supervisor.
	Release(ctx context.Context, facultyID uuid.UUID, owner identity.OwnerRef) error
	GetSupervisor(ctx context.Context, owner identity.OwnerRef) (*uuid.UUID, error)
	ListSupervisees(ctx context.Context, facultyID uuid.UUID) ([]Supervisee, error)

	SeatInfo(ctx context.Context, facultyID uuid.UUID) (*SeatInfo, error)
	CreateSeatIncrease(ctx context.Context, req *SeatIncreaseRequest) error
	GetSeatIncrease(ctx context.Context, id uuid.UUID) (*SeatIncreaseRequest, error)
	ListPendingSeatIncreases(ctx context.Context) ([]SeatIncreaseRequest, error)
	// ReviewSeatIncrease resolves a pending seat increase request. Approval
	// below the faculty member's current usage returns ErrInvalidState.
	ReviewSeatIncrease(ctx context.Context, id uuid.UUID, approve bool, reviewerID uuid.UUID) error
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func (r *postgresRepository) CreateRequest(ctx context.Context, req *SupervisorRequest) error {
	query := `
		INSERT INTO supervisor_requests (id, owner_type, owner_id, faculty_id, status)
		VALUES (:id, :owner_type, :owner_id, :faculty_id, 'pending')`
	_, err := r.db.NamedExecContext(ctx, query, req)
	if isUniqueViolation(err) {
		return fmt.Errorf("request for %s to %s already pending: %w", req.OwnerRef, req.FacultyID, identity.ErrInvalidState)
	}
	if err != nil {
		return fmt.Errorf("failed to create supervisor request: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetRequest(ctx context.Context, id uuid.UUID) (*SupervisorRequest, error) {
	var req SupervisorRequest
	err := r.db.GetContext(ctx, &req, "SELECT * FROM supervisor_requests WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("supervisor request %s: %w", id, identity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get supervisor request: %w", err)
	}
	return &req, nil
}

func (r *postgresRepository) ListPendingForFaculty(ctx context.Context, facultyID uuid.UUID) ([]SupervisorRequest, error) {
	var reqs []SupervisorRequest
	query := `
		SELECT * FROM supervisor_requests
		WHERE faculty_id = $1 AND status = 'pending'
		ORDER BY requested_at`
	if err := r.db.SelectContext(ctx, &reqs, query, facultyID); err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	return reqs, nil
}

func (r *postgresRepository) ListPendingForOwner(ctx context.Context, owner identity.OwnerRef) ([]SupervisorRequest, error) {
	var reqs []SupervisorRequest
	query := `
		SELECT * FROM supervisor_requests
		WHERE owner_type = $1 AND owner_id = $2 AND status = 'pending'
		ORDER BY requested_at`
	if err := r.db.SelectContext(ctx, &reqs, query, owner.Type, owner.ID); err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	return reqs, nil
}

func (r *postgresRepository) Accept(ctx context.Context, requestID uuid.UUID) ([]uuid.UUID, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var req SupervisorRequest
	err = tx.GetContext(ctx, &req,
		"SELECT * FROM supervisor_requests WHERE id = $1 AND status = 'pending' FOR UPDATE", requestID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pending request %s: %w", requestID, identity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}

	// Seat consumption races on this insert: the row only appears when a
	// seat is still free at commit time.
	result, err := tx.ExecContext(ctx, `
		INSERT INTO supervisees (faculty_id, owner_type, owner_id)
		SELECT $1, $2, $3
		WHERE (SELECT COUNT(*) FROM supervisees WHERE faculty_id = $1)
		    < (SELECT seat_capacity FROM users WHERE id = $1)`,
		req.FacultyID, req.OwnerRef.Type, req.OwnerRef.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume seat: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, fmt.Errorf("faculty %s: %w", req.FacultyID, ErrCapacityExceeded)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE supervisor_requests SET status = 'accepted', responded_at = NOW()
		WHERE id = $1`, requestID); err != nil {
		return nil, fmt.Errorf("failed to accept request: %w", err)
	}

	var autoRejected []uuid.UUID
	err = tx.SelectContext(ctx, &autoRejected, `
		UPDATE supervisor_requests SET status = 'rejected', responded_at = NOW()
		WHERE owner_type = $1 AND owner_id = $2 AND status = 'pending' AND id <> $3
		RETURNING faculty_id`,
		req.OwnerRef.Type, req.OwnerRef.ID, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to auto-reject competing requests: %w", err)
	}

	if req.OwnerRef.IsGroup() {
		if _, err := tx.ExecContext(ctx,
			"UPDATE groups SET supervisor_id = $1 WHERE id = $2",
			req.FacultyID, req.OwnerRef.ID); err != nil {
			return nil, fmt.Errorf("failed to link group supervisor: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET supervisor_id = $1, updated_at = NOW()
			WHERE id IN (SELECT student_id FROM group_members WHERE group_id = $2)`,
			req.FacultyID, req.OwnerRef.ID); err != nil {
			return nil, fmt.Errorf("failed to link member supervisors: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			"UPDATE users SET supervisor_id = $1, updated_at = NOW() WHERE id = $2",
			req.FacultyID, req.OwnerRef.ID); err != nil {
			return nil, fmt.Errorf("failed to link supervisor: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return autoRejected, nil
}

func (r *postgresRepository) Reject(ctx context.Context, requestID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE supervisor_requests SET status = 'rejected', responded_at = NOW()
		WHERE id = $1 AND status = 'pending'`, requestID)
	if err != nil {
		return fmt.Errorf("failed to reject request: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("pending request %s: %w", requestID, identity.ErrNotFound)
	}
	return nil
}

func (r *postgresRepository) Release(ctx context.Context, facultyID uuid.UUID, owner identity.OwnerRef) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"DELETE FROM supervisees WHERE faculty_id = $1 AND owner_type = $2 AND owner_id = $3",
		facultyID, owner.Type, owner.ID)
	if err != nil {
		return fmt.Errorf("failed to free seat: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%s is not supervised by %s: %w", owner, facultyID, identity.ErrNotFound)
	}

	if owner.IsGroup() {
		if _, err := tx.ExecContext(ctx,
			"UPDATE groups SET supervisor_id = NULL WHERE id = $1", owner.ID); err != nil {
			return fmt.Errorf("failed to unlink group supervisor: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET supervisor_id = NULL, updated_at = NOW()
			WHERE id IN (SELECT student_id FROM group_members WHERE group_id = $1)`,
			owner.ID); err != nil {
			return fmt.Errorf("failed to unlink member supervisors: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			"UPDATE users SET supervisor_id = NULL, updated_at = NOW() WHERE id = $1",
			owner.ID); err != nil {
			return fmt.Errorf("failed to unlink supervisor: %w", err)
		}
	}

	return tx.Commit()
}

func (r *postgresRepository) GetSupervisor(ctx context.Context, owner identity.OwnerRef) (*uuid.UUID, error) {
	var supervisorID *uuid.UUID
	table := "users"
	if owner.IsGroup() {
		table = "groups"
	}
	err := r.db.GetContext(ctx, &supervisorID,
		fmt.Sprintf("SELECT supervisor_id FROM %s WHERE id = $1", table), owner.ID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", owner, identity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get supervisor: %w", err)
	}
	return supervisorID, nil
}

func (r *postgresRepository) ListSupervisees(ctx context.Context, facultyID uuid.UUID) ([]Supervisee, error) {
	var items []Supervisee
	query := "SELECT * FROM supervisees WHERE faculty_id = $1 ORDER BY accepted_at"
	if err := r.db.SelectContext(ctx, &items, query, facultyID); err != nil {
		return nil, fmt.Errorf("failed to list supervisees: %w", err)
	}
	return items, nil
}

func (r *postgresRepository) SeatInfo(ctx context.Context, facultyID uuid.UUID) (*SeatInfo, error) {
	var info SeatInfo
	query := `
		SELECT
			u.seat_capacity AS capacity,
			COUNT(s.owner_id) AS used,
			COUNT(s.owner_id) FILTER (WHERE s.owner_type = 'student') AS individual_count,
			COUNT(s.owner_id) FILTER (WHERE s.owner_type = 'group') AS group_count
		FROM users u
		LEFT JOIN supervisees s ON s.faculty_id = u.id
		WHERE u.id = $1
		GROUP BY u.seat_capacity`
	err := r.db.GetContext(ctx, &info, query, facultyID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("faculty %s: %w", facultyID, identity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seat info: %w", err)
	}
	info.Available = info.Capacity - info.Used
	return &info, nil
}

func (r *postgresRepository) CreateSeatIncrease(ctx context.Context, req *SeatIncreaseRequest) error {
	query := `
		INSERT INTO seat_increase_requests (id, faculty_id, requested_seats, reason, status)
		VALUES (:id, :faculty_id, :requested_seats, :reason, 'pending')`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("failed to create seat increase request: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetSeatIncrease(ctx context.Context, id uuid.UUID) (*SeatIncreaseRequest, error) {
	var req SeatIncreaseRequest
	err := r.db.GetContext(ctx, &req, "SELECT * FROM seat_increase_requests WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("seat increase request %s: %w", id, identity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seat increase request: %w", err)
	}
	return &req, nil
}

func (r *postgresRepository) ListPendingSeatIncreases(ctx context.Context) ([]SeatIncreaseRequest, error) {
	var reqs []SeatIncreaseRequest
	query := "SELECT * FROM seat_increase_requests WHERE status = 'pending' ORDER BY requested_at"
	if err := r.db.SelectContext(ctx, &reqs, query); err != nil {
		return nil, fmt.Errorf("failed to list seat increase requests: %w", err)
	}
	return reqs, nil
}

func (r *postgresRepository) ReviewSeatIncrease(ctx context.Context, id uuid.UUID, approve bool, reviewerID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var req SeatIncreaseRequest
	err = tx.GetContext(ctx, &req,
		"SELECT * FROM seat_increase_requests WHERE id = $1 AND status = 'pending' FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return fmt.Errorf("pending seat increase request %s: %w", id, identity.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load seat increase request: %w", err)
	}

	status := RequestRejected
	if approve {
		status = RequestApproved

		// Capacity may never drop below current usage.
		result, err := tx.ExecContext(ctx, `
			UPDATE users SET seat_capacity = $2, updated_at = NOW()
			WHERE id = $1
			  AND $2 >= (SELECT COUNT(*) FROM supervisees WHERE faculty_id = $1)`,
			req.FacultyID, req.RequestedSeats)
		if err != nil {
			return fmt.Errorf("failed to update capacity: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("requested capacity %d is below current usage: %w",
				req.RequestedSeats, identity.ErrInvalidState)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE seat_increase_requests SET status = $2, reviewed_at = NOW(), reviewed_by = $3
		WHERE id = $1`, id, status, reviewerID); err != nil {
		return fmt.Errorf("failed to review seat increase request: %w", err)
	}

	return tx.Commit()
}
