package identity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)

	// SubmitRegistration writes a pending registration onto the owner row.
	// Overwrite is only allowed from not_submitted or rejected.
	SubmitRegistration(ctx context.Context, owner OwnerRef, title, description string) error
	// ReviewRegistration resolves a pending registration. Returns
	// ErrInvalidState if the registration is not pending.
	ReviewRegistration(ctx context.Context, owner OwnerRef, approved bool, reviewerID uuid.UUID, comments string) error

	GetGroup(ctx context.Context, id uuid.UUID) (*Group, error)
	GetGroupMembers(ctx context.Context, groupID uuid.UUID) ([]User, error)
	CreateGroup(ctx context.Context, g *Group, memberIDs []uuid.UUID) error
	DisbandGroup(ctx context.Context, groupID uuid.UUID) error

	SetMark(ctx context.Context, owner OwnerRef, phase Phase, mark float64) error
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateUser(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, name, email, role, seat_capacity, registration_status)
		VALUES (:id, :name, :email, :role, :seat_capacity, :registration_status)`
	_, err := r.db.NamedExecContext(ctx, query, u)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, "SELECT * FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func ownerTable(owner OwnerRef) string {
	if owner.IsGroup() {
		return "groups"
	}
	return "users"
}

func (r *postgresRepository) SubmitRegistration(ctx context.Context, owner OwnerRef, title, description string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET
			registration_status = 'pending',
			registration_title = $2,
			registration_description = $3,
			registration_submitted_at = NOW(),
			registration_reviewed_at = NULL,
			registration_reviewed_by = NULL,
			registration_comments = NULL
		WHERE id = $1
		  AND registration_status IN ('not_submitted', 'rejected')`, ownerTable(owner))

	result, err := r.db.ExecContext(ctx, query, owner.ID, title, description)
	if err != nil {
		return fmt.Errorf("failed to submit registration: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("registration for %s is already pending or approved: %w", owner, ErrInvalidState)
	}
	return nil
}

func (r *postgresRepository) ReviewRegistration(ctx context.Context, owner OwnerRef, approved bool, reviewerID uuid.UUID, comments string) error {
	status := RegistrationRejected
	if approved {
		status = RegistrationApproved
	}

	query := fmt.Sprintf(`
		UPDATE %s SET
			registration_status = $2,
			registration_reviewed_at = NOW(),
			registration_reviewed_by = $3,
			registration_comments = $4
		WHERE id = $1
		  AND registration_status = 'pending'`, ownerTable(owner))

	result, err := r.db.ExecContext(ctx, query, owner.ID, status, reviewerID, comments)
	if err != nil {
		return fmt.Errorf("failed to review registration: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("registration for %s is not pending: %w", owner, ErrInvalidState)
	}
	return nil
}

func (r *postgresRepository) GetGroup(ctx context.Context, id uuid.UUID) (*Group, error) {
	var g Group
	err := r.db.GetContext(ctx, &g, "SELECT * FROM groups WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("group %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

func (r *postgresRepository) GetGroupMembers(ctx context.Context, groupID uuid.UUID) ([]User, error) {
	var members []User
	query := `
		SELECT u.* FROM users u
		JOIN group_members gm ON gm.student_id = u.id
		WHERE gm.group_id = $1
		ORDER BY gm.joined_at`
	if err := r.db.SelectContext(ctx, &members, query, groupID); err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	return members, nil
}

func (r *postgresRepository) CreateGroup(ctx context.Context, g *Group, memberIDs []uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO groups (id, name) VALUES ($1, $2)", g.ID, g.Name)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}

	now := time.Now()
	for _, studentID := range memberIDs {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO group_members (group_id, student_id, joined_at) VALUES ($1, $2, $3)",
			g.ID, studentID, now)
		if err != nil {
			return fmt.Errorf("failed to add member %s: %w", studentID, err)
		}

		// Guard against a concurrent group grabbing the same student.
		result, err := tx.ExecContext(ctx,
			"UPDATE users SET group_id = $1, updated_at = NOW() WHERE id = $2 AND group_id IS NULL",
			g.ID, studentID)
		if err != nil {
			return fmt.Errorf("failed to link member %s: %w", studentID, err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("student %s already belongs to a group: %w", studentID, ErrInvalidState)
		}
	}

	return tx.Commit()
}

func (r *postgresRepository) DisbandGroup(ctx context.Context, groupID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET group_id = NULL, updated_at = NOW() WHERE group_id = $1", groupID); err != nil {
		return fmt.Errorf("failed to unlink members: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM group_members WHERE group_id = $1", groupID); err != nil {
		return fmt.Errorf("failed to remove members: %w", err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM groups WHERE id = $1", groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}

	return tx.Commit()
}

func (r *postgresRepository) SetMark(ctx context.Context, owner OwnerRef, phase Phase, mark float64) error {
	var column string
	switch phase {
	case PhaseP1:
		column = "p1_mark"
	case PhaseP2:
		column = "p2_mark"
	case PhaseP3:
		column = "p3_mark"
	default:
		return fmt.Errorf("invalid phase %q: %w", phase, ErrInvalidState)
	}

	query := fmt.Sprintf("UPDATE %s SET %s = $2 WHERE id = $1", ownerTable(owner), column)
	result, err := r.db.ExecContext(ctx, query, owner.ID, mark)
	if err != nil {
		return fmt.Errorf("failed to set mark: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%s: %w", owner, ErrNotFound)
	}
	return nil
}
