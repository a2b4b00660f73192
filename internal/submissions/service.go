package submissions

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"thesis-portal/thesis-portal-backend/internal/identity"
	"thesis-portal/thesis-portal-backend/internal/notifications"
	"thesis-portal/thesis-portal-backend/pkg/storage"
	"thesis-portal/thesis-portal-backend/pkg/workflows"
)

// Service implements the phase submission lifecycle: eligibility-gated
// creation, supervisor review, resubmission lineage and file access.
type Service struct {
	repo        Repository
	users       identity.Repository
	store       storage.Client
	transitions *workflows.StateMachine
	notifier    notifications.Dispatcher
	logger      *zap.Logger
}

func NewService(repo Repository, users identity.Repository, store storage.Client, notifier notifications.Dispatcher, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		users:       users,
		store:       store,
		transitions: workflows.NewReviewStateMachine(),
		notifier:    notifier,
		logger:      logger,
	}
}

// CreateRequest carries a new phase submission
type CreateRequest struct {
	AuthorID    uuid.UUID
	Phase       identity.Phase
	Title       string
	FileContent io.Reader
	ContentType string
}

// ownerContext resolves the submission-relevant state of a student's owner
func (s *Service) ownerContext(ctx context.Context, owner identity.OwnerRef) (supervisorID *uuid.UUID, registrationApproved bool, studentIDs []uuid.UUID, err error) {
	if owner.IsGroup() {
		group, err := s.users.GetGroup(ctx, owner.ID)
		if err != nil {
			return nil, false, nil, err
		}
		members, err := s.users.GetGroupMembers(ctx, owner.ID)
		if err != nil {
			return nil, false, nil, err
		}
		ids := make([]uuid.UUID, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		return group.SupervisorID, group.Status == identity.RegistrationApproved, ids, nil
	}

	user, err := s.users.GetUser(ctx, owner.ID)
	if err != nil {
		return nil, false, nil, err
	}
	return user.SupervisorID, user.Status == identity.RegistrationApproved, []uuid.UUID{user.ID}, nil
}

// Create files a phase submission for the author's owner. The eligibility
// conditions are checked in order and the first failure is reported; the
// storage unique index closes the race two concurrent creates would
// otherwise win together.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Submission, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("title is required: %w", identity.ErrInvalidState)
	}

	author, err := s.users.GetUser(ctx, req.AuthorID)
	if err != nil {
		return nil, err
	}
	if author.Role != identity.RoleStudent {
		return nil, fmt.Errorf("only students submit: %w", identity.ErrNotAuthorized)
	}

	owner := author.Owner()
	supervisorID, regApproved, _, err := s.ownerContext(ctx, owner)
	if err != nil {
		return nil, err
	}

	phases, err := s.repo.OwnerPhaseState(ctx, owner)
	if err != nil {
		return nil, err
	}

	state := OwnerState{
		HasSupervisor:        supervisorID != nil,
		RegistrationApproved: regApproved,
		Phases:               phases,
	}
	if err := CanSubmit(state, req.Phase); err != nil {
		return nil, err
	}

	sub := &Submission{
		ID:           uuid.New(),
		AuthorID:     req.AuthorID,
		OwnerRef:     owner,
		Phase:        req.Phase,
		Title:        req.Title,
		Status:       StatusPending,
		SupervisorID: *supervisorID,
	}
	sub.FileKey = fileKey(owner, req.Phase, sub.ID)

	if err := s.store.Upload(ctx, sub.FileKey, req.FileContent, req.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store submission file: %w", err)
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("submission created",
		zap.String("submission_id", sub.ID.String()),
		zap.String("owner", owner.String()),
		zap.String("phase", string(req.Phase)))

	s.notifier.Dispatch(ctx, notifications.Notification{
		RecipientID: sub.SupervisorID,
		Type:        notifications.TypeSubmissionReceived,
		Title:       fmt.Sprintf("New %s submission", req.Phase),
		Message:     fmt.Sprintf("%q is awaiting your review", req.Title),
		RelatedID:   &sub.ID,
	})
	return sub, nil
}

func fileKey(owner identity.OwnerRef, phase identity.Phase, id uuid.UUID) string {
	return fmt.Sprintf("submissions/%s/%s/%s/%s.pdf", owner.Type, owner.ID, phase, id)
}

// Review approves or rejects a pending submission. Only the supervisor
// stored on the submission may review it; approval clears the resubmission
// flag, rejection sets it from allowResubmission.
func (s *Service) Review(ctx context.Context, reviewerID, submissionID uuid.UUID, approve, allowResubmission bool, comments string) error {
	sub, err := s.repo.GetByID(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.SupervisorID != reviewerID {
		return fmt.Errorf("only the stored supervisor reviews this submission: %w", identity.ErrNotAuthorized)
	}

	target := StatusRejected
	if approve {
		target = StatusApproved
	}
	if !s.transitions.CanTransition(string(sub.Status), string(target)) {
		return fmt.Errorf("submission %s: %w", submissionID, ErrAlreadyReviewed)
	}

	if err := s.repo.Review(ctx, submissionID, approve, allowResubmission, comments); err != nil {
		return err
	}

	outcome := "rejected"
	if approve {
		outcome = "approved"
	}
	s.logger.Info("submission reviewed",
		zap.String("submission_id", submissionID.String()),
		zap.String("outcome", outcome))

	s.notifyOwner(ctx, sub, notifications.TypeSubmissionReviewed,
		fmt.Sprintf("%s submission %s", sub.Phase, outcome),
		fmt.Sprintf("Your %s submission %q was %s", sub.Phase, sub.Title, outcome))
	return nil
}

// AllowResubmission flags a rejected submission as resubmittable. Only the
// stored supervisor may grant it; granting twice is a no-op.
func (s *Service) AllowResubmission(ctx context.Context, reviewerID, submissionID uuid.UUID) error {
	sub, err := s.repo.GetByID(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.SupervisorID != reviewerID {
		return fmt.Errorf("only the stored supervisor allows resubmission: %w", identity.ErrNotAuthorized)
	}

	if err := s.repo.AllowResubmission(ctx, submissionID); err != nil {
		return err
	}

	s.logger.Info("resubmission allowed", zap.String("submission_id", submissionID.String()))

	s.notifyOwner(ctx, sub, notifications.TypeResubmissionAllowed,
		fmt.Sprintf("%s resubmission allowed", sub.Phase),
		fmt.Sprintf("You may resubmit %q for %s", sub.Title, sub.Phase))
	return nil
}

// ResubmitRequest carries a replacement for a rejected submission
type ResubmitRequest struct {
	AuthorID    uuid.UUID
	OriginalID  uuid.UUID
	Title       string
	FileContent io.Reader
	ContentType string
}

// Resubmit files a replacement for a rejected, resubmittable submission.
// The new record is pending and linked to the one it replaces; only the
// original author may resubmit.
func (s *Service) Resubmit(ctx context.Context, req ResubmitRequest) (*Submission, error) {
	original, err := s.repo.GetByID(ctx, req.OriginalID)
	if err != nil {
		return nil, err
	}
	if original.Status != StatusRejected || !original.CanResubmit {
		return nil, fmt.Errorf("submission %s: %w", req.OriginalID, ErrResubmissionNotAllowed)
	}
	if original.AuthorID != req.AuthorID {
		return nil, fmt.Errorf("only the original author resubmits: %w", identity.ErrNotAuthorized)
	}

	title := req.Title
	if title == "" {
		title = original.Title
	}

	sub := &Submission{
		ID:           uuid.New(),
		AuthorID:     req.AuthorID,
		OwnerRef:     original.OwnerRef,
		Phase:        original.Phase,
		Title:        title,
		Status:       StatusPending,
		OriginalID:   &original.ID,
		SupervisorID: original.SupervisorID,
	}
	sub.FileKey = fileKey(original.OwnerRef, original.Phase, sub.ID)

	if err := s.store.Upload(ctx, sub.FileKey, req.FileContent, req.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store submission file: %w", err)
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("resubmission created",
		zap.String("submission_id", sub.ID.String()),
		zap.String("original_id", original.ID.String()))

	s.notifier.Dispatch(ctx, notifications.Notification{
		RecipientID: sub.SupervisorID,
		Type:        notifications.TypeSubmissionReceived,
		Title:       fmt.Sprintf("%s resubmission", sub.Phase),
		Message:     fmt.Sprintf("%q was resubmitted for your review", title),
		RelatedID:   &sub.ID,
	})
	return sub, nil
}

// Get returns a submission visible to the requester: its author, a member
// of the owning group, or the stored supervisor.
func (s *Service) Get(ctx context.Context, requesterID, submissionID uuid.UUID) (*Submission, error) {
	sub, err := s.repo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := s.checkVisibility(ctx, requesterID, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// List returns the requester's submissions: a faculty member sees those
// stored under their supervision, a student sees their owner's.
func (s *Service) List(ctx context.Context, requesterID uuid.UUID) ([]Submission, error) {
	user, err := s.users.GetUser(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if user.Role == identity.RoleFaculty {
		return s.repo.ListBySupervisor(ctx, requesterID)
	}
	return s.repo.ListByOwner(ctx, user.Owner())
}

// FileURL returns a short-lived download link for the submission file
func (s *Service) FileURL(ctx context.Context, requesterID, submissionID uuid.UUID) (string, error) {
	sub, err := s.repo.GetByID(ctx, submissionID)
	if err != nil {
		return "", err
	}
	if err := s.checkVisibility(ctx, requesterID, sub); err != nil {
		return "", err
	}
	return s.store.GetPresignedURL(ctx, sub.FileKey, 15*time.Minute)
}

func (s *Service) checkVisibility(ctx context.Context, requesterID uuid.UUID, sub *Submission) error {
	if sub.SupervisorID == requesterID || sub.AuthorID == requesterID {
		return nil
	}
	if sub.OwnerRef.IsGroup() {
		members, err := s.users.GetGroupMembers(ctx, sub.OwnerRef.ID)
		if err != nil {
			return err
		}
		for _, m := range members {
			if m.ID == requesterID {
				return nil
			}
		}
	}
	return fmt.Errorf("submission %s is not visible to you: %w", sub.ID, identity.ErrNotAuthorized)
}

func (s *Service) notifyOwner(ctx context.Context, sub *Submission, t notifications.Type, title, message string) {
	_, _, studentIDs, err := s.ownerContext(ctx, sub.OwnerRef)
	if err != nil {
		s.logger.Warn("failed to resolve notification recipients",
			zap.String("owner", sub.OwnerRef.String()),
			zap.Error(err))
		return
	}
	for _, studentID := range studentIDs {
		s.notifier.Dispatch(ctx, notifications.Notification{
			RecipientID: studentID,
			Type:        t,
			Title:       title,
			Message:     message,
			RelatedID:   &sub.ID,
		})
	}
}
