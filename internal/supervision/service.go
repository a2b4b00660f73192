package supervision

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"thesis-portal/thesis-portal-backend/internal/identity"
	"thesis-portal/thesis-portal-backend/internal/notifications"
)

// Service implements supervisor allocation: requests, seat-bounded
// acceptance, release and capacity management.
type Service struct {
	repo     Repository
	users    identity.Repository
	notifier notifications.Dispatcher
	logger   *zap.Logger
}

func NewService(repo Repository, users identity.Repository, notifier notifications.Dispatcher, logger *zap.Logger) *Service {
	return &Service{repo: repo, users: users, notifier: notifier, logger: logger}
}

// ownerStudents resolves the student ids behind an owner for notification
func (s *Service) ownerStudents(ctx context.Context, owner identity.OwnerRef) ([]uuid.UUID, error) {
	if !owner.IsGroup() {
		return []uuid.UUID{owner.ID}, nil
	}
	members, err := s.users.GetGroupMembers(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// RequestSupervisor files a pending supervision request for the student's
// owner. Denied when the owner is already supervised.
func (s *Service) RequestSupervisor(ctx context.Context, studentID, facultyID uuid.UUID) (*SupervisorRequest, error) {
	student, err := s.users.GetUser(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.Role != identity.RoleStudent {
		return nil, fmt.Errorf("only students request supervision: %w", identity.ErrNotAuthorized)
	}

	faculty, err := s.users.GetUser(ctx, facultyID)
	if err != nil {
		return nil, err
	}
	if faculty.Role != identity.RoleFaculty {
		return nil, fmt.Errorf("%s is not a faculty member: %w", facultyID, identity.ErrInvalidState)
	}

	owner := student.Owner()
	current, err := s.repo.GetSupervisor(ctx, owner)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, fmt.Errorf("%s is already supervised: %w", owner, identity.ErrInvalidState)
	}

	req := &SupervisorRequest{
		ID:        uuid.New(),
		OwnerRef:  owner,
		FacultyID: facultyID,
		Status:    RequestPending,
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("supervisor requested",
		zap.String("owner", owner.String()),
		zap.String("faculty_id", facultyID.String()))

	s.notifier.Dispatch(ctx, notifications.Notification{
		RecipientID: facultyID,
		Type:        notifications.TypeSupervisorRequested,
		Title:       "New supervision request",
		Message:     fmt.Sprintf("%s requested you as thesis supervisor", student.Name),
		RelatedID:   &req.ID,
	})
	return req, nil
}

// ListRequests returns the faculty member's pending supervision requests
func (s *Service) ListRequests(ctx context.Context, facultyID uuid.UUID) ([]SupervisorRequest, error) {
	return s.repo.ListPendingForFaculty(ctx, facultyID)
}

// Respond accepts or rejects a pending request addressed to the faculty
// member. Acceptance consumes one seat; a group costs a single seat. Other
// pending requests of the owner are auto-rejected on acceptance and the
// passed-over faculty are notified.
func (s *Service) Respond(ctx context.Context, facultyID, requestID uuid.UUID, accept bool) error {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.FacultyID != facultyID {
		return fmt.Errorf("request %s is not addressed to you: %w", requestID, identity.ErrNotAuthorized)
	}

	students, err := s.ownerStudents(ctx, req.OwnerRef)
	if err != nil {
		return err
	}

	if !accept {
		if err := s.repo.Reject(ctx, requestID); err != nil {
			return err
		}
		s.logger.Info("supervision request rejected",
			zap.String("owner", req.OwnerRef.String()),
			zap.String("faculty_id", facultyID.String()))
		s.notifyResponse(ctx, students, req, "rejected")
		return nil
	}

	autoRejected, err := s.repo.Accept(ctx, requestID)
	if err != nil {
		return err
	}

	s.logger.Info("supervision request accepted",
		zap.String("owner", req.OwnerRef.String()),
		zap.String("faculty_id", facultyID.String()),
		zap.Int("auto_rejected", len(autoRejected)))

	s.notifyResponse(ctx, students, req, "accepted")
	for _, passedOver := range autoRejected {
		s.notifier.Dispatch(ctx, notifications.Notification{
			RecipientID: passedOver,
			Type:        notifications.TypeSupervisorResponded,
			Title:       "Supervision request withdrawn",
			Message:     "The requester accepted another supervisor",
			RelatedID:   &req.ID,
		})
	}
	return nil
}

func (s *Service) notifyResponse(ctx context.Context, students []uuid.UUID, req *SupervisorRequest, outcome string) {
	for _, studentID := range students {
		s.notifier.Dispatch(ctx, notifications.Notification{
			RecipientID: studentID,
			Type:        notifications.TypeSupervisorResponded,
			Title:       "Supervision request " + outcome,
			Message:     fmt.Sprintf("Your supervision request was %s", outcome),
			RelatedID:   &req.ID,
		})
	}
}

// Release ends the supervision of an owner and frees the seat. Submission
// history keeps the stored supervisor.
func (s *Service) Release(ctx context.Context, facultyID uuid.UUID, owner identity.OwnerRef) error {
	if err := s.repo.Release(ctx, facultyID, owner); err != nil {
		return err
	}

	s.logger.Info("supervision released",
		zap.String("owner", owner.String()),
		zap.String("faculty_id", facultyID.String()))

	students, err := s.ownerStudents(ctx, owner)
	if err != nil {
		s.logger.Warn("failed to resolve release recipients", zap.Error(err))
		return nil
	}
	for _, studentID := range students {
		s.notifier.Dispatch(ctx, notifications.Notification{
			RecipientID: studentID,
			Type:        notifications.TypeSupervisionReleased,
			Title:       "Supervision released",
			Message:     "Your supervisor released the supervision; request a new supervisor to continue",
			RelatedID:   &owner.ID,
		})
	}
	return nil
}

// SeatInfo returns the faculty member's seat usage
func (s *Service) SeatInfo(ctx context.Context, facultyID uuid.UUID) (*SeatInfo, error) {
	return s.repo.SeatInfo(ctx, facultyID)
}

// ListSupervisees returns the owners occupying the faculty member's seats
func (s *Service) ListSupervisees(ctx context.Context, facultyID uuid.UUID) ([]Supervisee, error) {
	return s.repo.ListSupervisees(ctx, facultyID)
}

// RequestSeatIncrease files a capacity increase petition for review
func (s *Service) RequestSeatIncrease(ctx context.Context, facultyID uuid.UUID, seats int, reason string) (*SeatIncreaseRequest, error) {
	faculty, err := s.users.GetUser(ctx, facultyID)
	if err != nil {
		return nil, err
	}
	if faculty.Role != identity.RoleFaculty {
		return nil, fmt.Errorf("only faculty request seat increases: %w", identity.ErrNotAuthorized)
	}
	if seats <= faculty.SeatCapacity {
		return nil, fmt.Errorf("requested %d seats, current capacity is %d: %w",
			seats, faculty.SeatCapacity, identity.ErrInvalidState)
	}

	req := &SeatIncreaseRequest{
		ID:             uuid.New(),
		FacultyID:      facultyID,
		RequestedSeats: seats,
		Reason:         reason,
		Status:         RequestPending,
	}
	if err := s.repo.CreateSeatIncrease(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("seat increase requested",
		zap.String("faculty_id", facultyID.String()),
		zap.Int("requested_seats", seats))
	return req, nil
}

// ListSeatIncreases returns the pending seat increase requests for admins
func (s *Service) ListSeatIncreases(ctx context.Context, adminID uuid.UUID) ([]SeatIncreaseRequest, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return s.repo.ListPendingSeatIncreases(ctx)
}

// ReviewSeatIncrease resolves a pending seat increase request. Admin only.
func (s *Service) ReviewSeatIncrease(ctx context.Context, adminID, requestID uuid.UUID, approve bool) error {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return err
	}

	req, err := s.repo.GetSeatIncrease(ctx, requestID)
	if err != nil {
		return err
	}

	if err := s.repo.ReviewSeatIncrease(ctx, requestID, approve, adminID); err != nil {
		return err
	}

	outcome := "rejected"
	if approve {
		outcome = "approved"
	}
	s.logger.Info("seat increase reviewed",
		zap.String("faculty_id", req.FacultyID.String()),
		zap.String("outcome", outcome))

	s.notifier.Dispatch(ctx, notifications.Notification{
		RecipientID: req.FacultyID,
		Type:        notifications.TypeSeatIncreaseReviewed,
		Title:       "Seat increase " + outcome,
		Message:     fmt.Sprintf("Your request for %d seats was %s", req.RequestedSeats, outcome),
		RelatedID:   &req.ID,
	})
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role != identity.RoleAdmin {
		return fmt.Errorf("admin role required: %w", identity.ErrNotAuthorized)
	}
	return nil
}
