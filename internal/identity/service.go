package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"thesis-portal/thesis-portal-backend/internal/notifications"
)

// Service implements the registration workflow, group formation and marking
type Service struct {
	repo     Repository
	notifier notifications.Dispatcher
	logger   *zap.Logger
}

func NewService(repo Repository, notifier notifications.Dispatcher, logger *zap.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, logger: logger}
}

// RegistrationView is the registration as seen by one student. Grouped
// students see their group's shared record.
type RegistrationView struct {
	Owner        OwnerRef     `json:"owner"`
	Registration Registration `json:"registration"`
	Marks        Marks        `json:"marks"`
}

// ownerState resolves an owner to its supervisor and the students behind it
func (s *Service) ownerState(ctx context.Context, owner OwnerRef) (supervisorID *uuid.UUID, studentIDs []uuid.UUID, err error) {
	if owner.IsGroup() {
		group, err := s.repo.GetGroup(ctx, owner.ID)
		if err != nil {
			return nil, nil, err
		}
		members, err := s.repo.GetGroupMembers(ctx, owner.ID)
		if err != nil {
			return nil, nil, err
		}
		ids := make([]uuid.UUID, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		return group.SupervisorID, ids, nil
	}

	user, err := s.repo.GetUser(ctx, owner.ID)
	if err != nil {
		return nil, nil, err
	}
	return user.SupervisorID, []uuid.UUID{user.ID}, nil
}

// GetUser returns a single user
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

// GetRegistration returns the registration record governing the student's
// thesis work, which is the group's record when the student is grouped.
func (s *Service) GetRegistration(ctx context.Context, studentID uuid.UUID) (*RegistrationView, error) {
	user, err := s.repo.GetUser(ctx, studentID)
	if err != nil {
		return nil, err
	}

	owner := user.Owner()
	if !owner.IsGroup() {
		return &RegistrationView{Owner: owner, Registration: user.Registration, Marks: user.Marks}, nil
	}

	group, err := s.repo.GetGroup(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	return &RegistrationView{Owner: owner, Registration: group.Registration, Marks: group.Marks}, nil
}

// SubmitRegistration files a thesis registration for the student's owner.
// Requires an accepted supervisor; a pending or approved registration cannot
// be overwritten.
func (s *Service) SubmitRegistration(ctx context.Context, studentID uuid.UUID, title, description string) error {
	if title == "" {
		return fmt.Errorf("title is required: %w", ErrInvalidState)
	}

	user, err := s.repo.GetUser(ctx, studentID)
	if err != nil {
		return err
	}
	if user.Role != RoleStudent {
		return fmt.Errorf("only students submit registrations: %w", ErrNotAuthorized)
	}

	owner := user.Owner()
	supervisorID, _, err := s.ownerState(ctx, owner)
	if err != nil {
		return err
	}
	if supervisorID == nil {
		return ErrNoSupervisor
	}

	if err := s.repo.SubmitRegistration(ctx, owner, title, description); err != nil {
		return err
	}

	s.logger.Info("registration submitted",
		zap.String("owner", owner.String()),
		zap.String("student_id", studentID.String()))

	s.notifier.Dispatch(ctx, notifications.Notification{
		RecipientID: *supervisorID,
		Type:        notifications.TypeRegistrationSubmitted,
		Title:       "New thesis registration",
		Message:     fmt.Sprintf("A thesis registration %q is awaiting your review", title),
		RelatedID:   &owner.ID,
	})
	return nil
}

// ReviewRegistration approves or rejects a pending registration. Only the
// owner's accepted supervisor may review it.
func (s *Service) ReviewRegistration(ctx context.Context, reviewerID uuid.UUID, owner OwnerRef, approved bool, comments string) error {
	supervisorID, studentIDs, err := s.ownerState(ctx, owner)
	if err != nil {
		return err
	}
	if supervisorID == nil || *supervisorID != reviewerID {
		return fmt.Errorf("reviewer is not the supervisor of %s: %w", owner, ErrNotAuthorized)
	}

	if err := s.repo.ReviewRegistration(ctx, owner, approved, reviewerID, comments); err != nil {
		return err
	}

	outcome := "rejected"
	if approved {
		outcome = "approved"
	}
	s.logger.Info("registration reviewed",
		zap.String("owner", owner.String()),
		zap.String("outcome", outcome))

	for _, studentID := range studentIDs {
		s.notifier.Dispatch(ctx, notifications.Notification{
			RecipientID: studentID,
			Type:        notifications.TypeRegistrationReviewed,
			Title:       "Thesis registration " + outcome,
			Message:     fmt.Sprintf("Your thesis registration was %s", outcome),
			RelatedID:   &owner.ID,
		})
	}
	return nil
}

// CreateGroup forms a thesis group. The creator must be one of the members,
// all members must be ungrouped students, and the size must be 2-4.
func (s *Service) CreateGroup(ctx context.Context, creatorID uuid.UUID, name string, memberIDs []uuid.UUID) (*Group, error) {
	if len(memberIDs) < MinGroupSize || len(memberIDs) > MaxGroupSize {
		return nil, fmt.Errorf("group size must be between %d and %d: %w", MinGroupSize, MaxGroupSize, ErrInvalidState)
	}

	seen := make(map[uuid.UUID]bool, len(memberIDs))
	creatorIncluded := false
	for _, id := range memberIDs {
		if seen[id] {
			return nil, fmt.Errorf("duplicate member %s: %w", id, ErrInvalidState)
		}
		seen[id] = true
		if id == creatorID {
			creatorIncluded = true
		}
	}
	if !creatorIncluded {
		return nil, fmt.Errorf("creator must be a group member: %w", ErrNotAuthorized)
	}

	for _, id := range memberIDs {
		member, err := s.repo.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		if member.Role != RoleStudent {
			return nil, fmt.Errorf("member %s is not a student: %w", id, ErrInvalidState)
		}
		if member.GroupID != nil {
			return nil, fmt.Errorf("member %s already belongs to a group: %w", id, ErrInvalidState)
		}
	}

	group := &Group{
		ID:   uuid.New(),
		Name: name,
		Registration: Registration{
			Status: RegistrationNotSubmitted,
		},
	}
	if err := s.repo.CreateGroup(ctx, group, memberIDs); err != nil {
		return nil, err
	}

	s.logger.Info("group created",
		zap.String("group_id", group.ID.String()),
		zap.Int("size", len(memberIDs)))

	for _, id := range memberIDs {
		if id == creatorID {
			continue
		}
		s.notifier.Dispatch(ctx, notifications.Notification{
			RecipientID: id,
			Type:        notifications.TypeGroupCreated,
			Title:       "Added to thesis group",
			Message:     fmt.Sprintf("You were added to thesis group %q", name),
			RelatedID:   &group.ID,
		})
	}
	return group, nil
}

// GetGroup returns a group with its members
func (s *Service) GetGroup(ctx context.Context, groupID uuid.UUID) (*Group, []User, error) {
	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	members, err := s.repo.GetGroupMembers(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	return group, members, nil
}

// DisbandGroup dissolves a group. Only its members may disband it, and only
// before a supervisor has accepted the group.
func (s *Service) DisbandGroup(ctx context.Context, requesterID, groupID uuid.UUID) error {
	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group.SupervisorID != nil {
		return fmt.Errorf("group is under supervision: %w", ErrInvalidState)
	}

	members, err := s.repo.GetGroupMembers(ctx, groupID)
	if err != nil {
		return err
	}
	isMember := false
	for _, m := range members {
		if m.ID == requesterID {
			isMember = true
			break
		}
	}
	if !isMember {
		return fmt.Errorf("only members may disband a group: %w", ErrNotAuthorized)
	}

	if err := s.repo.DisbandGroup(ctx, groupID); err != nil {
		return err
	}
	s.logger.Info("group disbanded", zap.String("group_id", groupID.String()))
	return nil
}

// AssignMark records a phase mark for the student's owner. Only the owner's
// supervisor may mark, and marks range 0-100.
func (s *Service) AssignMark(ctx context.Context, facultyID, studentID uuid.UUID, phase Phase, mark float64) error {
	if mark < 0 || mark > 100 {
		return fmt.Errorf("mark must be between 0 and 100: %w", ErrInvalidState)
	}

	user, err := s.repo.GetUser(ctx, studentID)
	if err != nil {
		return err
	}
	owner := user.Owner()

	supervisorID, studentIDs, err := s.ownerState(ctx, owner)
	if err != nil {
		return err
	}
	if supervisorID == nil || *supervisorID != facultyID {
		return fmt.Errorf("only the supervisor assigns marks: %w", ErrNotAuthorized)
	}

	if err := s.repo.SetMark(ctx, owner, phase, mark); err != nil {
		return err
	}

	s.logger.Info("mark assigned",
		zap.String("owner", owner.String()),
		zap.String("phase", string(phase)),
		zap.Float64("mark", mark))

	for _, id := range studentIDs {
		s.notifier.Dispatch(ctx, notifications.Notification{
			RecipientID: id,
			Type:        notifications.TypeMarkAssigned,
			Title:       fmt.Sprintf("%s mark assigned", phase),
			Message:     fmt.Sprintf("Your supervisor assigned a mark for %s", phase),
			RelatedID:   &owner.ID,
		})
	}
	return nil
}
