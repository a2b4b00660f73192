package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"thesis-portal/thesis-portal-backend/internal/notifications"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateUser(ctx context.Context, u *User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockRepository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockRepository) SubmitRegistration(ctx context.Context, owner OwnerRef, title, description string) error {
	args := m.Called(ctx, owner, title, description)
	return args.Error(0)
}

func (m *MockRepository) ReviewRegistration(ctx context.Context, owner OwnerRef, approved bool, reviewerID uuid.UUID, comments string) error {
	args := m.Called(ctx, owner, approved, reviewerID, comments)
	return args.Error(0)
}

func (m *MockRepository) GetGroup(ctx context.Context, id uuid.UUID) (*Group, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Group), args.Error(1)
}

func (m *MockRepository) GetGroupMembers(ctx context.Context, groupID uuid.UUID) ([]User, error) {
	args := m.Called(ctx, groupID)
	return args.Get(0).([]User), args.Error(1)
}

func (m *MockRepository) CreateGroup(ctx context.Context, g *Group, memberIDs []uuid.UUID) error {
	args := m.Called(ctx, g, memberIDs)
	return args.Error(0)
}

func (m *MockRepository) DisbandGroup(ctx context.Context, groupID uuid.UUID) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

func (m *MockRepository) SetMark(ctx context.Context, owner OwnerRef, phase Phase, mark float64) error {
	args := m.Called(ctx, owner, phase, mark)
	return args.Error(0)
}

// MockDispatcher records dispatched notifications
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, n notifications.Notification) {
	m.Called(ctx, n)
}

func newTestService() (*Service, *MockRepository, *MockDispatcher) {
	repo := new(MockRepository)
	dispatcher := new(MockDispatcher)
	return NewService(repo, dispatcher, zap.NewNop()), repo, dispatcher
}

func TestSubmitRegistrationRequiresSupervisor(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	student := &User{ID: uuid.New(), Role: RoleStudent}
	repo.On("GetUser", ctx, student.ID).Return(student, nil)

	err := svc.SubmitRegistration(ctx, student.ID, "My thesis", "")
	assert.ErrorIs(t, err, ErrNoSupervisor)
	repo.AssertNotCalled(t, "SubmitRegistration", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitRegistrationNotifiesSupervisor(t *testing.T) {
	svc, repo, dispatcher := newTestService()
	ctx := context.Background()

	supervisorID := uuid.New()
	student := &User{ID: uuid.New(), Role: RoleStudent, SupervisorID: &supervisorID}
	owner := IndividualOwner(student.ID)

	repo.On("GetUser", ctx, student.ID).Return(student, nil)
	repo.On("SubmitRegistration", ctx, owner, "My thesis", "about things").Return(nil)
	dispatcher.On("Dispatch", ctx, mock.MatchedBy(func(n notifications.Notification) bool {
		return n.RecipientID == supervisorID && n.Type == notifications.TypeRegistrationSubmitted
	})).Return()

	err := svc.SubmitRegistration(ctx, student.ID, "My thesis", "about things")
	assert.NoError(t, err)
	repo.AssertExpectations(t)
	dispatcher.AssertExpectations(t)
}

func TestSubmitRegistrationGroupPrecedence(t *testing.T) {
	svc, repo, dispatcher := newTestService()
	ctx := context.Background()

	supervisorID := uuid.New()
	groupID := uuid.New()
	student := &User{ID: uuid.New(), Role: RoleStudent, GroupID: &groupID}
	group := &Group{ID: groupID, SupervisorID: &supervisorID}

	repo.On("GetUser", ctx, student.ID).Return(student, nil)
	repo.On("GetGroup", ctx, groupID).Return(group, nil)
	repo.On("GetGroupMembers", ctx, groupID).Return([]User{*student}, nil)
	repo.On("SubmitRegistration", ctx, GroupOwner(groupID), "Group thesis", "").Return(nil)
	dispatcher.On("Dispatch", ctx, mock.Anything).Return()

	err := svc.SubmitRegistration(ctx, student.ID, "Group thesis", "")
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestReviewRegistrationWrongReviewer(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	supervisorID := uuid.New()
	student := &User{ID: uuid.New(), Role: RoleStudent, SupervisorID: &supervisorID}
	repo.On("GetUser", ctx, student.ID).Return(student, nil)

	err := svc.ReviewRegistration(ctx, uuid.New(), IndividualOwner(student.ID), true, "")
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestReviewRegistrationNotifiesAllMembers(t *testing.T) {
	svc, repo, dispatcher := newTestService()
	ctx := context.Background()

	supervisorID := uuid.New()
	groupID := uuid.New()
	members := []User{{ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()}}

	repo.On("GetGroup", ctx, groupID).Return(&Group{ID: groupID, SupervisorID: &supervisorID}, nil)
	repo.On("GetGroupMembers", ctx, groupID).Return(members, nil)
	repo.On("ReviewRegistration", ctx, GroupOwner(groupID), true, supervisorID, "looks good").Return(nil)

	notified := make(map[uuid.UUID]bool)
	dispatcher.On("Dispatch", ctx, mock.MatchedBy(func(n notifications.Notification) bool {
		notified[n.RecipientID] = true
		return n.Type == notifications.TypeRegistrationReviewed
	})).Return()

	err := svc.ReviewRegistration(ctx, supervisorID, GroupOwner(groupID), true, "looks good")
	assert.NoError(t, err)
	assert.Len(t, notified, 3)
}

func TestCreateGroupSizeBounds(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	creator := uuid.New()

	_, err := svc.CreateGroup(ctx, creator, "too small", []uuid.UUID{creator})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.CreateGroup(ctx, creator, "too big",
		[]uuid.UUID{creator, uuid.New(), uuid.New(), uuid.New(), uuid.New()})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCreateGroupCreatorMustBeMember(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateGroup(ctx, uuid.New(), "others", []uuid.UUID{uuid.New(), uuid.New()})
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestCreateGroupRejectsGroupedMember(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	creator := uuid.New()
	grouped := uuid.New()
	existingGroup := uuid.New()

	repo.On("GetUser", ctx, creator).Return(&User{ID: creator, Role: RoleStudent}, nil)
	repo.On("GetUser", ctx, grouped).Return(&User{ID: grouped, Role: RoleStudent, GroupID: &existingGroup}, nil)

	_, err := svc.CreateGroup(ctx, creator, "poachers", []uuid.UUID{creator, grouped})
	assert.ErrorIs(t, err, ErrInvalidState)
	repo.AssertNotCalled(t, "CreateGroup", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateGroupNotifiesOtherMembers(t *testing.T) {
	svc, repo, dispatcher := newTestService()
	ctx := context.Background()

	creator := uuid.New()
	other := uuid.New()
	repo.On("GetUser", ctx, creator).Return(&User{ID: creator, Role: RoleStudent}, nil)
	repo.On("GetUser", ctx, other).Return(&User{ID: other, Role: RoleStudent}, nil)
	repo.On("CreateGroup", ctx, mock.AnythingOfType("*identity.Group"), []uuid.UUID{creator, other}).Return(nil)
	dispatcher.On("Dispatch", ctx, mock.MatchedBy(func(n notifications.Notification) bool {
		return n.RecipientID == other && n.Type == notifications.TypeGroupCreated
	})).Return()

	group, err := svc.CreateGroup(ctx, creator, "thesis squad", []uuid.UUID{creator, other})
	assert.NoError(t, err)
	assert.Equal(t, RegistrationNotSubmitted, group.Status)
	dispatcher.AssertExpectations(t)
	// The creator is not notified about their own action.
	dispatcher.AssertNumberOfCalls(t, "Dispatch", 1)
}

func TestDisbandGroupUnderSupervision(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	supervisorID := uuid.New()
	groupID := uuid.New()
	repo.On("GetGroup", ctx, groupID).Return(&Group{ID: groupID, SupervisorID: &supervisorID}, nil)

	err := svc.DisbandGroup(ctx, uuid.New(), groupID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestDisbandGroupMemberOnly(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	groupID := uuid.New()
	repo.On("GetGroup", ctx, groupID).Return(&Group{ID: groupID}, nil)
	repo.On("GetGroupMembers", ctx, groupID).Return([]User{{ID: uuid.New()}}, nil)

	err := svc.DisbandGroup(ctx, uuid.New(), groupID)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestAssignMarkBounds(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	err := svc.AssignMark(ctx, uuid.New(), uuid.New(), PhaseP1, 101)
	assert.ErrorIs(t, err, ErrInvalidState)

	err = svc.AssignMark(ctx, uuid.New(), uuid.New(), PhaseP1, -1)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAssignMarkSupervisorOnly(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	supervisorID := uuid.New()
	student := &User{ID: uuid.New(), Role: RoleStudent, SupervisorID: &supervisorID}
	repo.On("GetUser", ctx, student.ID).Return(student, nil)

	err := svc.AssignMark(ctx, uuid.New(), student.ID, PhaseP2, 75)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	repo.AssertNotCalled(t, "SetMark", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
