package submissions

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"thesis-portal/thesis-portal-backend/internal/identity"
	"thesis-portal/thesis-portal-backend/internal/notifications"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, sub *Submission) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*Submission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Submission), args.Error(1)
}

func (m *MockRepository) ListByOwner(ctx context.Context, owner identity.OwnerRef) ([]Submission, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).([]Submission), args.Error(1)
}

func (m *MockRepository) ListBySupervisor(ctx context.Context, supervisorID uuid.UUID) ([]Submission, error) {
	args := m.Called(ctx, supervisorID)
	return args.Get(0).([]Submission), args.Error(1)
}

func (m *MockRepository) OwnerPhaseState(ctx context.Context, owner identity.OwnerRef) (map[identity.Phase]PhaseRecord, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(map[identity.Phase]PhaseRecord), args.Error(1)
}

func (m *MockRepository) Review(ctx context.Context, id uuid.UUID, approved, allowResubmission bool, comments string) error {
	args := m.Called(ctx, id, approved, allowResubmission, comments)
	return args.Error(0)
}

func (m *MockRepository) AllowResubmission(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) ListStalePending(ctx context.Context, cutoff time.Time) ([]Submission, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]Submission), args.Error(1)
}

// MockUserRepository is a mock implementation of identity.Repository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) CreateUser(ctx context.Context, u *identity.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepository) GetUser(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserRepository) SubmitRegistration(ctx context.Context, owner identity.OwnerRef, title, description string) error {
	args := m.Called(ctx, owner, title, description)
	return args.Error(0)
}

func (m *MockUserRepository) ReviewRegistration(ctx context.Context, owner identity.OwnerRef, approved bool, reviewerID uuid.UUID, comments string) error {
	args := m.Called(ctx, owner, approved, reviewerID, comments)
	return args.Error(0)
}

func (m *MockUserRepository) GetGroup(ctx context.Context, id uuid.UUID) (*identity.Group, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Group), args.Error(1)
}

func (m *MockUserRepository) GetGroupMembers(ctx context.Context, groupID uuid.UUID) ([]identity.User, error) {
	args := m.Called(ctx, groupID)
	return args.Get(0).([]identity.User), args.Error(1)
}

func (m *MockUserRepository) CreateGroup(ctx context.Context, g *identity.Group, memberIDs []uuid.UUID) error {
	args := m.Called(ctx, g, memberIDs)
	return args.Error(0)
}

func (m *MockUserRepository) DisbandGroup(ctx context.Context, groupID uuid.UUID) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

func (m *MockUserRepository) SetMark(ctx context.Context, owner identity.OwnerRef, phase identity.Phase, mark float64) error {
	args := m.Called(ctx, owner, phase, mark)
	return args.Error(0)
}

// MockStorage is a mock implementation of storage.Client
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	args := m.Called(ctx, key, body, contentType)
	return args.Error(0)
}

func (m *MockStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStorage) GetPresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	args := m.Called(ctx, key, expiration)
	return args.String(0), args.Error(1)
}

// MockDispatcher records dispatched notifications
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, n notifications.Notification) {
	m.Called(ctx, n)
}

func newTestService() (*Service, *MockRepository, *MockUserRepository, *MockStorage, *MockDispatcher) {
	repo := new(MockRepository)
	users := new(MockUserRepository)
	store := new(MockStorage)
	dispatcher := new(MockDispatcher)
	svc := NewService(repo, users, store, dispatcher, zap.NewNop())
	return svc, repo, users, store, dispatcher
}

func studentWithSupervisor(supervisorID uuid.UUID) *identity.User {
	return &identity.User{
		ID:           uuid.New(),
		Role:         identity.RoleStudent,
		SupervisorID: &supervisorID,
		Registration: identity.Registration{Status: identity.RegistrationApproved},
	}
}

func TestCreateSubmission(t *testing.T) {
	svc, repo, users, store, dispatcher := newTestService()
	ctx := context.Background()

	supervisorID := uuid.New()
	student := studentWithSupervisor(supervisorID)
	owner := identity.IndividualOwner(student.ID)

	users.On("GetUser", ctx, student.ID).Return(student, nil)
	repo.On("OwnerPhaseState", ctx, owner).Return(map[identity.Phase]PhaseRecord{}, nil)
	store.On("Upload", ctx, mock.AnythingOfType("string"), mock.Anything, "application/pdf").Return(nil)
	repo.On("Create", ctx, mock.AnythingOfType("*submissions.Submission")).Return(nil)
	dispatcher.On("Dispatch", ctx, mock.MatchedBy(func(n notifications.Notification) bool {
		return n.RecipientID == supervisorID && n.Type == notifications.TypeSubmissionReceived
	})).Return()

	sub, err := svc.Create(ctx, CreateRequest{
		AuthorID:    student.ID,
		Phase:       identity.PhaseP1,
		Title:       "Literature review",
		FileContent: strings.NewReader("content"),
		ContentType: "application/pdf",
	})

	assert.NoError(t, err)
	assert.Equal(t, StatusPending, sub.Status)
	assert.Equal(t, owner, sub.OwnerRef)
	assert.Equal(t, supervisorID, sub.SupervisorID)
	assert.False(t, sub.CanResubmit)
	assert.Nil(t, sub.OriginalID)

	repo.AssertExpectations(t)
	store.AssertExpectations(t)
	dispatcher.AssertExpectations(t)
}

func TestCreateSubmissionUsesGroupOwner(t *testing.T) {
	svc, repo, users, store, dispatcher := newTestService()
	ctx := context.Background()

	supervisorID := uuid.New()
	groupID := uuid.New()
	student := &identity.User{
		ID:      uuid.New(),
		Role:    identity.RoleStudent,
		GroupID: &groupID,
		// The student's own fields are stale on purpose; the group record
		// must win.
		Registration: identity.Registration{Status: identity.RegistrationNotSubmitted},
	}
	group := &identity.Group{
		ID:           groupID,
		SupervisorID: &supervisorID,
		Registration: identity.Registration{Status: identity.RegistrationApproved},
	}
	owner := identity.GroupOwner(groupID)

	users.On("GetUser", ctx, student.ID).Return(student, nil)
	users.On("GetGroup", ctx, groupID).Return(group, nil)
	users.On("GetGroupMembers", ctx, groupID).Return([]identity.User{*student}, nil)
	repo.On("OwnerPhaseState", ctx, owner).Return(map[identity.Phase]PhaseRecord{}, nil)
	store.On("Upload", ctx, mock.AnythingOfType("string"), mock.Anything, "application/pdf").Return(nil)
	repo.On("Create", ctx, mock.AnythingOfType("*submissions.Submission")).Return(nil)
	dispatcher.On("Dispatch", ctx, mock.Anything).Return()

	sub, err := svc.Create(ctx, CreateRequest{
		AuthorID:    student.ID,
		Phase:       identity.PhaseP1,
		Title:       "Group proposal",
		FileContent: strings.NewReader("content"),
		ContentType: "application/pdf",
	})

	assert.NoError(t, err)
	assert.Equal(t, owner, sub.OwnerRef)
	assert.Equal(t, student.ID, sub.AuthorID)
}

func TestCreateSubmissionIneligible(t *testing.T) {
	svc, repo, users, _, _ := newTestService()
	ctx := context.Background()

	student := &identity.User{
		ID:           uuid.New(),
		Role:         identity.RoleStudent,
		Registration: identity.Registration{Status: identity.RegistrationApproved},
	}
	users.On("GetUser", ctx, student.ID).Return(student, nil)
	repo.On("OwnerPhaseState", ctx, identity.IndividualOwner(student.ID)).
		Return(map[identity.Phase]PhaseRecord{}, nil)

	_, err := svc.Create(ctx, CreateRequest{
		AuthorID:    student.ID,
		Phase:       identity.PhaseP1,
		Title:       "No supervisor yet",
		FileContent: strings.NewReader("content"),
	})

	var ineligible *IneligibleError
	assert.ErrorAs(t, err, &ineligible)
	assert.Equal(t, ReasonNoSupervisor, ineligible.Reason)
}

func TestReviewRequiresStoredSupervisor(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	ctx := context.Background()

	sub := &Submission{
		ID:           uuid.New(),
		Status:       StatusPending,
		SupervisorID: uuid.New(),
	}
	repo.On("GetByID", ctx, sub.ID).Return(sub, nil)

	err := svc.Review(ctx, uuid.New(), sub.ID, true, false, "")
	assert.ErrorIs(t, err, identity.ErrNotAuthorized)
	repo.AssertNotCalled(t, "Review", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReviewAlreadyReviewed(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	ctx := context.Background()

	supervisorID := uuid.New()
	sub := &Submission{
		ID:           uuid.New(),
		Status:       StatusApproved,
		SupervisorID: supervisorID,
	}
	repo.On("GetByID", ctx, sub.ID).Return(sub, nil)

	err := svc.Review(ctx, supervisorID, sub.ID, false, false, "")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
}

func TestReviewRejectNotifiesAuthor(t *testing.T) {
	svc, repo, users, _, dispatcher := newTestService()
	ctx := context.Background()

	supervisorID := uuid.New()
	student := studentWithSupervisor(supervisorID)
	sub := &Submission{
		ID:           uuid.New(),
		AuthorID:     student.ID,
		OwnerRef:     identity.IndividualOwner(student.ID),
		Phase:        identity.PhaseP1,
		Status:       StatusPending,
		SupervisorID: supervisorID,
	}

	repo.On("GetByID", ctx, sub.ID).Return(sub, nil)
	repo.On("Review", ctx, sub.ID, false, true, "needs work").Return(nil)
	users.On("GetUser", ctx, student.ID).Return(student, nil)
	dispatcher.On("Dispatch", ctx, mock.MatchedBy(func(n notifications.Notification) bool {
		return n.RecipientID == student.ID && n.Type == notifications.TypeSubmissionReviewed
	})).Return()

	err := svc.Review(ctx, supervisorID, sub.ID, false, true, "needs work")
	assert.NoError(t, err)
	dispatcher.AssertExpectations(t)
}

func TestResubmitCreatesLinkedPending(t *testing.T) {
	svc, repo, _, store, dispatcher := newTestService()
	ctx := context.Background()

	supervisorID := uuid.New()
	authorID := uuid.New()
	original := &Submission{
		ID:           uuid.New(),
		AuthorID:     authorID,
		OwnerRef:     identity.IndividualOwner(authorID),
		Phase:        identity.PhaseP2,
		Title:        "Prototype",
		Status:       StatusRejected,
		CanResubmit:  true,
		SupervisorID: supervisorID,
	}

	repo.On("GetByID", ctx, original.ID).Return(original, nil)
	store.On("Upload", ctx, mock.AnythingOfType("string"), mock.Anything, "application/pdf").Return(nil)
	repo.On("Create", ctx, mock.AnythingOfType("*submissions.Submission")).Return(nil)
	dispatcher.On("Dispatch", ctx, mock.Anything).Return()

	sub, err := svc.Resubmit(ctx, ResubmitRequest{
		AuthorID:    authorID,
		OriginalID:  original.ID,
		FileContent: strings.NewReader("revised"),
		ContentType: "application/pdf",
	})

	assert.NoError(t, err)
	assert.Equal(t, StatusPending, sub.Status)
	assert.Equal(t, original.ID, *sub.OriginalID)
	assert.Equal(t, original.Phase, sub.Phase)
	assert.Equal(t, original.SupervisorID, sub.SupervisorID)
	assert.Equal(t, original.Title, sub.Title)
	assert.NotEqual(t, original.ID, sub.ID)
}

func TestResubmitNotAllowed(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	ctx := context.Background()

	authorID := uuid.New()
	original := &Submission{
		ID:          uuid.New(),
		AuthorID:    authorID,
		Status:      StatusRejected,
		CanResubmit: false,
	}
	repo.On("GetByID", ctx, original.ID).Return(original, nil)

	_, err := svc.Resubmit(ctx, ResubmitRequest{AuthorID: authorID, OriginalID: original.ID})
	assert.ErrorIs(t, err, ErrResubmissionNotAllowed)
}

// The resubmittable check is reported before authorship, so a stranger
// probing a non-resubmittable id learns nothing about ownership.
func TestResubmitNotAllowedBeforeAuthorship(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	ctx := context.Background()

	original := &Submission{
		ID:       uuid.New(),
		AuthorID: uuid.New(),
		Status:   StatusPending,
	}
	repo.On("GetByID", ctx, original.ID).Return(original, nil)

	_, err := svc.Resubmit(ctx, ResubmitRequest{AuthorID: uuid.New(), OriginalID: original.ID})
	assert.ErrorIs(t, err, ErrResubmissionNotAllowed)
}

func TestResubmitWrongAuthor(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	ctx := context.Background()

	original := &Submission{
		ID:          uuid.New(),
		AuthorID:    uuid.New(),
		Status:      StatusRejected,
		CanResubmit: true,
	}
	repo.On("GetByID", ctx, original.ID).Return(original, nil)

	_, err := svc.Resubmit(ctx, ResubmitRequest{AuthorID: uuid.New(), OriginalID: original.ID})
	assert.ErrorIs(t, err, identity.ErrNotAuthorized)
}

func TestAllowResubmissionRequiresSupervisor(t *testing.T) {
	svc, repo, _, _, _ := newTestService()
	ctx := context.Background()

	sub := &Submission{
		ID:           uuid.New(),
		Status:       StatusRejected,
		SupervisorID: uuid.New(),
	}
	repo.On("GetByID", ctx, sub.ID).Return(sub, nil)

	err := svc.AllowResubmission(ctx, uuid.New(), sub.ID)
	assert.ErrorIs(t, err, identity.ErrNotAuthorized)
}

func TestGetVisibility(t *testing.T) {
	svc, repo, users, _, _ := newTestService()
	ctx := context.Background()

	groupID := uuid.New()
	authorID := uuid.New()
	memberID := uuid.New()
	sub := &Submission{
		ID:           uuid.New(),
		AuthorID:     authorID,
		OwnerRef:     identity.GroupOwner(groupID),
		SupervisorID: uuid.New(),
	}

	repo.On("GetByID", ctx, sub.ID).Return(sub, nil)
	users.On("GetGroupMembers", ctx, groupID).Return([]identity.User{
		{ID: authorID}, {ID: memberID},
	}, nil)

	// A non-author member sees the group's submission.
	got, err := svc.Get(ctx, memberID, sub.ID)
	assert.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)

	// An outsider does not.
	_, err = svc.Get(ctx, uuid.New(), sub.ID)
	assert.ErrorIs(t, err, identity.ErrNotAuthorized)
}
