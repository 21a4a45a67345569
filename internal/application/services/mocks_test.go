package services_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/repositories"
	apperrors "github.com/zatekoja/coursefeedback/backend/pkg/errors"
)

// Mocks

type MockFeedbackRepository struct {
	mock.Mock
}

func (m *MockFeedbackRepository) Upsert(ctx context.Context, params repositories.UpsertFeedbackParams) (*entities.Feedback, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Feedback), args.Error(1)
}

func (m *MockFeedbackRepository) GetByID(ctx context.Context, id string) (*entities.Feedback, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Feedback), args.Error(1)
}

func (m *MockFeedbackRepository) Find(ctx context.Context, filter repositories.FeedbackFilter) ([]*entities.Feedback, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Feedback), args.Error(1)
}

func (m *MockFeedbackRepository) SetApproval(ctx context.Context, id string, approved bool) error {
	args := m.Called(ctx, id, approved)
	return args.Error(0)
}

func (m *MockFeedbackRepository) ToggleApproval(ctx context.Context, id string) (*entities.Feedback, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Feedback), args.Error(1)
}

func (m *MockFeedbackRepository) FindEffective(ctx context.Context, courseKey string) ([]*entities.Feedback, error) {
	args := m.Called(ctx, courseKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Feedback), args.Error(1)
}

type MockSharingLinkRepository struct {
	mock.Mock
}

func (m *MockSharingLinkRepository) AddLink(ctx context.Context, feedbackID, courseKey string) (*entities.SharingLink, error) {
	args := m.Called(ctx, feedbackID, courseKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.SharingLink), args.Error(1)
}

func (m *MockSharingLinkRepository) RemoveLink(ctx context.Context, feedbackID, courseKey string) error {
	args := m.Called(ctx, feedbackID, courseKey)
	return args.Error(0)
}

func (m *MockSharingLinkRepository) ListLinksFor(ctx context.Context, feedbackID string) ([]string, error) {
	args := m.Called(ctx, feedbackID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, channel string, event *entities.FeedbackEvent) error {
	args := m.Called(ctx, channel, event)
	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.FeedbackEvent, error) {
	args := m.Called(ctx, channel)
	return args.Get(0).(<-chan *entities.FeedbackEvent), args.Error(1)
}

func (m *MockEventBus) Close() error {
	return m.Called().Error(0)
}

type MockAuditLog struct {
	mock.Mock
}

func (m *MockAuditLog) Record(ctx context.Context, action string, fields map[string]string) {
	m.Called(ctx, action, fields)
}

// Fakes

// memoryFeedbackStore keeps approval state so repeated toggles can be observed
type memoryFeedbackStore struct {
	MockFeedbackRepository
	mu      sync.Mutex
	records map[string]*entities.Feedback
}

func newMemoryFeedbackStore(records ...*entities.Feedback) *memoryFeedbackStore {
	s := &memoryFeedbackStore{records: map[string]*entities.Feedback{}}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

func (s *memoryFeedbackStore) GetByID(_ context.Context, id string) (*entities.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(id)
	}
	copied := *r
	return &copied, nil
}

func (s *memoryFeedbackStore) SetApproval(_ context.Context, id string, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return apperrors.NewNotFoundError(id)
	}
	r.IsApproved = approved
	return nil
}

func (s *memoryFeedbackStore) ToggleApproval(_ context.Context, id string) (*entities.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(id)
	}
	r.IsApproved = !r.IsApproved
	copied := *r
	return &copied, nil
}

func (s *memoryFeedbackStore) approved(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].IsApproved
}

type stubDirectory struct {
	courses    map[string]string
	users      map[string]*entities.UserProfile
	courseErr  error
	mu         sync.Mutex
	courseHits int
	userHits   int
}

func (d *stubDirectory) GetDisplayName(ctx context.Context, key string) (string, error) {
	names, err := d.GetDisplayNames(ctx, []string{key})
	if err != nil {
		return "", err
	}
	return names[key], nil
}

func (d *stubDirectory) GetDisplayNames(_ context.Context, keys []string) (map[string]string, error) {
	d.mu.Lock()
	d.courseHits++
	d.mu.Unlock()
	out := map[string]string{}
	for _, k := range keys {
		if name, ok := d.courses[k]; ok {
			out[k] = name
		}
	}
	return out, d.courseErr
}

func (d *stubDirectory) GetProfile(ctx context.Context, id string) (*entities.UserProfile, error) {
	profiles, _ := d.GetProfiles(ctx, []string{id})
	return profiles[id], nil
}

func (d *stubDirectory) GetProfiles(_ context.Context, ids []string) (map[string]*entities.UserProfile, error) {
	d.mu.Lock()
	d.userHits++
	d.mu.Unlock()
	out := map[string]*entities.UserProfile{}
	for _, id := range ids {
		if p, ok := d.users[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int        { return &i }
