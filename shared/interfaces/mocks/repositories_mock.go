package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"storybook-server/shared/interfaces"
	"storybook-server/shared/models"
)

// MockStoryRepository is a mock type for the StoryRepository type
type MockStoryRepository struct {
	mock.Mock
}

// CreateWithFirstSegment provides a mock function with given fields: ctx, story, first
func (_m *MockStoryRepository) CreateWithFirstSegment(ctx context.Context, story *models.Story, first *models.Segment) error {
	ret := _m.Called(ctx, story, first)
	if rf, ok := ret.Get(0).(func(context.Context, *models.Story, *models.Segment) error); ok {
		return rf(ctx, story, first)
	}
	return ret.Error(0)
}

// GetByID provides a mock function with given fields: ctx, id
func (_m *MockStoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	ret := _m.Called(ctx, id)
	var r0 *models.Story
	if v := ret.Get(0); v != nil {
		r0 = v.(*models.Story)
	}
	return r0, ret.Error(1)
}

// ListByUser provides a mock function with given fields: ctx, userID, filter
func (_m *MockStoryRepository) ListByUser(ctx context.Context, userID string, filter models.StoryFilter) (models.StoryPage, error) {
	ret := _m.Called(ctx, userID, filter)
	return ret.Get(0).(models.StoryPage), ret.Error(1)
}

// NewMockStoryRepository creates a new instance of MockStoryRepository. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockStoryRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStoryRepository {
	m := &MockStoryRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockSegmentRepository is a mock type for the SegmentRepository type
type MockSegmentRepository struct {
	mock.Mock
}

// GetByID provides a mock function with given fields: ctx, id
func (_m *MockSegmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Segment, error) {
	ret := _m.Called(ctx, id)
	var r0 *models.Segment
	if v := ret.Get(0); v != nil {
		r0 = v.(*models.Segment)
	}
	return r0, ret.Error(1)
}

// ListByStory provides a mock function with given fields: ctx, storyID
func (_m *MockSegmentRepository) ListByStory(ctx context.Context, storyID uuid.UUID) ([]models.Segment, error) {
	ret := _m.Called(ctx, storyID)
	var r0 []models.Segment
	if v := ret.Get(0); v != nil {
		r0 = v.([]models.Segment)
	}
	return r0, ret.Error(1)
}

// GetLatest provides a mock function with given fields: ctx, storyID
func (_m *MockSegmentRepository) GetLatest(ctx context.Context, storyID uuid.UUID) (*models.Segment, error) {
	ret := _m.Called(ctx, storyID)
	var r0 *models.Segment
	if v := ret.Get(0); v != nil {
		r0 = v.(*models.Segment)
	}
	return r0, ret.Error(1)
}

// Append provides a mock function with given fields: ctx, storyID, draft
func (_m *MockSegmentRepository) Append(ctx context.Context, storyID uuid.UUID, draft models.SegmentDraft) (*models.Segment, *models.Story, error) {
	ret := _m.Called(ctx, storyID, draft)
	if rf, ok := ret.Get(0).(func(context.Context, uuid.UUID, models.SegmentDraft) (*models.Segment, *models.Story, error)); ok {
		return rf(ctx, storyID, draft)
	}
	var r0 *models.Segment
	if v := ret.Get(0); v != nil {
		r0 = v.(*models.Segment)
	}
	var r1 *models.Story
	if v := ret.Get(1); v != nil {
		r1 = v.(*models.Story)
	}
	return r0, r1, ret.Error(2)
}

// TransitionAsset provides a mock function with given fields: ctx, segmentID, kind, from, to, url, errMsg
func (_m *MockSegmentRepository) TransitionAsset(ctx context.Context, segmentID uuid.UUID, kind models.AssetKind, from []models.AssetStatus, to models.AssetStatus, url, errMsg *string) (*models.Segment, error) {
	ret := _m.Called(ctx, segmentID, kind, from, to, url, errMsg)
	var r0 *models.Segment
	if v := ret.Get(0); v != nil {
		r0 = v.(*models.Segment)
	}
	return r0, ret.Error(1)
}

// NewMockSegmentRepository creates a new instance of MockSegmentRepository. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockSegmentRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSegmentRepository {
	m := &MockSegmentRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockCreditRepository is a mock type for the CreditRepository type
type MockCreditRepository struct {
	mock.Mock
}

// GetAccount provides a mock function with given fields: ctx, userID
func (_m *MockCreditRepository) GetAccount(ctx context.Context, userID string) (*models.CreditAccount, error) {
	ret := _m.Called(ctx, userID)
	var r0 *models.CreditAccount
	if v := ret.Get(0); v != nil {
		r0 = v.(*models.CreditAccount)
	}
	return r0, ret.Error(1)
}

// Apply provides a mock function with given fields: ctx, userID, amount, reason, reference
func (_m *MockCreditRepository) Apply(ctx context.Context, userID string, amount int64, reason models.CreditReason, reference *string) (*models.CreditTransaction, int64, error) {
	ret := _m.Called(ctx, userID, amount, reason, reference)
	if rf, ok := ret.Get(0).(func(context.Context, string, int64, models.CreditReason, *string) (*models.CreditTransaction, int64, error)); ok {
		return rf(ctx, userID, amount, reason, reference)
	}
	var r0 *models.CreditTransaction
	if v := ret.Get(0); v != nil {
		r0 = v.(*models.CreditTransaction)
	}
	return r0, ret.Get(1).(int64), ret.Error(2)
}

// ListTransactions provides a mock function with given fields: ctx, userID, limit, offset
func (_m *MockCreditRepository) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]models.CreditTransaction, int, error) {
	ret := _m.Called(ctx, userID, limit, offset)
	var r0 []models.CreditTransaction
	if v := ret.Get(0); v != nil {
		r0 = v.([]models.CreditTransaction)
	}
	return r0, ret.Int(1), ret.Error(2)
}

// NewMockCreditRepository creates a new instance of MockCreditRepository. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockCreditRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockCreditRepository {
	m := &MockCreditRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var (
	_ interfaces.StoryRepository   = (*MockStoryRepository)(nil)
	_ interfaces.SegmentRepository = (*MockSegmentRepository)(nil)
	_ interfaces.CreditRepository  = (*MockCreditRepository)(nil)
)
