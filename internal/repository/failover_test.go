package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"bookingdesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetState(ctx context.Context, sessionID string) (*models.FormState, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FormState), args.Error(1)
}

func (m *mockRepo) SetState(ctx context.Context, state *models.FormState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *mockRepo) ClearState(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *mockRepo) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverStateRepository(t *testing.T) {
	primary := new(mockRepo)
	fallback := new(mockRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		state := &models.FormState{SessionID: "s1"}
		primary.On("GetState", ctx, "s1").Return(state, nil).Once()

		got, err := repo.GetState(ctx, "s1")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		state := &models.FormState{SessionID: "s2"}
		primary.On("GetState", ctx, "s2").Return(nil, errors.New("fail")).Once()
		fallback.On("GetState", ctx, "s2").Return(state, nil).Once()

		got, err := repo.GetState(ctx, "s2")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())

		state := &models.FormState{SessionID: "s3"}
		primary.On("GetState", ctx, "s3").Return(state, nil).Once()

		got, err := repo.GetState(ctx, "s3")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())

		primary.On("GetState", ctx, "s33").Return(nil, errors.New("still fail")).Once()
		fallback.On("GetState", ctx, "s33").Return(nil, nil).Once()

		_, err := repo.GetState(ctx, "s33")
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetStateSuccess", func(t *testing.T) {
		repo.isDown.Store(false)
		state := &models.FormState{SessionID: "s77"}
		primary.On("SetState", ctx, state).Return(nil).Once()

		err := repo.SetState(ctx, state)
		assert.NoError(t, err)
		primary.AssertExpectations(t)
	})

	t.Run("ClearStateSuccess", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("ClearState", ctx, "s88").Return(nil).Once()

		err := repo.ClearState(ctx, "s88")
		assert.NoError(t, err)
		primary.AssertExpectations(t)
	})

	t.Run("CheckRateLimitSuccess", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, "s99", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "s99", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		primary.AssertExpectations(t)
	})

	t.Run("SetStateFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		state := &models.FormState{SessionID: "s4"}
		primary.On("SetState", ctx, state).Return(errors.New("fail")).Once()
		fallback.On("SetState", ctx, state).Return(nil).Once()

		err := repo.SetState(ctx, state)
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("ClearStateFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("ClearState", ctx, "s5").Return(errors.New("fail")).Once()
		fallback.On("ClearState", ctx, "s5").Return(nil).Once()

		err := repo.ClearState(ctx, "s5")
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("CheckRateLimitFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, "s6", 10, time.Minute).Return(false, errors.New("fail")).Once()
		fallback.On("CheckRateLimit", ctx, "s6", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "s6", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetStateAlreadyDown", func(t *testing.T) {
		repo.isDown.Store(true)
		state := &models.FormState{SessionID: "s44"}
		fallback.On("SetState", ctx, state).Return(nil).Once()

		err := repo.SetState(ctx, state)
		assert.NoError(t, err)
		fallback.AssertExpectations(t)
	})

	t.Run("ClearStateAlreadyDown", func(t *testing.T) {
		repo.isDown.Store(true)
		fallback.On("ClearState", ctx, "s55").Return(nil).Once()

		err := repo.ClearState(ctx, "s55")
		assert.NoError(t, err)
		fallback.AssertExpectations(t)
	})

	t.Run("CheckRateLimitAlreadyDown", func(t *testing.T) {
		repo.isDown.Store(true)
		fallback.On("CheckRateLimit", ctx, "s66", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "s66", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		fallback.AssertExpectations(t)
	})
}
