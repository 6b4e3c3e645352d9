package repository

import (
	"context"
	"sync/atomic"
	"time"

	"bookingdesk/internal/domain"
	"bookingdesk/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStateRepository serves form sessions from the primary repository
// and switches to the fallback when the primary fails. The primary is retried
// on reads once recoveryInterval has passed.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStateRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverStateRepository) recoveryDue() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverStateRepository) GetState(ctx context.Context, sessionID string) (*models.FormState, error) {
	if !r.isDown.Load() {
		state, err := r.primary.GetState(ctx, sessionID)
		if err == nil {
			return state, nil
		}
		r.markDown(err)
	} else if r.recoveryDue() {
		state, err := r.primary.GetState(ctx, sessionID)
		if err == nil {
			r.isDown.Store(false)
			r.logger.Info().Msg("Primary state repository recovered")
			return state, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.GetState(ctx, sessionID)
}

func (r *FailoverStateRepository) SetState(ctx context.Context, state *models.FormState) error {
	if !r.isDown.Load() {
		err := r.primary.SetState(ctx, state)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetState(ctx, state)
}

func (r *FailoverStateRepository) ClearState(ctx context.Context, sessionID string) error {
	if !r.isDown.Load() {
		err := r.primary.ClearState(ctx, sessionID)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.ClearState(ctx, sessionID)
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
