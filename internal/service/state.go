package service

import (
	"context"
	"time"

	"bookingdesk/internal/domain"
	"bookingdesk/internal/models"

	"github.com/rs/zerolog"
)

// StateService persists booking form sessions.
type StateService struct {
	stateRepo domain.StateRepository
	logger    *zerolog.Logger
}

func NewStateService(stateRepo domain.StateRepository, logger *zerolog.Logger) *StateService {
	return &StateService{
		stateRepo: stateRepo,
		logger:    logger,
	}
}

// GetFormState returns the stored session or nil when there is none.
func (s *StateService) GetFormState(ctx context.Context, sessionID string) (*models.FormState, error) {
	state, err := s.stateRepo.GetState(ctx, sessionID)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to get form state")
		return nil, err
	}

	return state, nil
}

func (s *StateService) SaveFormState(ctx context.Context, state *models.FormState) error {
	state.UpdatedAt = time.Now().UTC()
	if err := s.stateRepo.SetState(ctx, state); err != nil {
		s.logger.Error().Err(err).Str("session_id", state.SessionID).Msg("failed to save form state")
		return err
	}
	return nil
}

func (s *StateService) ClearFormState(ctx context.Context, sessionID string) error {
	return s.stateRepo.ClearState(ctx, sessionID)
}

// UpdateFormData sets one field of the session, creating the session at the
// first step when it does not exist yet.
func (s *StateService) UpdateFormData(ctx context.Context, sessionID, key string, value interface{}) error {
	state, err := s.GetFormState(ctx, sessionID)
	if err != nil {
		return err
	}
	if state == nil {
		state = &models.FormState{
			SessionID: sessionID,
			Step:      models.StepSelectService,
			Data:      make(map[string]interface{}),
		}
	}

	state.Set(key, value)
	return s.SaveFormState(ctx, state)
}

func (s *StateService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return s.stateRepo.CheckRateLimit(ctx, key, limit, window)
}
