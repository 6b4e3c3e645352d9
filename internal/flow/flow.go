// Package flow drives the client booking form: service, date, time, contact
// details, confirmation and submission. Sessions are persisted between steps
// so any front end (HTTP or Telegram) can resume them.
package flow

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"bookingdesk/internal/domain"
	"bookingdesk/internal/models"
	"bookingdesk/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrSessionNotFound  = errors.New("form session not found")
	ErrWrongStep        = errors.New("action not allowed at current step")
	ErrRateLimited      = errors.New("too many requests")
	ErrSubmitInProgress = errors.New("submission already in progress")
	ErrUnknownService   = errors.New("unknown service")
	ErrDateUnavailable  = errors.New("date is not available")
	ErrSlotUnavailable  = errors.New("time slot is not available")
	ErrInvalidInput     = errors.New("invalid input")
	ErrSubmitFailed     = errors.New("booking submission failed")
)

// SubmitFailedMessage is shown to the client after any failed submission.
const SubmitFailedMessage = "Could not complete the booking, the slot may be taken. Please choose another time."

type Config struct {
	SlotTimes         []string
	MaxBookingDays    int
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Contact holds the client details entered in the contact step.
type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message,omitempty"`
}

type Flow struct {
	state        *service.StateService
	catalog      domain.CatalogService
	availability domain.AvailabilityService
	bookings     domain.BookingService
	cfg          Config
	logger       *zerolog.Logger
	now          func() time.Time
}

func New(
	state *service.StateService,
	catalog domain.CatalogService,
	availability domain.AvailabilityService,
	bookings domain.BookingService,
	cfg Config,
	logger *zerolog.Logger,
) *Flow {
	return &Flow{
		state:        state,
		catalog:      catalog,
		availability: availability,
		bookings:     bookings,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// Start opens a new session at the service step. An empty sessionID gets a
// generated one; an existing session with the same ID is replaced.
func (f *Flow) Start(ctx context.Context, sessionID string) (*models.FormState, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if err := f.limit(ctx, sessionID); err != nil {
		return nil, err
	}

	state := &models.FormState{
		SessionID: sessionID,
		Step:      models.StepSelectService,
		Data:      make(map[string]interface{}),
	}
	if err := f.state.SaveFormState(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (f *Flow) Get(ctx context.Context, sessionID string) (*models.FormState, error) {
	state, err := f.state.GetFormState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

func (f *Flow) Reset(ctx context.Context, sessionID string) error {
	return f.state.ClearFormState(ctx, sessionID)
}

func (f *Flow) SelectService(ctx context.Context, sessionID, serviceID string) (*models.FormState, error) {
	state, err := f.load(ctx, sessionID, models.StepSelectService)
	if err != nil {
		return nil, err
	}

	svc, ok := f.catalog.GetService(strings.TrimSpace(serviceID))
	if !ok || !svc.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}

	state.Set(models.FieldServiceID, svc.ID)
	state.Set(models.FieldServiceName, svc.Name)
	return f.advance(ctx, state, models.StepSelectDate)
}

// SelectDate accepts today up to MaxBookingDays ahead, unless the day is
// closed in the calendar.
func (f *Flow) SelectDate(ctx context.Context, sessionID, date string) (*models.FormState, error) {
	state, err := f.load(ctx, sessionID, models.StepSelectDate)
	if err != nil {
		return nil, err
	}

	date = strings.TrimSpace(date)
	day, err := models.ParseDateKey(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	today, _ := models.ParseDateKey(f.now().Format(models.DateLayout))
	if day.Before(today) {
		return nil, fmt.Errorf("%w: %s is in the past", ErrDateUnavailable, date)
	}
	if f.cfg.MaxBookingDays > 0 && day.After(today.AddDate(0, 0, f.cfg.MaxBookingDays)) {
		return nil, fmt.Errorf("%w: %s is more than %d days ahead", ErrDateUnavailable, date, f.cfg.MaxBookingDays)
	}

	record, err := f.availability.GetDateAvailability(ctx, date)
	if err != nil {
		return nil, err
	}
	if record != nil && !record.IsAvailable {
		return nil, fmt.Errorf("%w: %s", ErrDateUnavailable, date)
	}

	state.Set(models.FieldDate, date)
	delete(state.Data, models.FieldTime)
	return f.advance(ctx, state, models.StepSelectTime)
}

// AvailableTimes lists the slots of the selected date with their current
// availability.
func (f *Flow) AvailableTimes(ctx context.Context, sessionID string) ([]models.TimeSlot, error) {
	state, err := f.load(ctx, sessionID, models.StepSelectTime)
	if err != nil {
		return nil, err
	}
	return f.availability.DaySchedule(ctx, state.GetText(models.FieldDate), f.cfg.SlotTimes)
}

// SelectTime rejects slots that already look taken. The check is advisory;
// the slot can still be taken by someone else before submission.
func (f *Flow) SelectTime(ctx context.Context, sessionID, slotTime string) (*models.FormState, error) {
	state, err := f.load(ctx, sessionID, models.StepSelectTime)
	if err != nil {
		return nil, err
	}

	slotTime = strings.TrimSpace(slotTime)
	if _, err := models.ParseSlotTime(slotTime); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(f.cfg.SlotTimes) > 0 && !slices.Contains(f.cfg.SlotTimes, slotTime) {
		return nil, fmt.Errorf("%w: %s is not a bookable time", ErrInvalidInput, slotTime)
	}

	free, err := f.availability.IsSlotFree(ctx, state.GetText(models.FieldDate), slotTime)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, fmt.Errorf("%w: %s", ErrSlotUnavailable, slotTime)
	}

	state.Set(models.FieldTime, slotTime)
	return f.advance(ctx, state, models.StepContact)
}

func (f *Flow) SetContact(ctx context.Context, sessionID string, contact Contact) (*models.FormState, error) {
	state, err := f.load(ctx, sessionID, models.StepContact)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(contact.Name)
	email := strings.TrimSpace(contact.Email)
	phone := strings.TrimSpace(contact.Phone)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: invalid email %q", ErrInvalidInput, email)
	}
	if phone == "" {
		return nil, fmt.Errorf("%w: phone is required", ErrInvalidInput)
	}

	state.Set(models.FieldClientName, name)
	state.Set(models.FieldClientEmail, email)
	state.Set(models.FieldClientPhone, phone)
	state.Set(models.FieldClientMessage, strings.TrimSpace(contact.Message))
	return f.advance(ctx, state, models.StepConfirm)
}

// Submit creates the booking from the collected data. A session already
// submitting is refused. Any booking error moves the session to the failed
// step with SubmitFailedMessage; the returned error wraps ErrSubmitFailed.
func (f *Flow) Submit(ctx context.Context, sessionID string) (*models.FormState, error) {
	state, err := f.load(ctx, sessionID, models.StepConfirm)
	if err != nil {
		return nil, err
	}
	if state.Submitting {
		return nil, ErrSubmitInProgress
	}

	payload := state.Payload()
	if missing := payload.MissingFields(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", service.ErrValidation, strings.Join(missing, ", "))
	}

	state.Submitting = true
	state.Error = ""
	if err := f.state.SaveFormState(ctx, state); err != nil {
		return nil, err
	}

	id, err := f.bookings.CreateBooking(ctx, &payload)
	state.Submitting = false
	// The outcome must be stored even when the caller has gone away, or the
	// session stays marked as submitting.
	saveCtx := context.WithoutCancel(ctx)
	if err != nil {
		f.logger.Error().Err(err).Str("session_id", sessionID).Str("booking_id", id).Msg("booking submission failed")
		state.Step = models.StepFailed
		state.Error = SubmitFailedMessage
		if saveErr := f.state.SaveFormState(saveCtx, state); saveErr != nil {
			f.logger.Error().Err(saveErr).Str("session_id", sessionID).Msg("failed to save failed form state")
		}
		return state, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	state.Step = models.StepDone
	state.BookingID = id
	if err := f.state.SaveFormState(saveCtx, state); err != nil {
		f.logger.Error().Err(err).Str("session_id", sessionID).Str("booking_id", id).Msg("failed to save completed form state")
	}
	f.logger.Info().Str("session_id", sessionID).Str("booking_id", id).Msg("booking submitted")
	return state, nil
}

// Back returns to the previous step. From the failed step it goes back to
// time selection so another slot can be picked. A stale submitting flag left
// by an interrupted submit is cleared.
func (f *Flow) Back(ctx context.Context, sessionID string) (*models.FormState, error) {
	state, err := f.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	prev, ok := previousStep[state.Step]
	if !ok {
		return nil, fmt.Errorf("%w: cannot go back from %s", ErrWrongStep, state.Step)
	}
	if state.Step == models.StepFailed {
		state.Error = ""
		delete(state.Data, models.FieldTime)
	}
	state.Submitting = false
	return f.advance(ctx, state, prev)
}

var previousStep = map[string]string{
	models.StepSelectDate: models.StepSelectService,
	models.StepSelectTime: models.StepSelectDate,
	models.StepContact:    models.StepSelectTime,
	models.StepConfirm:    models.StepContact,
	models.StepFailed:     models.StepSelectTime,
}

func (f *Flow) load(ctx context.Context, sessionID, step string) (*models.FormState, error) {
	if err := f.limit(ctx, sessionID); err != nil {
		return nil, err
	}
	state, err := f.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Step != step {
		return nil, fmt.Errorf("%w: expected %s, session is at %s", ErrWrongStep, step, state.Step)
	}
	return state, nil
}

func (f *Flow) advance(ctx context.Context, state *models.FormState, step string) (*models.FormState, error) {
	state.Step = step
	if err := f.state.SaveFormState(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (f *Flow) limit(ctx context.Context, sessionID string) error {
	if f.cfg.RateLimitRequests <= 0 {
		return nil
	}
	allowed, err := f.state.CheckRateLimit(ctx, "form:"+sessionID, f.cfg.RateLimitRequests, f.cfg.RateLimitWindow)
	if err != nil {
		f.logger.Warn().Err(err).Str("session_id", sessionID).Msg("rate limit check failed")
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}
