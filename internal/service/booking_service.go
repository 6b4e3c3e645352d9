package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"bookingdesk/internal/domain"
	"bookingdesk/internal/events"
	"bookingdesk/internal/metrics"
	"bookingdesk/internal/models"
	"bookingdesk/internal/store"

	"github.com/rs/zerolog"
)

type BookingService struct {
	store            store.DocumentStore
	availability     *AvailabilityService
	eventBus         domain.EventPublisher
	rejectTakenSlots bool
	logger           *zerolog.Logger
	now              func() time.Time
}

func NewBookingService(
	ds store.DocumentStore,
	availability *AvailabilityService,
	eventBus domain.EventPublisher,
	rejectTakenSlots bool,
	logger *zerolog.Logger,
) *BookingService {
	return &BookingService{
		store:            ds,
		availability:     availability,
		eventBus:         eventBus,
		rejectTakenSlots: rejectTakenSlots,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// BookTimeSlot marks the slot as taken by clientID. It reads the day, edits
// the slot list and writes it back without any isolation: when two clients
// book the same slot concurrently the last write wins.
func (s *BookingService) BookTimeSlot(ctx context.Context, date, slotTime, clientID string) error {
	if _, err := models.ParseSlotTime(slotTime); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	day, err := s.availability.GetDateAvailability(ctx, date)
	if err != nil {
		return err
	}

	booked := models.TimeSlot{Time: slotTime, IsAvailable: false, BookedBy: clientID}
	now := s.now()

	if day == nil {
		data := map[string]any{
			"date":        date,
			"isAvailable": true,
			"slots":       slotData([]models.TimeSlot{booked}),
			"updatedAt":   now,
		}
		if err := s.store.Set(ctx, models.CollectionCalendar, date, data, false); err != nil {
			s.logger.Error().Err(err).Str("date", date).Str("time", slotTime).Msg("failed to book time slot")
			return err
		}
		return nil
	}

	slots := append([]models.TimeSlot(nil), day.Slots...)
	if i := day.FindSlot(slotTime); i >= 0 {
		slots[i] = booked
	} else {
		slots = append(slots, booked)
	}

	data := map[string]any{
		"slots":     slotData(slots),
		"updatedAt": now,
	}
	if err := s.store.Set(ctx, models.CollectionCalendar, date, data, true); err != nil {
		s.logger.Error().Err(err).Str("date", date).Str("time", slotTime).Msg("failed to book time slot")
		return err
	}
	return nil
}

// CreateBooking validates and stores a new pending booking, then reserves
// its slot. The two writes are independent: if the slot write fails the
// booking record stays in place and its ID is returned together with the
// error.
func (s *BookingService) CreateBooking(ctx context.Context, booking *models.Booking) (string, error) {
	if booking == nil {
		return "", fmt.Errorf("%w: booking is required", ErrValidation)
	}
	if missing := booking.MissingFields(); len(missing) > 0 {
		return "", fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	if _, err := models.ParseDateKey(booking.Date); err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := models.ParseSlotTime(booking.Time); err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if s.rejectTakenSlots {
		free, err := s.availability.IsSlotFree(ctx, booking.Date, booking.Time)
		if err != nil {
			return "", err
		}
		if !free {
			return "", ErrSlotTaken
		}
	}

	now := s.now()
	booking.Status = models.StatusPending
	booking.CreatedAt = now
	booking.UpdatedAt = now

	id, err := s.store.Add(ctx, models.CollectionBookings, bookingData(booking))
	if err != nil {
		s.logger.Error().Err(err).Str("client_email", booking.ClientEmail).Msg("failed to create booking")
		return "", err
	}
	booking.ID = id
	metrics.IncBookingsCreated()

	if err := s.BookTimeSlot(ctx, booking.Date, booking.Time, booking.ClientID()); err != nil {
		s.logger.Error().
			Err(err).
			Str("booking_id", id).
			Str("date", booking.Date).
			Str("time", booking.Time).
			Msg("booking stored but slot reservation failed")
		return id, err
	}

	s.publishEvent(events.EventBookingCreated, booking, "")
	return id, nil
}

// GetAllBookings returns every booking ordered by creation time.
func (s *BookingService) GetAllBookings(ctx context.Context) ([]models.Booking, error) {
	docs, err := s.store.Query(ctx, models.CollectionBookings, store.Query{})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list bookings")
		return nil, err
	}
	bookings, err := decodeBookings(docs)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to decode bookings")
		return nil, err
	}
	return bookings, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	doc, err := s.store.Get(ctx, models.CollectionBookings, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error().Err(err).Str("booking_id", id).Msg("failed to get booking")
		}
		return nil, err
	}
	return decodeBooking(doc)
}

// SubscribeToBookings calls fn with every booking now and after each change.
func (s *BookingService) SubscribeToBookings(ctx context.Context, fn func([]models.Booking)) (store.Unsubscribe, error) {
	unsubscribe, err := s.store.Watch(ctx, models.CollectionBookings, store.Query{}, func(docs []store.Document) {
		bookings, err := decodeBookings(docs)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to decode bookings snapshot")
			return
		}
		fn(bookings)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to bookings")
		return nil, err
	}
	return unsubscribe, nil
}

// UpdateBookingStatus sets the status of an existing booking. Any transition
// between known statuses is allowed.
func (s *BookingService) UpdateBookingStatus(ctx context.Context, id, status string) error {
	if !models.ValidStatus(status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var previous *models.Booking
	if doc, err := s.store.Get(ctx, models.CollectionBookings, id); err == nil {
		previous, _ = decodeBooking(doc)
	}

	data := map[string]any{
		"status":    status,
		"updatedAt": s.now(),
	}
	if err := s.store.Update(ctx, models.CollectionBookings, id, data); err != nil {
		s.logger.Error().Err(err).Str("booking_id", id).Str("status", status).Msg("failed to update booking status")
		return err
	}

	if previous != nil {
		oldStatus := previous.Status
		previous.Status = status
		s.publishEvent(events.EventBookingStatusChanged, previous, oldStatus)
	}
	return nil
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, previousStatus string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:      booking.ID,
		ServiceID:      booking.ServiceID,
		ServiceName:    booking.ServiceName,
		Date:           booking.Date,
		Time:           booking.Time,
		ClientName:     booking.ClientName,
		ClientEmail:    booking.ClientEmail,
		ClientPhone:    booking.ClientPhone,
		Status:         booking.Status,
		PreviousStatus: previousStatus,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

func bookingData(b *models.Booking) map[string]any {
	data := map[string]any{
		"serviceId":   b.ServiceID,
		"serviceName": b.ServiceName,
		"date":        b.Date,
		"time":        b.Time,
		"clientName":  b.ClientName,
		"clientEmail": b.ClientEmail,
		"clientPhone": b.ClientPhone,
		"status":      b.Status,
		"createdAt":   b.CreatedAt,
		"updatedAt":   b.UpdatedAt,
	}
	if b.ClientMessage != "" {
		data["clientMessage"] = b.ClientMessage
	}
	return data
}

func decodeBooking(doc store.Document) (*models.Booking, error) {
	var b models.Booking
	if err := store.Decode(doc, &b); err != nil {
		return nil, err
	}
	b.ID = doc.ID
	return &b, nil
}

func decodeBookings(docs []store.Document) ([]models.Booking, error) {
	bookings := make([]models.Booking, 0, len(docs))
	for _, doc := range docs {
		b, err := decodeBooking(doc)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	sort.SliceStable(bookings, func(i, j int) bool {
		if !bookings[i].CreatedAt.Equal(bookings[j].CreatedAt) {
			return bookings[i].CreatedAt.Before(bookings[j].CreatedAt)
		}
		return bookings[i].ID < bookings[j].ID
	})
	return bookings, nil
}
