package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bookingdesk/internal/events"
	"bookingdesk/internal/models"
	"bookingdesk/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBookTimeSlot_AbsentDate(t *testing.T) {
	ds := memoryStore(t)
	_, bookings := newTestServices(t, ds, nil)
	ctx := context.Background()

	require.NoError(t, bookings.BookTimeSlot(ctx, "2024-06-01", "10:00", "a@x.com"))

	docs, err := ds.Query(ctx, models.CollectionCalendar, store.Query{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "2024-06-01", docs[0].ID)

	day, err := decodeDay(docs[0])
	require.NoError(t, err)
	assert.True(t, day.IsAvailable)
	require.Len(t, day.Slots, 1)
	assert.Equal(t, models.TimeSlot{Time: "10:00", IsAvailable: false, BookedBy: "a@x.com"}, day.Slots[0])
}

func TestBookTimeSlot_AppendsAndReplaces(t *testing.T) {
	availability, bookings := newTestServices(t, memoryStore(t), nil)
	ctx := context.Background()

	require.NoError(t, availability.SetDateAvailability(ctx, "2024-06-01", boolPtr(true), []models.TimeSlot{
		{Time: "09:00", IsAvailable: true},
		{Time: "10:00", IsAvailable: true},
	}))
	require.NoError(t, bookings.BookTimeSlot(ctx, "2024-06-01", "10:00", "a@x.com"))
	require.NoError(t, bookings.BookTimeSlot(ctx, "2024-06-01", "11:00", "b@x.com"))

	day, err := availability.GetDateAvailability(ctx, "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, []models.TimeSlot{
		{Time: "09:00", IsAvailable: true},
		{Time: "10:00", IsAvailable: false, BookedBy: "a@x.com"},
		{Time: "11:00", IsAvailable: false, BookedBy: "b@x.com"},
	}, day.Slots)
}

// Booking the same slot twice is not prevented: the second client's binding
// replaces the first.
func TestBookTimeSlot_LastWriteWins(t *testing.T) {
	availability, bookings := newTestServices(t, memoryStore(t), nil)
	ctx := context.Background()

	require.NoError(t, bookings.BookTimeSlot(ctx, "2024-06-01", "10:00", "a@x.com"))
	require.NoError(t, bookings.BookTimeSlot(ctx, "2024-06-01", "10:00", "b@x.com"))

	day, err := availability.GetDateAvailability(ctx, "2024-06-01")
	require.NoError(t, err)
	require.Len(t, day.Slots, 1)
	assert.Equal(t, "b@x.com", day.Slots[0].BookedBy)
	assert.False(t, day.Slots[0].IsAvailable)
}

func TestBookTimeSlot_InvalidTime(t *testing.T) {
	_, bookings := newTestServices(t, memoryStore(t), nil)
	assert.ErrorIs(t, bookings.BookTimeSlot(context.Background(), "2024-06-01", "25:00", "a@x.com"), ErrValidation)
}

func TestCreateBooking_Scenario(t *testing.T) {
	publisher := new(mockPublisher)
	availability, bookings := newTestServices(t, memoryStore(t), publisher)
	ctx := context.Background()

	publisher.On("PublishJSON", events.EventBookingCreated, mock.MatchedBy(func(p events.BookingEventPayload) bool {
		return p.BookingID != "" && p.Status == models.StatusPending && p.ClientEmail == "a@x.com"
	})).Return(nil).Once()

	input := validBooking()
	input.Status = models.StatusConfirmed
	id, err := bookings.CreateBooking(ctx, input)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	stored, err := bookings.GetBooking(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, stored.ID)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, "svc1", stored.ServiceID)
	assert.Equal(t, "Cut", stored.ServiceName)
	assert.Equal(t, "+1", stored.ClientPhone)
	assert.True(t, stored.CreatedAt.Equal(fixedNow))

	day, err := availability.GetDateAvailability(ctx, "2024-06-01")
	require.NoError(t, err)
	require.NotNil(t, day)
	require.Len(t, day.Slots, 1)
	assert.Equal(t, models.TimeSlot{Time: "10:00", IsAvailable: false, BookedBy: "a@x.com"}, day.Slots[0])

	publisher.AssertExpectations(t)
}

func TestCreateBooking_MissingFields(t *testing.T) {
	ds := new(mockStore)
	logger := zerolog.Nop()
	bookings := NewBookingService(ds, NewAvailabilityService(ds, &logger), nil, false, &logger)

	b := validBooking()
	b.ClientPhone = "  "
	_, err := bookings.CreateBooking(context.Background(), b)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "clientPhone")

	_, err = bookings.CreateBooking(context.Background(), nil)
	assert.ErrorIs(t, err, ErrValidation)

	// validation happens before any store call
	ds.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateBooking_SlotFailureLeavesOrphan(t *testing.T) {
	ds := new(mockStore)
	logger := zerolog.Nop()
	bookings := NewBookingService(ds, NewAvailabilityService(ds, &logger), nil, false, &logger)

	slotErr := errors.New("calendar write failed")
	ds.On("Add", mock.Anything, models.CollectionBookings, mock.Anything).Return("b-1", nil).Once()
	ds.On("Get", mock.Anything, models.CollectionCalendar, "2024-06-01").Return(store.Document{}, store.ErrNotFound).Once()
	ds.On("Set", mock.Anything, models.CollectionCalendar, "2024-06-01", mock.Anything, false).Return(slotErr).Once()

	id, err := bookings.CreateBooking(context.Background(), validBooking())
	assert.ErrorIs(t, err, slotErr)
	assert.Equal(t, "b-1", id)
	ds.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	ds.AssertExpectations(t)
}

func TestCreateBooking_AddFailure(t *testing.T) {
	ds := new(mockStore)
	logger := zerolog.Nop()
	bookings := NewBookingService(ds, NewAvailabilityService(ds, &logger), nil, false, &logger)

	addErr := errors.New("permission denied")
	ds.On("Add", mock.Anything, models.CollectionBookings, mock.Anything).Return("", addErr).Once()

	id, err := bookings.CreateBooking(context.Background(), validBooking())
	assert.Equal(t, addErr, err)
	assert.Empty(t, id)
	ds.AssertExpectations(t)
}

func TestCreateBooking_RejectTakenSlots(t *testing.T) {
	logger := zerolog.Nop()
	ds := memoryStore(t)
	availability := NewAvailabilityService(ds, &logger)
	bookings := NewBookingService(ds, availability, nil, true, &logger)
	ctx := context.Background()

	_, err := bookings.CreateBooking(ctx, validBooking())
	require.NoError(t, err)

	second := validBooking()
	second.ClientEmail = "b@x.com"
	_, err = bookings.CreateBooking(ctx, second)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestGetAllBookings(t *testing.T) {
	_, bookings := newTestServices(t, memoryStore(t), nil)
	ctx := context.Background()

	all, err := bookings.GetAllBookings(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	tick := fixedNow
	bookings.now = func() time.Time { tick = tick.Add(time.Minute); return tick }

	first, err := bookings.CreateBooking(ctx, validBooking())
	require.NoError(t, err)
	b := validBooking()
	b.Time = "11:00"
	second, err := bookings.CreateBooking(ctx, b)
	require.NoError(t, err)

	all, err = bookings.GetAllBookings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0].ID)
	assert.Equal(t, second, all[1].ID)
}

func TestUpdateBookingStatus(t *testing.T) {
	publisher := new(mockPublisher)
	_, bookings := newTestServices(t, memoryStore(t), publisher)
	ctx := context.Background()

	publisher.On("PublishJSON", events.EventBookingCreated, mock.Anything).Return(nil).Once()
	publisher.On("PublishJSON", events.EventBookingStatusChanged, mock.MatchedBy(func(p events.BookingEventPayload) bool {
		return p.Status == models.StatusConfirmed && p.PreviousStatus == models.StatusPending
	})).Return(nil).Once()

	id, err := bookings.CreateBooking(ctx, validBooking())
	require.NoError(t, err)

	require.NoError(t, bookings.UpdateBookingStatus(ctx, id, models.StatusConfirmed))
	stored, err := bookings.GetBooking(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status)

	assert.ErrorIs(t, bookings.UpdateBookingStatus(ctx, id, "archived"), ErrInvalidStatus)
	publisher.AssertExpectations(t)
}

func TestUpdateBookingStatus_UnknownID(t *testing.T) {
	_, bookings := newTestServices(t, memoryStore(t), nil)

	err := bookings.UpdateBookingStatus(context.Background(), "does-not-exist", models.StatusCancelled)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubscribeToBookings(t *testing.T) {
	_, bookings := newTestServices(t, memoryStore(t), nil)
	ctx := context.Background()

	var mu sync.Mutex
	var latest []models.Booking
	var calls int
	unsubscribe, err := bookings.SubscribeToBookings(ctx, func(list []models.Booking) {
		mu.Lock()
		defer mu.Unlock()
		latest = list
		calls++
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 1
	}, time.Second, 5*time.Millisecond)

	id, err := bookings.CreateBooking(ctx, validBooking())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(latest) == 1 && latest[0].ID == id
	}, time.Second, 5*time.Millisecond)

	unsubscribe()
}

func TestConcurrentBookingsRace(t *testing.T) {
	availability, bookings := newTestServices(t, memoryStore(t), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, client := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		wg.Add(1)
		go func(client string) {
			defer wg.Done()
			b := validBooking()
			b.ClientEmail = client
			_, err := bookings.CreateBooking(ctx, b)
			assert.NoError(t, err)
		}(client)
	}
	wg.Wait()

	all, err := bookings.GetAllBookings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3, "every request is stored even though they share one slot")

	day, err := availability.GetDateAvailability(ctx, "2024-06-01")
	require.NoError(t, err)
	require.NotNil(t, day)
	require.NotEmpty(t, day.Slots)
	assert.False(t, day.Slots[0].IsAvailable)
}
