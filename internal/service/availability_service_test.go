package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bookingdesk/internal/models"
	"bookingdesk/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestGetDateAvailability_Missing(t *testing.T) {
	availability, _ := newTestServices(t, memoryStore(t), nil)
	ctx := context.Background()

	day, err := availability.GetDateAvailability(ctx, "2024-06-01")
	require.NoError(t, err)
	assert.Nil(t, day)

	free, err := availability.IsSlotFree(ctx, "2024-06-01", "10:00")
	require.NoError(t, err)
	assert.True(t, free)
}

func TestGetDateAvailability_InvalidDate(t *testing.T) {
	availability, _ := newTestServices(t, memoryStore(t), nil)

	_, err := availability.GetDateAvailability(context.Background(), "06/01/2024")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSetDateAvailability_KeepsSlots(t *testing.T) {
	availability, bookings := newTestServices(t, memoryStore(t), nil)
	ctx := context.Background()

	require.NoError(t, bookings.BookTimeSlot(ctx, "2024-06-01", "10:00", "a@x.com"))
	require.NoError(t, availability.SetDateAvailability(ctx, "2024-06-01", boolPtr(false), nil))

	day, err := availability.GetDateAvailability(ctx, "2024-06-01")
	require.NoError(t, err)
	require.NotNil(t, day)
	assert.False(t, day.IsAvailable)
	require.Len(t, day.Slots, 1)
	assert.Equal(t, models.TimeSlot{Time: "10:00", IsAvailable: false, BookedBy: "a@x.com"}, day.Slots[0])
	assert.True(t, day.UpdatedAt.Equal(fixedNow))
}

func TestSetDateAvailability_SlotsOnly(t *testing.T) {
	availability, _ := newTestServices(t, memoryStore(t), nil)
	ctx := context.Background()

	slots := []models.TimeSlot{{Time: "09:00", IsAvailable: true}, {Time: "11:00", IsAvailable: false}}
	require.NoError(t, availability.SetDateAvailability(ctx, "2024-06-02", nil, slots))

	day, err := availability.GetDateAvailability(ctx, "2024-06-02")
	require.NoError(t, err)
	require.NotNil(t, day)
	assert.True(t, day.IsAvailable, "day without a day-level flag stays open")
	assert.Equal(t, slots, day.Slots)

	free, err := availability.IsSlotFree(ctx, "2024-06-02", "11:00")
	require.NoError(t, err)
	assert.False(t, free)
}

func TestSetDateAvailability_Validation(t *testing.T) {
	availability, _ := newTestServices(t, memoryStore(t), nil)
	ctx := context.Background()

	assert.ErrorIs(t, availability.SetDateAvailability(ctx, "2024-13-01", boolPtr(true), nil), ErrValidation)
	assert.ErrorIs(t, availability.SetDateAvailability(ctx, "2024-06-01", nil, []models.TimeSlot{{Time: "9am"}}), ErrValidation)
}

func TestIsSlotFree_DayClosed(t *testing.T) {
	availability, _ := newTestServices(t, memoryStore(t), nil)
	ctx := context.Background()

	require.NoError(t, availability.SetDateAvailability(ctx, "2024-06-01", boolPtr(false), nil))
	free, err := availability.IsSlotFree(ctx, "2024-06-01", "15:00")
	require.NoError(t, err)
	assert.False(t, free)
}

func TestGetAvailabilityRange(t *testing.T) {
	availability, _ := newTestServices(t, memoryStore(t), nil)
	ctx := context.Background()

	for _, date := range []string{"2024-06-10", "2024-06-01", "2024-07-01", "2024-06-30"} {
		require.NoError(t, availability.SetDateAvailability(ctx, date, boolPtr(true), nil))
	}

	days, err := availability.GetAvailabilityRange(ctx, "2024-06-01", "2024-06-30")
	require.NoError(t, err)

	var dates []string
	for _, d := range days {
		dates = append(dates, d.Date)
	}
	assert.Equal(t, []string{"2024-06-01", "2024-06-10", "2024-06-30"}, dates)

	_, err = availability.GetAvailabilityRange(ctx, "2024-06-30", "2024-06-01")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSetBatchAvailability(t *testing.T) {
	availability, _ := newTestServices(t, memoryStore(t), nil)
	ctx := context.Background()

	err := availability.SetBatchAvailability(ctx, []string{"2024-06-01", "bad", "2024-06-03"}, false)
	assert.ErrorIs(t, err, ErrValidation)

	for _, date := range []string{"2024-06-01", "2024-06-03"} {
		day, err := availability.GetDateAvailability(ctx, date)
		require.NoError(t, err)
		require.NotNil(t, day, date)
		assert.False(t, day.IsAvailable)
	}
}

func TestSetBatchAvailability_ReturnsFirstStoreError(t *testing.T) {
	ds := new(mockStore)
	logger := zerolog.Nop()
	availability := NewAvailabilityService(ds, &logger)

	first := errors.New("first")
	ds.On("Set", mock.Anything, models.CollectionCalendar, "2024-06-01", mock.Anything, true).Return(first).Once()
	ds.On("Set", mock.Anything, models.CollectionCalendar, "2024-06-02", mock.Anything, true).Return(errors.New("second")).Once()
	ds.On("Set", mock.Anything, models.CollectionCalendar, "2024-06-03", mock.Anything, true).Return(nil).Once()

	err := availability.SetBatchAvailability(context.Background(), []string{"2024-06-01", "2024-06-02", "2024-06-03"}, true)
	assert.ErrorIs(t, err, first)
	ds.AssertExpectations(t)
}

func TestGetDateAvailability_StoreErrorReturnedUnchanged(t *testing.T) {
	ds := new(mockStore)
	logger := zerolog.Nop()
	availability := NewAvailabilityService(ds, &logger)

	boom := errors.New("unavailable")
	ds.On("Get", mock.Anything, models.CollectionCalendar, "2024-06-01").Return(store.Document{}, boom).Once()

	_, err := availability.GetDateAvailability(context.Background(), "2024-06-01")
	assert.Equal(t, boom, err)
}

func TestDaySchedule(t *testing.T) {
	availability, bookings := newTestServices(t, memoryStore(t), nil)
	ctx := context.Background()
	template := []string{"09:00", "10:00", "11:00"}

	schedule, err := availability.DaySchedule(ctx, "2024-06-01", template)
	require.NoError(t, err)
	require.Len(t, schedule, 3)
	for _, slot := range schedule {
		assert.True(t, slot.IsAvailable)
	}

	require.NoError(t, bookings.BookTimeSlot(ctx, "2024-06-01", "10:00", "a@x.com"))
	require.NoError(t, bookings.BookTimeSlot(ctx, "2024-06-01", "08:30", "b@x.com"))

	schedule, err = availability.DaySchedule(ctx, "2024-06-01", template)
	require.NoError(t, err)
	require.Len(t, schedule, 4)
	assert.True(t, schedule[0].IsAvailable)
	assert.Equal(t, models.TimeSlot{Time: "10:00", IsAvailable: false, BookedBy: "a@x.com"}, schedule[1])
	assert.Equal(t, "08:30", schedule[3].Time)

	require.NoError(t, availability.SetDateAvailability(ctx, "2024-06-01", boolPtr(false), nil))
	schedule, err = availability.DaySchedule(ctx, "2024-06-01", template)
	require.NoError(t, err)
	for _, slot := range schedule {
		assert.False(t, slot.IsAvailable)
	}
}

func TestSubscribeToAvailability(t *testing.T) {
	availability, bookings := newTestServices(t, memoryStore(t), nil)
	ctx := context.Background()

	var mu sync.Mutex
	var snapshots [][]models.AvailabilityDate
	unsubscribe, err := availability.SubscribeToAvailability(ctx, "2024-06-01", "2024-06-30", func(days []models.AvailabilityDate) {
		mu.Lock()
		defer mu.Unlock()
		snapshots = append(snapshots, days)
	})
	require.NoError(t, err)
	defer unsubscribe()

	latest := func() []models.AvailabilityDate {
		mu.Lock()
		defer mu.Unlock()
		if len(snapshots) == 0 {
			return nil
		}
		return snapshots[len(snapshots)-1]
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snapshots) >= 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, latest())

	require.NoError(t, bookings.BookTimeSlot(ctx, "2024-06-05", "10:00", "a@x.com"))
	require.Eventually(t, func() bool {
		days := latest()
		return len(days) == 1 && len(days[0].Slots) == 1 && !days[0].Slots[0].IsAvailable
	}, time.Second, 5*time.Millisecond)

	_, err = availability.SubscribeToAvailability(ctx, "bad", "2024-06-30", func([]models.AvailabilityDate) {})
	assert.ErrorIs(t, err, ErrValidation)
}
