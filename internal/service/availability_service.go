package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bookingdesk/internal/models"
	"bookingdesk/internal/store"

	"github.com/rs/zerolog"
)

// AvailabilityService reads and writes the calendar collection. Every store
// error is logged and returned unchanged.
type AvailabilityService struct {
	store  store.DocumentStore
	logger *zerolog.Logger
	now    func() time.Time
}

func NewAvailabilityService(ds store.DocumentStore, logger *zerolog.Logger) *AvailabilityService {
	return &AvailabilityService{
		store:  ds,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetDateAvailability returns the calendar record for date, or nil when the
// date has no record. A missing record means the whole day is open.
func (s *AvailabilityService) GetDateAvailability(ctx context.Context, date string) (*models.AvailabilityDate, error) {
	if _, err := models.ParseDateKey(date); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	doc, err := s.store.Get(ctx, models.CollectionCalendar, date)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("failed to get date availability")
		return nil, err
	}

	day, err := decodeDay(doc)
	if err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("failed to decode date availability")
		return nil, err
	}
	return day, nil
}

// GetAvailabilityRange returns the recorded days between start and end
// inclusive, ordered by date.
func (s *AvailabilityService) GetAvailabilityRange(ctx context.Context, start, end string) ([]models.AvailabilityDate, error) {
	q, err := rangeQuery(start, end)
	if err != nil {
		return nil, err
	}

	docs, err := s.store.Query(ctx, models.CollectionCalendar, q)
	if err != nil {
		s.logger.Error().Err(err).Str("start", start).Str("end", end).Msg("failed to query availability range")
		return nil, err
	}
	days, err := decodeDays(docs)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to decode availability range")
		return nil, err
	}
	return days, nil
}

// SetDateAvailability merges the given fields into the day record, creating
// it if needed. A nil isAvailable or nil slots leaves that field untouched.
func (s *AvailabilityService) SetDateAvailability(
	ctx context.Context,
	date string,
	isAvailable *bool,
	slots []models.TimeSlot,
) error {
	if _, err := models.ParseDateKey(date); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	for _, slot := range slots {
		if _, err := models.ParseSlotTime(slot.Time); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	data := map[string]any{
		"date":      date,
		"updatedAt": s.now(),
	}
	if isAvailable != nil {
		data["isAvailable"] = *isAvailable
	}
	if slots != nil {
		data["slots"] = slotData(slots)
	}

	if err := s.store.Set(ctx, models.CollectionCalendar, date, data, true); err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("failed to set date availability")
		return err
	}
	return nil
}

// SetBatchAvailability writes each date independently. Writes that succeed
// stay committed when a later one fails; the first error is returned after
// every date has been attempted.
func (s *AvailabilityService) SetBatchAvailability(ctx context.Context, dates []string, isAvailable bool) error {
	var firstErr error
	for _, date := range dates {
		available := isAvailable
		if err := s.SetDateAvailability(ctx, date, &available, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SubscribeToAvailability calls fn with the full set of recorded days in
// [start, end] now and after every change to one of them.
func (s *AvailabilityService) SubscribeToAvailability(
	ctx context.Context,
	start, end string,
	fn func([]models.AvailabilityDate),
) (store.Unsubscribe, error) {
	q, err := rangeQuery(start, end)
	if err != nil {
		return nil, err
	}

	unsubscribe, err := s.store.Watch(ctx, models.CollectionCalendar, q, func(docs []store.Document) {
		days, err := decodeDays(docs)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to decode availability snapshot")
			return
		}
		fn(days)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("start", start).Str("end", end).Msg("failed to subscribe to availability")
		return nil, err
	}
	return unsubscribe, nil
}

// IsSlotFree reports whether slotTime on date can still be booked. The check
// is advisory: nothing stops a concurrent writer from taking the slot after.
func (s *AvailabilityService) IsSlotFree(ctx context.Context, date, slotTime string) (bool, error) {
	if _, err := models.ParseSlotTime(slotTime); err != nil {
		return false, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	day, err := s.GetDateAvailability(ctx, date)
	if err != nil {
		return false, err
	}
	return day.SlotFree(slotTime), nil
}

// DaySchedule lays the stored slots of date over the configured slot times.
// Stored slots outside the template are appended in time order.
func (s *AvailabilityService) DaySchedule(ctx context.Context, date string, slotTimes []string) ([]models.TimeSlot, error) {
	day, err := s.GetDateAvailability(ctx, date)
	if err != nil {
		return nil, err
	}

	dayOpen := day == nil || day.IsAvailable
	schedule := make([]models.TimeSlot, 0, len(slotTimes))
	seen := make(map[string]bool, len(slotTimes))
	for _, t := range slotTimes {
		seen[t] = true
		slot := models.TimeSlot{Time: t, IsAvailable: dayOpen}
		if i := day.FindSlot(t); i >= 0 {
			slot = day.Slots[i]
			slot.IsAvailable = slot.IsAvailable && dayOpen
		}
		schedule = append(schedule, slot)
	}

	if day != nil {
		var extra []models.TimeSlot
		for _, slot := range day.Slots {
			if !seen[slot.Time] {
				seen[slot.Time] = true
				slot.IsAvailable = slot.IsAvailable && dayOpen
				extra = append(extra, slot)
			}
		}
		sortSlots(extra)
		schedule = append(schedule, extra...)
	}
	return schedule, nil
}

func rangeQuery(start, end string) (store.Query, error) {
	startDate, err := models.ParseDateKey(start)
	if err != nil {
		return store.Query{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	endDate, err := models.ParseDateKey(end)
	if err != nil {
		return store.Query{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if endDate.Before(startDate) {
		return store.Query{}, fmt.Errorf("%w: end date %s is before start date %s", ErrValidation, end, start)
	}
	return store.Query{Field: "date", Start: start, End: end, OrderBy: "date"}, nil
}

func decodeDay(doc store.Document) (*models.AvailabilityDate, error) {
	var day models.AvailabilityDate
	if err := store.Decode(doc, &day); err != nil {
		return nil, err
	}
	if day.Date == "" {
		day.Date = doc.ID
	}
	// days written without a day-level flag stay open
	if _, ok := doc.Data["isAvailable"]; !ok {
		day.IsAvailable = true
	}
	return &day, nil
}

func decodeDays(docs []store.Document) ([]models.AvailabilityDate, error) {
	days := make([]models.AvailabilityDate, 0, len(docs))
	for _, doc := range docs {
		day, err := decodeDay(doc)
		if err != nil {
			return nil, err
		}
		days = append(days, *day)
	}
	return days, nil
}

func sortSlots(slots []models.TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Time < slots[j].Time })
}

func slotData(slots []models.TimeSlot) []map[string]any {
	out := make([]map[string]any, 0, len(slots))
	for _, slot := range slots {
		item := map[string]any{
			"time":        slot.Time,
			"isAvailable": slot.IsAvailable,
		}
		if slot.BookedBy != "" {
			item["bookedBy"] = slot.BookedBy
		}
		out = append(out, item)
	}
	return out
}
