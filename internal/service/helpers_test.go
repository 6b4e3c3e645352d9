package service

import (
	"context"
	"testing"
	"time"

	"bookingdesk/internal/domain"
	"bookingdesk/internal/models"
	"bookingdesk/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

var fixedNow = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

func newTestServices(t *testing.T, ds store.DocumentStore, publisher *mockPublisher) (*AvailabilityService, *BookingService) {
	t.Helper()
	logger := zerolog.Nop()
	availability := NewAvailabilityService(ds, &logger)
	availability.now = func() time.Time { return fixedNow }

	var bus domain.EventPublisher
	if publisher != nil {
		bus = publisher
	}
	bookings := NewBookingService(ds, availability, bus, false, &logger)
	bookings.now = func() time.Time { return fixedNow }
	return availability, bookings
}

func memoryStore(t *testing.T) store.DocumentStore {
	t.Helper()
	logger := zerolog.Nop()
	ds := store.NewMemoryStore(&logger)
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func validBooking() *models.Booking {
	return &models.Booking{
		ServiceID:   "svc1",
		ServiceName: "Cut",
		Date:        "2024-06-01",
		Time:        "10:00",
		ClientName:  "A",
		ClientEmail: "a@x.com",
		ClientPhone: "+1",
	}
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

// mockStore fails selected operations.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, collection, id string) (store.Document, error) {
	args := m.Called(ctx, collection, id)
	return args.Get(0).(store.Document), args.Error(1)
}

func (m *mockStore) Query(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	args := m.Called(ctx, collection, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Document), args.Error(1)
}

func (m *mockStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	return m.Called(ctx, collection, id, data, merge).Error(0)
}

func (m *mockStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	args := m.Called(ctx, collection, data)
	return args.String(0), args.Error(1)
}

func (m *mockStore) Update(ctx context.Context, collection, id string, data map[string]any) error {
	return m.Called(ctx, collection, id, data).Error(0)
}

func (m *mockStore) Watch(ctx context.Context, collection string, q store.Query, fn func([]store.Document)) (store.Unsubscribe, error) {
	args := m.Called(ctx, collection, q, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(store.Unsubscribe), args.Error(1)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}
