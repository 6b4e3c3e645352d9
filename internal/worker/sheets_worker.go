package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"bookingdesk/internal/domain"
	"bookingdesk/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const deadLetterKey = "sheets:deadletter"

// deadLetter is stored in redis when a snapshot could not be mirrored.
type deadLetter struct {
	Error      string    `json:"error"`
	Bookings   int       `json:"bookings"`
	Attempts   int       `json:"attempts"`
	FailedAt   time.Time `json:"failed_at"`
	BookingIDs []string  `json:"booking_ids"`
}

// SheetsMirror keeps a spreadsheet in sync with the bookings collection. Every
// change rewrites the whole sheet from the latest snapshot; snapshots that
// arrive while a write is running are coalesced.
type SheetsMirror struct {
	bookings domain.BookingService
	sheets   domain.SheetsWriter
	redis    *redis.Client
	retry    RetryPolicy
	logger   *zerolog.Logger

	mu      sync.Mutex
	latest  []models.Booking
	dirty   bool
	pending chan struct{}
}

// NewSheetsMirror builds a mirror. redisClient is optional and only used for
// the dead-letter list.
func NewSheetsMirror(
	bookings domain.BookingService,
	sheets domain.SheetsWriter,
	redisClient *redis.Client,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *SheetsMirror {
	return &SheetsMirror{
		bookings: bookings,
		sheets:   sheets,
		redis:    redisClient,
		retry:    retry.withDefaults(),
		logger:   logger,
		pending:  make(chan struct{}, 1),
	}
}

// Run subscribes to bookings and mirrors them until ctx is done.
func (m *SheetsMirror) Run(ctx context.Context) error {
	unsubscribe, err := m.bookings.SubscribeToBookings(ctx, m.push)
	if err != nil {
		return err
	}
	defer unsubscribe()

	m.logger.Info().Msg("sheets mirror started")
	defer m.logger.Info().Msg("sheets mirror stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.pending:
			bookings, ok := m.take()
			if !ok {
				continue
			}
			if err := m.sync(ctx, bookings); err != nil && ctx.Err() == nil {
				m.logger.Error().Err(err).Int("bookings", len(bookings)).Msg("sheets mirror gave up on snapshot")
			}
		}
	}
}

func (m *SheetsMirror) push(bookings []models.Booking) {
	m.mu.Lock()
	m.latest = bookings
	m.dirty = true
	m.mu.Unlock()

	select {
	case m.pending <- struct{}{}:
	default:
	}
}

func (m *SheetsMirror) take() ([]models.Booking, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return nil, false
	}
	m.dirty = false
	return m.latest, true
}

func (m *SheetsMirror) hasNewer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// sync writes one snapshot with retries. A newer snapshot supersedes the
// retry loop.
func (m *SheetsMirror) sync(ctx context.Context, bookings []models.Booking) error {
	for attempt := 1; ; attempt++ {
		err := m.sheets.ReplaceBookingsSheet(ctx, bookings)
		if err == nil {
			m.logger.Debug().Int("bookings", len(bookings)).Msg("bookings sheet updated")
			return nil
		}
		if attempt >= m.retry.MaxRetries {
			m.pushDeadLetter(ctx, bookings, attempt, err)
			return err
		}

		delay := m.retry.NextDelay(attempt)
		m.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("bookings sheet update failed")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if m.hasNewer() {
			return nil
		}
	}
}

func (m *SheetsMirror) pushDeadLetter(ctx context.Context, bookings []models.Booking, attempts int, cause error) {
	if m.redis == nil {
		return
	}

	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.ID)
	}
	data, err := json.Marshal(deadLetter{
		Error:      cause.Error(),
		Bookings:   len(bookings),
		Attempts:   attempts,
		FailedAt:   time.Now().UTC(),
		BookingIDs: ids,
	})
	if err != nil {
		m.logger.Error().Err(err).Msg("encode sheets dead letter")
		return
	}
	if err := m.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		m.logger.Error().Err(err).Msg("sheets dead letter push failed")
	}
}
