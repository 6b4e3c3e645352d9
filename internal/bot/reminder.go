package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"bookingdesk/internal/models"
)

const defaultAgendaHour = 9

// StartReminders sends managers the next day's agenda once a day at
// telegram.agenda_time.
func (b *Bot) StartReminders(ctx context.Context) {
	if b == nil || b.tgService == nil || len(b.config.Managers) == 0 {
		return
	}

	hour := defaultAgendaHour
	if b.config.Telegram.AgendaTime != "" {
		t, err := models.ParseSlotTime(b.config.Telegram.AgendaTime)
		if err != nil {
			b.logger.Error().Err(err).Str("agenda_time", b.config.Telegram.AgendaTime).Msg("Invalid agenda time format")
			return
		}
		hour = t.Hour()
	}

	go func() {
		// First wait until next agenda time local time, then tick every 24h.
		timer := time.NewTimer(timeUntilNextHour(b.now(), hour))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				b.sendTomorrowAgenda(ctx)
				timer.Reset(24 * time.Hour)
			}
		}
	}()
}

func (b *Bot) sendTomorrowAgenda(ctx context.Context) {
	tomorrow := b.now().AddDate(0, 0, 1).Format(models.DateLayout)

	bookings, err := b.bookingService.GetAllBookings(ctx)
	if err != nil {
		b.logger.Error().Err(err).Str("date", tomorrow).Msg("agenda: get bookings error")
		return
	}

	text := formatAgenda(tomorrow, bookings)
	if err := b.tgService.Broadcast(b.config.Managers, text); err != nil {
		b.logger.Error().Err(err).Msg("agenda: send error")
	}
}

// formatAgenda lists the active bookings of date ordered by time.
func formatAgenda(date string, bookings []models.Booking) string {
	var day []models.Booking
	for _, booking := range bookings {
		if booking.Date == date && shouldRemindStatus(booking.Status) {
			day = append(day, booking)
		}
	}
	sort.SliceStable(day, func(i, j int) bool { return day[i].Time < day[j].Time })

	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 Agenda for %s\n\n", displayDate(date))
	if len(day) == 0 {
		sb.WriteString("No bookings.")
		return sb.String()
	}
	for _, booking := range day {
		fmt.Fprintf(&sb, "%s %s %s: %s, %s\n",
			statusEmoji(booking.Status), booking.Time, booking.ServiceName, booking.ClientName, booking.ClientPhone)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func shouldRemindStatus(status string) bool {
	switch status {
	case models.StatusConfirmed, models.StatusPending:
		return true
	default:
		return false
	}
}

func timeUntilNextHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
