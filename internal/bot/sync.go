package bot

import (
	"context"
	"fmt"
)

// SyncBookingsToSheets переписывает лист заявок в Google Sheets целиком
func (b *Bot) SyncBookingsToSheets(ctx context.Context) (int, error) {
	if b.sheetsService == nil {
		return 0, fmt.Errorf("google sheets is not configured")
	}

	bookings, err := b.bookingService.GetAllBookings(ctx)
	if err != nil {
		return 0, fmt.Errorf("error getting bookings: %w", err)
	}

	if err := b.sheetsService.ReplaceBookingsSheet(ctx, bookings); err != nil {
		b.logger.Error().Err(err).Msg("Failed to sync bookings to Google Sheets")
		return 0, err
	}

	b.logger.Info().Int("bookings", len(bookings)).Msg("Bookings successfully synced to Google Sheets")
	return len(bookings), nil
}

func (b *Bot) handleSync(ctx context.Context, chatID int64) {
	if b.sheetsService == nil {
		b.sendMessage(chatID, "⚠️ Google Sheets is not configured.")
		return
	}
	count, err := b.SyncBookingsToSheets(ctx)
	if err != nil {
		b.sendMessage(chatID, "❌ Google Sheets sync failed. Check the logs for details.")
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("✅ %d bookings synced to Google Sheets", count))
}
