package bot

import (
	"context"
	"fmt"
	"os"

	"bookingdesk/internal/export"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleExport sends the bookings workbook, optionally limited to a date
// range given as arguments.
func (b *Bot) handleExport(ctx context.Context, chatID int64, args []string) {
	var bounds [2]string
	for i := 0; i < len(args) && i < len(bounds); i++ {
		date, ok := parseDateInput(args[i])
		if !ok {
			b.sendMessage(chatID, "⚠️ Please give the dates as DD.MM.YYYY or YYYY-MM-DD.")
			return
		}
		bounds[i] = date
	}

	b.sendMessage(chatID, "⏳ Preparing the export...")

	filePath, count, err := b.exportBookings(ctx, bounds[0], bounds[1])
	if err != nil {
		b.logger.Error().Err(err).Msg("Error exporting bookings")
		b.sendMessage(chatID, "❌ Could not build the export file.")
		return
	}
	defer func() {
		if err := os.Remove(filePath); err != nil {
			b.logger.Warn().Err(err).Str("path", filePath).Msg("Failed to remove export file")
		}
	}()

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(filePath))
	doc.Caption = fmt.Sprintf("📊 Bookings: %d", count)
	b.send(doc)
}

func (b *Bot) exportBookings(ctx context.Context, start, end string) (string, int, error) {
	bookings, err := b.bookingService.GetAllBookings(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("error getting bookings: %w", err)
	}
	bookings = export.FilterByDate(bookings, start, end)

	filePath, err := export.SaveBookings(b.config.Exports.Path, bookings, b.now())
	if err != nil {
		return "", 0, err
	}

	b.logger.Info().Str("path", filePath).Int("bookings", len(bookings)).Msg("Bookings exported")
	return filePath, len(bookings), nil
}
