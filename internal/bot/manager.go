package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"bookingdesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data of the manager keyboards.
const (
	cbManagerBookingsPage = "mgr_bookings_page:"
	cbManagerBooking      = "mgr_booking:"
	cbManagerStatus       = "mgr_status:"
)

const statusFilterAll = "all"

const managerHelpText = `Manager commands:
/bookings [pending|confirmed|cancelled] - list bookings
/booking <id> - show one booking
/export [YYYY-MM-DD] [YYYY-MM-DD] - bookings as an Excel file
/close <date> - close a day for booking
/open <date> - open a day for booking
/sync - rewrite the Google Sheets bookings sheet`

// handleManagerCommand обработка команд менеджера
func (b *Bot) handleManagerCommand(ctx context.Context, chatID int64, command string, args []string) bool {
	switch command {
	case "manager":
		b.sendMessage(chatID, managerHelpText)

	case "bookings":
		filter := statusFilterAll
		if len(args) > 0 {
			filter = strings.ToLower(args[0])
			if !models.ValidStatus(filter) {
				b.sendMessage(chatID, "⚠️ Unknown status. Use pending, confirmed or cancelled.")
				return true
			}
		}
		b.showManagerBookings(ctx, chatID, 0, filter, 0)

	case "booking":
		if len(args) == 0 {
			b.sendMessage(chatID, "Usage: /booking <id>")
			return true
		}
		b.showManagerBookingDetail(ctx, chatID, args[0])

	case "export":
		b.handleExport(ctx, chatID, args)

	case "open", "close":
		b.handleDayAvailability(ctx, chatID, command == "open", args)

	case "sync":
		b.handleSync(ctx, chatID)

	default:
		return false
	}
	return true
}

// handleManagerCallback reports whether the callback was a manager action.
func (b *Bot) handleManagerCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) bool {
	data := callback.Data
	chatID := callback.Message.Chat.ID

	switch {
	case strings.HasPrefix(data, cbManagerBookingsPage):
		filter, pageStr, ok := strings.Cut(strings.TrimPrefix(data, cbManagerBookingsPage), ":")
		if !ok {
			return true
		}
		page, _ := strconv.Atoi(pageStr)
		b.showManagerBookings(ctx, chatID, callback.Message.MessageID, filter, page)

	case strings.HasPrefix(data, cbManagerBooking):
		b.showManagerBookingDetail(ctx, chatID, strings.TrimPrefix(data, cbManagerBooking))

	case strings.HasPrefix(data, cbManagerStatus):
		status, bookingID, ok := strings.Cut(strings.TrimPrefix(data, cbManagerStatus), ":")
		if !ok {
			return true
		}
		b.changeBookingStatus(ctx, chatID, bookingID, status)

	default:
		return false
	}
	return true
}

func (b *Bot) showManagerBookings(ctx context.Context, chatID int64, messageID int, filter string, page int) {
	bookings, err := b.bookingService.GetAllBookings(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("Error getting bookings for manager")
		b.sendError(chatID, err)
		return
	}

	if filter != statusFilterAll {
		filtered := bookings[:0]
		for _, booking := range bookings {
			if booking.Status == filter {
				filtered = append(filtered, booking)
			}
		}
		bookings = filtered
	}

	if len(bookings) == 0 {
		b.sendMessage(chatID, "📭 No bookings found.")
		return
	}

	sort.SliceStable(bookings, func(i, j int) bool {
		if bookings[i].Date != bookings[j].Date {
			return bookings[i].Date < bookings[j].Date
		}
		return bookings[i].Time < bookings[j].Time
	})

	title := "👨‍💼 *Bookings*"
	if filter != statusFilterAll {
		title = fmt.Sprintf("👨‍💼 *Bookings: %s*", filter)
	}

	b.renderPaginatedBookings(PaginationParams{
		ChatID:     chatID,
		MessageID:  messageID,
		Page:       page,
		PageSize:   models.DefaultBookingsPaginationSize,
		Title:      title,
		ItemPrefix: cbManagerBooking,
		PagePrefix: cbManagerBookingsPage + filter + ":",
	}, bookings)
}

func (b *Bot) showManagerBookingDetail(ctx context.Context, chatID int64, bookingID string) {
	booking, err := b.bookingService.GetBooking(ctx, bookingID)
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	b.sendManagerBookingDetail(chatID, booking)
}

func (b *Bot) sendManagerBookingDetail(chatID int64, booking *models.Booking) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Booking %s\n\n", statusEmoji(booking.Status), booking.ID)
	fmt.Fprintf(&sb, "Service: %s\n", booking.ServiceName)
	fmt.Fprintf(&sb, "Date: %s %s\n", displayDate(booking.Date), booking.Time)
	fmt.Fprintf(&sb, "Client: %s\n", booking.ClientName)
	fmt.Fprintf(&sb, "Phone: %s\n", booking.ClientPhone)
	fmt.Fprintf(&sb, "Email: %s\n", booking.ClientEmail)
	if booking.ClientMessage != "" {
		fmt.Fprintf(&sb, "Message: %s\n", booking.ClientMessage)
	}
	fmt.Fprintf(&sb, "Status: %s\n", booking.Status)
	if !booking.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "Created: %s\n", booking.CreatedAt.Local().Format("02.01.2006 15:04"))
	}

	var actions []tgbotapi.InlineKeyboardButton
	for _, status := range []string{models.StatusConfirmed, models.StatusCancelled, models.StatusPending} {
		if status == booking.Status {
			continue
		}
		actions = append(actions, tgbotapi.NewInlineKeyboardButtonData(
			statusEmoji(status)+" "+status,
			cbManagerStatus+status+":"+booking.ID,
		))
	}

	b.sendWithKeyboard(chatID, sb.String(), [][]tgbotapi.InlineKeyboardButton{
		actions,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ All bookings", cbManagerBookingsPage+statusFilterAll+":0"),
		),
	})
}

func (b *Bot) changeBookingStatus(ctx context.Context, chatID int64, bookingID, status string) {
	if err := b.bookingService.UpdateBookingStatus(ctx, bookingID, status); err != nil {
		b.logger.Error().Err(err).Str("booking_id", bookingID).Str("status", status).Msg("Failed to update booking status")
		b.sendError(chatID, err)
		return
	}

	b.logger.Info().Str("booking_id", bookingID).Str("status", status).Int64("chat_id", chatID).Msg("Booking status changed by manager")
	b.sendMessage(chatID, fmt.Sprintf("%s Booking %s is now %s", statusEmoji(status), bookingID, status))
	b.showManagerBookingDetail(ctx, chatID, bookingID)
}

func (b *Bot) handleDayAvailability(ctx context.Context, chatID int64, open bool, args []string) {
	if len(args) == 0 {
		b.sendMessage(chatID, "Usage: /open <date> or /close <date>, date as DD.MM.YYYY or YYYY-MM-DD")
		return
	}
	date, ok := parseDateInput(args[0])
	if !ok {
		b.sendMessage(chatID, "⚠️ Please give the date as DD.MM.YYYY or YYYY-MM-DD.")
		return
	}

	if err := b.availabilityService.SetDateAvailability(ctx, date, &open, nil); err != nil {
		b.sendError(chatID, err)
		return
	}

	if open {
		b.sendMessage(chatID, fmt.Sprintf("✅ %s is open for booking", displayDate(date)))
	} else {
		b.sendMessage(chatID, fmt.Sprintf("🚫 %s is closed for booking", displayDate(date)))
	}
}
