package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bookingdesk/internal/flow"
	"bookingdesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	datePickerDays = 14
	timesPerRow    = 3
)

// contactFields are asked one message at a time, in this order.
var contactFields = []string{
	models.FieldClientName,
	models.FieldClientPhone,
	models.FieldClientEmail,
}

func (b *Bot) startBooking(ctx context.Context, chatID int64) {
	state, err := b.form.Start(ctx, sessionID(chatID))
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	b.renderStep(ctx, chatID, 0, state)
}

// renderStep sends the prompt of the session's current step.
func (b *Bot) renderStep(ctx context.Context, chatID int64, messageID int, state *models.FormState) {
	switch state.Step {
	case models.StepSelectService:
		b.sendServicesPage(chatID, messageID, 0)
	case models.StepSelectDate:
		b.sendDatePicker(ctx, chatID, state)
	case models.StepSelectTime:
		b.sendTimePicker(ctx, chatID, state)
	case models.StepContact:
		b.promptContact(chatID, state)
	case models.StepConfirm:
		b.sendConfirmation(chatID, state)
	case models.StepDone:
		b.sendWithKeyboard(chatID, fmt.Sprintf("✅ Your booking is registered.\nBooking ID: %s", state.BookingID),
			[][]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 New booking", cbBook)),
			})
	case models.StepFailed:
		b.sendSubmitFailed(chatID, state)
	}
}

func (b *Bot) sendServicesPage(chatID int64, messageID, page int) {
	b.renderPaginatedServices(PaginationParams{
		ChatID:     chatID,
		MessageID:  messageID,
		Page:       page,
		PageSize:   8,
		Title:      "💼 *Choose a service:*",
		ItemPrefix: cbService,
		PagePrefix: cbServicesPage,
	})
}

// sendDatePicker offers the next open days. Closed days are left out; any
// other date can still be typed in.
func (b *Bot) sendDatePicker(ctx context.Context, chatID int64, state *models.FormState) {
	days := datePickerDays
	if maxDays := b.config.Booking.MaxBookingDays; maxDays > 0 && maxDays+1 < days {
		days = maxDays + 1
	}

	today := b.now()
	first := today.Format(models.DateLayout)
	last := today.AddDate(0, 0, days-1).Format(models.DateLayout)

	closed := make(map[string]bool)
	if b.availabilityService != nil {
		records, err := b.availabilityService.GetAvailabilityRange(ctx, first, last)
		if err != nil {
			b.logger.Error().Err(err).Msg("Failed to load availability for date picker")
		}
		for _, record := range records {
			if !record.IsAvailable {
				closed[record.Date] = true
			}
		}
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i := 0; i < days; i++ {
		day := today.AddDate(0, 0, i)
		key := day.Format(models.DateLayout)
		if closed[key] {
			continue
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(day.Format("Mon 02.01"), cbDate+key))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, navigationRow())

	text := fmt.Sprintf("Service: %s\n\n📅 Choose a date or type one as DD.MM.YYYY:", state.GetText(models.FieldServiceName))
	b.sendWithKeyboard(chatID, text, rows)
}

func (b *Bot) sendTimePicker(ctx context.Context, chatID int64, state *models.FormState) {
	slots, err := b.form.AvailableTimes(ctx, state.SessionID)
	if err != nil {
		b.sendError(chatID, err)
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, slot := range slots {
		if !slot.IsAvailable {
			continue
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(slot.Time, cbTime+slot.Time))
		if len(row) == timesPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	date := displayDate(state.GetText(models.FieldDate))
	text := fmt.Sprintf("📅 %s\n\n🕒 Choose a time:", date)
	if len(rows) == 0 {
		text = fmt.Sprintf("📅 %s\n\nThere is no free time left on this date. Please go back and choose another date.", date)
	}
	rows = append(rows, navigationRow())
	b.sendWithKeyboard(chatID, text, rows)
}

// nextContactField returns the first contact field not filled yet, or "".
func nextContactField(state *models.FormState) string {
	for _, field := range contactFields {
		if state.GetText(field) == "" {
			return field
		}
	}
	return ""
}

func (b *Bot) promptContact(chatID int64, state *models.FormState) {
	switch nextContactField(state) {
	case models.FieldClientName:
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("🕒 %s %s\n\n👤 Please enter your name:",
			displayDate(state.GetText(models.FieldDate)), state.GetText(models.FieldTime)))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(navigationRow())
		b.send(msg)
	case models.FieldClientPhone:
		msg := tgbotapi.NewMessage(chatID, "📱 Please share or type your phone number:")
		keyboard := tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact("📱 Share phone number")),
		)
		keyboard.OneTimeKeyboard = true
		msg.ReplyMarkup = keyboard
		b.send(msg)
	case models.FieldClientEmail:
		msg := tgbotapi.NewMessage(chatID, "📧 Please enter your email:")
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		b.send(msg)
	}
}

// handleContactInput stores the next contact field from the message. Once
// every field is filled the contact step is completed through the form.
func (b *Bot) handleContactInput(ctx context.Context, message *tgbotapi.Message, state *models.FormState) {
	chatID := message.Chat.ID
	field := nextContactField(state)

	var value string
	switch field {
	case models.FieldClientName:
		value = b.sanitizeInput(message.Text)
	case models.FieldClientPhone:
		raw := message.Text
		if message.Contact != nil {
			raw = message.Contact.PhoneNumber
		}
		value = b.normalizePhone(raw)
		if value == "" {
			b.sendMessage(chatID, "⚠️ This does not look like a phone number. Please try again, for example +15551234567.")
			return
		}
	case models.FieldClientEmail:
		value = strings.TrimSpace(message.Text)
	}
	if value == "" {
		b.promptContact(chatID, state)
		return
	}

	if err := b.stateService.UpdateFormData(ctx, state.SessionID, field, value); err != nil {
		b.sendError(chatID, err)
		return
	}
	state.Set(field, value)

	if nextContactField(state) != "" {
		b.promptContact(chatID, state)
		return
	}

	next, err := b.form.SetContact(ctx, state.SessionID, flow.Contact{
		Name:  state.GetText(models.FieldClientName),
		Email: state.GetText(models.FieldClientEmail),
		Phone: state.GetText(models.FieldClientPhone),
	})
	if err != nil {
		if errors.Is(err, flow.ErrInvalidInput) {
			if clearErr := b.stateService.UpdateFormData(ctx, state.SessionID, models.FieldClientEmail, ""); clearErr != nil {
				b.logger.Error().Err(clearErr).Str("session_id", state.SessionID).Msg("Failed to clear email")
			}
			b.sendMessage(chatID, "⚠️ This email address is not valid. Please enter it again:")
			return
		}
		b.sendError(chatID, err)
		return
	}
	b.renderStep(ctx, chatID, 0, next)
}

func (b *Bot) sendConfirmation(chatID int64, state *models.FormState) {
	payload := state.Payload()

	var sb strings.Builder
	sb.WriteString("📋 Please check your booking:\n\n")
	fmt.Fprintf(&sb, "Service: %s\n", payload.ServiceName)
	fmt.Fprintf(&sb, "Date: %s\n", displayDate(payload.Date))
	fmt.Fprintf(&sb, "Time: %s\n", payload.Time)
	fmt.Fprintf(&sb, "Name: %s\n", payload.ClientName)
	fmt.Fprintf(&sb, "Phone: %s\n", payload.ClientPhone)
	fmt.Fprintf(&sb, "Email: %s\n", payload.ClientEmail)

	b.sendWithKeyboard(chatID, sb.String(), [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", cbConfirm)),
		navigationRow(),
	})
}

func (b *Bot) sendSubmitFailed(chatID int64, state *models.FormState) {
	text := state.Error
	if text == "" {
		text = flow.SubmitFailedMessage
	}
	b.sendWithKeyboard(chatID, "⚠️ "+text, [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🕒 Choose another time", cbBack)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", cbCancel)),
	})
}

func (b *Bot) handleSubmit(ctx context.Context, chatID int64) {
	state, err := b.form.Submit(ctx, sessionID(chatID))
	if err != nil {
		if errors.Is(err, flow.ErrSubmitFailed) && state != nil {
			b.countSubmission("failed")
			b.renderStep(ctx, chatID, 0, state)
			return
		}
		b.sendError(chatID, err)
		return
	}
	b.countSubmission("ok")
	b.renderStep(ctx, chatID, 0, state)
}

// handleBack moves the form one step back. Returning to the contact step
// starts the contact questions over.
func (b *Bot) handleBack(ctx context.Context, chatID int64) {
	state, err := b.form.Back(ctx, sessionID(chatID))
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	if state.Step == models.StepContact {
		for _, field := range contactFields {
			if err := b.stateService.UpdateFormData(ctx, state.SessionID, field, ""); err != nil {
				b.sendError(chatID, err)
				return
			}
			state.Set(field, "")
		}
	}
	b.renderStep(ctx, chatID, 0, state)
}

func (b *Bot) handleCancel(ctx context.Context, chatID int64) {
	if err := b.form.Reset(ctx, sessionID(chatID)); err != nil {
		b.sendError(chatID, err)
		return
	}
	msg := tgbotapi.NewMessage(chatID, "Booking cancelled. Send /book to start again.")
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	b.send(msg)
}

func (b *Bot) countSubmission(result string) {
	if b.metrics != nil {
		b.metrics.FormSubmissions.WithLabelValues(result).Inc()
	}
}

func navigationRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", cbBack),
		tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", cbCancel),
	)
}
