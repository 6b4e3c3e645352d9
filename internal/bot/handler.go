package bot

import (
	"context"
	"errors"
	"strings"

	"bookingdesk/internal/flow"
	"bookingdesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const helpText = `Commands:
/book - book an appointment
/cancel - cancel the current booking form
/help - show this message`

func (b *Bot) handleMessage(ctx context.Context, update tgbotapi.Update) {
	message := update.Message
	chatID := message.Chat.ID
	l := zerolog.Ctx(ctx)

	l.Debug().
		Int64("user_id", message.From.ID).
		Str("username", message.From.UserName).
		Str("text", message.Text).
		Msg("Handling message")

	if command, args, ok := parseCommand(message.Text); ok {
		if b.isManager(message.From.ID) && b.handleManagerCommand(ctx, chatID, command, args) {
			return // Если команда менеджера обработана, выходим
		}

		switch command {
		case "start":
			b.sendMessage(chatID, "👋 Welcome! This bot books appointments.\n\n"+helpText)
			b.startBooking(ctx, chatID)
		case "book":
			b.startBooking(ctx, chatID)
		case "cancel":
			b.handleCancel(ctx, chatID)
		case "help":
			b.sendMessage(chatID, helpText)
		default:
			b.sendMessage(chatID, "Unknown command.\n\n"+helpText)
		}
		return
	}

	state, err := b.form.Get(ctx, sessionID(chatID))
	if err != nil {
		if errors.Is(err, flow.ErrSessionNotFound) {
			b.sendMessage(chatID, "Send /book to make an appointment.")
			return
		}
		b.sendError(chatID, err)
		return
	}

	switch state.Step {
	case models.StepSelectDate:
		date, ok := parseDateInput(message.Text)
		if !ok {
			b.sendMessage(chatID, "⚠️ Please type the date as DD.MM.YYYY, for example 25.12.2024.")
			return
		}
		next, err := b.form.SelectDate(ctx, state.SessionID, date)
		if err != nil {
			b.sendError(chatID, err)
			return
		}
		b.renderStep(ctx, chatID, 0, next)

	case models.StepContact:
		b.handleContactInput(ctx, message, state)

	default:
		b.sendMessage(chatID, "Please use the buttons below.")
		b.renderStep(ctx, chatID, 0, state)
	}
}

// parseCommand splits "/cmd@bot arg1 arg2" into the command name and its
// arguments.
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	command := strings.TrimPrefix(fields[0], "/")
	if i := strings.Index(command, "@"); i >= 0 {
		command = command[:i]
	}
	if command == "" {
		return "", nil, false
	}
	return strings.ToLower(command), fields[1:], true
}
