package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data of the client form keyboards.
const (
	cbServicesPage = "services_page:"
	cbService      = "service:"
	cbDate         = "date:"
	cbTime         = "time:"
	cbConfirm      = "confirm"
	cbBack         = "back"
	cbCancel       = "cancel"
	cbBook         = "book"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, update tgbotapi.Update) {
	callback := update.CallbackQuery
	data := callback.Data
	chatID := callback.Message.Chat.ID

	// Отвечаем на callback сразу, чтобы убрать "часики"
	if err := b.tgService.AnswerCallback(callback.ID, ""); err != nil {
		b.logger.Error().Err(err).Msg("Failed to answer callback")
	}

	// Обработка команд менеджера
	if b.isManager(callback.From.ID) && b.handleManagerCallback(ctx, callback) {
		return
	}

	sid := sessionID(chatID)

	switch {
	case data == cbBook:
		b.startBooking(ctx, chatID)

	case strings.HasPrefix(data, cbServicesPage):
		page, _ := strconv.Atoi(strings.TrimPrefix(data, cbServicesPage))
		b.sendServicesPage(chatID, callback.Message.MessageID, page)

	case strings.HasPrefix(data, cbService):
		state, err := b.form.SelectService(ctx, sid, strings.TrimPrefix(data, cbService))
		if err != nil {
			b.sendError(chatID, err)
			return
		}
		b.renderStep(ctx, chatID, 0, state)

	case strings.HasPrefix(data, cbDate):
		state, err := b.form.SelectDate(ctx, sid, strings.TrimPrefix(data, cbDate))
		if err != nil {
			b.sendError(chatID, err)
			return
		}
		b.renderStep(ctx, chatID, 0, state)

	case strings.HasPrefix(data, cbTime):
		state, err := b.form.SelectTime(ctx, sid, strings.TrimPrefix(data, cbTime))
		if err != nil {
			b.sendError(chatID, err)
			return
		}
		b.renderStep(ctx, chatID, 0, state)

	case data == cbConfirm:
		b.handleSubmit(ctx, chatID)

	case data == cbBack:
		b.handleBack(ctx, chatID)

	case data == cbCancel:
		b.handleCancel(ctx, chatID)

	default:
		b.logger.Warn().Str("data", data).Msg("Unknown callback data")
	}
}
