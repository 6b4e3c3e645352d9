package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotWrapper adapts *tgbotapi.BotAPI to domain.TelegramSender.
type BotWrapper struct {
	*tgbotapi.BotAPI
}

// NewBotAPI connects to Telegram with token and wraps the client.
func NewBotAPI(token string, debug bool) (*BotWrapper, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = debug
	return &BotWrapper{BotAPI: api}, nil
}

func (w *BotWrapper) GetSelf() tgbotapi.User {
	return w.Self
}
