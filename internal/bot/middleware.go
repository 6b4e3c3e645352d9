package bot

import (
	"context"

	"github.com/rs/zerolog"
)

// withRecovery keeps a panicking handler from stopping the update loop. The
// chat gets a generic error reply when chatID is known.
func (b *Bot) withRecovery(ctx context.Context, chatID int64, handler func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if b.metrics != nil {
			b.metrics.ErrorsTotal.Inc()
		}
		zerolog.Ctx(ctx).Error().
			Interface("panic", r).
			Int64("chat_id", chatID).
			Msg("Recovered from panic in update handler")
		if chatID != 0 {
			b.sendMessage(chatID, "⚠️ Something went wrong. Please try again or send /cancel.")
		}
	}()
	handler()
}
