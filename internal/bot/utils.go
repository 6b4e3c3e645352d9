package bot

import (
	"strings"
	"time"
	"unicode"

	"bookingdesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const maxInputLength = 200

// displayDateLayout is the date format shown to users and accepted as input.
const displayDateLayout = "02.01.2006"

func (b *Bot) isManager(userID int64) bool {
	return b.config != nil && b.config.IsManager(userID)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if _, err := b.tgService.SendMessage(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.tgService.Send(c); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send message")
	}
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, rows [][]tgbotapi.InlineKeyboardButton) {
	if len(rows) == 0 {
		b.sendMessage(chatID, text)
		return
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.tgService.SendWithInlineKeyboard(chatID, text, keyboard); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send keyboard")
	}
}

func (b *Bot) sendError(chatID int64, err error) {
	b.sendMessage(chatID, b.getErrorMessage(err))
}

// sanitizeInput collapses whitespace, drops control characters and caps the
// length of free text typed by users.
func (b *Bot) sanitizeInput(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	runes := []rune(cleaned)
	if len(runes) > maxInputLength {
		cleaned = string(runes[:maxInputLength])
	}
	return cleaned
}

// normalizePhone keeps digits and a leading plus. Numbers written in the
// national 8XXXXXXXXXX form become +7XXXXXXXXXX. Returns "" when the result
// is not a plausible phone number.
func (b *Bot) normalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	plus := strings.HasPrefix(phone, "+")

	// Удаляем все нецифровые символы
	var digits strings.Builder
	for _, char := range phone {
		if char >= '0' && char <= '9' {
			digits.WriteRune(char)
		}
	}
	cleaned := digits.String()

	if !plus && len(cleaned) == 11 && cleaned[0] == '8' {
		cleaned = "7" + cleaned[1:]
	}
	if len(cleaned) < 7 || len(cleaned) > 15 {
		return ""
	}
	return "+" + cleaned
}

// parseDateInput accepts DD.MM.YYYY and YYYY-MM-DD and returns the calendar
// key.
func parseDateInput(input string) (string, bool) {
	input = strings.TrimSpace(input)
	for _, layout := range []string{displayDateLayout, models.DateLayout} {
		if t, err := time.Parse(layout, input); err == nil {
			return t.Format(models.DateLayout), true
		}
	}
	return "", false
}

// displayDate renders a calendar key as DD.MM.YYYY, leaving unparsable keys
// as they are.
func displayDate(key string) string {
	t, err := models.ParseDateKey(key)
	if err != nil {
		return key
	}
	return t.Format(displayDateLayout)
}

func escapeMarkdown(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func statusEmoji(status string) string {
	switch status {
	case models.StatusConfirmed:
		return "✅"
	case models.StatusCancelled:
		return "❌"
	default:
		return "⏳"
	}
}
