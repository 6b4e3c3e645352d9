package bot

import (
	"fmt"
	"strings"

	"bookingdesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type PaginationParams struct {
	ChatID       int64
	MessageID    int // 0 if new message
	Page         int
	PageSize     int
	Title        string
	ItemPrefix   string
	PagePrefix   string
	BackCallback string
}

// renderPaginatedList - универсальная функция для отрисовки пагинированного списка
func (b *Bot) renderPaginatedList(
	params PaginationParams,
	totalCount int,
	renderer func(startIdx, endIdx int) (string, [][]tgbotapi.InlineKeyboardButton),
) {
	itemsPerPage := params.PageSize
	if itemsPerPage <= 0 {
		itemsPerPage = models.DefaultBookingsPaginationSize
	}

	totalPages := (totalCount + itemsPerPage - 1) / itemsPerPage
	if params.Page >= totalPages && totalPages > 0 {
		params.Page = totalPages - 1
	}
	if params.Page < 0 {
		params.Page = 0
	}

	startIdx := params.Page * itemsPerPage
	endIdx := startIdx + itemsPerPage
	if endIdx > totalCount {
		endIdx = totalCount
	}

	content, keyboard := renderer(startIdx, endIdx)

	var message strings.Builder
	message.WriteString(params.Title + "\n\n")
	if totalPages > 1 {
		fmt.Fprintf(&message, "Page %d of %d\n\n", params.Page+1, totalPages)
	}
	message.WriteString(content)

	// Добавляем навигационные кнопки
	var navButtons []tgbotapi.InlineKeyboardButton
	if params.Page > 0 {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("⬅️ Prev", fmt.Sprintf("%s%d", params.PagePrefix, params.Page-1)))
	}
	if endIdx < totalCount {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", fmt.Sprintf("%s%d", params.PagePrefix, params.Page+1)))
	}
	if len(navButtons) > 0 {
		keyboard = append(keyboard, navButtons)
	}

	if params.BackCallback != "" {
		keyboard = append(keyboard, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", params.BackCallback),
		})
	}

	if params.MessageID != 0 && len(keyboard) > 0 {
		editMsg := tgbotapi.NewEditMessageTextAndMarkup(
			params.ChatID,
			params.MessageID,
			message.String(),
			tgbotapi.NewInlineKeyboardMarkup(keyboard...),
		)
		editMsg.ParseMode = models.ParseModeMarkdown
		b.send(editMsg)
		return
	}

	msg := tgbotapi.NewMessage(params.ChatID, message.String())
	if len(keyboard) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	}
	msg.ParseMode = models.ParseModeMarkdown
	b.send(msg)
}

// renderPaginatedServices - список активных услуг для выбора
func (b *Bot) renderPaginatedServices(params PaginationParams) {
	services := b.catalog.ActiveServices()
	if len(services) == 0 {
		b.sendMessage(params.ChatID, "No services are available for booking right now.")
		return
	}

	b.renderPaginatedList(params, len(services), func(startIdx, endIdx int) (string, [][]tgbotapi.InlineKeyboardButton) {
		var content strings.Builder
		var keyboard [][]tgbotapi.InlineKeyboardButton

		for i, svc := range services[startIdx:endIdx] {
			fmt.Fprintf(&content, "%d. *%s*\n", startIdx+i+1, escapeMarkdown(svc.Name))
			if svc.Description != "" {
				fmt.Fprintf(&content, "   📝 %s\n", escapeMarkdown(svc.Description))
			}
			if svc.Duration > 0 {
				fmt.Fprintf(&content, "   ⏱ %d min\n", svc.Duration)
			}
			if svc.Price != "" {
				fmt.Fprintf(&content, "   💰 %s\n", escapeMarkdown(svc.Price))
			}
			content.WriteString("\n")

			keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(svc.Name, params.ItemPrefix+svc.ID),
			))
		}
		return content.String(), keyboard
	})
}

// renderPaginatedBookings - обертка для списка заявок
func (b *Bot) renderPaginatedBookings(params PaginationParams, bookings []models.Booking) {
	b.renderPaginatedList(params, len(bookings), func(startIdx, endIdx int) (string, [][]tgbotapi.InlineKeyboardButton) {
		var content strings.Builder
		var keyboard [][]tgbotapi.InlineKeyboardButton

		for _, booking := range bookings[startIdx:endIdx] {
			fmt.Fprintf(&content, "%s *%s*\n", statusEmoji(booking.Status), escapeMarkdown(booking.ServiceName))
			fmt.Fprintf(&content, "   👤 %s\n", escapeMarkdown(booking.ClientName))
			fmt.Fprintf(&content, "   📅 %s %s\n\n", displayDate(booking.Date), booking.Time)

			btn := tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s %s %s: %s", statusEmoji(booking.Status), displayDate(booking.Date), booking.Time, booking.ClientName),
				params.ItemPrefix+booking.ID,
			)
			keyboard = append(keyboard, []tgbotapi.InlineKeyboardButton{btn})
		}
		return content.String(), keyboard
	})
}
