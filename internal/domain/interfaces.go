package domain

import (
	"context"
	"time"

	"bookingdesk/internal/models"
	"bookingdesk/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type StateRepository interface {
	GetState(ctx context.Context, sessionID string) (*models.FormState, error)
	SetState(ctx context.Context, state *models.FormState) error
	ClearState(ctx context.Context, sessionID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type AvailabilityService interface {
	GetDateAvailability(ctx context.Context, date string) (*models.AvailabilityDate, error)
	GetAvailabilityRange(ctx context.Context, start, end string) ([]models.AvailabilityDate, error)
	SetDateAvailability(ctx context.Context, date string, isAvailable *bool, slots []models.TimeSlot) error
	SetBatchAvailability(ctx context.Context, dates []string, isAvailable bool) error
	SubscribeToAvailability(
		ctx context.Context,
		start, end string,
		fn func([]models.AvailabilityDate),
	) (store.Unsubscribe, error)
	IsSlotFree(ctx context.Context, date, slotTime string) (bool, error)
	DaySchedule(ctx context.Context, date string, slotTimes []string) ([]models.TimeSlot, error)
}

type BookingService interface {
	BookTimeSlot(ctx context.Context, date, slotTime, clientID string) error
	CreateBooking(ctx context.Context, booking *models.Booking) (string, error)
	GetAllBookings(ctx context.Context) ([]models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	SubscribeToBookings(ctx context.Context, fn func([]models.Booking)) (store.Unsubscribe, error)
	UpdateBookingStatus(ctx context.Context, id, status string) error
}

type CatalogService interface {
	ActiveServices() []models.Service
	GetService(id string) (*models.Service, bool)
}

type SheetsWriter interface {
	ReplaceBookingsSheet(ctx context.Context, bookings []models.Booking) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

// TelegramService is the bot-facing messaging API.
type TelegramService interface {
	TelegramSender
	SendMessage(chatID int64, text string) (tgbotapi.Message, error)
	SendMarkdown(chatID int64, text string) (tgbotapi.Message, error)
	SendWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	AnswerCallback(callbackID, text string) error
	Broadcast(chatIDs []int64, text string) error
}

// FormStateManager gives front ends direct access to form session data.
type FormStateManager interface {
	GetFormState(ctx context.Context, sessionID string) (*models.FormState, error)
	UpdateFormData(ctx context.Context, sessionID, key string, value interface{}) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
