package bot

import (
	"context"
	"fmt"
	"os"
	"time"

	"bookingdesk/internal/config"
	"bookingdesk/internal/domain"
	"bookingdesk/internal/flow"
	"bookingdesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FormFlow is the booking form driven by the bot conversation.
type FormFlow interface {
	Start(ctx context.Context, sessionID string) (*models.FormState, error)
	Get(ctx context.Context, sessionID string) (*models.FormState, error)
	Reset(ctx context.Context, sessionID string) error
	SelectService(ctx context.Context, sessionID, serviceID string) (*models.FormState, error)
	SelectDate(ctx context.Context, sessionID, date string) (*models.FormState, error)
	AvailableTimes(ctx context.Context, sessionID string) ([]models.TimeSlot, error)
	SelectTime(ctx context.Context, sessionID, slotTime string) (*models.FormState, error)
	SetContact(ctx context.Context, sessionID string, contact flow.Contact) (*models.FormState, error)
	Submit(ctx context.Context, sessionID string) (*models.FormState, error)
	Back(ctx context.Context, sessionID string) (*models.FormState, error)
}

type Bot struct {
	tgService           domain.TelegramService
	config              *config.Config
	form                FormFlow
	stateService        domain.FormStateManager
	catalog             domain.CatalogService
	availabilityService domain.AvailabilityService
	bookingService      domain.BookingService
	sheetsService       domain.SheetsWriter
	metrics             *Metrics
	logger              *zerolog.Logger
	now                 func() time.Time
}

func NewBot(
	tgService domain.TelegramService,
	config *config.Config,
	form FormFlow,
	stateService domain.FormStateManager,
	catalog domain.CatalogService,
	availabilityService domain.AvailabilityService,
	bookingService domain.BookingService,
	sheetsService domain.SheetsWriter,
	metrics *Metrics,
	logger *zerolog.Logger,
) (*Bot, error) {
	if tgService == nil || form == nil {
		return nil, fmt.Errorf("bot requires telegram service and form flow")
	}

	if logger == nil {
		l := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger = &l
	}

	return &Bot{
		tgService:           tgService,
		config:              config,
		form:                form,
		stateService:        stateService,
		catalog:             catalog,
		availabilityService: availabilityService,
		bookingService:      bookingService,
		sheetsService:       sheetsService,
		metrics:             metrics,
		logger:              logger,
		now:                 time.Now,
	}, nil
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tgService.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tgService.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	// Создаем контекст для обработки каждого обновления
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	requestID := uuid.New().String()
	l := b.logger.With().Str("request_id", requestID).Logger()
	updateCtx = l.WithContext(updateCtx)

	var userID, chatID int64
	switch {
	case update.Message != nil && update.Message.From != nil:
		userID = update.Message.From.ID
		chatID = update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		userID = update.CallbackQuery.From.ID
		chatID = update.CallbackQuery.Message.Chat.ID
	}
	if userID == 0 {
		return
	}

	b.withRecovery(updateCtx, chatID, func() {
		if !b.isManager(userID) && !b.allowUser(updateCtx, userID) {
			b.sendMessage(chatID, "⚠️ You are sending messages too often. Please wait a moment.")
			return
		}

		if update.CallbackQuery != nil {
			if b.metrics != nil {
				b.metrics.CallbacksProcessed.Inc()
			}
			b.handleCallbackQuery(updateCtx, update)
			return
		}

		if b.metrics != nil {
			b.metrics.MessagesProcessed.Inc()
		}
		b.handleMessage(updateCtx, update)
	})
}

// allowUser applies the per-user message limit. A failed check lets the
// update through.
func (b *Bot) allowUser(ctx context.Context, userID int64) bool {
	if b.stateService == nil || b.config.Booking.RateLimitRequests <= 0 {
		return true
	}
	allowed, err := b.stateService.CheckRateLimit(
		ctx,
		fmt.Sprintf("tg_user:%d", userID),
		b.config.Booking.RateLimitRequests,
		time.Duration(b.config.Booking.RateLimitWindow)*time.Second,
	)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Rate limit check failed")
		return true
	}
	if !allowed {
		b.logger.Warn().Int64("user_id", userID).Msg("Rate limit exceeded")
	}
	return allowed
}

// Stop stops receiving Telegram updates (best-effort).
func (b *Bot) Stop() {
	if b == nil || b.tgService == nil {
		return
	}
	b.tgService.StopReceivingUpdates()
}

// sessionID binds one form session to a Telegram chat.
func sessionID(chatID int64) string {
	return fmt.Sprintf("tg:%d", chatID)
}
