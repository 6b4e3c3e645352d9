package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookingdesk/internal/api"
	"bookingdesk/internal/app"
	"bookingdesk/internal/bot"
	"bookingdesk/internal/domain"
	"bookingdesk/internal/service"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := app.LoadConfig("bot-main")
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if cfg.Telegram.BotToken == "" || cfg.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		logger.Error().Msg("Задайте токен бота в config.yaml")
		return errors.New("telegram.bot_token is not set")
	}

	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer core.Close()

	botAPI, err := bot.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}
	tgService := service.NewTelegramService(botAPI)

	notifier := core.StartNotifier(ctx, tgService)
	defer notifier.Wait()

	// A standalone API process owns the Sheets mirror. Without it the bot runs
	// the mirror next to its embedded API server.
	var sheets domain.SheetsWriter
	if cfg.API.Enabled {
		if sheetsService := core.StartSheetsMirror(ctx); sheetsService != nil {
			sheets = sheetsService
		}
		startEmbeddedAPI(ctx, core, logger)
	}

	core.StartBackup(ctx)
	core.StartMetrics(ctx)

	telegramBot, err := bot.NewBot(
		tgService, cfg, core.Flow, core.State, core.Catalog,
		core.Availability, core.Bookings, sheets,
		bot.NewMetrics(), logger,
	)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания бота")
		return err
	}

	logger.Info().Msg("Бот запущен...")
	telegramBot.StartReminders(ctx)
	telegramBot.Start(ctx)
	telegramBot.Stop()

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func startEmbeddedAPI(ctx context.Context, core *app.Core, logger *zerolog.Logger) {
	apiServer := api.NewHTTPServer(core.Config.API, api.Dependencies{
		Availability: core.Availability,
		Bookings:     core.Bookings,
		Catalog:      core.Catalog,
		Flow:         core.Flow,
		SlotTimes:    core.Config.Booking.SlotTimes,
		Health:       core.Health,
	}, logger)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("API server error")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = apiServer.Shutdown(shutdownCtx)
	}()
}
