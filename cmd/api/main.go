package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookingdesk/internal/api"
	"bookingdesk/internal/app"
	"bookingdesk/internal/bot"
	"bookingdesk/internal/notify"
	"bookingdesk/internal/service"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := app.LoadConfig("api-main")
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer core.Close()

	notifier := core.StartNotifier(ctx, managerBroadcaster(cfg.Telegram.BotToken, cfg.Telegram.Debug, logger))
	defer notifier.Wait()

	core.StartSheetsMirror(ctx)
	core.StartBackup(ctx)
	core.StartMetrics(ctx)

	httpServer := api.NewHTTPServer(cfg.API, api.Dependencies{
		Availability: core.Availability,
		Bookings:     core.Bookings,
		Catalog:      core.Catalog,
		Flow:         core.Flow,
		SlotTimes:    cfg.Booking.SlotTimes,
		Health:       core.Health,
	}, logger)

	return serve(ctx, httpServer, cfg.API.HTTP.Port, logger)
}

// managerBroadcaster connects to Telegram only to notify managers. Without a
// token notifications go to FCM alone.
func managerBroadcaster(token string, debug bool, logger *zerolog.Logger) notify.Broadcaster {
	if token == "" {
		return nil
	}
	botAPI, err := bot.NewBotAPI(token, debug)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram unavailable, manager notifications disabled")
		return nil
	}
	return service.NewTelegramService(botAPI)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, port int, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}
