// Package app wires the components shared by the bot and API binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"bookingdesk/internal/config"
	"bookingdesk/internal/events"
	"bookingdesk/internal/flow"
	"bookingdesk/internal/google"
	"bookingdesk/internal/logging"
	"bookingdesk/internal/metrics"
	"bookingdesk/internal/models"
	"bookingdesk/internal/notify"
	"bookingdesk/internal/repository"
	"bookingdesk/internal/service"
	"bookingdesk/internal/store"
	"bookingdesk/internal/worker"

	firebase "firebase.google.com/go/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// Core holds the services every binary needs.
type Core struct {
	Config       *config.Config
	Logger       *zerolog.Logger
	Redis        *redis.Client
	Firebase     *firebase.App
	Store        store.DocumentStore
	EventBus     *events.EventBus
	State        *service.StateService
	Catalog      *service.CatalogService
	Availability *service.AvailabilityService
	Bookings     *service.BookingService
	Flow         *flow.Flow
}

// LoadConfig reads CONFIG_PATH (configs/config.yaml by default) and builds the
// logger. The returned closer releases the log file, if any.
func LoadConfig(component string) (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, component), closer, nil
}

// LoadServices reads the service catalog file. SERVICES_PATH overrides
// booking.catalog_path.
func LoadServices(path string, logger *zerolog.Logger) ([]models.Service, error) {
	if env := os.Getenv("SERVICES_PATH"); env != "" {
		path = env
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("services_path", path).Msg("read services")
		return nil, err
	}

	var catalog struct {
		Services []models.Service `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		logger.Error().Err(err).Str("services_path", path).Msg("parse services")
		return nil, err
	}

	if err := config.ValidateServices(catalog.Services); err != nil {
		logger.Error().Err(err).Msg("Services validation failed")
		return nil, err
	}
	return catalog.Services, nil
}

// Build opens the store and constructs the domain services.
func Build(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Core, error) {
	services, err := LoadServices(cfg.Booking.CatalogPath, logger)
	if err != nil {
		return nil, err
	}

	core := &Core{Config: cfg, Logger: logger}

	if cfg.Redis.Address != "" {
		core.Redis = repository.NewRedisClient(cfg.Redis)
		if err := repository.Ping(ctx, core.Redis); err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, form state falls back to memory")
		}
	}

	if cfg.Firebase.ProjectID != "" {
		core.Firebase, err = store.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			core.Close()
			return nil, err
		}
	}

	core.Store, err = store.Open(ctx, cfg, core.Redis, core.Firebase, logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Store.Driver).Msg("open document store")
		core.Close()
		return nil, err
	}

	ttl := time.Duration(cfg.Redis.StateTTL) * time.Second
	fallbackRepo := repository.NewMemoryStateRepository(ttl)
	if core.Redis != nil {
		primaryRepo := repository.NewRedisStateRepository(core.Redis, ttl)
		core.State = service.NewStateService(repository.NewFailoverStateRepository(primaryRepo, fallbackRepo, logger), logger)
	} else {
		core.State = service.NewStateService(fallbackRepo, logger)
	}

	core.EventBus = events.NewEventBus(logger)
	core.Catalog = service.NewCatalogService(services, logger)
	core.Availability = service.NewAvailabilityService(core.Store, logger)
	core.Bookings = service.NewBookingService(core.Store, core.Availability, core.EventBus, cfg.Booking.RejectTakenSlots, logger)
	core.Flow = flow.New(core.State, core.Catalog, core.Availability, core.Bookings, flow.Config{
		SlotTimes:         cfg.Booking.SlotTimes,
		MaxBookingDays:    cfg.Booking.MaxBookingDays,
		RateLimitRequests: cfg.Booking.RateLimitRequests,
		RateLimitWindow:   time.Duration(cfg.Booking.RateLimitWindow) * time.Second,
	}, logger)

	logger.Info().
		Str("driver", cfg.Store.Driver).
		Int("services", len(services)).
		Bool("redis", core.Redis != nil).
		Msg("Core services initialized")
	return core, nil
}

// Health checks the connections /healthz depends on.
func (c *Core) Health(ctx context.Context) error {
	if c.Redis == nil {
		return nil
	}
	return repository.Ping(ctx, c.Redis)
}

// StartNotifier subscribes booking notifications to the event bus. telegram
// may be nil; push is enabled when firebase.push_topic is set.
func (c *Core) StartNotifier(ctx context.Context, telegram notify.Broadcaster) *notify.Notifier {
	var push notify.PushSender
	if c.Firebase != nil && c.Config.Firebase.PushTopic != "" {
		client, err := notify.NewPushClient(ctx, c.Firebase)
		if err != nil {
			c.Logger.Warn().Err(err).Msg("FCM unavailable, push notifications disabled")
		} else {
			push = client
		}
	}

	notifier := notify.New(telegram, push, c.Config.Managers, c.Config.Firebase.PushTopic, c.Logger)
	notifier.Register(c.EventBus)
	return notifier
}

// StartSheetsMirror runs the Google Sheets mirror in the background when the
// google section is configured. It returns nil when the mirror is disabled.
func (c *Core) StartSheetsMirror(ctx context.Context) *google.SheetsService {
	cfg := c.Config.Google
	if cfg.CredentialsFile == "" || cfg.BookingSpreadSheetID == "" {
		c.Logger.Info().Msg("Google Sheets not configured, mirror disabled")
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.CredentialsFile, cfg.BookingSpreadSheetID)
	if err != nil {
		c.Logger.Warn().Err(err).Msg("Failed to initialize Google Sheets service")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		c.Logger.Error().Err(err).Msg("Google Sheets connection test failed")
		return nil
	}

	mirror := worker.NewSheetsMirror(c.Bookings, sheetsService, c.Redis, worker.DefaultRetryPolicy, c.Logger)
	go func() {
		if err := mirror.Run(ctx); err != nil {
			c.Logger.Error().Err(err).Msg("Google Sheets mirror stopped")
		}
	}()

	c.Logger.Info().Msg("Google Sheets mirror started")
	return sheetsService
}

// StartBackup schedules sqlite snapshots when the sqlite driver is used with
// store.sqlite.backup enabled.
func (c *Core) StartBackup(ctx context.Context) {
	sqliteCfg := c.Config.Store.SQLite
	if c.Config.Store.Driver != config.DriverSQLite || !sqliteCfg.Backup.Enabled {
		return
	}
	go store.NewBackup(sqliteCfg.Path, sqliteCfg.Backup, c.Logger).Run(ctx)
}

// StartMetrics serves /metrics on monitoring.prometheus_port until ctx is done.
func (c *Core) StartMetrics(ctx context.Context) {
	if !c.Config.Monitoring.PrometheusEnabled {
		return
	}
	metrics.Register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.Config.Monitoring.PrometheusPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.Logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	c.Logger.Info().Int("port", c.Config.Monitoring.PrometheusPort).Msg("Metrics server started")
}

// Close releases the store and the redis connection.
func (c *Core) Close() {
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			c.Logger.Error().Err(err).Msg("close document store")
		}
	}
	if err := repository.Close(c.Redis); err != nil {
		c.Logger.Error().Err(err).Msg("close redis")
	}
}
