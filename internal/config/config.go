package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"bookingdesk/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	Booking    BookingConfig    `yaml:"booking"`
	API        APIConfig        `yaml:"api"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	Firebase   FirebaseConfig   `yaml:"firebase"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`
	Managers   []int64          `yaml:"managers"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

const (
	DriverMemory    = "memory"
	DriverSQLite    = "sqlite"
	DriverRedis     = "redis"
	DriverFirestore = "firestore"
	DriverMongo     = "mongo"
)

type StoreConfig struct {
	Driver string        `yaml:"driver"`
	SQLite SQLiteConfig  `yaml:"sqlite"`
	Redis  StoreRedisKey `yaml:"redis"`
	Mongo  MongoConfig   `yaml:"mongo"`
}

type SQLiteConfig struct {
	Path   string       `yaml:"path"`
	Backup BackupConfig `yaml:"backup"`
}

// BackupConfig schedules copies of the sqlite database file.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// StoreRedisKey configures the redis document backend. The connection itself
// comes from the top-level redis section.
type StoreRedisKey struct {
	Prefix string `yaml:"prefix"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	StateTTL int    `yaml:"state_ttl"`
}

type BookingConfig struct {
	CatalogPath       string   `yaml:"catalog_path"`
	SlotTimes         []string `yaml:"slot_times"`
	MaxBookingDays    int      `yaml:"max_booking_days"`
	RejectTakenSlots  bool     `yaml:"reject_taken_slots"`
	RateLimitRequests int      `yaml:"rate_limit_requests"`
	RateLimitWindow   int      `yaml:"rate_limit_window"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type TelegramConfig struct {
	BotToken   string `yaml:"bot_token"`
	Debug      bool   `yaml:"debug"`
	AgendaTime string `yaml:"agenda_time"`
}

type GoogleConfig struct {
	CredentialsFile      string `yaml:"credentials_file"`
	BookingSpreadSheetID string `yaml:"bookings_spreadsheet_id"`
}

type FirebaseConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
	PushTopic       string `yaml:"push_topic"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

var slotTimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLite.Path == "" {
			return errors.New("store.sqlite.path is required for sqlite driver")
		}
	case DriverRedis:
		if c.Redis.Address == "" {
			return errors.New("redis.address is required for redis driver")
		}
	case DriverFirestore:
		if c.Firebase.ProjectID == "" {
			return errors.New("firebase.project_id is required for firestore driver")
		}
	case DriverMongo:
		if c.Store.Mongo.URI == "" {
			return errors.New("store.mongo.uri is required for mongo driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Telegram.AgendaTime != "" && !slotTimePattern.MatchString(c.Telegram.AgendaTime) {
		return fmt.Errorf("invalid telegram.agenda_time %q, expected HH:mm", c.Telegram.AgendaTime)
	}

	return ValidateSlotTimes(c.Booking.SlotTimes)
}

// ValidateSlotTimes checks HH:mm format and rejects duplicates.
func ValidateSlotTimes(times []string) error {
	seen := make(map[string]bool, len(times))
	for _, t := range times {
		if !slotTimePattern.MatchString(t) {
			return fmt.Errorf("invalid slot time %q, expected HH:mm", t)
		}
		if seen[t] {
			return fmt.Errorf("duplicate slot time %q", t)
		}
		seen[t] = true
	}
	return nil
}

// ValidateServices checks the service catalog for empty and duplicate IDs.
func ValidateServices(services []models.Service) error {
	ids := make(map[string]bool, len(services))
	for _, svc := range services {
		if strings.TrimSpace(svc.ID) == "" {
			return fmt.Errorf("service '%s' has empty ID", svc.Name)
		}
		if strings.TrimSpace(svc.Name) == "" {
			return fmt.Errorf("service %s has empty name", svc.ID)
		}
		if ids[svc.ID] {
			return fmt.Errorf("duplicate service ID found: %s", svc.ID)
		}
		ids[svc.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = "bookingdesk"
	}
	if c.Store.Mongo.Database == "" {
		c.Store.Mongo.Database = "bookingdesk"
	}
	if c.Store.SQLite.Backup.StoragePath == "" {
		c.Store.SQLite.Backup.StoragePath = "backups"
	}
	if c.Redis.StateTTL == 0 {
		c.Redis.StateTTL = 24 * 60 * 60
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Booking.CatalogPath == "" {
		c.Booking.CatalogPath = "configs/services.yaml"
	}
	if len(c.Booking.SlotTimes) == 0 {
		c.Booking.SlotTimes = []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00", "17:00"}
	}
	if c.Booking.MaxBookingDays == 0 {
		c.Booking.MaxBookingDays = 90
	}
	if c.Booking.RateLimitRequests == 0 {
		c.Booking.RateLimitRequests = 30
	}
	if c.Booking.RateLimitWindow == 0 {
		c.Booking.RateLimitWindow = 60
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}

// IsManager reports whether a Telegram user is configured as a manager.
func (c *Config) IsManager(userID int64) bool {
	for _, id := range c.Managers {
		if id == userID {
			return true
		}
	}
	return false
}
