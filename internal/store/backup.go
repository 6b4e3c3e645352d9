package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bookingdesk/internal/config"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// Backup periodically snapshots the sqlite document database.
type Backup struct {
	dbPath string
	config config.BackupConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackup(dbPath string, cfg config.BackupConfig, logger *zerolog.Logger) *Backup {
	return &Backup{
		dbPath: dbPath,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Run takes a snapshot immediately and then on every schedule tick until ctx
// is done. The schedule is a Go duration, 24h by default.
func (b *Backup) Run(ctx context.Context) {
	if !b.config.Enabled {
		b.logger.Info().Msg("SQLite backup is disabled")
		return
	}

	interval := 24 * time.Hour
	if b.config.Schedule != "" {
		if d, err := time.ParseDuration(b.config.Schedule); err == nil && d > 0 {
			interval = d
		} else {
			b.logger.Warn().Err(err).Str("schedule", b.config.Schedule).Msg("Failed to parse backup schedule, using default 24h")
		}
	}

	b.logger.Info().Dur("interval", interval).Str("storage_path", b.config.StoragePath).Msg("SQLite backup started")

	if _, err := b.Snapshot(ctx); err != nil {
		b.logger.Error().Err(err).Msg("Initial backup failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.Snapshot(ctx); err != nil {
				b.logger.Error().Err(err).Msg("Scheduled backup failed")
			}
			b.Cleanup()
		}
	}
}

// Snapshot writes one backup file and returns its path.
func (b *Backup) Snapshot(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	backupPath := filepath.Join(b.config.StoragePath, fmt.Sprintf("documents_%s.db", b.now().Format("20060102_150405")))

	db, err := sqlx.Open("sqlite3", b.dbPath)
	if err != nil {
		return "", fmt.Errorf("open source database: %w", err)
	}
	defer db.Close()

	// VACUUM INTO is consistent while other connections write.
	quoted := strings.ReplaceAll(backupPath, "'", "''")
	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		b.logger.Warn().Err(err).Msg("VACUUM INTO failed, falling back to file copy")
		if err := b.copyFile(backupPath); err != nil {
			return "", err
		}
	}

	b.logger.Info().Str("path", backupPath).Msg("Backup completed")
	return backupPath, nil
}

func (b *Backup) copyFile(backupPath string) error {
	source, err := os.Open(b.dbPath)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(backupPath)
	if err != nil {
		return err
	}
	defer destination.Close()

	_, err = io.Copy(destination, source)
	return err
}

// Cleanup removes backups older than RetentionDays. Zero keeps everything.
func (b *Backup) Cleanup() {
	if b.config.RetentionDays <= 0 {
		return
	}

	files, err := os.ReadDir(b.config.StoragePath)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return
	}

	cutoff := b.now().AddDate(0, 0, -b.config.RetentionDays)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			b.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(b.config.StoragePath, file.Name())); err != nil {
				b.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete old backup")
			}
		}
	}
}
