package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bookingdesk/internal/config"
	"bookingdesk/internal/models"
	"bookingdesk/internal/repository"
	"bookingdesk/internal/store"

	firebase "firebase.google.com/go/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Copies the calendar and bookings collections between two store drivers,
// e.g. from a local sqlite file to Firestore.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		fromPath = flag.String("from", "configs/config.yaml", "config of the source store")
		toPath   = flag.String("to", "", "config of the destination store")
		timeout  = flag.Duration("timeout", 5*time.Minute, "overall timeout")
	)
	flag.Parse()

	if *toPath == "" {
		return fmt.Errorf("-to is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	src, closeSrc, err := openStore(ctx, *fromPath, &logger)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer closeSrc()

	dst, closeDst, err := openStore(ctx, *toPath, &logger)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer closeDst()

	copied, err := store.Copy(ctx, src, dst, models.CollectionCalendar, models.CollectionBookings)
	if err != nil {
		return err
	}

	fmt.Printf("done: copied=%d\n", copied)
	return nil
}

func openStore(ctx context.Context, path string, logger *zerolog.Logger) (store.DocumentStore, func(), error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	var redisClient *redis.Client
	if cfg.Store.Driver == config.DriverRedis {
		redisClient = repository.NewRedisClient(cfg.Redis)
	}

	var app *firebase.App
	if cfg.Store.Driver == config.DriverFirestore {
		app, err = store.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
	}

	ds, err := store.Open(ctx, cfg, redisClient, app, logger)
	if err != nil {
		_ = repository.Close(redisClient)
		return nil, nil, err
	}

	logger.Info().Str("config", path).Str("driver", cfg.Store.Driver).Msg("store opened")
	return ds, func() {
		_ = ds.Close()
		_ = repository.Close(redisClient)
	}, nil
}
