package store

import (
	"context"
	"errors"
	"fmt"

	"bookingdesk/internal/config"

	firebase "firebase.google.com/go/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Open builds the backend selected by store.driver and wraps it with metrics.
// The redis client and Firebase app are shared with other components and are
// only required by their respective drivers.
func Open(
	ctx context.Context,
	cfg *config.Config,
	redisClient *redis.Client,
	app *firebase.App,
	logger *zerolog.Logger,
) (DocumentStore, error) {
	var (
		ds  DocumentStore
		err error
	)

	switch cfg.Store.Driver {
	case config.DriverMemory:
		ds = NewMemoryStore(logger)
	case config.DriverSQLite:
		ds, err = NewSQLiteStore(cfg.Store.SQLite.Path, logger)
	case config.DriverRedis:
		if redisClient == nil {
			return nil, errors.New("redis driver requires a redis client")
		}
		ds = NewRedisStore(redisClient, cfg.Store.Redis.Prefix, logger)
	case config.DriverFirestore:
		if app == nil {
			return nil, errors.New("firestore driver requires a firebase app")
		}
		ds, err = NewFirestoreStore(ctx, app, logger)
	case config.DriverMongo:
		ds, err = NewMongoStore(ctx, cfg.Store.Mongo.URI, cfg.Store.Mongo.Database, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	logger.Info().Str("driver", cfg.Store.Driver).Msg("Document store opened")
	return Instrument(ds), nil
}
