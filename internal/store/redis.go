package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisMergeAttempts = 5

// RedisStore keeps each collection in a hash of JSON documents and announces
// every write on a per-collection PUB/SUB channel, so listeners in any process
// sharing the Redis instance receive live updates.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zerolog.Logger
}

// changeMessage is published after every successful write.
type changeMessage struct {
	ID     string         `json:"id"`
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

func NewRedisStore(client *redis.Client, prefix string, logger *zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "bookingdesk"
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger}
}

func (s *RedisStore) key(collection string) string {
	return fmt.Sprintf("%s:docs:%s", s.prefix, collection)
}

func (s *RedisStore) channel(collection string) string {
	return fmt.Sprintf("%s:changes:%s", s.prefix, collection)
}

func (s *RedisStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if s.client == nil {
		return Document{}, fmt.Errorf("redis client is nil")
	}
	val, err := s.client.HGet(ctx, s.key(collection), id).Result()
	if errors.Is(err, redis.Nil) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document from redis: %w", err)
	}
	return decodeRedisDocument(id, val)
}

func (s *RedisStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	all, err := s.client.HGetAll(ctx, s.key(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents from redis: %w", err)
	}

	docs := make([]Document, 0, len(all))
	for id, val := range all {
		doc, err := decodeRedisDocument(id, val)
		if err != nil {
			return nil, err
		}
		if q.Match(doc.Data) {
			docs = append(docs, doc)
		}
	}
	SortDocuments(docs, q.OrderBy)
	return docs, nil
}

func (s *RedisStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	if err := validateName(collection); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	return s.write(ctx, collection, id, func(existing map[string]any, found bool) (map[string]any, error) {
		if merge && found {
			return mergeData(existing, data), nil
		}
		return data, nil
	})
}

func (s *RedisStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := validateName(collection); err != nil {
		return "", err
	}
	if s.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	normalized, err := normalize(data)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}

	id := uuid.NewString()
	if err := s.client.HSet(ctx, s.key(collection), id, raw).Err(); err != nil {
		return "", fmt.Errorf("failed to add document to redis: %w", err)
	}
	s.publish(ctx, collection, changeMessage{ID: id, After: normalized})
	return id, nil
}

func (s *RedisStore) Update(ctx context.Context, collection, id string, data map[string]any) error {
	return s.write(ctx, collection, id, func(existing map[string]any, found bool) (map[string]any, error) {
		if !found {
			return nil, ErrNotFound
		}
		return mergeData(existing, data), nil
	})
}

// write performs an optimistic read-modify-write of one document. Concurrent
// writers to the same collection hash make the transaction abort; the merge is
// then recomputed from fresh data.
func (s *RedisStore) write(
	ctx context.Context,
	collection, id string,
	apply func(existing map[string]any, found bool) (map[string]any, error),
) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := s.key(collection)

	var msg changeMessage
	txf := func(tx *redis.Tx) error {
		var before map[string]any
		val, err := tx.HGet(ctx, key, id).Result()
		switch {
		case err == nil:
			doc, decodeErr := decodeRedisDocument(id, val)
			if decodeErr != nil {
				return decodeErr
			}
			before = doc.Data
		case errors.Is(err, redis.Nil):
		default:
			return err
		}

		next, err := apply(before, before != nil)
		if err != nil {
			return err
		}
		after, err := normalize(next)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(after)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, raw)
			return nil
		})
		if err != nil {
			return err
		}
		msg = changeMessage{ID: id, Before: before, After: after}
		return nil
	}

	var err error
	for attempt := 0; attempt < redisMergeAttempts; attempt++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to write document to redis: %w", err)
	}

	s.publish(ctx, collection, msg)
	return nil
}

func (s *RedisStore) publish(ctx context.Context, collection string, msg changeMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		s.logError(err, "encode change message")
		return
	}
	if err := s.client.Publish(ctx, s.channel(collection), raw).Err(); err != nil {
		s.logError(err, "publish change message")
	}
}

func (s *RedisStore) Watch(ctx context.Context, collection string, q Query, fn func([]Document)) (Unsubscribe, error) {
	if err := validateName(collection); err != nil {
		return nil, err
	}
	if s.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	sub := s.client.Subscribe(ctx, s.channel(collection))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", collection, err)
	}

	load := func(ctx context.Context) ([]Document, error) {
		return s.Query(ctx, collection, q)
	}
	w := newWatcher(q, load, fn, s.logger)
	w.start(ctx)

	messages := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-messages:
				if !ok {
					return
				}
				var change changeMessage
				if err := json.Unmarshal([]byte(m.Payload), &change); err != nil {
					s.logError(err, "decode change message")
					w.notify()
					continue
				}
				if (change.Before != nil && q.Match(change.Before)) || (change.After != nil && q.Match(change.After)) {
					w.notify()
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.stop()
			_ = sub.Close()
		})
	}, nil
}

func (s *RedisStore) Close() error {
	return nil
}

func (s *RedisStore) logError(err error, msg string) {
	if s.logger != nil {
		s.logger.Error().Err(err).Msg(msg)
	}
}

func decodeRedisDocument(id, val string) (Document, error) {
	data := make(map[string]any)
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return Document{}, fmt.Errorf("failed to unmarshal document %s: %w", id, err)
	}
	return Document{ID: id, Data: data}, nil
}
