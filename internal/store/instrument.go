package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"bookingdesk/internal/metrics"
)

type instrumented struct {
	next DocumentStore
}

// Instrument records call counts and latency for every store operation.
func Instrument(next DocumentStore) DocumentStore {
	return &instrumented{next: next}
}

func (s *instrumented) Get(ctx context.Context, collection, id string) (Document, error) {
	start := time.Now()
	doc, err := s.next.Get(ctx, collection, id)
	metrics.ObserveStoreOp("get", collection, ignoreNotFound(err), time.Since(start))
	return doc, err
}

func (s *instrumented) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	start := time.Now()
	docs, err := s.next.Query(ctx, collection, q)
	metrics.ObserveStoreOp("query", collection, err, time.Since(start))
	return docs, err
}

func (s *instrumented) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	start := time.Now()
	err := s.next.Set(ctx, collection, id, data, merge)
	metrics.ObserveStoreOp("set", collection, err, time.Since(start))
	return err
}

func (s *instrumented) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	start := time.Now()
	id, err := s.next.Add(ctx, collection, data)
	metrics.ObserveStoreOp("add", collection, err, time.Since(start))
	return id, err
}

func (s *instrumented) Update(ctx context.Context, collection, id string, data map[string]any) error {
	start := time.Now()
	err := s.next.Update(ctx, collection, id, data)
	metrics.ObserveStoreOp("update", collection, err, time.Since(start))
	return err
}

func (s *instrumented) Watch(ctx context.Context, collection string, q Query, fn func([]Document)) (Unsubscribe, error) {
	start := time.Now()
	unsubscribe, err := s.next.Watch(ctx, collection, q, fn)
	metrics.ObserveStoreOp("watch", collection, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	metrics.SubscriptionStarted(collection)
	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			metrics.SubscriptionStopped(collection)
		})
	}, nil
}

func (s *instrumented) Close() error {
	return s.next.Close()
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
