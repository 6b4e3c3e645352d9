package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MemoryStore keeps documents in process memory. It backs tests and single
// instance deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]map[string]map[string]any
	hub    *hub
	logger *zerolog.Logger
}

func NewMemoryStore(logger *zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]map[string]map[string]any),
		hub:    newHub(),
		logger: logger,
	}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.RLock()
	data, ok := s.docs[collection][id]
	s.mu.RUnlock()
	if !ok {
		return Document{}, ErrNotFound
	}
	out, err := normalize(data)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Data: out}, nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []Document
	for id, data := range s.docs[collection] {
		if !q.Match(data) {
			continue
		}
		out, err := normalize(data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{ID: id, Data: out})
	}
	SortDocuments(docs, q.OrderBy)
	return docs, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	if err := validateName(collection); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := normalize(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	before := s.docs[collection][id]
	after := normalized
	if merge && before != nil {
		after = mergeData(before, normalized)
	}
	s.put(collection, id, after)
	s.mu.Unlock()

	s.hub.publish(collection, before, after)
	return nil
}

func (s *MemoryStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := validateName(collection); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	normalized, err := normalize(data)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.put(collection, id, normalized)
	s.mu.Unlock()

	s.hub.publish(collection, nil, normalized)
	return id, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := normalize(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	before, ok := s.docs[collection][id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	after := mergeData(before, normalized)
	s.put(collection, id, after)
	s.mu.Unlock()

	s.hub.publish(collection, before, after)
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context, collection string, q Query, fn func([]Document)) (Unsubscribe, error) {
	if err := validateName(collection); err != nil {
		return nil, err
	}
	load := func(ctx context.Context) ([]Document, error) {
		return s.Query(ctx, collection, q)
	}
	w := newWatcher(q, load, fn, s.logger)
	unsubscribe := s.hub.add(collection, w)
	w.start(ctx)
	return unsubscribe, nil
}

func (s *MemoryStore) Close() error {
	s.hub.closeAll()
	return nil
}

// put must be called with mu held.
func (s *MemoryStore) put(collection, id string, data map[string]any) {
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]map[string]any)
	}
	s.docs[collection][id] = data
}
