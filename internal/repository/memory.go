package repository

import (
	"context"
	"sync"
	"time"

	"bookingdesk/internal/models"
)

// MemoryStateRepository keeps form sessions in process memory. Expired
// sessions are dropped on read.
type MemoryStateRepository struct {
	mu         sync.Mutex
	states     map[string]memoryState
	rateLimits map[string]*rateLimitEntry
	ttl        time.Duration
	now        func() time.Time
}

type memoryState struct {
	state     models.FormState
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryStateRepository(ttl time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{
		states:     make(map[string]memoryState),
		rateLimits: make(map[string]*rateLimitEntry),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *MemoryStateRepository) GetState(ctx context.Context, sessionID string) (*models.FormState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.states[sessionID]
	if !ok {
		return nil, nil
	}
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		delete(r.states, sessionID)
		return nil, nil
	}
	state := entry.state
	state.Data = copyData(entry.state.Data)
	return &state, nil
}

func (r *MemoryStateRepository) SetState(ctx context.Context, state *models.FormState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *state
	stored.Data = copyData(state.Data)
	r.states[state.SessionID] = memoryState{state: stored, expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *MemoryStateRepository) ClearState(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, sessionID)
	return nil
}

func (r *MemoryStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}

func copyData(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
