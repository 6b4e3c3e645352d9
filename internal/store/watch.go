package store

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// watcher re-runs its query and calls fn whenever it is signalled. Signals
// coalesce: a burst of writes while fn is running yields one more delivery
// with the latest state, so writers never block on slow listeners.
type watcher struct {
	query  Query
	load   func(ctx context.Context) ([]Document, error)
	fn     func([]Document)
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
	logger *zerolog.Logger
}

func newWatcher(
	q Query,
	load func(ctx context.Context) ([]Document, error),
	fn func([]Document),
	logger *zerolog.Logger,
) *watcher {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	w := &watcher{
		query:  q,
		load:   load,
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	return w
}

// start delivers the initial snapshot and begins listening. Register the
// watcher with its change source before calling start so no write is missed.
func (w *watcher) start(ctx context.Context) {
	w.notify()
	go w.loop(ctx)
}

func (w *watcher) notify() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.signal:
			docs, err := w.load(ctx)
			if err != nil {
				w.logger.Error().Err(err).Msg("watch: reload query")
				continue
			}
			select {
			case <-w.done:
				return
			default:
			}
			w.fn(docs)
		}
	}
}

func (w *watcher) stop() {
	w.once.Do(func() { close(w.done) })
}

// hub fans change notifications out to the watchers of a collection.
type hub struct {
	mu       sync.RWMutex
	watchers map[string]map[*watcher]struct{}
}

func newHub() *hub {
	return &hub{watchers: make(map[string]map[*watcher]struct{})}
}

func (h *hub) add(collection string, w *watcher) Unsubscribe {
	h.mu.Lock()
	if h.watchers[collection] == nil {
		h.watchers[collection] = make(map[*watcher]struct{})
	}
	h.watchers[collection][w] = struct{}{}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.watchers[collection], w)
		h.mu.Unlock()
		w.stop()
	}
}

// publish signals watchers whose query matched the document before or after
// the change.
func (h *hub) publish(collection string, before, after map[string]any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for w := range h.watchers[collection] {
		if (before != nil && w.query.Match(before)) || (after != nil && w.query.Match(after)) {
			w.notify()
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for collection, ws := range h.watchers {
		for w := range ws {
			w.stop()
		}
		delete(h.watchers, collection)
	}
}
