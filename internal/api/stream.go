package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"bookingdesk/internal/store"
)

const sseKeepAlive = 25 * time.Second

// streamSnapshots writes every snapshot pushed by subscribe as a server-sent
// event until the client disconnects. Only the latest undelivered snapshot is
// kept, so a slow client never blocks the store listener.
func (s *HTTPServer) streamSnapshots(
	w http.ResponseWriter,
	r *http.Request,
	event string,
	subscribe func(ctx context.Context, push func(any)) (store.Unsubscribe, error),
) {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		mu     sync.Mutex
		latest any
	)
	pending := make(chan struct{}, 1)
	push := func(v any) {
		mu.Lock()
		latest = v
		mu.Unlock()
		select {
		case pending <- struct{}{}:
		default:
		}
	}

	unsubscribe, err := subscribe(ctx, push)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		case <-pending:
			mu.Lock()
			snapshot := latest
			mu.Unlock()

			data, err := json.Marshal(snapshot)
			if err != nil {
				s.logger.Error().Err(err).Str("event", event).Msg("failed to encode stream snapshot")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
