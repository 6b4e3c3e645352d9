// Package store provides the document store client used by the booking
// services: two collections (calendar, bookings) with get/query/set/add/update
// and live query subscriptions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is a single stored record.
type Document struct {
	ID   string
	Data map[string]any
}

// Query selects documents whose Field lies in the inclusive range
// [Start, End]. A nil bound is open. The zero Query matches every document.
type Query struct {
	Field   string
	Start   any
	End     any
	OrderBy string
}

// Unsubscribe stops a live listener. Calling it more than once is a no-op.
type Unsubscribe func()

// DocumentStore is the client-side view of the hosted document database.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	// Set writes data to the document. With merge only the top-level keys in
	// data are replaced and the rest of the document is left untouched.
	Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	// Update merges data into an existing document and fails with ErrNotFound
	// when it is missing.
	Update(ctx context.Context, collection, id string, data map[string]any) error
	// Watch delivers the full matching set once on registration and again
	// after every change to a matching document.
	Watch(ctx context.Context, collection string, q Query, fn func([]Document)) (Unsubscribe, error)
	Close() error
}

// Match reports whether data satisfies the range filter.
func (q Query) Match(data map[string]any) bool {
	if q.Field == "" {
		return true
	}
	if data == nil {
		return false
	}
	v, ok := data[q.Field]
	if !ok {
		return false
	}
	if q.Start != nil {
		c, ok := compareValues(v, q.Start)
		if !ok || c < 0 {
			return false
		}
	}
	if q.End != nil {
		c, ok := compareValues(v, q.End)
		if !ok || c > 0 {
			return false
		}
	}
	return true
}

// SortDocuments orders docs by field ascending, falling back to ID.
func SortDocuments(docs []Document, field string) {
	sort.SliceStable(docs, func(i, j int) bool {
		if field != "" {
			c, ok := compareValues(docs[i].Data[field], docs[j].Data[field])
			if ok && c != 0 {
				return c < 0
			}
		}
		return docs[i].ID < docs[j].ID
	})
}

func compareValues(a, b any) (int, bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	}
	return 0, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// Decode converts a document into a typed value using its JSON field names.
func Decode(doc Document, v any) error {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return nil
}

// normalize brings data to its JSON form so that every backend storing JSON
// returns the same value types it was given.
func normalize(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}
	out := make(map[string]any, len(data))
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	return out, nil
}

func mergeData(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

func validateName(collection string) error {
	if strings.TrimSpace(collection) == "" {
		return errors.New("collection name is required")
	}
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("document id is required")
	}
	return nil
}
