package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore is the hosted backend. Live updates come from Firestore
// query snapshots and therefore reach every connected process.
type FirestoreStore struct {
	client *firestore.Client
	logger *zerolog.Logger
}

func NewFirestoreStore(ctx context.Context, app *firebase.App, logger *zerolog.Logger) (*FirestoreStore, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: error getting Firestore client: %w", err)
	}
	return &FirestoreStore{client: client, logger: logger}, nil
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("firestore get %s/%s: %w", collection, id, err)
	}
	return firestoreDocument(snap)
}

func (s *FirestoreStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	snaps, err := s.query(collection, q).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore query %s: %w", collection, err)
	}
	return firestoreDocuments(snaps)
}

func (s *FirestoreStore) query(collection string, q Query) firestore.Query {
	query := s.client.Collection(collection).Query
	if q.Field != "" {
		if q.Start != nil {
			query = query.Where(q.Field, ">=", q.Start)
		}
		if q.End != nil {
			query = query.Where(q.Field, "<=", q.End)
		}
	}
	if q.OrderBy != "" {
		query = query.OrderBy(q.OrderBy, firestore.Asc)
	}
	return query
}

func (s *FirestoreStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	if err := validateName(collection); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	normalized, err := normalize(data)
	if err != nil {
		return err
	}

	var opts []firestore.SetOption
	if merge {
		opts = append(opts, firestore.MergeAll)
	}
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, normalized, opts...); err != nil {
		return fmt.Errorf("firestore set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := validateName(collection); err != nil {
		return "", err
	}
	normalized, err := normalize(data)
	if err != nil {
		return "", err
	}
	ref, _, err := s.client.Collection(collection).Add(ctx, normalized)
	if err != nil {
		return "", fmt.Errorf("firestore add %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, data map[string]any) error {
	normalized, err := normalize(data)
	if err != nil {
		return err
	}
	updates := make([]firestore.Update, 0, len(normalized))
	for k, v := range normalized {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("firestore update %s/%s: %w", collection, id, err)
	}
	return nil
}

// Watch streams query snapshots. Each snapshot carries the full result set,
// so the callback always sees the latest state.
func (s *FirestoreStore) Watch(ctx context.Context, collection string, q Query, fn func([]Document)) (Unsubscribe, error) {
	if err := validateName(collection); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	open := func(ctx context.Context) snapshotIterator[*firestore.QuerySnapshot] {
		return s.query(collection, q).Snapshots(ctx)
	}
	deliver := func(snap *firestore.QuerySnapshot) {
		snaps, err := snap.Documents.GetAll()
		if err != nil {
			if s.logger != nil {
				s.logger.Error().Err(err).Str("collection", collection).Msg("read firestore snapshot")
			}
			return
		}
		docs, err := firestoreDocuments(snaps)
		if err != nil {
			if s.logger != nil {
				s.logger.Error().Err(err).Str("collection", collection).Msg("decode firestore snapshot")
			}
			return
		}
		fn(docs)
	}
	onError := func(err error) {
		if s.logger != nil {
			s.logger.Warn().Err(err).Str("collection", collection).Msg("firestore snapshot listener failed, reopening")
		}
	}

	go func() {
		defer cancel()
		listenSnapshots(ctx, open, deliver, onError, snapshotRetry, snapshotRetryMax)
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}, nil
}

const (
	snapshotRetry    = time.Second
	snapshotRetryMax = 30 * time.Second
)

type snapshotIterator[T any] interface {
	Next() (T, error)
	Stop()
}

// listenSnapshots feeds deliver from iterators returned by open until ctx
// ends. A listener that fails is reopened after a delay that doubles up to
// maxRetry and resets once a snapshot arrives.
func listenSnapshots[T any](ctx context.Context, open func(context.Context) snapshotIterator[T], deliver func(T), onError func(error), retry, maxRetry time.Duration) {
	delay := retry
	for {
		it := open(ctx)
		var err error
		for {
			var snap T
			snap, err = it.Next()
			if err != nil {
				break
			}
			delay = retry
			deliver(snap)
		}
		it.Stop()

		if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
			return
		}
		onError(err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = min(delay*2, maxRetry)
	}
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func firestoreDocuments(snaps []*firestore.DocumentSnapshot) ([]Document, error) {
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		doc, err := firestoreDocument(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func firestoreDocument(snap *firestore.DocumentSnapshot) (Document, error) {
	data, err := normalize(snap.Data())
	if err != nil {
		return Document{}, err
	}
	return Document{ID: snap.Ref.ID, Data: data}, nil
}
