package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore maps each collection to a MongoDB collection keyed by _id.
// Watch relies on change streams, which need a replica set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zerolog.Logger
}

func NewMongoStore(ctx context.Context, uri, database string, logger *zerolog.Logger) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoStore{client: client, db: client.Database(database), logger: logger}, nil
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("mongo get %s/%s: %w", collection, id, err)
	}
	return mongoDocument(raw), nil
}

func (s *MongoStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	filter := bson.M{}
	if q.Field != "" {
		cond := bson.M{"$exists": true}
		if q.Start != nil {
			cond["$gte"] = q.Start
		}
		if q.End != nil {
			cond["$lte"] = q.End
		}
		filter[q.Field] = cond
	}

	sort := bson.D{}
	if q.OrderBy != "" {
		sort = append(sort, bson.E{Key: q.OrderBy, Value: 1})
	}
	sort = append(sort, bson.E{Key: "_id", Value: 1})

	cursor, err := s.db.Collection(collection).Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("mongo query %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("mongo decode %s: %w", collection, err)
	}

	docs := make([]Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, mongoDocument(raw))
	}
	return docs, nil
}

func (s *MongoStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
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
	delete(normalized, "_id")

	coll := s.db.Collection(collection)
	filter := bson.M{"_id": id}
	if merge {
		update := bson.M{"$setOnInsert": bson.M{"_id": id}}
		if len(normalized) > 0 {
			update = bson.M{"$set": normalized}
		}
		_, err = coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	} else {
		_, err = coll.ReplaceOne(ctx, filter, normalized, options.Replace().SetUpsert(true))
	}
	if err != nil {
		return fmt.Errorf("mongo set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := validateName(collection); err != nil {
		return "", err
	}
	normalized, err := normalize(data)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	normalized["_id"] = id
	if _, err := s.db.Collection(collection).InsertOne(ctx, normalized); err != nil {
		return "", fmt.Errorf("mongo add %s: %w", collection, err)
	}
	return id, nil
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, data map[string]any) error {
	normalized, err := normalize(data)
	if err != nil {
		return err
	}
	delete(normalized, "_id")
	if len(normalized) == 0 {
		_, err := s.Get(ctx, collection, id)
		return err
	}

	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": normalized})
	if err != nil {
		return fmt.Errorf("mongo update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Watch re-runs the query on every change event of the collection. Events do
// not carry the previous document, so they are not filtered by the query.
func (s *MongoStore) Watch(ctx context.Context, collection string, q Query, fn func([]Document)) (Unsubscribe, error) {
	if err := validateName(collection); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	stream, err := s.db.Collection(collection).Watch(ctx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mongo watch %s: %w", collection, err)
	}

	load := func(ctx context.Context) ([]Document, error) {
		return s.Query(ctx, collection, q)
	}
	w := newWatcher(q, load, fn, s.logger)
	w.start(ctx)

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			w.notify()
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil && s.logger != nil {
			s.logger.Error().Err(err).Str("collection", collection).Msg("mongo change stream stopped")
		}
	}()

	return func() {
		w.stop()
		cancel()
	}, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func mongoDocument(raw bson.M) Document {
	id := fmt.Sprint(raw["_id"])
	data := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		data[k] = fromBSON(v)
	}
	return Document{ID: id, Data: data}
}

// fromBSON converts driver container types back to plain maps and slices.
func fromBSON(v any) any {
	switch val := v.(type) {
	case bson.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = fromBSON(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromBSON(item)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339Nano)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	}
	return v
}
