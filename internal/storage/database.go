package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/PanelGoat/internal/types"
)

// MongoStorage writes one document per snapshot to a MongoDB collection.
// A single InsertOne keeps each snapshot atomic.
type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	mu         sync.Mutex
	count      int
	logger     *slog.Logger
}

// NewMongoStorage creates a new MongoDB storage backend.
func NewMongoStorage(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*MongoStorage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "captured_at", Value: -1}}})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb index: %w", err)
	}

	return &MongoStorage{
		client:     client,
		collection: coll,
		logger:     logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoStorage) Name() string { return "mongodb" }

func (s *MongoStorage) Append(ctx context.Context, snap *types.Snapshot) error {
	if snap.IsEmpty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := *snap
	doc.CapturedAt = doc.CapturedAt.UTC()
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return storageErr("mongodb", "append", fmt.Errorf("mongodb insert: %w", err))
	}

	s.count++
	s.logger.Debug("snapshot stored in mongodb", "total", s.count)
	return nil
}

func (s *MongoStorage) latest(ctx context.Context, field string) (*types.Snapshot, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "captured_at", Value: -1}})
	filter := bson.D{{Key: field, Value: bson.D{{Key: "$exists", Value: true}}}}

	var snap types.Snapshot
	err := s.collection.FindOne(ctx, filter, opts).Decode(&snap)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.ErrNoSnapshot
	}
	if err != nil {
		return nil, storageErr("mongodb", "latest", err)
	}
	snap.CapturedAt = snap.CapturedAt.UTC()
	return &snap, nil
}

func (s *MongoStorage) LatestTotalAccounts(ctx context.Context) (*types.TotalAccountsRecord, error) {
	snap, err := s.latest(ctx, "total_accounts")
	if err != nil {
		return nil, err
	}
	return types.NewTotalAccountsRecord(snap), nil
}

func (s *MongoStorage) LatestSubscription(ctx context.Context) (*types.SubscriptionRecord, error) {
	snap, err := s.latest(ctx, "subscription_row")
	if err != nil {
		return nil, err
	}
	return types.NewSubscriptionRecord(snap), nil
}

func (s *MongoStorage) Subscriptions(ctx context.Context, start, end time.Time) ([]types.SubscriptionRecord, error) {
	filter := bson.D{{Key: "subscription_row", Value: bson.D{{Key: "$exists", Value: true}}}}
	window := bson.D{}
	if !start.IsZero() {
		window = append(window, bson.E{Key: "$gte", Value: start.UTC()})
	}
	if !end.IsZero() {
		window = append(window, bson.E{Key: "$lte", Value: end.UTC()})
	}
	if len(window) > 0 {
		filter = append(filter, bson.E{Key: "captured_at", Value: window})
	}

	cur, err := s.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "captured_at", Value: 1}}))
	if err != nil {
		return nil, storageErr("mongodb", "subscriptions", err)
	}
	defer cur.Close(ctx)

	var snaps []types.Snapshot
	if err := cur.All(ctx, &snaps); err != nil {
		return nil, storageErr("mongodb", "subscriptions", err)
	}

	out := make([]types.SubscriptionRecord, 0, len(snaps))
	for i := range snaps {
		snaps[i].CapturedAt = snaps[i].CapturedAt.UTC()
		if rec := types.NewSubscriptionRecord(&snaps[i]); rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *MongoStorage) Close() error {
	s.logger.Info("mongodb storage closing", "total_snapshots", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// --- Multi-Storage Fan-Out ---

// MultiStorage writes snapshots to multiple backends and reads from the
// first one.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

// Append writes to every backend and returns the first failure.
func (s *MultiStorage) Append(ctx context.Context, snap *types.Snapshot) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Append(ctx, snap); err != nil {
			s.logger.Error("backend append failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *MultiStorage) primary() Storage { return s.backends[0] }

func (s *MultiStorage) LatestTotalAccounts(ctx context.Context) (*types.TotalAccountsRecord, error) {
	return s.primary().LatestTotalAccounts(ctx)
}

func (s *MultiStorage) LatestSubscription(ctx context.Context) (*types.SubscriptionRecord, error) {
	return s.primary().LatestSubscription(ctx)
}

func (s *MultiStorage) Subscriptions(ctx context.Context, start, end time.Time) ([]types.SubscriptionRecord, error) {
	return s.primary().Subscriptions(ctx, start, end)
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
