package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// checkpointDocument is the persisted shape. The full checkpoint travels as a
// JSON payload so the message round-trips through the same codec as the other
// stores; the indexed fields are duplicated for querying.
type checkpointDocument struct {
	ID        string    `bson:"_id"`
	RunID     string    `bson:"run_id"`
	GraphID   string    `bson:"graph_id"`
	NodeID    string    `bson:"node_id"`
	Status    string    `bson:"status"`
	Payload   []byte    `bson:"payload"`
	CreatedAt time.Time `bson:"created_at"`
}

func toDocument(cp *Checkpoint) (*checkpointDocument, error) {
	payload, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	return &checkpointDocument{
		ID:        cp.ID,
		RunID:     cp.RunID,
		GraphID:   cp.GraphID,
		NodeID:    cp.NodeID,
		Status:    string(cp.Status),
		Payload:   payload,
		CreatedAt: cp.CreatedAt,
	}, nil
}

func fromDocument(doc *checkpointDocument) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(doc.Payload, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// MongoStore persists checkpoints in a MongoDB collection, one document per
// checkpoint keyed by its id.
type MongoStore struct {
	collection *mongo.Collection
	maxPerRun  int
	logger     *zap.Logger
}

// MongoStoreOption configures a MongoStore.
type MongoStoreOption func(*MongoStore)

// WithMongoMaxPerRun bounds retained checkpoints per run (0 = unlimited).
func WithMongoMaxPerRun(n int) MongoStoreOption {
	return func(s *MongoStore) {
		s.maxPerRun = n
	}
}

// WithMongoLogger sets the store's logger.
func WithMongoLogger(logger *zap.Logger) MongoStoreOption {
	return func(s *MongoStore) {
		s.logger = logger
	}
}

// NewMongoStore creates a MongoDB-backed checkpoint store.
func NewMongoStore(collection *mongo.Collection, opts ...MongoStoreOption) *MongoStore {
	s := &MongoStore{collection: collection, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "mongo_checkpoint_store"))
	return s
}

// EnsureIndexes creates the run id + creation time index used by retention
// and ListByRun. Call once at startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}

func (s *MongoStore) Save(ctx context.Context, cp *Checkpoint) error {
	doc, err := toDocument(cp)
	if err != nil {
		return err
	}

	_, err = s.collection.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: cp.ID}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	if s.maxPerRun > 0 {
		if err := s.trim(ctx, cp.RunID); err != nil {
			s.logger.Warn("checkpoint retention trim failed",
				zap.String("run_id", cp.RunID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *MongoStore) trim(ctx context.Context, runID string) error {
	count, err := s.collection.CountDocuments(ctx, bson.D{{Key: "run_id", Value: runID}})
	if err != nil {
		return err
	}
	excess := int(count) - s.maxPerRun
	if excess <= 0 {
		return nil
	}

	cursor, err := s.collection.Find(ctx,
		bson.D{{Key: "run_id", Value: runID}},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: 1}}).
			SetLimit(int64(excess)).
			SetProjection(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return err
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return err
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	_, err = s.collection.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	return err
}

func (s *MongoStore) Load(ctx context.Context, id string) (*Checkpoint, error) {
	var doc checkpointDocument
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return fromDocument(&doc)
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	_, err := s.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	return err
}

func (s *MongoStore) ListByRun(ctx context.Context, runID string) ([]*Checkpoint, error) {
	cursor, err := s.collection.Find(ctx,
		bson.D{{Key: "run_id", Value: runID}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	var docs []checkpointDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode checkpoints: %w", err)
	}

	out := make([]*Checkpoint, 0, len(docs))
	for i := range docs {
		cp, err := fromDocument(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}
