package repo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"genjobs/internal/domain"
)

// AttemptCollection is the collection that stores one document per attempt.
const AttemptCollection = "generation_attempts"

const defaultListLimit = 50

// AttemptRepositoryMongo implements domain.AttemptRepository.
type AttemptRepositoryMongo struct {
	coll *mongo.Collection
}

// NewAttemptRepository creates a repository over coll.
func NewAttemptRepository(coll *mongo.Collection) *AttemptRepositoryMongo {
	return &AttemptRepositoryMongo{coll: coll}
}

// EnsureIndexes creates the lookup indexes used by ListByRequest and ListByCaller.
func (r *AttemptRepositoryMongo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "request_id", Value: 1}, {Key: "attempt_index", Value: 1}}},
		{Keys: bson.D{{Key: "caller_id", Value: 1}, {Key: "submitted_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("attempts: create indexes: %w", err)
	}
	return nil
}

// Record inserts one attempt document.
func (r *AttemptRepositoryMongo) Record(ctx context.Context, rec domain.AttemptRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := r.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("attempts: insert: %w", err)
	}
	return nil
}

// ListByRequest returns the attempts of one request ordered by attempt index.
func (r *AttemptRepositoryMongo) ListByRequest(ctx context.Context, requestID string) ([]domain.AttemptRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "attempt_index", Value: 1}})
	return r.find(ctx, bson.M{"request_id": requestID}, opts)
}

// ListByCaller returns the most recent attempts of a caller.
func (r *AttemptRepositoryMongo) ListByCaller(ctx context.Context, callerID string, limit int64) ([]domain.AttemptRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}
	opts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: -1}}).SetLimit(limit)
	return r.find(ctx, bson.M{"caller_id": callerID}, opts)
}

func (r *AttemptRepositoryMongo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.AttemptRecord, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("attempts: find: %w", err)
	}
	defer cur.Close(ctx)
	var out []domain.AttemptRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("attempts: decode: %w", err)
	}
	return out, nil
}

var _ domain.AttemptRepository = (*AttemptRepositoryMongo)(nil)
