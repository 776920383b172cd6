package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"genjobs/internal/domain"
)

func TestAttemptRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("record inserts document", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		repo := NewAttemptRepository(mt.Coll)

		err := repo.Record(context.Background(), domain.AttemptRecord{
			ID:           "job-1",
			RequestID:    "req-1",
			ProviderID:   "runpod-flux",
			Kind:         domain.MediaKindImage,
			AttemptIndex: 0,
			Status:       domain.JobStatusSucceeded,
		})
		require.NoError(mt, err)
	})

	mt.Run("record surfaces write errors", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))
		repo := NewAttemptRepository(mt.Coll)

		err := repo.Record(context.Background(), domain.AttemptRecord{ID: "job-1"})
		assert.Error(mt, err)
	})

	mt.Run("list by request decodes attempts", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		submitted := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		first := mtest.CreateCursorResponse(1, ns, mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: "job-1"},
				{Key: "request_id", Value: "req-1"},
				{Key: "provider_id", Value: "replicate-flux-schnell"},
				{Key: "attempt_index", Value: 0},
				{Key: "status", Value: "failed"},
				{Key: "failure_kind", Value: "ProviderUnavailable"},
				{Key: "submitted_at", Value: submitted},
			},
			bson.D{
				{Key: "_id", Value: "job-2"},
				{Key: "request_id", Value: "req-1"},
				{Key: "provider_id", Value: "runpod-flux"},
				{Key: "attempt_index", Value: 1},
				{Key: "status", Value: "succeeded"},
				{Key: "submitted_at", Value: submitted.Add(time.Second)},
			},
		)
		done := mtest.CreateCursorResponse(0, ns, mtest.NextBatch)
		mt.AddMockResponses(first, done)
		repo := NewAttemptRepository(mt.Coll)

		got, err := repo.ListByRequest(context.Background(), "req-1")
		require.NoError(mt, err)
		require.Len(mt, got, 2)
		assert.Equal(mt, "replicate-flux-schnell", got[0].ProviderID)
		assert.Equal(mt, domain.KindProviderUnavailable, got[0].FailureKind)
		assert.Equal(mt, domain.JobStatusSucceeded, got[1].Status)
		assert.Equal(mt, 1, got[1].AttemptIndex)
		assert.True(mt, got[0].SubmittedAt.Equal(submitted))
	})
}
