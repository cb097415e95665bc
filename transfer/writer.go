package transfer

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Johndevils/Mongodb-bot/config"
	"github.com/Johndevils/Mongodb-bot/errors"
	"github.com/Johndevils/Mongodb-bot/log"
	"github.com/Johndevils/Mongodb-bot/metrics"
	"github.com/Johndevils/Mongodb-bot/topo"
)

// BatchResult accounts for every document of one batch:
// Written + Skipped + Failed always equals the batch size.
type BatchResult struct {
	Written int64
	Skipped int64
	Failed  int64

	// Err is set when any document failed. It carries the most specific
	// WriteError observed for the batch.
	Err error
}

// bulkExecutor is the slice of *mongo.Collection the Writer needs.
// It exists so policy and retry behavior can be tested without a server.
type bulkExecutor interface {
	InsertMany(ctx context.Context, docs []any, ordered bool) error
	BulkWrite(ctx context.Context, models []mongo.WriteModel) error
}

type collectionExecutor struct {
	coll *mongo.Collection
}

func (e *collectionExecutor) InsertMany(ctx context.Context, docs []any, ordered bool) error {
	_, err := e.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(ordered))

	return err
}

func (e *collectionExecutor) BulkWrite(ctx context.Context, models []mongo.WriteModel) error {
	_, err := e.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))

	return err
}

// Writer writes fixed-size batches to the target collection. Each batch is
// one bulk operation; transient failures are retried with exponential
// backoff before the batch is declared failed.
type Writer struct {
	exec   bulkExecutor
	policy Policy
	lg     log.Logger

	baseInterval time.Duration
	maxInterval  time.Duration
	maxRetries   int
}

func NewWriter(coll *mongo.Collection, policy Policy) *Writer {
	return &Writer{
		exec:   &collectionExecutor{coll: coll},
		policy: policy,
		lg:     log.New("writer"),

		baseInterval: config.WriteRetryBaseInterval,
		maxInterval:  config.WriteRetryMaxInterval,
		maxRetries:   config.WriteMaxRetries,
	}
}

// WriteBatch applies one batch under the writer's duplicate policy. The
// returned result accounts for every document in the batch.
func (w *Writer) WriteBatch(ctx context.Context, batch []bson.Raw) BatchResult {
	if len(batch) == 0 {
		return BatchResult{}
	}

	start := time.Now()
	metrics.ObserveBatchSize(len(batch))

	var res BatchResult
	switch w.policy {
	case PolicyOverwrite:
		res = w.writeOverwrite(ctx, batch)
	case PolicyFail:
		res = w.writeFail(ctx, batch)
	default:
		res = w.writeSkip(ctx, batch)
	}

	metrics.ObserveBatchWriteDuration(time.Since(start))
	metrics.AddDocumentsWritten(int(res.Written))
	metrics.AddDocumentsSkipped(int(res.Skipped))
	metrics.AddDocumentsFailed(int(res.Failed))

	return res
}

// writeSkip inserts the batch unordered. Duplicate key errors are counted
// as skipped, other per-document rejections as failed; every remaining
// document is written.
func (w *Writer) writeSkip(ctx context.Context, batch []bson.Raw) BatchResult {
	err := w.withRetry(ctx, func(ctx context.Context) error {
		return w.exec.InsertMany(ctx, rawToAny(batch), false)
	})
	if err == nil {
		return BatchResult{Written: int64(len(batch))}
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
		return w.failBatch(batch, err)
	}

	res := BatchResult{}
	for _, we := range bwe.WriteErrors {
		if mongo.IsDuplicateKeyError(we.WriteError) {
			res.Skipped++

			continue
		}

		res.Failed++
		if res.Err == nil {
			res.Err = &WriteError{Kind: WriteRejected, Cause: we.WriteError}
		}
	}
	res.Written = int64(len(batch)) - res.Skipped - res.Failed

	return res
}

// writeOverwrite replaces existing documents in place via an ordered bulk
// of upserts. A duplicate key cannot occur; any failure fails the batch.
func (w *Writer) writeOverwrite(ctx context.Context, batch []bson.Raw) BatchResult {
	models := make([]mongo.WriteModel, len(batch))
	for i, doc := range batch {
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: doc.Lookup("_id")}}).
			SetReplacement(doc).
			SetUpsert(true)
	}

	err := w.withRetry(ctx, func(ctx context.Context) error {
		return w.exec.BulkWrite(ctx, models)
	})
	if err != nil {
		return w.failBatch(batch, err)
	}

	return BatchResult{Written: int64(len(batch))}
}

// writeFail inserts the batch ordered. The first duplicate poisons the
// whole batch: nothing in it is counted as written.
func (w *Writer) writeFail(ctx context.Context, batch []bson.Raw) BatchResult {
	err := w.withRetry(ctx, func(ctx context.Context) error {
		return w.exec.InsertMany(ctx, rawToAny(batch), true)
	})
	if err == nil {
		return BatchResult{Written: int64(len(batch))}
	}

	if mongo.IsDuplicateKeyError(err) {
		err = &WriteError{Kind: WriteDuplicateKey, Cause: err}

		return BatchResult{Failed: int64(len(batch)), Err: err}
	}

	return w.failBatch(batch, err)
}

// failBatch classifies err and charges the whole batch as failed.
func (w *Writer) failBatch(batch []bson.Raw, err error) BatchResult {
	kind := WriteRejected
	if topo.IsTransientError(err) {
		kind = WriteTransient
	}

	w.lg.Error(err, "Batch write failed")

	return BatchResult{
		Failed: int64(len(batch)),
		Err:    &WriteError{Kind: kind, Cause: err},
	}
}

// withRetry runs fn, retrying transient failures with exponential backoff.
// Non-transient errors are returned to the caller for policy handling.
func (w *Writer) withRetry(ctx context.Context, fn func(context.Context) error) error {
	attempt := 0

	return topo.RunWithRetry(ctx, func(ctx context.Context) error {
		if attempt != 0 {
			metrics.IncBatchRetries()
			w.lg.With(log.Int64("attempt", int64(attempt))).
				Warn("Retrying batch write")
		}
		attempt++

		return fn(ctx)
	}, w.baseInterval, w.maxInterval, w.maxRetries)
}

func rawToAny(batch []bson.Raw) []any {
	docs := make([]any, len(batch))
	for i, doc := range batch {
		docs[i] = doc
	}

	return docs
}
