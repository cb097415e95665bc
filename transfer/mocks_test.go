package transfer //nolint:testpackage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// makeDocs builds n documents {_id: start..start+n-1, v: "x"} in _id order.
func makeDocs(t *testing.T, start, n int) []bson.Raw {
	t.Helper()

	docs := make([]bson.Raw, n)
	for i := range n {
		raw, err := bson.Marshal(bson.D{{Key: "_id", Value: int32(start + i)}, {Key: "v", Value: "x"}})
		require.NoError(t, err)
		docs[i] = bson.Raw(raw)
	}

	return docs
}

// fakePager is a test double for the pager interface. It serves slices of
// a fixed in-order document set and can fail specific calls.
type fakePager struct {
	docs  []bson.Raw
	errAt map[int]error
	calls int
}

func (p *fakePager) NextPage(_ context.Context, after Cursor, limit int) ([]bson.Raw, error) {
	call := p.calls
	p.calls++

	if err, ok := p.errAt[call]; ok {
		return nil, err
	}

	start := 0
	if !after.IsZero() {
		last := after.last.AsInt64()
		for start < len(p.docs) && p.docs[start].Lookup("_id").AsInt64() <= last {
			start++
		}
	}

	end := min(start+limit, len(p.docs))

	return p.docs[start:end], nil
}

// fakeWriter is a test double for the batchWriter interface. Without a
// result function it reports every document as written.
type fakeWriter struct {
	mu       sync.Mutex
	batches  [][]bson.Raw
	resultFn func(call int, batch []bson.Raw) BatchResult
}

func (w *fakeWriter) WriteBatch(_ context.Context, batch []bson.Raw) BatchResult {
	w.mu.Lock()
	call := len(w.batches)
	w.batches = append(w.batches, batch)
	fn := w.resultFn
	w.mu.Unlock()

	if fn != nil {
		return fn(call, batch)
	}

	return BatchResult{Written: int64(len(batch))}
}

func (w *fakeWriter) batchSizes() []int {
	w.mu.Lock()
	defer w.mu.Unlock()

	sizes := make([]int, len(w.batches))
	for i, b := range w.batches {
		sizes[i] = len(b)
	}

	return sizes
}

// captureReporter records every event it receives.
type captureReporter struct {
	mu       sync.Mutex
	progress []Progress
	done     []*Report
}

func (r *captureReporter) Progress(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *captureReporter) Done(rep *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = append(r.done, rep)
}

func (r *captureReporter) doneReports() []*Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*Report(nil), r.done...)
}

func (r *captureReporter) progressEvents() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Progress(nil), r.progress...)
}

// fakeExecutor is a test double for the bulkExecutor interface.
type fakeExecutor struct {
	insertErrs []error
	bulkErrs   []error

	insertCalls   int
	bulkCalls     int
	orderedByCall []bool
	lastModels    []mongo.WriteModel
}

func (e *fakeExecutor) InsertMany(_ context.Context, _ []any, ordered bool) error {
	call := e.insertCalls
	e.insertCalls++
	e.orderedByCall = append(e.orderedByCall, ordered)

	if call < len(e.insertErrs) {
		return e.insertErrs[call]
	}

	return nil
}

func (e *fakeExecutor) BulkWrite(_ context.Context, models []mongo.WriteModel) error {
	call := e.bulkCalls
	e.bulkCalls++
	e.lastModels = models

	if call < len(e.bulkErrs) {
		return e.bulkErrs[call]
	}

	return nil
}

// cursorNotFoundErr mimics the server response for an expired cursor.
func cursorNotFoundErr() error {
	return mongo.CommandError{Code: 43, Name: "CursorNotFound", Message: "cursor not found"}
}

// steppedDownErr is a retryable server error.
func steppedDownErr() error {
	return mongo.CommandError{Code: 189, Name: "PrimarySteppedDown", Message: "stepdown"}
}

// duplicateKeyErr is a write error for an _id that already exists.
func duplicateKeyErr(index int) mongo.BulkWriteError {
	return mongo.BulkWriteError{
		WriteError: mongo.WriteError{Index: index, Code: 11000, Message: "E11000 duplicate key"},
	}
}

// rejectedErr is a non-retryable per-document write error.
func rejectedErr(index int) mongo.BulkWriteError {
	return mongo.BulkWriteError{
		WriteError: mongo.WriteError{Index: index, Code: 121, Message: "Document failed validation"},
	}
}
