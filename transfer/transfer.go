package transfer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/sync/errgroup"

	"github.com/Johndevils/Mongodb-bot/config"
	"github.com/Johndevils/Mongodb-bot/errors"
	"github.com/Johndevils/Mongodb-bot/log"
	"github.com/Johndevils/Mongodb-bot/metrics"
	"github.com/Johndevils/Mongodb-bot/topo"
	"github.com/Johndevils/Mongodb-bot/util"
)

// Transfer coordinates one document transfer end to end: connect, stream,
// write, report. A Transfer is single-use; create a new one per request.
//
// The pipeline has two stages connected by a queue holding at most one
// batch, so reading never runs more than one batch ahead of writing.
type Transfer struct {
	reporter ProgressReporter
	cfg      config.TransferConfig
	lg       log.Logger

	lock      sync.Mutex
	state     State
	startTime time.Time
	resume    Cursor
	batchErr  error

	read    atomic.Int64
	written atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64

	doneOnce sync.Once
}

func New(reporter ProgressReporter, cfg config.TransferConfig) *Transfer {
	if reporter == nil {
		reporter = NewLogReporter()
	}

	return &Transfer{
		reporter: reporter,
		cfg:      cfg,
		lg:       log.New("transfer"),
		state:    StateIdle,
	}
}

// State returns the current lifecycle state.
func (t *Transfer) State() State {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.state
}

// Progress returns a point-in-time snapshot of the counters.
func (t *Transfer) Progress() Progress {
	t.lock.Lock()
	state := t.state
	start := t.startTime
	t.lock.Unlock()

	var elapsed time.Duration
	if !start.IsZero() {
		elapsed = time.Since(start)
	}

	return Progress{
		State:   state,
		Read:    t.read.Load(),
		Written: t.written.Load(),
		Skipped: t.skipped.Load(),
		Failed:  t.failed.Load(),
		Elapsed: elapsed,
	}
}

// Run executes the transfer described by req and blocks until it reaches a
// terminal state. The returned report is always non-nil once the transfer
// has started; the error is set only for run-level failures (connection,
// stream, timeout), never for per-batch write failures.
func (t *Transfer) Run(ctx context.Context, req Request) (*Report, error) {
	if !t.transition(StateIdle, StateConnecting) {
		return nil, ErrAlreadyRunning
	}

	t.lock.Lock()
	t.startTime = time.Now()
	t.lock.Unlock()

	metrics.IncTransfersInProgress()
	defer metrics.DecTransfersInProgress()

	req = req.WithDefaults(t.cfg)
	if err := req.Validate(); err != nil {
		return t.finish(err)
	}

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	source, err := topo.Connect(ctx, req.SourceURI, t.cfg.ConnectTimeout)
	if err != nil {
		return t.finish(errors.Wrap(err, "source"))
	}
	defer t.disconnect(source)

	target, err := topo.Connect(ctx, req.TargetURI, t.cfg.ConnectTimeout)
	if err != nil {
		return t.finish(errors.Wrap(err, "target"))
	}
	defer t.disconnect(target)

	t.lg.With(log.NS(source.Database(), req.SourceCollection)).
		Infof("Transferring to %s.%s", target.Database(), req.TargetCollection)

	t.transition(StateConnecting, StateStreaming)

	srcColl := source.Collection(req.SourceCollection)
	writer := NewWriter(target.Collection(req.TargetCollection), req.Policy)

	runErr := t.pump(ctx, func(resume Cursor) batchSource {
		return OpenStream(srcColl, req.BatchSize, resume)
	}, writer)

	if errors.Is(runErr, context.DeadlineExceeded) && ctx.Err() != nil {
		runErr = ErrTimeout
	}

	t.transition(StateStreaming, StateCompleting)

	return t.finish(runErr)
}

// batchSource produces batches in stable order. *Stream implements it.
type batchSource interface {
	Next(ctx context.Context) ([]bson.Raw, error)
	Cursor() Cursor
}

// batchWriter applies one batch. *Writer implements it.
type batchWriter interface {
	WriteBatch(ctx context.Context, batch []bson.Raw) BatchResult
}

// openStreamFunc opens a batchSource positioned after resume.
type openStreamFunc func(resume Cursor) batchSource

// pump runs the two pipeline stages until the source is exhausted, the
// context ends, or the stream fails. Per-batch write failures are recorded
// and the pipeline keeps going.
func (t *Transfer) pump(ctx context.Context, open openStreamFunc, w batchWriter) error {
	batches := make(chan []bson.Raw, 1)

	grp, grpCtx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		defer close(batches)

		return t.produce(grpCtx, open, batches)
	})

	grp.Go(func() error {
		t.consume(grpCtx, w, batches)

		return nil
	})

	return grp.Wait()
}

// produce reads pages from the source and hands them to the write stage.
// An expired cursor reopens the stream from its last position, as long as
// the position advanced since the previous reopen.
func (t *Transfer) produce(ctx context.Context, open openStreamFunc, batches chan<- []bson.Raw) error {
	stream := open(Cursor{})

	var lastReopen Cursor
	reopened := false

	for {
		batch, err := stream.Next(ctx)
		if err != nil {
			var streamErr *StreamError
			if errors.As(err, &streamErr) && streamErr.Kind == StreamCursorExpired {
				pos := stream.Cursor()
				if reopened && pos.Equal(lastReopen) {
					return err
				}

				lastReopen, reopened = pos, true
				t.lg.Warn("Source cursor expired, reopening stream")
				stream = open(pos)

				continue
			}

			return err
		}

		if len(batch) == 0 {
			return nil
		}

		t.read.Add(int64(len(batch)))
		metrics.AddDocumentsRead(len(batch))

		select {
		case batches <- batch:
		case <-ctx.Done():
			// read but never attempted
			t.failed.Add(int64(len(batch)))
			metrics.AddDocumentsFailed(len(batch))

			return ctx.Err() //nolint:wrapcheck
		}
	}
}

// consume drains the batch queue. Once ctx ends, queued batches are
// charged as failed without touching the target; the write already in
// flight at that moment keeps its own deadline and finishes on its own.
func (t *Transfer) consume(ctx context.Context, w batchWriter, batches <-chan []bson.Raw) {
	sinceReport := 0
	lastReport := time.Now()

	for batch := range batches {
		if ctx.Err() != nil {
			t.failed.Add(int64(len(batch)))
			metrics.AddDocumentsFailed(len(batch))

			continue
		}

		writeCtx, cancelWrite := context.WithTimeout(
			context.WithoutCancel(ctx), config.BatchWriteTimeout)
		res := w.WriteBatch(writeCtx, batch)
		cancelWrite()

		t.written.Add(res.Written)
		t.skipped.Add(res.Skipped)
		t.failed.Add(res.Failed)

		t.lock.Lock()
		t.resume = Cursor{last: batch[len(batch)-1].Lookup("_id")}
		if res.Err != nil && t.batchErr == nil {
			t.batchErr = res.Err
		}
		t.lock.Unlock()

		sinceReport++
		if sinceReport >= config.ProgressEveryBatches ||
			time.Since(lastReport) >= config.ProgressInterval {
			t.reporter.Progress(t.Progress())
			sinceReport, lastReport = 0, time.Now()
		}
	}
}

// finish moves the transfer to its terminal state, delivers the report
// exactly once and returns it. fatal is a run-level error or nil.
func (t *Transfer) finish(fatal error) (*Report, error) {
	read := t.read.Load()
	written := t.written.Load()
	skipped := t.skipped.Load()
	failed := t.failed.Load()

	progressed := written > 0 || skipped > 0

	var state State
	switch {
	case fatal == nil && failed == 0:
		state = StateSucceeded
	case progressed:
		state = StatePartialFailure
	default:
		state = StateFailed
	}

	t.lock.Lock()
	t.state = state
	reportErr := fatal
	if reportErr == nil {
		reportErr = t.batchErr
	}
	report := &Report{
		State:   state,
		Read:    read,
		Written: written,
		Skipped: skipped,
		Failed:  failed,
		Elapsed: time.Since(t.startTime),
		Resume:  t.resume,
	}
	if reportErr != nil {
		report.Error = reportErr.Error()
	}
	t.lock.Unlock()

	t.doneOnce.Do(func() {
		metrics.IncTransfers(string(state))
		t.reporter.Done(report)
	})

	return report, fatal
}

func (t *Transfer) transition(from, to State) bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.state != from {
		return false
	}
	t.state = to

	return true
}

func (t *Transfer) disconnect(conn *topo.Conn) {
	err := util.CtxWithTimeout(context.Background(), config.DisconnectTimeout, conn.Close)
	if err != nil {
		t.lg.Error(err, "Close connection")
	}
}
