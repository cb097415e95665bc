package transfer

import (
	"time"

	"github.com/Johndevils/Mongodb-bot/log"
)

// State is a phase of a transfer's lifecycle. Transitions are strictly
// forward: a terminal state is never left.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateCompleting State = "completing"

	StateSucceeded      State = "succeeded"
	StatePartialFailure State = "partialFailure"
	StateFailed         State = "failed"
)

// IsTerminal reports whether s is one of the three final states.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StatePartialFailure, StateFailed:
		return true
	}

	return false
}

// Progress is a point-in-time snapshot of a running transfer. At every
// snapshot Read == Written + Skipped + Failed + documents still in flight.
type Progress struct {
	State   State         `json:"state"`
	Read    int64         `json:"read"`
	Written int64         `json:"written"`
	Skipped int64         `json:"skipped"`
	Failed  int64         `json:"failed"`
	Elapsed time.Duration `json:"elapsed"`
}

// Report is the terminal outcome of a transfer. Read always equals
// Written + Skipped + Failed.
type Report struct {
	State    State         `json:"state"`
	Read     int64         `json:"read"`
	Written  int64         `json:"written"`
	Skipped  int64         `json:"skipped"`
	Failed   int64         `json:"failed"`
	Elapsed  time.Duration `json:"elapsed"`
	Error    string        `json:"error,omitempty"`

	// Resume is the position of the last document handed to the writer.
	// A rerun of the same request from this position picks up where this
	// transfer stopped.
	Resume Cursor `json:"-"`
}

// ProgressReporter receives periodic progress snapshots and, exactly once,
// the terminal report. Implementations must not block for long: delivery
// happens on the transfer's own goroutine.
type ProgressReporter interface {
	Progress(p Progress)
	Done(r *Report)
}

// LogReporter writes progress and the terminal report to the log.
type LogReporter struct {
	lg log.Logger
}

func NewLogReporter() *LogReporter {
	return &LogReporter{lg: log.New("transfer")}
}

func (r *LogReporter) Progress(p Progress) {
	r.lg.With(
		log.Int64("read", p.Read),
		log.Int64("written", p.Written),
		log.Int64("skipped", p.Skipped),
		log.Int64("failed", p.Failed),
		log.Elapsed(p.Elapsed),
	).Info("Transfer in progress")
}

func (r *LogReporter) Done(rep *Report) {
	lg := r.lg.With(
		log.Str("state", string(rep.State)),
		log.Int64("read", rep.Read),
		log.Int64("written", rep.Written),
		log.Int64("skipped", rep.Skipped),
		log.Int64("failed", rep.Failed),
		log.Elapsed(rep.Elapsed),
	)

	switch rep.State {
	case StateSucceeded:
		lg.Info("Transfer finished")
	default:
		lg.Warnf("Transfer finished with state %s: %s", rep.State, rep.Error)
	}
}

// MultiReporter fans events out to several reporters in order.
type MultiReporter []ProgressReporter

func (m MultiReporter) Progress(p Progress) {
	for _, r := range m {
		r.Progress(p)
	}
}

func (m MultiReporter) Done(rep *Report) {
	for _, r := range m {
		r.Done(rep)
	}
}
