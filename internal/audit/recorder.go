// Package audit ships auth decisions to the background audit trail.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sasswatch/sasswatch-api/internal/auth"
	"github.com/sasswatch/sasswatch-api/jobs"
)

const (
	// DefaultEnqueueTimeout bounds one delivery to the queue.
	DefaultEnqueueTimeout = 500 * time.Millisecond
	// DefaultBuffer is the number of decisions held in memory awaiting
	// delivery.
	DefaultBuffer = 1024
	// DefaultFlushTimeout bounds the delivery of buffered decisions on
	// shutdown.
	DefaultFlushTimeout = 5 * time.Second
)

// ErrBufferFull reports a decision dropped because delivery is behind.
var ErrBufferFull = errors.New("audit: buffer full, decision dropped")

// Enqueuer submits decision tasks. *jobs.Client implements it.
type Enqueuer interface {
	EnqueueAuthDecision(ctx context.Context, payload jobs.AuthDecisionPayload) error
}

// Recorder turns auth decisions into queued audit tasks. RecordDecision only
// buffers; Run delivers.
type Recorder struct {
	queue        Enqueuer
	metrics      jobs.ResultObserver
	logger       *slog.Logger
	timeout      time.Duration
	flushTimeout time.Duration
	newID        func() string
	pending      chan jobs.AuthDecisionPayload
}

// NewRecorder builds a Recorder holding up to DefaultBuffer decisions.
// metrics may be nil.
func NewRecorder(queue Enqueuer, metrics jobs.ResultObserver, logger *slog.Logger) *Recorder {
	return newRecorder(queue, metrics, logger, DefaultBuffer)
}

func newRecorder(queue Enqueuer, metrics jobs.ResultObserver, logger *slog.Logger, size int) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{
		queue:        queue,
		metrics:      metrics,
		logger:       logger,
		timeout:      DefaultEnqueueTimeout,
		flushTimeout: DefaultFlushTimeout,
		newID:        func() string { return uuid.NewString() },
		pending:      make(chan jobs.AuthDecisionPayload, size),
	}
}

// RecordDecision buffers d under a fresh event id without waiting on the
// queue. When the buffer is full d is dropped and ErrBufferFull returned.
func (r *Recorder) RecordDecision(ctx context.Context, d auth.Decision) error {
	payload := jobs.AuthDecisionPayload{
		EventID:    r.newID(),
		Stage:      d.Stage,
		Outcome:    d.Outcome,
		Reason:     d.Reason,
		UserID:     d.UserID,
		Username:   d.Username,
		Role:       d.Role,
		Method:     d.Method,
		Path:       d.Path,
		RemoteAddr: d.RemoteAddr,
		RequestID:  d.RequestID,
		At:         d.At,
	}
	select {
	case r.pending <- payload:
		return nil
	default:
		r.observe("dropped")
		return ErrBufferFull
	}
}

// Buffered reports the number of decisions awaiting delivery.
func (r *Recorder) Buffered() int {
	return len(r.pending)
}

// Run delivers buffered decisions until ctx is done, then flushes what is
// left within DefaultFlushTimeout. Decisions still buffered after that are
// counted as dropped.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case payload := <-r.pending:
			r.deliver(context.WithoutCancel(ctx), payload)
		case <-ctx.Done():
			r.flush(context.WithoutCancel(ctx))
			return
		}
	}
}

func (r *Recorder) flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.flushTimeout)
	defer cancel()
	for {
		select {
		case payload := <-r.pending:
			if ctx.Err() != nil {
				r.observe("dropped")
				continue
			}
			r.deliver(ctx, payload)
		default:
			return
		}
	}
}

func (r *Recorder) deliver(ctx context.Context, payload jobs.AuthDecisionPayload) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.queue.EnqueueAuthDecision(ctx, payload); err != nil {
		r.observe("enqueue_failed")
		r.logger.WarnContext(ctx, "auth decision not queued",
			slog.String("event_id", payload.EventID),
			slog.String("stage", payload.Stage),
			slog.Any("error", err))
		return
	}
	r.observe("enqueued")
	r.logger.DebugContext(ctx, "auth decision queued", slog.String("event_id", payload.EventID), slog.String("stage", payload.Stage))
}

func (r *Recorder) observe(result string) {
	if r.metrics != nil {
		r.metrics.ObserveAudit(result)
	}
}
