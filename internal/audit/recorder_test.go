package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasswatch/sasswatch-api/internal/auth"
	"github.com/sasswatch/sasswatch-api/jobs"
)

type stubQueue struct {
	mu       sync.Mutex
	payloads []jobs.AuthDecisionPayload
	err      error
	block    chan struct{}
}

func (s *stubQueue) EnqueueAuthDecision(ctx context.Context, payload jobs.AuthDecisionPayload) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *stubQueue) delivered() []jobs.AuthDecisionPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]jobs.AuthDecisionPayload(nil), s.payloads...)
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{counts: map[string]int{}}
}

func (c *countingMetrics) ObserveAudit(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[result]++
}

func (c *countingMetrics) get(result string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[result]
}

func decision() auth.Decision {
	return auth.Decision{
		Stage:    auth.StageAuthenticate,
		Outcome:  "deny",
		Reason:   "bad_secret",
		Username: "alice",
		Role:     "edit",
		Method:   "GET",
		Path:     "/calendar/1",
		At:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// flushed runs rec with an already cancelled context so every buffered
// decision is delivered before it returns.
func flushed(rec *Recorder) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Run(ctx)
}

func TestRecordDecisionDeliversInBackground(t *testing.T) {
	queue := &stubQueue{}
	metrics := newCountingMetrics()
	rec := newRecorder(queue, metrics, nil, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Run(ctx)
	}()

	require.NoError(t, rec.RecordDecision(context.Background(), decision()))
	require.NoError(t, rec.RecordDecision(context.Background(), decision()))

	require.Eventually(t, func() bool { return len(queue.delivered()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	payloads := queue.delivered()
	first := payloads[0]
	assert.Equal(t, "alice", first.Username)
	assert.Equal(t, "bad_secret", first.Reason)
	assert.Len(t, first.EventID, 36)
	assert.NotEqual(t, first.EventID, payloads[1].EventID)
	assert.Equal(t, 2, metrics.get("enqueued"))
}

func TestRecordDecisionDoesNotWaitOnQueue(t *testing.T) {
	queue := &stubQueue{block: make(chan struct{})}
	metrics := newCountingMetrics()
	rec := newRecorder(queue, metrics, nil, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		rec.Run(ctx)
	}()

	// The first decision is taken by Run and stalls in the queue; the next
	// two fill the buffer and the fourth is dropped, all without blocking.
	require.NoError(t, rec.RecordDecision(context.Background(), decision()))
	require.Eventually(t, func() bool { return rec.Buffered() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, rec.RecordDecision(context.Background(), decision()))
	require.NoError(t, rec.RecordDecision(context.Background(), decision()))
	require.ErrorIs(t, rec.RecordDecision(context.Background(), decision()), ErrBufferFull)
	assert.Equal(t, 1, metrics.get("dropped"))

	cancel()
	close(queue.block)
	<-done
	assert.Len(t, queue.delivered(), 3)
	assert.Equal(t, 3, metrics.get("enqueued"))
}

func TestRunFlushesBufferedDecisionsOnShutdown(t *testing.T) {
	queue := &stubQueue{}
	rec := newRecorder(queue, nil, nil, 4)

	for range 3 {
		require.NoError(t, rec.RecordDecision(context.Background(), decision()))
	}
	assert.Equal(t, 3, rec.Buffered())

	flushed(rec)
	assert.Len(t, queue.delivered(), 3)
	assert.Zero(t, rec.Buffered())
}

func TestRunDropsWhatTheFlushDeadlineLeaves(t *testing.T) {
	metrics := newCountingMetrics()
	rec := newRecorder(&stubQueue{}, metrics, nil, 4)
	rec.flushTimeout = -time.Second

	require.NoError(t, rec.RecordDecision(context.Background(), decision()))
	require.NoError(t, rec.RecordDecision(context.Background(), decision()))

	flushed(rec)
	assert.Equal(t, 2, metrics.get("dropped"))
	assert.Zero(t, metrics.get("enqueued"))
}

func TestRunCountsEnqueueFailure(t *testing.T) {
	metrics := newCountingMetrics()
	rec := newRecorder(&stubQueue{err: errors.New("redis down")}, metrics, nil, 4)

	require.NoError(t, rec.RecordDecision(context.Background(), decision()))
	flushed(rec)
	assert.Equal(t, 1, metrics.get("enqueue_failed"))
}

func TestRecordDecisionWithRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := jobs.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	metrics := newCountingMetrics()
	rec := newRecorder(client, metrics, nil, 4)
	rec.newID = func() string { return "00000000-0000-0000-0000-000000000001" }

	require.NoError(t, rec.RecordDecision(context.Background(), decision()))
	flushed(rec)
	assert.True(t, mr.Exists("asynq:{audit}:t:00000000-0000-0000-0000-000000000001"))

	require.NoError(t, rec.RecordDecision(context.Background(), decision()))
	flushed(rec)
	assert.Equal(t, 2, metrics.get("enqueued"), "replayed event id is ignored")
	assert.Zero(t, metrics.get("enqueue_failed"))
}
