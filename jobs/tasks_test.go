package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasswatch/sasswatch-api/internal/shared"
)

type stubWriter struct {
	logs []shared.AuditLog
	err  error
}

func (s *stubWriter) Record(ctx context.Context, log shared.AuditLog) error {
	if s.err != nil {
		return s.err
	}
	s.logs = append(s.logs, log)
	return nil
}

type resultCounter map[string]int

func (r resultCounter) ObserveAudit(result string) { r[result]++ }

func samplePayload() AuthDecisionPayload {
	return AuthDecisionPayload{
		EventID:  "6b1f3c9e-8a7d-4a52-9d1e-0c3f4b5a6d7e",
		Stage:    "route",
		Outcome:  "deny",
		Reason:   "route_not_permitted",
		UserID:   7,
		Username: "alice",
		Role:     "view",
		Method:   "DELETE",
		Path:     "/calendar/42",
		At:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewAuthDecisionTask(t *testing.T) {
	task, err := NewAuthDecisionTask(samplePayload())
	require.NoError(t, err)
	assert.Equal(t, TaskTypeAuthDecision, task.Type())

	var decoded AuthDecisionPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, samplePayload(), decoded)

	_, err = NewAuthDecisionTask(AuthDecisionPayload{})
	require.Error(t, err)
}

func TestAuthDecisionHandlerWritesAuditLog(t *testing.T) {
	writer := &stubWriter{}
	counts := resultCounter{}
	handler := NewAuthDecisionHandler(writer, nil, counts)

	task, err := NewAuthDecisionTask(samplePayload())
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))

	require.Len(t, writer.logs, 1)
	log := writer.logs[0]
	assert.Equal(t, "auth.route.deny", log.Action)
	assert.Equal(t, "principal", log.Entity)
	assert.Equal(t, "alice", log.EntityID)
	assert.Equal(t, int64(7), log.ActorID)
	assert.Equal(t, "route_not_permitted", log.Meta["reason"])
	assert.Equal(t, 1, counts["written"])
}

func TestAuthDecisionHandlerDuplicateIsSuccess(t *testing.T) {
	counts := resultCounter{}
	handler := NewAuthDecisionHandler(&stubWriter{err: shared.ErrDuplicateAuditEvent}, nil, counts)

	task, err := NewAuthDecisionTask(samplePayload())
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	assert.Equal(t, 1, counts["duplicate"])
}

func TestAuthDecisionHandlerErrors(t *testing.T) {
	handler := NewAuthDecisionHandler(&stubWriter{err: errors.New("pool closed")}, nil, nil)
	task, err := NewAuthDecisionTask(samplePayload())
	require.NoError(t, err)
	require.Error(t, handler(context.Background(), task))

	bad := asynq.NewTask(TaskTypeAuthDecision, []byte("{"))
	err = handler(context.Background(), bad)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
