package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sasswatch/sasswatch-api/internal/shared"
)

const (
	// QueueAudit carries auth decision records.
	QueueAudit = "audit"
	// TaskTypeAuthDecision is the task type for one allow/deny verdict.
	TaskTypeAuthDecision = "auth:decision"
)

// AuthDecisionPayload describes one verdict of the request pipeline.
type AuthDecisionPayload struct {
	EventID    string    `json:"event_id"`
	Stage      string    `json:"stage"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason"`
	UserID     int64     `json:"user_id,omitempty"`
	Username   string    `json:"username,omitempty"`
	Role       string    `json:"role,omitempty"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	At         time.Time `json:"at"`
}

// NewAuthDecisionTask constructs an Asynq task. The event id doubles as the
// task id so a retried enqueue is not duplicated.
func NewAuthDecisionTask(payload AuthDecisionPayload) (*asynq.Task, error) {
	if payload.EventID == "" {
		return nil, errors.New("jobs: auth decision requires event id")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuthDecision, data,
		asynq.TaskID(payload.EventID),
		asynq.Queue(QueueAudit),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	), nil
}

// AuditWriter persists audit entries. *shared.AuditLogger implements it.
type AuditWriter interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ResultObserver counts task outcomes.
type ResultObserver interface {
	ObserveAudit(result string)
}

// NewAuthDecisionHandler returns the handler that writes decisions into
// audit_logs.
func NewAuthDecisionHandler(writer AuditWriter, logger *slog.Logger, metrics ResultObserver) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	observe := func(result string) {
		if metrics != nil {
			metrics.ObserveAudit(result)
		}
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuthDecisionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Error("auth decision payload", slog.Any("error", err))
			return fmt.Errorf("decode auth decision: %w", asynq.SkipRetry)
		}
		entityID := payload.Username
		if entityID == "" {
			entityID = "anonymous"
		}
		err := writer.Record(ctx, shared.AuditLog{
			EventID:  payload.EventID,
			ActorID:  payload.UserID,
			Action:   "auth." + payload.Stage + "." + payload.Outcome,
			Entity:   "principal",
			EntityID: entityID,
			Meta: map[string]any{
				"role":        payload.Role,
				"reason":      payload.Reason,
				"method":      payload.Method,
				"path":        payload.Path,
				"remote_addr": payload.RemoteAddr,
				"request_id":  payload.RequestID,
			},
			At: payload.At,
		})
		switch {
		case errors.Is(err, shared.ErrDuplicateAuditEvent):
			observe("duplicate")
			return nil
		case err != nil:
			observe("write_failed")
			logger.Warn("write auth decision", slog.String("event_id", payload.EventID), slog.Any("error", err))
			return err
		}
		observe("written")
		return nil
	}
}
