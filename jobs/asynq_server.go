package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Worker wraps the Asynq server.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if len(cfg.Handlers) == 0 {
		return nil, errors.New("worker: no task handlers")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueAudit: 1,
		},
		Logger: asynqLogger{logger: cfg.Logger},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			return nil, fmt.Errorf("worker: incomplete handler %q", h.Type)
		}
		mux.HandleFunc(h.Type, h.Handler)
	}
	return &Worker{server: srv, mux: mux, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts), inspector: asynq.NewInspector(redisOpts)}
}

// EnqueueAuthDecision enqueues an auth decision task. An event id already
// queued is not an error.
func (c *Client) EnqueueAuthDecision(ctx context.Context, payload AuthDecisionPayload) error {
	task, err := NewAuthDecisionTask(payload)
	if err != nil {
		return err
	}
	if _, err := c.client.EnqueueContext(ctx, task); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}
	return nil
}

// Pending reports the backlog of the audit queue. A queue nobody has
// written to yet counts as empty.
func (c *Client) Pending() (int, error) {
	info, err := c.inspector.GetQueueInfo(QueueAudit)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return info.Pending, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

// asynqLogger routes asynq's internal logging to slog.
type asynqLogger struct {
	logger *slog.Logger
}

func (l asynqLogger) log(level slog.Level, args ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Log(context.Background(), level, fmt.Sprint(args...), slog.String("component", "asynq"))
}

func (l asynqLogger) Debug(args ...any) { l.log(slog.LevelDebug, args...) }
func (l asynqLogger) Info(args ...any)  { l.log(slog.LevelInfo, args...) }
func (l asynqLogger) Warn(args ...any)  { l.log(slog.LevelWarn, args...) }
func (l asynqLogger) Error(args ...any) { l.log(slog.LevelError, args...) }
func (l asynqLogger) Fatal(args ...any) { l.log(slog.LevelError, args...) }
