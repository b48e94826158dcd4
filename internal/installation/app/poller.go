package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relicta-tech/installkit/internal/installation/domain"
	"github.com/relicta-tech/installkit/internal/installation/ports"
	"github.com/relicta-tech/installkit/internal/observability"
)

// DefaultPollInterval is the wait between two task status fetches.
const DefaultPollInterval = 10 * time.Second

// TaskCheckResult is the terminal result of polling a task entry.
type TaskCheckResult struct {
	Status  domain.TaskStatus
	Message string
}

// PollerOption configures a TaskStatusPoller.
type PollerOption func(*TaskStatusPoller)

// WithPollInterval sets the wait between fetches.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *TaskStatusPoller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithPollerLogger sets the logger.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *TaskStatusPoller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPollerMetrics sets the metrics sink.
func WithPollerMetrics(m *observability.Metrics) PollerOption {
	return func(p *TaskStatusPoller) {
		p.metrics = m
	}
}

// TaskStatusPoller follows one task entry until it reaches a terminal status.
// Every instance owns its own stop switch; stopping one poller never affects
// another.
type TaskStatusPoller struct {
	checker  ports.TaskStatusChecker
	interval time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics

	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewTaskStatusPoller creates a poller over checker.
func NewTaskStatusPoller(checker ports.TaskStatusChecker, opts ...PollerOption) *TaskStatusPoller {
	p := &TaskStatusPoller{
		checker:  checker,
		interval: DefaultPollInterval,
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check fetches the task until the entry for targetUID succeeds or fails.
//
// Running and pending entries are fetched again after the poll interval,
// without any overall deadline. A task without an entry for the target is a
// failure. Once Stop has been called no further fetch is issued and Check
// returns a success. Transport errors and context cancellation are returned
// as errors.
func (p *TaskStatusPoller) Check(ctx context.Context, taskID, targetUID string) (TaskCheckResult, error) {
	ctx, span := observability.StartSpan(ctx, "task.poll",
		observability.AttrTaskID, taskID,
		observability.AttrUniqueIdentifier, targetUID,
	)
	defer span.End()

	for attempt := 1; ; attempt++ {
		if p.stopped.Load() {
			return stoppedResult(), nil
		}

		snapshot, err := p.checker.CheckTask(ctx, taskID)
		if p.stopped.Load() {
			return stoppedResult(), nil
		}
		if err != nil {
			p.metrics.RecordTaskPoll("error")
			span.RecordError(err)
			return TaskCheckResult{}, fmt.Errorf("check task %s: %w", taskID, err)
		}

		entry, ok := snapshot.Entry(targetUID)
		if !ok {
			p.metrics.RecordTaskPoll("not_found")
			span.SetStatus(observability.SpanStatusError, MessageTargetNotFound)
			return TaskCheckResult{Status: domain.TaskFailed, Message: MessageTargetNotFound}, nil
		}
		p.metrics.RecordTaskPoll(string(entry.Status))

		switch entry.Status {
		case domain.TaskRunning, domain.TaskPending:
			p.logger.Debug("task still running", "task_id", taskID, "attempt", attempt, "retry_in", p.interval)
			if err := p.wait(ctx); err != nil {
				return TaskCheckResult{}, err
			}
		case domain.TaskFailed:
			span.SetStatus(observability.SpanStatusError, entry.Message)
			return TaskCheckResult{Status: domain.TaskFailed, Message: entry.Message}, nil
		default:
			span.SetStatus(observability.SpanStatusOK, "")
			return TaskCheckResult{Status: domain.TaskSuccess}, nil
		}
	}
}

// wait sleeps for the poll interval, waking early on Stop or cancellation.
func (p *TaskStatusPoller) wait(ctx context.Context) error {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-p.stopCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop makes the current and every later Check return a success without
// fetching again. It is safe to call more than once.
func (p *TaskStatusPoller) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		close(p.stopCh)
	})
}

// Stopped reports whether Stop has been called.
func (p *TaskStatusPoller) Stopped() bool {
	return p.stopped.Load()
}

func stoppedResult() TaskCheckResult {
	return TaskCheckResult{Status: domain.TaskSuccess}
}
