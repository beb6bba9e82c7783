package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"callqa/internal/metrics"
)

type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	// TaskCancelled marks work dropped by a shutdown before it started.
	TaskCancelled TaskState = "cancelled"
)

// Task is the observable record of one queued analysis run.
type Task struct {
	CallID     string     `json:"callId"`
	State      TaskState  `json:"state"`
	Error      string     `json:"error,omitempty"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

var (
	ErrQueueFull        = errors.New("calls: analysis queue full")
	ErrDispatcherClosed = errors.New("calls: analysis dispatcher closed")
)

// Runner executes the work for one call.
type Runner func(ctx context.Context, callID string) error

type DispatcherConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds a single run.
	Timeout time.Duration
}

// Dispatcher hands analysis off from the ingestion path to a bounded worker
// pool. Each call has at most one pending task; its latest state stays
// queryable after completion.
type Dispatcher struct {
	run     Runner
	cfg     DispatcherConfig
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	closed  bool
	queue   chan string
	tasks   map[string]*Task
	pending sync.WaitGroup
	workers sync.WaitGroup
}

func NewDispatcher(run Runner, cfg DispatcherConfig, log *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		run:     run,
		cfg:     cfg,
		log:     log.With("component", "analysis_dispatcher"),
		metrics: m,
		now:     time.Now,
		baseCtx: ctx,
		cancel:  cancel,
		queue:   make(chan string, cfg.QueueSize),
		tasks:   map[string]*Task{},
	}
	for i := 0; i < cfg.Workers; i++ {
		d.workers.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue schedules a run for callID. A call already queued or running is
// not scheduled twice.
func (d *Dispatcher) Enqueue(callID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if t, ok := d.tasks[callID]; ok && (t.State == TaskQueued || t.State == TaskRunning) {
		return nil
	}

	d.pending.Add(1)
	select {
	case d.queue <- callID:
	default:
		d.pending.Done()
		return ErrQueueFull
	}
	d.tasks[callID] = &Task{CallID: callID, State: TaskQueued, EnqueuedAt: d.now().UTC()}
	d.metrics.QueueDepth(len(d.queue))
	return nil
}

// Task returns a snapshot of the latest task for callID.
func (d *Dispatcher) Task(callID string) (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[callID]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Wait blocks until every enqueued task has finished.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// Close stops accepting work and drains the queue. If ctx ends first,
// in-flight runs are cancelled and tasks not yet started are skipped.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.workers.Done()
	for callID := range d.queue {
		d.metrics.QueueDepth(len(d.queue))
		d.process(callID)
	}
}

func (d *Dispatcher) process(callID string) {
	defer d.pending.Done()

	// Past a shutdown deadline the call keeps its status for a manual rerun.
	if d.baseCtx.Err() != nil {
		finished := d.now().UTC()
		d.update(callID, func(t *Task) {
			t.State = TaskCancelled
			t.Error = "dispatcher shut down before the run started"
			t.FinishedAt = &finished
		})
		d.log.Warn("analysis task skipped on shutdown", "call_id", callID)
		return
	}

	started := d.now().UTC()
	d.update(callID, func(t *Task) {
		t.State = TaskRunning
		t.StartedAt = &started
	})

	ctx := d.baseCtx
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	err := d.safeRun(ctx, callID)
	finished := d.now().UTC()
	d.update(callID, func(t *Task) {
		t.FinishedAt = &finished
		if err != nil {
			t.State = TaskFailed
			t.Error = err.Error()
			return
		}
		t.State = TaskSucceeded
	})
	if err != nil {
		d.log.Warn("analysis task failed", "call_id", callID, "err", err)
		return
	}
	d.log.Info("analysis task finished", "call_id", callID, "duration_ms", finished.Sub(started).Milliseconds())
}

func (d *Dispatcher) safeRun(ctx context.Context, callID string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("calls: analysis task panicked: %v", p)
		}
	}()
	return d.run(ctx, callID)
}

func (d *Dispatcher) update(callID string, fn func(t *Task)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tasks[callID]; ok {
		fn(t)
	}
}
