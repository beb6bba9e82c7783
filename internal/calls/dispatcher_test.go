package calls

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"callqa/pkg/logger"
)

func quietLog() *slog.Logger { return logger.NewWithWriter("test", io.Discard) }

func TestDispatcher_RunsAndRecordsTasks(t *testing.T) {
	var ran atomic.Int32
	d := NewDispatcher(func(_ context.Context, callID string) error {
		ran.Add(1)
		if callID == "bad" {
			return errors.New("boom")
		}
		return nil
	}, DispatcherConfig{Workers: 2, QueueSize: 4}, quietLog(), nil)
	defer d.Close(context.Background())

	if err := d.Enqueue("good"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := d.Enqueue("bad"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	d.Wait()

	if ran.Load() != 2 {
		t.Fatalf("expected 2 runs, got %d", ran.Load())
	}
	good, ok := d.Task("good")
	if !ok || good.State != TaskSucceeded || good.StartedAt == nil || good.FinishedAt == nil {
		t.Fatalf("unexpected good task: %+v", good)
	}
	bad, _ := d.Task("bad")
	if bad.State != TaskFailed || bad.Error != "boom" {
		t.Fatalf("unexpected bad task: %+v", bad)
	}
	if _, ok := d.Task("missing"); ok {
		t.Fatalf("expected no task for unknown call")
	}
}

func TestDispatcher_DedupesPendingCall(t *testing.T) {
	release := make(chan struct{})
	var ran atomic.Int32
	d := NewDispatcher(func(context.Context, string) error {
		ran.Add(1)
		<-release
		return nil
	}, DispatcherConfig{Workers: 1, QueueSize: 4}, quietLog(), nil)
	defer d.Close(context.Background())

	for i := 0; i < 3; i++ {
		if err := d.Enqueue("c1"); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	close(release)
	d.Wait()
	if ran.Load() != 1 {
		t.Fatalf("expected one run for a pending call, got %d", ran.Load())
	}

	// A finished call may be scheduled again.
	if err := d.Enqueue("c1"); err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	d.Wait()
	if ran.Load() != 2 {
		t.Fatalf("expected a second run, got %d", ran.Load())
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d := NewDispatcher(func(context.Context, string) error {
		started <- struct{}{}
		<-block
		return nil
	}, DispatcherConfig{Workers: 1, QueueSize: 1}, quietLog(), nil)
	defer d.Close(context.Background())

	if err := d.Enqueue("a"); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	<-started
	if err := d.Enqueue("b"); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}
	if err := d.Enqueue("c"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if _, ok := d.Task("c"); ok {
		t.Fatalf("rejected call must not have a task")
	}
	close(block)
	d.Wait()
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	d := NewDispatcher(func(context.Context, string) error {
		panic("analyzer exploded")
	}, DispatcherConfig{Workers: 1}, quietLog(), nil)
	defer d.Close(context.Background())

	if err := d.Enqueue("p"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	d.Wait()
	task, _ := d.Task("p")
	if task.State != TaskFailed {
		t.Fatalf("expected failed task after panic, got %+v", task)
	}
}

func TestDispatcher_TimeoutCancelsRun(t *testing.T) {
	d := NewDispatcher(func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}, DispatcherConfig{Workers: 1, Timeout: 20 * time.Millisecond}, quietLog(), nil)
	defer d.Close(context.Background())

	if err := d.Enqueue("slow"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	d.Wait()
	task, _ := d.Task("slow")
	if task.State != TaskFailed {
		t.Fatalf("expected timeout failure, got %+v", task)
	}
}

func TestDispatcher_CloseDrainsAndRejects(t *testing.T) {
	var mu sync.Mutex
	var done []string
	d := NewDispatcher(func(_ context.Context, callID string) error {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		done = append(done, callID)
		mu.Unlock()
		return nil
	}, DispatcherConfig{Workers: 1, QueueSize: 8}, quietLog(), nil)

	for _, id := range []string{"a", "b", "c"} {
		if err := d.Enqueue(id); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	mu.Lock()
	n := len(done)
	mu.Unlock()
	if n != 3 {
		t.Fatalf("expected queued work drained, got %d", n)
	}
	if err := d.Enqueue("late"); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed, got %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestDispatcher_CloseTimeoutSkipsUnstarted(t *testing.T) {
	started := make(chan struct{})
	var mu sync.Mutex
	var ran []string
	d := NewDispatcher(func(ctx context.Context, callID string) error {
		mu.Lock()
		ran = append(ran, callID)
		mu.Unlock()
		if callID == "a" {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}, DispatcherConfig{Workers: 1, QueueSize: 4}, quietLog(), nil)

	if err := d.Enqueue("a"); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	<-started
	if err := d.Enqueue("b"); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := d.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 1 || ran[0] != "a" {
		t.Fatalf("expected only the in-flight run, got %v", ran)
	}
	b, ok := d.Task("b")
	if !ok || b.State != TaskCancelled || b.StartedAt != nil {
		t.Fatalf("expected b skipped, got %+v", b)
	}
	a, _ := d.Task("a")
	if a.State != TaskFailed {
		t.Fatalf("expected in-flight run cancelled as failed, got %+v", a)
	}
}
