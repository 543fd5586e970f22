package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/alfredjeanlab/taskdeps/internal/store/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// mockDestination records calls to Write.
type mockDestination struct {
	name   string
	err    error
	writes atomic.Int64
	last   atomic.Value // []byte
}

func (d *mockDestination) Name() string { return d.name }

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	cp := make([]byte, len(data))
	copy(cp, data)
	d.last.Store(cp)
	return d.err
}

func TestSchedulerStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dest := &mockDestination{name: "mock"}
	sched := NewScheduler(seedStore(t), []Destination{dest}, 50*time.Millisecond, discard)
	sched.Start()

	// Wait for at least the initial export + one tick.
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	if writes := dest.writes.Load(); writes < 2 {
		t.Fatalf("expected at least 2 writes, got %d", writes)
	}
	data, ok := dest.last.Load().([]byte)
	if !ok || len(data) == 0 {
		t.Fatal("expected non-empty data")
	}
	if lines := nonEmptyLines(string(data)); len(lines) != 6 {
		t.Fatalf("expected 6 lines, got %d", len(lines))
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(memory.New(), nil, time.Minute, nil)
	// Stop without Start should not panic.
	sched.Stop()
}

func TestSchedulerRunOnce_DestinationFailure(t *testing.T) {
	bad := &mockDestination{name: "bad", err: errors.New("unavailable")}
	good := &mockDestination{name: "good"}
	sched := NewScheduler(seedStore(t), []Destination{bad, good}, time.Minute, discard)

	sched.RunOnce(context.Background())

	if bad.writes.Load() != 1 || good.writes.Load() != 1 {
		t.Fatalf("writes = bad %d, good %d; want 1 each", bad.writes.Load(), good.writes.Load())
	}
}

func TestSchedulerRunOnce_ExportFailure(t *testing.T) {
	dest := &mockDestination{name: "mock"}
	src := &failingSource{Store: seedStore(t), failOn: "projects"}
	sched := NewScheduler(src, []Destination{dest}, time.Minute, discard)

	sched.RunOnce(context.Background())

	if n := dest.writes.Load(); n != 0 {
		t.Fatalf("expected no writes after export failure, got %d", n)
	}
}
