package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestEveryRunsJob(t *testing.T) {
	s := New(context.Background(), nil)

	ran := make(chan struct{}, 4)
	if _, err := s.Every("tick", time.Second, func(ctx context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Every: %v", err)
	}
	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestEveryRejectsSubSecond(t *testing.T) {
	s := New(context.Background(), nil)
	if _, err := s.Every("fast", 100*time.Millisecond, func(context.Context) {}); err == nil {
		t.Fatal("expected error for sub-second interval")
	}
}

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(context.Background(), nil)
	if _, err := s.Add("bad", "not a spec", func(context.Context) {}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSkipsOverlappingRuns(t *testing.T) {
	s := New(context.Background(), nil)

	var running, maxRunning, runs int32
	release := make(chan struct{})
	if _, err := s.Every("slow", time.Second, func(ctx context.Context) {
		n := atomic.AddInt32(&running, 1)
		if n > atomic.LoadInt32(&maxRunning) {
			atomic.StoreInt32(&maxRunning, n)
		}
		atomic.AddInt32(&runs, 1)
		<-release
		atomic.AddInt32(&running, -1)
	}); err != nil {
		t.Fatalf("Every: %v", err)
	}
	s.Start()

	time.Sleep(2500 * time.Millisecond)
	close(release)
	s.Stop()

	if got := atomic.LoadInt32(&maxRunning); got != 1 {
		t.Fatalf("max concurrent runs = %d, want 1", got)
	}
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
}

func TestCancelledContextSkipsJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(ctx, nil)

	var runs int32
	if _, err := s.Every("noop", time.Second, func(context.Context) { atomic.AddInt32(&runs, 1) }); err != nil {
		t.Fatalf("Every: %v", err)
	}
	s.Start()
	time.Sleep(1500 * time.Millisecond)
	s.Stop()

	if atomic.LoadInt32(&runs) != 0 {
		t.Fatal("job ran after context was cancelled")
	}
}
