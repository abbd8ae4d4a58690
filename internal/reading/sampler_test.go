package reading

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSamplerRecordsWhileCheckPasses(t *testing.T) {
	var recorded atomic.Int32
	s := NewSampler(time.Millisecond,
		func() bool { return true },
		func() { recorded.Add(1) },
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sampler did not stop on context cancel")
	}
	if recorded.Load() == 0 {
		t.Fatalf("expected at least one recorded sample")
	}
}

func TestSamplerStopsWhenCheckFails(t *testing.T) {
	var recorded atomic.Int32
	var ticks atomic.Int32
	s := NewSampler(time.Millisecond,
		func() bool { return ticks.Add(1) <= 2 },
		func() { recorded.Add(1) },
	)
	done := make(chan struct{})
	go func() { s.Run(context.Background()); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sampler did not stop after check failed")
	}
	if recorded.Load() != 2 {
		t.Fatalf("expected 2 samples before the check failed, got %d", recorded.Load())
	}
}

func TestSamplerDefaultsInterval(t *testing.T) {
	s := NewSampler(0, func() bool { return true }, func() {})
	if s.interval != time.Minute {
		t.Fatalf("expected one-minute default interval, got %v", s.interval)
	}
}
