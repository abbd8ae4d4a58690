package reading

import (
	"context"
	"log/slog"
	"time"
)

// Sampler drives the fixed-interval activity sampling loop: one sample
// per tick while the session check passes. It stops itself when the
// check fails (logout, viewer gone) or the context ends.
type Sampler struct {
	interval time.Duration
	check    func() bool
	record   func()
}

// NewSampler builds a sampler. A non-positive interval defaults to one
// minute, the tracking granularity.
func NewSampler(interval time.Duration, check func() bool, record func()) *Sampler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sampler{interval: interval, check: check, record: record}
}

// Run blocks until the sampler stops. Call it on its own goroutine.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.check() {
				slog.Debug("activity sampler stopping, session no longer valid")
				return
			}
			s.record()
		}
	}
}
