package runtime

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/flotalk/flotalk"
)

// Scheduler serializes access to one flotalk.Context behind an asymmetric
// read/write queue: many readers may inspect state concurrently, but a
// writer waits for every outstanding reader to finish first, per spec.md
// section 4.9 and 5. golang.org/x/sync/semaphore's Weighted gives exactly
// this shape for free: a reader acquires weight 1, a writer acquires the
// full capacity, so the last reader to release is what lets a blocked
// writer proceed.
type Scheduler struct {
	ctx   *flotalk.Context
	sem   *semaphore.Weighted
	slots int64
}

// NewScheduler creates a Scheduler owning ctx, with cfg.ReaderSlots
// concurrent readers permitted between writes.
func NewScheduler(ctx *flotalk.Context, cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	slots := int64(cfg.ReaderSlots)
	if slots <= 0 {
		slots = DefaultReaderSlots
	}
	return &Scheduler{ctx: ctx, sem: semaphore.NewWeighted(slots), slots: slots}
}

// Read runs fn with read-only access to the Context: it may run
// concurrently with other reads, but never while a write is in progress.
func (s *Scheduler) Read(fn func(*flotalk.Context)) {
	_ = s.sem.Acquire(context.Background(), 1)
	defer s.sem.Release(1)
	fn(s.ctx)
}

// Write runs fn with exclusive access to the Context, waiting for every
// outstanding reader to release first.
func (s *Scheduler) Write(fn func(*flotalk.Context)) {
	_ = s.sem.Acquire(context.Background(), s.slots)
	defer s.sem.Release(s.slots)
	fn(s.ctx)
}

func (s *Scheduler) step(fn flotalk.SoonFunc) flotalk.Continuation {
	var c flotalk.Continuation
	s.Write(func(ctx *flotalk.Context) {
		c = fn(ctx)
	})
	return c
}

// Drive runs start with exclusive Context access to produce an initial
// continuation, then steps it to completion: a Soon continuation runs
// under the same exclusive access as start, and a Later continuation is
// awaited with no lock held, so other reads and other Drive calls' Soon
// steps may proceed meanwhile. There is exactly one active continuation
// per Drive call, matching spec.md section 4.9's "the scheduler steps a
// Continuation ... exactly one active continuation per run call."
func (s *Scheduler) Drive(start func(ctx *flotalk.Context) flotalk.Continuation) flotalk.Value {
	c := s.step(start)
	for {
		if v, ok := c.ReadyValue(); ok {
			return v
		}
		if fn, ok := c.RunSoon(); ok {
			c = s.step(fn)
			continue
		}
		future, _ := c.Awaiting()
		c = future.Wait()
	}
}
