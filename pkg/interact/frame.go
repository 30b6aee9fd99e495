package interact

import (
	"sync"
	"time"
)

// FrameScheduler runs fn once on the next display frame. The returned
// cancel stops fn from running if it has not run yet.
type FrameScheduler interface {
	RequestFrame(fn func()) (cancel func())
}

// TimerScheduler schedules frames with a timer. Post hands fn back to
// the goroutine that owns the machine; if nil, fn runs on the timer
// goroutine.
type TimerScheduler struct {
	Interval time.Duration
	Post     func(fn func())
}

// DefaultFrameInterval is roughly 60 frames per second.
const DefaultFrameInterval = 16 * time.Millisecond

// RequestFrame implements FrameScheduler.
func (s *TimerScheduler) RequestFrame(fn func()) func() {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	var (
		mu        sync.Mutex
		cancelled bool
	)
	run := func() {
		mu.Lock()
		c := cancelled
		mu.Unlock()
		if !c {
			fn()
		}
	}
	t := time.AfterFunc(interval, func() {
		if s.Post != nil {
			s.Post(run)
			return
		}
		run()
	})
	return func() {
		mu.Lock()
		cancelled = true
		mu.Unlock()
		t.Stop()
	}
}

// ManualScheduler queues frames until Step is called. For tests and
// hosts that drive frames themselves.
type ManualScheduler struct {
	queue []*frame
}

type frame struct {
	fn        func()
	cancelled bool
}

// RequestFrame implements FrameScheduler.
func (s *ManualScheduler) RequestFrame(fn func()) func() {
	f := &frame{fn: fn}
	s.queue = append(s.queue, f)
	return func() { f.cancelled = true }
}

// Step runs every frame queued before the call and returns how many ran.
func (s *ManualScheduler) Step() int {
	q := s.queue
	s.queue = nil
	ran := 0
	for _, f := range q {
		if !f.cancelled {
			f.fn()
			ran++
		}
	}
	return ran
}

// Pending returns the number of live queued frames.
func (s *ManualScheduler) Pending() int {
	n := 0
	for _, f := range s.queue {
		if !f.cancelled {
			n++
		}
	}
	return n
}
