package interact

import (
	"testing"
	"time"
)

func TestTimerSchedulerRuns(t *testing.T) {
	done := make(chan struct{})
	s := &TimerScheduler{Interval: time.Millisecond}
	s.RequestFrame(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Frame did not run")
	}
}

func TestTimerSchedulerCancel(t *testing.T) {
	ran := make(chan struct{}, 1)
	posted := make(chan func(), 1)
	s := &TimerScheduler{Interval: time.Millisecond, Post: func(fn func()) { posted <- fn }}
	cancel := s.RequestFrame(func() { ran <- struct{}{} })

	var fn func()
	select {
	case fn = <-posted:
	case <-time.After(time.Second):
		t.Fatal("Frame was not posted")
	}
	// Cancelled after posting but before the owner ran it.
	cancel()
	fn()
	select {
	case <-ran:
		t.Error("Cancelled frame should not run")
	default:
	}
}

func TestManualScheduler(t *testing.T) {
	s := &ManualScheduler{}
	count := 0
	s.RequestFrame(func() { count++ })
	cancel := s.RequestFrame(func() { count += 10 })
	cancel()
	if s.Pending() != 1 {
		t.Errorf("Expected 1 pending frame, got %d", s.Pending())
	}
	if ran := s.Step(); ran != 1 || count != 1 {
		t.Errorf("Expected 1 frame run and count 1, got %d and %d", ran, count)
	}
}
