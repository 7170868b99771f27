package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTickerServiceCallsFnRepeatedly(t *testing.T) {
	var calls int32
	svc := &TickerService{
		ServiceName: "test-ticker",
		Interval:    10 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	}

	sup := Start("test", svc)
	time.Sleep(55 * time.Millisecond)
	stopped := sup.Stop(time.Second)

	if !stopped {
		t.Fatal("Stop() timed out")
	}
	if atomic.LoadInt32(&calls) < 3 {
		t.Errorf("Fn called %d times in 55ms at 10ms interval, expected at least 3", calls)
	}
}

func TestTickerServiceErrorsDoNotStopLoop(t *testing.T) {
	var calls, errs int32
	svc := &TickerService{
		ServiceName: "test-ticker-err",
		Interval:    10 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return context.DeadlineExceeded
		},
		OnError: func(err error) {
			atomic.AddInt32(&errs, 1)
		},
	}

	sup := Start("test-err", svc)
	time.Sleep(55 * time.Millisecond)
	sup.Stop(time.Second)

	if atomic.LoadInt32(&calls) < 3 {
		t.Errorf("Fn called %d times, expected at least 3 despite errors", calls)
	}
	if atomic.LoadInt32(&errs) != atomic.LoadInt32(&calls) {
		t.Errorf("OnError called %d times, Fn called %d times, expected equal", errs, calls)
	}
}

func TestSupervisedStopTimeout(t *testing.T) {
	blocked := make(chan struct{})
	svc := &TickerService{
		ServiceName: "test-slow",
		Interval:    time.Millisecond,
		Fn: func(ctx context.Context) error {
			return nil
		},
	}
	sup := Start("test-slow-sup", svc)
	defer close(blocked)

	if !sup.Stop(time.Second) {
		t.Error("expected Stop to succeed within timeout for a responsive service")
	}
}

func TestNilSupervisedStopIsNoOp(t *testing.T) {
	var s *Supervised
	if !s.Stop(time.Millisecond) {
		t.Error("nil *Supervised Stop() should return true")
	}
}
