// Package worker supervises the coordinator's long-running background
// tasks — the lock heartbeat and the child-process output drainer.
// Each Start call runs one service under its own suture.Supervisor.
// Both tasks are modeled as suture.Service so a panic in either is
// contained and restarted rather than taking down the whole process.
// Each is stopped separately: the heartbeat by the orchestrator's
// shutdown sequence, the drainer when the console loop returns.
package worker

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
)

// TickerService runs Fn every Interval until its context is cancelled.
// Errors returned by Fn are reported to OnError (if set) and do not
// stop the ticker — this is the shape the lock heartbeat needs: a
// failed update is logged, never fatal, per its "logged, not surfaced"
// failure policy.
type TickerService struct {
	ServiceName string
	Interval    time.Duration
	Fn          func(ctx context.Context) error
	OnError     func(error)
}

// Serve implements suture.Service.
func (t *TickerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := t.Fn(ctx); err != nil && t.OnError != nil {
				t.OnError(err)
			}
		}
	}
}

func (t *TickerService) String() string { return t.ServiceName }

// Supervised wraps a suture.Supervisor running a single service, with
// a bounded stop that waits for the service to exit before giving up —
// the shape both the heartbeat and the output drainer need (spec.md's
// "waits up to interval+5s for a clean exit, warns otherwise").
type Supervised struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches svc under a fresh suture.Supervisor in the background.
func Start(name string, svc suture.Service) *Supervised {
	ctx, cancel := context.WithCancel(context.Background())
	sup := suture.NewSimple(name)
	sup.Add(svc)
	done := make(chan struct{})
	go func() {
		_ = sup.Serve(ctx)
		close(done)
	}()
	return &Supervised{cancel: cancel, done: done}
}

// Stop signals the supervised service to exit and waits up to timeout
// for it to do so. Returns false if the timeout elapsed first — the
// caller is still responsible for whatever cleanup follows regardless
// of the return value (the service's own context is already cancelled).
func (s *Supervised) Stop(timeout time.Duration) bool {
	if s == nil {
		return true
	}
	s.cancel()
	select {
	case <-s.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
