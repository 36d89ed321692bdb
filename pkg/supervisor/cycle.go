package supervisor

import (
	"context"
	"supervisor/pkg/metrics"
	"supervisor/pkg/types"
	"time"
)

// ╔══════════════════╗
//      Cycle control
// ╚══════════════════╝

// State reports the lifecycle state of the duty-cycle loop.
func (s *Supervisor) State() types.CycleState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Supervisor) setState(state types.CycleState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

// RunCycle starts the loop on the first call and resumes a stopped loop afterwards.
// Calling it on a running loop is a no-op.
func (s *Supervisor) RunCycle() error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	switch s.State() {
	case types.CycleExited:
		return ErrExited
	case types.CycleRunning:
		return nil
	}

	if !s.started {
		s.started = true
		s.setState(types.CycleRunning)
		go s.loop()
		s.logger.Info("supervisor cycle started")
		return nil
	}

	s.resumeC <- struct{}{}
	s.setState(types.CycleRunning)
	s.logger.Info("supervisor cycle resumed")
	return nil
}

// StopCycle pauses the loop and returns once the loop acknowledged; no cycle runs after it returns.
// It must not be called with the loop's own context.
func (s *Supervisor) StopCycle(ctx context.Context) error {
	if s.isLoopCtx(ctx) {
		return ErrReentrantStop
	}

	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	if s.State() != types.CycleRunning {
		return nil
	}

	ack := make(chan struct{})
	select {
	case s.stopC <- ack:
	case <-ctx.Done():
		return ctx.Err()
	}
	// the loop closes ack as soon as it takes it, between two cycles
	<-ack
	s.setState(types.CycleStopped)
	s.logger.Info("supervisor cycle stopped")
	return nil
}

// ExitCycle terminates the loop for good and waits for it to return. It is idempotent.
func (s *Supervisor) ExitCycle() {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	if s.State() == types.CycleExited {
		return
	}
	close(s.exitC)
	if s.started {
		<-s.doneC
	}
	s.dispatch.close()
	s.setState(types.CycleExited)
	s.logger.Info("supervisor cycle exited")
}

// Reset stops the loop and forgets every desired order and the target position.
// Live orders on the venue are left untouched.
func (s *Supervisor) Reset(ctx context.Context) error {
	if err := s.StopCycle(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	orders := s.orders
	s.orders = nil
	s.positionSize = 0
	s.updateGaugesLocked()
	s.mu.Unlock()

	for _, o := range orders {
		if t := o.Trailing(); t != nil {
			t.Exit()
		}
	}
	s.logger.Info("supervisor reset")
	return nil
}

// loop runs a duty cycle every interval while running. A stopped loop parks on the
// control channels only, so no gateway call happens between StopCycle and RunCycle.
func (s *Supervisor) loop() {
	defer close(s.doneC)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	running := true
	for {
		if !running {
			select {
			case <-s.exitC:
				return
			case ack := <-s.stopC:
				close(ack)
			case <-s.resumeC:
				running = true
				ticker.Reset(s.interval)
			}
			continue
		}

		select {
		case <-s.exitC:
			return
		case ack := <-s.stopC:
			running = false
			close(ack)
		case <-ticker.C:
			if err := s.RunOnce(s.loopCtx); err != nil {
				metrics.CycleErrors.WithLabelValues(s.symbol).Inc()
				s.logger.Errorf("fail to run duty cycle: %v", err)
			}
		}
	}
}
