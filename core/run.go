package core

import (
	"context"
	"fmt"
	"supervisor/pkg/supervisor"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Run starts every registered supervisor and keeps them cycling until ctx is done,
// then exits them all.
func Run(ctx context.Context) error {
	log.Info("🦿 Running...")

	var errs []error
	for svId, sv := range Supervisors {
		if err := sv.RunCycle(); err != nil {
			errs = append(errs, fmt.Errorf("supervisor %v: %w", svId, err))
		}
	}

	<-ctx.Done()
	Shutdown()

	if len(errs) > 0 {
		return fmt.Errorf("errors during execution: %v", errs)
	}
	return nil
}

// Shutdown exits every supervisor loop and waits for them.
func Shutdown() {
	var wg sync.WaitGroup
	for _, sv := range Supervisors {
		wg.Add(1)
		go func(sv *supervisor.Supervisor) {
			defer wg.Done()
			sv.ExitCycle()
		}(sv)
	}
	wg.Wait()
	log.Info("all supervisors exited")
}
