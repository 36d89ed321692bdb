package supervisor

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// dispatcher runs order callbacks one by one on its own goroutine, off the duty-cycle loop.
// The queue is unbounded so the loop never blocks on a slow callback, and a callback that
// calls StopCycle waits on a loop that is still free to acknowledge it.
// The goroutine starts with the first callback and returns once closed and drained.
type dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	running bool
	closed  bool

	logger *log.Entry
}

func newDispatcher(logger *log.Entry) *dispatcher {
	d := &dispatcher{logger: logger}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *dispatcher) dispatch(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("dispatcher closed, callback dropped")
		return
	}
	d.queue = append(d.queue, fn)
	if !d.running {
		d.running = true
		go d.run()
		return
	}
	d.cond.Signal()
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			// closed and drained
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.call(fn)
	}
}

func (d *dispatcher) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("order callback panicked: %v", r)
		}
	}()
	fn()
}

// close stops accepting callbacks; the ones already queued still run.
// @dev: must not wait for the drain, close may be called from a callback itself
func (d *dispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cond.Broadcast()
}
