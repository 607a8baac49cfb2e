package worker

import (
	"context"
	"sync"
)

// Dispatcher bounds the number of requests a worker handles concurrently.
//
// Acquire is the worker's single explicit suspension point that is not
// request I/O: a request either gets a slot immediately or is rejected, so
// the pool never queues unboundedly behind a slow handler. WaitIdle lets a
// draining worker hold the door until every admitted request has released
// its slot.
type Dispatcher struct {
	mu   sync.Mutex
	max  int
	n    int
	idle chan struct{} // closed while n == 0
}

// NewDispatcher creates a dispatcher admitting at most max concurrent
// requests. max must be at least 1.
func NewDispatcher(max int) *Dispatcher {
	if max < 1 {
		max = 1
	}
	idle := make(chan struct{})
	close(idle)
	return &Dispatcher{max: max, idle: idle}
}

// Acquire claims a slot. It never blocks; false means the dispatcher is
// saturated and the request must be rejected.
func (d *Dispatcher) Acquire() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.n >= d.max {
		return false
	}
	if d.n == 0 {
		d.idle = make(chan struct{})
	}
	d.n++
	return true
}

// Release returns a slot claimed by Acquire.
func (d *Dispatcher) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.n == 0 {
		panic("worker: Release without Acquire")
	}
	d.n--
	if d.n == 0 {
		close(d.idle)
	}
}

// InFlight returns the number of currently admitted requests.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}

// WaitIdle blocks until every admitted request has released its slot or the
// context is done. New Acquires during the wait are still admitted; callers
// stop the intake (close the listener) before waiting.
func (d *Dispatcher) WaitIdle(ctx context.Context) error {
	for {
		d.mu.Lock()
		if d.n == 0 {
			d.mu.Unlock()
			return nil
		}
		idle := d.idle
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
			// Loop: a new request may have been admitted between the close
			// and this wakeup.
		}
	}
}
