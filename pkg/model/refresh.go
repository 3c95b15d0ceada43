package model

import (
	"sync"

	"github.com/openlvm/lvmdbusd/pkg/log"
	"github.com/openlvm/lvmdbusd/pkg/worker"
)

// EventThrottle collapses bursts of external change events into a single
// pending refresh. A guarded counter admits one refresh request while
// zero; completion decrements, so a burst arriving mid-refresh still
// queues exactly one follow-up.
type EventThrottle struct {
	rt *Runtime

	mu    sync.Mutex
	count int
}

// NewEventThrottle creates the throttle.
func NewEventThrottle(rt *Runtime) *EventThrottle {
	return &EventThrottle{rt: rt}
}

// Add admits one refresh request unless one is already pending.
func (t *EventThrottle) Add(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count != 0 {
		return
	}
	t.count++

	// Place this on the queue so any other operations sequence behind
	// it.
	t.rt.Q.Put(worker.NewRefreshRequest(func() (interface{}, error) {
		log.Debug("Processing external event: " + source)
		t.Complete()
		n, err := t.rt.refresh()
		if err != nil {
			return nil, err
		}
		return n, nil
	}, t.Complete))
}

// Complete releases the pending slot.
func (t *EventThrottle) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count > 0 {
		t.count--
	}
}

// Pending returns the number of admitted, unfinished refreshes.
func (t *EventThrottle) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
