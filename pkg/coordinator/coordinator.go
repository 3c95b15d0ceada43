package coordinator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/faults"
	"github.com/openlvm/lvmdbusd/pkg/log"
	"github.com/openlvm/lvmdbusd/pkg/lvmcmd"
	"github.com/openlvm/lvmdbusd/pkg/metrics"
)

// Opts selects what one load pass does. When several requests are
// batched the options merge with OR semantics: if any waiter asked for
// it, it happens.
type Opts struct {
	Refresh      bool
	EmitSignal   bool
	CacheRefresh bool
	Log          bool
}

// DefaultOpts is a full refresh with signals.
func DefaultOpts() Opts {
	return Opts{Refresh: true, EmitSignal: true, CacheRefresh: true, Log: true}
}

func (o Opts) merge(other Opts) Opts {
	return Opts{
		Refresh:      o.Refresh || other.Refresh,
		EmitSignal:   o.EmitSignal || other.EmitSignal,
		CacheRefresh: o.CacheRefresh || other.CacheRefresh,
		Log:          o.Log || other.Log,
	}
}

// LoadFunc performs one datastore refresh plus reconciliation and
// returns the total change count.
type LoadFunc func(opts Opts) (uint64, error)

// UpdateRequest is one waiter's seat in the coordinator queue.
type UpdateRequest struct {
	opts Opts

	mu     sync.Mutex
	done   bool
	result uint64
	err    error
	doneCh chan struct{}
}

func newUpdateRequest(opts Opts) *UpdateRequest {
	return &UpdateRequest{opts: opts, doneCh: make(chan struct{})}
}

// Done blocks until the coordinator published an outcome.
func (r *UpdateRequest) Done() (uint64, error) {
	<-r.doneCh
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// IsDone reports whether an outcome has been published.
func (r *UpdateRequest) IsDone() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *UpdateRequest) publish(result uint64, err error) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true
	r.result = result
	r.err = err
	r.mu.Unlock()
	close(r.doneCh)
}

// StateUpdate is the single-writer refresh coordinator. Any number of
// goroutines enqueue requests; one loop performs a merged load pass and
// wakes every batched waiter with the same result. Even though lvm can
// handle concurrent changes it makes no sense to fetch once per change:
// one fetch reflects all previous changes.
type StateUpdate struct {
	rt   *config.Runtime
	load LoadFunc
	rec  *lvmcmd.FlightRecorder
	log  zerolog.Logger

	mu       sync.Mutex
	queue    []*UpdateRequest
	notify   chan struct{}
	deferred atomic.Bool
}

// New creates a coordinator around the given load function.
func New(rt *config.Runtime, load LoadFunc, rec *lvmcmd.FlightRecorder) *StateUpdate {
	return &StateUpdate{
		rt:     rt,
		load:   load,
		rec:    rec,
		log:    log.WithComponent("coordinator"),
		notify: make(chan struct{}, 1),
	}
}

// Load enqueues a request and waits for the shared outcome.
func (s *StateUpdate) Load(opts Opts) (uint64, error) {
	req := newUpdateRequest(opts)
	s.mu.Lock()
	s.queue = append(s.queue, req)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return req.Done()
}

// Event nudges the loop: the next iteration skips the blocking wait and
// re-checks the queue, so a just-arrived request is picked up without an
// extra enqueue.
func (s *StateUpdate) Event() {
	s.deferred.Store(true)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *StateUpdate) drain() []*UpdateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.queue
	s.queue = nil
	return batch
}

// Run is the coordinator loop. It exits when the daemon shuts down or
// after five consecutive load failures, in both cases publishing an
// outcome to every waiter first.
func (s *StateUpdate) Run() {
	exceptionCount := 0
	var batch []*UpdateRequest

	setResults := func(result uint64, err error) {
		for _, r := range batch {
			r.publish(result, err)
		}
		// Only clear the batch after publishing; an error path that
		// cleared first would orphan the waiting threads.
		batch = nil
	}

	bailing := func(err error) {
		setResults(0, err)
		for _, r := range s.drain() {
			r.publish(0, err)
		}
	}

	for s.rt.Running() {
		wait := !s.deferred.Swap(false)

		if len(batch) == 0 && wait {
			select {
			case <-s.notify:
			case <-time.After(2 * time.Second):
			case <-s.rt.Done():
			}
		}

		batch = append(batch, s.drain()...)
		if len(batch) == 0 {
			continue
		}
		if len(batch) > 1 {
			s.log.Debug().Int("count", len(batch)).Msg("processing batched updates")
			metrics.CoalescedRequests.Add(float64(len(batch) - 1))
		}

		merged := batch[0].opts
		for _, r := range batch[1:] {
			merged = merged.merge(r.opts)
		}

		numChanges, err := s.load(merged)
		if err != nil {
			if faults.KindOf(err) == faults.Shutdown {
				break
			}
			s.log.Error().Err(err).Msg("state update failed")
			exceptionCount++
			if exceptionCount >= 5 {
				s.log.Error().Msg("too many errors in update loop, exiting daemon")
				s.rec.Dump(s.log)
				bailing(err)
				s.rt.Shutdown(1)
				return
			}
			// Slow things down when encountering errors; the batch is
			// kept and retried.
			time.Sleep(time.Second)
			continue
		}

		setResults(numChanges, nil)
		exceptionCount = 0
	}

	// Unblock anything still waiting before this loop exits, otherwise
	// those callers hang forever.
	bailing(faults.ErrShutdown)
	s.log.Debug().Msg("update loop exiting")
}
