package jobs

import (
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/faults"
	"github.com/openlvm/lvmdbusd/pkg/metrics"
	"github.com/openlvm/lvmdbusd/pkg/objectmgr"
)

// RequestView is the slice of a pending worker request a job exposes:
// jobs returned by the timeout protocol surface the request's eventual
// result and errors.
type RequestView interface {
	IsDone() bool
	ResultPath() string
	Errors() (int32, string)
}

// State is the shared progress record of one asynchronous operation. A
// background runner updates it from its own goroutine; RPC readers see a
// consistent view under the lock.
type State struct {
	mu      sync.Mutex
	percent uint8
	done    bool
	doneCh  chan struct{}

	request  RequestView
	exitCode int32
	stderr   string
}

// NewState creates the state for a background operation (no request).
func NewState() *State {
	return &State{doneCh: make(chan struct{})}
}

// NewRequestState creates the state for an lvm command that is simply
// taking too long and does not support background operation.
func NewRequestState(req RequestView) *State {
	// Faking the percentage when we don't have one.
	return &State{doneCh: make(chan struct{}), percent: 1, request: req}
}

// Percent returns the current progress.
func (s *State) Percent() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.percent
}

// SetPercent raises the progress; percent never moves backwards.
func (s *State) SetPercent(v uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v > s.percent {
		s.percent = v
	}
}

// Complete reports whether the operation finished.
func (s *State) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeLocked()
}

func (s *State) completeLocked() bool {
	if !s.done && s.request != nil && s.request.IsDone() {
		s.markDoneLocked()
	}
	return s.done
}

func (s *State) markDoneLocked() {
	s.done = true
	// Full progress is reserved for success.
	if s.request != nil {
		if ec, _ := s.request.Errors(); ec == 0 {
			s.percent = 100
		}
	}
	select {
	case <-s.doneCh:
	default:
		close(s.doneCh)
	}
}

// SetResult completes the state with the operation's outcome and wakes
// all waiters. Percent reaches 100 only on success.
func (s *State) SetResult(exitCode int32, stderr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.exitCode = exitCode
	s.stderr = stderr
	s.done = true
	if exitCode == 0 {
		s.percent = 100
	}
	select {
	case <-s.doneCh:
	default:
		close(s.doneCh)
	}
}

// NotifyRequestDone is called by the worker once the backing request
// resolved.
func (s *State) NotifyRequestDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.request != nil {
		s.markDoneLocked()
	}
}

// GetError is valid once complete; before that it returns the
// not-complete sentinel.
func (s *State) GetError() (int32, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.completeLocked() {
		return -1, "Job is not complete!"
	}
	if s.request != nil {
		return s.request.Errors()
	}
	return s.exitCode, s.stderr
}

// Result returns the operation's object path result, "/" when there is
// none (background operations do not produce one).
func (s *State) Result() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.request != nil {
		return s.request.ResultPath()
	}
	return "/"
}

// Wait blocks until the operation completes or the timeout elapses.
// Negative means wait forever. Returns whether the operation completed.
func (s *State) Wait(timeout time.Duration) bool {
	if s.Complete() {
		return true
	}
	if timeout < 0 {
		<-s.doneCh
		return true
	}
	select {
	case <-s.doneCh:
		return true
	case <-time.After(timeout):
		return s.Complete()
	}
}

// WaitSeconds is Wait with the RPC surface's integer-seconds timeout;
// negative waits forever.
func (s *State) WaitSeconds(timeout int32) bool {
	if timeout < 0 {
		return s.Wait(-1)
	}
	return s.Wait(time.Duration(timeout) * time.Second)
}

// detach drops the request reference once the job is removed.
func (s *State) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.request = nil
}

// Job is the RPC-addressable handle of an in-progress operation.
type Job struct {
	path  string
	uuid  string
	state *State
}

func (j *Job) Path() string  { return j.path }
func (j *Job) LvmID() string { return j.uuid }
func (j *Job) UUID() string  { return j.uuid }
func (j *Job) State() *State { return j.state }
func (j *Job) Interfaces() []string {
	return []string{config.JobInterface}
}

// JobError is the (exit_code, message) pair GetError reports.
type JobError struct {
	Code int32
	Msg  string
}

// Properties returns the live property dictionary for the transport.
func (j *Job) Properties() map[string]map[string]interface{} {
	ec, msg := j.state.GetError()
	return map[string]map[string]interface{}{
		config.JobInterface: {
			"Percent":  j.state.Percent(),
			"Complete": j.state.Complete(),
			"Result":   dbus.ObjectPath(j.state.Result()),
			"GetError": JobError{Code: ec, Msg: msg},
		},
	}
}

// Registry creates jobs, registers them with the object manager and
// removes them on client request.
type Registry struct {
	rt *config.Runtime
	om *objectmgr.Manager
}

// NewRegistry creates a job registry.
func NewRegistry(rt *config.Runtime, om *objectmgr.Manager) *Registry {
	return &Registry{rt: rt, om: om}
}

// NewForRequest creates and registers a job surfacing a slow request.
func (r *Registry) NewForRequest(req RequestView) *Job {
	return r.register(NewRequestState(req))
}

// NewForState creates and registers a job around an existing background
// operation state.
func (r *Registry) NewForState(st *State) *Job {
	return r.register(st)
}

func (r *Registry) register(st *State) *Job {
	j := &Job{
		path:  r.rt.NextJobPath(),
		uuid:  uuid.New().String(),
		state: st,
	}
	r.om.Register(j, false)
	metrics.JobsInFlight.Inc()
	return j
}

// Remove detaches a completed job. Removing an incomplete job is a
// client error.
func (r *Registry) Remove(j *Job) error {
	if !j.state.Complete() {
		return faults.NewClient(config.JobInterface, "Job is not complete!")
	}
	r.om.Remove(j, true)
	j.state.detach()
	metrics.JobsInFlight.Dec()
	return nil
}
