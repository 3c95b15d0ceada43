package worker

import (
	"sync"
	"time"

	"github.com/openlvm/lvmdbusd/pkg/faults"
	"github.com/openlvm/lvmdbusd/pkg/jobs"
	"github.com/openlvm/lvmdbusd/pkg/metrics"
)

// Handler is the unit of work a request executes on the worker
// goroutine. The result is either an object path string or a plain value
// (e.g. a change count) the transport returns as-is.
type Handler func() (interface{}, error)

// Timeout protocol values for Request tmo (seconds).
const (
	// TmoBlock runs the handler synchronously and returns its value.
	TmoBlock int32 = -1
	// TmoJob returns a job path immediately; the result attaches to it.
	TmoJob int32 = 0
)

// Request is one queued unit of work plus its completion protocol state.
// The transport enqueues it and returns; the worker executes it; the
// success or error callback fires exactly once with either the real
// result or a job path, depending on how tmo relates to the handler's
// actual duration.
type Request struct {
	tmo         int32
	handler     Handler
	cb          func(interface{})
	cbe         func(error)
	returnTuple bool
	isRefresh   bool
	onDiscard   func()

	reg *jobs.Registry

	mu      sync.Mutex
	done    bool
	replied bool
	result  interface{}
	errEC   int32
	errMsg  string
	failed  bool
	job     *jobs.Job
	timer   *time.Timer
}

// NewRequest builds a request. reg may be nil only when tmo is TmoBlock
// (no job can ever be needed). returnTuple selects the
// (object_path, job_path) reply shape over the single job_path shape.
func NewRequest(tmo int32, handler Handler, cb func(interface{}), cbe func(error),
	returnTuple bool, reg *jobs.Registry) *Request {
	return &Request{
		tmo:         tmo,
		handler:     handler,
		cb:          cb,
		cbe:         cbe,
		returnTuple: returnTuple,
		reg:         reg,
	}
}

// NewRefreshRequest marks a request as an external-event refresh so the
// worker can discard it when a newer refresh already ran. onDiscard,
// when non-nil, runs if the request is dropped instead of executed so
// debounce counters still release.
func NewRefreshRequest(handler Handler, onDiscard func()) *Request {
	return &Request{tmo: TmoBlock, handler: handler, isRefresh: true, onDiscard: onDiscard}
}

// admission applies the tmo protocol at enqueue time: tmo==0 surfaces a
// job immediately, tmo>0 arms the budget timer.
func (r *Request) admission() {
	switch {
	case r.tmo == TmoJob:
		r.mu.Lock()
		r.job = r.reg.NewForRequest(r)
		job := r.job
		r.mu.Unlock()
		r.replyJob(job)
	case r.tmo > 0:
		r.timer = time.AfterFunc(time.Duration(r.tmo)*time.Second, r.budgetElapsed)
	}
}

func (r *Request) budgetElapsed() {
	r.mu.Lock()
	if r.done || r.job != nil {
		r.mu.Unlock()
		return
	}
	r.job = r.reg.NewForRequest(r)
	job := r.job
	r.mu.Unlock()
	r.replyJob(job)
}

func (r *Request) replyJob(job *jobs.Job) {
	r.mu.Lock()
	if r.replied {
		r.mu.Unlock()
		return
	}
	r.replied = true
	r.mu.Unlock()

	if r.cb == nil {
		return
	}
	if r.returnTuple {
		r.cb([2]string{"/", job.Path()})
	} else {
		r.cb(job.Path())
	}
}

// Run executes the handler and resolves the request. Called on the
// worker goroutine only.
func (r *Request) Run() {
	timer := metrics.NewTimer()
	result, err := r.handler()
	metrics.RequestDuration.Observe(timer.Duration().Seconds())

	if err != nil {
		r.registerError(err)
		return
	}
	r.registerResult(result)
}

func (r *Request) registerResult(result interface{}) {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.done = true
	r.result = result
	job := r.job
	alreadyReplied := r.replied
	if !alreadyReplied {
		r.replied = true
	}
	r.mu.Unlock()

	if job != nil {
		job.State().NotifyRequestDone()
		return
	}
	if alreadyReplied || r.cb == nil {
		return
	}
	if r.returnTuple {
		if s, ok := result.(string); ok {
			r.cb([2]string{s, "/"})
			return
		}
	}
	r.cb(result)
}

func (r *Request) registerError(err error) {
	ec := int32(-1)
	msg := err.Error()
	if f := faults.As(err); f != nil && f.Kind == faults.ToolFailure {
		ec = int32(f.ExitCode)
		msg = f.Stderr
	}

	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.done = true
	r.failed = true
	r.errEC = ec
	r.errMsg = msg
	job := r.job
	alreadyReplied := r.replied
	if !alreadyReplied {
		r.replied = true
	}
	r.mu.Unlock()

	if job != nil {
		job.State().NotifyRequestDone()
		return
	}
	if alreadyReplied || r.cbe == nil {
		return
	}
	r.cbe(err)
}

// RequestView implementation, consumed by the job that surfaced us.

// IsDone reports whether the handler finished.
func (r *Request) IsDone() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// ResultPath returns the handler's object path result, "/" otherwise.
func (r *Request) ResultPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.result.(string); ok {
		return s
	}
	return "/"
}

// Errors returns the failure outcome, (0, "") on success.
func (r *Request) Errors() (int32, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.failed {
		return 0, ""
	}
	return r.errEC, r.errMsg
}
