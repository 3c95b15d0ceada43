package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/events"
	"github.com/openlvm/lvmdbusd/pkg/faults"
	"github.com/openlvm/lvmdbusd/pkg/jobs"
	"github.com/openlvm/lvmdbusd/pkg/objectmgr"
)

func testRegistry(t *testing.T) (*jobs.Registry, *objectmgr.Manager) {
	t.Helper()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	om := objectmgr.New(broker)
	rt := config.NewRuntime(config.Default())
	return jobs.NewRegistry(rt, om), om
}

func collect() (chan interface{}, chan error, func(interface{}), func(error)) {
	vals := make(chan interface{}, 1)
	errs := make(chan error, 1)
	return vals, errs,
		func(v interface{}) { vals <- v },
		func(e error) { errs <- e }
}

func TestRequestBlockingSuccess(t *testing.T) {
	reg, _ := testRegistry(t)
	q := NewQueue()

	vals, errs, cb, cbe := collect()
	q.Put(NewRequest(TmoBlock, func() (interface{}, error) {
		return "/obj/1", nil
	}, cb, cbe, false, reg))

	req := q.Pop(time.Second, nil)
	require.NotNil(t, req)
	req.Run()

	select {
	case v := <-vals:
		assert.Equal(t, "/obj/1", v)
	case e := <-errs:
		t.Fatalf("unexpected error: %v", e)
	}
}

func TestRequestBlockingError(t *testing.T) {
	reg, _ := testRegistry(t)
	q := NewQueue()

	vals, errs, cb, cbe := collect()
	boom := faults.NewToolFailure("test.iface", 5, "vg in use")
	q.Put(NewRequest(TmoBlock, func() (interface{}, error) {
		return nil, boom
	}, cb, cbe, false, reg))

	q.Pop(time.Second, nil).Run()

	select {
	case <-vals:
		t.Fatal("expected the error callback")
	case e := <-errs:
		assert.Equal(t, boom, e)
	}
}

func TestRequestImmediateJob(t *testing.T) {
	reg, om := testRegistry(t)
	q := NewQueue()

	vals, _, cb, cbe := collect()
	q.Put(NewRequest(TmoJob, func() (interface{}, error) {
		return "/obj/real", nil
	}, cb, cbe, true, reg))

	// The job path is delivered before the handler ever runs.
	v := <-vals
	pair, ok := v.([2]string)
	require.True(t, ok)
	assert.Equal(t, "/", pair[0])
	assert.NotEqual(t, "/", pair[1])

	job, ok := om.ByPath(pair[1]).(*jobs.Job)
	require.True(t, ok)
	assert.False(t, job.State().Complete())

	q.Pop(time.Second, nil).Run()

	assert.True(t, job.State().Complete())
	assert.Equal(t, uint8(100), job.State().Percent())
	assert.Equal(t, "/obj/real", job.State().Result())
	ec, msg := job.State().GetError()
	assert.Equal(t, int32(0), ec)
	assert.Equal(t, "", msg)
}

func TestRequestBudgetMet(t *testing.T) {
	reg, _ := testRegistry(t)
	q := NewQueue()

	vals, _, cb, cbe := collect()
	q.Put(NewRequest(5, func() (interface{}, error) {
		return "/obj/fast", nil
	}, cb, cbe, false, reg))

	q.Pop(time.Second, nil).Run()

	select {
	case v := <-vals:
		assert.Equal(t, "/obj/fast", v)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}
}

func TestRequestBudgetElapsed(t *testing.T) {
	reg, om := testRegistry(t)
	q := NewQueue()

	release := make(chan struct{})
	vals, _, cb, cbe := collect()
	q.Put(NewRequest(1, func() (interface{}, error) {
		<-release
		return "/obj/slow", nil
	}, cb, cbe, false, reg))

	req := q.Pop(time.Second, nil)
	go req.Run()

	// The budget elapses first; the caller gets a job path.
	var jobPath string
	select {
	case v := <-vals:
		jobPath = v.(string)
	case <-time.After(3 * time.Second):
		t.Fatal("no job path within budget window")
	}
	require.NotEqual(t, "/", jobPath)

	job, ok := om.ByPath(jobPath).(*jobs.Job)
	require.True(t, ok)
	assert.False(t, job.State().Complete())

	close(release)
	assert.True(t, job.State().Wait(2*time.Second))
	assert.Equal(t, "/obj/slow", job.State().Result())
}

func TestRequestErrorAttachesToJob(t *testing.T) {
	reg, om := testRegistry(t)
	q := NewQueue()

	vals, errs, cb, cbe := collect()
	q.Put(NewRequest(TmoJob, func() (interface{}, error) {
		return nil, faults.NewToolFailure("test.iface", 3, "boom")
	}, cb, cbe, false, reg))

	jobPath := (<-vals).(string)
	q.Pop(time.Second, nil).Run()

	select {
	case e := <-errs:
		t.Fatalf("error should go to the job, got %v", e)
	default:
	}

	job := om.ByPath(jobPath).(*jobs.Job)
	require.True(t, job.State().Complete())
	ec, msg := job.State().GetError()
	assert.Equal(t, int32(3), ec)
	assert.Equal(t, "boom", msg)
	// A failed operation never reports full progress.
	assert.NotEqual(t, uint8(100), job.State().Percent())
}

func TestDiscardStaleRefreshes(t *testing.T) {
	q := NewQueue()

	discarded := false
	q.Put(NewRefreshRequest(func() (interface{}, error) {
		t.Fatal("discarded request must not run")
		return nil, nil
	}, func() { discarded = true }))

	vals, _, cb, cbe := collect()
	q.Put(NewRequest(TmoBlock, func() (interface{}, error) { return "/x", nil }, cb, cbe, false, nil))

	assert.Equal(t, 1, q.DiscardStaleRefreshes())
	assert.True(t, discarded)
	assert.Equal(t, 1, q.Depth())

	q.Pop(time.Second, nil).Run()
	assert.Equal(t, "/x", <-vals)
}

func TestDrainWithResolvesEverything(t *testing.T) {
	reg, _ := testRegistry(t)
	q := NewQueue()

	_, errs, cb, cbe := collect()
	q.Put(NewRequest(TmoBlock, func() (interface{}, error) { return "/never", nil }, cb, cbe, false, reg))

	q.DrainWith(faults.ErrShutdown)
	e := <-errs
	assert.Equal(t, faults.Shutdown, faults.KindOf(e))
	assert.Equal(t, 0, q.Depth())
}

func TestPopTimeout(t *testing.T) {
	q := NewQueue()
	start := time.Now()
	assert.Nil(t, q.Pop(50*time.Millisecond, nil))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestCallbackFiresExactlyOnce(t *testing.T) {
	reg, _ := testRegistry(t)
	q := NewQueue()

	calls := 0
	q.Put(NewRequest(TmoJob, func() (interface{}, error) {
		return "/obj", nil
	}, func(interface{}) { calls++ }, func(error) { calls++ }, false, reg))

	q.Pop(time.Second, nil).Run()
	assert.Equal(t, 1, calls)
}

func TestErrorsMapping(t *testing.T) {
	r := NewRequest(TmoBlock, nil, nil, nil, false, nil)
	r.registerError(errors.New("plain failure"))
	ec, msg := r.Errors()
	assert.Equal(t, int32(-1), ec)
	assert.Equal(t, "plain failure", msg)
}
