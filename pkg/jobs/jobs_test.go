package jobs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/events"
	"github.com/openlvm/lvmdbusd/pkg/faults"
	"github.com/openlvm/lvmdbusd/pkg/objectmgr"
)

func testSetup(t *testing.T) (*Registry, *objectmgr.Manager) {
	t.Helper()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	om := objectmgr.New(broker)
	return NewRegistry(config.NewRuntime(config.Default()), om), om
}

func TestPercentMonotonic(t *testing.T) {
	st := NewState()

	st.SetPercent(10)
	st.SetPercent(55)
	// Progress never moves backwards.
	st.SetPercent(20)
	assert.Equal(t, uint8(55), st.Percent())

	st.SetResult(0, "")
	assert.Equal(t, uint8(100), st.Percent())
}

func TestPercentNotFullOnFailure(t *testing.T) {
	st := NewState()
	st.SetPercent(70)
	st.SetResult(5, "device busy")
	assert.NotEqual(t, uint8(100), st.Percent())
	assert.True(t, st.Complete())
	ec, msg := st.GetError()
	assert.Equal(t, int32(5), ec)
	assert.Equal(t, "device busy", msg)
}

func TestGetErrorBeforeComplete(t *testing.T) {
	st := NewState()
	ec, msg := st.GetError()
	assert.Equal(t, int32(-1), ec)
	assert.Equal(t, "Job is not complete!", msg)
}

func TestWaitTimeout(t *testing.T) {
	st := NewState()

	start := time.Now()
	assert.False(t, st.Wait(50*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	st.SetResult(0, "")
	assert.True(t, st.Wait(0))
	assert.True(t, st.Wait(-1))
}

func TestWaitWakesAllWaiters(t *testing.T) {
	st := NewState()

	var wg sync.WaitGroup
	results := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- st.Wait(5 * time.Second)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	st.SetResult(0, "")
	wg.Wait()
	close(results)

	for done := range results {
		assert.True(t, done)
	}
}

func TestSetResultCompletesOnce(t *testing.T) {
	st := NewState()
	st.SetResult(0, "")
	// A second outcome must not overwrite the first.
	st.SetResult(7, "late failure")
	ec, msg := st.GetError()
	assert.Equal(t, int32(0), ec)
	assert.Equal(t, "", msg)
}

func TestRegistryLifecycle(t *testing.T) {
	reg, om := testSetup(t)

	st := NewState()
	job := reg.NewForState(st)
	assert.NotEmpty(t, job.Path())
	assert.NotNil(t, om.ByPath(job.Path()))

	// Removing an incomplete job is a client error.
	err := reg.Remove(job)
	require.Error(t, err)
	assert.Equal(t, faults.Client, faults.KindOf(err))
	assert.NotNil(t, om.ByPath(job.Path()))

	st.SetResult(0, "")
	require.NoError(t, reg.Remove(job))
	assert.Nil(t, om.ByPath(job.Path()))
}

func TestJobProperties(t *testing.T) {
	reg, _ := testSetup(t)
	st := NewState()
	job := reg.NewForState(st)

	props := job.Properties()[config.JobInterface]
	assert.Equal(t, uint8(0), props["Percent"])
	assert.Equal(t, false, props["Complete"])

	st.SetPercent(42)
	st.SetResult(0, "")

	props = job.Properties()[config.JobInterface]
	assert.Equal(t, uint8(100), props["Percent"])
	assert.Equal(t, true, props["Complete"])
	assert.Equal(t, JobError{Code: 0, Msg: ""}, props["GetError"])
}

func TestUniqueJobPaths(t *testing.T) {
	reg, _ := testSetup(t)
	seen := map[string]bool{}
	for i := 0; i < 16; i++ {
		j := reg.NewForState(NewState())
		assert.False(t, seen[j.Path()])
		seen[j.Path()] = true
	}
}
