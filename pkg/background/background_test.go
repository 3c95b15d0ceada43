package background

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/events"
	"github.com/openlvm/lvmdbusd/pkg/jobs"
	"github.com/openlvm/lvmdbusd/pkg/lvmcmd"
	"github.com/openlvm/lvmdbusd/pkg/objectmgr"
	"github.com/openlvm/lvmdbusd/pkg/worker"
)

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line string
		want uint8
		ok   bool
	}{
		{"/dev/sda: Moved: 10.0%", 10, true},
		{"/dev/sda:ignored:10.0%", 10, true},
		{"/dev/sda:ignored:99.6%", 100, true},
		{"/dev/sda:ignored:0.0%", 0, true},
		{"short", 0, false},
		{"", 0, false},
		{"/dev/sda:ignored:garbage%", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseProgress(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		if ok {
			assert.Equal(t, tt.want, got, tt.line)
		}
	}
}

func TestMoveCmd(t *testing.T) {
	cmd := MoveCmd(lvmcmd.Options{}, "", "/dev/sda", 0, 0, nil)
	assert.Equal(t, []string{"pvmove", "-i", "1", "/dev/sda"}, cmd)

	cmd = MoveCmd(lvmcmd.Options{}, "vg/lv1", "/dev/sda", 100, 200,
		[]lvmcmd.PvSegRange{{Name: "/dev/sdb", Start: 0, End: 50}})
	assert.Equal(t, []string{
		"pvmove", "-i", "1", "-n", "vg/lv1", "/dev/sda:100-200", "/dev/sdb:0-50",
	}, cmd)
}

func TestMergeCmd(t *testing.T) {
	cmd := MergeCmd(lvmcmd.Options{}, "vg/snap")
	assert.Equal(t, []string{"lvconvert", "--merge", "-i", "1", "vg/snap"}, cmd)
}

func testOps(t *testing.T, script string) (*Ops, *worker.Queue, *jobs.Registry) {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "fakelvm")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	cfg := config.Default()
	cfg.LvmBinary = bin
	rt := config.NewRuntime(cfg)

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	om := objectmgr.New(broker)
	reg := jobs.NewRegistry(rt, om)

	q := worker.NewQueue()
	ops := New(rt, q, reg)
	return ops, q, reg
}

func TestExecuteProgressAndCompletion(t *testing.T) {
	ops, q, _ := testOps(t, `#!/bin/sh
echo "/dev/sda:ignored:25.0%"
echo "/dev/sda:ignored:50.0%"
echo "/dev/sda:ignored:75.0%"
exit 0
`)

	refreshed := false
	ops.Refresh = func() (uint64, error) { refreshed = true; return 0, nil }

	st := jobs.NewState()
	ops.execute([]string{"pvmove", "-i", "1", "/dev/sda"}, st, false)

	// Result delivery happens on the worker, not here.
	assert.False(t, st.Complete())
	assert.GreaterOrEqual(t, st.Percent(), uint8(75))

	req := q.Pop(time.Second, nil)
	require.NotNil(t, req)
	req.Run()

	assert.True(t, st.Complete())
	assert.True(t, refreshed)
	assert.Equal(t, uint8(100), st.Percent())
	ec, msg := st.GetError()
	assert.Equal(t, int32(0), ec)
	assert.Equal(t, "", msg)
}

func TestExecuteFailure(t *testing.T) {
	ops, q, _ := testOps(t, `#!/bin/sh
echo "/dev/sda:ignored:10.0%"
echo "merge failed" >&2
exit 5
`)
	ops.Refresh = func() (uint64, error) { return 0, nil }

	st := jobs.NewState()
	ops.execute([]string{"lvconvert", "--merge"}, st, false)
	q.Pop(time.Second, nil).Run()

	assert.True(t, st.Complete())
	assert.NotEqual(t, uint8(100), st.Percent())
	ec, msg := st.GetError()
	assert.Equal(t, int32(5), ec)
	assert.Contains(t, msg, "merge failed")
}

func TestExecuteSkipsFirstLine(t *testing.T) {
	ops, q, _ := testOps(t, `#!/bin/sh
echo "this banner would parse as:broken:90.0%"
echo "/dev/sda:ignored:30.0%"
exit 0
`)
	ops.Refresh = func() (uint64, error) { return 0, nil }

	st := jobs.NewState()
	ops.execute([]string{"lvconvert", "--merge"}, st, true)

	// The banner would have parsed as 90%; only the real line counted.
	assert.Equal(t, uint8(30), st.Percent())

	q.Pop(time.Second, nil).Run()
	assert.Equal(t, uint8(100), st.Percent())
}

func TestMoveMergeTmoContract(t *testing.T) {
	t.Run("block until complete", func(t *testing.T) {
		ops, q, _ := testOps(t, "#!/bin/sh\nexit 0\n")
		ops.Refresh = func() (uint64, error) { return 0, nil }
		go func() {
			// Stand in for the worker goroutine.
			if req := q.Pop(5*time.Second, nil); req != nil {
				req.Run()
			}
		}()

		p, err := ops.MoveMerge("test.iface", []string{"pvmove", "/dev/sda"}, -1, false)
		require.NoError(t, err)
		assert.Equal(t, "/", p)
	})

	t.Run("immediate job", func(t *testing.T) {
		ops, q, _ := testOps(t, "#!/bin/sh\nsleep 0.2\nexit 0\n")
		ops.Refresh = func() (uint64, error) { return 0, nil }

		p, err := ops.MoveMerge("test.iface", []string{"pvmove", "/dev/sda"}, 0, false)
		require.NoError(t, err)
		assert.NotEqual(t, "/", p)

		if req := q.Pop(5*time.Second, nil); req != nil {
			req.Run()
		}
	})

	t.Run("failure faults", func(t *testing.T) {
		ops, q, _ := testOps(t, "#!/bin/sh\necho nope >&2\nexit 3\n")
		ops.Refresh = func() (uint64, error) { return 0, nil }
		go func() {
			if req := q.Pop(5*time.Second, nil); req != nil {
				req.Run()
			}
		}()

		_, err := ops.MoveMerge("test.iface", []string{"pvmove", "/dev/sda"}, -1, false)
		require.Error(t, err)
	})
}

func TestReaperPrunes(t *testing.T) {
	ops, q, _ := testOps(t, "#!/bin/sh\nexit 0\n")
	ops.Refresh = func() (uint64, error) { return 0, nil }

	st := jobs.NewState()
	ops.add([]string{"pvmove"}, st, false)
	assert.Equal(t, 1, ops.ActiveCount())

	// Let the runner finish and deliver its completion request.
	req := q.Pop(5*time.Second, nil)
	require.NotNil(t, req)
	req.Run()

	ops.mu.Lock()
	kept := ops.running[:0]
	for _, entry := range ops.running {
		select {
		case <-entry.done:
		default:
			kept = append(kept, entry)
		}
	}
	ops.running = kept
	ops.mu.Unlock()

	assert.Equal(t, 0, ops.ActiveCount())
}
