package lvmcmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/log"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

// testExecutor builds an executor whose "lvm binary" is the given shell
// script.
func testExecutor(t *testing.T, script string) *Executor {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "fakelvm")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	cfg := config.Default()
	cfg.LvmBinary = bin
	rt := config.NewRuntime(cfg)
	return New(rt, NewFlightRecorder(8))
}

func TestCallPlainText(t *testing.T) {
	e := testExecutor(t, "#!/bin/sh\necho hello\necho oops >&2\nexit 3\n")

	resp, err := e.Call([]string{"vgs"})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.ExitCode)
	assert.Equal(t, "hello\n", resp.Stdout)
	assert.Nil(t, resp.Report)
	assert.Contains(t, resp.Stderr, "oops")
}

func TestCallParsesJSON(t *testing.T) {
	e := testExecutor(t, `#!/bin/sh
echo '{"report":[{"vg":[{"vg_name":"test_vg","vg_uuid":"abc"}]}]}'
`)

	resp, err := e.Call([]string{"fullreport"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ExitCode)
	require.NotNil(t, resp.Report)
	require.Len(t, resp.Report.Report, 1)
	assert.Equal(t, "test_vg", resp.Report.Report[0].VG[0]["vg_name"])
}

func TestCallAppendsEmbeddedError(t *testing.T) {
	e := testExecutor(t, `#!/bin/sh
echo '{"report":[],"log":[{"log_type":"error","log_message":"Cannot do the thing."}]}'
exit 5
`)

	resp, err := e.Call([]string{"vgcreate"})
	require.NoError(t, err)
	assert.Equal(t, 5, resp.ExitCode)
	assert.Contains(t, resp.Stderr, "Cannot do the thing.")
}

func TestCallLineCallback(t *testing.T) {
	e := testExecutor(t, "#!/bin/sh\necho one\necho two\necho three\n")

	var lines []string
	resp, err := e.CallWithLineCB([]string{"pvmove"}, func(line string) {
		lines = append(lines, line)
	})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ExitCode)
	assert.Equal(t, []string{"one", "two", "three"}, lines)
}

func TestCallSpawnFailure(t *testing.T) {
	cfg := config.Default()
	cfg.LvmBinary = "/nonexistent/lvm-binary"
	rt := config.NewRuntime(cfg)
	e := New(rt, NewFlightRecorder(8))

	_, err := e.Call([]string{"vgs"})
	assert.Error(t, err)
}

func TestCallRecordsFlight(t *testing.T) {
	e := testExecutor(t, "#!/bin/sh\necho out\nexit 1\n")

	_, err := e.Call([]string{"lvs"})
	require.NoError(t, err)
	assert.Equal(t, 1, e.Recorder().Len())
}

func TestFullReportRejectsNonJSON(t *testing.T) {
	e := testExecutor(t, "#!/bin/sh\necho not json at all\n")

	_, err := e.FullReport(false)
	assert.Error(t, err)
}

func TestFullReportAcceptsExportedVgExit(t *testing.T) {
	e := testExecutor(t, `#!/bin/sh
echo '{"report":[]}'
exit 5
`)

	root, err := e.FullReport(false)
	require.NoError(t, err)
	assert.NotNil(t, root)
}

func TestSetExecutionForkExec(t *testing.T) {
	e := testExecutor(t, "#!/bin/sh\nexit 0\n")

	// Already in fork-exec mode: a no-op success.
	assert.True(t, e.SetExecution(false))
	assert.False(t, e.InShellMode())
}

func TestSetExecutionShellFallback(t *testing.T) {
	// A binary that exits immediately cannot produce a prompt; the
	// switch fails and falls back to fork & exec.
	e := testExecutor(t, "#!/bin/sh\nexit 0\n")
	assert.False(t, e.SetExecution(true))
	assert.False(t, e.InShellMode())
}

func TestInterruptedSentinel(t *testing.T) {
	e := testExecutor(t, "#!/bin/sh\nsleep 30\n")
	e.rt.Shutdown(0)

	resp, err := e.Call([]string{"vgs"})
	require.NoError(t, err)
	assert.True(t, resp.Interrupted())
}
