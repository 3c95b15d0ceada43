package lvmcmd

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/log"
	"github.com/openlvm/lvmdbusd/pkg/metrics"
)

// Executor invokes the lvm command line tool, either by forking a process
// per command or through one persistent lvm shell. A single mutex
// serializes command execution and mode switches; different goroutines
// must never share the shell concurrently.
type Executor struct {
	rt  *config.Runtime
	rec *FlightRecorder
	log zerolog.Logger

	mu    chanMutex
	shell *shellProxy
}

// chanMutex is a mutex the executor can also poll for shutdown with; a
// plain channel of one token.
type chanMutex chan struct{}

func (m chanMutex) lock()   { m <- struct{}{} }
func (m chanMutex) unlock() { <-m }

// New creates an executor in fork-exec mode.
func New(rt *config.Runtime, rec *FlightRecorder) *Executor {
	return &Executor{
		rt:  rt,
		rec: rec,
		log: log.WithComponent("executor"),
		mu:  make(chanMutex, 1),
	}
}

// Recorder exposes the flight recorder for dump triggers.
func (e *Executor) Recorder() *FlightRecorder { return e.rec }

// InShellMode reports whether a persistent shell is active.
func (e *Executor) InShellMode() bool {
	e.mu.lock()
	defer e.mu.unlock()
	return e.shell != nil
}

// Call runs one lvm command and returns its outcome. Non-zero exit codes
// are returned in the Response; the error is reserved for spawn failures,
// tool bugs and shutdown.
func (e *Executor) Call(args []string) (Response, error) {
	return e.CallWithLineCB(args, nil)
}

// CallWithLineCB is Call with a per-stdout-line callback, honored in
// fork-exec mode. The callback must not block.
func (e *Executor) CallWithLineCB(args []string, lineCB func(string)) (Response, error) {
	e.mu.lock()
	defer e.mu.unlock()

	meta := newExecutionMeta(args)
	// Record before running, so a hang shows up in a dump.
	e.rec.Add(meta)
	timer := metrics.NewTimer()

	var resp Response
	var err error
	mode := "fork"
	if e.shell != nil {
		mode = "shell"
		resp, err = e.shell.call(args)
	} else {
		resp, err = e.forkExec(args, lineCB)
	}

	metrics.LvmCallDuration.Observe(timer.Duration().Seconds())
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
		meta.Complete(-1000, "", err.Error())
	case resp.ExitCode != 0:
		outcome = "nonzero"
		fallthrough
	default:
		meta.Complete(resp.ExitCode, resp.Stdout, resp.Stderr)
	}
	metrics.LvmCallsTotal.WithLabelValues(mode, outcome).Inc()

	return resp, err
}

// SetExecution switches between fork-exec (shell=false) and the
// persistent shell (shell=true). Switching to the shell requires JSON
// support; a failure to construct the shell falls back to fork-exec and
// returns false.
func (e *Executor) SetExecution(shell bool) bool {
	e.mu.lock()
	defer e.mu.unlock()

	if shell && e.shell != nil {
		return true
	}
	if !shell {
		if e.shell != nil {
			e.shell.exit()
			e.shell = nil
		}
		return true
	}

	if !e.rt.Cfg.UseJSON {
		return false
	}
	proxy, err := newShellProxy(e.rt, e.log)
	if err != nil {
		e.log.Error().Err(err).Msg("Unable to utilize lvm shell, dropping back to fork & exec")
		e.shell = nil
		return false
	}
	e.shell = proxy
	return true
}

// Stop tears down the shell if one is active. Called during shutdown.
func (e *Executor) Stop() {
	e.mu.lock()
	defer e.mu.unlock()
	if e.shell != nil {
		e.shell.exit()
		e.shell = nil
	}
}

// SupportsJSON probes whether lvm can produce the JSON fullreport the
// daemon depends on.
func (e *Executor) SupportsJSON() bool {
	resp, err := e.Call([]string{"help"})
	if err != nil || resp.ExitCode != 0 {
		return false
	}
	if e.InShellMode() {
		return true
	}
	return strings.Contains(resp.Stdout, "fullreport") || strings.Contains(resp.Stderr, "fullreport")
}

// SupportsVDO probes for the vdo segment type.
func (e *Executor) SupportsVDO() bool {
	resp, err := e.Call([]string{"segtypes"})
	if err != nil || resp.ExitCode != 0 {
		return false
	}
	if strings.Contains(resp.Stdout, "vdo") {
		e.log.Debug().Msg("We have VDO support")
		return true
	}
	return false
}
