package background

import (
	"bufio"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/faults"
	"github.com/openlvm/lvmdbusd/pkg/jobs"
	"github.com/openlvm/lvmdbusd/pkg/log"
	"github.com/openlvm/lvmdbusd/pkg/lvmcmd"
	"github.com/openlvm/lvmdbusd/pkg/worker"
)

// MoveCmd builds the pvmove command with progress reporting every
// second. lvName is optional; a (0,0) source range means the whole PV.
func MoveCmd(moveOptions lvmcmd.Options, lvFullName, pvSource string,
	srcStart, srcEnd uint64, dests []lvmcmd.PvSegRange) []string {
	cmd := []string{"pvmove", "-i", "1"}
	cmd = append(cmd, moveOptions.CliArgs()...)
	if lvFullName != "" {
		cmd = append(cmd, "-n", lvFullName)
	}
	if srcStart == 0 && srcEnd == 0 {
		cmd = append(cmd, pvSource)
	} else {
		cmd = append(cmd, fmt.Sprintf("%s:%d-%d", pvSource, srcStart, srcEnd))
	}
	return lvmcmd.AppendPvDestRanges(cmd, dests)
}

// MergeCmd builds the snapshot merge command.
func MergeCmd(mergeOptions lvmcmd.Options, lvFullName string) []string {
	cmd := []string{"lvconvert", "--merge", "-i", "1"}
	cmd = append(cmd, mergeOptions.CliArgs()...)
	return append(cmd, lvFullName)
}

type op struct {
	cmd  []string
	done chan struct{}
}

// Ops runs long-lived relocations and merges outside the worker, parsing
// progress lines into a job state, and rejoins the worker queue for
// result delivery so state mutation stays single-threaded.
type Ops struct {
	rt   *config.Runtime
	q    *worker.Queue
	jobs *jobs.Registry
	log  zerolog.Logger

	// Refresh is the coordinator load performed after the external
	// process exits; wired at assembly.
	Refresh func() (uint64, error)

	mu      sync.Mutex
	running []*op
}

// New creates the background operation runner.
func New(rt *config.Runtime, q *worker.Queue, reg *jobs.Registry) *Ops {
	return &Ops{rt: rt, q: q, jobs: reg, log: log.WithComponent("background")}
}

// parseProgress extracts the percentage from one "dev:ignored:NN.N%"
// progress line. Returns false for banner or malformed lines.
func parseProgress(line string) (uint8, bool) {
	if len(line) <= 10 {
		return 0, false
	}
	parts := strings.Split(line, ":")
	if len(parts) != 3 {
		return 0, false
	}
	pct := strings.TrimSpace(parts[2])
	pct = strings.TrimSuffix(pct, "%")
	f, err := strconv.ParseFloat(pct, 64)
	if err != nil {
		return 0, false
	}
	if f < 0 {
		f = 0
	}
	if f > 100 {
		f = 100
	}
	return uint8(f + 0.5), true
}

// execute runs the command, feeding progress into st, then queues the
// completion request. skipFirstLine drops the banner merge prints before
// the updates begin.
func (o *Ops) execute(cmd []string, st *jobs.State, skipFirstLine bool) {
	argv := append([]string{o.rt.Cfg.LvmBinary}, cmd...)
	child := exec.Command(argv[0], argv[1:]...)

	stdout, err := child.StdoutPipe()
	if err != nil {
		st.SetResult(-1, fmt.Sprintf("failed to open stdout pipe: %s", err))
		return
	}
	var stderrBuf strings.Builder
	child.Stderr = &stderrBuf

	if err := child.Start(); err != nil {
		st.SetResult(-1, fmt.Sprintf("failed to start %s: %s", argv[0], err))
		return
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if skipFirstLine {
			skipFirstLine = false
			continue
		}
		if pct, ok := parseProgress(scanner.Text()); ok {
			st.SetPercent(pct)
		}
	}

	ec := 0
	if werr := child.Wait(); werr != nil {
		if ee, ok := werr.(*exec.ExitError); ok {
			ec = ee.ExitCode()
		} else {
			ec = -1
			fmt.Fprintf(&stderrBuf, "wait failed: %s", werr)
		}
	}

	// Queue up the result so it executes in the same goroutine as every
	// other state mutation.
	exitCode, stderr := int32(ec), stderrBuf.String()
	req := worker.NewRequest(worker.TmoBlock, func() (interface{}, error) {
		if o.Refresh != nil {
			if _, err := o.Refresh(); err != nil {
				o.log.Error().Err(err).Msg("refresh after background operation failed")
			}
		}
		st.SetResult(exitCode, stderr)
		return "/", nil
	}, nil, nil, false, nil)
	o.q.Put(req)
}

// add starts the runner goroutine and tracks it for the reaper.
func (o *Ops) add(cmd []string, st *jobs.State, skipFirstLine bool) {
	entry := &op{cmd: cmd, done: make(chan struct{})}
	go func() {
		defer close(entry.done)
		o.execute(cmd, st, skipFirstLine)
	}()

	o.mu.Lock()
	o.running = append(o.running, entry)
	o.mu.Unlock()
}

// ActiveCount returns the number of unreaped background operations.
func (o *Ops) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}

// Reaper periodically prunes finished background operations. Runs until
// daemon shutdown.
func (o *Ops) Reaper() {
	for o.rt.Running() {
		o.mu.Lock()
		kept := o.running[:0]
		for _, entry := range o.running {
			select {
			case <-entry.done:
			default:
				kept = append(kept, entry)
			}
		}
		o.running = kept
		o.mu.Unlock()

		select {
		case <-time.After(3 * time.Second):
		case <-o.rt.Done():
		}
	}
}

// MoveMerge runs cmd in the background under the generic caller
// contract: tmo -1 blocks until completion and faults on failure, 0
// returns a job path immediately, >0 waits up to the budget and falls
// back to a job path.
func (o *Ops) MoveMerge(iface string, cmd []string, tmo int32, skipFirstLine bool) (string, error) {
	st := jobs.NewState()
	o.add(cmd, st, skipFirstLine)

	newJob := func() string {
		return o.jobs.NewForState(st).Path()
	}

	switch {
	case tmo == -1:
		st.Wait(-1)
		if ec, msg := st.GetError(); ec != 0 {
			return "/", faults.NewToolFailure(iface, int(ec), msg)
		}
		return "/", nil
	case tmo == 0:
		return newJob(), nil
	default:
		if !st.Wait(time.Duration(tmo) * time.Second) {
			return newJob(), nil
		}
		if ec, msg := st.GetError(); ec != 0 {
			return "/", faults.NewToolFailure(iface, int(ec), msg)
		}
		return "/", nil
	}
}
