package lvmcmd

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlvm/lvmdbusd/pkg/metrics"
)

// ExecutionMeta records one lvm invocation. An entry is added to the
// flight recorder before the command runs so that a hung command is
// visible in a dump; the completion fields are filled in afterwards.
// The per-entry lock lets a dump format an entry that is still running.
type ExecutionMeta struct {
	mu sync.Mutex

	Start    time.Time
	Ended    time.Time
	Cmd      []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func newExecutionMeta(cmd []string) *ExecutionMeta {
	return &ExecutionMeta{Start: time.Now(), Cmd: cmd, ExitCode: -1000}
}

// Complete fills in the result fields.
func (m *ExecutionMeta) Complete(exitCode int, stdout, stderr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Ended = time.Now()
	m.ExitCode = exitCode
	m.Stdout = stdout
	m.Stderr = stderr
}

func (m *ExecutionMeta) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ended := "still running"
	end := time.Now()
	if !m.Ended.IsZero() {
		ended = m.Ended.Format(time.RFC3339)
		end = m.Ended
	}

	return fmt.Sprintf(
		"EC= %d for %q\nSTARTED: %s, ENDED: %s, DURATION: %f\nSTDOUT=%s\nSTDERR=%s",
		m.ExitCode, strings.Join(m.Cmd, " "),
		m.Start.Format(time.RFC3339), ended, end.Sub(m.Start).Seconds(),
		m.Stdout, m.Stderr)
}

// FlightRecorder keeps the most recent lvm invocations in a bounded ring
// for post-mortem dumps. A size of zero disables it.
type FlightRecorder struct {
	mu      sync.Mutex
	size    int
	entries []*ExecutionMeta
}

// NewFlightRecorder creates a recorder holding up to size entries.
func NewFlightRecorder(size int) *FlightRecorder {
	return &FlightRecorder{size: size}
}

// Add appends an entry, evicting the oldest when the ring is full.
func (r *FlightRecorder) Add(m *ExecutionMeta) {
	if r.size == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == r.size {
		copy(r.entries, r.entries[1:])
		r.entries[len(r.entries)-1] = m
		return
	}
	r.entries = append(r.entries, m)
}

// Len returns the number of retained entries.
func (r *FlightRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Dump logs all retained entries, newest first, then clears the ring.
func (r *FlightRecorder) Dump(logger zerolog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return
	}

	logger.Error().Msg("lvm flight recorder START (in order of newest to oldest)")
	for i := len(r.entries) - 1; i >= 0; i-- {
		logger.Error().Msg(r.entries[i].String())
	}
	logger.Error().Msg("lvm flight recorder END")

	r.entries = r.entries[:0]
	metrics.FlightRecorderDumps.Inc()
}
