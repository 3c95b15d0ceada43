package lvmcmd

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestFlightRecorderBounded(t *testing.T) {
	r := NewFlightRecorder(3)
	for i := 0; i < 5; i++ {
		m := newExecutionMeta([]string{"lvs", fmt.Sprintf("%d", i)})
		m.Complete(0, "", "")
		r.Add(m)
	}
	// Oldest entries evicted, newest retained.
	assert.Equal(t, 3, r.Len())

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r.Dump(logger)

	out := buf.String()
	assert.NotContains(t, out, `lvs 0`)
	assert.NotContains(t, out, `lvs 1`)
	assert.Contains(t, out, `lvs 2`)
	assert.Contains(t, out, `lvs 4`)

	// Dump clears the ring.
	assert.Equal(t, 0, r.Len())
}

func TestFlightRecorderDisabled(t *testing.T) {
	r := NewFlightRecorder(0)
	r.Add(newExecutionMeta([]string{"lvs"}))
	assert.Equal(t, 0, r.Len())
}

func TestExecutionMetaStillRunning(t *testing.T) {
	m := newExecutionMeta([]string{"pvmove", "/dev/sda"})
	// A dump can format an entry whose command has not completed.
	assert.Contains(t, m.String(), "still running")

	m.Complete(0, "done", "")
	assert.NotContains(t, m.String(), "still running")
	assert.Contains(t, m.String(), "EC= 0")
}

func TestDumpEmptyIsQuiet(t *testing.T) {
	r := NewFlightRecorder(4)
	var buf bytes.Buffer
	r.Dump(zerolog.New(&buf))
	assert.Equal(t, "", buf.String())
}
