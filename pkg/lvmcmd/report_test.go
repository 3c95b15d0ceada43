package lvmcmd

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReport(t *testing.T) {
	root, ok := parseReport(`{"report":[{"pv":[{"pv_name":"/dev/sda"}],"log":[]}]}`)
	require.True(t, ok)
	require.Len(t, root.Report, 1)
	assert.Equal(t, "/dev/sda", root.Report[0].PV[0]["pv_name"])

	// Plain text is not a report.
	_, ok = parseReport("  WARNING: not json")
	assert.False(t, ok)

	// Broken JSON is not a report either.
	_, ok = parseReport(`{"report":[`)
	assert.False(t, ok)
}

func TestErrorMessageCollection(t *testing.T) {
	root, ok := parseReport(`{
		"report":[{"log":[{"log_type":"error","log_message":"inner failure"}]}],
		"log":[
			{"log_type":"status","log_message":"ignored"},
			{"log_type":"error","log_message":"outer failure"}
		]}`)
	require.True(t, ok)

	msg := errorMessage(root)
	assert.Contains(t, msg, "outer failure")
	assert.Contains(t, msg, "inner failure")
	assert.NotContains(t, msg, "ignored")

	assert.Equal(t, "", errorMessage(nil))
	assert.Equal(t, "", errorMessage(&ReportRoot{}))
}

func TestPromptRegex(t *testing.T) {
	tests := []struct {
		in   string
		ec   int
		text string
	}{
		{"  Volume group created\n[0] lvm> ", 0, "  Volume group created\n"},
		{"[5] lvm> ", 5, ""},
		{"output\n[-1] lvm> ", -1, "output\n"},
	}
	for _, tt := range tests {
		m := promptRe.FindStringSubmatch(tt.in)
		require.NotNil(t, m, tt.in)
		ec, err := strconv.Atoi(m[2])
		require.NoError(t, err)
		assert.Equal(t, tt.ec, ec)
		assert.Equal(t, tt.text, tt.in[:len(tt.in)-len(m[1])])
	}

	// A bare prompt carries no exit code.
	assert.Nil(t, promptRe.FindStringSubmatch("lvm> "))
}
