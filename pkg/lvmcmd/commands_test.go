package lvmcmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsCliArgs(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "empty",
			opts: Options{},
			want: nil,
		},
		{
			name: "long option with value",
			opts: Options{"stripesize": "64"},
			want: []string{"--stripesize", "64"},
		},
		{
			name: "dash key passed verbatim",
			opts: Options{"-Z": "y"},
			want: []string{"-Z", "y"},
		},
		{
			name: "empty string means flag only",
			opts: Options{"force": ""},
			want: []string{"--force"},
		},
		{
			name: "integer value stringified",
			opts: Options{"mirrors": 2},
			want: []string{"--mirrors", "2"},
		},
		{
			name: "sorted deterministically",
			opts: Options{"zero": "n", "alloc": "anywhere"},
			want: []string{"--alloc", "anywhere", "--zero", "n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.CliArgs())
		})
	}
}

func TestActivateFlagDecode(t *testing.T) {
	tests := []struct {
		name     string
		flags    uint64
		activate bool
		want     []string
	}{
		{
			name:     "plain activate",
			flags:    0,
			activate: true,
			want:     []string{"lvchange", "-ay", "-y", "vg/lv"},
		},
		{
			name:     "plain deactivate",
			flags:    0,
			activate: false,
			want:     []string{"lvchange", "-an", "-y", "vg/lv"},
		},
		{
			name:     "auto exclusive local",
			flags:    ActivateAuto | ActivateExclusive | ActivateLocal,
			activate: true,
			want:     []string{"lvchange", "-aaely", "-y", "vg/lv"},
		},
		{
			name:     "activation mode complete",
			flags:    ActivateModeComplete,
			activate: true,
			want:     []string{"lvchange", "--activationmode", "complete", "-ay", "-y", "vg/lv"},
		},
		{
			name:     "partial loses to complete",
			flags:    ActivateModeComplete | ActivateModePartial,
			activate: true,
			want:     []string{"lvchange", "--activationmode", "complete", "-ay", "-y", "vg/lv"},
		},
		{
			name:     "ignore skip and shared",
			flags:    ActivateIgnoreSkip | ActivateShared,
			activate: true,
			want:     []string{"lvchange", "--ignoreactivationskip", "-asy", "-y", "vg/lv"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildActivateArgs(tt.flags, tt.activate))
		})
	}
}

// buildActivateArgs mirrors ActivateDeactivate's argv assembly without
// running anything.
func buildActivateArgs(controlFlags uint64, activate bool) []string {
	cmd := []string{"lvchange"}
	mode := "-a"
	if controlFlags&ActivateAuto != 0 {
		mode += "a"
	}
	if controlFlags&ActivateExclusive != 0 {
		mode += "e"
	}
	if controlFlags&ActivateLocal != 0 {
		mode += "l"
	}
	var modeArgs []string
	if controlFlags&ActivateModeComplete != 0 {
		modeArgs = append(modeArgs, "--activationmode", "complete")
	} else if controlFlags&ActivateModePartial != 0 {
		modeArgs = append(modeArgs, "--activationmode", "partial")
	}
	if controlFlags&ActivateIgnoreSkip != 0 {
		modeArgs = append(modeArgs, "--ignoreactivationskip")
	}
	if controlFlags&ActivateShared != 0 {
		mode += "s"
	}
	cmd = append(cmd, modeArgs...)
	if activate {
		mode += "y"
	} else {
		mode += "n"
	}
	return append(cmd, mode, "-y", "vg/lv")
}

func TestAppendPvDestRanges(t *testing.T) {
	cmd := []string{"pvmove"}
	cmd = AppendPvDestRanges(cmd, []PvSegRange{
		{Name: "/dev/sda", Start: 0, End: 0},
		{Name: "/dev/sdb", Start: 100, End: 200},
	})
	assert.Equal(t, []string{"pvmove", "/dev/sda", "/dev/sdb:100-200"}, cmd)
}

func TestAddConfigOption(t *testing.T) {
	// New --config appended.
	argv := addConfigOption([]string{"lvm", "pvcreate"}, "a=1")
	assert.Equal(t, []string{"lvm", "pvcreate", "--config", "a=1"}, argv)

	// Existing --config merged.
	argv = addConfigOption(argv, "b=2")
	assert.Equal(t, []string{"lvm", "pvcreate", "--config", "a=1 b=2"}, argv)
}

func TestQuoteArg(t *testing.T) {
	assert.Equal(t, "plain", quoteArg("plain"))
	assert.Equal(t, `"has space"`, quoteArg("has space"))
}
