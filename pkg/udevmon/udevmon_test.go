package udevmon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlvm/lvmdbusd/pkg/config"
)

func kernelEvent(action, devpath string, props map[string]string) []byte {
	data := []byte(action + "@" + devpath)
	data = append(data, 0)
	for k, v := range props {
		data = append(data, []byte(k+"="+v)...)
		data = append(data, 0)
	}
	return data
}

func TestParseUeventKernelFormat(t *testing.T) {
	data := kernelEvent("change", "/devices/virtual/block/dm-0", map[string]string{
		"ACTION":     "change",
		"DEVNAME":    "/dev/dm-0",
		"ID_FS_TYPE": "LVM2_member",
	})

	ev, ok := ParseUevent(data)
	require.True(t, ok)
	assert.Equal(t, "change", ev.Action)
	assert.Equal(t, "/dev/dm-0", ev.Props["DEVNAME"])
	assert.Equal(t, "LVM2_member", ev.Props["ID_FS_TYPE"])
}

func TestParseUeventLibudevFormat(t *testing.T) {
	props := []byte("ACTION=change\x00DEVNAME=/dev/sda\x00")
	header := make([]byte, 24)
	copy(header, "libudev\x00")
	// Properties offset in bytes 16..20.
	header[16] = 24
	data := append(header, props...)

	ev, ok := ParseUevent(data)
	require.True(t, ok)
	assert.Equal(t, "change", ev.Action)
	assert.Equal(t, "/dev/sda", ev.Props["DEVNAME"])
}

func TestParseUeventGarbage(t *testing.T) {
	_, ok := ParseUevent(nil)
	assert.False(t, ok)
	_, ok = ParseUevent([]byte("no separators here"))
	assert.False(t, ok)
}

func TestTranslateDmPath(t *testing.T) {
	p := TranslateDmPath("/tmp/test-dev", "/dev/dm-3",
		"/dev/disk/by-id/dm-uuid-LVM-xyz /dev/disk/by-id/dm-name-vg00-lv01")
	assert.Equal(t, "/tmp/test-dev/mapper/vg00-lv01", p)

	assert.Equal(t, "", TranslateDmPath("/tmp/test-dev", "/dev/sda", "whatever"))
	assert.Equal(t, "", TranslateDmPath("/tmp/test-dev", "/dev/dm-3", "/dev/disk/by-id/other"))
}

func testMonitor(known map[string]bool) (*Monitor, *int) {
	fired := 0
	rt := config.NewRuntime(config.Default())
	m := New(rt,
		func(id string) bool { return known[id] },
		func(string) { fired++ })
	return m, &fired
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name  string
		known map[string]bool
		ev    Event
		want  bool
	}{
		{
			name: "non-change ignored",
			ev:   Event{Action: "add", Props: map[string]string{"ID_FS_TYPE": "LVM2_member", "DEVNAME": "/dev/sdb"}},
			want: false,
		},
		{
			name: "lvm signature on unknown device",
			ev:   Event{Action: "change", Props: map[string]string{"ID_FS_TYPE": "LVM2_member", "DEVNAME": "/dev/sdb"}},
			want: true,
		},
		{
			name:  "lvm signature on tracked device",
			known: map[string]bool{"/dev/sdb": true},
			ev:    Event{Action: "change", Props: map[string]string{"ID_FS_TYPE": "LVM2_member", "DEVNAME": "/dev/sdb"}},
			want:  false,
		},
		{
			name:  "tracked device went empty",
			known: map[string]bool{"/dev/sdb": true},
			ev:    Event{Action: "change", Props: map[string]string{"ID_FS_TYPE": "", "DEVNAME": "/dev/sdb"}},
			want:  true,
		},
		{
			name: "untracked device went empty",
			ev:   Event{Action: "change", Props: map[string]string{"ID_FS_TYPE": "", "DEVNAME": "/dev/sdb"}},
			want: false,
		},
		{
			name: "foreign filesystem ignored",
			ev:   Event{Action: "change", Props: map[string]string{"ID_FS_TYPE": "ext4", "DEVNAME": "/dev/sdb"}},
			want: false,
		},
		{
			name: "mapper device attribute",
			ev:   Event{Action: "change", Props: map[string]string{"DM_NAME": "vg00-lv01", "DEVNAME": "/dev/dm-0"}},
			want: true,
		},
		{
			name:  "wipefs on tracked device",
			known: map[string]bool{"/dev/sdb": true},
			ev:    Event{Action: "change", Props: map[string]string{"DEVNAME": "/dev/sdb"}},
			want:  true,
		},
		{
			name:  "wipefs found via symlink",
			known: map[string]bool{"/dev/disk/by-id/abc": true},
			ev: Event{Action: "change", Props: map[string]string{
				"DEVNAME": "/dev/sdb", "DEVLINKS": "/dev/disk/by-id/abc"}},
			want: true,
		},
		{
			name: "unrelated change ignored",
			ev:   Event{Action: "change", Props: map[string]string{"DEVNAME": "/dev/sr0"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := testMonitor(tt.known)
			assert.Equal(t, tt.want, m.filter(tt.ev))
		})
	}
}

func TestDebounceViaThrottleContract(t *testing.T) {
	m, fired := testMonitor(nil)
	ev := Event{Action: "change", Props: map[string]string{"ID_FS_TYPE": "LVM2_member", "DEVNAME": "/dev/sdz"}}
	for i := 0; i < 5; i++ {
		if m.filter(ev) {
			m.OnEvent("udev")
		}
	}
	// The monitor forwards every match; collapsing belongs to the
	// throttle behind OnEvent.
	assert.Equal(t, 5, *fired)
}
