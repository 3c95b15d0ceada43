package udevmon

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/log"
	"github.com/openlvm/lvmdbusd/pkg/metrics"
)

// netlink multicast groups for kobject uevents.
const (
	groupKernel = 1
	groupUdev   = 2
)

// fsSignature is the filesystem type marking a block device as an lvm
// member.
const fsSignature = "LVM2_member"

// Event is one decoded uevent.
type Event struct {
	Action string
	Props  map[string]string
}

// Monitor subscribes to block device change events and debounces them
// into refresh requests. Lookup and OnEvent are injected so the monitor
// stays ignorant of the object model.
type Monitor struct {
	rt *config.Runtime
	// Lookup reports whether a device id is currently tracked.
	Lookup func(id string) bool
	// OnEvent admits one coalesced refresh.
	OnEvent func(source string)

	fd       int
	log      zerolog.Logger
	mu       sync.Mutex
	stopped  bool
}

// Stop ends monitoring; used when the operator did not ask for udev and
// an ExternalEvent shows that an external notifier is wired up instead.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	if m.fd > 0 {
		// Unblocks the read loop.
		_ = unix.Shutdown(m.fd, unix.SHUT_RDWR)
	}
}

func (m *Monitor) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// New creates a monitor; Start opens the socket.
func New(rt *config.Runtime, lookup func(string) bool, onEvent func(string)) *Monitor {
	return &Monitor{rt: rt, Lookup: lookup, OnEvent: onEvent, log: log.WithComponent("udev")}
}

// Start opens the uevent netlink socket, preferring the post-processing
// udev group over raw kernel events.
func (m *Monitor) Start() error {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return fmt.Errorf("failed to open uevent socket: %w", err)
	}

	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: groupUdev}
	if err := unix.Bind(fd, sa); err != nil {
		sa.Groups = groupKernel
		if err := unix.Bind(fd, sa); err != nil {
			unix.Close(fd)
			return fmt.Errorf("failed to bind uevent socket: %w", err)
		}
	}

	// Bounded reads keep the loop responsive to shutdown.
	tv := unix.Timeval{Sec: 2}
	_ = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)

	m.fd = fd
	return nil
}

// Run reads and filters events until shutdown.
func (m *Monitor) Run() {
	defer unix.Close(m.fd)
	buf := make([]byte, 64*1024)

	for m.rt.Running() && !m.isStopped() {
		n, _, err := unix.Recvfrom(m.fd, buf, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				continue
			}
			if !m.isStopped() {
				m.log.Error().Err(err).Msg("uevent read failed")
			}
			return
		}
		ev, ok := ParseUevent(buf[:n])
		if !ok {
			continue
		}
		if m.filter(ev) {
			metrics.UdevEventsTotal.WithLabelValues("refresh").Inc()
			m.OnEvent("udev")
		} else {
			metrics.UdevEventsTotal.WithLabelValues("ignored").Inc()
		}
	}
}

// ParseUevent decodes both the raw kernel format
// ("action@devpath\0KEY=VAL\0…") and the libudev binary format (magic
// header, properties at a stated offset).
func ParseUevent(data []byte) (Event, bool) {
	if len(data) == 0 {
		return Event{}, false
	}

	if strings.HasPrefix(string(data), "libudev\x00") {
		if len(data) < 24 {
			return Event{}, false
		}
		// Bytes 16..20 carry the properties offset.
		off := binary.LittleEndian.Uint32(data[16:20])
		if int(off) >= len(data) {
			return Event{}, false
		}
		props := parseProps(data[off:])
		action := props["ACTION"]
		if action == "" {
			return Event{}, false
		}
		return Event{Action: action, Props: props}, true
	}

	// Kernel format: header line then properties.
	nul := strings.IndexByte(string(data), 0)
	if nul < 0 {
		return Event{}, false
	}
	header := string(data[:nul])
	at := strings.Index(header, "@")
	if at <= 0 {
		return Event{}, false
	}
	props := parseProps(data[nul+1:])
	return Event{Action: header[:at], Props: props}, true
}

func parseProps(data []byte) map[string]string {
	props := make(map[string]string)
	for _, field := range strings.Split(string(data), "\x00") {
		if eq := strings.IndexByte(field, '='); eq > 0 {
			props[field[:eq]] = field[eq+1:]
		}
	}
	return props
}

// TranslateDmPath maps a /dev/dm-N device to its mapper-style path via
// the dm-name-* symlink in DEVLINKS. Only meaningful when the device
// prefix differs from /dev (test environments); in production the
// direct lookup already hits.
func TranslateDmPath(devDir, devname, devlinks string) string {
	if !strings.HasPrefix(devname, "/dev/dm-") {
		return ""
	}
	for _, link := range strings.Fields(devlinks) {
		if i := strings.Index(link, "dm-name-"); i >= 0 {
			return devDir + "/mapper/" + link[i+len("dm-name-"):]
		}
	}
	return ""
}

// lookupWithTranslation tries the device name directly, then the
// translated mapper path under a test device prefix.
func (m *Monitor) lookupWithTranslation(props map[string]string) bool {
	devname := props["DEVNAME"]
	if devname == "" {
		return false
	}
	if m.Lookup(devname) {
		return true
	}
	devDir := os.Getenv("DM_DEV_DIR")
	if devDir != "" && devDir != "/dev" {
		if p := TranslateDmPath(devDir, devname, props["DEVLINKS"]); p != "" && m.Lookup(p) {
			return true
		}
	}
	return false
}

// filter selects the events worth a refresh: an lvm signature appearing
// on a device we do not track, a tracked device going empty, any event
// on a tracked device without a filesystem attribute (wipefs), or a
// device-mapper event.
func (m *Monitor) filter(ev Event) bool {
	if ev.Action != "change" {
		return false
	}

	if _, ok := ev.Props["ID_FS_TYPE"]; ok {
		fsType := ev.Props["ID_FS_TYPE"]
		switch {
		case strings.Contains(fsType, fsSignature):
			// A signature on an unknown device: either a pvcreate we
			// will hear about anyway, or somebody copied a PV signature
			// onto a block device. The latter only shows up here.
			return !m.lookupWithTranslation(ev.Props)
		case fsType == "":
			return m.lookupWithTranslation(ev.Props)
		}
		return false
	}

	if ev.Props["DM_NAME"] != "" {
		return true
	}

	// The wipefs -a path: no fs attribute at all on a device (or one of
	// its symlinks) we track.
	if m.lookupWithTranslation(ev.Props) {
		return true
	}
	for _, link := range strings.Fields(ev.Props["DEVLINKS"]) {
		if m.Lookup(link) {
			return true
		}
	}
	return false
}
