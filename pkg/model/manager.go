package model

import (
	"github.com/google/uuid"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/coordinator"
	"github.com/openlvm/lvmdbusd/pkg/faults"
	"github.com/openlvm/lvmdbusd/pkg/worker"
)

// ManagerVersion is the API version reported to clients.
const ManagerVersion = "1.1.0"

// Manager is the daemon's root entity.
type Manager struct {
	rt       *Runtime
	uuid     string
	throttle *EventThrottle

	// OnExternalEvent, when set, runs on the first ExternalEvent; the
	// daemon uses it to stop udev monitoring when the operator wired an
	// external notifier instead of asking for --udev.
	OnExternalEvent func()
}

// NewManager creates the manager entity; register it with the object
// manager at assembly.
func NewManager(rt *Runtime, throttle *EventThrottle) *Manager {
	return &Manager{rt: rt, uuid: uuid.New().String(), throttle: throttle}
}

func (m *Manager) Path() string          { return config.ManagerObjPath }
func (m *Manager) LvmID() string         { return "Manager" }
func (m *Manager) UUID() string          { return m.uuid }
func (m *Manager) Kind() string          { return "manager" }
func (m *Manager) Interfaces() []string  { return []string{config.ManagerInterface} }
func (m *Manager) Apply(EntityState) bool { return false }

func (m *Manager) Properties() Props {
	return Props{
		config.ManagerInterface: {
			"Version": ManagerVersion,
		},
	}
}

// PvCreate initializes a device as a physical volume.
func (m *Manager) PvCreate(device string, tmo int32, opts map[string]interface{},
	cb func(interface{}), cbe func(error)) {
	rt := m.rt
	rt.Q.Put(worker.NewRequest(tmo, func() (interface{}, error) {
		if err := ValidateDevicePath(config.ManagerInterface, device); err != nil {
			return nil, err
		}
		// Refuse to create over a device we already track as a PV.
		if rt.OM.PathFor(device, device, nil) != "" {
			return nil, faults.NewClient(config.ManagerInterface, "PV Already exists!")
		}
		resp, err := rt.Exec.PvCreate(opts, []string{device})
		if err := surface(config.ManagerInterface, resp, err); err != nil {
			if faults.KindOf(err) == faults.ToolFailure {
				rt.refresh()
			}
			return nil, err
		}
		created := loadTargetedPVs(rt, []string{device})
		if len(created) == 0 {
			return nil, faults.NewToolBug("created PV %s not found after refresh", device)
		}
		return created[0].Path(), nil
	}, cb, cbe, true, rt.Jobs))
}

// VgCreate builds a volume group over the given PVs.
func (m *Manager) VgCreate(name string, pvPaths []string, tmo int32,
	opts map[string]interface{}, cb func(interface{}), cbe func(error)) {
	rt := m.rt
	rt.Q.Put(worker.NewRequest(tmo, func() (interface{}, error) {
		if err := ValidateName(config.ManagerInterface, name); err != nil {
			return nil, err
		}
		devices := make([]string, 0, len(pvPaths))
		for _, p := range pvPaths {
			pv, ok := rt.OM.ByPath(p).(*Pv)
			if !ok {
				return nil, faults.NewClient(config.ManagerInterface,
					"object path = %s not found", p)
			}
			devices = append(devices, pv.LvmID())
		}

		resp, err := rt.Exec.VgCreate(opts, devices, name)
		if err := surface(config.ManagerInterface, resp, err); err != nil {
			if faults.KindOf(err) == faults.ToolFailure {
				rt.refresh()
			}
			return nil, err
		}

		created := loadTargetedVGs(rt, []string{name})
		// The member PVs grew a vg backref; fold that in without
		// another fullreport.
		if _, err := rt.refreshNoCache(); err != nil {
			return nil, err
		}
		if len(created) == 0 {
			return nil, faults.NewToolBug("created VG %s not found after refresh", name)
		}
		return created[0].Path(), nil
	}, cb, cbe, true, rt.Jobs))
}

// Refresh rescans everything; a diagnostic more than a normal operation,
// so the refresh itself is not logged.
func (m *Manager) Refresh(cb func(interface{}), cbe func(error)) {
	rt := m.rt
	rt.Q.Put(worker.NewRequest(worker.TmoBlock, func() (interface{}, error) {
		opts := coordinator.DefaultOpts()
		opts.Log = false
		n, err := rt.Refresh(opts)
		if err != nil {
			return nil, err
		}
		return n, nil
	}, cb, cbe, false, nil))
}

// LookUpByLvmId resolves a device path, vg, vg/lv or uuid to its object
// path in constant time; "/" when unknown.
func (m *Manager) LookUpByLvmId(key string) string {
	if p := m.rt.OM.PathFor(key, key, nil); p != "" {
		return p
	}
	return "/"
}

// UseLvmShell switches the executor between the persistent shell and
// fork & exec. Returns whether the requested mode is in effect.
func (m *Manager) UseLvmShell(yes bool) bool {
	return m.rt.Exec.SetExecution(yes)
}

// ExternalEvent notes an out-of-band state change (e.g. from a udev
// rule) and schedules a coalesced refresh.
func (m *Manager) ExternalEvent(command string) int32 {
	if m.OnExternalEvent != nil {
		m.OnExternalEvent()
	}
	m.throttle.Add(command)
	return 0
}

// PvScan rescans block devices. device paths and major:minor pairs are
// only usable with cache=true.
func (m *Manager) PvScan(activate, cache bool, devicePaths []string,
	majorMinors [][2]int32, tmo int32, opts map[string]interface{},
	cb func(interface{}), cbe func(error)) {
	rt := m.rt
	rt.Q.Put(worker.NewRequest(tmo, func() (interface{}, error) {
		for _, d := range devicePaths {
			if err := ValidateDevicePath(config.ManagerInterface, d); err != nil {
				return nil, err
			}
		}
		resp, err := rt.Exec.PvScan(activate, cache, devicePaths, majorMinors, opts)
		if err := surface(config.ManagerInterface, resp, err); err != nil {
			if faults.KindOf(err) == faults.ToolFailure {
				rt.refresh()
			}
			return nil, err
		}
		// This can change state quite a bit; update everything.
		if _, err := rt.refresh(); err != nil {
			return nil, err
		}
		return "/", nil
	}, cb, cbe, false, rt.Jobs))
}
