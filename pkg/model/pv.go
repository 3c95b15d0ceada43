package model

import (
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/datastore"
	"github.com/openlvm/lvmdbusd/pkg/faults"
	"github.com/openlvm/lvmdbusd/pkg/lvmcmd"
	"github.com/openlvm/lvmdbusd/pkg/worker"
)

// PvState is the reconciled view of one physical volume row.
type PvState struct {
	uuid string
	name string
	fmt  string

	sizeBytes    uint64
	freeBytes    uint64
	usedBytes    uint64
	devSizeBytes uint64
	mdaSizeBytes uint64
	mdaFreeBytes uint64
	baStart      uint64
	baSizeBytes  uint64
	peStart      uint64
	peCount      uint64
	peAllocCount uint64

	attr    string
	tags    string
	missing bool

	vgName string
	vgUUID string
	vgPath dbus.ObjectPath

	segs []datastore.Seg
	lvs  []DeviceRange
}

func newPvState(rt *Runtime, row datastore.Row) *PvState {
	st := &PvState{
		uuid:         row["pv_uuid"],
		name:         row["pv_name"],
		fmt:          row["pv_fmt"],
		sizeBytes:    datastore.U64(row, "pv_size"),
		freeBytes:    datastore.U64(row, "pv_free"),
		usedBytes:    datastore.U64(row, "pv_used"),
		devSizeBytes: datastore.U64(row, "dev_size"),
		mdaSizeBytes: datastore.U64(row, "pv_mda_size"),
		mdaFreeBytes: datastore.U64(row, "pv_mda_free"),
		baStart:      datastore.U64(row, "pv_ba_start"),
		baSizeBytes:  datastore.U64(row, "pv_ba_size"),
		peStart:      datastore.U64(row, "pe_start"),
		peCount:      datastore.U64(row, "pv_pe_count"),
		peAllocCount: datastore.U64(row, "pv_pe_alloc_count"),
		attr:         row["pv_attr"],
		tags:         row["pv_tags"],
		vgName:       row["vg_name"],
		vgUUID:       row["vg_uuid"],
		vgPath:       objNone,
	}

	missing := row["pv_missing"]
	st.missing = missing != "" && missing != "0" && missing != "unknown"

	if st.vgName != "" {
		st.vgPath = dbus.ObjectPath(rt.OM.PathFor(
			st.vgUUID, st.vgName, rt.Cfg.NextVgPath))
	}

	st.segs = rt.DB.PVSegs(st.uuid)

	// The LVs occupying this PV. An LV not registered yet resolves on a
	// later refresh; until then it is skipped, matching the load order
	// (PVs reconcile before LVs).
	for _, lv := range rt.DB.PVContainedLV(st.uuid) {
		lvPath := rt.OM.PathFor(lv.UUID, lv.Name, nil)
		if lvPath == "" {
			continue
		}
		ranges := make([]SegRange, 0, len(lv.Segs))
		for _, s := range lv.Segs {
			ranges = append(ranges, SegRange{Start: s.Start, End: s.End, Type: s.SegType})
		}
		st.lvs = append(st.lvs, DeviceRange{Object: dbus.ObjectPath(lvPath), Ranges: ranges})
	}
	return st
}

func (s *PvState) UUID() string  { return s.uuid }
func (s *PvState) LvmID() string { return s.name }
func (s *PvState) Kind() string  { return "pv" }

func (s *PvState) Allocate(rt *Runtime) func() string { return rt.Cfg.NextPvPath }

func (s *PvState) NewEntity(rt *Runtime, path string) Entity {
	return &Pv{rt: rt, path: path, st: s}
}

// Pv is the physical volume entity.
type Pv struct {
	rt   *Runtime
	path string

	mu sync.RWMutex
	st *PvState
}

func (p *Pv) Path() string { return p.path }
func (p *Pv) Kind() string { return "pv" }

func (p *Pv) LvmID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.st.name
}

func (p *Pv) UUID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.st.uuid
}

func (p *Pv) Interfaces() []string { return []string{config.PvInterface} }

func (p *Pv) Properties() Props {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := p.st

	segs := make([]SegRange, 0, len(st.segs))
	for _, s := range st.segs {
		segs = append(segs, SegRange{Start: s.Start, End: s.End, Type: s.SegType})
	}
	lvs := st.lvs
	if lvs == nil {
		lvs = []DeviceRange{}
	}

	return Props{
		config.PvInterface: {
			"Uuid":         st.uuid,
			"Name":         st.name,
			"Fmt":          st.fmt,
			"SizeBytes":    st.sizeBytes,
			"FreeBytes":    st.freeBytes,
			"UsedBytes":    st.usedBytes,
			"DevSizeBytes": st.devSizeBytes,
			"MdaSizeBytes": st.mdaSizeBytes,
			"MdaFreeBytes": st.mdaFreeBytes,
			"BaStart":      st.baStart,
			"BaSizeBytes":  st.baSizeBytes,
			"PeStart":      st.peStart,
			"PeCount":      st.peCount,
			"PeAllocCount": st.peAllocCount,
			"PeSegments":   segs,
			"Exportable":   len(st.attr) > 1 && st.attr[1] == 'x',
			"Allocatable":  len(st.attr) > 0 && st.attr[0] == 'a',
			"Missing":      st.missing,
			"Lv":           lvs,
			"Vg":           st.vgPath,
			"Tags":         parseTags(st.tags),
		},
	}
}

// Apply folds a fresh state in, reporting visible change.
func (p *Pv) Apply(st EntityState) bool {
	pvState, ok := st.(*PvState)
	if !ok {
		return false
	}
	before := p.Properties()
	p.mu.Lock()
	p.st = pvState
	p.mu.Unlock()
	return !propsEqual(before, p.Properties())
}

// ids snapshots the identifiers a handler captures at enqueue time.
func (p *Pv) ids() (string, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.st.uuid, p.st.name
}

// Remove queues pvremove for this PV.
func (p *Pv) Remove(tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	uuid, name := p.ids()
	rt := p.rt
	rt.Q.Put(worker.NewRequest(tmo, func() (interface{}, error) {
		return pvRemove(rt, uuid, name, opts)
	}, cb, cbe, false, rt.Jobs))
}

// ReSize queues pvresize to newSizeBytes (0 means fill the device).
func (p *Pv) ReSize(newSizeBytes uint64, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	uuid, name := p.ids()
	rt := p.rt
	rt.Q.Put(worker.NewRequest(tmo, func() (interface{}, error) {
		return pvResize(rt, uuid, name, newSizeBytes, opts)
	}, cb, cbe, false, rt.Jobs))
}

// AllocationEnabled queues pvchange -x.
func (p *Pv) AllocationEnabled(yes bool, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	uuid, name := p.ids()
	rt := p.rt
	rt.Q.Put(worker.NewRequest(tmo, func() (interface{}, error) {
		return pvAllocationEnabled(rt, uuid, name, yes, opts)
	}, cb, cbe, false, rt.Jobs))
}

// lookupPv fetches the tracked PV or reports a client error.
func lookupPv(rt *Runtime, uuid, name string) (*Pv, error) {
	if e := rt.OM.ByUUIDLvmID(uuid, name); e != nil {
		if pv, ok := e.(*Pv); ok {
			return pv, nil
		}
	}
	return nil, faults.NewClient(config.PvInterface,
		"PV with uuid %s and name %s not present!", uuid, name)
}

// surface converts a non-zero lvm exit into a tool failure fault.
func surface(iface string, resp lvmcmd.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.Interrupted() {
		return faults.ErrShutdown
	}
	if resp.ExitCode != 0 {
		return faults.NewToolFailure(iface, resp.ExitCode, resp.Stderr)
	}
	return nil
}

func pvRemove(rt *Runtime, uuid, name string, opts lvmcmd.Options) (interface{}, error) {
	dbo, err := lookupPv(rt, uuid, name)
	if err != nil {
		return nil, err
	}
	resp, err := rt.Exec.PvRemove(name, opts)
	if err := surface(config.PvInterface, resp, err); err != nil {
		if faults.KindOf(err) == faults.ToolFailure {
			// Partial state may have changed.
			rt.refresh()
		}
		return nil, err
	}
	rt.OM.Remove(dbo, true)
	if _, err := rt.refresh(); err != nil {
		return nil, err
	}
	return "/", nil
}

func pvResize(rt *Runtime, uuid, name string, newSizeBytes uint64, opts lvmcmd.Options) (interface{}, error) {
	if _, err := lookupPv(rt, uuid, name); err != nil {
		return nil, err
	}
	resp, err := rt.Exec.PvResize(name, newSizeBytes, opts)
	if err := surface(config.PvInterface, resp, err); err != nil {
		if faults.KindOf(err) == faults.ToolFailure {
			rt.refresh()
		}
		return nil, err
	}
	if _, err := rt.refresh(); err != nil {
		return nil, err
	}
	return "/", nil
}

func pvAllocationEnabled(rt *Runtime, uuid, name string, yes bool, opts lvmcmd.Options) (interface{}, error) {
	if _, err := lookupPv(rt, uuid, name); err != nil {
		return nil, err
	}
	resp, err := rt.Exec.PvAllocatable(name, yes, opts)
	if err := surface(config.PvInterface, resp, err); err != nil {
		if faults.KindOf(err) == faults.ToolFailure {
			rt.refresh()
		}
		return nil, err
	}
	if _, err := rt.refresh(); err != nil {
		return nil, err
	}
	return "/", nil
}

// pvsStateRetrieve builds PV states from the current snapshot.
func pvsStateRetrieve(rt *Runtime, selection []string) []EntityState {
	rows := rt.DB.FetchPVs(selection)
	rc := make([]EntityState, 0, len(rows))
	for _, row := range rows {
		rc = append(rc, newPvState(rt, row))
	}
	return rc
}
