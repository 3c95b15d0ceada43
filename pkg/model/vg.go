package model

import (
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/openlvm/lvmdbusd/pkg/background"
	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/datastore"
	"github.com/openlvm/lvmdbusd/pkg/faults"
	"github.com/openlvm/lvmdbusd/pkg/lvmcmd"
	"github.com/openlvm/lvmdbusd/pkg/worker"
)

// lvPathAllocator picks the object path kind for an LV from its display
// name and attribute bits.
func lvPathAllocator(rt *Runtime, name, attr, layout string) func() string {
	switch {
	case strings.HasPrefix(name, "["):
		return rt.Cfg.NextHiddenLvPath
	case strings.HasPrefix(attr, "t"):
		return rt.Cfg.NextThinPoolPath
	case strings.HasPrefix(attr, "C") && strings.Contains(layout, "pool"):
		return rt.Cfg.NextCachePoolPath
	case strings.HasPrefix(attr, "d"):
		return rt.Cfg.NextVdoPoolPath
	default:
		return rt.Cfg.NextLvPath
	}
}

// VgState is the reconciled view of one volume group row.
type VgState struct {
	uuid string
	name string
	fmt  string

	sizeBytes    uint64
	freeBytes    uint64
	sysID        string
	extentSize   uint64
	extentCount  uint64
	freeCount    uint64
	profile      string
	maxLv        int64
	maxPv        int64
	pvCount      uint64
	lvCount      uint64
	snapCount    uint64
	seqno        uint64
	mdaCount     uint64
	mdaFree      uint64
	mdaSizeBytes uint64
	mdaUsedCount uint64
	attr         string
	tags         string

	pvs []dbus.ObjectPath
	lvs []dbus.ObjectPath
}

func newVgState(rt *Runtime, row datastore.Row) *VgState {
	st := &VgState{
		uuid:         row["vg_uuid"],
		name:         row["vg_name"],
		fmt:          row["vg_fmt"],
		sizeBytes:    datastore.U64(row, "vg_size"),
		freeBytes:    datastore.U64(row, "vg_free"),
		sysID:        row["vg_sysid"],
		extentSize:   datastore.U64(row, "vg_extent_size"),
		extentCount:  datastore.U64(row, "vg_extent_count"),
		freeCount:    datastore.U64(row, "vg_free_count"),
		profile:      row["vg_profile"],
		maxLv:        datastore.I64(row, "max_lv"),
		maxPv:        datastore.I64(row, "max_pv"),
		pvCount:      datastore.U64(row, "pv_count"),
		lvCount:      datastore.U64(row, "lv_count"),
		snapCount:    datastore.U64(row, "snap_count"),
		seqno:        datastore.U64(row, "vg_seqno"),
		mdaCount:     datastore.U64(row, "vg_mda_count"),
		mdaFree:      datastore.U64(row, "vg_mda_free"),
		mdaSizeBytes: datastore.U64(row, "vg_mda_size"),
		mdaUsedCount: datastore.U64(row, "vg_mda_used_count"),
		attr:         row["vg_attr"],
		tags:         row["vg_tags"],
	}

	for _, pv := range rt.DB.PVsInVG(st.uuid) {
		st.pvs = append(st.pvs, dbus.ObjectPath(
			rt.OM.PathFor(pv.UUID, pv.Name, rt.Cfg.NextPvPath)))
	}
	for _, lv := range rt.DB.LVsInVG(st.uuid) {
		full := st.name + "/" + lv.Name
		st.lvs = append(st.lvs, dbus.ObjectPath(rt.OM.PathFor(
			lv.UUID, full, lvPathAllocator(rt, lv.Name, lv.Attr, lv.Layout))))
	}
	return st
}

func (s *VgState) UUID() string  { return s.uuid }
func (s *VgState) LvmID() string { return s.name }
func (s *VgState) Kind() string  { return "vg" }

func (s *VgState) Allocate(rt *Runtime) func() string { return rt.Cfg.NextVgPath }

func (s *VgState) NewEntity(rt *Runtime, path string) Entity {
	return &Vg{rt: rt, path: path, st: s}
}

// Vg is the volume group entity. When VDO is supported it also carries
// the VgVdo creation interface.
type Vg struct {
	rt   *Runtime
	path string

	mu sync.RWMutex
	st *VgState
}

func (v *Vg) Path() string { return v.path }
func (v *Vg) Kind() string { return "vg" }

func (v *Vg) LvmID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.st.name
}

func (v *Vg) UUID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.st.uuid
}

func (v *Vg) Interfaces() []string {
	if v.rt.Cfg.VDOSupport {
		return []string{config.VgInterface, config.VgVdoInterface}
	}
	return []string{config.VgInterface}
}

func (v *Vg) Name() string { return v.LvmID() }

func (v *Vg) attrBool(idx int, ch byte) bool {
	return len(v.st.attr) > idx && v.st.attr[idx] == ch
}

func (v *Vg) Properties() Props {
	v.mu.RLock()
	defer v.mu.RUnlock()
	st := v.st

	pvs := st.pvs
	if pvs == nil {
		pvs = []dbus.ObjectPath{}
	}
	lvs := st.lvs
	if lvs == nil {
		lvs = []dbus.ObjectPath{}
	}

	props := map[string]interface{}{
		"Uuid":            st.uuid,
		"Name":            st.name,
		"Fmt":             st.fmt,
		"SizeBytes":       st.sizeBytes,
		"FreeBytes":       st.freeBytes,
		"SysId":           st.sysID,
		"ExtentSizeBytes": st.extentSize,
		"ExtentCount":     st.extentCount,
		"FreeCount":       st.freeCount,
		"Profile":         st.profile,
		"MaxLv":           st.maxLv,
		"MaxPv":           st.maxPv,
		"PvCount":         st.pvCount,
		"LvCount":         st.lvCount,
		"SnapCount":       st.snapCount,
		"Seqno":           st.seqno,
		"MdaCount":        st.mdaCount,
		"MdaFree":         st.mdaFree,
		"MdaSizeBytes":    st.mdaSizeBytes,
		"MdaUseCount":     st.mdaUsedCount,
		"Pvs":             pvs,
		"Lvs":             lvs,
		"Tags":            parseTags(st.tags),
		"Writeable":       v.attrBool(0, 'w'),
		"Readable":        v.attrBool(0, 'r'),
		"Resizeable":      v.attrBool(1, 'z'),
		"Exportable":      v.attrBool(2, 'x'),
		"Partial":         v.attrBool(3, 'p'),
		"AllocContiguous": v.attrBool(4, 'c'),
		"AllocCling":      v.attrBool(4, 'l'),
		"AllocNormal":     v.attrBool(4, 'n'),
		"AllocAnywhere":   v.attrBool(4, 'a'),
		"Clustered":       v.attrBool(5, 'c'),
	}

	rc := Props{config.VgInterface: props}
	if v.rt.Cfg.VDOSupport {
		rc[config.VgVdoInterface] = map[string]interface{}{}
	}
	return rc
}

func (v *Vg) Apply(st EntityState) bool {
	vgState, ok := st.(*VgState)
	if !ok {
		return false
	}
	before := v.Properties()
	v.mu.Lock()
	oldUUID, oldName := v.st.uuid, v.st.name
	v.st = vgState
	v.mu.Unlock()
	if oldUUID != vgState.uuid || oldName != vgState.name {
		v.rt.OM.LookupUpdate(v, vgState.uuid, vgState.name)
	}
	return !propsEqual(before, v.Properties())
}

func (v *Vg) ids() (string, string) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.st.uuid, v.st.name
}

// enqueue wraps the lookup-execute-refresh handler template.
func (v *Vg) enqueue(tmo int32, returnTuple bool, cb func(interface{}), cbe func(error),
	handler func(vg *Vg) (interface{}, error)) {
	uuid, name := v.ids()
	rt := v.rt
	rt.Q.Put(worker.NewRequest(tmo, func() (interface{}, error) {
		dbo, err := lookupVg(rt, uuid, name)
		if err != nil {
			return nil, err
		}
		return handler(dbo)
	}, cb, cbe, returnTuple, rt.Jobs))
}

func lookupVg(rt *Runtime, uuid, name string) (*Vg, error) {
	if e := rt.OM.ByUUIDLvmID(uuid, name); e != nil {
		if vg, ok := e.(*Vg); ok {
			return vg, nil
		}
	}
	return nil, faults.NewClient(config.VgInterface,
		"VG with uuid %s and name %s not present!", uuid, name)
}

// vgRun takes the outcome of one mutating vg command and performs the
// follow-up refresh, faulting on non-zero exit.
func vgRun(rt *Runtime, resp lvmcmd.Response, err error) (interface{}, error) {
	if err := surface(config.VgInterface, resp, err); err != nil {
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

// pvPathsToNames resolves PV object paths to device names.
func pvPathsToNames(rt *Runtime, iface string, paths []dbus.ObjectPath) ([]string, error) {
	devices := make([]string, 0, len(paths))
	for _, p := range paths {
		e := rt.OM.ByPath(string(p))
		pv, ok := e.(*Pv)
		if !ok {
			return nil, faults.NewClient(iface, "object path = %s not found", p)
		}
		devices = append(devices, pv.LvmID())
	}
	return devices, nil
}

// pvRangesToNames resolves (path, start, end) destination tuples.
func pvRangesToNames(rt *Runtime, iface string, dests []DeviceRange) ([]lvmcmd.PvSegRange, error) {
	rc := make([]lvmcmd.PvSegRange, 0, len(dests))
	for _, d := range dests {
		e := rt.OM.ByPath(string(d.Object))
		pv, ok := e.(*Pv)
		if !ok {
			return nil, faults.NewClient(iface, "PV Destination (%s) not found", d.Object)
		}
		var start, end uint64
		if len(d.Ranges) > 0 {
			start, end = d.Ranges[0].Start, d.Ranges[0].End
		}
		rc = append(rc, lvmcmd.PvSegRange{Name: pv.LvmID(), Start: start, End: end})
	}
	return rc, nil
}

// Rename queues vgrename; children stay resolvable under the new name
// after the follow-up refresh repairs the indexes.
func (v *Vg) Rename(name string, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.enqueue(tmo, false, cb, cbe, func(vg *Vg) (interface{}, error) {
		if err := ValidateName(config.VgInterface, name); err != nil {
			return nil, err
		}
		resp, err := rt.Exec.VgRename(vg.UUID(), name, opts)
		return vgRun(rt, resp, err)
	})
}

// Remove queues vgremove -f.
func (v *Vg) Remove(tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.enqueue(tmo, false, cb, cbe, func(vg *Vg) (interface{}, error) {
		resp, err := rt.Exec.VgRemove(vg.LvmID(), opts)
		if err := surface(config.VgInterface, resp, err); err != nil {
			if faults.KindOf(err) == faults.ToolFailure {
				rt.refresh()
			}
			return nil, err
		}
		rt.OM.Remove(vg, true)
		if _, err := rt.refresh(); err != nil {
			return nil, err
		}
		return "/", nil
	})
}

// Change queues vgchange with the caller's options.
func (v *Vg) Change(tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.enqueue(tmo, false, cb, cbe, func(vg *Vg) (interface{}, error) {
		resp, err := rt.Exec.VgChange(opts, vg.LvmID())
		return vgRun(rt, resp, err)
	})
}

// Reduce queues vgreduce.
func (v *Vg) Reduce(missing bool, pvPaths []dbus.ObjectPath, tmo int32,
	opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.enqueue(tmo, false, cb, cbe, func(vg *Vg) (interface{}, error) {
		devices, err := pvPathsToNames(rt, config.VgInterface, pvPaths)
		if err != nil {
			return nil, err
		}
		resp, err := rt.Exec.VgReduce(vg.LvmID(), missing, devices, opts)
		return vgRun(rt, resp, err)
	})
}

// Extend queues vgextend.
func (v *Vg) Extend(pvPaths []dbus.ObjectPath, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.enqueue(tmo, false, cb, cbe, func(vg *Vg) (interface{}, error) {
		devices, err := pvPathsToNames(rt, config.VgInterface, pvPaths)
		if err != nil {
			return nil, err
		}
		resp, err := rt.Exec.VgExtend(vg.LvmID(), devices, opts)
		return vgRun(rt, resp, err)
	})
}

// Move relocates extents off a PV, optionally constrained to ranges,
// under the background job contract.
func (v *Vg) Move(pvSrc dbus.ObjectPath, srcStart, srcEnd uint64,
	dests []DeviceRange, tmo int32, opts lvmcmd.Options) (string, error) {
	return moveCommon(v.rt, config.VgInterface, "", pvSrc, srcStart, srcEnd, dests, opts, tmo)
}

// moveCommon is shared by Vg.Move and Lv.Move.
func moveCommon(rt *Runtime, iface, lvFullName string, pvSrc dbus.ObjectPath,
	srcStart, srcEnd uint64, dests []DeviceRange, opts lvmcmd.Options, tmo int32) (string, error) {
	src, ok := rt.OM.ByPath(string(pvSrc)).(*Pv)
	if !ok {
		return "/", faults.NewClient(iface, "pv_src_obj (%s) not found", pvSrc)
	}
	pvDests, err := pvRangesToNames(rt, iface, dests)
	if err != nil {
		return "/", err
	}
	cmd := background.MoveCmd(opts, lvFullName, src.LvmID(), srcStart, srcEnd, pvDests)
	return rt.BG.MoveMerge(iface, cmd, tmo, false)
}

// lvCreate wraps the create-then-locate template all LvCreate* methods
// share: run the command, materialize the new LV, refresh, return the
// new object path.
func (v *Vg) lvCreate(tmo int32, name string, cb func(interface{}), cbe func(error),
	invoke func(vg *Vg) (lvmcmd.Response, error)) {
	rt := v.rt
	v.enqueue(tmo, true, cb, cbe, func(vg *Vg) (interface{}, error) {
		if err := ValidateName(config.VgInterface, name); err != nil {
			return nil, err
		}
		resp, err := invoke(vg)
		if err := surface(config.VgInterface, resp, err); err != nil {
			if faults.KindOf(err) == faults.ToolFailure {
				rt.refresh()
			}
			return nil, err
		}
		full := vg.LvmID() + "/" + name
		created := loadTargetedLVs(rt, []string{full})
		if _, err := rt.refreshNoCache(); err != nil {
			return nil, err
		}
		if len(created) == 0 {
			if e := rt.OM.ByLvmID(full); e != nil {
				return e.Path(), nil
			}
			return nil, faults.NewToolBug("created LV %s not found after refresh", full)
		}
		return created[0].Path(), nil
	})
}

// LvCreate queues lvcreate with explicit PV destinations.
func (v *Vg) LvCreate(name string, sizeBytes uint64, dests []DeviceRange,
	tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.lvCreate(tmo, name, cb, cbe, func(vg *Vg) (lvmcmd.Response, error) {
		pvDests, err := pvRangesToNames(rt, config.VgInterface, dests)
		if err != nil {
			return lvmcmd.Response{}, err
		}
		return rt.Exec.VgLvCreate(vg.LvmID(), opts, name, roundSize(sizeBytes), pvDests)
	})
}

// LvCreateLinear queues a linear (or thin) lvcreate.
func (v *Vg) LvCreateLinear(name string, sizeBytes uint64, thinPool bool,
	tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.lvCreate(tmo, name, cb, cbe, func(vg *Vg) (lvmcmd.Response, error) {
		return rt.Exec.VgLvCreateLinear(vg.LvmID(), opts, name, roundSize(sizeBytes), thinPool)
	})
}

// LvCreateStriped queues a striped lvcreate.
func (v *Vg) LvCreateStriped(name string, sizeBytes uint64, numStripes, stripeSizeKB uint32,
	thinPool bool, tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.lvCreate(tmo, name, cb, cbe, func(vg *Vg) (lvmcmd.Response, error) {
		return rt.Exec.VgLvCreateStriped(vg.LvmID(), opts, name, roundSize(sizeBytes),
			numStripes, stripeSizeKB, thinPool)
	})
}

// LvCreateMirror queues a mirrored lvcreate.
func (v *Vg) LvCreateMirror(name string, sizeBytes uint64, numCopies uint32,
	tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.lvCreate(tmo, name, cb, cbe, func(vg *Vg) (lvmcmd.Response, error) {
		return rt.Exec.VgLvCreateMirror(vg.LvmID(), opts, name, roundSize(sizeBytes), numCopies)
	})
}

// LvCreateRaid queues a raid lvcreate.
func (v *Vg) LvCreateRaid(name, raidType string, sizeBytes uint64,
	numStripes, stripeSizeKB uint32, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.lvCreate(tmo, name, cb, cbe, func(vg *Vg) (lvmcmd.Response, error) {
		return rt.Exec.VgLvCreateRaid(vg.LvmID(), opts, name, raidType, roundSize(sizeBytes),
			numStripes, stripeSizeKB)
	})
}

// poolConvert is shared by CreateCachePool and CreateThinPool: both
// lvconvert a metadata LV plus a data LV into a pool, after which both
// source objects are gone and the pool takes the data LV's name.
func (v *Vg) poolConvert(mdPath, dataPath dbus.ObjectPath, tmo int32, cb func(interface{}), cbe func(error),
	invoke func(md, data string) (lvmcmd.Response, error)) {
	rt := v.rt
	v.enqueue(tmo, true, cb, cbe, func(vg *Vg) (interface{}, error) {
		md, mdOK := rt.OM.ByPath(string(mdPath)).(*Lv)
		data, dataOK := rt.OM.ByPath(string(dataPath)).(*Lv)
		if !mdOK || !dataOK {
			return nil, faults.NewClient(config.VgInterface,
				"LV metadata or data path not found (%s, %s)", mdPath, dataPath)
		}

		dataName := data.FullName()
		resp, err := invoke(md.FullName(), dataName)
		if err := surface(config.VgInterface, resp, err); err != nil {
			if faults.KindOf(err) == faults.ToolFailure {
				rt.refresh()
			}
			return nil, err
		}

		// Both inputs change interface: drop them and let the refresh
		// build the pool object.
		rt.OM.Remove(md, true)
		rt.OM.Remove(data, true)
		if _, err := rt.refresh(); err != nil {
			return nil, err
		}
		if e := rt.OM.ByLvmID(dataName); e != nil {
			return e.Path(), nil
		}
		return nil, faults.NewToolBug("pool %s not found after conversion", dataName)
	})
}

// CreateCachePool converts a metadata LV plus data LV into a cache pool.
func (v *Vg) CreateCachePool(mdPath, dataPath dbus.ObjectPath, tmo int32,
	opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.poolConvert(mdPath, dataPath, tmo, cb, cbe, func(md, data string) (lvmcmd.Response, error) {
		return rt.Exec.VgCreateCachePool(md, data, opts)
	})
}

// CreateThinPool converts a metadata LV plus data LV into a thin pool.
func (v *Vg) CreateThinPool(mdPath, dataPath dbus.ObjectPath, tmo int32,
	opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.poolConvert(mdPath, dataPath, tmo, cb, cbe, func(md, data string) (lvmcmd.Response, error) {
		return rt.Exec.VgCreateThinPool(md, data, opts)
	})
}

// CreateVdoPoolandLv creates a VDO pool and its LV in one step (VgVdo).
func (v *Vg) CreateVdoPoolandLv(poolName, lvName string, dataSize, virtualSize uint64,
	tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.enqueue(tmo, true, cb, cbe, func(vg *Vg) (interface{}, error) {
		if err := ValidateName(config.VgVdoInterface, poolName); err != nil {
			return nil, err
		}
		if err := ValidateName(config.VgVdoInterface, lvName); err != nil {
			return nil, err
		}
		resp, err := rt.Exec.VgCreateVdoPoolLvAndLv(
			vg.LvmID(), poolName, lvName, roundSize(dataSize), roundSize(virtualSize), opts)
		if err := surface(config.VgVdoInterface, resp, err); err != nil {
			if faults.KindOf(err) == faults.ToolFailure {
				rt.refresh()
			}
			return nil, err
		}
		full := vg.LvmID() + "/" + lvName
		loadTargetedLVs(rt, []string{full})
		if _, err := rt.refreshNoCache(); err != nil {
			return nil, err
		}
		if e := rt.OM.ByLvmID(full); e != nil {
			return e.Path(), nil
		}
		return nil, faults.NewToolBug("created VDO LV %s not found after refresh", full)
	})
}

// CreateVdoPool converts an existing LV into a VDO pool (VgVdo).
func (v *Vg) CreateVdoPool(poolPath dbus.ObjectPath, name string, virtualSize uint64,
	tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.enqueue(tmo, true, cb, cbe, func(vg *Vg) (interface{}, error) {
		pool, ok := rt.OM.ByPath(string(poolPath)).(*Lv)
		if !ok {
			return nil, faults.NewClient(config.VgVdoInterface,
				"LV to convert (%s) not found", poolPath)
		}
		if err := ValidateName(config.VgVdoInterface, name); err != nil {
			return nil, err
		}
		resp, err := rt.Exec.VgCreateVdoPool(pool.FullName(), name, roundSize(virtualSize), opts)
		if err := surface(config.VgVdoInterface, resp, err); err != nil {
			if faults.KindOf(err) == faults.ToolFailure {
				rt.refresh()
			}
			return nil, err
		}
		full := vg.LvmID() + "/" + name
		rt.OM.Remove(pool, true)
		if _, err := rt.refresh(); err != nil {
			return nil, err
		}
		if e := rt.OM.ByLvmID(full); e != nil {
			return e.Path(), nil
		}
		return nil, faults.NewToolBug("created VDO LV %s not found after refresh", full)
	})
}

// PvTagsAdd queues tag additions on member PVs.
func (v *Vg) PvTagsAdd(pvPaths []dbus.ObjectPath, tags []string, tmo int32,
	opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	v.pvTags(pvPaths, tags, nil, tmo, opts, cb, cbe)
}

// PvTagsDel queues tag removals on member PVs.
func (v *Vg) PvTagsDel(pvPaths []dbus.ObjectPath, tags []string, tmo int32,
	opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	v.pvTags(pvPaths, nil, tags, tmo, opts, cb, cbe)
}

func (v *Vg) pvTags(pvPaths []dbus.ObjectPath, add, del []string, tmo int32,
	opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.enqueue(tmo, false, cb, cbe, func(vg *Vg) (interface{}, error) {
		if err := ValidateTags(config.VgInterface, append(append([]string{}, add...), del...)); err != nil {
			return nil, err
		}
		devices, err := pvPathsToNames(rt, config.VgInterface, pvPaths)
		if err != nil {
			return nil, err
		}
		resp, err := rt.Exec.PvTag(devices, add, del, opts)
		return vgRun(rt, resp, err)
	})
}

// TagsAdd queues vgchange --addtag.
func (v *Vg) TagsAdd(tags []string, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	v.tagsChange(tags, nil, tmo, opts, cb, cbe)
}

// TagsDel queues vgchange --deltag.
func (v *Vg) TagsDel(tags []string, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	v.tagsChange(nil, tags, tmo, opts, cb, cbe)
}

func (v *Vg) tagsChange(add, del []string, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.enqueue(tmo, false, cb, cbe, func(vg *Vg) (interface{}, error) {
		if err := ValidateTags(config.VgInterface, append(append([]string{}, add...), del...)); err != nil {
			return nil, err
		}
		resp, err := rt.Exec.VgTag(vg.LvmID(), add, del, opts)
		return vgRun(rt, resp, err)
	})
}

// AllocationPolicySet queues vgchange --alloc.
func (v *Vg) AllocationPolicySet(policy string, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.enqueue(tmo, false, cb, cbe, func(vg *Vg) (interface{}, error) {
		resp, err := rt.Exec.VgAllocationPolicy(vg.LvmID(), policy, opts)
		return vgRun(rt, resp, err)
	})
}

// MaxPvSet queues vgchange --maxphysicalvolumes.
func (v *Vg) MaxPvSet(number uint64, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.enqueue(tmo, false, cb, cbe, func(vg *Vg) (interface{}, error) {
		resp, err := rt.Exec.VgMaxPv(vg.LvmID(), number, opts)
		return vgRun(rt, resp, err)
	})
}

// MaxLvSet queues vgchange -l.
func (v *Vg) MaxLvSet(number uint64, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.enqueue(tmo, false, cb, cbe, func(vg *Vg) (interface{}, error) {
		resp, err := rt.Exec.VgMaxLv(vg.LvmID(), number, opts)
		return vgRun(rt, resp, err)
	})
}

// UuidGenerate queues vgchange --uuid.
func (v *Vg) UuidGenerate(tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.enqueue(tmo, false, cb, cbe, func(vg *Vg) (interface{}, error) {
		resp, err := rt.Exec.VgUuidGen(vg.LvmID(), opts)
		return vgRun(rt, resp, err)
	})
}

// Activate queues vgchange -a y with the control flag bits.
func (v *Vg) Activate(controlFlags uint64, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	v.activateDeactivate(true, controlFlags, tmo, opts, cb, cbe)
}

// Deactivate queues vgchange -a n.
func (v *Vg) Deactivate(controlFlags uint64, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	v.activateDeactivate(false, controlFlags, tmo, opts, cb, cbe)
}

func (v *Vg) activateDeactivate(activate bool, controlFlags uint64, tmo int32,
	opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := v.rt
	v.enqueue(tmo, false, cb, cbe, func(vg *Vg) (interface{}, error) {
		resp, err := rt.Exec.ActivateDeactivate("vgchange", vg.LvmID(), activate, controlFlags, opts)
		return vgRun(rt, resp, err)
	})
}

// vgsStateRetrieve builds VG states from the current snapshot.
func vgsStateRetrieve(rt *Runtime, selection []string) []EntityState {
	rows := rt.DB.FetchVGs(selection)
	rc := make([]EntityState, 0, len(rows))
	for _, row := range rows {
		rc = append(rc, newVgState(rt, row))
	}
	return rc
}
