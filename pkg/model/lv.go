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

// LV variant kinds. The kind decides the interface set and which method
// table the transport exports.
const (
	KindLvHidden    = "lv.hidden"
	KindLvPlain     = "lv.plain"
	KindLvThinPool  = "lv.thinpool"
	KindLvCachePool = "lv.cachepool"
	KindLvCachedLv  = "lv.cachedlv"
	KindLvSnapshot  = "lv.snapshot"
	KindLvVdoPool   = "lv.vdopool"
	KindLvVdoLv     = "lv.vdolv"
)

// lvKind is the deterministic type selection rule over attribute bits
// and layout.
func lvKind(vdoSupport bool, name, attr, layout, origin string, segtypes []string) string {
	switch {
	case strings.HasPrefix(name, "["):
		return KindLvHidden
	case strings.HasPrefix(attr, "t"):
		return KindLvThinPool
	case strings.HasPrefix(attr, "C"):
		if strings.Contains(layout, "pool") {
			return KindLvCachePool
		}
		return KindLvCachedLv
	case origin != "":
		return KindLvSnapshot
	}
	if vdoSupport {
		for _, st := range segtypes {
			if st == "vdo-pool" {
				return KindLvVdoPool
			}
			if st == "vdo" {
				return KindLvVdoLv
			}
		}
	}
	return KindLvPlain
}

func lvInterfaces(kind string) []string {
	switch kind {
	case KindLvHidden:
		return []string{config.LvCommonInterface}
	case KindLvThinPool:
		return []string{config.LvCommonInterface, config.LvInterface, config.ThinPoolInterface}
	case KindLvCachePool:
		return []string{config.LvCommonInterface, config.LvInterface, config.CachePoolInterface}
	case KindLvCachedLv:
		return []string{config.LvCommonInterface, config.LvInterface, config.CachedLvInterface}
	case KindLvSnapshot:
		return []string{config.LvCommonInterface, config.LvInterface, config.SnapshotInterface}
	case KindLvVdoPool:
		return []string{config.LvCommonInterface, config.LvInterface, config.VdoPoolInterface}
	default:
		return []string{config.LvCommonInterface, config.LvInterface}
	}
}

// LvState is the reconciled view of one logical volume row.
type LvState struct {
	uuid      string
	name      string
	devPath   string
	sizeBytes uint64

	vgName string
	vgUUID string
	vgPath dbus.ObjectPath

	poolLv   string
	poolUUID string
	poolPath dbus.ObjectPath

	origin     string
	originUUID string
	originPath dbus.ObjectPath

	dataPercent uint32
	attr        string
	tags        string
	active      string
	dataLv      string
	metadataLv  string
	role        string
	layout      string

	segtypes []string
	devices  []DeviceRange
	hidden   []dbus.ObjectPath

	vdoOperatingMode    string
	vdoCompressionState string
	vdoIndexState       string
	vdoUsedSize         uint64
	vdoSavingPercent    uint32

	kind string
}

func newLvState(rt *Runtime, row datastore.Row) *LvState {
	st := &LvState{
		uuid:        row["lv_uuid"],
		name:        row["lv_name"],
		devPath:     row["lv_path"],
		sizeBytes:   datastore.U64(row, "lv_size"),
		vgName:      row["vg_name"],
		vgUUID:      row["vg_uuid"],
		poolLv:      row["pool_lv"],
		poolUUID:    row["pool_lv_uuid"],
		poolPath:    objNone,
		origin:      row["origin"],
		originUUID:  row["origin_uuid"],
		originPath:  objNone,
		dataPercent: datastore.Percent(row, "data_percent"),
		attr:        row["lv_attr"],
		tags:        row["lv_tags"],
		active:      row["lv_active"],
		dataLv:      row["data_lv"],
		metadataLv:  row["metadata_lv"],
		role:        row["lv_role"],
		layout:      row["lv_layout"],
	}

	st.segtypes = rt.DB.LVSegTypes(st.uuid)
	st.kind = lvKind(rt.Cfg.VDOSupport, st.name, st.attr, st.layout, st.origin, st.segtypes)

	if rt.Cfg.VDOSupport {
		st.vdoOperatingMode = row["vdo_operating_mode"]
		st.vdoCompressionState = row["vdo_compression_state"]
		st.vdoIndexState = row["vdo_index_state"]
		st.vdoUsedSize = datastore.U64(row, "vdo_used_size")
		st.vdoSavingPercent = datastore.Percent(row, "vdo_saving_percent")
	}

	st.vgPath = dbus.ObjectPath(rt.OM.PathFor(st.vgUUID, st.vgName, rt.Cfg.NextVgPath))

	if st.poolLv != "" {
		st.poolPath = dbus.ObjectPath(rt.OM.PathFor(
			st.poolUUID, st.vgName+"/"+st.poolLv,
			lvPathAllocator(rt, st.poolLv, "", "")))
	}
	if st.origin != "" {
		st.originPath = dbus.ObjectPath(rt.OM.PathFor(
			st.originUUID, st.vgName+"/"+st.origin, rt.Cfg.NextLvPath))
	}

	for _, pv := range rt.DB.LVContainedPV(st.uuid) {
		pvPath := rt.OM.PathFor(pv.UUID, pv.Name, nil)
		if pvPath == "" {
			continue
		}
		ranges := make([]SegRange, 0, len(pv.Segs))
		for _, s := range pv.Segs {
			ranges = append(ranges, SegRange{Start: s.Start, End: s.End, Type: s.SegType})
		}
		st.devices = append(st.devices, DeviceRange{Object: dbus.ObjectPath(pvPath), Ranges: ranges})
	}

	for _, h := range rt.DB.HiddenLVs(st.uuid) {
		full := st.vgName + "/" + h.Name
		st.hidden = append(st.hidden, dbus.ObjectPath(rt.OM.PathFor(
			h.UUID, full, rt.Cfg.NextHiddenLvPath)))
	}
	return st
}

func (s *LvState) UUID() string  { return s.uuid }
func (s *LvState) LvmID() string { return s.vgName + "/" + s.name }
func (s *LvState) Kind() string  { return s.kind }

func (s *LvState) Allocate(rt *Runtime) func() string {
	return lvPathAllocator(rt, s.name, s.attr, s.layout)
}

func (s *LvState) NewEntity(rt *Runtime, path string) Entity {
	return &Lv{rt: rt, path: path, kind: s.kind, st: s}
}

// Lv is the logical volume entity, covering all variants; kind selects
// the exported interfaces and method table.
type Lv struct {
	rt   *Runtime
	path string
	kind string

	mu sync.RWMutex
	st *LvState
}

func (l *Lv) Path() string { return l.path }
func (l *Lv) Kind() string { return l.kind }

func (l *Lv) LvmID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.LvmID()
}

func (l *Lv) UUID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.uuid
}

func (l *Lv) Interfaces() []string { return lvInterfaces(l.kind) }

// FullName returns "vg/name".
func (l *Lv) FullName() string { return l.LvmID() }

// IsThinVolume reports whether this LV lives on a thin pool.
func (l *Lv) IsThinVolume() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return strings.HasPrefix(l.st.attr, "V")
}

// SizeBytes returns the current size.
func (l *Lv) SizeBytes() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.sizeBytes
}

func attrDecode(attr string, idx int, table map[byte]string) CodeDesc {
	code := byte('-')
	if len(attr) > idx {
		code = attr[idx]
	}
	desc, ok := table[code]
	if !ok {
		desc = "Unspecified"
	}
	return CodeDesc{Code: string(code), Desc: desc}
}

var (
	volumeTypeMap = map[byte]string{
		'C': "Cache", 'm': "mirrored",
		'M': "Mirrored without initial sync", 'o': "origin",
		'O': "Origin with merging snapshot", 'r': "raid",
		'R': "Raid without initial sync", 's': "snapshot",
		'S': "merging Snapshot", 'p': "pvmove",
		'v': "virtual", 'i': "mirror  or  raid  image",
		'I': "mirror or raid Image out-of-sync",
		'l': "mirror log device", 'c': "under conversion",
		'V': "thin Volume", 't': "thin pool", 'T': "Thin pool data",
		'e': "raid or pool metadata or pool metadata spare",
		'-': "Unspecified"}

	permissionsMap = map[byte]string{
		'w': "writable", 'r': "read-only",
		'R': "Read-only activation of non-read-only volume",
		'-': "Unspecified"}

	allocationPolicyMap = map[byte]string{
		'a': "anywhere", 'A': "anywhere locked",
		'c': "contiguous", 'C': "contiguous locked",
		'i': "inherited", 'I': "inherited locked",
		'l': "cling", 'L': "cling locked",
		'n': "normal", 'N': "normal locked", '-': "Unspecified"}

	stateMap = map[byte]string{
		'a': "active", 's': "suspended", 'I': "Invalid snapshot",
		'S': "invalid Suspended snapshot",
		'm': "snapshot merge failed",
		'M': "suspended snapshot (M)erge failed",
		'd': "mapped device present without  tables",
		'i': "mapped device present with inactive table",
		'X': "unknown", '-': "Unspecified"}

	targetTypeMap = map[byte]string{
		'C': "Cache", 'm': "mirror", 'r': "raid",
		's': "snapshot", 't': "thin", 'u': "unknown",
		'v': "virtual", '-': "Unspecified"}

	healthMap = map[byte]string{
		'p': "partial", 'r': "refresh",
		'm': "mismatches", 'w': "writemostly",
		'X': "X unknown", '-': "Unspecified"}
)

// hiddenChild resolves a data/metadata LV name to its object path.
func (l *Lv) hiddenChild(name string) dbus.ObjectPath {
	if name == "" {
		return objNone
	}
	full := l.st.vgName + "/" + name
	if e := l.rt.OM.ByLvmID(full); e != nil {
		return dbus.ObjectPath(e.Path())
	}
	return objNone
}

func (l *Lv) Properties() Props {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := l.st

	segs := st.segtypes
	if segs == nil {
		segs = []string{}
	}
	devices := st.devices
	if devices == nil {
		devices = []DeviceRange{}
	}
	hidden := st.hidden
	if hidden == nil {
		hidden = []dbus.ObjectPath{}
	}

	common := map[string]interface{}{
		"Uuid":             st.uuid,
		"Name":             st.name,
		"Path":             st.devPath,
		"SizeBytes":        st.sizeBytes,
		"DataPercent":      st.dataPercent,
		"SegType":          segs,
		"Vg":               st.vgPath,
		"OriginLv":         st.originPath,
		"PoolLv":           st.poolPath,
		"Devices":          devices,
		"HiddenLvs":        hidden,
		"Tags":             parseTags(st.tags),
		"VolumeType":       attrDecode(st.attr, 0, volumeTypeMap),
		"Permissions":      attrDecode(st.attr, 1, permissionsMap),
		"AllocationPolicy": attrDecode(st.attr, 2, allocationPolicyMap),
		"FixedMinor":       len(st.attr) > 3 && st.attr[3] == 'm',
		"State":            attrDecode(st.attr, 4, stateMap),
		"TargetType":       attrDecode(st.attr, 6, targetTypeMap),
		"ZeroBlocks":       len(st.attr) > 7 && st.attr[7] == 'z',
		"Health":           attrDecode(st.attr, 8, healthMap),
		"SkipActivation":   len(st.attr) > 9 && st.attr[9] == 'k',
		"Active":           st.active == "active",
		"IsThinVolume":     strings.HasPrefix(st.attr, "V"),
		"IsThinPool":       strings.HasPrefix(st.attr, "t"),
	}

	rc := Props{config.LvCommonInterface: common}
	switch l.kind {
	case KindLvHidden:
		return rc
	case KindLvThinPool:
		rc[config.ThinPoolInterface] = map[string]interface{}{
			"DataLv":     l.hiddenChild(st.dataLv),
			"MetaDataLv": l.hiddenChild(st.metadataLv),
		}
	case KindLvCachePool:
		rc[config.CachePoolInterface] = map[string]interface{}{}
	case KindLvCachedLv:
		rc[config.CachedLvInterface] = map[string]interface{}{
			"CachePool": st.poolPath,
		}
	case KindLvSnapshot:
		rc[config.SnapshotInterface] = map[string]interface{}{}
	case KindLvVdoPool:
		rc[config.VdoPoolInterface] = map[string]interface{}{
			"OperatingMode":    st.vdoOperatingMode,
			"CompressionState": st.vdoCompressionState,
			"IndexState":       st.vdoIndexState,
			"UsedSize":         st.vdoUsedSize,
			"SavingPercent":    st.vdoSavingPercent,
		}
	}
	rc[config.LvInterface] = map[string]interface{}{}
	return rc
}

func (l *Lv) Apply(st EntityState) bool {
	lvState, ok := st.(*LvState)
	if !ok || lvState.kind != l.kind {
		return false
	}
	before := l.Properties()
	l.mu.Lock()
	oldUUID, oldID := l.st.uuid, l.st.LvmID()
	l.st = lvState
	l.mu.Unlock()
	if oldUUID != lvState.uuid || oldID != lvState.LvmID() {
		l.rt.OM.LookupUpdate(l, lvState.uuid, lvState.LvmID())
	}
	return !propsEqual(before, l.Properties())
}

func (l *Lv) ids() (string, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.st.uuid, l.st.LvmID()
}

func lookupLv(rt *Runtime, uuid, lvmID string) (*Lv, error) {
	if e := rt.OM.ByUUIDLvmID(uuid, lvmID); e != nil {
		if lv, ok := e.(*Lv); ok {
			return lv, nil
		}
	}
	return nil, faults.NewClient(config.LvInterface,
		"LV with uuid %s and name %s not present!", uuid, lvmID)
}

func lvRun(rt *Runtime, resp lvmcmd.Response, err error) (interface{}, error) {
	if err := surface(config.LvInterface, resp, err); err != nil {
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

func (l *Lv) enqueue(tmo int32, returnTuple bool, cb func(interface{}), cbe func(error),
	handler func(lv *Lv) (interface{}, error)) {
	uuid, lvmID := l.ids()
	rt := l.rt
	rt.Q.Put(worker.NewRequest(tmo, func() (interface{}, error) {
		dbo, err := lookupLv(rt, uuid, lvmID)
		if err != nil {
			return nil, err
		}
		return handler(dbo)
	}, cb, cbe, returnTuple, rt.Jobs))
}

// Remove queues lvremove; on success the object is dropped and the
// refresh removes any dependents.
func (l *Lv) Remove(tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := l.rt
	l.enqueue(tmo, false, cb, cbe, func(lv *Lv) (interface{}, error) {
		resp, err := rt.Exec.LvRemove(lv.FullName(), opts)
		if err := surface(config.LvInterface, resp, err); err != nil {
			if faults.KindOf(err) == faults.ToolFailure {
				rt.refresh()
			}
			return nil, err
		}
		rt.OM.Remove(lv, true)
		if _, err := rt.refresh(); err != nil {
			return nil, err
		}
		return "/", nil
	})
}

// Rename queues lvrename.
func (l *Lv) Rename(name string, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	rt := l.rt
	l.enqueue(tmo, false, cb, cbe, func(lv *Lv) (interface{}, error) {
		if err := ValidateName(config.LvInterface, name); err != nil {
			return nil, err
		}
		resp, err := rt.Exec.LvRename(lv.FullName(), name, opts)
		return lvRun(rt, resp, err)
	})
}

// Resize queues lvresize toward newSizeBytes.
func (l *Lv) Resize(newSizeBytes uint64, dests []DeviceRange, tmo int32,
	opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := l.rt
	l.enqueue(tmo, false, cb, cbe, func(lv *Lv) (interface{}, error) {
		pvDests, err := pvRangesToNames(rt, config.LvInterface, dests)
		if err != nil {
			return nil, err
		}
		sizeChange := int64(roundSize(newSizeBytes)) - int64(lv.SizeBytes())
		resp, err := rt.Exec.LvResize(lv.FullName(), sizeChange, pvDests, opts)
		return lvRun(rt, resp, err)
	})
}

// Snapshot queues snapshot creation and returns the new LV's path. For a
// non-thin origin with no size given, a default of 1/80th of the origin
// rounded to a 512 byte boundary is used.
func (l *Lv) Snapshot(name string, optionalSize uint64, tmo int32,
	opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := l.rt
	l.enqueue(tmo, true, cb, cbe, func(lv *Lv) (interface{}, error) {
		if err := ValidateName(config.LvInterface, name); err != nil {
			return nil, err
		}
		size := optionalSize
		if !lv.IsThinVolume() && size == 0 {
			size = roundSize(lv.SizeBytes() / 80)
		}
		resp, err := rt.Exec.VgLvSnapshot(lv.FullName(), opts, name, size)
		if err := surface(config.LvInterface, resp, err); err != nil {
			if faults.KindOf(err) == faults.ToolFailure {
				rt.refresh()
			}
			return nil, err
		}
		vgName := strings.SplitN(lv.FullName(), "/", 2)[0]
		full := vgName + "/" + name
		created := loadTargetedLVs(rt, []string{full})
		if _, err := rt.refreshNoCache(); err != nil {
			return nil, err
		}
		if len(created) > 0 {
			return created[0].Path(), nil
		}
		if e := rt.OM.ByLvmID(full); e != nil {
			return e.Path(), nil
		}
		return nil, faults.NewToolBug("snapshot %s not found after refresh", full)
	})
}

// Move relocates this LV's extents under the background job contract.
func (l *Lv) Move(pvSrc dbus.ObjectPath, srcStart, srcEnd uint64,
	dests []DeviceRange, tmo int32, opts lvmcmd.Options) (string, error) {
	return moveCommon(l.rt, config.LvInterface, l.FullName(), pvSrc, srcStart, srcEnd, dests, opts, tmo)
}

// Activate queues lvchange -a y.
func (l *Lv) Activate(controlFlags uint64, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	l.activateDeactivate(true, controlFlags, tmo, opts, cb, cbe)
}

// Deactivate queues lvchange -a n.
func (l *Lv) Deactivate(controlFlags uint64, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	l.activateDeactivate(false, controlFlags, tmo, opts, cb, cbe)
}

func (l *Lv) activateDeactivate(activate bool, controlFlags uint64, tmo int32,
	opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := l.rt
	l.enqueue(tmo, false, cb, cbe, func(lv *Lv) (interface{}, error) {
		resp, err := rt.Exec.ActivateDeactivate("lvchange", lv.FullName(), activate, controlFlags, opts)
		return lvRun(rt, resp, err)
	})
}

// TagsAdd queues lvchange --addtag.
func (l *Lv) TagsAdd(tags []string, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	l.tagsChange(tags, nil, tmo, opts, cb, cbe)
}

// TagsDel queues lvchange --deltag.
func (l *Lv) TagsDel(tags []string, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	l.tagsChange(nil, tags, tmo, opts, cb, cbe)
}

func (l *Lv) tagsChange(add, del []string, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	rt := l.rt
	l.enqueue(tmo, false, cb, cbe, func(lv *Lv) (interface{}, error) {
		if err := ValidateTags(config.LvInterface, append(append([]string{}, add...), del...)); err != nil {
			return nil, err
		}
		resp, err := rt.Exec.LvTag(lv.FullName(), add, del, opts)
		return lvRun(rt, resp, err)
	})
}

// ThinLvCreate queues creation of a thin volume inside this pool
// (ThinPool.LvCreate).
func (l *Lv) ThinLvCreate(name string, sizeBytes uint64, tmo int32,
	opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	rt := l.rt
	l.enqueue(tmo, true, cb, cbe, func(lv *Lv) (interface{}, error) {
		if err := ValidateName(config.ThinPoolInterface, name); err != nil {
			return nil, err
		}
		resp, err := rt.Exec.LvLvCreate(lv.FullName(), opts, name, roundSize(sizeBytes))
		if err := surface(config.ThinPoolInterface, resp, err); err != nil {
			if faults.KindOf(err) == faults.ToolFailure {
				rt.refresh()
			}
			return nil, err
		}
		vgName := strings.SplitN(lv.FullName(), "/", 2)[0]
		full := vgName + "/" + name
		created := loadTargetedLVs(rt, []string{full})
		if _, err := rt.refreshNoCache(); err != nil {
			return nil, err
		}
		if len(created) > 0 {
			return created[0].Path(), nil
		}
		if e := rt.OM.ByLvmID(full); e != nil {
			return e.Path(), nil
		}
		return nil, faults.NewToolBug("created thin LV %s not found after refresh", full)
	})
}

// CacheLv attaches this cache pool to the given LV (CachePool.CacheLv).
// Both objects change interface and are recreated by the refresh.
func (l *Lv) CacheLv(lvPath dbus.ObjectPath, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	rt := l.rt
	l.enqueue(tmo, true, cb, cbe, func(pool *Lv) (interface{}, error) {
		toCache, ok := rt.OM.ByPath(string(lvPath)).(*Lv)
		if !ok {
			return nil, faults.NewClient(config.CachePoolInterface,
				"LV to cache with object path %s not present!", lvPath)
		}
		cachedName := toCache.FullName()
		resp, err := rt.Exec.LvCacheLv(pool.FullName(), cachedName, opts)
		if err := surface(config.CachePoolInterface, resp, err); err != nil {
			if faults.KindOf(err) == faults.ToolFailure {
				rt.refresh()
			}
			return nil, err
		}
		rt.OM.Remove(pool, true)
		rt.OM.Remove(toCache, true)
		if _, err := rt.refresh(); err != nil {
			return nil, err
		}
		if e := rt.OM.ByLvmID(cachedName); e != nil {
			return e.Path(), nil
		}
		return nil, faults.NewToolBug("cached LV %s not found after conversion", cachedName)
	})
}

// DetachCachePool splits or destroys the cache of this cached LV
// (CachedLv.DetachCachePool).
func (l *Lv) DetachCachePool(destroyCache bool, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	rt := l.rt
	l.enqueue(tmo, true, cb, cbe, func(cached *Lv) (interface{}, error) {
		cached.mu.RLock()
		poolPath := cached.st.poolPath
		cached.mu.RUnlock()
		pool := rt.OM.ByPath(string(poolPath))

		name := cached.FullName()
		resp, err := rt.Exec.LvDetachCache(name, opts, destroyCache)
		if err := surface(config.CachedLvInterface, resp, err); err != nil {
			if faults.KindOf(err) == faults.ToolFailure {
				rt.refresh()
			}
			return nil, err
		}
		// The cache pool flips from hidden back to visible; recreate
		// both objects from the next snapshot.
		if pool != nil {
			rt.OM.Remove(pool, true)
		}
		rt.OM.Remove(cached, true)
		if _, err := rt.refresh(); err != nil {
			return nil, err
		}
		if e := rt.OM.ByLvmID(name); e != nil {
			return e.Path(), nil
		}
		return nil, faults.NewToolBug("LV %s not found after cache detach", name)
	})
}

// Merge starts merging this snapshot back into its origin
// (Snapshot.Merge) under the background job contract. The first output
// line is a banner, not progress.
func (l *Lv) Merge(tmo int32, opts lvmcmd.Options) (string, error) {
	rt := l.rt
	uuid, lvmID := l.ids()
	dbo, err := lookupLv(rt, uuid, lvmID)
	if err != nil {
		return "/", err
	}
	cmd := background.MergeCmd(opts, dbo.FullName())
	return rt.BG.MoveMerge(config.SnapshotInterface, cmd, tmo, true)
}

// VDO pool toggles (VdoPool interface).

func (l *Lv) EnableCompression(tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	l.vdoToggle(true, true, tmo, opts, cb, cbe)
}

func (l *Lv) DisableCompression(tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	l.vdoToggle(true, false, tmo, opts, cb, cbe)
}

func (l *Lv) EnableDeduplication(tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	l.vdoToggle(false, true, tmo, opts, cb, cbe)
}

func (l *Lv) DisableDeduplication(tmo int32, opts lvmcmd.Options, cb func(interface{}), cbe func(error)) {
	l.vdoToggle(false, false, tmo, opts, cb, cbe)
}

func (l *Lv) vdoToggle(compression, enable bool, tmo int32, opts lvmcmd.Options,
	cb func(interface{}), cbe func(error)) {
	rt := l.rt
	l.enqueue(tmo, false, cb, cbe, func(lv *Lv) (interface{}, error) {
		var resp lvmcmd.Response
		var err error
		if compression {
			resp, err = rt.Exec.LvVdoCompression(lv.FullName(), enable, opts)
		} else {
			resp, err = rt.Exec.LvVdoDeduplication(lv.FullName(), enable, opts)
		}
		return lvRun(rt, resp, err)
	})
}

// lvsStateRetrieve builds LV states from the current snapshot.
func lvsStateRetrieve(rt *Runtime, selection []string) []EntityState {
	rows := rt.DB.FetchLVs(selection)
	rc := make([]EntityState, 0, len(rows))
	for _, row := range rows {
		rc = append(rc, newLvState(rt, row))
	}
	return rc
}
