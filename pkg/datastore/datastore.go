package datastore

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/faults"
	"github.com/openlvm/lvmdbusd/pkg/log"
	"github.com/openlvm/lvmdbusd/pkg/lvmcmd"
	"github.com/openlvm/lvmdbusd/pkg/metrics"
)

// Row re-exports the report row type for callers of the fetch methods.
type Row = lvmcmd.Row

// LvRef names an LV inside a VG along with the attributes the path
// allocator needs to pick the right object path kind.
type LvRef struct {
	Name   string
	UUID   string
	Attr   string
	Layout string
	Role   string
}

// PvRef names a PV inside a VG.
type PvRef struct {
	Name string
	UUID string
}

// Seg is one physical extent range of an LV on a PV, or one PV segment.
type Seg struct {
	Start   uint64
	End     uint64
	SegType string
}

// ContainedPv is a PV an LV occupies, with the extent ranges used.
type ContainedPv struct {
	UUID string
	Name string
	Segs []Seg
}

// snapshot is one immutable view of the lvm state. It is never mutated
// after publication; refresh swaps the whole thing.
type snapshot struct {
	pvs []Row
	vgs []Row
	lvs []Row

	pvByUUID map[string]Row
	pvByName map[string]Row
	vgByUUID map[string]Row
	vgByName map[string]Row
	lvByUUID map[string]Row
	lvByName map[string]Row // keyed "vg/name", hidden names bracketed

	pvsInVG        map[string][]PvRef
	lvsInVG        map[string][]LvRef
	hiddenByParent map[string][]LvRef
	lvSegTypes     map[string][]string
	lvContainedPV  map[string][]ContainedPv
	pvContainedLV  map[string][]ContainedPv // keyed pv uuid; entries name LVs
	pvSegs         map[string][]Seg
}

// Store is the process-wide cache of the latest full lvm report.
type Store struct {
	rt   *config.Runtime
	exec *lvmcmd.Executor
	log  zerolog.Logger

	mu   sync.RWMutex
	snap *snapshot

	numRefreshes atomic.Uint64
}

// New creates an empty store. The first Refresh populates it.
func New(rt *config.Runtime, exec *lvmcmd.Executor) *Store {
	return &Store{
		rt:   rt,
		exec: exec,
		log:  log.WithComponent("datastore"),
		snap: emptySnapshot(),
	}
}

func emptySnapshot() *snapshot {
	return &snapshot{
		pvByUUID:       map[string]Row{},
		pvByName:       map[string]Row{},
		vgByUUID:       map[string]Row{},
		vgByName:       map[string]Row{},
		lvByUUID:       map[string]Row{},
		lvByName:       map[string]Row{},
		pvsInVG:        map[string][]PvRef{},
		lvsInVG:        map[string][]LvRef{},
		hiddenByParent: map[string][]LvRef{},
		lvSegTypes:     map[string][]string{},
		lvContainedPV:  map[string][]ContainedPv{},
		pvContainedLV:  map[string][]ContainedPv{},
		pvSegs:         map[string][]Seg{},
	}
}

// NumRefreshes returns the monotonic refresh counter.
func (s *Store) NumRefreshes() uint64 { return s.numRefreshes.Load() }

// Refresh replaces the snapshot with the result of one fullreport run.
func (s *Store) Refresh(logIt bool) error {
	timer := metrics.NewTimer()
	root, err := s.exec.FullReport(s.rt.VDOSupport)
	if err != nil {
		if logIt {
			s.log.Error().Err(err).Msg("fullreport failed")
		}
		return err
	}

	snap, err := buildSnapshot(root, s.rt.VDOSupport)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	s.numRefreshes.Add(1)
	metrics.RefreshesTotal.Inc()
	metrics.RefreshDuration.Observe(timer.Duration().Seconds())

	if logIt {
		s.log.Debug().
			Int("pvs", len(snap.pvs)).
			Int("vgs", len(snap.vgs)).
			Int("lvs", len(snap.lvs)).
			Uint64("refresh", s.numRefreshes.Load()).
			Msg("state refreshed")
	}
	return nil
}

func (s *Store) current() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func filterRows(rows []Row, index map[string]Row, filter []string, altIndex map[string]Row) []Row {
	if len(filter) == 0 {
		return rows
	}
	var rc []Row
	for _, f := range filter {
		if r, ok := index[f]; ok {
			rc = append(rc, r)
			continue
		}
		if altIndex != nil {
			if r, ok := altIndex[f]; ok {
				rc = append(rc, r)
			}
		}
	}
	return rc
}

// FetchPVs returns PV rows, optionally filtered by device name or uuid.
func (s *Store) FetchPVs(filter []string) []Row {
	snap := s.current()
	return filterRows(snap.pvs, snap.pvByName, filter, snap.pvByUUID)
}

// FetchVGs returns VG rows, optionally filtered by name or uuid.
func (s *Store) FetchVGs(filter []string) []Row {
	snap := s.current()
	return filterRows(snap.vgs, snap.vgByName, filter, snap.vgByUUID)
}

// FetchLVs returns LV rows, optionally filtered by full name or uuid.
func (s *Store) FetchLVs(filter []string) []Row {
	snap := s.current()
	return filterRows(snap.lvs, snap.lvByName, filter, snap.lvByUUID)
}

// LVsInVG lists the visible LVs of a VG.
func (s *Store) LVsInVG(vgUUID string) []LvRef { return s.current().lvsInVG[vgUUID] }

// PVsInVG lists the PVs backing a VG.
func (s *Store) PVsInVG(vgUUID string) []PvRef { return s.current().pvsInVG[vgUUID] }

// HiddenLVs lists the hidden child LVs of an LV.
func (s *Store) HiddenLVs(lvUUID string) []LvRef { return s.current().hiddenByParent[lvUUID] }

// LVContainedPV lists the PVs an LV occupies with their extent ranges.
func (s *Store) LVContainedPV(lvUUID string) []ContainedPv { return s.current().lvContainedPV[lvUUID] }

// LVSegTypes lists the distinct segment types of an LV.
func (s *Store) LVSegTypes(lvUUID string) []string { return s.current().lvSegTypes[lvUUID] }

// PVSegs lists the physical segments of a PV.
func (s *Store) PVSegs(pvUUID string) []Seg { return s.current().pvSegs[pvUUID] }

// PVContainedLV lists the LVs occupying a PV with their segments.
func (s *Store) PVContainedLV(pvUUID string) []ContainedPv { return s.current().pvContainedLV[pvUUID] }

// Numeric conversion helpers for report values. lvm emits everything as
// strings; empty means zero.

// U64 parses an unsigned byte/count value.
func U64(r Row, key string) uint64 {
	v := strings.TrimSpace(r[key])
	if v == "" {
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimSuffix(v, "B"), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// I64 parses a signed value (max_lv/max_pv can be -1).
func I64(r Row, key string) int64 {
	v := strings.TrimSpace(r[key])
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Percent parses a "NN.NN" percentage, rounded to the nearest integer.
func Percent(r Row, key string) uint32 {
	v := strings.TrimSpace(r[key])
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return uint32(f + 0.5)
}

// requireColumns rejects a row that lacks one of the requested report
// columns; lvm occasionally omits keys and the daemon cannot limp along
// without them.
func requireColumns(r Row, cols []string) error {
	for _, c := range cols {
		if _, ok := r[c]; !ok {
			return faults.NewToolBug("missing JSON key: '%s'", c)
		}
	}
	return nil
}
