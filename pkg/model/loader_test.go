package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlvm/lvmdbusd/pkg/background"
	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/coordinator"
	"github.com/openlvm/lvmdbusd/pkg/datastore"
	"github.com/openlvm/lvmdbusd/pkg/events"
	"github.com/openlvm/lvmdbusd/pkg/jobs"
	"github.com/openlvm/lvmdbusd/pkg/log"
	"github.com/openlvm/lvmdbusd/pkg/lvmcmd"
	"github.com/openlvm/lvmdbusd/pkg/objectmgr"
	"github.com/openlvm/lvmdbusd/pkg/worker"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

// reportDoc assembles a fullreport document with every requested column
// present, the way lvm emits all-or-nothing column sets.
type reportDoc struct {
	pvs, vgs, lvs, segs, pvsegs []map[string]string
}

func fullRow(cols []string, over map[string]string) map[string]string {
	r := map[string]string{}
	for _, c := range cols {
		r[c] = ""
	}
	for k, v := range over {
		r[k] = v
	}
	return r
}

func (d *reportDoc) pv(over map[string]string) *reportDoc {
	d.pvs = append(d.pvs, fullRow(lvmcmd.PvColumns, over))
	return d
}

func (d *reportDoc) vg(over map[string]string) *reportDoc {
	d.vgs = append(d.vgs, fullRow(lvmcmd.VgColumns, over))
	return d
}

func (d *reportDoc) lv(over map[string]string) *reportDoc {
	d.lvs = append(d.lvs, fullRow(lvmcmd.LvColumns, over))
	return d
}

func (d *reportDoc) seg(over map[string]string) *reportDoc {
	d.segs = append(d.segs, fullRow(lvmcmd.LvSegColumns, over))
	return d
}

func (d *reportDoc) marshal(t *testing.T) string {
	t.Helper()
	doc := map[string]interface{}{
		"report": []map[string]interface{}{{
			"pv":    d.pvs,
			"vg":    d.vgs,
			"lv":    d.lvs,
			"seg":   d.segs,
			"pvseg": d.pvsegs,
		}},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(data)
}

// world is a complete daemon core wired to a fake lvm binary that cats
// a fixture file.
type world struct {
	rt      *Runtime
	loader  *Loader
	queue   *worker.Queue
	fixture string
}

func (w *world) setReport(t *testing.T, doc *reportDoc) {
	t.Helper()
	require.NoError(t, os.WriteFile(w.fixture, []byte(doc.marshal(t)), 0o644))
}

func (w *world) load(t *testing.T) uint64 {
	t.Helper()
	n, err := w.loader.Load(coordinator.DefaultOpts())
	require.NoError(t, err)
	return n
}

func newWorld(t *testing.T) *world {
	t.Helper()
	dir := t.TempDir()
	fixture := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(fixture, []byte(`{"report":[]}`), 0o644))

	bin := filepath.Join(dir, "fakelvm")
	script := fmt.Sprintf("#!/bin/sh\ncat %q\n", fixture)
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	cfg := config.Default()
	cfg.LvmBinary = bin
	rt := config.NewRuntime(cfg)

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	om := objectmgr.New(broker)
	exec := lvmcmd.New(rt, lvmcmd.NewFlightRecorder(8))
	db := datastore.New(rt, exec)
	queue := worker.NewQueue()
	reg := jobs.NewRegistry(rt, om)

	mrt := &Runtime{
		Cfg:  rt,
		OM:   om,
		DB:   db,
		Exec: exec,
		Q:    queue,
		Jobs: reg,
		BG:   background.New(rt, queue, reg),
	}
	loader := NewLoader(mrt)
	// Refreshes run inline: these tests exercise the loader contract,
	// not the coordinator loop.
	mrt.Refresh = loader.Load

	return &world{rt: mrt, loader: loader, queue: queue, fixture: fixture}
}

func baseReport() *reportDoc {
	d := &reportDoc{}
	d.pv(map[string]string{
		"pv_name": "/dev/loop0", "pv_uuid": "pv-uuid-0",
		"pv_size": "10737418240", "pv_free": "6442450944",
		"pv_attr": "a--", "vg_name": "test_vg", "vg_uuid": "vg-uuid-0",
	})
	d.vg(map[string]string{
		"vg_name": "test_vg", "vg_uuid": "vg-uuid-0",
		"vg_size": "10737418240", "vg_free": "6442450944",
		"vg_attr": "wz--n-",
	})
	d.lv(map[string]string{
		"lv_name": "lv1", "lv_uuid": "lv-uuid-1",
		"lv_path": "/dev/test_vg/lv1", "lv_size": "4194304",
		"vg_name": "test_vg", "vg_uuid": "vg-uuid-0",
		"lv_attr": "-wi-a-----", "lv_active": "active",
	})
	d.seg(map[string]string{
		"lv_uuid": "lv-uuid-1", "segtype": "linear",
		"seg_pe_ranges": "/dev/loop0:0-99",
	})
	return d
}

func TestLoadPopulatesEntities(t *testing.T) {
	w := newWorld(t)
	w.setReport(t, baseReport())

	n := w.load(t)
	assert.Equal(t, uint64(3), n)

	om := w.rt.OM

	// Round trip: name and uuid resolve to the same object.
	vg := om.ByLvmID("test_vg")
	require.NotNil(t, vg)
	assert.Equal(t, vg, om.ByLvmID("vg-uuid-0"))

	lv := om.ByLvmID("test_vg/lv1")
	require.NotNil(t, lv)
	assert.Equal(t, lv, om.ByLvmID("lv-uuid-1"))

	pv := om.ByLvmID("/dev/loop0")
	require.NotNil(t, pv)

	// The VG lists its children by object path.
	vgProps := vg.(*Vg).Properties()[config.VgInterface]
	assert.Contains(t, vgProps["Lvs"], objPathOf(lv))
	assert.Contains(t, vgProps["Pvs"], objPathOf(pv))

	// The LV points back at its VG.
	lvProps := lv.(*Lv).Properties()[config.LvCommonInterface]
	assert.Equal(t, objPathOf(vg), lvProps["Vg"])
	assert.Equal(t, uint64(4194304), lvProps["SizeBytes"])
}

func dbusPath(p string) dbus.ObjectPath { return dbus.ObjectPath(p) }

func objPathOf(e objectmgr.Entity) interface{} {
	return dbusPath(e.Path())
}

func TestLoadConverges(t *testing.T) {
	w := newWorld(t)
	w.setReport(t, baseReport())

	w.load(t)
	// The second pass may still resolve references that were unknowable
	// during the first (a PV's LV list fills in once the LVs exist);
	// after that the state is a fixed point.
	w.load(t)
	assert.Equal(t, uint64(0), w.load(t))
}

func TestVgRenameUpdatesChildLookups(t *testing.T) {
	w := newWorld(t)
	w.setReport(t, baseReport())
	w.load(t)

	om := w.rt.OM
	lvPath := om.ByLvmID("test_vg/lv1").Path()
	vgPath := om.ByLvmID("test_vg").Path()

	renamed := &reportDoc{}
	renamed.pv(map[string]string{
		"pv_name": "/dev/loop0", "pv_uuid": "pv-uuid-0",
		"pv_attr": "a--", "vg_name": "renamed_test_vg", "vg_uuid": "vg-uuid-0",
	})
	renamed.vg(map[string]string{
		"vg_name": "renamed_test_vg", "vg_uuid": "vg-uuid-0",
		"vg_attr": "wz--n-",
	})
	renamed.lv(map[string]string{
		"lv_name": "lv1", "lv_uuid": "lv-uuid-1",
		"lv_path": "/dev/renamed_test_vg/lv1",
		"vg_name": "renamed_test_vg", "vg_uuid": "vg-uuid-0",
		"lv_attr": "-wi-a-----", "lv_active": "active",
	})
	renamed.seg(map[string]string{
		"lv_uuid": "lv-uuid-1", "segtype": "linear",
		"seg_pe_ranges": "/dev/loop0:0-99",
	})
	w.setReport(t, renamed)
	w.load(t)

	// Same objects, new names; a client that held the path still holds
	// the entity, and lookups under the new name find it.
	got := om.ByLvmID("renamed_test_vg/lv1")
	require.NotNil(t, got)
	assert.Equal(t, lvPath, got.Path())
	assert.Equal(t, vgPath, om.ByLvmID("renamed_test_vg").Path())

	// The old names are gone.
	assert.Nil(t, om.ByLvmID("test_vg/lv1"))
	assert.Nil(t, om.ByLvmID("test_vg"))
}

func TestLoadRemovesAbsentEntities(t *testing.T) {
	w := newWorld(t)
	w.setReport(t, baseReport())
	w.load(t)

	om := w.rt.OM
	lvPath := om.ByLvmID("test_vg/lv1").Path()

	// The LV disappeared from the report.
	gone := baseReport()
	gone.lvs = nil
	gone.segs = nil
	w.setReport(t, gone)
	w.load(t)

	assert.Nil(t, om.ByPath(lvPath))
	assert.Nil(t, om.ByLvmID("test_vg/lv1"))
	assert.NotNil(t, om.ByLvmID("test_vg"))
}

func TestVariantChangeRecreatesEntity(t *testing.T) {
	w := newWorld(t)
	w.setReport(t, baseReport())
	w.load(t)

	om := w.rt.OM
	lv := om.ByLvmID("test_vg/lv1").(*Lv)
	assert.Equal(t, KindLvPlain, lv.Kind())

	// The LV became a thin pool; the old interface set no longer
	// applies and the object is rebuilt.
	pooled := baseReport()
	pooled.lvs[0]["lv_attr"] = "twi-a-tz--"
	pooled.lvs[0]["lv_layout"] = "pool,thin"
	pooled.segs[0]["segtype"] = "thin-pool"
	w.setReport(t, pooled)
	w.load(t)

	got := om.ByLvmID("test_vg/lv1")
	require.NotNil(t, got)
	assert.Equal(t, KindLvThinPool, got.(*Lv).Kind())
}

func TestHiddenLvResolution(t *testing.T) {
	w := newWorld(t)

	d := baseReport()
	d.lv(map[string]string{
		"lv_name": "pool", "lv_uuid": "lv-uuid-pool",
		"vg_name": "test_vg", "vg_uuid": "vg-uuid-0",
		"lv_attr": "twi-a-tz--", "lv_layout": "pool,thin",
		"data_lv": "[pool_tdata]",
	})
	d.lv(map[string]string{
		"lv_name": "[pool_tdata]", "lv_uuid": "lv-uuid-tdata",
		"vg_name": "test_vg", "vg_uuid": "vg-uuid-0",
		"lv_attr": "Twi-ao----", "lv_parent": "pool",
	})
	d.seg(map[string]string{"lv_uuid": "lv-uuid-pool", "segtype": "thin-pool"})
	d.seg(map[string]string{"lv_uuid": "lv-uuid-tdata", "segtype": "linear"})
	w.setReport(t, d)
	w.load(t)

	om := w.rt.OM
	hidden := om.ByLvmID("test_vg/[pool_tdata]")
	require.NotNil(t, hidden)
	assert.Equal(t, KindLvHidden, hidden.(*Lv).Kind())

	// The unbracketed spelling resolves to the same path.
	assert.Equal(t, hidden.Path(), om.PathFor("lv-uuid-tdata", "test_vg/pool_tdata", nil))

	// The pool's hidden children and data LV point at it.
	pool := om.ByLvmID("test_vg/pool").(*Lv)
	props := pool.Properties()
	assert.Contains(t, props[config.LvCommonInterface]["HiddenLvs"], dbusPath(hidden.Path()))
	assert.Equal(t, dbusPath(hidden.Path()), props[config.ThinPoolInterface]["DataLv"])
}

func TestEventThrottleCoalesces(t *testing.T) {
	w := newWorld(t)
	w.setReport(t, baseReport())
	w.load(t)

	before := w.rt.DB.NumRefreshes()
	throttle := NewEventThrottle(w.rt)

	// A burst of external events admits one pending refresh.
	for i := 0; i < 100; i++ {
		throttle.Add("u")
	}
	assert.Equal(t, 1, w.queue.Depth())

	req := w.queue.Pop(time.Second, nil)
	require.NotNil(t, req)
	req.Run()

	assert.Equal(t, 0, w.queue.Depth())
	// One in-flight refresh served the whole burst.
	assert.LessOrEqual(t, w.rt.DB.NumRefreshes()-before, uint64(2))

	// Once complete, the next event admits a new refresh.
	throttle.Add("u")
	assert.Equal(t, 1, w.queue.Depth())
}

func TestTargetedLoad(t *testing.T) {
	w := newWorld(t)
	w.setReport(t, baseReport())
	w.load(t)

	// A second LV appears (as after lvcreate); the targeted load
	// materializes exactly it and returns the entity.
	d := baseReport()
	d.lv(map[string]string{
		"lv_name": "lv2", "lv_uuid": "lv-uuid-2",
		"vg_name": "test_vg", "vg_uuid": "vg-uuid-0",
		"lv_attr": "-wi-a-----", "lv_active": "active",
	})
	w.setReport(t, d)

	created := loadTargetedLVs(w.rt, []string{"test_vg/lv2"})
	require.Len(t, created, 1)
	assert.Equal(t, created[0].Path(), w.rt.OM.ByLvmID("test_vg/lv2").Path())
}
