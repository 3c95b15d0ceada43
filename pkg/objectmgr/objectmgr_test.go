package objectmgr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlvm/lvmdbusd/pkg/events"
)

type fakeEntity struct {
	path   string
	lvmID  string
	uuid   string
	ifaces []string
}

func (f *fakeEntity) Path() string          { return f.path }
func (f *fakeEntity) LvmID() string         { return f.lvmID }
func (f *fakeEntity) UUID() string          { return f.uuid }
func (f *fakeEntity) Interfaces() []string  { return f.ifaces }

func newManager(t *testing.T) (*Manager, *events.Broker) {
	t.Helper()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	return New(broker), broker
}

func TestRegisterLookups(t *testing.T) {
	m, _ := newManager(t)

	e := &fakeEntity{path: "/test/Vg0", lvmID: "vg00", uuid: "uuid-vg00"}
	m.Register(e, false)

	// Index consistency: both identifiers resolve to the same path.
	assert.Equal(t, e, m.ByPath("/test/Vg0"))
	assert.Equal(t, e, m.ByLvmID("vg00"))
	assert.Equal(t, e, m.ByLvmID("uuid-vg00"))
	assert.Equal(t, e, m.ByUUIDLvmID("uuid-vg00", "vg00"))

	m.Remove(e, false)
	assert.Nil(t, m.ByPath("/test/Vg0"))
	assert.Nil(t, m.ByLvmID("vg00"))
	assert.Nil(t, m.ByLvmID("uuid-vg00"))
}

func TestIndexConsistency(t *testing.T) {
	m, _ := newManager(t)

	var entities []*fakeEntity
	for i := 0; i < 32; i++ {
		e := &fakeEntity{
			path:  fmt.Sprintf("/test/Pv%d", i),
			lvmID: fmt.Sprintf("/dev/loop%d", i),
			uuid:  fmt.Sprintf("uuid-%d", i),
		}
		entities = append(entities, e)
		m.Register(e, false)
	}

	// For every registered entity the id and uuid indexes resolve to the
	// same path.
	for _, e := range entities {
		byID := m.ByLvmID(e.lvmID)
		byUUID := m.ByLvmID(e.uuid)
		require.NotNil(t, byID)
		require.NotNil(t, byUUID)
		assert.Equal(t, e.path, byID.Path())
		assert.Equal(t, e.path, byUUID.Path())
	}
}

func TestHiddenAlias(t *testing.T) {
	m, _ := newManager(t)

	e := &fakeEntity{path: "/test/HiddenLv0", lvmID: "vg00/[pool_tdata]", uuid: "uuid-tdata"}
	m.Register(e, false)

	// Both the bracketed and the plain spelling resolve.
	assert.Equal(t, "/test/HiddenLv0", m.PathFor("uuid-tdata", "vg00/[pool_tdata]", nil))
	assert.Equal(t, "/test/HiddenLv0", m.PathFor("uuid-tdata", "vg00/pool_tdata", nil))
}

func TestPathForRenameReconciles(t *testing.T) {
	m, _ := newManager(t)

	e := &fakeEntity{path: "/test/Vg0", lvmID: "old_name", uuid: "uuid-1"}
	m.Register(e, false)

	// The rename happened in lvm; the id index is stale but the uuid
	// still resolves, and doing so repairs the table.
	p := m.PathFor("uuid-1", "new_name", nil)
	assert.Equal(t, "/test/Vg0", p)
	assert.Equal(t, "/test/Vg0", m.PathFor("uuid-1", "new_name", nil))

	if got := m.ByLvmID("new_name"); assert.NotNil(t, got) {
		assert.Equal(t, "/test/Vg0", got.Path())
	}
	// The old name no longer resolves.
	assert.Nil(t, m.ByLvmID("old_name"))
}

func TestPathForAllocates(t *testing.T) {
	m, _ := newManager(t)

	calls := 0
	alloc := func() string {
		calls++
		return fmt.Sprintf("/test/Lv%d", calls-1)
	}

	p1 := m.PathFor("uuid-a", "vg/a", alloc)
	assert.Equal(t, "/test/Lv0", p1)
	assert.Equal(t, 1, calls)

	// Second resolution reuses the reserved path.
	p2 := m.PathFor("uuid-a", "vg/a", alloc)
	assert.Equal(t, p1, p2)
	assert.Equal(t, 1, calls)

	// Registration at the reserved path replaces the placeholder.
	e := &fakeEntity{path: p1, lvmID: "vg/a", uuid: "uuid-a"}
	m.Register(e, false)
	assert.Equal(t, e, m.ByPath(p1))

	// No allocator, unknown ids: nothing is invented.
	assert.Equal(t, "", m.PathFor("uuid-b", "vg/b", nil))
}

func TestPathsWhere(t *testing.T) {
	m, _ := newManager(t)

	a := &fakeEntity{path: "/test/Pv0", lvmID: "/dev/sda", uuid: "u1", ifaces: []string{"pv"}}
	b := &fakeEntity{path: "/test/Vg0", lvmID: "vg0", uuid: "u2", ifaces: []string{"vg"}}
	m.Register(a, false)
	m.Register(b, false)

	paths := m.PathsWhere(func(e Entity) bool {
		return len(e.Interfaces()) > 0 && e.Interfaces()[0] == "pv"
	})
	assert.Equal(t, map[string]bool{"/test/Pv0": true}, paths)
}

func TestLockedScope(t *testing.T) {
	m, _ := newManager(t)

	e := &fakeEntity{path: "/test/Vg0", lvmID: "vg0", uuid: "u1"}
	m.Register(e, false)

	// A composite read-modify-write under one lock acquisition.
	m.Locked(func(v *View) {
		if got := v.ByLvmID("vg0"); got != nil {
			p := v.PathFor("u1", "vg0", nil)
			assert.Equal(t, "/test/Vg0", p)
			assert.Equal(t, got, v.ByPath(p))
		}
	})
}

func TestRegisterEmitsEvent(t *testing.T) {
	m, broker := newManager(t)
	sub := broker.Subscribe()

	e := &fakeEntity{path: "/test/Pv0", lvmID: "/dev/sda", uuid: "u1", ifaces: []string{"pv"}}
	m.Register(e, true)

	ev := <-sub
	assert.Equal(t, events.EventInterfacesAdded, ev.Type)
	assert.Equal(t, "/test/Pv0", ev.Path)
	assert.True(t, ev.Signal)

	m.Remove(e, true)
	ev = <-sub
	assert.Equal(t, events.EventInterfacesRemoved, ev.Type)
	assert.Equal(t, []string{"pv"}, ev.Interfaces)
}
