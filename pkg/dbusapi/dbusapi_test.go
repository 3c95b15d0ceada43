package dbusapi

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/faults"
)

type fakeExported struct {
	path   string
	ifaces []string
	props  map[string]map[string]interface{}
}

func (f *fakeExported) Path() string         { return f.path }
func (f *fakeExported) Interfaces() []string { return f.ifaces }
func (f *fakeExported) Properties() map[string]map[string]interface{} {
	return f.props
}

func TestIntrospectEntityCoversInterfaces(t *testing.T) {
	e := &fakeExported{
		path:   "/test/Lv0",
		ifaces: []string{config.LvCommonInterface, config.LvInterface, config.SnapshotInterface},
	}
	xml := string(introspectEntity(e))

	assert.Contains(t, xml, config.LvCommonInterface)
	assert.Contains(t, xml, config.LvInterface)
	assert.Contains(t, xml, config.SnapshotInterface)
	assert.Contains(t, xml, "Merge")
	assert.Contains(t, xml, "org.freedesktop.DBus.Properties")
	// A variant this entity does not carry stays out of its node.
	assert.NotContains(t, xml, "CacheLv")
}

func TestIntrospectRoot(t *testing.T) {
	xml := string(introspectRoot())
	assert.Contains(t, xml, "GetManagedObjects")
	assert.Contains(t, xml, "InterfacesAdded")
	assert.Contains(t, xml, "InterfacesRemoved")
}

func TestEveryDeclaredInterfaceHasASpec(t *testing.T) {
	for _, iface := range []string{
		config.ManagerInterface, config.PvInterface, config.VgInterface,
		config.VgVdoInterface, config.LvInterface, config.LvCommonInterface,
		config.ThinPoolInterface, config.CachePoolInterface,
		config.CachedLvInterface, config.SnapshotInterface,
		config.VdoPoolInterface, config.JobInterface,
	} {
		_, ok := ifaceSpecs[iface]
		assert.True(t, ok, iface)
	}
}

func TestPropsTable(t *testing.T) {
	e := &fakeExported{
		path:   "/test/Pv0",
		ifaces: []string{config.PvInterface},
		props: map[string]map[string]interface{}{
			config.PvInterface: {"Name": "/dev/sda", "SizeBytes": uint64(42)},
		},
	}
	table := propsTable(e)

	get := table["Get"].(func(string, string) (dbus.Variant, *dbus.Error))
	v, derr := get(config.PvInterface, "Name")
	require.Nil(t, derr)
	assert.Equal(t, "/dev/sda", v.Value())

	_, derr = get(config.PvInterface, "Nope")
	assert.NotNil(t, derr)
	_, derr = get("wrong.iface", "Name")
	assert.NotNil(t, derr)

	getAll := table["GetAll"].(func(string) (map[string]dbus.Variant, *dbus.Error))
	all, derr := getAll(config.PvInterface)
	require.Nil(t, derr)
	assert.Len(t, all, 2)

	set := table["Set"].(func(string, string, dbus.Variant) *dbus.Error)
	assert.NotNil(t, set(config.PvInterface, "Name", dbus.MakeVariant("x")))
}

func TestAwaitHelpers(t *testing.T) {
	ch, cb, _ := callbacks()
	cb("/obj/1")
	p, derr := awaitPath(ch)
	require.Nil(t, derr)
	assert.Equal(t, dbus.ObjectPath("/obj/1"), p)

	ch, cb, _ = callbacks()
	cb([2]string{"/obj/1", "/"})
	op, jp, derr := awaitPair(ch)
	require.Nil(t, derr)
	assert.Equal(t, dbus.ObjectPath("/obj/1"), op)
	assert.Equal(t, dbus.ObjectPath("/"), jp)

	ch, _, cbe := callbacks()
	cbe(faults.NewClient("test.iface", "bad input"))
	_, _, derr = awaitPair(ch)
	require.NotNil(t, derr)
	assert.Equal(t, "test.iface", derr.Name)

	ch, cb, _ = callbacks()
	cb(uint64(9))
	n, derr := awaitUint(ch)
	require.Nil(t, derr)
	assert.Equal(t, uint64(9), n)
}

func TestVariantOpts(t *testing.T) {
	opts := variantOpts(map[string]dbus.Variant{
		"force": dbus.MakeVariant(""),
		"size":  dbus.MakeVariant(int64(7)),
	})
	assert.Equal(t, "", opts["force"])
	assert.Equal(t, int64(7), opts["size"])
}

func TestToDeviceRanges(t *testing.T) {
	got := toDeviceRanges([]destTuple{{Object: "/test/Pv0", Start: 1, End: 2}})
	require.Len(t, got, 1)
	assert.Equal(t, dbus.ObjectPath("/test/Pv0"), got[0].Object)
	require.Len(t, got[0].Ranges, 1)
	assert.Equal(t, uint64(1), got[0].Ranges[0].Start)
}
