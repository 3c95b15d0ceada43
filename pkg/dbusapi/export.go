package dbusapi

import (
	"github.com/godbus/dbus/v5"

	"github.com/openlvm/lvmdbusd/pkg/faults"
	"github.com/openlvm/lvmdbusd/pkg/jobs"
	"github.com/openlvm/lvmdbusd/pkg/model"
)

// Exported is what an entity must provide to live on the bus.
type Exported interface {
	Path() string
	Interfaces() []string
	Properties() map[string]map[string]interface{}
}

// export publishes an entity: its per-interface method tables, the
// Properties interface and introspection data.
func (s *Service) export(e Exported) {
	path := dbus.ObjectPath(e.Path())

	_ = s.conn.ExportMethodTable(propsTable(e), path, "org.freedesktop.DBus.Properties")
	_ = s.conn.Export(introspectEntity(e), path, "org.freedesktop.DBus.Introspectable")

	for iface, table := range s.methodTables(e) {
		_ = s.conn.ExportMethodTable(table, path, iface)
	}
}

// unexport detaches an entity from the connection.
func (s *Service) unexport(path string, ifaces []string) {
	p := dbus.ObjectPath(path)
	_ = s.conn.Export(nil, p, "org.freedesktop.DBus.Properties")
	_ = s.conn.Export(nil, p, "org.freedesktop.DBus.Introspectable")
	for _, iface := range ifaces {
		_ = s.conn.Export(nil, p, iface)
	}
}

// propsTable implements org.freedesktop.DBus.Properties over the
// entity's live property dictionary.
func propsTable(e Exported) map[string]interface{} {
	return map[string]interface{}{
		"Get": func(iface, prop string) (dbus.Variant, *dbus.Error) {
			props, ok := e.Properties()[iface]
			if !ok {
				return dbus.Variant{}, dbus.NewError(
					"org.freedesktop.DBus.Error.UnknownInterface", []interface{}{iface})
			}
			v, ok := props[prop]
			if !ok {
				return dbus.Variant{}, dbus.NewError(
					"org.freedesktop.DBus.Error.UnknownProperty", []interface{}{prop})
			}
			return dbus.MakeVariant(v), nil
		},
		"GetAll": func(iface string) (map[string]dbus.Variant, *dbus.Error) {
			props, ok := e.Properties()[iface]
			if !ok {
				return nil, dbus.NewError(
					"org.freedesktop.DBus.Error.UnknownInterface", []interface{}{iface})
			}
			return makeVariants(props), nil
		},
		"Set": func(iface, prop string, v dbus.Variant) *dbus.Error {
			return dbus.NewError("org.freedesktop.DBus.Error.PropertyReadOnly",
				[]interface{}{prop})
		},
	}
}

// outcome carries a request callback result to the waiting method
// goroutine.
type outcome struct {
	val interface{}
	err error
}

// callbacks builds the cb/cbe pair feeding one outcome channel.
func callbacks() (chan outcome, func(interface{}), func(error)) {
	ch := make(chan outcome, 2)
	return ch,
		func(v interface{}) { ch <- outcome{val: v} },
		func(e error) { ch <- outcome{err: e} }
}

// toDBusError maps a fault to a bus error named by the originating
// interface.
func toDBusError(err error) *dbus.Error {
	name := "com.openlvm.lvmdbus1.Error"
	if f := faults.As(err); f != nil && f.Interface != "" {
		name = f.Interface
	}
	return dbus.NewError(name, []interface{}{err.Error()})
}

// awaitPath resolves a single object path reply.
func awaitPath(ch chan outcome) (dbus.ObjectPath, *dbus.Error) {
	o := <-ch
	if o.err != nil {
		return "/", toDBusError(o.err)
	}
	if s, ok := o.val.(string); ok {
		return dbus.ObjectPath(s), nil
	}
	return "/", nil
}

// awaitPair resolves an (object_path, job_path) reply.
func awaitPair(ch chan outcome) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
	o := <-ch
	if o.err != nil {
		return "/", "/", toDBusError(o.err)
	}
	if pair, ok := o.val.([2]string); ok {
		return dbus.ObjectPath(pair[0]), dbus.ObjectPath(pair[1]), nil
	}
	if s, ok := o.val.(string); ok {
		return dbus.ObjectPath(s), "/", nil
	}
	return "/", "/", nil
}

// awaitUint resolves a change count reply.
func awaitUint(ch chan outcome) (uint64, *dbus.Error) {
	o := <-ch
	if o.err != nil {
		return 0, toDBusError(o.err)
	}
	if n, ok := o.val.(uint64); ok {
		return n, nil
	}
	return 0, nil
}

// variantOpts unwraps an a{sv} option map.
func variantOpts(opts map[string]dbus.Variant) map[string]interface{} {
	rc := make(map[string]interface{}, len(opts))
	for k, v := range opts {
		rc[k] = v.Value()
	}
	return rc
}

// segTuple is the (start, end) pair of Move source ranges.
type segTuple struct {
	Start uint64
	End   uint64
}

// destTuple is one (pv, start, end) destination of Move/Resize/LvCreate.
type destTuple struct {
	Object dbus.ObjectPath
	Start  uint64
	End    uint64
}

func toDeviceRanges(dests []destTuple) []model.DeviceRange {
	rc := make([]model.DeviceRange, 0, len(dests))
	for _, d := range dests {
		rc = append(rc, model.DeviceRange{
			Object: d.Object,
			Ranges: []model.SegRange{{Start: d.Start, End: d.End}},
		})
	}
	return rc
}

// majorMinor is one (major, minor) pair for PvScan.
type majorMinor struct {
	Major int32
	Minor int32
}

var _ Exported = (*jobs.Job)(nil)
