package dbusapi

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/events"
	"github.com/openlvm/lvmdbusd/pkg/jobs"
	"github.com/openlvm/lvmdbusd/pkg/log"
	"github.com/openlvm/lvmdbusd/pkg/objectmgr"
)

// Service owns the bus connection and keeps the exported object tree in
// step with the object manager by consuming its lifecycle events.
type Service struct {
	rt      *config.Runtime
	om      *objectmgr.Manager
	broker  *events.Broker
	jobsReg *jobs.Registry
	conn    *dbus.Conn
	sub     events.Subscriber
	log     zerolog.Logger
}

// New connects to the bus and claims the daemon's name.
func New(rt *config.Runtime, om *objectmgr.Manager, broker *events.Broker,
	jobsReg *jobs.Registry) (*Service, error) {
	var conn *dbus.Conn
	var err error
	if rt.Cfg.SessionBus {
		conn, err = dbus.ConnectSessionBus()
	} else {
		conn, err = dbus.ConnectSystemBus()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bus: %w", err)
	}

	reply, err := conn.RequestName(config.BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name %s already taken", config.BusName)
	}

	s := &Service{
		rt:      rt,
		om:      om,
		broker:  broker,
		jobsReg: jobsReg,
		conn:    conn,
		log:     log.WithComponent("dbus"),
	}
	// Subscribe before any handler can run so no lifecycle event is
	// missed between construction and the event loop starting.
	s.sub = broker.Subscribe()
	s.exportObjectManager()
	return s, nil
}

// ExportExisting exports every entity already registered (initial load
// happens before the bus goes live).
func (s *Service) ExportExisting() {
	for _, e := range s.om.Entities() {
		if me, ok := e.(Exported); ok {
			s.export(me)
		}
	}
}

// Run consumes lifecycle events until shutdown.
func (s *Service) Run() {
	defer s.broker.Unsubscribe(s.sub)

	for {
		select {
		case ev, ok := <-s.sub:
			if !ok {
				return
			}
			s.handle(ev)
		case <-s.rt.Done():
			return
		}
	}
}

func (s *Service) handle(ev *events.Event) {
	path := dbus.ObjectPath(ev.Path)
	switch ev.Type {
	case events.EventInterfacesAdded:
		me, ok := ev.Entity.(Exported)
		if !ok {
			return
		}
		s.export(me)
		if ev.Signal {
			s.log.Debug().Str("path", ev.Path).Msg("SIGNAL: InterfacesAdded")
			_ = s.conn.Emit(dbus.ObjectPath(config.BaseObjPath),
				"org.freedesktop.DBus.ObjectManager.InterfacesAdded",
				path, variantProps(me.Properties()))
		}
	case events.EventInterfacesRemoved:
		s.unexport(ev.Path, ev.Interfaces)
		if ev.Signal {
			s.log.Debug().Str("path", ev.Path).Msg("SIGNAL: InterfacesRemoved")
			_ = s.conn.Emit(dbus.ObjectPath(config.BaseObjPath),
				"org.freedesktop.DBus.ObjectManager.InterfacesRemoved",
				path, ev.Interfaces)
		}
	case events.EventPropertiesChanged:
		me, ok := ev.Entity.(Exported)
		if !ok {
			return
		}
		for iface, props := range me.Properties() {
			_ = s.conn.Emit(path,
				"org.freedesktop.DBus.Properties.PropertiesChanged",
				iface, makeVariants(props), []string{})
		}
	}
}

// Close drops the bus connection.
func (s *Service) Close() {
	_ = s.conn.Close()
}

// exportObjectManager publishes the ObjectManager interface at the root.
func (s *Service) exportObjectManager() {
	table := map[string]interface{}{
		"GetManagedObjects": func() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, *dbus.Error) {
			rc := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)
			for _, e := range s.om.Entities() {
				me, ok := e.(Exported)
				if !ok {
					continue
				}
				rc[dbus.ObjectPath(me.Path())] = variantProps(me.Properties())
			}
			return rc, nil
		},
	}
	_ = s.conn.ExportMethodTable(table, dbus.ObjectPath(config.BaseObjPath),
		"org.freedesktop.DBus.ObjectManager")
	_ = s.conn.Export(introspectRoot(), dbus.ObjectPath(config.BaseObjPath),
		"org.freedesktop.DBus.Introspectable")
}

func makeVariants(props map[string]interface{}) map[string]dbus.Variant {
	rc := make(map[string]dbus.Variant, len(props))
	for k, v := range props {
		rc[k] = dbus.MakeVariant(v)
	}
	return rc
}

func variantProps(p map[string]map[string]interface{}) map[string]map[string]dbus.Variant {
	rc := make(map[string]map[string]dbus.Variant, len(p))
	for iface, props := range p {
		rc[iface] = makeVariants(props)
	}
	return rc
}
