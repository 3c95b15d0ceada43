package objectmgr

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openlvm/lvmdbusd/pkg/events"
	"github.com/openlvm/lvmdbusd/pkg/log"
)

// Entity is anything addressable over the RPC surface: it has a stable
// object path, the human readable lvm identifier (which can change) and
// an immutable uuid.
type Entity interface {
	Path() string
	LvmID() string
	UUID() string
	Interfaces() []string
}

type record struct {
	entity Entity // nil for a path reserved ahead of registration
	lvmID  string
	uuid   string
}

// Manager tracks every live entity. Three views are kept mutually
// consistent under one lock: path to entity, lvm id to path and uuid to
// path. The id and uuid indexes share one map, exactly as both are used
// as alternate names for the same object.
type Manager struct {
	mu       sync.Mutex
	objects  map[string]*record
	idToPath map[string]string

	broker *events.Broker
	log    zerolog.Logger
}

// New creates an empty manager publishing lifecycle events to broker.
func New(broker *events.Broker) *Manager {
	return &Manager{
		objects:  make(map[string]*record),
		idToPath: make(map[string]string),
		broker:   broker,
		log:      log.WithComponent("objectmgr"),
	}
}

// Locked runs fn with the manager lock held, giving it the unlocked
// view for composite read-modify-write sequences.
func (m *Manager) Locked(fn func(*View)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&View{m: m})
}

// View is the manager with its lock already held. Only valid inside a
// Locked callback.
type View struct{ m *Manager }

func (m *Manager) lookupAdd(e Entity, path, lvmID, uuid string) {
	// A temp entry may exist from the forward creation of the path.
	m.lookupRemove(path)

	m.objects[path] = &record{entity: e, lvmID: lvmID, uuid: uuid}
	m.idToPath[lvmID] = path
	if uuid != "" {
		m.idToPath[uuid] = path
	}
}

func (m *Manager) lookupRemove(path string) {
	if rec, ok := m.objects[path]; ok {
		delete(m.idToPath, rec.lvmID)
		delete(m.idToPath, rec.uuid)
		delete(m.objects, path)
	}
}

// Register adds an entity to all indexes and optionally announces it.
func (m *Manager) Register(e Entity, emitSignal bool) {
	m.mu.Lock()
	m.lookupAdd(e, e.Path(), e.LvmID(), e.UUID())
	m.mu.Unlock()

	m.broker.Publish(&events.Event{
		Type:       events.EventInterfacesAdded,
		Path:       e.Path(),
		Interfaces: e.Interfaces(),
		Entity:     e,
		Signal:     emitSignal,
	})
}

// Remove drops an entity from all indexes, detaches it from the
// transport and optionally announces the removal.
func (m *Manager) Remove(e Entity, emitSignal bool) {
	m.mu.Lock()
	m.lookupRemove(e.Path())
	m.mu.Unlock()

	m.broker.Publish(&events.Event{
		Type:       events.EventInterfacesRemoved,
		Path:       e.Path(),
		Interfaces: e.Interfaces(),
		Signal:     emitSignal,
	})
}

// PublishPropertiesChanged announces an in-place property update.
func (m *Manager) PublishPropertiesChanged(e Entity) {
	m.broker.Publish(&events.Event{
		Type:       events.EventPropertiesChanged,
		Path:       e.Path(),
		Interfaces: e.Interfaces(),
		Entity:     e,
		Signal:     true,
	})
}

// LookupUpdate re-keys an entity whose uuid or lvm id changed.
func (m *Manager) LookupUpdate(e Entity, newUUID, newLvmID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookupRemove(e.Path())
	m.lookupAdd(e, e.Path(), newLvmID, newUUID)
}

// ByPath returns the entity registered at path, or nil.
func (m *Manager) ByPath(path string) Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byPath(path)
}

func (m *Manager) byPath(path string) Entity {
	if rec, ok := m.objects[path]; ok {
		return rec.entity
	}
	return nil
}

// ByLvmID returns the entity registered under an lvm identifier, or nil.
func (m *Manager) ByLvmID(lvmID string) Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if path, ok := m.idToPath[lvmID]; ok {
		return m.byPath(path)
	}
	return nil
}

// ByUUIDLvmID resolves by uuid or lvm id, reconciling the indexes when
// only one of the two still matches.
func (m *Manager) ByUUIDLvmID(uuid, lvmID string) Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byPath(m.pathFor(uuid, lvmID, nil))
}

// uuidVerify ensures the uuid resolves after a successful lvm id lookup;
// ids and uuids can change independently across renames.
func (m *Manager) uuidVerify(path, lvmID, uuid string) {
	if lvmID != uuid {
		if _, ok := m.idToPath[uuid]; !ok {
			m.lookupAdd(m.byPath(path), path, lvmID, uuid)
		}
	}
}

// PathFor is the canonical resolver. It tries the literal lvm id, then
// the bracketed hidden form for vg/lv ids, then the uuid, reconciling
// stale index entries along the way. When nothing matches and create is
// non-nil a fresh path is reserved for the uuid and returned.
func (m *Manager) PathFor(uuid, lvmID string, create func() string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pathFor(uuid, lvmID, create)
}

func (m *Manager) pathFor(uuid, lvmID string, create func() string) string {
	if path, ok := m.idToPath[lvmID]; ok {
		m.uuidVerify(path, lvmID, uuid)
		return path
	}

	if idx := strings.Index(lvmID, "/"); idx > 0 {
		// A hidden LV is registered under "vg/[name]"; accept the
		// unbracketed spelling too.
		hidden := lvmID[:idx] + "/[" + lvmID[idx+1:] + "]"
		if path, ok := m.idToPath[hidden]; ok {
			m.uuidVerify(path, hidden, uuid)
			return path
		}
	}

	if path, ok := m.idToPath[uuid]; ok && uuid != "" {
		// Found by uuid only: a rename left the lvm id stale. Fix the
		// table so later lookups work both ways.
		if uuid != lvmID {
			m.lookupAdd(m.byPath(path), path, lvmID, uuid)
		}
		return path
	}

	if create != nil {
		path := create()
		m.lookupAdd(nil, path, lvmID, uuid)
		return path
	}
	return ""
}

// PathsWhere returns the registered paths whose entity satisfies pred.
func (m *Manager) PathsWhere(pred func(Entity) bool) map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc := make(map[string]bool)
	for path, rec := range m.objects {
		if rec.entity != nil && pred(rec.entity) {
			rc[path] = true
		}
	}
	return rc
}

// Entities snapshots all registered entities (placeholders excluded).
func (m *Manager) Entities() []Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc := make([]Entity, 0, len(m.objects))
	for _, rec := range m.objects {
		if rec.entity != nil {
			rc = append(rc, rec.entity)
		}
	}
	return rc
}

// Len returns the number of registrations, reserved paths included.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Locked-view variants for composite operations.

func (v *View) ByPath(path string) Entity { return v.m.byPath(path) }

func (v *View) PathFor(uuid, lvmID string, create func() string) string {
	return v.m.pathFor(uuid, lvmID, create)
}

func (v *View) ByLvmID(lvmID string) Entity {
	if path, ok := v.m.idToPath[lvmID]; ok {
		return v.m.byPath(path)
	}
	return nil
}
