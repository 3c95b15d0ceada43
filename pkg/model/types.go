package model

import (
	"reflect"

	"github.com/godbus/dbus/v5"
)

// CodeDesc is an attribute character with its human readable meaning,
// marshalled as (ss).
type CodeDesc struct {
	Code string
	Desc string
}

// SegRange is one extent range with its segment type, marshalled (tts).
type SegRange struct {
	Start uint64
	End   uint64
	Type  string
}

// DeviceRange ties an object path to the extent ranges used on it,
// marshalled (oa(tts)).
type DeviceRange struct {
	Object dbus.ObjectPath
	Ranges []SegRange
}

// Props is the per-interface property dictionary of an entity. An alias
// so entities outside this package (jobs) satisfy the same contract.
type Props = map[string]map[string]interface{}

// Entity extends the object manager registration contract with what the
// loader and the transport need: typed properties, a variant kind for
// replace-detection, and in-place state application.
type Entity interface {
	Path() string
	LvmID() string
	UUID() string
	Interfaces() []string
	Kind() string
	Properties() Props
	// Apply replaces the entity's state, reporting whether any
	// externally visible property changed.
	Apply(st EntityState) bool
}

// EntityState is one reconciled row of the datastore snapshot, ready to
// become an entity or be folded into an existing one.
type EntityState interface {
	UUID() string
	LvmID() string
	Kind() string
	// Allocate returns the path allocator used when the entity is new.
	Allocate(rt *Runtime) func() string
	// NewEntity constructs the entity at the given path.
	NewEntity(rt *Runtime, path string) Entity
}

func propsEqual(a, b Props) bool {
	return reflect.DeepEqual(a, b)
}

const objNone = dbus.ObjectPath("/")
