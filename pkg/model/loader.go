package model

import (
	"strings"

	"github.com/openlvm/lvmdbusd/pkg/coordinator"
	"github.com/openlvm/lvmdbusd/pkg/metrics"
	"github.com/openlvm/lvmdbusd/pkg/objectmgr"
)

// Loader converges the object manager onto the datastore snapshot: new
// uuids become entities, known uuids update in place, absent uuids are
// removed once everything else has been reconciled.
type Loader struct {
	rt *Runtime
}

// NewLoader creates the loader.
func NewLoader(rt *Runtime) *Loader { return &Loader{rt: rt} }

// reconcile diffs one entity kind. With refresh false existing entities
// are left untouched (initial population). Removal candidates are only
// collected for full passes (full == true); a targeted load must
// not treat everything it did not select as gone.
func reconcile(rt *Runtime, kindPrefix string, states []EntityState,
	refresh, emitSignal, full bool) (entities []Entity, changes uint64, toRemove []string) {

	existing := rt.OM.PathsWhere(func(e objectmgr.Entity) bool {
		me, ok := e.(Entity)
		return ok && strings.HasPrefix(me.Kind(), kindPrefix)
	})

	seen := make(map[string]bool, len(states))
	for _, st := range states {
		path := rt.OM.PathFor(st.UUID(), st.LvmID(), st.Allocate(rt))

		if cur := rt.OM.ByPath(path); cur != nil {
			me, ok := cur.(Entity)
			if ok && me.Kind() == st.Kind() {
				if refresh && me.Apply(st) {
					changes++
					if emitSignal {
						rt.OM.PublishPropertiesChanged(me)
					}
				}
				entities = append(entities, me)
				seen[path] = true
				continue
			}
			// The variant changed (e.g. an LV became cached); the old
			// interface set is gone, recreate below.
			rt.OM.Remove(cur, emitSignal)
		}

		e := st.NewEntity(rt, path)
		rt.OM.Register(e, emitSignal)
		entities = append(entities, e)
		changes++
		seen[path] = true
	}

	if full {
		for p := range existing {
			if !seen[p] {
				toRemove = append(toRemove, p)
			}
		}
	}
	return entities, changes, toRemove
}

// Load is the coordinator's LoadFunc: one full refresh plus
// reconciliation pass, returning the total change count.
func (ld *Loader) Load(opts coordinator.Opts) (uint64, error) {
	rt := ld.rt

	if opts.CacheRefresh {
		if err := rt.DB.Refresh(opts.Log); err != nil {
			return 0, err
		}
	}

	var total uint64
	var toRemove []string

	_, changes, rm := reconcile(rt, "pv", pvsStateRetrieve(rt, nil), opts.Refresh, opts.EmitSignal, true)
	total += changes
	toRemove = append(toRemove, rm...)

	_, changes, rm = reconcile(rt, "vg", vgsStateRetrieve(rt, nil), opts.Refresh, opts.EmitSignal, true)
	total += changes
	toRemove = append(toRemove, rm...)

	_, lvChanges, rm := reconcile(rt, "lv", lvsStateRetrieve(rt, nil), opts.Refresh, opts.EmitSignal, true)
	total += lvChanges
	toRemove = append(toRemove, rm...)

	// An LV transition can change VG-level views (child lists, free
	// space); one more VG pass picks that up. Re-scanning VGs beats
	// re-scanning LVs: there are fewer of them.
	if opts.Refresh && lvChanges > 0 {
		_, changes, rm = reconcile(rt, "vg", vgsStateRetrieve(rt, nil), opts.Refresh, opts.EmitSignal, true)
		total += changes
		toRemove = append(toRemove, rm...)
	}

	// Remove leftovers only after every kind has been processed so
	// references stay valid while dependents reconcile; last loaded,
	// first removed.
	for i := len(toRemove) - 1; i >= 0; i-- {
		if e := rt.OM.ByPath(toRemove[i]); e != nil {
			rt.OM.Remove(e, true)
			total++
		}
	}

	updateEntityMetrics(rt)
	return total, nil
}

// loadTargetedLVs refreshes the snapshot and materializes specific LVs
// (by vg/name), registering them with signals. Used by create handlers
// to return the new object's path.
func loadTargetedLVs(rt *Runtime, names []string) []Entity {
	if err := rt.DB.Refresh(false); err != nil {
		return nil
	}
	entities, _, _ := reconcile(rt, "lv", lvsStateRetrieve(rt, names), true, true, false)
	return entities
}

// loadTargetedPVs refreshes the snapshot and materializes specific PVs
// (by device name).
func loadTargetedPVs(rt *Runtime, names []string) []Entity {
	if err := rt.DB.Refresh(false); err != nil {
		return nil
	}
	entities, _, _ := reconcile(rt, "pv", pvsStateRetrieve(rt, names), true, true, false)
	return entities
}

// loadTargetedVGs refreshes the snapshot and materializes specific VGs
// (by name).
func loadTargetedVGs(rt *Runtime, names []string) []Entity {
	if err := rt.DB.Refresh(false); err != nil {
		return nil
	}
	entities, _, _ := reconcile(rt, "vg", vgsStateRetrieve(rt, names), true, true, false)
	return entities
}

func updateEntityMetrics(rt *Runtime) {
	counts := map[string]int{}
	for _, e := range rt.OM.Entities() {
		if me, ok := e.(Entity); ok {
			kind := me.Kind()
			if i := strings.Index(kind, "."); i > 0 {
				kind = kind[:i]
			}
			counts[kind]++
		}
	}
	for kind, n := range counts {
		metrics.EntitiesTotal.WithLabelValues(kind).Set(float64(n))
	}
}
