/*
Package objectmgr maps stable object paths to tracked entities.

Every live entity has exactly one registration, visible through three
views kept consistent under a single lock: path to entity, lvm id to
path and uuid to path. PathFor is the canonical resolver — it tries the
literal id, the bracketed hidden form, then the uuid, repairing stale
index entries as renames and uuid changes surface, and can reserve a
fresh path for an entity that is about to exist.

Lifecycle changes are published to an event broker; the D-Bus transport
turns them into ObjectManager InterfacesAdded/InterfacesRemoved signals.
Callers needing a composite read-modify-write sequence use Locked to
hold the lock across the steps instead of re-acquiring per call.
*/
package objectmgr
