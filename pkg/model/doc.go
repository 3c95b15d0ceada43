/*
Package model holds the entity layer: the typed states built from
datastore rows, the entities (Manager, Pv, Vg, Lv variants) registered
with the object manager, and the reconciler that diffs a fresh snapshot
against what is currently tracked.

Entity method calls never execute lvm directly on the calling goroutine;
they wrap the work in a worker request so all state mutation funnels
through the single worker. A mutating handler follows one template:
resolve the tracked object, run the lvm command, surface a non-zero exit
as a tool failure, refresh, and return the resulting object path.

The LV variant is selected deterministically from the attribute bits and
layout reported by lvm. A variant change across a refresh (an LV becomes
cached, a pool appears) removes and recreates the entity, since its
interface set changed.
*/
package model
