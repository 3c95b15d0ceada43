/*
Package datastore caches the structured view of the lvm state.

One fullreport invocation produces one immutable snapshot: the raw rows
per entity kind plus the containment indexes (PVs per VG, visible LVs
per VG, hidden children per LV, extent ranges per LV/PV pair). Refresh
atomically swaps the snapshot; readers always see a complete, coherent
view. A monotonic counter exposes how many refreshes have happened,
which the worker uses to detect redundant queued refreshes.

lvm occasionally omits a requested column; the daemon treats that as a
tool bug rather than limping along with partial rows.
*/
package datastore
