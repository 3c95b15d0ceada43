// Package udevmon watches block device uevents over netlink and folds
// the ones that look like lvm state changes into coalesced refreshes.
package udevmon
