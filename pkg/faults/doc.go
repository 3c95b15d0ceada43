// Package faults classifies daemon errors: client mistakes, lvm
// failures, lvm misbehavior, transient I/O and shutdown. The kind
// decides what reaches the client and whether a refresh still runs.
package faults
