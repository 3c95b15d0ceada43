// Package daemon assembles the components, owns the instance lock file
// and signal handling, and supervises every long-lived goroutine.
package daemon
