package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a daemon fault. The kind decides how a failure is
// surfaced to the client and whether a refresh is still required.
type Kind int

const (
	// Client is bad input from the caller. No state changed, no refresh.
	Client Kind = iota
	// ToolFailure is lvm exiting non-zero. Partial state may have
	// changed, so a refresh is still triggered.
	ToolFailure
	// ToolBug is lvm misbehaving: unparseable report output, a missing
	// column, a desynchronized shell prompt. The flight recorder gets
	// dumped when one of these surfaces.
	ToolBug
	// Transient is an I/O error talking to the lvm subprocess.
	Transient
	// Shutdown unblocks waiters while the daemon exits.
	Shutdown
)

func (k Kind) String() string {
	switch k {
	case Client:
		return "client"
	case ToolFailure:
		return "tool-failure"
	case ToolBug:
		return "tool-bug"
	case Transient:
		return "transient"
	case Shutdown:
		return "shutdown"
	}
	return "unknown"
}

// Fault is the error type crossing component boundaries. Interface names
// the RPC interface the fault originated from so the transport can use it
// as the D-Bus error name.
type Fault struct {
	Kind      Kind
	Interface string
	ExitCode  int
	Stderr    string
	Msg       string
}

func (f *Fault) Error() string {
	if f.Kind == ToolFailure {
		return fmt.Sprintf("Exit code %d, stderr = %s", f.ExitCode, f.Stderr)
	}
	return f.Msg
}

// NewClient reports invalid caller input against the given interface.
func NewClient(iface, format string, args ...interface{}) *Fault {
	return &Fault{Kind: Client, Interface: iface, Msg: fmt.Sprintf(format, args...)}
}

// NewToolFailure wraps a non-zero lvm exit.
func NewToolFailure(iface string, exitCode int, stderr string) *Fault {
	return &Fault{Kind: ToolFailure, Interface: iface, ExitCode: exitCode, Stderr: stderr}
}

// NewToolBug reports output from lvm the daemon cannot make sense of.
func NewToolBug(format string, args ...interface{}) *Fault {
	return &Fault{Kind: ToolBug, Msg: fmt.Sprintf(format, args...)}
}

// NewTransient reports an I/O error reading from the subprocess.
func NewTransient(format string, args ...interface{}) *Fault {
	return &Fault{Kind: Transient, Msg: fmt.Sprintf(format, args...)}
}

// ErrShutdown is handed to every waiter when the daemon stops.
var ErrShutdown = &Fault{Kind: Shutdown, Msg: "daemon is shutting down"}

// KindOf extracts the fault kind from an error chain. Plain errors map to
// Transient: they came from the runtime, not from a client or from lvm.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return Transient
}

// As returns the underlying Fault, or nil when err carries none.
func As(err error) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return nil
}
