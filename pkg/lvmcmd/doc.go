/*
Package lvmcmd drives the external lvm command line tool.

The Executor supports two execution modes, switchable at runtime: fork &
exec (one child process per command) and a single persistent `lvm` shell
to which commands are written and whose responses are read back framed by
a prompt embedding the previous exit code. One lock serializes command
execution and mode switches, so at most one lvm command issued through
the Executor is in flight; the background pvmove/merge runner starts its
own lvm processes outside this lock.

Every invocation is recorded in a bounded flight recorder before it runs;
a dump therefore shows a command that hung. A non-zero exit code is data
returned to the caller, not an executor error — spawn failures, report
output that was required but unparseable, and shell prompt
desynchronization are the executor's own failure modes.

The rest of the package is the command catalog: one builder per lvm
operation, rendering the option maps, tag arguments, size suffixes and
activation flag bits the daemon's RPC surface exposes.
*/
package lvmcmd
