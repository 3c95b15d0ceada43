/*
Package log provides structured logging for lvmdbusd.

It wraps zerolog with a process-global logger plus helpers that attach the
fields used throughout the daemon (component, job path, lvm argv). Init must
be called once at startup before any other package logs; components then
derive child loggers via WithComponent and keep them for the life of the
component.

Console output is the default for interactive runs; --log-json switches the
daemon to line-delimited JSON suitable for journald or a collector.
*/
package log
