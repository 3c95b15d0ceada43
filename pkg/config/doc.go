// Package config holds the daemon configuration and the process-wide
// runtime context: the shutdown flag, feature flags probed at startup
// and the object path allocation counters.
package config
