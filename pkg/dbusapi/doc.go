/*
Package dbusapi binds the entity layer to D-Bus.

The service owns the bus connection, claims the daemon name and keeps
the exported object tree in step with the object manager by consuming
its lifecycle events: a registered entity gets its per-variant method
tables, a Properties handler and introspection data exported at its
path; a removed entity is detached and announced through the
ObjectManager InterfacesRemoved signal.

Method handlers never run volume operations on the connection's
goroutine. Each exported method wraps the arguments, enqueues a worker
request through the entity layer and parks on the request's completion
callbacks; the reply is either the real result or a job path, per the
tmo protocol.
*/
package dbusapi
