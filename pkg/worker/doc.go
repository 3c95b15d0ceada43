/*
Package worker serializes mutating operations onto one goroutine.

RPC handlers never touch shared state from the transport; they wrap the
work in a Request and enqueue it. The request's tmo field selects the
return protocol: -1 blocks until the handler's real value is available,
0 returns a job path immediately, and a positive budget returns the real
value when the handler beats the clock or a job path when it does not.
Either way the request resolves exactly once — through the success
callback, the error callback, or the job it was converted into.

The worker also watches the datastore's refresh counter around each
handler: when a handler triggered more than one refresh, any
external-event refresh requests still queued are discarded as stale.
*/
package worker
