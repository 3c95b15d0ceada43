/*
Package coordinator serializes state refreshes through one loop.

Any number of goroutines ask for a refresh; the loop drains whatever has
queued up, merges the request options with OR semantics, performs a
single load pass and hands every batched waiter the same change count.
One fetch reflects all prior changes, so per-change fetches would only
add latency.

Failures are retried with the batch intact. After five consecutive
failures the flight recorder is dumped, every waiter is given the error
and the daemon exits; no request is ever left without an outcome.
*/
package coordinator
