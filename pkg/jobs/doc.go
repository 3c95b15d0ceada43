// Package jobs represents in-progress asynchronous operations as
// addressable entities with percent/complete/result/error state and a
// waitable completion.
package jobs
