/*
Package background runs relocations and snapshot merges.

These are the two operations lvm can report progress for. A runner
goroutine spawns the tool with one-second progress reporting, parses the
"device:ignored:NN.N%" lines into a job state, and on process exit
enqueues a completion request so the follow-up refresh and the job's
result delivery happen on the worker, keeping state mutation
single-threaded. A reaper prunes finished runners.
*/
package background
