// Package async provides panic-safe goroutine helpers for background work.
//
// SafeGo replaces a bare `go func()` for fire-and-forget tasks: it bounds the
// task with a timeout, recovers panics and logs failures instead of crashing
// the process. The solver uses it to archive execution records off the billing
// path, and the event dispatcher uses it for webhook delivery attempts.
//
// WorkerPool and Batch run many tasks on a fixed number of workers with the
// same guarantees; the event retry worker redelivers failed webhooks through
// Batch so one slow endpoint cannot serialize the whole retry pass.
package async
