// Package loop provides the single-goroutine event loop that owns every piece of
// viewer session state.
//
// Transport read loops, HTTP completions and timers never touch channel or
// presenter state directly: they post closures here and the loop runs them one
// at a time, in order. Scheduled tasks are cancellable and a cancelled task never
// runs, even when its timer fired before the cancel.
//
// Manual is a deterministic Runtime for tests: posts are queued until drained and
// time only moves through Advance.
package loop
