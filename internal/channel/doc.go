// Package channel implements the per-channel connection lifecycle.
//
// A Manager owns exactly one transport handle and moves through
// Idle, Connecting, Open, Closing and Closed by feeding typed events into Next,
// a pure transition table. What happens after Closed depends on the channel's
// Policy: video and stats settle back to Idle and wait for a command, while the
// notification channel schedules a reconnect after a fixed delay, forever.
//
// Managers are confined to the session event loop. Transports run on their own
// goroutines and hand events to a Sink, which posts them back onto the loop
// tagged with the handle generation so late events from a replaced handle are
// dropped.
package channel
