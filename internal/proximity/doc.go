// Package proximity implements the peer proximity coordination core.
//
// A Coordinator owns four cooperating parts: the Registry (peers, tokens,
// armed flags), the Aggregator (latest distance per peer, nearest distance),
// the Debouncer (OutOfRange/Pending/Stable with a hold deadline) and the
// Trigger (one-shot action per connection epoch). Transport and ranging
// callbacks never touch that state directly: they Post events onto a Queue
// and the single Run goroutine applies them in order, evaluating the
// debouncer on a periodic tick.
package proximity
