// Package eventq provides the non-blocking send the Event Bus (§4.M)
// publishes through: a subscriber with a full buffer must miss an event
// rather than stall every other subscriber and the publisher behind it.
package eventq

// Offer sends value on ch without blocking. It reports whether the send
// happened; a false return means ch was full (or already closed, which
// Subscription.Close can race against a concurrent Publish) and the
// event was dropped for that subscriber.
func Offer[T any](ch chan<- T, value T) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case ch <- value:
		return true
	default:
		return false
	}
}
