package module

// Notifier informs worker routines about the arrival of new work units. It
// behaves like a channel of capacity one: notifying an already-notified
// Notifier is a no-op, and a pending notification is retained until a worker
// consumes it. Notifiers can be passed by value.
type Notifier struct {
	notifier chan struct{} // buffered channel with capacity 1
}

// NewNotifier instantiates a Notifier.
func NewNotifier() Notifier {
	return Notifier{make(chan struct{}, 1)}
}

// Notify sends a notification. Never blocks: if a notification is already
// pending, the call is dropped.
func (n Notifier) Notify() {
	select {
	case n.notifier <- struct{}{}:
	default:
	}
}

// Channel returns the channel for receiving notifications.
func (n Notifier) Channel() <-chan struct{} {
	return n.notifier
}
