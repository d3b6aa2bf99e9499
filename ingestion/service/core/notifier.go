package service

import "sync"

// Notifier delivers a zero-payload "data changed" signal to any number of waiters.
// Signals coalesce: a waiter that was not listening sees a single change.
type Notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewNotifier creates a Notifier with no pending signal.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{})}
}

// Changed returns a channel that is closed on the next Notify.
func (n *Notifier) Changed() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

// Notify wakes every current waiter. It never blocks.
func (n *Notifier) Notify() {
	n.mu.Lock()
	close(n.ch)
	n.ch = make(chan struct{})
	n.mu.Unlock()
}
