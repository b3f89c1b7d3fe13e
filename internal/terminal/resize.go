package terminal

import "sync"

// ResizeNotifier fans a window-level resize signal out to every registered
// listener. It is shared by all sessions of a process.
type ResizeNotifier struct {
	mu        sync.Mutex
	next      int
	listeners map[int]func()
}

func NewResizeNotifier() *ResizeNotifier {
	return &ResizeNotifier{listeners: make(map[int]func())}
}

// OnResize registers fn and returns a func that removes it. The returned
// func may be called more than once.
func (n *ResizeNotifier) OnResize(fn func()) (cancel func()) {
	n.mu.Lock()
	id := n.next
	n.next++
	n.listeners[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.listeners, id)
		n.mu.Unlock()
	}
}

// Notify calls every listener. Listeners run outside the lock.
func (n *ResizeNotifier) Notify() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Listeners returns the number of registered listeners.
func (n *ResizeNotifier) Listeners() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}
