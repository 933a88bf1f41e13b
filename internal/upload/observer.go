package upload

import "sync"

// Observer receives the changes a page would render. Calls happen outside
// the coordinator lock, so an observer may query the coordinator. Calls are
// never concurrent and arrive in the order the changes were made; a call may
// be made on a goroutine other than the one that caused the change.
type Observer interface {
	TaskChanged(task Task)
	SelectionChanged(enabled bool)
	// ErrorDisplayed reports the message now shown; empty clears it.
	ErrorDisplayed(message string)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) TaskChanged(Task)      {}
func (NopObserver) SelectionChanged(bool) {}
func (NopObserver) ErrorDisplayed(string) {}

type notifications []func(Observer)

func (n *notifications) task(task Task) {
	*n = append(*n, func(o Observer) { o.TaskChanged(task) })
}

func (n *notifications) selection(enabled bool) {
	*n = append(*n, func(o Observer) { o.SelectionChanged(enabled) })
}

func (n *notifications) message(message string) {
	*n = append(*n, func(o Observer) { o.ErrorDisplayed(message) })
}

func (n notifications) deliver(o Observer) {
	for _, fn := range n {
		fn(o)
	}
}

// dispatcher delivers notification batches in the order they were queued.
// Batches are queued under the coordinator lock; whichever goroutine finds
// no delivery running drains the queue, so observer calls never overlap.
type dispatcher struct {
	mu      sync.Mutex
	pending []notifications
	active  bool
}

func (d *dispatcher) enqueue(n notifications) {
	if len(n) == 0 {
		return
	}
	d.mu.Lock()
	d.pending = append(d.pending, n)
	d.mu.Unlock()
}

func (d *dispatcher) drain(o Observer) {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return
	}
	d.active = true
	for len(d.pending) > 0 {
		batch := d.pending[0]
		d.pending = d.pending[1:]
		d.mu.Unlock()
		batch.deliver(o)
		d.mu.Lock()
	}
	d.active = false
	d.mu.Unlock()
}
