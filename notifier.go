package iotterminal

import (
	"slices"
	"sync"
)

type listener struct {
	fn func(text string)
}

// Notifier is a callback fan-out for link events, keyed by EventKind.
// Transports use it to dispatch incoming lines and drop signals to whoever
// has subscribed.
type Notifier struct {
	lock      sync.RWMutex
	listeners map[EventKind][]*listener
}

func NewNotifier() *Notifier {
	return &Notifier{
		listeners: make(map[EventKind][]*listener),
	}
}

func (n *Notifier) Subscribe(kind EventKind, fn func(text string)) func() {
	n.lock.Lock()
	defer n.lock.Unlock()
	lr := &listener{fn: fn}
	n.listeners[kind] = append(n.listeners[kind], lr)
	return func() {
		n.unsubscribe(kind, lr)
	}
}

func (n *Notifier) unsubscribe(kind EventKind, lr *listener) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.listeners[kind] = slices.DeleteFunc(n.listeners[kind], func(l *listener) bool {
		return l == lr
	})
}

func (n *Notifier) Notify(kind EventKind, text string) {
	n.lock.RLock()
	defer n.lock.RUnlock()
	for _, l := range n.listeners[kind] {
		l.fn(text)
	}
}
