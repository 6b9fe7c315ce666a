package iotterminal

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
)

var ErrShutdown = errors.New("shutdown")

type subscription struct {
	isClosed atomic.Bool
	ch       chan Event
}

func (s *subscription) cancel() {
	if s.isClosed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// EventCenter distributes link events to any number of subscribers. Unlike
// Notifier, subscriptions are context-bound iterators, which makes it the
// natural surface for consumers that want to range over a live stream of
// telemetry lines.
type EventCenter struct {
	lck           sync.RWMutex
	subscriptions map[EventKind][]*subscription
}

func NewEventCenter() *EventCenter {
	return &EventCenter{
		subscriptions: make(map[EventKind][]*subscription),
	}
}

func (e *EventCenter) register(kinds []EventKind, s *subscription) func() {
	e.lck.Lock()
	defer e.lck.Unlock()

	for _, kind := range kinds {
		e.subscriptions[kind] = append(e.subscriptions[kind], s)
	}

	return func() {
		e.lck.Lock()
		defer e.lck.Unlock()

		defer s.cancel()

		for _, kind := range kinds {
			e.subscriptions[kind] = slices.DeleteFunc(e.subscriptions[kind], func(ss *subscription) bool {
				return s == ss
			})
		}
	}
}

func (e *EventCenter) Subscribe(
	ctx context.Context,
	kinds ...EventKind,
) iter.Seq2[Event, error] {
	s := &subscription{
		ch: make(chan Event),
	}

	release := e.register(kinds, s)

	return func(yield func(Event, error) bool) {
		defer release()

		for {
			select {
			case event, ok := <-s.ch:
				if !ok {
					yield(Event{}, ErrShutdown)
					return
				}
				if !yield(event, nil) {
					return
				}
			case <-ctx.Done():
				yield(Event{}, ctx.Err())
				return
			}
		}
	}
}

func (e *EventCenter) Publish(kind EventKind, text string) {
	e.lck.RLock()
	defer e.lck.RUnlock()

	for _, s := range e.subscriptions[kind] {
		s.ch <- Event{Kind: kind, Text: text}
	}
}

func (e *EventCenter) Shutdown() {
	e.lck.Lock()
	defer e.lck.Unlock()

	for _, subs := range e.subscriptions {
		for _, sub := range subs {
			sub.cancel()
		}
	}

	e.subscriptions = make(map[EventKind][]*subscription)
}
