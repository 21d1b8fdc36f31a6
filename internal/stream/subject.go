// Package stream provides the small amount of reactive plumbing the
// reminder core needs: a replaying live value and a combine-latest operator.
package stream

import (
	"context"
	"sync"
)

// Subject holds the latest value of a stream and fans it out to
// subscribers. New subscribers receive the current value immediately.
//
// Each subscriber channel has a buffer of one and is conflated: a slow
// subscriber skips intermediate values but always ends up with the latest.
// Publish never blocks.
type Subject[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
	subs  map[int]chan T
	next  int
}

// NewSubject returns a Subject that already holds v.
func NewSubject[T any](v T) *Subject[T] {
	return &Subject[T]{value: v, set: true, subs: make(map[int]chan T)}
}

// Value returns the current value and whether one has been published.
func (s *Subject[T]) Value() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.set
}

// Publish replaces the current value and delivers it to all subscribers.
func (s *Subject[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = v
	s.set = true
	for _, ch := range s.subs {
		offer(ch, v)
	}
}

// Subscribe returns a channel of values that stays open until ctx is done.
func (s *Subject[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[int]chan T)
	}
	id := s.next
	s.next++
	s.subs[id] = ch
	if s.set {
		ch <- s.value
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// offer puts v in ch, dropping a value the subscriber has not read yet.
// Only the publisher sends, and it holds the lock, so after the drain the
// buffer has room.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
