package channels

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// inputBuffer is the capacity of the channel returned by Run.
const inputBuffer = 16

type subscriber[T any] struct {
	ch       chan<- T
	inactive atomic.Bool
}

// send delivers msg without blocking. A full channel drops msg; a closed
// channel marks the subscriber inactive for good.
func (s *subscriber[T]) send(msg T) {
	if s.inactive.Load() {
		return
	}

	if err := SendNonBlock(s.ch, msg); errors.Is(err, ErrChannelClosed) {
		s.inactive.Store(true)
	}
}

// Broadcaster broadcasts messages from a single input channel to multiple subscriber channels.
// It owns the input channel and handles graceful shutdown via context cancellation.
//
// Sends never block: a subscriber whose channel is full misses that message.
// Subscribers may join at any time, including after Run; they receive
// messages broadcast from that point on.
//
// On context cancellation, the input channel is closed and all remaining messages
// are drained to subscribers before shutdown completes.
type Broadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers []*subscriber[T]
	input       chan T
	started     atomic.Bool
	wg          sync.WaitGroup
}

// NewBroadcaster creates a new Broadcaster instance for the given type T.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

// Subscribe adds a channel to receive broadcasted messages.
func (f *Broadcaster[T]) Subscribe(ch chan<- T) error {
	if ch == nil {
		return errors.New("subscriber channel cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscribers = append(f.subscribers, &subscriber[T]{ch: ch})

	return nil
}

// Run starts the broadcaster and returns the input channel for sending messages.
//
// The returned channel is owned by Broadcaster and will be closed on context cancellation.
// After closure, all remaining messages are drained to subscribers.
//
// Returns error if already started.
func (f *Broadcaster[T]) Run(ctx context.Context) (chan<- T, error) {
	if !f.started.CompareAndSwap(false, true) {
		return nil, errors.New("broadcaster already started")
	}

	f.input = make(chan T, inputBuffer)

	f.wg.Go(func() {
		for msg := range f.input {
			f.mu.RLock()
			for _, s := range f.subscribers {
				s.send(msg)
			}
			f.mu.RUnlock()
		}
	})

	go func() {
		<-ctx.Done()
		close(f.input)
	}()

	return f.input, nil
}

// Wait blocks until the input channel is closed and every buffered message
// has been handed to subscribers.
func (f *Broadcaster[T]) Wait() {
	f.wg.Wait()
}
