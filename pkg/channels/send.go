// Package channels provides generic helpers for fan-out over Go channels.
package channels

import "errors"

var (
	ErrChannelClosed = errors.New("channel closed")
	ErrChannelFull   = errors.New("channel full")
)

// SendNonBlock attempts to send a message without blocking.
// Returns ErrChannelFull when no receiver is ready and ErrChannelClosed
// when ch has been closed.
func SendNonBlock[T any](ch chan<- T, msg T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrChannelClosed
		}
	}()

	select {
	case ch <- msg:
		return nil
	default:
		return ErrChannelFull
	}
}
