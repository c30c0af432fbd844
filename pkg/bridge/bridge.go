// Package bridge carries serialized events from many producers to one
// receiver over a pipeline socket pair. Delivery is at-most-once and
// fire-and-forget: a saturated send buffer or an absent receiver drops the
// frame at the sender.
package bridge

import "errors"

var (
	// ErrQueueFull reports sender-side backpressure: the bounded local send
	// buffer is saturated or no receiver is connected. Callers count it,
	// they do not retry inside the core.
	ErrQueueFull = errors.New("bridge: send queue full")

	// ErrTimeout reports that no frame arrived within the receiver's
	// cooperative receive interval.
	ErrTimeout = errors.New("bridge: receive timed out")

	// ErrClosed reports use of a closed endpoint.
	ErrClosed = errors.New("bridge: endpoint closed")
)

// Sender is the producer side of the bridge. Send never blocks: it either
// enqueues the frame or returns ErrQueueFull.
type Sender interface {
	Send(frame []byte) error
	Close() error
}

// Receiver is the single consuming side of the bridge. Recv blocks at most
// one receive interval, returning ErrTimeout when nothing arrived, so the
// owning loop can observe cancellation between frames.
type Receiver interface {
	Recv() ([]byte, error)
	Addr() string
	Close() error
}
