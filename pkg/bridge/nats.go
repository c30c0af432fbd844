package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSSender publishes frames on a subject. Core NATS publish is
// fire-and-forget with at-most-once delivery, the same contract as the
// pipeline socket; a full reconnect buffer while the server is away maps to
// ErrQueueFull.
type NATSSender struct {
	subject string
	conn    *nats.Conn
}

// NewNATSSender connects to a NATS server and targets subject.
func NewNATSSender(url, subject string) (*NATSSender, error) {
	conn, err := nats.Connect(url,
		nats.Name("tradewire-sender"),
		nats.ReconnectBufSize(512*1024),
	)
	if err != nil {
		return nil, fmt.Errorf("bridge: connect nats %s: %w", url, err)
	}
	return &NATSSender{subject: subject, conn: conn}, nil
}

// Send publishes one frame without waiting for delivery.
func (s *NATSSender) Send(frame []byte) error {
	err := s.conn.Publish(s.subject, frame)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, nats.ErrReconnectBufExceeded):
		return ErrQueueFull
	case errors.Is(err, nats.ErrConnectionClosed):
		return ErrClosed
	default:
		return fmt.Errorf("bridge: nats publish: %w", err)
	}
}

// Close drains and closes the connection.
func (s *NATSSender) Close() error {
	s.conn.Close()
	return nil
}

// NATSReceiver subscribes a single consumer to the subject, buffering
// frames in a bounded channel. Frames past the buffer are dropped by the
// client, preserving the bridge's loss semantics.
type NATSReceiver struct {
	addr    string
	conn    *nats.Conn
	sub     *nats.Subscription
	frames  chan *nats.Msg
	timeout time.Duration
	closed  chan struct{}
	once    sync.Once
}

// NewNATSReceiver connects and subscribes to subject.
func NewNATSReceiver(url, subject string, timeout time.Duration) (*NATSReceiver, error) {
	if timeout <= 0 {
		timeout = time.Second
	}
	conn, err := nats.Connect(url, nats.Name("tradewire-receiver"))
	if err != nil {
		return nil, fmt.Errorf("bridge: connect nats %s: %w", url, err)
	}
	frames := make(chan *nats.Msg, 100000)
	sub, err := conn.ChanSubscribe(subject, frames)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bridge: subscribe %s: %w", subject, err)
	}
	return &NATSReceiver{
		addr:    url + "/" + subject,
		conn:    conn,
		sub:     sub,
		frames:  frames,
		timeout: timeout,
		closed:  make(chan struct{}),
	}, nil
}

// Recv waits at most one receive interval for a frame.
func (r *NATSReceiver) Recv() ([]byte, error) {
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case msg, ok := <-r.frames:
		if !ok {
			return nil, ErrClosed
		}
		return msg.Data, nil
	case <-r.closed:
		return nil, ErrClosed
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Addr returns the server URL and subject.
func (r *NATSReceiver) Addr() string { return r.addr }

// Close unsubscribes and closes the connection. Safe to call more than once.
func (r *NATSReceiver) Close() error {
	var err error
	r.once.Do(func() {
		close(r.closed)
		err = r.sub.Unsubscribe()
		r.conn.Close()
	})
	return err
}
