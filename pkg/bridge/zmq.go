package bridge

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// PushSender is a ZeroMQ PUSH endpoint. The socket connects to the
// receiver's address and sends with DONTWAIT against a bounded high-water
// mark, so a slow or absent receiver surfaces as ErrQueueFull instead of a
// stalled caller.
type PushSender struct {
	addr string

	mu     sync.Mutex
	sock   *zmq.Socket
	closed bool
}

// PushOptions tune the sender's local buffering.
type PushOptions struct {
	// SendHWM bounds the local send buffer in frames. Zero means 100,
	// small enough that saturation is observable under burst load.
	SendHWM int
}

// NewPushSender connects a PUSH socket to addr.
func NewPushSender(addr string, opts PushOptions) (*PushSender, error) {
	hwm := opts.SendHWM
	if hwm <= 0 {
		hwm = 100
	}

	sock, err := zmq.NewSocket(zmq.PUSH)
	if err != nil {
		return nil, fmt.Errorf("bridge: create push socket: %w", err)
	}
	// Drop pending frames on close instead of lingering.
	if err := sock.SetLinger(0); err != nil {
		sock.Close()
		return nil, fmt.Errorf("bridge: set linger: %w", err)
	}
	if err := sock.SetSndhwm(hwm); err != nil {
		sock.Close()
		return nil, fmt.Errorf("bridge: set send hwm: %w", err)
	}
	if err := sock.Connect(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("bridge: connect %s: %w", addr, err)
	}
	return &PushSender{addr: addr, sock: sock}, nil
}

// Send enqueues one frame without blocking.
func (s *PushSender) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.sock.SendBytes(frame, zmq.DONTWAIT); err != nil {
		if isWouldBlock(err) {
			return ErrQueueFull
		}
		return fmt.Errorf("bridge: send: %w", err)
	}
	return nil
}

// Addr returns the connect address.
func (s *PushSender) Addr() string { return s.addr }

// Close releases the socket. Safe to call more than once.
func (s *PushSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sock.Close()
}

// PullReceiver is the single ZeroMQ PULL endpoint. It binds once; producers
// connect to it. Recv uses a bounded receive timeout so the owning loop can
// observe shutdown between frames.
type PullReceiver struct {
	addr string

	mu     sync.Mutex
	sock   *zmq.Socket
	closed bool
}

// PullOptions tune the receiver.
type PullOptions struct {
	// RecvTimeout bounds each Recv call. Zero means one second.
	RecvTimeout time.Duration
	// RecvHWM bounds the local receive buffer in frames. Zero means 100000.
	RecvHWM int
}

// NewPullReceiver binds a PULL socket to addr. Bind failure is returned to
// the caller; upstream treats it as fatal at startup.
func NewPullReceiver(addr string, opts PullOptions) (*PullReceiver, error) {
	timeout := opts.RecvTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	hwm := opts.RecvHWM
	if hwm <= 0 {
		hwm = 100000
	}

	sock, err := zmq.NewSocket(zmq.PULL)
	if err != nil {
		return nil, fmt.Errorf("bridge: create pull socket: %w", err)
	}
	if err := sock.SetRcvhwm(hwm); err != nil {
		sock.Close()
		return nil, fmt.Errorf("bridge: set recv hwm: %w", err)
	}
	if err := sock.SetRcvtimeo(timeout); err != nil {
		sock.Close()
		return nil, fmt.Errorf("bridge: set recv timeout: %w", err)
	}
	if err := sock.Bind(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("bridge: bind %s: %w", addr, err)
	}
	return &PullReceiver{addr: addr, sock: sock}, nil
}

// Recv waits at most one receive interval for a frame.
func (r *PullReceiver) Recv() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	frame, err := r.sock.RecvBytes(0)
	if err != nil {
		if isWouldBlock(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("bridge: recv: %w", err)
	}
	return frame, nil
}

// Addr returns the bound address.
func (r *PullReceiver) Addr() string { return r.addr }

// Close unbinds the socket. Safe to call more than once.
func (r *PullReceiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.sock.Close()
}

// isWouldBlock reports EAGAIN, which zmq raises both for a saturated send
// buffer and for an expired receive timeout.
func isWouldBlock(err error) bool {
	return zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN)
}
