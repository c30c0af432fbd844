package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidEndpointRejected(t *testing.T) {
	_, err := NewPushSender("not-a-zmq-endpoint", PushOptions{})
	require.Error(t, err)

	_, err = NewPullReceiver("not-a-zmq-endpoint", PullOptions{})
	require.Error(t, err)
}

func TestSenderClosedSemantics(t *testing.T) {
	sender, err := NewPushSender("tcp://127.0.0.1:39155", PushOptions{SendHWM: 1})
	require.NoError(t, err)

	require.NoError(t, sender.Close())
	require.NoError(t, sender.Close()) // idempotent
	assert.ErrorIs(t, sender.Send([]byte("x")), ErrClosed)
}

func TestUnboundReceiverReportsQueueFull(t *testing.T) {
	// Nothing is bound on this port; once the tiny local buffer fills,
	// sends drop with ErrQueueFull rather than blocking.
	sender, err := NewPushSender("tcp://127.0.0.1:39156", PushOptions{SendHWM: 1})
	require.NoError(t, err)
	defer sender.Close()

	sawQueueFull := false
	for i := 0; i < 100; i++ {
		if err := sender.Send([]byte(`{"type":"trade"}`)); err != nil {
			require.ErrorIs(t, err, ErrQueueFull)
			sawQueueFull = true
		}
	}
	assert.True(t, sawQueueFull)
}

func TestReceiverTimeout(t *testing.T) {
	recv, err := NewPullReceiver("tcp://127.0.0.1:39157", PullOptions{RecvTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer recv.Close()

	start := time.Now()
	_, err = recv.Recv()
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRoundTrip(t *testing.T) {
	addr := "tcp://127.0.0.1:39158"
	recv, err := NewPullReceiver(addr, PullOptions{RecvTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	defer recv.Close()

	sender, err := NewPushSender(addr, PushOptions{})
	require.NoError(t, err)
	defer sender.Close()

	payload := []byte(`{"type":"trade","side":"buy","qty":1,"ts":1}`)
	require.NoError(t, sender.Send(payload))

	for i := 0; i < 20; i++ {
		frame, err := recv.Recv()
		if err == nil {
			assert.Equal(t, payload, frame)
			return
		}
		require.ErrorIs(t, err, ErrTimeout)
	}
	t.Fatal("frame never arrived")
}

func TestClosedReceiver(t *testing.T) {
	recv, err := NewPullReceiver("tcp://127.0.0.1:39159", PullOptions{})
	require.NoError(t, err)

	require.NoError(t, recv.Close())
	require.NoError(t, recv.Close())
	_, err = recv.Recv()
	assert.ErrorIs(t, err, ErrClosed)
}