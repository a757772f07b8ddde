package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/iotgw/persistence"
	"github.com/rustyeddy/iotgw/transport"
)

func newTestQueue(t *testing.T) persistence.OutboundQueue {
	t.Helper()
	q, err := persistence.NewCircularFileQueue(filepath.Join(t.TempDir(), "q"), persistence.FIFO, 0, nil)
	require.NoError(t, err)
	return q
}

func TestPublisherEnqueueFlushesOnceConnected(t *testing.T) {
	q := newTestQueue(t)
	mock := transport.NewMock()
	p := New("platform", mock, q, nil)
	p.SetFlushInterval(20 * time.Millisecond)

	require.NoError(t, p.Enqueue(OutboundMessage{Topic: "d2p/sensor_reading/g/GW1/d/D1/r/temp", Payload: []byte("21"), QoS: 1}))
	require.True(t, q.Len() > 0)

	sched, err := gocron.NewScheduler()
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background(), sched))
	sched.Start()
	defer sched.Shutdown()
	defer p.Stop()

	require.NoError(t, mock.Connect(context.Background()))

	require.Eventually(t, func() bool {
		return len(mock.Published) == 1
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return q.Empty()
	}, time.Second, 10*time.Millisecond)
}

func TestPublisherDoesNotFlushWhileDisconnected(t *testing.T) {
	q := newTestQueue(t)
	mock := transport.NewMock()
	p := New("device", mock, q, nil)
	p.SetFlushInterval(20 * time.Millisecond)

	require.NoError(t, p.Enqueue(OutboundMessage{Topic: "p2d/actuator_set", Payload: []byte("on")}))

	sched, err := gocron.NewScheduler()
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background(), sched))
	sched.Start()
	defer sched.Shutdown()
	defer p.Stop()

	time.Sleep(100 * time.Millisecond)
	require.False(t, q.Empty())
	require.Empty(t, mock.Published)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	msg := OutboundMessage{Topic: "t", Payload: []byte("x"), QoS: 1}
	raw, err := encodeOutbound(msg)
	require.NoError(t, err)
	require.Equal(t, "t\nx", string(raw))

	got, err := decodeOutbound(raw)
	require.NoError(t, err)
	require.Equal(t, msg, got)
}

func TestEnvelopePayloadMayContainNewlines(t *testing.T) {
	msg := OutboundMessage{Topic: "t", Payload: []byte("line1\nline2"), QoS: 1}
	raw, err := encodeOutbound(msg)
	require.NoError(t, err)

	got, err := decodeOutbound(raw)
	require.NoError(t, err)
	require.Equal(t, msg, got)
}
