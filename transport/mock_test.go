package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/iotgw/channel"
)

func init() {
	MatchFunc = channel.Match
}

func TestMockPublishSubscribe(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Connect(context.Background()))

	var got Message
	_, err := m.Subscribe(context.Background(), "d2p/sensor_reading/g/+/d/+/r/+", 1, func(msg Message) {
		got = msg
	})
	require.NoError(t, err)

	err = m.Publish(context.Background(), "d2p/sensor_reading/g/GW1/d/D1/r/temp", []byte(`{"value":"21"}`), false, 1)
	require.NoError(t, err)
	require.Equal(t, "d2p/sensor_reading/g/GW1/d/D1/r/temp", got.Topic)
	require.Len(t, m.Published, 1)
}

func TestMockUnsubscribeStopsDelivery(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.Connect(context.Background()))

	count := 0
	unsub, err := m.Subscribe(context.Background(), "topic/a", 0, func(Message) { count++ })
	require.NoError(t, err)

	require.NoError(t, m.Publish(context.Background(), "topic/a", nil, false, 0))
	require.NoError(t, unsub())
	require.NoError(t, m.Publish(context.Background(), "topic/a", nil, false, 0))

	require.Equal(t, 1, count)
}

func TestMockSetWill(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.SetWill("d2p/lastwill/GW1", []byte("GW1"), false, 1))

	topic, payload, ok := m.Will()
	require.True(t, ok)
	require.Equal(t, "d2p/lastwill/GW1", topic)
	require.Equal(t, []byte("GW1"), payload)
}

func TestMockSimulateDisconnect(t *testing.T) {
	m := NewMock()
	var lostErr error
	m.SetConnectionLostHandler(func(err error) { lostErr = err })

	require.NoError(t, m.Connect(context.Background()))
	require.True(t, m.IsConnected())

	m.SimulateDisconnect(errTest)
	require.False(t, m.IsConnected())
	require.Equal(t, errTest, lostErr)
}

var errTest = testError("broker closed")

type testError string

func (e testError) Error() string { return string(e) }
