package gateway

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/iotgw/channel"
	"github.com/rustyeddy/iotgw/channel/wire"
	"github.com/rustyeddy/iotgw/config"
	"github.com/rustyeddy/iotgw/persistence"
	"github.com/rustyeddy/iotgw/transport"
)

func init() {
	transport.MatchFunc = channel.Match
}

func newTestGateway(t *testing.T) (*Gateway, *transport.Mock, *transport.Mock) {
	t.Helper()

	platformMock := transport.NewMock()
	localMock := transport.NewMock()

	cfg := config.Config{
		Key:             "GW1",
		Password:        "secret",
		PlatformMqttURI: "tcp://platform.example:1883",
		LocalMqttURI:    "tcp://local.example:1883",
		DataDir:         t.TempDir(),
	}

	gw, err := New(cfg, Deps{
		PlatformTransport: platformMock,
		LocalTransport:    localMock,
	}, nil)
	require.NoError(t, err)
	gw.platformPub.SetFlushInterval(5 * time.Millisecond)
	gw.localPub.SetFlushInterval(5 * time.Millisecond)

	require.NoError(t, gw.Connect(context.Background()))
	t.Cleanup(func() { gw.Disconnect(context.Background()) })

	return gw, platformMock, localMock
}

func findPublished(msgs []transport.Message, topic string) (transport.Message, bool) {
	for _, m := range msgs {
		if m.Topic == topic {
			return m, true
		}
	}
	return transport.Message{}, false
}

func TestConnectDialsBothTransportsAndSubscribes(t *testing.T) {
	gw, platformMock, localMock := newTestGateway(t)
	require.True(t, platformMock.IsConnected())
	require.True(t, localMock.IsConnected())

	willTopic, _, ok := localMock.Will()
	require.True(t, ok)
	require.Equal(t, "d2p/lastwill/g/GW1", willTopic)

	require.NotNil(t, gw.fileMgr)
}

func TestRegistrationRequestRoundTrip(t *testing.T) {
	gw, platformMock, localMock := newTestGateway(t)

	// A subdevice request is only forwarded once the gateway itself is
	// registered; otherwise it is postponed.
	require.NoError(t, gw.deviceRepo.Save(context.Background(), persistence.Device{Key: "GW1"}))

	require.NoError(t, localMock.Publish(context.Background(),
		"d2p/register_subdevice_request/d/D1", []byte(`{"device":{"name":"sensor1","key":"D1"},"manifest":{}}`), false, 1))

	require.Eventually(t, func() bool {
		_, ok := findPublished(platformMock.Published, "d2p/register_subdevice_request/g/GW1/d/D1")
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, platformMock.Publish(context.Background(),
		"p2d/register_subdevice_response/g/GW1/d/D1", []byte(`{"result":"OK"}`), false, 1))

	require.Eventually(t, func() bool {
		_, found, err := gw.deviceRepo.Get(context.Background(), "D1")
		return err == nil && found
	}, time.Second, 5*time.Millisecond)
}

func TestActuatorSetForwardsPlatformToDevice(t *testing.T) {
	_, platformMock, localMock := newTestGateway(t)

	require.NoError(t, platformMock.Publish(context.Background(),
		"p2d/actuator_set/g/GW1/d/D1", []byte(`{"reference":"sw","value":true}`), false, 1))

	require.Eventually(t, func() bool {
		_, ok := findPublished(localMock.Published, "p2d/actuator_set/d/D1")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestSensorReadingForwardsDeviceToPlatform(t *testing.T) {
	_, platformMock, localMock := newTestGateway(t)

	require.NoError(t, localMock.Publish(context.Background(),
		"d2p/sensor_reading/d/D1/r/temp", []byte(`{"value":"21.5"}`), false, 1))

	require.Eventually(t, func() bool {
		_, ok := findPublished(platformMock.Published, "d2p/sensor_reading/g/GW1/d/D1/r/temp")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestSubmitReadingPublishesToPlatform(t *testing.T) {
	gw, platformMock, _ := newTestGateway(t)

	require.NoError(t, gw.SubmitReading(context.Background(), "D1", wire.Reading{Reference: "temp", Value: strPtr("22.0")}))

	require.Eventually(t, func() bool {
		return len(platformMock.Published) > 0
	}, time.Second, 5*time.Millisecond)
}

func strPtr(s string) *string { return &s }

func TestStatusRequestAnswersOffline(t *testing.T) {
	_, platformMock, _ := newTestGateway(t)

	require.NoError(t, platformMock.Publish(context.Background(),
		"p2d/subdevice_status_request/g/GW1/d/D1", nil, false, 1))

	require.Eventually(t, func() bool {
		msg, ok := findPublished(platformMock.Published, "d2p/subdevice_status_response/g/GW1/d/D1")
		return ok && len(msg.Payload) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestDeleteDeviceRemovesFromExistingDevices(t *testing.T) {
	gw, platformMock, _ := newTestGateway(t)

	require.NoError(t, gw.existingDevices.AddDeviceKey("D1"))
	require.True(t, gw.existingDevices.Contains("D1"))

	require.NoError(t, platformMock.Publish(context.Background(),
		"p2d/delete_device/g/GW1/d/D1", nil, false, 1))

	require.Eventually(t, func() bool {
		return !gw.existingDevices.Contains("D1")
	}, time.Second, 5*time.Millisecond)

	_, ok := findPublished(platformMock.Published, "d2p/delete_device/g/GW1/d/D1")
	require.True(t, ok)
}

func TestNewRejectsMissingTransports(t *testing.T) {
	cfg := config.Config{
		Key:             "GW1",
		Password:        "secret",
		PlatformMqttURI: "tcp://platform.example:1883",
		LocalMqttURI:    "tcp://local.example:1883",
		DataDir:         filepath.Join(t.TempDir()),
	}
	_, err := New(cfg, Deps{}, nil)
	require.Error(t, err)
}
