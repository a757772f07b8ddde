package channel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoutePlatformToDevice(t *testing.T) {
	got := RoutePlatformToDevice("p2d/actuator_set/g/GW1/d/D1/r/temp", "GW1")
	require.Equal(t, "p2d/actuator_set/d/D1/r/temp", got)
}

func TestRoutePlatformToDeviceMissingSegment(t *testing.T) {
	require.Equal(t, "", RoutePlatformToDevice("p2d/actuator_set/d/D1", "GW1"))
}

func TestRouteDeviceToPlatform(t *testing.T) {
	got := RouteDeviceToPlatform("p2d/actuator_set/d/D1/r/temp", "GW1")
	require.Equal(t, "p2d/actuator_set/g/GW1/d/D1/r/temp", got)
}

func TestRouteDeviceToPlatformNoDevicePrefix(t *testing.T) {
	require.Equal(t, "", RouteDeviceToPlatform("p2d/reregister_device", "GW1"))
}

// routeDeviceToPlatform(routePlatformToDevice(ch, gw), gw) must equal ch.
func TestRouteRoundTrip(t *testing.T) {
	ch := "p2d/actuator_set/g/GW1/d/D1/r/temp"
	down := RoutePlatformToDevice(ch, "GW1")
	require.NotEmpty(t, down)
	back := RouteDeviceToPlatform(down, "GW1")
	require.Equal(t, ch, back)
}

func TestValidate(t *testing.T) {
	require.True(t, Validate("d2p/status/g/GW1"))
	require.False(t, Validate(""))
	require.False(t, Validate("/d2p/status"))
	require.False(t, Validate("status"))
	require.False(t, Validate("d2p//status"))
}
