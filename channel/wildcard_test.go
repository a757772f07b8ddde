package channel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchLiteral(t *testing.T) {
	require.True(t, Match("d2p/status/g/GW1", "d2p/status/g/GW1"))
	require.False(t, Match("d2p/status/g/GW1", "d2p/status/g/GW2"))
}

func TestMatchSingleLevelWildcard(t *testing.T) {
	require.True(t, Match("p2d/actuator_set/g/GW1/d/+/r/+", "p2d/actuator_set/g/GW1/d/D1/r/temp"))
	require.False(t, Match("p2d/actuator_set/g/GW1/d/+/r/+", "p2d/actuator_set/g/GW1/d/D1/d2/r/temp"))
	require.False(t, Match("p2d/actuator_set/g/GW1/d/+", "p2d/actuator_set/g/GW1/d/"))
}

func TestMatchMultiLevelWildcard(t *testing.T) {
	require.True(t, Match("p2d/delete_device/g/GW1/#", "p2d/delete_device/g/GW1/d/D1"))
	require.True(t, Match("p2d/delete_device/g/GW1/#", "p2d/delete_device/g/GW1"))
	require.True(t, Match("pong/#", "pong/anything/deep/here"))
}

func TestMatchHashMustBeFinal(t *testing.T) {
	// '#' only valid as the last pattern token; a pattern with '#'
	// mid-path is rejected by Match and never matches any channel.
	require.False(t, Match("d2p/#/status", "d2p/foo/status"))
}

func TestMatchShorterChannelThanPattern(t *testing.T) {
	require.False(t, Match("d2p/status/g/GW1/d/+", "d2p/status/g/GW1"))
}

func TestMatchLongerChannelThanPattern(t *testing.T) {
	require.False(t, Match("d2p/status/g/GW1", "d2p/status/g/GW1/d/D1"))
}
