package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExistingDevicesAddContainsRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.json")
	d, err := NewExistingDevices(path, nil)
	require.NoError(t, err)

	require.False(t, d.Contains("D1"))
	require.NoError(t, d.AddDeviceKey("D1"))
	require.True(t, d.Contains("D1"))

	require.NoError(t, d.AddDeviceKey("D1")) // idempotent
	require.Equal(t, []string{"D1"}, d.DeviceKeys())

	require.NoError(t, d.RemoveDeviceKey("D1"))
	require.False(t, d.Contains("D1"))
}

func TestExistingDevicesPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.json")
	d1, err := NewExistingDevices(path, nil)
	require.NoError(t, err)
	require.NoError(t, d1.AddDeviceKey("D1"))
	require.NoError(t, d1.AddDeviceKey("D2"))

	d2, err := NewExistingDevices(path, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"D1", "D2"}, d2.DeviceKeys())
}
