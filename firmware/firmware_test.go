package firmware

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/iotgw/persistence"
	"github.com/rustyeddy/iotgw/pipeline"
	"github.com/rustyeddy/iotgw/transport"
)

type stubInstaller struct {
	called bool
	path   string
	err    error
}

func (s *stubInstaller) Install(ctx context.Context, path string) error {
	s.called = true
	s.path = path
	return s.err
}

func newTestPublisher(t *testing.T, name string) (*pipeline.Publisher, *transport.Mock) {
	t.Helper()
	q, err := persistence.NewCircularFileQueue(filepath.Join(t.TempDir(), name), persistence.FIFO, 0, nil)
	require.NoError(t, err)
	mock := transport.NewMock()
	require.NoError(t, mock.Connect(context.Background()))
	p := pipeline.New(name, mock, q, nil)
	p.SetFlushInterval(10 * time.Millisecond)

	sched, err := gocron.NewScheduler()
	require.NoError(t, err)
	sched.Start()
	t.Cleanup(func() { _ = sched.Shutdown() })
	require.NoError(t, p.Start(context.Background(), sched))
	t.Cleanup(p.Stop)
	return p, mock
}

func TestHandleInstallGatewayTargetInvokesInstaller(t *testing.T) {
	platformOut, platformMock := newTestPublisher(t, "platform")
	deviceOut, _ := newTestPublisher(t, "device")

	installer := &stubInstaller{}
	versionFile := filepath.Join(t.TempDir(), "version")
	svc := New("GW1", t.TempDir(), versionFile, "2.0.0", installer, platformOut, deviceOut, nil)

	msg := transport.Message{
		Topic:   "p2d/firmware_update_install/g/GW1",
		Payload: []byte(`{"deviceKeys":["GW1"],"fileName":"fw.bin"}`),
	}
	require.NoError(t, svc.HandleInstall(context.Background(), msg))

	require.Eventually(t, func() bool { return installer.called }, time.Second, 5*time.Millisecond)
	require.Contains(t, installer.path, "fw.bin")
	require.FileExists(t, versionFile)

	require.Eventually(t, func() bool { return len(platformMock.Published) >= 1 }, time.Second, 5*time.Millisecond)
	require.Contains(t, string(platformMock.Published[0].Payload), "INSTALLATION")
}

func TestHandleInstallForwardsToOtherDevices(t *testing.T) {
	platformOut, _ := newTestPublisher(t, "platform")
	deviceOut, deviceMock := newTestPublisher(t, "device")

	svc := New("GW1", t.TempDir(), filepath.Join(t.TempDir(), "version"), "2.0.0", nil, platformOut, deviceOut, nil)

	msg := transport.Message{
		Topic:   "p2d/firmware_update_install/g/GW1",
		Payload: []byte(`{"deviceKeys":["D1"],"fileName":"fw.bin"}`),
	}
	require.NoError(t, svc.HandleInstall(context.Background(), msg))

	require.Eventually(t, func() bool { return len(deviceMock.Published) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "p2d/firmware_update_install/d/D1", deviceMock.Published[0].Topic)
}

func TestHandleAbortGatewayIsNoop(t *testing.T) {
	platformOut, _ := newTestPublisher(t, "platform")
	deviceOut, deviceMock := newTestPublisher(t, "device")

	svc := New("GW1", t.TempDir(), filepath.Join(t.TempDir(), "version"), "2.0.0", nil, platformOut, deviceOut, nil)

	msg := transport.Message{
		Topic:   "p2d/firmware_update_abort/g/GW1",
		Payload: []byte(`{"deviceKeys":["GW1","D1"]}`),
	}
	require.NoError(t, svc.HandleAbort(context.Background(), msg))

	require.Eventually(t, func() bool { return len(deviceMock.Published) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "p2d/firmware_update_abort/d/D1", deviceMock.Published[0].Topic)
}

func TestReportFirmwareUpdateResultCompletedWhenVersionAdvanced(t *testing.T) {
	platformOut, platformMock := newTestPublisher(t, "platform")
	deviceOut, _ := newTestPublisher(t, "device")

	versionFile := filepath.Join(t.TempDir(), "version")
	svc := New("GW1", t.TempDir(), versionFile, "2.0.0", &stubInstaller{}, platformOut, deviceOut, nil)

	require.NoError(t, os.WriteFile(versionFile, []byte("1.0.0"), 0o644))
	require.NoError(t, svc.ReportFirmwareUpdateResult(context.Background(), "2.0.0"))

	require.Eventually(t, func() bool { return len(platformMock.Published) == 1 }, time.Second, 5*time.Millisecond)
	require.Contains(t, string(platformMock.Published[0].Payload), "COMPLETED")
	require.NoFileExists(t, versionFile)
}

func TestReportFirmwareUpdateResultFailedWhenVersionUnchanged(t *testing.T) {
	platformOut, platformMock := newTestPublisher(t, "platform")
	deviceOut, _ := newTestPublisher(t, "device")

	versionFile := filepath.Join(t.TempDir(), "version")
	svc := New("GW1", t.TempDir(), versionFile, "2.0.0", &stubInstaller{}, platformOut, deviceOut, nil)

	require.NoError(t, os.WriteFile(versionFile, []byte("2.0.0"), 0o644))
	require.NoError(t, svc.ReportFirmwareUpdateResult(context.Background(), "2.0.0"))

	require.Eventually(t, func() bool { return len(platformMock.Published) == 1 }, time.Second, 5*time.Millisecond)
	require.Contains(t, string(platformMock.Published[0].Payload), "ERROR")
}

func TestReportFirmwareUpdateResultNoopWhenNoSentinel(t *testing.T) {
	platformOut, platformMock := newTestPublisher(t, "platform")
	deviceOut, _ := newTestPublisher(t, "device")

	svc := New("GW1", t.TempDir(), filepath.Join(t.TempDir(), "version"), "2.0.0", &stubInstaller{}, platformOut, deviceOut, nil)
	require.NoError(t, svc.ReportFirmwareUpdateResult(context.Background(), "2.0.0"))
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, platformMock.Published)
}

func TestRelayDeviceStatusForwardsChannelUnchanged(t *testing.T) {
	platformOut, platformMock := newTestPublisher(t, "platform")
	deviceOut, _ := newTestPublisher(t, "device")

	svc := New("GW1", t.TempDir(), filepath.Join(t.TempDir(), "version"), "2.0.0", nil, platformOut, deviceOut, nil)

	require.NoError(t, svc.RelayDeviceStatus(context.Background(), transport.Message{
		Topic:   "d2p/firmware_update_status/d/D1",
		Payload: []byte(`{"status":"COMPLETED"}`),
	}))

	require.Eventually(t, func() bool { return len(platformMock.Published) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "d2p/firmware_update_status/d/D1", platformMock.Published[0].Topic)
}

func TestInstallFailureReportsErrorStatus(t *testing.T) {
	platformOut, platformMock := newTestPublisher(t, "platform")
	deviceOut, _ := newTestPublisher(t, "device")

	installer := &stubInstaller{err: errors.New("flash failed")}
	svc := New("GW1", t.TempDir(), filepath.Join(t.TempDir(), "version"), "2.0.0", installer, platformOut, deviceOut, nil)

	require.NoError(t, svc.HandleInstall(context.Background(), transport.Message{
		Topic:   "p2d/firmware_update_install/g/GW1",
		Payload: []byte(`{"deviceKeys":["GW1"],"fileName":"fw.bin"}`),
	}))

	require.Eventually(t, func() bool {
		for _, msg := range platformMock.Published {
			if string(msg.Payload) != "" && contains(string(msg.Payload), "ERROR") {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
