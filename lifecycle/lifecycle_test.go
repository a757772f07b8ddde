package lifecycle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/iotgw/channel/wire"
	"github.com/rustyeddy/iotgw/persistence"
	"github.com/rustyeddy/iotgw/pipeline"
	"github.com/rustyeddy/iotgw/transport"
)

func newTestPublisher(t *testing.T) (*pipeline.Publisher, *transport.Mock) {
	t.Helper()
	q, err := persistence.NewCircularFileQueue(filepath.Join(t.TempDir(), "q"), persistence.FIFO, 0, nil)
	require.NoError(t, err)
	mock := transport.NewMock()
	require.NoError(t, mock.Connect(context.Background()))
	p := pipeline.New("platform", mock, q, nil)
	p.SetFlushInterval(10 * time.Millisecond)
	return p, mock
}

func startScheduler(t *testing.T) gocron.Scheduler {
	t.Helper()
	sched, err := gocron.NewScheduler()
	require.NoError(t, err)
	sched.Start()
	t.Cleanup(func() { _ = sched.Shutdown() })
	return sched
}

func TestRetryTableResendsUntilResolved(t *testing.T) {
	rt := NewRetryTable(3, 20*time.Millisecond, nil)
	sched := startScheduler(t)
	require.NoError(t, rt.Start(context.Background(), sched))
	defer rt.Stop()

	attempts := 0
	rt.Add(context.Background(), "k1", func(ctx context.Context) error {
		attempts++
		return nil
	}, func() {
		t.Fatal("should not fail before resolved")
	})

	require.Eventually(t, func() bool { return attempts >= 2 }, time.Second, 5*time.Millisecond)
	require.True(t, rt.Resolve("k1"))
	require.False(t, rt.Pending("k1"))
}

func TestRetryTableFailsAfterBudgetExhausted(t *testing.T) {
	rt := NewRetryTable(2, 10*time.Millisecond, nil)
	sched := startScheduler(t)
	require.NoError(t, rt.Start(context.Background(), sched))
	defer rt.Stop()

	failed := make(chan struct{})
	rt.Add(context.Background(), "k1", func(ctx context.Context) error { return nil }, func() {
		close(failed)
	})

	select {
	case <-failed:
	case <-time.After(time.Second):
		t.Fatal("expected failure callback after retry budget exhausted")
	}
	require.False(t, rt.Pending("k1"))
}

func TestRegistrationServicePostponesUntilGatewayRegistered(t *testing.T) {
	repo, err := persistence.NewFileDeviceRepo(filepath.Join(t.TempDir(), "devices.json"))
	require.NoError(t, err)
	out, mock := newTestPublisher(t)
	deviceOut, deviceMock := newTestPublisher(t)
	sched := startScheduler(t)
	require.NoError(t, out.Start(context.Background(), sched))
	defer out.Stop()
	require.NoError(t, deviceOut.Start(context.Background(), sched))
	defer deviceOut.Stop()

	rt := NewRetryTable(3, 50*time.Millisecond, nil)
	require.NoError(t, rt.Start(context.Background(), sched))
	defer rt.Stop()

	svc := NewRegistrationService("GW1", repo, out, deviceOut, rt, nil)

	var registered []string
	svc.SetOnRegistered(func(deviceKey string, isGateway bool) {
		registered = append(registered, deviceKey)
	})

	ctx := context.Background()
	require.NoError(t, svc.RegisterDevice(ctx, "D1", "sensor-1", wire.Manifest{}))
	require.Empty(t, mock.Published, "device registration should be postponed before the gateway registers")

	require.NoError(t, svc.RegisterDevice(ctx, "GW1", "gateway", wire.Manifest{}))
	require.NoError(t, svc.HandleRegistrationResponse(ctx, transport.Message{
		Topic:   "p2d/register_subdevice_response/g/GW1",
		Payload: []byte(`{"result":"OK"}`),
	}))

	require.Eventually(t, func() bool { return len(mock.Published) >= 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.HandleRegistrationResponse(ctx, transport.Message{
		Topic:   "p2d/register_subdevice_response/g/GW1/d/D1",
		Payload: []byte(`{"result":"OK"}`),
	}))

	require.Contains(t, registered, "GW1")
	require.Contains(t, registered, "D1")

	d, found, err := repo.Get(ctx, "D1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "sensor-1", d.Name)

	require.Eventually(t, func() bool { return len(deviceMock.Published) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "p2d/register_subdevice_response/d/D1", deviceMock.Published[0].Topic)
}

func TestDeletionServiceDeletesAndAcks(t *testing.T) {
	repo, err := persistence.NewFileDeviceRepo(filepath.Join(t.TempDir(), "devices.json"))
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), persistence.Device{Key: "D1", Name: "sensor-1"}))

	out, mock := newTestPublisher(t)
	sched := startScheduler(t)
	require.NoError(t, out.Start(context.Background(), sched))
	defer out.Stop()

	svc := NewDeletionService("GW1", repo, out, nil)
	var deleted string
	svc.SetOnDeleted(func(deviceKey string) { deleted = deviceKey })

	require.NoError(t, svc.HandleDeleteDevice(context.Background(), transport.Message{
		Topic: "p2d/delete_device/g/GW1/d/D1",
	}))

	require.Equal(t, "D1", deleted)
	_, found, err := repo.Get(context.Background(), "D1")
	require.NoError(t, err)
	require.False(t, found)

	require.Eventually(t, func() bool { return len(mock.Published) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "d2p/delete_device/g/GW1/d/D1", mock.Published[0].Topic)
}

func TestDeleteDevicesOtherThanKeepsGateway(t *testing.T) {
	repo, err := persistence.NewFileDeviceRepo(filepath.Join(t.TempDir(), "devices.json"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, persistence.Device{Key: "GW1"}))
	require.NoError(t, repo.Save(ctx, persistence.Device{Key: "D1"}))
	require.NoError(t, repo.Save(ctx, persistence.Device{Key: "D2"}))

	out, _ := newTestPublisher(t)
	svc := NewDeletionService("GW1", repo, out, nil)

	require.NoError(t, svc.DeleteDevicesOtherThan(ctx, "GW1", []string{"D1"}))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(all))
	for _, d := range all {
		keys = append(keys, d.Key)
	}
	require.ElementsMatch(t, []string{"GW1", "D1"}, keys)
}

func TestReregistrationServiceClearsAndBroadcasts(t *testing.T) {
	repo, err := persistence.NewFileDeviceRepo(filepath.Join(t.TempDir(), "devices.json"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, persistence.Device{Key: "D1"}))

	out, mock := newTestPublisher(t)
	sched := startScheduler(t)
	require.NoError(t, out.Start(ctx, sched))
	defer out.Stop()

	deviceMock := transport.NewMock()
	require.NoError(t, deviceMock.Connect(ctx))

	svc := NewReregistrationService("GW1", repo, out, nil)
	require.NoError(t, svc.HandleReregistrationRequest(ctx, deviceMock))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Empty(t, all)

	require.Eventually(t, func() bool { return len(mock.Published) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "d2p/reregister_device/g/GW1", mock.Published[0].Topic)

	require.Len(t, deviceMock.Published, 1)
	require.Equal(t, reregisterDeviceBroadcast, deviceMock.Published[0].Topic)
}

func TestStatusServiceTracksAndRespondsToRequests(t *testing.T) {
	out, mock := newTestPublisher(t)
	sched := startScheduler(t)
	require.NoError(t, out.Start(context.Background(), sched))
	defer out.Stop()

	svc := NewStatusService("GW1", out, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetState(ctx, "D1", wire.StateConnected))
	require.Eventually(t, func() bool { return len(mock.Published) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "d2p/subdevice_status_update/g/GW1/d/D1", mock.Published[0].Topic)

	require.NoError(t, svc.SetState(ctx, "D1", wire.StateConnected))
	require.Len(t, mock.Published, 1, "no duplicate publish when state is unchanged")

	require.NoError(t, svc.HandleStatusRequest(ctx, "D2"))
	require.Eventually(t, func() bool { return len(mock.Published) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "d2p/subdevice_status_response/g/GW1/d/D2", mock.Published[1].Topic)

	require.NoError(t, svc.HandleLastWill(ctx, transport.Message{Payload: []byte(`["D1"]`)}))
	st, ok := svc.State("D1")
	require.True(t, ok)
	require.Equal(t, wire.StateOffline, st)
}
