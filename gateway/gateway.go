// Package gateway wires every subsystem (persistence, transports,
// routers, translators, lifecycle/firmware/filetransfer services) into
// one running process, mirroring the composition root OttO plays for
// its own station/server/messenger trio.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/go-co-op/gocron/v2"

	"github.com/rustyeddy/iotgw/channel"
	"github.com/rustyeddy/iotgw/channel/wire"
	"github.com/rustyeddy/iotgw/config"
	"github.com/rustyeddy/iotgw/filetransfer"
	"github.com/rustyeddy/iotgw/firmware"
	"github.com/rustyeddy/iotgw/lifecycle"
	"github.com/rustyeddy/iotgw/metrics"
	"github.com/rustyeddy/iotgw/persistence"
	"github.com/rustyeddy/iotgw/pipeline"
	"github.com/rustyeddy/iotgw/protocol"
	"github.com/rustyeddy/iotgw/router"
	"github.com/rustyeddy/iotgw/transport"
)

// Gateway wires every subsystem into one running process.
//
// Grounded on otto.go's OttO struct (Init/Start/Stop lifecycle,
// embedding every subsystem) generalized from the station/server/
// messenger trio to this domain's persistence/transport/router/
// pipeline/service set.
type Gateway struct {
	cfg config.Config
	log *slog.Logger

	sched gocron.Scheduler

	platformTransport transport.Transport
	localTransport    transport.Transport

	platformRouter *router.Router
	localRouter    *router.Router

	platformPub *pipeline.Publisher
	localPub    *pipeline.Publisher

	deviceRepo      persistence.DeviceRepo
	fileRepo        persistence.FileRepo
	existingDevices *persistence.ExistingDevices

	dataTr *protocol.DataTranslator
	fileTr *protocol.FileTranslator

	retry           *lifecycle.RetryTable
	registrationSvc *lifecycle.RegistrationService
	deletionSvc     *lifecycle.DeletionService
	reregSvc        *lifecycle.ReregistrationService
	statusSvc       *lifecycle.StatusService

	fileMgr *filetransfer.Manager
	fwSvc   *firmware.Service

	eventSink func(topic string, payload []byte)

	mu      sync.Mutex
	running bool
}

// Deps bundles the pieces of a running Gateway that are awkward to
// construct purely from Config: the two broker transports (so tests can
// substitute transport.Mock), the firmware installer, and an optional
// EventSink notified of every routed channel/payload pair, for a debug
// websocket stream or similar observability hook.
type Deps struct {
	PlatformTransport transport.Transport
	LocalTransport    transport.Transport
	Installer         firmware.Installer
	Scheduler         gocron.Scheduler
	EventSink         func(topic string, payload []byte)
}

// New wires persistence, transports (callbacks installed), routers,
// translators, and services together, stopping short of connecting any
// transport. Connect starts the publishing pipelines and dials both
// brokers.
func New(cfg config.Config, deps Deps, log *slog.Logger) (*Gateway, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "gateway", "key", cfg.Key)

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	downloadDir := cfg.DownloadDir
	if downloadDir == "" {
		downloadDir = filepath.Join(dataDir, "files")
	}

	deviceRepo, err := persistence.NewFileDeviceRepo(filepath.Join(dataDir, "devices.json"))
	if err != nil {
		return nil, fmt.Errorf("gateway: opening device repository: %w", err)
	}
	fileRepo, err := persistence.NewFileFileRepo(filepath.Join(dataDir, "files.json"))
	if err != nil {
		return nil, fmt.Errorf("gateway: opening file repository: %w", err)
	}
	existingDevices, err := persistence.NewExistingDevices(filepath.Join(dataDir, "existingDevices.json"), log)
	if err != nil {
		return nil, fmt.Errorf("gateway: opening existing-devices file: %w", err)
	}

	platformQueue, err := persistence.NewCircularFileQueue(filepath.Join(dataDir, "outbound-platform"), persistence.FIFO, 0, log)
	if err != nil {
		return nil, fmt.Errorf("gateway: opening platform outbound queue: %w", err)
	}
	localQueue, err := persistence.NewCircularFileQueue(filepath.Join(dataDir, "outbound-local"), persistence.FIFO, 0, log)
	if err != nil {
		return nil, fmt.Errorf("gateway: opening local outbound queue: %w", err)
	}

	platformTransport := deps.PlatformTransport
	localTransport := deps.LocalTransport
	if platformTransport == nil || localTransport == nil {
		return nil, fmt.Errorf("gateway: both PlatformTransport and LocalTransport are required")
	}

	sched := deps.Scheduler
	if sched == nil {
		sched, err = gocron.NewScheduler()
		if err != nil {
			return nil, fmt.Errorf("gateway: creating scheduler: %w", err)
		}
	}

	platformPub := pipeline.New("platform", platformTransport, platformQueue, log)
	localPub := pipeline.New("local", localTransport, localQueue, log)

	platformRouter := router.New(0, log)
	localRouter := router.New(0, log)

	dataTr := &protocol.DataTranslator{GatewayKey: cfg.Key}
	fileTr := &protocol.FileTranslator{GatewayKey: cfg.Key}

	retry := lifecycle.NewRetryTable(lifecycle.DefaultRetryCount, lifecycle.DefaultRetryTimeout, log)

	registrationSvc := lifecycle.NewRegistrationService(cfg.Key, deviceRepo, platformPub, localPub, retry, log)
	deletionSvc := lifecycle.NewDeletionService(cfg.Key, deviceRepo, platformPub, log)
	reregSvc := lifecycle.NewReregistrationService(cfg.Key, deviceRepo, platformPub, log)
	statusSvc := lifecycle.NewStatusService(cfg.Key, platformPub, log)

	registrationSvc.SetOnRegistered(func(deviceKey string, isGateway bool) {
		if err := existingDevices.AddDeviceKey(deviceKey); err != nil {
			log.Error("failed to record registered device", "device", deviceKey, "error", err)
		}
		metrics.DevicesRegistered.Inc()
	})
	deletionSvc.SetOnDeleted(func(deviceKey string) {
		if err := existingDevices.RemoveDeviceKey(deviceKey); err != nil {
			log.Error("failed to forget deleted device", "device", deviceKey, "error", err)
		}
		metrics.DevicesRegistered.Dec()
	})

	fileMgr := filetransfer.New(cfg.Key, downloadDir, fileRepo, platformPub, log)
	fileMgr.SetDownloader(filetransfer.NewURLDownloader(downloadDir, http.DefaultClient))
	fwSvc := firmware.New(cfg.Key, downloadDir, cfg.FirmwareVersionFile, cfg.CurrentFirmwareVersion, deps.Installer, platformPub, localPub, log)

	g := &Gateway{
		cfg:               cfg,
		log:               log,
		sched:             sched,
		platformTransport: platformTransport,
		localTransport:    localTransport,
		platformRouter:    platformRouter,
		localRouter:       localRouter,
		platformPub:       platformPub,
		localPub:          localPub,
		deviceRepo:        deviceRepo,
		fileRepo:          fileRepo,
		existingDevices:   existingDevices,
		dataTr:            dataTr,
		fileTr:            fileTr,
		retry:             retry,
		registrationSvc:   registrationSvc,
		deletionSvc:       deletionSvc,
		reregSvc:          reregSvc,
		statusSvc:         statusSvc,
		fileMgr:           fileMgr,
		fwSvc:             fwSvc,
		eventSink:         deps.EventSink,
	}

	g.registerHandlers()
	g.installCallbacks()

	return g, nil
}

func (g *Gateway) installCallbacks() {
	g.platformTransport.SetConnectionLostHandler(func(err error) {
		g.log.Warn("platform transport connection lost", "error", err)
	})
	g.localTransport.SetConnectionLostHandler(func(err error) {
		g.log.Warn("local transport connection lost", "error", err)
	})
}

// registerHandlers wires every subscription pattern to its handler.
// Platform-side patterns are dispatched through platformRouter; local
// (device-facing) patterns through localRouter.
func (g *Gateway) registerHandlers() {
	p2d := string(channel.PlatformToDevice)
	d2p := string(channel.DeviceToPlatform)

	g.platformRouter.Handle(p2d+"/"+channel.TypeRegisterSubdeviceResp+"/#", g.registrationSvc.HandleRegistrationResponse)
	g.platformRouter.Handle(p2d+"/"+channel.TypeDeleteDevice+"/#", g.deletionSvc.HandleDeleteDevice)
	g.platformRouter.Handle(p2d+"/"+channel.TypeReregisterDevice+"/#", func(ctx context.Context, msg transport.Message) error {
		return g.reregSvc.HandleReregistrationRequest(ctx, g.localTransport)
	})
	g.platformRouter.Handle(p2d+"/"+channel.TypeSubdeviceStatusRequest+"/#", func(ctx context.Context, msg transport.Message) error {
		deviceKey := channel.ExtractDeviceKey(msg.Topic)
		return g.statusSvc.HandleStatusRequest(ctx, deviceKey)
	})
	g.platformRouter.Handle(p2d+"/"+channel.TypeFirmwareUpdateInstall+"/#", func(ctx context.Context, msg transport.Message) error {
		err := g.fwSvc.HandleInstall(ctx, msg)
		if err != nil {
			metrics.FirmwareInstallsTotal.WithLabelValues("error").Inc()
		} else {
			metrics.FirmwareInstallsTotal.WithLabelValues("accepted").Inc()
		}
		return err
	})
	g.platformRouter.Handle(p2d+"/"+channel.TypeFirmwareUpdateAbort+"/#", g.fwSvc.HandleAbort)
	g.platformRouter.Handle(p2d+"/"+channel.TypeFile+"/#", g.handleFileMessage)

	for _, msgType := range []string{channel.TypeActuatorSet, channel.TypeActuatorGet, channel.TypeConfigurationSet, channel.TypeConfigurationGet} {
		g.platformRouter.Handle(p2d+"/"+msgType+"/#", g.forwardToDevice)
	}

	g.localRouter.Handle(d2p+"/"+channel.TypeRegisterSubdeviceReq+"/#", func(ctx context.Context, msg transport.Message) error {
		deviceKey := channel.ExtractDeviceKey(msg.Topic)
		req, err := wire.DecodeRegistrationRequest(msg.Payload)
		if err != nil {
			g.log.Warn("dropping malformed registration request", "error", err)
			return nil
		}
		return g.registrationSvc.HandleRegistrationRequest(ctx, deviceKey, req)
	})
	for _, msgType := range []string{channel.TypeSensorReading, channel.TypeEvents, channel.TypeActuatorStatus, channel.TypeConfigurationGet} {
		g.localRouter.Handle(d2p+"/"+msgType+"/#", g.forwardToPlatform)
	}
	g.localRouter.Handle(d2p+"/"+channel.TypeSubdeviceStatusUpdate+"/#", func(ctx context.Context, msg transport.Message) error {
		deviceKey := channel.ExtractDeviceKey(msg.Topic)
		state, err := wire.DecodeStatus(msg.Payload)
		if err != nil {
			g.log.Warn("dropping malformed status update", "device", deviceKey, "error", err)
			return nil
		}
		return g.statusSvc.SetState(ctx, deviceKey, state)
	})
	g.localRouter.Handle(d2p+"/"+channel.TypeFirmwareUpdateStatus+"/#", g.fwSvc.RelayDeviceStatus)
	g.localRouter.Handle(d2p+"/"+channel.TypeFirmwareVersion+"/#", g.fwSvc.RelayDeviceStatus)
	g.localRouter.Handle(channel.TypeLastWill+"/#", g.statusSvc.HandleLastWill)
	g.localRouter.Handle(channel.TypeLastWill, g.statusSvc.HandleLastWill)
}

// forwardToDevice rewrites a platform-addressed command down to the
// device-side channel and republishes it on the local broker unchanged.
func (g *Gateway) forwardToDevice(ctx context.Context, msg transport.Message) error {
	topic := channel.RoutePlatformToDevice(msg.Topic, g.cfg.Key)
	if topic == "" {
		g.log.Warn("cannot route platform channel to device, dropping", "topic", msg.Topic)
		return nil
	}
	g.emitEvent(topic, msg.Payload)
	return g.localPub.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: msg.Payload, QoS: 1})
}

// emitEvent notifies an optional observability sink of a routed
// channel/payload pair. A nil sink (the common case outside of a
// debug-stream deployment) makes this a no-op.
func (g *Gateway) emitEvent(topic string, payload []byte) {
	if g.eventSink != nil {
		g.eventSink(topic, payload)
	}
}

// forwardToPlatform rewrites a device-originated message up to the
// platform-addressed channel and republishes it unchanged.
func (g *Gateway) forwardToPlatform(ctx context.Context, msg transport.Message) error {
	topic := channel.RouteDeviceToPlatform(msg.Topic, g.cfg.Key)
	if topic == "" {
		g.log.Warn("cannot route device channel to platform, dropping", "topic", msg.Topic)
		return nil
	}
	g.emitEvent(topic, msg.Payload)
	return g.platformPub.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: msg.Payload, QoS: 1})
}

func (g *Gateway) handleFileMessage(ctx context.Context, msg transport.Message) error {
	deviceKey := channel.ExtractDeviceKey(msg.Topic)
	switch g.fileTr.Kind(msg) {
	case protocol.FileKindInitiate:
		req, err := g.fileTr.ParseUploadInitiate(msg)
		if err != nil {
			g.log.Warn("dropping malformed upload initiate", "error", err)
			return nil
		}
		return g.fileMgr.HandleUploadInitiate(ctx, deviceKey, req)
	case protocol.FileKindChunk:
		return g.fileMgr.HandleChunk(ctx, deviceKey, msg.Payload)
	case protocol.FileKindAbort:
		abort, err := g.fileTr.ParseUploadAbort(msg)
		if err != nil {
			g.log.Warn("dropping malformed upload abort", "error", err)
			return nil
		}
		return g.fileMgr.HandleUploadAbort(ctx, deviceKey, abort)
	case protocol.FileKindURLInitiate:
		req, err := g.fileTr.ParseURLDownloadInitiate(msg)
		if err != nil {
			g.log.Warn("dropping malformed URL download initiate", "error", err)
			return nil
		}
		return g.fileMgr.HandleURLDownloadInitiate(ctx, deviceKey, req)
	case protocol.FileKindPurge:
		return g.fileMgr.Purge(ctx)
	default:
		g.log.Debug("unrecognized file sub-message, dropping", "topic", msg.Topic)
		return nil
	}
}

// Connect starts both publishing pipelines and dials the local transport
// followed by the platform transport.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return nil
	}

	if err := g.platformPub.Start(ctx, g.sched); err != nil {
		return fmt.Errorf("gateway: starting platform publisher: %w", err)
	}
	if err := g.localPub.Start(ctx, g.sched); err != nil {
		return fmt.Errorf("gateway: starting local publisher: %w", err)
	}
	if err := g.retry.Start(ctx, g.sched); err != nil {
		return fmt.Errorf("gateway: starting retry sweep: %w", err)
	}
	g.sched.Start()

	existingKeys := g.existingDevices.DeviceKeys()
	willTopic, willPayload := (&protocol.StatusTranslator{GatewayKey: g.cfg.Key}).MakeLastWill(existingKeys)
	if err := g.localTransport.SetWill(willTopic, willPayload, false, 1); err != nil {
		g.log.Warn("failed to configure last will", "error", err)
	}

	if err := g.localTransport.Connect(ctx); err != nil {
		return fmt.Errorf("gateway: connecting local transport: %w", err)
	}
	if err := g.subscribeAll(ctx, g.localTransport, g.localRouter, localInboundPatterns); err != nil {
		return err
	}

	if err := g.platformTransport.Connect(ctx); err != nil {
		return fmt.Errorf("gateway: connecting platform transport: %w", err)
	}
	if err := g.subscribeAll(ctx, g.platformTransport, g.platformRouter, g.platformInboundPatterns()); err != nil {
		return err
	}

	g.fileMgr.StartGC()
	g.running = true

	if err := g.fwSvc.ReportFirmwareUpdateResult(ctx, g.cfg.CurrentFirmwareVersion); err != nil {
		g.log.Error("failed to report firmware update result", "error", err)
	}
	return nil
}

func (g *Gateway) subscribeAll(ctx context.Context, t transport.Transport, r *router.Router, patterns []string) error {
	for _, pattern := range patterns {
		if _, err := t.Subscribe(ctx, pattern, 1, func(msg transport.Message) {
			r.Dispatch(ctx, msg)
		}); err != nil {
			return fmt.Errorf("gateway: subscribing %s: %w", pattern, err)
		}
	}
	return nil
}

// platformInboundPatterns scopes every platform-side subscription to
// this gateway's key, so a shared broker never delivers another
// gateway's traffic. The firmware and file families address by device
// key alone (no "g/<gw>" segment) so they subscribe unscoped.
func (g *Gateway) platformInboundPatterns() []string {
	gw := "g/" + g.cfg.Key
	return []string{
		"p2d/register_subdevice_response/" + gw + "/#",
		"p2d/reregister_device/" + gw + "/#",
		"p2d/delete_device/" + gw + "/#",
		"p2d/subdevice_status_request/" + gw + "/#",
		"p2d/actuator_set/" + gw + "/#",
		"p2d/actuator_get/" + gw + "/#",
		"p2d/configuration_set/" + gw + "/#",
		"p2d/configuration_get/" + gw + "/#",
		"p2d/firmware_update_install/#",
		"p2d/firmware_update_abort/#",
		"p2d/file/#",
		"pong/#",
	}
}

var localInboundPatterns = []string{
	"d2p/register_subdevice_request/#",
	"d2p/sensor_reading/#",
	"d2p/events/#",
	"d2p/actuator_status/#",
	"d2p/configuration_get/#",
	"d2p/subdevice_status_update/#",
	"d2p/firmware_update_status/#",
	"d2p/firmware_version/#",
	"lastwill/#",
	"lastwill",
}

// Disconnect reverses Connect's startup order: platform transport first,
// then local, then the publishing pipelines and scheduled jobs.
func (g *Gateway) Disconnect(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return
	}

	g.fileMgr.StopGC()
	g.platformTransport.Disconnect(ctx)
	g.localTransport.Disconnect(ctx)
	g.platformPub.Stop()
	g.localPub.Stop()
	g.retry.Stop()
	if err := g.sched.Shutdown(); err != nil {
		g.log.Warn("failed to shut down scheduler", "error", err)
	}
	g.running = false
}

// SubmitReading publishes a locally-sourced sensor reading for deviceKey
// on reference r.Reference.
func (g *Gateway) SubmitReading(ctx context.Context, deviceKey string, r wire.Reading) error {
	topic, payload, err := g.dataTr.MakeSensorReading(deviceKey, r)
	if err != nil {
		return fmt.Errorf("gateway: encoding reading: %w", err)
	}
	g.emitEvent(topic, payload)
	return g.platformPub.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: payload, QoS: 1})
}

// RegisterDevice starts registration for a locally-discovered subdevice.
func (g *Gateway) RegisterDevice(ctx context.Context, deviceKey, name string, manifest wire.Manifest) error {
	return g.registrationSvc.RegisterDevice(ctx, deviceKey, name, manifest)
}
