// Package firmware orchestrates gateway and subdevice firmware updates:
// install/abort dispatch, a sentinel version file surviving the reboot
// an installation triggers, and version publication.
package firmware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rustyeddy/iotgw/channel"
	"github.com/rustyeddy/iotgw/channel/wire"
	"github.com/rustyeddy/iotgw/pipeline"
	"github.com/rustyeddy/iotgw/protocol"
	"github.com/rustyeddy/iotgw/transport"
)

// Installer applies a downloaded firmware image at path, returning once
// the installation either succeeds or fails. A gateway-targeted install
// typically reboots the process on success, which is why
// ReportFirmwareUpdateResult exists: nothing runs between "installation
// started" and the next process start to report the outcome directly.
type Installer interface {
	Install(ctx context.Context, path string) error
}

// Service implements the firmware update module: it owns no persistent
// state beyond the version sentinel file, since device inventory and
// file contents are filetransfer's/persistence's responsibility.
//
// Grounded directly on the archived Install/Abort/post-reboot-report
// description in `original_source/gateway/Wolk.h`'s firmware
// orchestration entry points (no single source file maps to this
// service 1:1 the way the other lifecycle services do).
type Service struct {
	gatewayKey     string
	downloadDir    string
	versionFile    string
	currentVersion string
	installer      Installer
	tr             *protocol.DFUTranslator
	platformOut    *pipeline.Publisher
	deviceOut      *pipeline.Publisher
	log            *slog.Logger
}

// New creates a Service. downloadDir is where filetransfer deposits
// received firmware images; versionFile is the sentinel path written
// before a gateway-local install begins and consulted on the next
// startup; currentVersion is the version currently running, which is
// what gets written to the sentinel and what the sentinel is compared
// against after a restart.
func New(gatewayKey, downloadDir, versionFile, currentVersion string, installer Installer, platformOut, deviceOut *pipeline.Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		gatewayKey:     gatewayKey,
		downloadDir:    downloadDir,
		versionFile:    versionFile,
		currentVersion: currentVersion,
		installer:      installer,
		tr:             &protocol.DFUTranslator{GatewayKey: gatewayKey},
		platformOut:    platformOut,
		deviceOut:      deviceOut,
		log:            log.With("component", "firmware"),
	}
}

// HandleInstall processes a p2d/firmware_update_install command,
// installing locally for any listed gatewayKey and forwarding the
// command downstream for every other device key.
func (s *Service) HandleInstall(ctx context.Context, msg transport.Message) error {
	cmd, err := s.tr.ParseInstallCommand(msg)
	if err != nil {
		return fmt.Errorf("firmware: decoding install command: %w", err)
	}

	for _, key := range cmd.DeviceKeys {
		if key == s.gatewayKey {
			go s.installGateway(ctx, filepath.Join(s.downloadDir, cmd.FileName))
			continue
		}
		if err := s.forward(ctx, channel.TypeFirmwareUpdateInstall, key, msg.Payload); err != nil {
			s.log.Error("failed to forward install command", "device", key, "error", err)
		}
	}
	return nil
}

// HandleAbort processes a p2d/firmware_update_abort command. A
// gateway-targeted abort is a no-op by contract; subdevice aborts are
// forwarded unchanged.
func (s *Service) HandleAbort(ctx context.Context, msg transport.Message) error {
	cmd, err := s.tr.ParseAbortCommand(msg)
	if err != nil {
		return fmt.Errorf("firmware: decoding abort command: %w", err)
	}
	for _, key := range cmd.DeviceKeys {
		if key == s.gatewayKey {
			continue
		}
		if err := s.forward(ctx, channel.TypeFirmwareUpdateAbort, key, msg.Payload); err != nil {
			s.log.Error("failed to forward abort command", "device", key, "error", err)
		}
	}
	return nil
}

func (s *Service) forward(ctx context.Context, msgType, deviceKey string, payload []byte) error {
	topic := channel.New(channel.PlatformToDevice, msgType).Device(deviceKey).String()
	return s.deviceOut.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: payload, QoS: 1})
}

func (s *Service) installGateway(ctx context.Context, path string) {
	if s.installer == nil || s.currentVersion == "" {
		s.publishError(ctx, wire.DFUErrInstallationFailed)
		return
	}

	if err := os.WriteFile(s.versionFile, []byte(s.currentVersion), 0o644); err != nil {
		s.log.Error("failed to write firmware version sentinel", "error", err)
		s.publishError(ctx, wire.DFUErrFileSystemError)
		return
	}

	if err := s.publishStatus(ctx, wire.DFUInstallation, nil); err != nil {
		s.log.Error("failed to publish installation status", "error", err)
	}

	if err := s.installer.Install(ctx, path); err != nil {
		s.log.Error("firmware installation failed", "error", err)
		s.publishError(ctx, wire.DFUErrInstallationFailed)
		return
	}
	// A successful install is expected to reboot the process; any
	// further status is reported by ReportFirmwareUpdateResult on the
	// next startup.
}

func (s *Service) publishError(ctx context.Context, code wire.DFUErrorCode) {
	if err := s.publishStatus(ctx, wire.DFUError, &code); err != nil {
		s.log.Error("failed to publish firmware error status", "error", err)
	}
}

func (s *Service) publishStatus(ctx context.Context, status wire.DFUStatusCode, errCode *wire.DFUErrorCode) error {
	topic, payload, err := s.tr.MakeStatus(s.gatewayKey, status, errCode)
	if err != nil {
		return fmt.Errorf("firmware: encoding status: %w", err)
	}
	return s.platformOut.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: payload, QoS: 1})
}

// ReportFirmwareUpdateResult is called once at startup. If the version
// sentinel file is present and its contents differ from the version now
// running, the prior install is reported COMPLETED; otherwise
// INSTALLATION_FAILED. The sentinel is removed either way.
func (s *Service) ReportFirmwareUpdateResult(ctx context.Context, runningVersion string) error {
	data, err := os.ReadFile(s.versionFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("firmware: reading version sentinel: %w", err)
	}
	defer os.Remove(s.versionFile)

	if string(data) != runningVersion {
		return s.publishStatus(ctx, wire.DFUCompleted, nil)
	}
	code := wire.DFUErrInstallationFailed
	return s.publishStatus(ctx, wire.DFUError, &code)
}

// PublishVersion emits the gateway's currently running version to the
// platform.
func (s *Service) PublishVersion(ctx context.Context, runningVersion string) error {
	topic, payload, err := s.tr.MakeVersion(s.gatewayKey, runningVersion)
	if err != nil {
		return fmt.Errorf("firmware: encoding version: %w", err)
	}
	return s.platformOut.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: payload, QoS: 1})
}

// RelayDeviceStatus republishes a device-originated DFU status/version
// message to the platform. Firmware channels are device-key-addressed on
// both the local and platform sides (no gateway segment), so the channel
// carries over unchanged.
func (s *Service) RelayDeviceStatus(ctx context.Context, msg transport.Message) error {
	return s.platformOut.Enqueue(pipeline.OutboundMessage{Topic: msg.Topic, Payload: msg.Payload, QoS: 1})
}
