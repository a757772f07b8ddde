package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rustyeddy/iotgw/persistence"
	"github.com/rustyeddy/iotgw/pipeline"
	"github.com/rustyeddy/iotgw/protocol"
	"github.com/rustyeddy/iotgw/transport"
)

// DeletionService handles delete_device commands from the platform: the
// device is removed from the local repository and an OK acknowledgment
// is published back, unconditionally (the archived gateway never fails a
// deletion once requested).
//
// Grounded on original_source/src/protocol/json/JsonGatewayDeviceRegistrationProtocol.cpp's
// deletion-response channel pair, simplified to the direction this
// gateway's dialect uses it in: platform-initiated, gateway-acknowledged.
type DeletionService struct {
	repo persistence.DeviceRepo
	tr   *protocol.RegistrationTranslator
	out  *pipeline.Publisher
	log  *slog.Logger

	onDeleted func(deviceKey string)
}

// NewDeletionService wires a DeletionService.
func NewDeletionService(gatewayKey string, repo persistence.DeviceRepo, out *pipeline.Publisher, log *slog.Logger) *DeletionService {
	if log == nil {
		log = slog.Default()
	}
	return &DeletionService{
		repo: repo,
		tr:   &protocol.RegistrationTranslator{GatewayKey: gatewayKey},
		out:  out,
		log:  log.With("component", "lifecycle.deletion"),
	}
}

// SetOnDeleted installs the callback invoked after a device is removed.
func (s *DeletionService) SetOnDeleted(fn func(deviceKey string)) {
	s.onDeleted = fn
}

// HandleDeleteDevice processes a p2d/delete_device command.
func (s *DeletionService) HandleDeleteDevice(ctx context.Context, msg transport.Message) error {
	deviceKey, err := deviceKeyFromTopic(msg.Topic)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, deviceKey); err != nil {
		return fmt.Errorf("lifecycle: deleting device %s: %w", deviceKey, err)
	}
	s.log.Info("device deleted", "device", deviceKey)
	if s.onDeleted != nil {
		s.onDeleted(deviceKey)
	}

	topic, payload, err := s.tr.MakeDeleteDeviceResponse(deviceKey)
	if err != nil {
		return fmt.Errorf("lifecycle: encoding delete_device ack: %w", err)
	}
	return s.out.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: payload, QoS: 1})
}

// DeleteDevicesOtherThan removes every locally registered device whose key
// is not present in keep (used after a full inventory refresh), leaving
// the gateway's own entry untouched.
func (s *DeletionService) DeleteDevicesOtherThan(ctx context.Context, gatewayKey string, keep []string) error {
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}

	all, err := s.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: listing devices: %w", err)
	}

	for _, d := range all {
		if d.Key == gatewayKey || keepSet[d.Key] {
			continue
		}
		if err := s.repo.Delete(ctx, d.Key); err != nil {
			s.log.Error("failed to delete stale device", "device", d.Key, "error", err)
			continue
		}
		s.log.Info("deleted stale device not present in current inventory", "device", d.Key)
		if s.onDeleted != nil {
			s.onDeleted(d.Key)
		}
	}
	return nil
}
