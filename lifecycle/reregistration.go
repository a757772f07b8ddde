package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rustyeddy/iotgw/channel"
	"github.com/rustyeddy/iotgw/persistence"
	"github.com/rustyeddy/iotgw/pipeline"
	"github.com/rustyeddy/iotgw/protocol"
	"github.com/rustyeddy/iotgw/transport"
)

// reregisterDeviceBroadcast is the dialect's fixed channel for asking
// every connected subdevice to resend its registration request, with no
// device key segment since it targets all of them at once.
const reregisterDeviceBroadcast = "p2d/reregister_device/d/"

// ReregistrationService handles the platform's request that every
// subdevice re-register, typically issued after the platform loses its
// own record of the gateway's device tree.
//
// Grounded on
// original_source/src/service/DeviceRegistrationService.cpp's
// handleDeviceReregistrationRequest: acknowledge immediately, forget
// every currently known device, then broadcast the reregistration
// request downstream so devices rejoin from scratch.
type ReregistrationService struct {
	gatewayKey string
	repo       persistence.DeviceRepo
	platform   *protocol.RegistrationTranslator
	out        *pipeline.Publisher
	log        *slog.Logger
}

// NewReregistrationService wires a ReregistrationService. out delivers
// messages to the platform broker; the broadcast to devices is published
// directly since it targets the local broker's fixed topic rather than
// going through the store-and-forward platform queue.
func NewReregistrationService(gatewayKey string, repo persistence.DeviceRepo, out *pipeline.Publisher, log *slog.Logger) *ReregistrationService {
	if log == nil {
		log = slog.Default()
	}
	return &ReregistrationService{
		gatewayKey: gatewayKey,
		repo:       repo,
		platform:   &protocol.RegistrationTranslator{GatewayKey: gatewayKey},
		out:        out,
		log:        log.With("component", "lifecycle.reregistration"),
	}
}

// HandleReregistrationRequest processes a p2d/reregister_device command:
// it is not routed through RegistrationTranslator.Handles since the
// broadcast has no "g/<key>" addressing for HandleReregistrationRequest
// to extract, so callers match the channel directly.
func (s *ReregistrationService) HandleReregistrationRequest(ctx context.Context, deviceTransport transport.Transport) error {
	topic, payload, err := s.platform.MakeReregisterRequest()
	if err != nil {
		return fmt.Errorf("lifecycle: encoding reregistration response: %w", err)
	}
	if err := s.out.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: payload, QoS: 1}); err != nil {
		return fmt.Errorf("lifecycle: queuing reregistration response: %w", err)
	}

	all, err := s.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: listing devices before reregistration: %w", err)
	}
	for _, d := range all {
		if err := s.repo.Delete(ctx, d.Key); err != nil {
			s.log.Error("failed to clear device before reregistration", "device", d.Key, "error", err)
		}
	}

	if err := deviceTransport.Publish(ctx, reregisterDeviceBroadcast, nil, false, 1); err != nil {
		return fmt.Errorf("lifecycle: broadcasting reregistration to devices: %w", err)
	}
	s.log.Info("broadcast reregistration request to local devices")
	return nil
}

// IsReregistrationRequest reports whether topic is the reregistration
// broadcast channel, matching it against either direction since the
// gateway both receives it from the platform and emits it to devices.
func IsReregistrationRequest(topic string) bool {
	toks := channel.Split(topic)
	return len(toks) >= 2 && toks[1] == channel.TypeReregisterDevice
}
