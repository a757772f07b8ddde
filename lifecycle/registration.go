package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rustyeddy/iotgw/channel"
	"github.com/rustyeddy/iotgw/channel/wire"
	"github.com/rustyeddy/iotgw/persistence"
	"github.com/rustyeddy/iotgw/pipeline"
	"github.com/rustyeddy/iotgw/protocol"
	"github.com/rustyeddy/iotgw/transport"
)

// maxPostponed bounds the postponed-registration queue. Once it is full,
// each new device pushes out the oldest queued entry with a warning log
// rather than growing the queue without bound, since the gateway itself is expected to register within a few
// retry cycles of startup.
const maxPostponed = 256

// pendingDevice is the device awaiting the platform's registration
// response, kept so the response handler can save exactly what was
// requested (the response payload carries only a result code).
type pendingDevice struct {
	name     string
	manifest wire.Manifest
}

// RegistrationService handles register_subdevice_request/response
// (delete_device belongs to DeletionService), including the case where a subdevice asks to join before
// the gateway itself has completed its own registration.
//
// Grounded on
// original_source/src/service/DeviceRegistrationService.cpp: the
// postponed-registration queue (addToPostponedDeviceRegistartionRequests),
// the awaiting-response table gated by the retry decorator, and the
// gateway-registers-first cascade that drains postponed requests once the
// gateway's own registration succeeds.
type RegistrationService struct {
	gatewayKey string
	repo       persistence.DeviceRepo
	tr         *protocol.RegistrationTranslator
	out        *pipeline.Publisher
	deviceOut  *pipeline.Publisher
	retry      *RetryTable
	log        *slog.Logger

	onRegistered func(deviceKey string, isGateway bool)

	mu       sync.Mutex
	awaiting map[string]pendingDevice

	postponedMu sync.Mutex
	postponed   []postponedEntry
}

type postponedEntry struct {
	deviceKey string
	req       wire.RegistrationRequest
}

// NewRegistrationService wires a RegistrationService. out is the
// publisher that delivers outbound messages to the platform broker;
// deviceOut is the publisher that delivers messages to the local broker,
// used to forward the platform's response back down to a subdevice.
func NewRegistrationService(gatewayKey string, repo persistence.DeviceRepo, out, deviceOut *pipeline.Publisher, retry *RetryTable, log *slog.Logger) *RegistrationService {
	if log == nil {
		log = slog.Default()
	}
	return &RegistrationService{
		gatewayKey: gatewayKey,
		repo:       repo,
		tr:         &protocol.RegistrationTranslator{GatewayKey: gatewayKey},
		out:        out,
		deviceOut:  deviceOut,
		retry:      retry,
		log:        log.With("component", "lifecycle.registration"),
		awaiting:   make(map[string]pendingDevice),
	}
}

// SetOnRegistered installs the callback invoked once a device (or the
// gateway itself, when deviceKey == gatewayKey) is durably registered.
func (s *RegistrationService) SetOnRegistered(fn func(deviceKey string, isGateway bool)) {
	s.onRegistered = fn
}

// RegisterDevice starts registration for a locally-known device, e.g. one
// just discovered on the local broker.
func (s *RegistrationService) RegisterDevice(ctx context.Context, deviceKey, name string, manifest wire.Manifest) error {
	req := wire.RegistrationRequest{
		Device:   wire.DeviceRef{Name: name, Key: deviceKey},
		Manifest: manifest,
	}
	return s.HandleRegistrationRequest(ctx, deviceKey, req)
}

// HandleRegistrationRequest processes a device's request to join the
// platform through this gateway. If the gateway itself is not yet
// registered and this request is not the gateway's own, it is postponed
// until the gateway's registration succeeds.
func (s *RegistrationService) HandleRegistrationRequest(ctx context.Context, deviceKey string, req wire.RegistrationRequest) error {
	if deviceKey != s.gatewayKey {
		_, gatewayKnown, err := s.repo.Get(ctx, s.gatewayKey)
		if err != nil {
			return fmt.Errorf("lifecycle: checking gateway registration: %w", err)
		}
		if !gatewayKnown {
			s.postpone(deviceKey, req)
			return nil
		}
	}
	return s.handleRegistrationRequest(ctx, deviceKey, req)
}

func (s *RegistrationService) postpone(deviceKey string, req wire.RegistrationRequest) {
	s.postponedMu.Lock()
	defer s.postponedMu.Unlock()

	for _, e := range s.postponed {
		if e.deviceKey == deviceKey {
			return
		}
	}
	if len(s.postponed) >= maxPostponed {
		dropped := s.postponed[0]
		s.postponed = s.postponed[1:]
		s.log.Warn("postponed registration queue full, dropping oldest", "dropped", dropped.deviceKey)
	}
	s.postponed = append(s.postponed, postponedEntry{deviceKey: deviceKey, req: req})
	s.log.Info("gateway not yet registered, postponing device registration", "device", deviceKey)
}

func (s *RegistrationService) drainPostponed(ctx context.Context) {
	s.postponedMu.Lock()
	pending := s.postponed
	s.postponed = nil
	s.postponedMu.Unlock()

	if len(pending) == 0 {
		return
	}
	s.log.Info("processing postponed device registration requests", "count", len(pending))
	for _, e := range pending {
		if err := s.handleRegistrationRequest(ctx, e.deviceKey, e.req); err != nil {
			s.log.Error("failed to process postponed registration", "device", e.deviceKey, "error", err)
		}
	}
}

func (s *RegistrationService) handleRegistrationRequest(ctx context.Context, deviceKey string, req wire.RegistrationRequest) error {
	existing, found, err := s.repo.Get(ctx, deviceKey)
	if err != nil {
		return fmt.Errorf("lifecycle: looking up device %s: %w", deviceKey, err)
	}
	if found {
		manifestJSON, err := json.Marshal(req.Manifest)
		if err != nil {
			return err
		}
		if existing.Name == req.Device.Name && existing.ManifestJSON == string(manifestJSON) {
			s.log.Warn("ignoring registration request, already registered with identical manifest", "device", deviceKey)
			return nil
		}
	}

	s.mu.Lock()
	s.awaiting[deviceKey] = pendingDevice{name: req.Device.Name, manifest: req.Manifest}
	s.mu.Unlock()

	topic, payload, err := s.tr.MakeRegistrationRequest(req)
	if err != nil {
		return fmt.Errorf("lifecycle: encoding registration request: %w", err)
	}

	s.retry.Add(ctx, deviceKey, func(ctx context.Context) error {
		return s.out.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: payload, QoS: 1})
	}, func() {
		s.log.Error("failed to register device, no response from platform", "device", deviceKey)
		s.mu.Lock()
		delete(s.awaiting, deviceKey)
		s.mu.Unlock()
	})
	return nil
}

// HandleRegistrationResponse processes a register_subdevice_response
// message from the platform.
func (s *RegistrationService) HandleRegistrationResponse(ctx context.Context, msg transport.Message) error {
	deviceKey, err := deviceKeyFromTopic(msg.Topic)
	if err != nil {
		// The gateway's own registration response carries no "d/"
		// segment (its response channel is addressed by gateway key
		// alone).
		deviceKey = s.gatewayKey
	}
	resp, err := s.tr.ParseRegistrationResponse(msg)
	if err != nil {
		return fmt.Errorf("lifecycle: decoding registration response: %w", err)
	}

	if !s.retry.Resolve(deviceKey) {
		s.log.Error("ignoring unexpected registration response", "device", deviceKey)
		return nil
	}

	s.mu.Lock()
	pending, ok := s.awaiting[deviceKey]
	delete(s.awaiting, deviceKey)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	isGateway := deviceKey == s.gatewayKey
	if !isGateway {
		if err := s.forwardResponseToDevice(deviceKey, resp); err != nil {
			s.log.Error("failed to forward registration response to device", "device", deviceKey, "error", err)
		}
	}

	if resp.Result != wire.RegOK {
		s.log.Error("platform rejected registration", "device", deviceKey, "result", resp.Result)
		return nil
	}

	manifestJSON, err := json.Marshal(pending.manifest)
	if err != nil {
		return err
	}
	if err := s.repo.Save(ctx, persistence.Device{
		Key:               deviceKey,
		Name:              pending.name,
		TemplateReference: pending.manifest.TemplateReference,
		ManifestJSON:      string(manifestJSON),
	}); err != nil {
		return fmt.Errorf("lifecycle: saving registered device: %w", err)
	}

	s.log.Info("device registered on platform", "device", deviceKey)
	if s.onRegistered != nil {
		s.onRegistered(deviceKey, isGateway)
	}
	if isGateway {
		s.drainPostponed(ctx)
	}
	return nil
}

// forwardResponseToDevice republishes the platform's registration
// decision down to the subdevice that originated it, grounded on
// original_source/src/service/DeviceRegistrationService.cpp forwarding
// the response to the device side regardless of outcome.
func (s *RegistrationService) forwardResponseToDevice(deviceKey string, resp wire.RegistrationResponse) error {
	topic, payload, err := s.tr.MakeRegistrationResponseForward(deviceKey, resp)
	if err != nil {
		return fmt.Errorf("lifecycle: encoding registration response forward: %w", err)
	}
	return s.deviceOut.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: payload, QoS: 1})
}

// deviceKeyFromTopic extracts the "d/<key>" segment from a response
// channel, e.g. p2d/register_subdevice_response/g/GW1/d/D1.
func deviceKeyFromTopic(topic string) (string, error) {
	toks := channel.Split(topic)
	for i, t := range toks {
		if t == "d" && i+1 < len(toks) {
			return toks[i+1], nil
		}
	}
	return "", fmt.Errorf("lifecycle: no device segment in topic %q", topic)
}
