package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rustyeddy/iotgw/channel/wire"
	"github.com/rustyeddy/iotgw/pipeline"
	"github.com/rustyeddy/iotgw/protocol"
	"github.com/rustyeddy/iotgw/transport"
)

// StatusService tracks each known device's last reported connectivity
// state and answers the platform's on-demand status requests.
//
// Grounded on
// original_source/src/protocol/json/JsonGatewayStatusProtocol.cpp: status
// is push-on-change plus respond-on-request, never polled by the
// gateway itself.
type StatusService struct {
	tr  *protocol.StatusTranslator
	out *pipeline.Publisher
	log *slog.Logger

	mu     sync.Mutex
	states map[string]wire.DeviceState
}

// NewStatusService wires a StatusService.
func NewStatusService(gatewayKey string, out *pipeline.Publisher, log *slog.Logger) *StatusService {
	if log == nil {
		log = slog.Default()
	}
	return &StatusService{
		tr:     &protocol.StatusTranslator{GatewayKey: gatewayKey},
		out:    out,
		log:    log.With("component", "lifecycle.status"),
		states: make(map[string]wire.DeviceState),
	}
}

// SetState records deviceKey's current state and, if it changed,
// publishes a subdevice_status_update. deviceKey == "" refers to the
// gateway's own connectivity.
func (s *StatusService) SetState(ctx context.Context, deviceKey string, state wire.DeviceState) error {
	s.mu.Lock()
	prev, known := s.states[deviceKey]
	s.states[deviceKey] = state
	s.mu.Unlock()

	if known && prev == state {
		return nil
	}

	var topic string
	var payload []byte
	var err error
	if deviceKey == "" {
		topic, payload, err = s.tr.MakeGatewayStatus(state)
	} else {
		topic, payload, err = s.tr.MakeStatusUpdate(deviceKey, state)
	}
	if err != nil {
		return fmt.Errorf("lifecycle: encoding status update: %w", err)
	}
	return s.out.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: payload, QoS: 1})
}

// State returns deviceKey's last recorded state and whether it is known.
func (s *StatusService) State(deviceKey string) (wire.DeviceState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[deviceKey]
	return st, ok
}

// HandleStatusRequest answers a p2d/subdevice_status_request with the
// device's last recorded state, or StateOffline if nothing is recorded
// yet.
func (s *StatusService) HandleStatusRequest(ctx context.Context, deviceKey string) error {
	state, known := s.State(deviceKey)
	if !known {
		state = wire.StateOffline
	}
	topic, payload, err := s.tr.MakeStatusResponse(deviceKey, state)
	if err != nil {
		return fmt.Errorf("lifecycle: encoding status response: %w", err)
	}
	return s.out.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: payload, QoS: 1})
}

// HandleLastWill processes a broker-delivered last-will payload, marking
// every device key ParseLastWill yields offline. The gateway's own status
// is not changed.
func (s *StatusService) HandleLastWill(ctx context.Context, msg transport.Message) error {
	keys, err := s.tr.ParseLastWill(msg)
	if err != nil {
		return fmt.Errorf("lifecycle: decoding last will: %w", err)
	}
	for _, key := range keys {
		if err := s.SetState(ctx, key, wire.StateOffline); err != nil {
			s.log.Error("failed to publish offline status from last will", "device", key, "error", err)
		}
	}
	return nil
}
