package protocol

import (
	"encoding/json"

	"github.com/rustyeddy/iotgw/channel"
	"github.com/rustyeddy/iotgw/channel/wire"
	"github.com/rustyeddy/iotgw/transport"
)

// StatusTranslator handles status, subdevice_status_request/_response/
// _update, and the broker-level last-will payload, grounded on
// original_source/src/protocol/json/JsonGatewayStatusProtocol.cpp.
type StatusTranslator struct {
	GatewayKey string
}

func (t *StatusTranslator) InboundChannels() []string {
	p2d := string(channel.PlatformToDevice)
	return []string{
		p2d + "/" + channel.TypeSubdeviceStatusRequest + "/#",
	}
}

func (t *StatusTranslator) InboundChannelsForDevice(deviceKey string) []string {
	return nil
}

func (t *StatusTranslator) Handles(msg transport.Message) bool {
	toks := channel.Split(msg.Topic)
	if len(toks) < 2 {
		return false
	}
	switch toks[1] {
	case channel.TypeStatus, channel.TypeSubdeviceStatusRequest,
		channel.TypeSubdeviceStatusResponse, channel.TypeSubdeviceStatusUpdate, channel.TypeLastWill:
		return true
	}
	return false
}

// MakeStatusUpdate builds the d2p/subdevice_status_update channel and
// payload announcing a device's new state.
func (t *StatusTranslator) MakeStatusUpdate(deviceKey string, state wire.DeviceState) (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeSubdeviceStatusUpdate).
		Gateway(t.GatewayKey).Device(deviceKey).String()
	payload, err = wire.EncodeStatus(state)
	return
}

// MakeStatusResponse builds the d2p/subdevice_status_response channel and
// payload in answer to a platform status_request.
func (t *StatusTranslator) MakeStatusResponse(deviceKey string, state wire.DeviceState) (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeSubdeviceStatusResponse).
		Gateway(t.GatewayKey).Device(deviceKey).String()
	payload, err = wire.EncodeStatus(state)
	return
}

// MakeGatewayStatus builds the d2p/status channel and payload for the
// gateway's own connectivity state.
func (t *StatusTranslator) MakeGatewayStatus(state wire.DeviceState) (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeStatus).
		Gateway(t.GatewayKey).String()
	payload, err = wire.EncodeStatus(state)
	return
}

// MakeLastWill builds the last-will topic/payload registered with the
// local broker for a set of device keys going offline together (the
// gateway disconnecting takes all its subdevices down with it).
func (t *StatusTranslator) MakeLastWill(deviceKeys []string) (topic string, payload []byte) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeLastWill).
		Gateway(t.GatewayKey).String()
	if deviceKeys == nil {
		deviceKeys = []string{}
	}
	payload, _ = json.Marshal(deviceKeys)
	return
}

// ParseLastWill decodes a last-will notification into the device keys
// that just went offline. Two forms are recognized: the per-device
// "lastwill/<key>" channel (exactly two segments), which carries no
// meaningful payload — the channel's own <key> segment names the one
// device that went offline — and every other channel, such as the bare
// broker-level "lastwill", whose JSON array payload lists the devices.
func (t *StatusTranslator) ParseLastWill(msg transport.Message) ([]string, error) {
	if toks := channel.Split(msg.Topic); len(toks) == 2 && toks[0] == channel.TypeLastWill {
		return []string{toks[1]}, nil
	}
	return wire.DecodeLastWillKeys(msg.Payload)
}
