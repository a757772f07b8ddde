package protocol

import (
	"github.com/rustyeddy/iotgw/channel"
	"github.com/rustyeddy/iotgw/channel/wire"
	"github.com/rustyeddy/iotgw/transport"
)

// RegistrationTranslator handles register_subdevice_request/response and
// delete_device, grounded on
// original_source/src/connectivity/json/RegistrationProtocol.cpp. Per the
// REDESIGN FLAGS decision recorded in SPEC_FULL.md §4, the legacy
// register_device family (superseded by register_subdevice_request in
// the archived protocol's later revisions) is not implemented.
type RegistrationTranslator struct {
	GatewayKey string
}

func (t *RegistrationTranslator) InboundChannels() []string {
	p2d := string(channel.PlatformToDevice)
	return []string{
		p2d + "/" + channel.TypeRegisterSubdeviceResp + "/#",
		p2d + "/" + channel.TypeDeleteDevice + "/#",
	}
}

func (t *RegistrationTranslator) InboundChannelsForDevice(deviceKey string) []string {
	return nil
}

func (t *RegistrationTranslator) Handles(msg transport.Message) bool {
	toks := channel.Split(msg.Topic)
	if len(toks) < 2 {
		return false
	}
	switch toks[1] {
	case channel.TypeRegisterSubdeviceReq, channel.TypeRegisterSubdeviceResp, channel.TypeDeleteDevice:
		return true
	}
	return false
}

// MakeRegistrationRequest builds the d2p/register_subdevice_request
// channel and payload for a device joining through this gateway.
func (t *RegistrationTranslator) MakeRegistrationRequest(req wire.RegistrationRequest) (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeRegisterSubdeviceReq).
		Gateway(t.GatewayKey).Device(req.Device.Key).String()
	payload, err = wire.EncodeRegistrationRequest(req)
	return
}

// MakeRegistrationResponseForward builds the p2d/register_subdevice_response
// channel forwarding the platform's decision back down to the originating
// subdevice, grounded on
// original_source/src/protocol/json/JsonGatewaySubdeviceRegistrationProtocol.cpp's
// device-addressed response topic.
func (t *RegistrationTranslator) MakeRegistrationResponseForward(deviceKey string, resp wire.RegistrationResponse) (topic string, payload []byte, err error) {
	topic = channel.New(channel.PlatformToDevice, channel.TypeRegisterSubdeviceResp).
		Device(deviceKey).String()
	payload, err = wire.EncodeRegistrationResponse(resp)
	return
}

// ParseRegistrationResponse decodes a p2d/register_subdevice_response
// message.
func (t *RegistrationTranslator) ParseRegistrationResponse(msg transport.Message) (wire.RegistrationResponse, error) {
	return wire.DecodeRegistrationResponse(msg.Payload)
}

// MakeDeleteDeviceResponse builds the d2p response to a delete_device
// command, always {"result":"OK"}.
func (t *RegistrationTranslator) MakeDeleteDeviceResponse(deviceKey string) (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeDeleteDevice).
		Gateway(t.GatewayKey).Device(deviceKey).String()
	payload, err = wire.EncodeDeleteDeviceResponse()
	return
}

// MakeReregisterRequest builds the gateway-addressed d2p/reregister_device
// acknowledgement ({"result":"OK"}) answering the platform's
// reregistration request.
func (t *RegistrationTranslator) MakeReregisterRequest() (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeReregisterDevice).
		Gateway(t.GatewayKey).String()
	payload, err = wire.EncodeReregisterResponse()
	return
}
