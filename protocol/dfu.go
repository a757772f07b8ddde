package protocol

import (
	"github.com/rustyeddy/iotgw/channel"
	"github.com/rustyeddy/iotgw/channel/wire"
	"github.com/rustyeddy/iotgw/transport"
)

// DFUTranslator handles firmware_update_install/abort (platform -> device)
// and firmware_update_status/firmware_version (device -> platform),
// grounded on original_source/src/protocol/json/JsonGatewayDFUProtocol.cpp.
type DFUTranslator struct {
	GatewayKey string
}

func (t *DFUTranslator) InboundChannels() []string {
	p2d := string(channel.PlatformToDevice)
	return []string{
		p2d + "/" + channel.TypeFirmwareUpdateInstall + "/#",
		p2d + "/" + channel.TypeFirmwareUpdateAbort + "/#",
	}
}

func (t *DFUTranslator) InboundChannelsForDevice(deviceKey string) []string {
	return nil
}

func (t *DFUTranslator) Handles(msg transport.Message) bool {
	toks := channel.Split(msg.Topic)
	if len(toks) < 2 {
		return false
	}
	switch toks[1] {
	case channel.TypeFirmwareUpdateInstall, channel.TypeFirmwareUpdateAbort,
		channel.TypeFirmwareUpdateStatus, channel.TypeFirmwareVersion:
		return true
	}
	return false
}

// ParseInstallCommand decodes a p2d/firmware_update_install message.
func (t *DFUTranslator) ParseInstallCommand(msg transport.Message) (wire.InstallCommand, error) {
	return wire.DecodeInstallCommand(msg.Payload)
}

// ParseAbortCommand decodes a p2d/firmware_update_abort message.
func (t *DFUTranslator) ParseAbortCommand(msg transport.Message) (wire.AbortCommand, error) {
	return wire.DecodeAbortCommand(msg.Payload)
}

// MakeStatus builds the d2p/firmware_update_status channel and payload
// for deviceKey (the gateway reports its own status under its own key).
// Unlike the
// file-transfer family, firmware channels are addressed by device key
// alone on both sides of the gateway, so no gateway segment is inserted.
func (t *DFUTranslator) MakeStatus(deviceKey string, status wire.DFUStatusCode, errCode *wire.DFUErrorCode) (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeFirmwareUpdateStatus).
		Device(deviceKey).String()
	payload, err = wire.EncodeDFUStatus(status, errCode)
	return
}

// MakeVersion builds the d2p/firmware_version channel and payload,
// device-addressed with no gateway segment (see MakeStatus).
func (t *DFUTranslator) MakeVersion(deviceKey, version string) (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeFirmwareVersion).
		Device(deviceKey).String()
	payload, err = wire.EncodeFirmwareVersion(wire.FirmwareVersion{DeviceKey: deviceKey, Version: version})
	return
}
