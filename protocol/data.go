package protocol

import (
	"fmt"

	"github.com/rustyeddy/iotgw/channel"
	"github.com/rustyeddy/iotgw/channel/wire"
	"github.com/rustyeddy/iotgw/transport"
)

// DataTranslator handles sensor_reading/events (device -> platform) and
// actuator_set/actuator_get/configuration_set/configuration_get
// (platform -> device), grounded on
// original_source/src/connectivity/json/JsonSingleProtocol.cpp.
type DataTranslator struct {
	GatewayKey string
}

func (t *DataTranslator) InboundChannels() []string {
	p2d := string(channel.PlatformToDevice)
	return []string{
		p2d + "/" + channel.TypeActuatorSet + "/#",
		p2d + "/" + channel.TypeActuatorGet + "/#",
		p2d + "/" + channel.TypeConfigurationSet + "/#",
		p2d + "/" + channel.TypeConfigurationGet + "/#",
	}
}

func (t *DataTranslator) InboundChannelsForDevice(deviceKey string) []string {
	return nil
}

func (t *DataTranslator) Handles(msg transport.Message) bool {
	toks := channel.Split(msg.Topic)
	if len(toks) < 2 {
		return false
	}
	switch toks[1] {
	case channel.TypeSensorReading, channel.TypeEvents, channel.TypeActuatorStatus,
		channel.TypeActuatorSet, channel.TypeActuatorGet,
		channel.TypeConfigurationSet, channel.TypeConfigurationGet:
		return true
	}
	return false
}

// MakeSensorReading builds the d2p/sensor_reading channel and payload for
// one feed reading on deviceKey.
func (t *DataTranslator) MakeSensorReading(deviceKey string, r wire.Reading) (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeSensorReading).
		Gateway(t.GatewayKey).Device(deviceKey).Reference(r.Reference).String()
	payload, err = wire.EncodeReading(r)
	return
}

// MakeEvent builds the d2p/events channel and payload.
func (t *DataTranslator) MakeEvent(deviceKey string, r wire.Reading) (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeEvents).
		Gateway(t.GatewayKey).Device(deviceKey).Reference(r.Reference).String()
	payload, err = wire.EncodeReading(r)
	return
}

// MakeActuatorStatus builds the d2p/actuator_status channel and payload.
func (t *DataTranslator) MakeActuatorStatus(deviceKey string, s wire.ActuatorStatus) (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeActuatorStatus).
		Gateway(t.GatewayKey).Device(deviceKey).Reference(s.Reference).String()
	payload, err = wire.EncodeActuatorStatus(s)
	return
}

// MakeConfigurationResponse builds the d2p/configuration_get channel and
// payload carrying the device's current configuration values.
func (t *DataTranslator) MakeConfigurationResponse(deviceKey string, c wire.Configuration) (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeConfigurationGet).
		Gateway(t.GatewayKey).Device(deviceKey).String()
	payload, err = wire.EncodeConfiguration(c)
	return
}

// ParseActuatorSet extracts the device key, feed reference, and decoded
// value from an inbound p2d/actuator_set message already routed to the
// device-side channel space.
func (t *DataTranslator) ParseActuatorSet(msg transport.Message) (deviceKey, reference string, set wire.ActuatorSet, err error) {
	deviceKey = channel.ExtractDeviceKey(msg.Topic)
	reference = channel.ExtractReference(msg.Topic)
	if deviceKey == "" {
		err = fmt.Errorf("protocol: actuator_set channel missing device key: %s", msg.Topic)
		return
	}
	set, err = wire.DecodeActuatorSet(msg.Payload)
	return
}

// ParseConfigurationSet extracts the device key and decoded configuration
// values from an inbound p2d/configuration_set message.
func (t *DataTranslator) ParseConfigurationSet(msg transport.Message) (deviceKey string, cfg wire.Configuration, err error) {
	deviceKey = channel.ExtractDeviceKey(msg.Topic)
	if deviceKey == "" {
		err = fmt.Errorf("protocol: configuration_set channel missing device key: %s", msg.Topic)
		return
	}
	cfg, err = wire.DecodeConfiguration(msg.Payload)
	return
}
