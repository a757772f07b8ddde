// Package channel implements the gateway's MQTT channel dialect: the
// stable direction/type/addressing tokens, the MQTT-style wildcard
// matcher, and the gateway<->device channel rewriting rules.
package channel

import (
	"strings"
)

// Direction is the first segment of every channel: which way the
// message is travelling.
type Direction string

const (
	DeviceToPlatform Direction = "d2p"
	PlatformToDevice Direction = "p2d"
)

// Message-type segments, stable across both dialects.
const (
	TypeSensorReading           = "sensor_reading"
	TypeEvents                  = "events"
	TypeActuatorStatus          = "actuator_status"
	TypeActuatorSet             = "actuator_set"
	TypeActuatorGet             = "actuator_get"
	TypeConfigurationSet        = "configuration_set"
	TypeConfigurationGet        = "configuration_get"
	TypeRegisterSubdeviceReq    = "register_subdevice_request"
	TypeRegisterSubdeviceResp   = "register_subdevice_response"
	TypeReregisterDevice        = "reregister_device"
	TypeDeleteDevice            = "delete_device"
	TypeStatus                  = "status"
	TypeSubdeviceStatusRequest  = "subdevice_status_request"
	TypeSubdeviceStatusResponse = "subdevice_status_response"
	TypeSubdeviceStatusUpdate   = "subdevice_status_update"
	TypeFirmwareUpdateInstall   = "firmware_update_install"
	TypeFirmwareUpdateAbort     = "firmware_update_abort"
	TypeFirmwareUpdateStatus    = "firmware_update_status"
	TypeFirmwareVersion         = "firmware_version"
	TypeFile                    = "file"
	TypeLastWill                = "lastwill"
	TypePong                    = "pong"
)

// Addressing tail tokens.
const (
	tokGateway = "g"
	tokDevice  = "d"
	tokRef     = "r"
)

const sep = "/"

// Split tokenizes a channel into its '/'-separated segments.
func Split(ch string) []string {
	if ch == "" {
		return nil
	}
	return strings.Split(ch, sep)
}

// Join rebuilds a channel string from segments.
func Join(tokens ...string) string {
	return strings.Join(tokens, sep)
}

// Builder accumulates the addressing tail (g/<gw>[/d/<dev>][/r/<ref>])
// on top of a direction+type prefix.
type Builder struct {
	tokens []string
}

// New starts a channel with the given direction and message type.
func New(dir Direction, msgType string) *Builder {
	return &Builder{tokens: []string{string(dir), msgType}}
}

// Gateway appends the g/<key> segment.
func (b *Builder) Gateway(key string) *Builder {
	if key == "" {
		return b
	}
	b.tokens = append(b.tokens, tokGateway, key)
	return b
}

// Device appends the d/<key> segment.
func (b *Builder) Device(key string) *Builder {
	if key == "" {
		return b
	}
	b.tokens = append(b.tokens, tokDevice, key)
	return b
}

// Reference appends the r/<ref> segment.
func (b *Builder) Reference(ref string) *Builder {
	if ref == "" {
		return b
	}
	b.tokens = append(b.tokens, tokRef, ref)
	return b
}

// Raw appends an arbitrary trailing segment, used by the file family
// for its "file/..." sub-paths.
func (b *Builder) Raw(tok ...string) *Builder {
	b.tokens = append(b.tokens, tok...)
	return b
}

// String renders the final channel.
func (b *Builder) String() string {
	return Join(b.tokens...)
}

// ExtractDeviceKey scans the channel tokens per spec: the token
// immediately following "d" wins; otherwise the token following "g";
// otherwise for "lastwill/<key>" the literal tail; otherwise empty.
func ExtractDeviceKey(ch string) string {
	toks := Split(ch)
	for i, t := range toks {
		if t == tokDevice && i+1 < len(toks) {
			return toks[i+1]
		}
	}
	for i, t := range toks {
		if t == tokGateway && i+1 < len(toks) {
			return toks[i+1]
		}
	}
	if len(toks) == 2 && toks[0] == TypeLastWill {
		return toks[1]
	}
	return ""
}

// ExtractReference returns the r/<ref> tail, or "" if absent.
func ExtractReference(ch string) string {
	toks := Split(ch)
	for i, t := range toks {
		if t == tokRef && i+1 < len(toks) {
			return toks[i+1]
		}
	}
	return ""
}
