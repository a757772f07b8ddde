// Package protocol translates between the gateway's internal domain
// events and the channel/payload pairs carried on the wire, one file per
// message family. Every translator shares the same shape: it knows which
// channels to subscribe to, how to recognize its own messages, and how to
// build outbound ones.
//
// Grounded on the one-type-per-concern split of
// rustyeddy-otto/messenger/registry.go (Conn vs Messenger
// responsibilities), generalized here to one Translator per wire message
// family instead of one per transport backend.
package protocol

import "github.com/rustyeddy/iotgw/transport"

// Translator is implemented once per message family (data, registration,
// status, firmware/DFU, file transfer).
type Translator interface {
	// InboundChannels lists the channel patterns (possibly with MQTT
	// wildcards) this translator wants subscribed on behalf of the
	// gateway itself, not any particular device.
	InboundChannels() []string

	// InboundChannelsForDevice lists the additional patterns that should
	// be subscribed once a specific device key is known.
	InboundChannelsForDevice(deviceKey string) []string

	// Handles reports whether msg belongs to this translator's family,
	// so a dispatcher can route without re-parsing the channel twice.
	Handles(msg transport.Message) bool
}
