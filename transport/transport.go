// Package transport wraps the two independent MQTT broker connections the
// gateway maintains: one to the cloud platform, one to the local network of
// subdevices. Both sides speak the same Transport interface so the router
// and pipeline packages never know which broker they're talking to.
package transport

import "context"

// Message is a received publication, decoupled from the underlying MQTT
// client library so callers don't import paho directly.
type Message struct {
	Topic   string
	Payload []byte
	Retain  bool
	QoS     byte
}

// Handler processes one inbound Message. It returns nothing and a message
// is never re-delivered; transports are fire-and-forget on the way in.
type Handler func(Message)

// Unsubscribe cancels a prior Subscribe call.
type Unsubscribe func() error

// Transport is a single broker connection, either to the platform or to
// the local subdevice network.
type Transport interface {
	// Connect dials the broker and blocks until the connection succeeds,
	// fails, or ctx is done.
	Connect(ctx context.Context) error

	// Disconnect closes the connection, allowing pending work the given
	// grace period to flush.
	Disconnect(ctx context.Context)

	// IsConnected reports the current connection state.
	IsConnected() bool

	// SetWill configures the broker-delivered last-will message, applied
	// on the next Connect. Calling this after Connect has no effect on
	// the current session.
	SetWill(topic string, payload []byte, retain bool, qos byte) error

	// Publish sends payload on topic. For qos 0 this returns once handed
	// to the client library; for qos >= 1 it waits for the broker ack.
	Publish(ctx context.Context, topic string, payload []byte, retain bool, qos byte) error

	// Subscribe registers handler for topic (which may contain MQTT
	// wildcards) and returns a func to cancel it.
	Subscribe(ctx context.Context, topic string, qos byte, handler Handler) (Unsubscribe, error)

	// SetConnectionLostHandler is invoked whenever the broker connection
	// drops unexpectedly, prior to the client library's automatic
	// reconnect attempts.
	SetConnectionLostHandler(func(error))

	// SetOnConnect is invoked every time the client (re)connects,
	// including the initial connect and any automatic reconnects.
	SetOnConnect(func())
}
