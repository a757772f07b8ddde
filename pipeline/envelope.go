package pipeline

import (
	"bytes"
	"fmt"
)

// The persistence layer only knows about opaque byte payloads, so the
// channel must travel alongside the message body on disk. Each persisted
// record is "channel\npayload", the first newline being the delimiter;
// the payload itself may contain further newlines.
const envelopeDelim = '\n'

func encodeOutbound(msg OutboundMessage) ([]byte, error) {
	buf := make([]byte, 0, len(msg.Topic)+1+len(msg.Payload))
	buf = append(buf, msg.Topic...)
	buf = append(buf, envelopeDelim)
	buf = append(buf, msg.Payload...)
	return buf, nil
}

func decodeOutbound(raw []byte) (OutboundMessage, error) {
	i := bytes.IndexByte(raw, envelopeDelim)
	if i < 0 {
		return OutboundMessage{}, fmt.Errorf("pipeline: persisted record missing channel delimiter")
	}
	return OutboundMessage{
		Topic:   string(raw[:i]),
		Payload: raw[i+1:],
		Retain:  false,
		QoS:     1,
	}, nil
}
