package wire

import "encoding/json"

// Reading is a timestamped sample for a single feed reference.
// Timestamp 0 means "use current wall clock at send time".
type Reading struct {
	Reference string   `json:"-"` // carried in the channel, not the payload
	Value     *string  `json:"value,omitempty"`
	Values    []string `json:"values,omitempty"`
	Timestamp int64    `json:"utc,omitempty"`
}

// EncodeReading produces the JSON payload for a d2p/sensor_reading message.
// Grounded on original_source/src/connectivity/json/OutboundMessageFactory.cpp.
func EncodeReading(r Reading) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeReading parses a sensor_reading/events payload.
func DecodeReading(payload []byte) (Reading, error) {
	var r Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return Reading{}, err
	}
	return r, nil
}

// ActuatorStatus is the JsonSingle variant: exactly one status per
// message.
type ActuatorStatus struct {
	Reference string `json:"-"`
	Status    string `json:"status"`
	Value     string `json:"value,omitempty"`
}

func EncodeActuatorStatus(s ActuatorStatus) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeActuatorStatus(payload []byte) (ActuatorStatus, error) {
	var s ActuatorStatus
	if err := json.Unmarshal(payload, &s); err != nil {
		return ActuatorStatus{}, err
	}
	return s, nil
}

// ActuatorSet is the inbound p2d/actuator_set command: a single value,
// the reference is derived from the channel tail.
type ActuatorSet struct {
	Value string `json:"value"`
}

func DecodeActuatorSet(payload []byte) (ActuatorSet, error) {
	var s ActuatorSet
	if err := json.Unmarshal(payload, &s); err != nil {
		return ActuatorSet{}, err
	}
	return s, nil
}

// ActuatorGet carries no payload; it is identified purely by channel.

// Configuration carries a map of reference to value, for both
// configuration_set (p2d, inbound) and configuration_get (d2p, outbound
// response).
type Configuration struct {
	Values map[string]string `json:"values"`
}

func EncodeConfiguration(c Configuration) ([]byte, error) {
	return json.Marshal(c)
}

func DecodeConfiguration(payload []byte) (Configuration, error) {
	var c Configuration
	if err := json.Unmarshal(payload, &c); err != nil {
		return Configuration{}, err
	}
	return c, nil
}
