package wire

import "encoding/json"

// DeviceState enumerates the device-status values.
type DeviceState string

const (
	StateConnected DeviceState = "CONNECTED"
	StateOffline   DeviceState = "OFFLINE"
	StateSleep     DeviceState = "SLEEP"
	StateService   DeviceState = "SERVICE"
)

// StatusPayload is the {state: ...} body carried on status,
// subdevice_status_request/_response/_update channels.
type StatusPayload struct {
	State DeviceState `json:"state"`
}

func EncodeStatus(state DeviceState) ([]byte, error) {
	return json.Marshal(StatusPayload{State: state})
}

func DecodeStatus(payload []byte) (DeviceState, error) {
	var s StatusPayload
	if err := json.Unmarshal(payload, &s); err != nil {
		return "", err
	}
	return s.State, nil
}

// LastWillKeys is the broker-level last-will payload: a JSON array of
// device keys that just went offline.
func DecodeLastWillKeys(payload []byte) ([]string, error) {
	var keys []string
	if err := json.Unmarshal(payload, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}
