package wire

import "encoding/json"

// RegistrationResult enumerates the register_subdevice_response outcomes.
type RegistrationResult string

const (
	RegOK                               RegistrationResult = "OK"
	RegErrKeyConflict                   RegistrationResult = "ERROR_KEY_CONFLICT"
	RegErrManifestConflict              RegistrationResult = "ERROR_MANIFEST_CONFLICT"
	RegErrMaximumNumberOfDevicesExceeded RegistrationResult = "ERROR_MAXIMUM_NUMBER_OF_DEVICES_EXCEEDED"
	RegErrReadingPayload                RegistrationResult = "ERROR_READING_PAYLOAD"
	RegErrGatewayNotFound               RegistrationResult = "ERROR_GATEWAY_NOT_FOUND"
	RegErrNoGatewayManifest             RegistrationResult = "ERROR_NO_GATEWAY_MANIFEST"
)

// Feed describes one data stream belonging to a device.
type Feed struct {
	Reference string `json:"reference"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Unit      string `json:"unit"`
}

// Manifest is the device's declared capabilities, compared byte-for-byte
// between registration attempts.
type Manifest struct {
	TemplateReference string            `json:"templateReference,omitempty"`
	Feeds             []Feed            `json:"feeds,omitempty"`
	Attributes        []string          `json:"attributes,omitempty"`
	Parameters        map[string]string `json:"parameters,omitempty"`
}

// DeviceRef is the {name,key} pair embedded in a registration request.
type DeviceRef struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// RegistrationRequest is the register_subdevice_request payload.
type RegistrationRequest struct {
	Device   DeviceRef `json:"device"`
	Manifest Manifest  `json:"manifest"`
}

// RegistrationResponse is the register_subdevice_response payload.
type RegistrationResponse struct {
	Result RegistrationResult `json:"result"`
}

func EncodeRegistrationRequest(r RegistrationRequest) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRegistrationRequest(payload []byte) (RegistrationRequest, error) {
	var r RegistrationRequest
	if err := json.Unmarshal(payload, &r); err != nil {
		return RegistrationRequest{}, err
	}
	return r, nil
}

func EncodeRegistrationResponse(r RegistrationResponse) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRegistrationResponse(payload []byte) (RegistrationResponse, error) {
	var r RegistrationResponse
	if err := json.Unmarshal(payload, &r); err != nil {
		return RegistrationResponse{}, err
	}
	return r, nil
}

// DeleteDeviceResponse is always {"result":"OK"}.
type DeleteDeviceResponse struct {
	Result RegistrationResult `json:"result"`
}

func EncodeDeleteDeviceResponse() ([]byte, error) {
	return json.Marshal(DeleteDeviceResponse{Result: RegOK})
}

// ReregisterResponse is always {"result":"OK"}.
type ReregisterResponse struct {
	Result RegistrationResult `json:"result"`
}

func EncodeReregisterResponse() ([]byte, error) {
	return json.Marshal(ReregisterResponse{Result: RegOK})
}
