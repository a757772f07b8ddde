package wire

import "encoding/json"

// DFUStatusCode enumerates the firmware_update_status values.
type DFUStatusCode string

const (
	DFUFileTransfer DFUStatusCode = "FILE_TRANSFER"
	DFUFileReady    DFUStatusCode = "FILE_READY"
	DFUInstallation DFUStatusCode = "INSTALLATION"
	DFUCompleted    DFUStatusCode = "COMPLETED"
	DFUAborted      DFUStatusCode = "ABORTED"
	DFUError        DFUStatusCode = "ERROR"
)

// DFUErrorCode enumerates the error field accompanying DFUError statuses.
type DFUErrorCode int

const (
	DFUErrUnspecified DFUErrorCode = iota
	DFUErrFileUploadDisabled
	DFUErrUnsupportedFileSize
	DFUErrInstallationFailed
	DFUErrMalformedURL
	DFUErrFileSystemError
	DFUErrRetryCountExceeded
	DFUErrFileNotPresent
)

// InstallCommand is the p2d/firmware_update_install payload.
type InstallCommand struct {
	DeviceKeys []string `json:"deviceKeys"`
	FileName   string   `json:"fileName"`
}

func DecodeInstallCommand(payload []byte) (InstallCommand, error) {
	var c InstallCommand
	if err := json.Unmarshal(payload, &c); err != nil {
		return InstallCommand{}, err
	}
	return c, nil
}

// AbortCommand is the p2d/firmware_update_abort payload.
type AbortCommand struct {
	DeviceKeys []string `json:"deviceKeys"`
}

func DecodeAbortCommand(payload []byte) (AbortCommand, error) {
	var c AbortCommand
	if err := json.Unmarshal(payload, &c); err != nil {
		return AbortCommand{}, err
	}
	return c, nil
}

// DFUStatus is the d2p/firmware_update_status payload.
type DFUStatus struct {
	Status DFUStatusCode  `json:"status"`
	Error  *DFUErrorCode  `json:"error,omitempty"`
}

func EncodeDFUStatus(status DFUStatusCode, errCode *DFUErrorCode) ([]byte, error) {
	return json.Marshal(DFUStatus{Status: status, Error: errCode})
}

func DecodeDFUStatus(payload []byte) (DFUStatus, error) {
	var s DFUStatus
	if err := json.Unmarshal(payload, &s); err != nil {
		return DFUStatus{}, err
	}
	return s, nil
}

// FirmwareVersion is the d2p/firmware_version payload.
type FirmwareVersion struct {
	DeviceKey string `json:"deviceKey"`
	Version   string `json:"version"`
}

func EncodeFirmwareVersion(v FirmwareVersion) ([]byte, error) {
	return json.Marshal(v)
}
