package wire

import (
	"encoding/base64"
	"encoding/json"
)

// FileStatusCode enumerates the file-transfer status payloads.
type FileStatusCode string

const (
	FileTransferStatus  FileStatusCode = "FILE_TRANSFER"
	FileReady           FileStatusCode = "FILE_READY"
	FileAborted         FileStatusCode = "ABORTED"
	FileHashMismatch    FileStatusCode = "FILE_HASH_MISMATCH"
	FileError           FileStatusCode = "ERROR"
	TransferProtocolOff FileStatusCode = "TRANSFER_PROTOCOL_DISABLED"
)

// UploadInitiate is the file_upload_initiate payload: name/size/hash,
// hash base64-encoded as it arrives on the wire.
type UploadInitiate struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Hash string `json:"hash"` // base64(SHA-256)
}

func DecodeUploadInitiate(payload []byte) (UploadInitiate, error) {
	var u UploadInitiate
	if err := json.Unmarshal(payload, &u); err != nil {
		return UploadInitiate{}, err
	}
	return u, nil
}

// HashBytes decodes the base64 hash field into raw bytes.
func (u UploadInitiate) HashBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(u.Hash)
}

// PacketRequest is the gateway->platform chunk request.
type PacketRequest struct {
	FileName   string `json:"fileName"`
	ChunkIndex int    `json:"chunkIndex"`
	ChunkSize  int    `json:"chunkSize"`
}

func EncodePacketRequest(p PacketRequest) ([]byte, error) {
	return json.Marshal(p)
}

// UploadAbort carries the file name to cancel.
type UploadAbort struct {
	Name string `json:"name"`
}

func DecodeUploadAbort(payload []byte) (UploadAbort, error) {
	var a UploadAbort
	if err := json.Unmarshal(payload, &a); err != nil {
		return UploadAbort{}, err
	}
	return a, nil
}

// URLDownloadInitiate carries the URL to fetch.
type URLDownloadInitiate struct {
	URL string `json:"url"`
}

func DecodeURLDownloadInitiate(payload []byte) (URLDownloadInitiate, error) {
	var u URLDownloadInitiate
	if err := json.Unmarshal(payload, &u); err != nil {
		return URLDownloadInitiate{}, err
	}
	return u, nil
}

// FileURLDownloadStatus reports the outcome of a URL-initiated download.
type FileURLDownloadStatus struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

func EncodeFileURLDownloadStatus(s FileURLDownloadStatus) ([]byte, error) {
	return json.Marshal(s)
}

// FileErrorCode enumerates the error field accompanying FileError
// statuses, mirroring DFUErrorCode for the file-transfer family.
type FileErrorCode int

const (
	FileErrUnspecified FileErrorCode = iota
	FileErrRetryCountExceeded
	FileErrPreviousPackageHashNotValid
	FileErrFileSystemError
)

// FileStatus is the generic file-transfer status envelope.
type FileStatus struct {
	Status FileStatusCode `json:"status"`
	Error  *FileErrorCode `json:"error,omitempty"`
}

func EncodeFileStatus(status FileStatusCode, errCode *FileErrorCode) ([]byte, error) {
	return json.Marshal(FileStatus{Status: status, Error: errCode})
}

// FileListEntry is one entry in the file-inventory list response.
type FileListEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Hash string `json:"hash"` // hex-encoded, matching the file-list payload family
}

// FileList is the file list-response payload.
type FileList struct {
	Files []FileListEntry `json:"files"`
}

func EncodeFileList(entries []FileListEntry) ([]byte, error) {
	return json.Marshal(FileList{Files: entries})
}
