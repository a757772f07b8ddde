package protocol

import (
	"github.com/rustyeddy/iotgw/channel"
	"github.com/rustyeddy/iotgw/channel/wire"
	"github.com/rustyeddy/iotgw/transport"
)

// FileTranslator handles the chunked file-upload/download exchange under
// the "file" channel root, grounded on
// original_source/src/protocol/json/JsonGatewayWolkDownloadProtocol.cpp.
type FileTranslator struct {
	GatewayKey string
}

func (t *FileTranslator) InboundChannels() []string {
	p2d := string(channel.PlatformToDevice)
	return []string{p2d + "/" + channel.TypeFile + "/#"}
}

func (t *FileTranslator) InboundChannelsForDevice(deviceKey string) []string {
	return nil
}

func (t *FileTranslator) Handles(msg transport.Message) bool {
	toks := channel.Split(msg.Topic)
	return len(toks) >= 2 && toks[1] == channel.TypeFile
}

// FileMessageKind distinguishes the sub-messages carried under the
// shared "file" channel root, mirroring the trailing raw segment the
// outbound Make* builders already use ("binary", "status", "url_status",
// "list").
type FileMessageKind string

const (
	FileKindInitiate    FileMessageKind = "initiate"
	FileKindChunk       FileMessageKind = "chunk"
	FileKindAbort       FileMessageKind = "abort"
	FileKindURLInitiate FileMessageKind = "url"
	FileKindPurge       FileMessageKind = "purge"
	FileKindUnknown     FileMessageKind = ""
)

// Kind inspects the trailing raw segment of an inbound p2d/file channel
// to determine which sub-message it carries, e.g.
// "p2d/file/g/GW1/d/D1/initiate" -> FileKindInitiate.
func (t *FileTranslator) Kind(msg transport.Message) FileMessageKind {
	toks := channel.Split(msg.Topic)
	if len(toks) == 0 {
		return FileKindUnknown
	}
	switch FileMessageKind(toks[len(toks)-1]) {
	case FileKindInitiate, FileKindChunk, FileKindAbort, FileKindURLInitiate, FileKindPurge:
		return FileMessageKind(toks[len(toks)-1])
	default:
		return FileKindUnknown
	}
}

func (t *FileTranslator) ParseUploadInitiate(msg transport.Message) (wire.UploadInitiate, error) {
	return wire.DecodeUploadInitiate(msg.Payload)
}

func (t *FileTranslator) ParseUploadAbort(msg transport.Message) (wire.UploadAbort, error) {
	return wire.DecodeUploadAbort(msg.Payload)
}

func (t *FileTranslator) ParseURLDownloadInitiate(msg transport.Message) (wire.URLDownloadInitiate, error) {
	return wire.DecodeURLDownloadInitiate(msg.Payload)
}

// MakePacketRequest builds the d2p/file channel requesting the next chunk
// of an in-progress upload.
func (t *FileTranslator) MakePacketRequest(deviceKey string, req wire.PacketRequest) (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeFile).
		Gateway(t.GatewayKey).Device(deviceKey).Raw("binary").String()
	payload, err = wire.EncodePacketRequest(req)
	return
}

// MakeStatus builds the d2p/file status channel and payload. errCode is
// only meaningful alongside wire.FileError and is otherwise nil.
func (t *FileTranslator) MakeStatus(deviceKey string, status wire.FileStatusCode, errCode *wire.FileErrorCode) (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeFile).
		Gateway(t.GatewayKey).Device(deviceKey).Raw("status").String()
	payload, err = wire.EncodeFileStatus(status, errCode)
	return
}

// MakeURLDownloadStatus builds the d2p/file url-download status channel
// and payload.
func (t *FileTranslator) MakeURLDownloadStatus(deviceKey string, s wire.FileURLDownloadStatus) (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeFile).
		Gateway(t.GatewayKey).Device(deviceKey).Raw("url_status").String()
	payload, err = wire.EncodeFileURLDownloadStatus(s)
	return
}

// MakeFileList builds the d2p/file list channel and payload enumerating
// the gateway's local file inventory.
func (t *FileTranslator) MakeFileList(entries []wire.FileListEntry) (topic string, payload []byte, err error) {
	topic = channel.New(channel.DeviceToPlatform, channel.TypeFile).
		Gateway(t.GatewayKey).Raw("list").String()
	payload, err = wire.EncodeFileList(entries)
	return
}
