// Package filetransfer implements the gateway's chunked binary upload
// protocol and URL-initiated downloads, both converging on the same
// local file inventory.
package filetransfer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rustyeddy/iotgw/channel/wire"
	"github.com/rustyeddy/iotgw/metrics"
	"github.com/rustyeddy/iotgw/persistence"
	"github.com/rustyeddy/iotgw/pipeline"
	"github.com/rustyeddy/iotgw/protocol"
)

const (
	// DefaultMaxFileSize bounds a single accepted upload.
	DefaultMaxFileSize = 100 * 1024 * 1024
	// DefaultMaxPacket is the largest chunk payload requested, inclusive
	// of the 64-byte prev-hash/hash framing.
	DefaultMaxPacket = 1024
	// maxChunkRetryCount bounds how many times a single chunk is
	// re-requested after a hash mismatch before the transfer fails.
	maxChunkRetryCount = 3
	// packetRequestTimeout is how long the manager waits for a
	// requested chunk before re-requesting it.
	packetRequestTimeout = 6 * time.Second
)

// chunkHeaderOverhead is the wire framing cost the size/packet
// calculations in HandleUploadInitiate subtract, matching the
// [prev_hash(32B)]...[hash(32B)] envelope in channel/wire.Chunk.
const chunkHeaderOverhead = 2 * wire.HashSize

// upload tracks one in-progress chunked, platform-initiated file transfer.
// A gateway accepts only one of these at a time, mirroring the archived
// implementation's single active-download slot.
type upload struct {
	name        string
	deviceKey   string
	size        int64
	targetHash  []byte
	packetSize  int
	packetCount int

	nextChunk int
	prevHash  [wire.HashSize]byte
	data      []byte
	retries   int
}

// Manager orchestrates both transfer paths (chunked upload and
// URL-initiated download) over one local file inventory.
//
// Grounded on original_source/src/FileHandler.cpp for the chunk-hash
// chaining state machine, with the size/packet arithmetic and
// timeout/retry bounds (6s per-chunk timeout, 3 retries) matching the
// archived gateway's file-transfer constants; the URL-download path
// follows qbee-io-qbee-cli/filemanager.go's fetch-then-digest idiom (see
// download.go).
type Manager struct {
	dir         string
	maxFileSize int64
	maxPacket   int

	repo persistence.FileRepo
	tr   *protocol.FileTranslator
	out  *pipeline.Publisher
	log  *slog.Logger

	downloader *URLDownloader

	mu      sync.Mutex
	current *upload
	timer   *time.Timer

	downloads   map[string]*downloadState
	downloadsMu sync.Mutex
	downloadsCv *sync.Cond
	gcRunning   bool
	gcStop      bool
}

// New creates a Manager storing completed transfers under dir.
func New(gatewayKey, dir string, repo persistence.FileRepo, out *pipeline.Publisher, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		dir:         dir,
		maxFileSize: DefaultMaxFileSize,
		maxPacket:   DefaultMaxPacket,
		repo:        repo,
		tr:          &protocol.FileTranslator{GatewayKey: gatewayKey},
		out:         out,
		log:         log.With("component", "filetransfer"),
		downloads:   make(map[string]*downloadState),
	}
	m.downloadsCv = sync.NewCond(&m.downloadsMu)
	return m
}

// SetDownloader installs the URL downloader used for URL-download-initiate
// requests. Without one, such requests are answered
// TransferProtocolOff.
func (m *Manager) SetDownloader(d *URLDownloader) {
	m.downloader = d
}

// SetLimits overrides the default max file size / max packet size. Must
// be called before any transfer starts.
func (m *Manager) SetLimits(maxFileSize int64, maxPacket int) {
	m.maxFileSize = maxFileSize
	m.maxPacket = maxPacket
}

// HandleUploadInitiate processes a platform's file_upload_initiate
// request; deviceKey only selects the addressing of the replies.
func (m *Manager) HandleUploadInitiate(ctx context.Context, deviceKey string, req wire.UploadInitiate) error {
	if req.Name == "" || req.Size <= 0 || req.Hash == "" {
		return m.publishStatus(ctx, deviceKey, wire.FileError)
	}
	if req.Size > m.maxFileSize {
		return m.publishStatus(ctx, deviceKey, wire.FileError)
	}

	hashBytes, err := req.HashBytes()
	if err != nil {
		return m.publishStatus(ctx, deviceKey, wire.FileError)
	}

	if existing, found, err := m.repo.Get(ctx, req.Name); err == nil && found {
		if existing.Hash == fmt.Sprintf("%x", hashBytes) {
			return m.publishStatus(ctx, deviceKey, wire.FileReady)
		}
		return m.publishStatus(ctx, deviceKey, wire.FileHashMismatch)
	}

	effectivePacket := m.maxPacket
	if int(req.Size)+chunkHeaderOverhead < effectivePacket {
		effectivePacket = int(req.Size) + chunkHeaderOverhead
	}
	packetCount := int(math.Ceil(float64(req.Size) / float64(m.maxPacket-chunkHeaderOverhead)))

	m.mu.Lock()
	m.current = &upload{
		name:        req.Name,
		deviceKey:   deviceKey,
		size:        req.Size,
		targetHash:  hashBytes,
		packetSize:  effectivePacket,
		packetCount: packetCount,
		data:        make([]byte, 0, req.Size),
	}
	m.mu.Unlock()
	metrics.FileTransfersActive.Inc()

	if err := m.publishStatus(ctx, deviceKey, wire.FileTransferStatus); err != nil {
		return err
	}
	return m.requestChunk(ctx)
}

func (m *Manager) requestChunk(ctx context.Context) error {
	m.mu.Lock()
	u := m.current
	m.mu.Unlock()
	if u == nil {
		return nil
	}

	m.resetTimeoutLocked(ctx)

	topic, payload, err := m.tr.MakePacketRequest(u.deviceKey, wire.PacketRequest{
		FileName:   u.name,
		ChunkIndex: u.nextChunk,
		ChunkSize:  u.packetSize,
	})
	if err != nil {
		return fmt.Errorf("filetransfer: encoding packet request: %w", err)
	}
	return m.out.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: payload, QoS: 1})
}

func (m *Manager) resetTimeoutLocked(ctx context.Context) {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(packetRequestTimeout, func() {
		m.handleChunkTimeout(ctx)
	})
	m.mu.Unlock()
}

func (m *Manager) handleChunkTimeout(ctx context.Context) {
	m.mu.Lock()
	u := m.current
	m.mu.Unlock()
	if u == nil {
		return
	}
	m.log.Warn("chunk request timed out, retrying", "file", u.name, "chunk", u.nextChunk)
	if err := m.requestChunk(ctx); err != nil {
		m.log.Error("failed to re-request chunk after timeout", "file", u.name, "error", err)
	}
}

// HandleChunk processes one binary chunk for the current active upload.
func (m *Manager) HandleChunk(ctx context.Context, deviceKey string, payload []byte) error {
	m.mu.Lock()
	u := m.current
	m.mu.Unlock()
	if u == nil || u.deviceKey != deviceKey {
		return nil
	}

	chunk, err := wire.DecodeChunk(payload)
	if err != nil || chunk.PrevHash != u.prevHash {
		return m.retryOrFail(ctx, u)
	}

	m.mu.Lock()
	u.data = append(u.data, chunk.Data...)
	u.prevHash = chunk.Hash
	u.nextChunk++
	u.retries = 0
	done := u.nextChunk >= u.packetCount
	m.mu.Unlock()

	if done {
		return m.finishUpload(ctx, u)
	}
	return m.requestChunk(ctx)
}

func (m *Manager) retryOrFail(ctx context.Context, u *upload) error {
	m.mu.Lock()
	u.retries++
	tooManyRetries := u.retries > maxChunkRetryCount
	m.mu.Unlock()

	if tooManyRetries {
		m.clearCurrent()
		code := wire.FileErrRetryCountExceeded
		return m.publishStatusWithError(ctx, u.deviceKey, wire.FileError, &code)
	}
	m.log.Warn("chunk hash mismatch, re-requesting", "file", u.name, "chunk", u.nextChunk, "attempt", u.retries)
	return m.requestChunk(ctx)
}

func (m *Manager) finishUpload(ctx context.Context, u *upload) error {
	sum := sha256.Sum256(u.data)
	if !bytes.Equal(sum[:], u.targetHash) {
		m.clearCurrent()
		return m.publishStatus(ctx, u.deviceKey, wire.FileHashMismatch)
	}

	path := filepath.Join(m.dir, u.name)
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("filetransfer: creating download directory: %w", err)
	}
	if err := os.WriteFile(path, u.data, 0o644); err != nil {
		return fmt.Errorf("filetransfer: writing received file: %w", err)
	}

	if err := m.repo.Save(ctx, persistence.FileRecord{
		Name: u.name,
		Size: u.size,
		Hash: fmt.Sprintf("%x", sum),
	}); err != nil {
		return fmt.Errorf("filetransfer: recording received file: %w", err)
	}

	m.clearCurrent()
	if err := m.publishStatus(ctx, u.deviceKey, wire.FileReady); err != nil {
		return err
	}
	return m.PublishFileList(ctx)
}

// HandleUploadAbort cancels the current upload for name, if it is the
// one in progress.
func (m *Manager) HandleUploadAbort(ctx context.Context, deviceKey string, abort wire.UploadAbort) error {
	m.mu.Lock()
	u := m.current
	m.mu.Unlock()
	if u == nil || u.name != abort.Name {
		return nil
	}
	m.clearCurrent()
	return m.publishStatus(ctx, deviceKey, wire.FileAborted)
}

func (m *Manager) clearCurrent() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.current = nil
	m.mu.Unlock()
	metrics.FileTransfersActive.Dec()
}

func (m *Manager) publishStatus(ctx context.Context, deviceKey string, status wire.FileStatusCode) error {
	return m.publishStatusWithError(ctx, deviceKey, status, nil)
}

func (m *Manager) publishStatusWithError(ctx context.Context, deviceKey string, status wire.FileStatusCode, errCode *wire.FileErrorCode) error {
	topic, payload, err := m.tr.MakeStatus(deviceKey, status, errCode)
	if err != nil {
		return fmt.Errorf("filetransfer: encoding status: %w", err)
	}
	return m.out.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: payload, QoS: 1})
}
