package filetransfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rustyeddy/iotgw/channel/wire"
	"github.com/rustyeddy/iotgw/metrics"
	"github.com/rustyeddy/iotgw/persistence"
	"github.com/rustyeddy/iotgw/pipeline"
)

// downloadState tracks one in-flight URL-initiated download, kept in
// Manager.downloads until the GC sweep removes it.
type downloadState struct {
	url      string
	fileName string
	complete bool
	err      error
}

// URLDownloader fetches a URL to a local file and reports its SHA-256,
// modeled on qbee-io-qbee-cli/filemanager.go's getFileDigest: stream the
// body through the digest while writing to a temp file, then atomically
// rename into place so a partial download is never visible under its
// final name.
type URLDownloader struct {
	client *http.Client
	dir    string
}

// NewURLDownloader creates a downloader that saves completed files under
// dir, using client for the HTTP fetch (http.DefaultClient if nil).
func NewURLDownloader(dir string, client *http.Client) *URLDownloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &URLDownloader{client: client, dir: dir}
}

// Download fetches url, naming the resulting file after url's final path
// segment, and returns that name plus the hex-encoded SHA-256 digest.
func (d *URLDownloader) Download(ctx context.Context, url string) (name string, hash string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("filetransfer: building download request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("filetransfer: downloading %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("filetransfer: downloading %s: status %s", url, resp.Status)
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("filetransfer: creating download directory: %w", err)
	}

	tmp, err := os.CreateTemp(d.dir, ".download-*")
	if err != nil {
		return "", "", fmt.Errorf("filetransfer: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	digest := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, digest), resp.Body); err != nil {
		tmp.Close()
		return "", "", fmt.Errorf("filetransfer: writing downloaded body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", fmt.Errorf("filetransfer: closing temp file: %w", err)
	}

	name = filepath.Base(url)
	if name == "" || name == "." || name == "/" {
		name = fmt.Sprintf("download-%d", time.Now().UnixNano())
	}
	finalPath := filepath.Join(d.dir, name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", "", fmt.Errorf("filetransfer: moving downloaded file into place: %w", err)
	}

	return name, hex.EncodeToString(digest.Sum(nil)), nil
}

// HandleURLDownloadInitiate starts a URL-initiated download in the
// background. With no downloader configured, the request is answered
// TransferProtocolOff immediately.
func (m *Manager) HandleURLDownloadInitiate(ctx context.Context, deviceKey string, req wire.URLDownloadInitiate) error {
	if m.downloader == nil {
		return m.publishStatus(ctx, deviceKey, wire.TransferProtocolOff)
	}

	m.downloadsMu.Lock()
	m.downloads[req.URL] = &downloadState{url: req.URL}
	m.downloadsMu.Unlock()
	metrics.FileTransfersActive.Inc()

	go m.runDownload(ctx, deviceKey, req.URL)
	return nil
}

func (m *Manager) runDownload(ctx context.Context, deviceKey, url string) {
	defer metrics.FileTransfersActive.Dec()
	name, hash, err := m.downloader.Download(ctx, url)

	m.downloadsMu.Lock()
	ds := m.downloads[url]
	if ds != nil {
		ds.complete = true
		ds.err = err
		ds.fileName = name
	}
	m.downloadsMu.Unlock()
	m.downloadsCv.Broadcast()

	if err != nil {
		m.log.Error("url download failed", "url", url, "error", err)
		return
	}

	if err := m.repo.Save(ctx, persistence.FileRecord{Name: name, Hash: hash}); err != nil {
		m.log.Error("failed to record downloaded file", "file", name, "error", err)
		return
	}

	topic, payload, err := m.tr.MakeURLDownloadStatus(deviceKey, wire.FileURLDownloadStatus{URL: url, FileName: name})
	if err != nil {
		m.log.Error("failed to encode url download status", "error", err)
		return
	}
	if err := m.out.Enqueue(pipeline.OutboundMessage{Topic: topic, Payload: payload, QoS: 1}); err != nil {
		m.log.Error("failed to queue url download status", "error", err)
		return
	}
	if err := m.PublishFileList(ctx); err != nil {
		m.log.Error("failed to publish refreshed file list", "error", err)
	}
}

// HandleURLDownloadAbort marks an in-flight download complete without
// waiting for it; the in-progress fetch itself is left to its context's
// cancellation.
func (m *Manager) HandleURLDownloadAbort(url string) {
	m.downloadsMu.Lock()
	if ds, ok := m.downloads[url]; ok {
		ds.complete = true
	}
	m.downloadsMu.Unlock()
	m.downloadsCv.Broadcast()
}
