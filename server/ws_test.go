package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func resetWebsocks() {
	websocksMu.Lock()
	Websocks = nil
	websocksMu.Unlock()
}

func TestNewWebsock(t *testing.T) {
	ws := NewWebsock(nil)

	assert.NotNil(t, ws, "NewWebsock() should not return nil")
	assert.Nil(t, ws.Conn, "Connection should be nil as passed")
	assert.NotNil(t, ws.Done, "Done channel should be initialized")
	assert.NotNil(t, ws.writeQ, "writeQ channel should be initialized")

	select {
	case <-ws.Done:
		t.Error("Done channel should not be closed initially")
	default:
	}
}

func TestWebsockGetWriteQ(t *testing.T) {
	ws := NewWebsock(nil)

	wq := ws.GetWriteQ()
	assert.NotNil(t, wq, "GetWriteQ() should not return nil")
	assert.Equal(t, ws.writeQ, wq, "Should return the same channel instance")

	ev := &Event{Topic: "d2p/sensor_reading/g/GW1/d/D1", Payload: []byte(`{"value":"21.5"}`)}
	select {
	case wq <- ev:
	case <-time.After(100 * time.Millisecond):
		t.Error("write to queue should not block")
	}

	select {
	case received := <-wq:
		assert.Same(t, ev, received)
	case <-time.After(100 * time.Millisecond):
		t.Error("should be able to read back from queue")
	}
}

func TestCheckOrigin(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws/events", nil)
	req.Header.Set("Origin", "http://example.com")
	assert.True(t, checkOrigin(req))
}

func TestUpgraderConfiguration(t *testing.T) {
	assert.Equal(t, 1024, upgrader.ReadBufferSize)
	assert.Equal(t, 1024, upgrader.WriteBufferSize)
	assert.NotNil(t, upgrader.CheckOrigin)
}

func TestWServeServeHTTPRejectsPlainRequest(t *testing.T) {
	resetWebsocks()

	req := httptest.NewRequest("GET", "/ws/events", nil)
	w := httptest.NewRecorder()

	WServe{}.ServeHTTP(w, req)

	assert.Equal(t, 400, w.Code, "non-websocket request should fail the upgrade")
	assert.Equal(t, 0, len(Websocks), "a failed upgrade should not register a connection")
}

func TestBroadcastFansOutAndDropsFullQueues(t *testing.T) {
	resetWebsocks()

	open := NewWebsock(nil)
	full := NewWebsock(nil)
	for i := 0; i < cap(full.writeQ); i++ {
		full.writeQ <- &Event{Topic: "filler"}
	}

	websocksMu.Lock()
	Websocks = []*Websock{open, full}
	websocksMu.Unlock()

	Broadcast("d2p/events/g/GW1/d/D1", []byte(`{"type":"motion"}`))

	select {
	case ev := <-open.writeQ:
		assert.Equal(t, "d2p/events/g/GW1/d/D1", ev.Topic)
	case <-time.After(100 * time.Millisecond):
		t.Error("open connection should have received the broadcast event")
	}

	select {
	case <-full.Done:
	case <-time.After(100 * time.Millisecond):
		t.Error("full connection should have been dropped")
	}

	websocksMu.Lock()
	defer websocksMu.Unlock()
	assert.Equal(t, 1, len(Websocks), "the dropped connection should be removed from the registry")
}
