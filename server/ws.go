package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is one routed channel/payload pair broadcast to every connected
// debug websocket client.
type Event struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

// Websock wraps one upgraded connection with a buffered write queue, so
// a slow or stalled client can never block the broadcaster.
type Websock struct {
	*websocket.Conn
	Done   chan struct{}
	writeQ chan *Event
}

// NewWebsock wraps conn. Callers that want events written to the
// connection must start writePump themselves (WServe.ServeHTTP does
// this for live connections); NewWebsock itself only allocates state,
// so it is safe to call with a connection that is not yet usable.
func NewWebsock(conn *websocket.Conn) *Websock {
	return &Websock{
		Conn:   conn,
		Done:   make(chan struct{}),
		writeQ: make(chan *Event, 64),
	}
}

// GetWriteQ returns the channel callers use to hand this connection an
// event to write.
func (w *Websock) GetWriteQ() chan *Event {
	return w.writeQ
}

func (w *Websock) writePump() {
	for {
		select {
		case ev, ok := <-w.writeQ:
			if !ok {
				return
			}
			if w.Conn == nil {
				continue
			}
			if err := w.WriteJSON(ev); err != nil {
				slog.Warn("websocket write failed, closing", "error", err)
				close(w.Done)
				return
			}
		case <-w.Done:
			return
		}
	}
}

var (
	websocksMu sync.Mutex
	// Websocks holds every currently-connected debug websocket client.
	Websocks []*Websock

	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
)

// checkOrigin allows any origin: this endpoint is a read-only debug
// stream with no authenticated session to protect.
func checkOrigin(r *http.Request) bool {
	return true
}

// Broadcast fans topic/payload out to every connected debug websocket
// client. A client whose write queue is full is dropped rather than
// allowed to back-pressure the broadcaster.
func Broadcast(topic string, payload []byte) {
	websocksMu.Lock()
	defer websocksMu.Unlock()

	ev := &Event{Topic: topic, Payload: payload}
	live := Websocks[:0]
	for _, ws := range Websocks {
		select {
		case ws.writeQ <- ev:
			live = append(live, ws)
		default:
			close(ws.Done)
		}
	}
	Websocks = live
}

// WServe upgrades an HTTP request to a websocket and registers the
// resulting connection to receive every broadcast Event until it
// disconnects.
type WServe struct{}

func (WServe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	ws := NewWebsock(conn)
	websocksMu.Lock()
	Websocks = append(Websocks, ws)
	websocksMu.Unlock()

	go ws.writePump()
	<-ws.Done
	conn.Close()
}
