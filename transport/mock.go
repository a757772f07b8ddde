package transport

import (
	"context"
	"sync"
)

// Mock is an in-memory Transport for tests: Publish calls are matched
// against registered Subscribe patterns with MatchFunc (tests set it to
// channel.Match for MQTT wildcard rules) or, when MatchFunc is nil, by
// exact topic equality, with no network involved.
//
// Grounded on rustyeddy-otto's nobrokerConn/node trie (the "no external
// broker" messenger backend), simplified to a flat subscription list
// since test fixtures rarely exceed a handful of topics.
type Mock struct {
	mu        sync.Mutex
	connected bool
	will      *willMsg
	subs      map[int]mockSub
	nextID    int

	onConnect func()
	onLost    func(error)

	// Published records every message handed to Publish, in order, for
	// assertions in tests.
	Published []Message
}

type willMsg struct {
	topic   string
	payload []byte
	retain  bool
	qos     byte
}

type mockSub struct {
	topic   string
	handler Handler
}

// MatchFunc allows tests to supply a custom wildcard matcher; if nil,
// exact topic equality is used.
var MatchFunc func(pattern, topic string) bool

// NewMock returns a disconnected Mock transport.
func NewMock() *Mock {
	return &Mock{subs: make(map[int]mockSub)}
}

func (m *Mock) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.connected = true
	cb := m.onConnect
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (m *Mock) Disconnect(ctx context.Context) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Mock) SetWill(topic string, payload []byte, retain bool, qos byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.will = &willMsg{topic: topic, payload: payload, retain: retain, qos: qos}
	return nil
}

// Will returns the last configured last-will message, or nil.
func (m *Mock) Will() (topic string, payload []byte, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.will == nil {
		return "", nil, false
	}
	return m.will.topic, m.will.payload, true
}

func (m *Mock) Publish(ctx context.Context, topic string, payload []byte, retain bool, qos byte) error {
	m.mu.Lock()
	m.Published = append(m.Published, Message{Topic: topic, Payload: payload, Retain: retain, QoS: qos})
	var matched []Handler
	for _, s := range m.subs {
		if topicMatches(s.topic, topic) {
			matched = append(matched, s.handler)
		}
	}
	m.mu.Unlock()

	for _, h := range matched {
		h(Message{Topic: topic, Payload: payload, Retain: retain, QoS: qos})
	}
	return nil
}

func (m *Mock) Subscribe(ctx context.Context, topic string, qos byte, handler Handler) (Unsubscribe, error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = mockSub{topic: topic, handler: handler}
	m.mu.Unlock()

	return func() error {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		return nil
	}, nil
}

func (m *Mock) SetConnectionLostHandler(fn func(error)) { m.onLost = fn }
func (m *Mock) SetOnConnect(fn func())                  { m.onConnect = fn }

// SimulateDisconnect invokes the registered connection-lost handler, as if
// the broker connection dropped.
func (m *Mock) SimulateDisconnect(err error) {
	m.mu.Lock()
	m.connected = false
	cb := m.onLost
	m.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func topicMatches(pattern, topic string) bool {
	if MatchFunc != nil {
		return MatchFunc(pattern, topic)
	}
	return pattern == topic
}
