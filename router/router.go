// Package router dispatches inbound transport.Message values to the
// handlers registered against each side of the gateway (platform-facing
// and device-facing), matching MQTT wildcard subscription patterns and
// serializing delivery through a single worker so handlers never race
// each other.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rustyeddy/iotgw/channel"
	"github.com/rustyeddy/iotgw/transport"
)

// HandlerFunc processes one inbound message already matched against a
// registered pattern.
type HandlerFunc func(ctx context.Context, msg transport.Message) error

// Token identifies a registered handler so it can later be removed
// without the caller holding onto the handler closure itself, mirroring
// the registration-id indirection used for callback lifetime management.
type Token uint64

type registration struct {
	token   Token
	pattern string
	handler HandlerFunc
}

// Router owns one transport's subscriptions and fans out every message it
// receives to every registration whose pattern matches, via a single
// background worker so handler execution never overlaps.
//
// Grounded on the buffered-channel-plus-worker-goroutine pattern in
// rustyeddy-otto/station/station_manager.go (EventQ), adapted so the
// queue entry is the raw transport message rather than a parsed event,
// and wildcard matching substitutes for its exact-topic trie.
type Router struct {
	log *slog.Logger

	mu    sync.RWMutex
	regs  []registration
	nextT uint64

	queue  chan queuedMsg
	done   chan struct{}
	closed int32
}

type queuedMsg struct {
	ctx context.Context
	msg transport.Message
}

// New creates a Router with the given inbound queue depth. A depth of 0
// uses a reasonable default.
func New(queueDepth int, log *slog.Logger) *Router {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	if log == nil {
		log = slog.Default()
	}
	r := &Router{
		log:   log.With("component", "router"),
		queue: make(chan queuedMsg, queueDepth),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Handle registers handler against pattern (an MQTT-style topic filter,
// possibly containing + and # wildcards) and returns a Token that Remove
// can later use to cancel it.
func (r *Router) Handle(pattern string, handler HandlerFunc) Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextT++
	tok := Token(r.nextT)
	r.regs = append(r.regs, registration{token: tok, pattern: pattern, handler: handler})
	return tok
}

// Remove cancels a previously registered handler. A no-op if tok is
// unknown or already removed.
func (r *Router) Remove(tok Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, reg := range r.regs {
		if reg.token == tok {
			r.regs = append(r.regs[:i], r.regs[i+1:]...)
			return
		}
	}
}

// Dispatch enqueues msg for delivery to every matching handler. It never
// blocks the transport's own receive goroutine for longer than it takes
// to enqueue: if the queue is full the message is dropped and logged,
// since an MQTT subscriber callback must return quickly.
func (r *Router) Dispatch(ctx context.Context, msg transport.Message) {
	if atomic.LoadInt32(&r.closed) != 0 {
		return
	}
	select {
	case r.queue <- queuedMsg{ctx: ctx, msg: msg}:
	default:
		r.log.Warn("inbound queue full, dropping message", "topic", msg.Topic)
	}
}

func (r *Router) run() {
	for {
		select {
		case qm := <-r.queue:
			r.deliver(qm)
		case <-r.done:
			return
		}
	}
}

func (r *Router) deliver(qm queuedMsg) {
	r.mu.RLock()
	matches := make([]registration, 0, 1)
	for _, reg := range r.regs {
		if channel.Match(reg.pattern, qm.msg.Topic) {
			matches = append(matches, reg)
		}
	}
	r.mu.RUnlock()

	if len(matches) == 0 {
		r.log.Debug("no handler matched", "topic", qm.msg.Topic)
		return
	}

	for _, reg := range matches {
		if err := reg.handler(qm.ctx, qm.msg); err != nil {
			r.log.Error("handler failed", "topic", qm.msg.Topic, "pattern", reg.pattern, "error", err)
		}
	}
}

// Close stops the worker goroutine. Subsequent Dispatch calls are no-ops.
func (r *Router) Close() error {
	if !atomic.CompareAndSwapInt32(&r.closed, 0, 1) {
		return fmt.Errorf("router: already closed")
	}
	close(r.done)
	return nil
}
