/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package broadcast fans bus messages out to attached surfaces. Each
// surface gets a buffered outbound queue with drop-on-full so one slow
// websocket never stalls the rest, plus a replay of sticky state and
// recent frames so a late joiner paints immediately.
package broadcast

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/huginn/internal/bus"
	"github.com/friendsincode/huginn/internal/protocol"
	"github.com/friendsincode/huginn/internal/telemetry"
)

// outboundQueue is the per-surface buffer depth. Roughly 2.5 s of frame
// traffic; a surface further behind than that is dropped-to, not waited
// for.
const outboundQueue = 256

// frameRingSize bounds the recent AUDIO_DATA replay for late joiners.
// 32 frames at capture cadence is about a third of a second, enough to
// paint moving bars on the first render.
const frameRingSize = 32

// stickyTypes are replayed latest-per-type to every new surface. Frame
// traffic is excluded; the ring covers it.
var stickyTypes = map[protocol.Type]struct{}{
	protocol.TypeSettingsUpdate: {},
	protocol.TypeSongUpdate:     {},
	protocol.TypeSongData:       {},
	protocol.TypeIdleAnimation:  {},
	protocol.TypeProgressUpdate: {},
}

// replayOrder fixes the sticky replay sequence so a joining surface
// always learns settings and song identity before positions.
var replayOrder = []protocol.Type{
	protocol.TypeSettingsUpdate,
	protocol.TypeSongUpdate,
	protocol.TypeSongData,
	protocol.TypeIdleAnimation,
	protocol.TypeProgressUpdate,
}

// Client is one attached surface, as seen by the hub. The transport
// layer drains Messages and watches Done.
type Client struct {
	ID string

	ch   chan protocol.Message
	done chan struct{}

	mu     sync.Mutex
	closed bool
	code   int
	reason string
}

// Messages is the outbound queue for this surface.
func (c *Client) Messages() <-chan protocol.Message { return c.ch }

// Done closes when the hub disconnects the surface.
func (c *Client) Done() <-chan struct{} { return c.done }

// CloseInfo returns the close code and reason set by the hub, valid
// after Done closes. A zero code means a plain unregister.
func (c *Client) CloseInfo() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code, c.reason
}

func (c *Client) send(msg protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- msg:
	default:
		// Surface is behind; frame and progress traffic is disposable.
	}
}

func (c *Client) close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.code = code
	c.reason = reason
	close(c.done)
}

// Hub owns the surface set and the replay state.
type Hub struct {
	log zerolog.Logger
	bus *bus.Bus

	mu      sync.RWMutex
	clients map[*Client]struct{}
	sticky  map[protocol.Type]protocol.Message
	frames  *frameRing
}

// NewHub creates a hub bound to the broadcast bus.
func NewHub(b *bus.Bus, logger zerolog.Logger) *Hub {
	return &Hub{
		log:     logger.With().Str("component", "broadcast").Logger(),
		bus:     b,
		clients: make(map[*Client]struct{}),
		sticky:  make(map[protocol.Type]protocol.Message),
		frames:  newFrameRing(frameRingSize),
	}
}

// Run subscribes the hub to every surface-bound message type and fans
// messages out until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	sub := h.bus.Subscribe(
		protocol.TypeSongUpdate,
		protocol.TypeSongData,
		protocol.TypeProgressUpdate,
		protocol.TypeAudioData,
		protocol.TypeIdleAnimation,
		protocol.TypeSettingsUpdate,
		protocol.TypeTabCheck,
	)
	defer h.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			h.fanOut(msg)
		}
	}
}

// fanOut records replay state and delivers to every attached surface.
func (h *Hub) fanOut(msg protocol.Message) {
	h.mu.Lock()
	if _, ok := stickyTypes[msg.Type]; ok {
		h.sticky[msg.Type] = msg
	}
	switch msg.Type {
	case protocol.TypeAudioData:
		h.frames.push(msg)
	case protocol.TypeSongUpdate:
		// Frames of the previous song are stale the moment the slot
		// changes; a late joiner must not paint them.
		h.frames.clear()
	}
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.send(msg)
	}
}

// Register attaches a new surface and queues the replay: sticky state
// in a fixed order, then recent frames. The fresh queue is larger than
// any replay, so nothing drops here.
func (h *Hub) Register() *Client {
	c := &Client{
		ID:   uuid.NewString(),
		ch:   make(chan protocol.Message, outboundQueue),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	for _, t := range replayOrder {
		if msg, ok := h.sticky[t]; ok {
			c.ch <- msg
		}
	}
	for _, msg := range h.frames.recent() {
		c.ch <- msg
	}
	h.mu.Unlock()

	telemetry.SurfaceConnections.Inc()
	h.log.Info().Str("surface_id", c.ID).Int("surfaces", count).Msg("surface attached")
	return c
}

// Unregister detaches a surface. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, attached := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()

	if !attached {
		return
	}
	c.close(0, "")
	telemetry.SurfaceConnections.Dec()
	h.log.Info().Str("surface_id", c.ID).Int("surfaces", count).Msg("surface detached")
}

// CloseAll disconnects every surface with one close code, used for the
// terminal auth-lost redirect.
func (h *Hub) CloseAll(code int, reason string) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close(code, reason)
		telemetry.SurfaceConnections.Dec()
	}
	if len(clients) > 0 {
		h.log.Warn().Int("surfaces", len(clients)).Int("code", code).Str("reason", reason).Msg("all surfaces disconnected")
	}
}

// ClientCount returns the number of attached surfaces.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// frameRing holds the most recent frame messages for late joiners.
type frameRing struct {
	msgs []protocol.Message
	pos  int
	full bool
}

func newFrameRing(size int) *frameRing {
	return &frameRing{msgs: make([]protocol.Message, size)}
}

func (r *frameRing) push(msg protocol.Message) {
	r.msgs[r.pos] = msg
	r.pos = (r.pos + 1) % len(r.msgs)
	if r.pos == 0 {
		r.full = true
	}
}

// recent returns the buffered frames oldest-first.
func (r *frameRing) recent() []protocol.Message {
	if !r.full {
		return append([]protocol.Message(nil), r.msgs[:r.pos]...)
	}
	out := make([]protocol.Message, 0, len(r.msgs))
	out = append(out, r.msgs[r.pos:]...)
	out = append(out, r.msgs[:r.pos]...)
	return out
}

func (r *frameRing) clear() {
	for i := range r.msgs {
		r.msgs[i] = protocol.Message{}
	}
	r.pos = 0
	r.full = false
}
