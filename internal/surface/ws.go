/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package surface

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/huginn/internal/audiograph"
	"github.com/friendsincode/huginn/internal/auth"
	"github.com/friendsincode/huginn/internal/broadcast"
	"github.com/friendsincode/huginn/internal/protocol"
	"github.com/friendsincode/huginn/internal/seek"
)

const pingInterval = 15 * time.Second

// inboundQueue bounds commands a surface can have in flight.
const inboundQueue = 16

// SeekHandler relays a surface seek intent.
type SeekHandler interface {
	Handle(ctx context.Context, source string, targetMS int64) (int64, error)
}

// Publisher fans surface-originated messages to the other surfaces,
// locally or through the relay.
type Publisher interface {
	Publish(msg protocol.Message)
}

// Gateway upgrades surface connections and bridges them to the hub: hub
// messages flow out over the socket, surface messages flow back into
// the seek path and the bus.
type Gateway struct {
	log     zerolog.Logger
	bus     Publisher
	hub     *broadcast.Hub
	seeks   SeekHandler
	gate    *audiograph.Gate
	tracker *Tracker
}

// NewGateway wires the surface gateway.
func NewGateway(b Publisher, hub *broadcast.Hub, seeks SeekHandler, gate *audiograph.Gate, logger zerolog.Logger) *Gateway {
	return &Gateway{
		log:     logger.With().Str("component", "surface").Logger(),
		bus:     b,
		hub:     hub,
		seeks:   seeks,
		gate:    gate,
		tracker: NewTracker(),
	}
}

// HandleSurface serves GET /ws/surface. The auth middleware has already
// validated the token; unauthenticated requests never reach here.
func (g *Gateway) HandleSurface(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		g.log.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	client := g.hub.Register()
	defer g.hub.Unregister(client)

	g.log.Debug().
		Str("surface_id", claims.SurfaceID).
		Str("client_id", client.ID).
		Msg("surface connected")

	ctx := r.Context()
	done := make(chan struct{})
	inbound := make(chan protocol.Message, inboundQueue)

	// Read surface messages into the command channel.
	go func() {
		defer close(done)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ws.CloseStatus(err) == ws.StatusNormalClosure {
					return
				}
				g.log.Debug().Err(err).Msg("websocket read ended")
				return
			}

			msg, err := protocol.Unmarshal(data)
			if err != nil {
				g.log.Warn().Err(err).Msg("invalid surface message")
				continue
			}

			select {
			case inbound <- msg:
			default:
				g.log.Warn().Str("type", string(msg.Type)).Msg("inbound channel full, dropping message")
			}
		}
	}()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusGoingAway, "server shutting down")
			return

		case <-done:
			conn.Close(ws.StatusNormalClosure, "client disconnected")
			return

		case <-client.Done():
			code, reason := client.CloseInfo()
			if code == 0 {
				code = int(ws.StatusNormalClosure)
				reason = "detached"
			}
			conn.Close(ws.StatusCode(code), reason)
			return

		case <-pingTicker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				g.log.Debug().Err(err).Msg("ping failed")
				return
			}

		case msg := <-client.Messages():
			data, err := protocol.Marshal(msg)
			if err != nil {
				g.log.Error().Err(err).Str("type", string(msg.Type)).Msg("marshal outbound message")
				continue
			}
			if err := conn.Write(ctx, ws.MessageText, data); err != nil {
				g.log.Debug().Err(err).Msg("write failed")
				return
			}

		case msg := <-inbound:
			g.handleInbound(ctx, claims, msg)
		}
	}
}

// handleInbound dispatches one surface-originated message. Seek and
// settings changes are user gestures; tab announces are not.
func (g *Gateway) handleInbound(ctx context.Context, claims *auth.Claims, msg protocol.Message) {
	switch p := msg.Payload.(type) {
	case protocol.SeekRequest:
		if !claims.CanControl() {
			g.log.Warn().Str("surface_id", claims.SurfaceID).Msg("seek from read-only surface ignored")
			return
		}
		if _, err := g.seeks.Handle(ctx, seek.SourceSurface, p.TimeMS); err != nil {
			g.log.Warn().Err(err).Int64("target_ms", p.TimeMS).Msg("surface seek failed")
		}

	case protocol.SettingsUpdate:
		g.gate.Unlock()
		g.bus.Publish(msg)

	case protocol.TabCheck:
		if g.tracker.Observe(p.TabID, time.Now()) {
			g.log.Warn().Str("tab_id", p.TabID).Msg("overlapping surface tabs detected")
		}
		g.bus.Publish(msg)

	default:
		g.log.Warn().Str("type", string(msg.Type)).Msg("unexpected inbound message type")
	}
}
