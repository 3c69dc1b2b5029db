/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package relay

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/huginn/internal/bus"
	"github.com/friendsincode/huginn/internal/protocol"
)

const natsSubjectPrefix = "huginn.broadcast."

// NATSRelay mirrors broadcast messages over NATS core subjects, one
// subject per message type.
type NATSRelay struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	local  *bus.Bus
	logger zerolog.Logger
	nodeID string
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSRelay creates a NATS-backed relay. Unlike Redis, an
// unreachable NATS server is an error: the client's own reconnect
// handling covers outages after the first connect succeeds.
func NewNATSRelay(cfg NATSConfig, local *bus.Bus, logger zerolog.Logger) (*NATSRelay, error) {
	defaults := DefaultNATSConfig()
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = defaults.MaxReconnects
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = defaults.ReconnectWait
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	opts := []nats.Option{
		nats.Name("huginn-relay"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}

	nr := &NATSRelay{
		conn:   conn,
		local:  local,
		logger: logger.With().Str("component", "nats-relay").Logger(),
		nodeID: newNodeID(),
	}

	sub, err := conn.Subscribe(natsSubjectPrefix+">", nr.handle)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s>: %w", natsSubjectPrefix, err)
	}
	nr.sub = sub

	nr.logger.Info().Str("url", cfg.URL).Str("node_id", nr.nodeID).Msg("nats relay started")
	return nr, nil
}

// Publish delivers locally, then mirrors to the per-type subject.
func (nr *NATSRelay) Publish(msg protocol.Message) {
	nr.local.Publish(msg)

	data, err := marshalEnvelope(msg, nr.nodeID)
	if err != nil {
		nr.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("marshal relay message")
		return
	}

	if err := nr.conn.Publish(natsSubjectPrefix+string(msg.Type), data); err != nil {
		nr.logger.Error().Err(err).Str("type", string(msg.Type)).Msg("publish to nats")
	}
}

func (nr *NATSRelay) handle(m *nats.Msg) {
	env, err := unmarshalEnvelope(m.Data)
	if err != nil {
		nr.logger.Error().Err(err).Msg("bad relay envelope")
		return
	}
	if env.NodeID == nr.nodeID {
		return
	}

	msg, err := protocol.Unmarshal(env.Message)
	if err != nil {
		nr.logger.Error().Err(err).Msg("bad relayed message")
		return
	}
	nr.local.Publish(msg)
}

// Close drains the subscription and closes the connection.
func (nr *NATSRelay) Close() error {
	if nr.sub != nil {
		_ = nr.sub.Unsubscribe()
	}
	nr.conn.Close()
	return nil
}
