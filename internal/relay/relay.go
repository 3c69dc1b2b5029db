/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package relay mirrors broadcast messages between agent processes so
// surfaces attached to different processes (or hosts) observe the same
// session. Every relay publishes locally first; the remote medium is
// best-effort and a failing backend degrades to local-only delivery.
package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/huginn/internal/bus"
	"github.com/friendsincode/huginn/internal/protocol"
)

// Backend selects the cross-process medium.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendNATS   Backend = "nats"
)

// Relay fans a message out to local subscribers and to sibling nodes.
type Relay interface {
	Publish(msg protocol.Message)
	Close() error
}

// Config selects and configures the relay backend.
type Config struct {
	Backend Backend
	Redis   RedisConfig
	NATS    NATSConfig
}

// New builds the configured relay around the local bus.
func New(cfg Config, local *bus.Bus, logger zerolog.Logger) (Relay, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return &memoryRelay{local: local}, nil
	case BackendRedis:
		return NewRedisRelay(cfg.Redis, local, logger)
	case BackendNATS:
		return NewNATSRelay(cfg.NATS, local, logger)
	default:
		return nil, fmt.Errorf("unknown relay backend: %s", cfg.Backend)
	}
}

// memoryRelay delivers to the local bus only.
type memoryRelay struct {
	local *bus.Bus
}

func (m *memoryRelay) Publish(msg protocol.Message) { m.local.Publish(msg) }
func (m *memoryRelay) Close() error                 { return nil }

// envelope is the wire form shared by the remote backends. NodeID
// identifies the publishing process so receivers can drop their own
// echoes; MessageID exists for tracing and deduplication.
type envelope struct {
	Message   json.RawMessage `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	NodeID    string          `json:"node_id"`
	MessageID string          `json:"message_id"`
}

func marshalEnvelope(msg protocol.Message, nodeID string) ([]byte, error) {
	raw, err := protocol.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		Message:   raw,
		Timestamp: time.Now(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalEnvelope(data []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal relay envelope: %w", err)
	}
	return &env, nil
}

// newNodeID returns the per-process identity used for echo suppression.
func newNodeID() string {
	return uuid.NewString()[:8]
}
