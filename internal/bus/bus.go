/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package bus implements the in-process fan-out for broadcast messages.
// Publishing never blocks: a subscriber that has fallen behind loses
// messages rather than stalling the producer, which is the intended
// behavior for disposable frame and progress traffic.
package bus

import (
	"sync"

	"github.com/friendsincode/huginn/internal/protocol"
)

// Subscriber receives published messages.
type Subscriber chan protocol.Message

// Bus is a simple in-process pubsub keyed by message type.
type Bus struct {
	mu   sync.RWMutex
	subs map[protocol.Type][]Subscriber
}

// New creates a message bus.
func New() *Bus {
	return &Bus{subs: make(map[protocol.Type][]Subscriber)}
}

// Subscribe registers one channel for every listed type. The same
// channel is delivered to once per published message regardless of how
// many of its types match.
func (b *Bus) Subscribe(types ...protocol.Type) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	for _, t := range types {
		b.subs[t] = append(b.subs[t], ch)
	}
	b.mu.Unlock()
	return ch
}

// Publish sends the message to every subscriber of its type.
func (b *Bus) Publish(msg protocol.Message) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[msg.Type]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- msg:
		default:
		}
	}
}

// Unsubscribe removes the subscriber from every type and closes it.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for t, subs := range b.subs {
		for i, candidate := range subs {
			if candidate == sub {
				b.subs[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	close(sub)
}
