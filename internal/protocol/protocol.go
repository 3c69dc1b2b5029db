/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package protocol defines the broadcast message union carried between
// the agent and its surfaces. The set of message types is closed:
// decoding any type outside it is an error, and every consumer treats
// each arriving message as the newest truth for its type.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/friendsincode/huginn/internal/models"
)

// Type tags one broadcast message variant.
type Type string

const (
	TypeSeekRequest    Type = "SEEK_REQUEST"
	TypeSongUpdate     Type = "SONG_UPDATE"
	TypeSongData       Type = "SONG_DATA"
	TypeProgressUpdate Type = "PROGRESS_UPDATE"
	TypeAudioData      Type = "AUDIO_DATA"
	TypeIdleAnimation  Type = "IDLE_ANIMATION"
	TypeSettingsUpdate Type = "SETTINGS_UPDATE"
	TypeTabCheck       Type = "TAB_CHECK"
)

// Payload is implemented by every member of the closed message set.
type Payload interface {
	messageType() Type
}

// SeekRequest carries a seek intent from a surface back to the
// controller. TimeMS is the absolute target position.
type SeekRequest struct {
	TimeMS int64 `json:"time"`
}

// SongUpdate announces the song occupying the playback slot. A nil Song
// means the slot is empty.
type SongUpdate struct {
	Song *models.Song `json:"song"`
}

// SongData carries the coarse position pair surfaces use to seed their
// progress bars immediately after (re)connecting.
type SongData struct {
	DurationMS int64 `json:"duration"`
	CurrentMS  int64 `json:"current"`
}

// ProgressUpdate is the once-per-second progress tick. AudioData, when
// present, is one opportunistic frequency frame so a throttled
// background surface still receives at least one frame per tick.
type ProgressUpdate struct {
	CurrentMS int64   `json:"current"`
	TotalMS   int64   `json:"total"`
	Progress  float64 `json:"progress"`
	AudioData []byte  `json:"audioData,omitempty"`
}

// AudioData is one live frequency frame, sent at capture cadence.
type AudioData struct {
	Data []byte `json:"data"`
}

// IdleAnimation signals surfaces to run their procedural fallback.
// Preparing selects the "track is being prepared" styling.
type IdleAnimation struct {
	Preparing bool `json:"preparing"`
}

// SettingsUpdate relays the rendering settings collaborator.
type SettingsUpdate struct {
	Settings models.Settings `json:"settings"`
}

// TabCheck is the duplicate-surface announce. Each surface sends one
// with a fresh ephemeral ID when it loads; receiving a foreign one soon
// after your own is advisory evidence of overlapping surfaces.
type TabCheck struct {
	TabID string `json:"tabId"`
}

func (SeekRequest) messageType() Type    { return TypeSeekRequest }
func (SongUpdate) messageType() Type     { return TypeSongUpdate }
func (SongData) messageType() Type       { return TypeSongData }
func (ProgressUpdate) messageType() Type { return TypeProgressUpdate }
func (AudioData) messageType() Type      { return TypeAudioData }
func (IdleAnimation) messageType() Type  { return TypeIdleAnimation }
func (SettingsUpdate) messageType() Type { return TypeSettingsUpdate }
func (TabCheck) messageType() Type       { return TypeTabCheck }

// Message is one tagged broadcast message.
type Message struct {
	Type    Type
	Payload Payload
}

// New builds a Message from a payload, deriving the tag.
func New(p Payload) Message {
	return Message{Type: p.messageType(), Payload: p}
}

type envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Marshal encodes a message for the wire.
func Marshal(m Message) ([]byte, error) {
	raw, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", m.Type, err)
	}
	return json.Marshal(envelope{Type: m.Type, Payload: raw})
}

// Unmarshal decodes one wire message. Types outside the closed set are
// rejected rather than passed through.
func Unmarshal(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}

	var p Payload
	switch env.Type {
	case TypeSeekRequest:
		p = &SeekRequest{}
	case TypeSongUpdate:
		p = &SongUpdate{}
	case TypeSongData:
		p = &SongData{}
	case TypeProgressUpdate:
		p = &ProgressUpdate{}
	case TypeAudioData:
		p = &AudioData{}
	case TypeIdleAnimation:
		p = &IdleAnimation{}
	case TypeSettingsUpdate:
		p = &SettingsUpdate{}
	case TypeTabCheck:
		p = &TabCheck{}
	default:
		return Message{}, fmt.Errorf("unknown message type %q", env.Type)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, p); err != nil {
			return Message{}, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
	}

	return Message{Type: env.Type, Payload: deref(p)}, nil
}

// deref returns the value form so callers can type-switch on concrete
// structs instead of pointers.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *SeekRequest:
		return *v
	case *SongUpdate:
		return *v
	case *SongData:
		return *v
	case *ProgressUpdate:
		return *v
	case *AudioData:
		return *v
	case *IdleAnimation:
		return *v
	case *SettingsUpdate:
		return *v
	case *TabCheck:
		return *v
	default:
		return p
	}
}
