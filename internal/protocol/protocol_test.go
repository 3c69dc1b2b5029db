/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package protocol

import (
	"testing"

	"github.com/friendsincode/huginn/internal/models"
)

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":"VOLUME_CHANGE","payload":{"level":5}}`))
	if err == nil {
		t.Fatal("expected error for type outside the closed set")
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte(`{{`)); err == nil {
		t.Fatal("expected envelope decode error")
	}
}

func TestSeekRequestRoundTrip(t *testing.T) {
	data, err := Marshal(New(SeekRequest{TimeMS: 92500}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	msg, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msg.Type != TypeSeekRequest {
		t.Fatalf("type = %s, want %s", msg.Type, TypeSeekRequest)
	}
	req, ok := msg.Payload.(SeekRequest)
	if !ok {
		t.Fatalf("payload type = %T, want SeekRequest", msg.Payload)
	}
	if req.TimeMS != 92500 {
		t.Errorf("time = %d, want 92500", req.TimeMS)
	}
}

func TestSongUpdateCarriesNilSong(t *testing.T) {
	data, err := Marshal(New(SongUpdate{Song: nil}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	msg, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	upd, ok := msg.Payload.(SongUpdate)
	if !ok {
		t.Fatalf("payload type = %T, want SongUpdate", msg.Payload)
	}
	if upd.Song != nil {
		t.Errorf("song = %+v, want nil", upd.Song)
	}
}

func TestProgressUpdateOmitsEmptyFrame(t *testing.T) {
	data, err := Marshal(New(ProgressUpdate{CurrentMS: 1000, TotalMS: 2000, Progress: 0.5}))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) == "" {
		t.Fatal("empty wire message")
	}

	msg, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	upd := msg.Payload.(ProgressUpdate)
	if upd.AudioData != nil {
		t.Errorf("audioData = %v, want absent", upd.AudioData)
	}
	if upd.Progress != 0.5 {
		t.Errorf("progress = %v, want 0.5", upd.Progress)
	}
}

func TestTabCheckAndSettingsPayloads(t *testing.T) {
	tests := []struct {
		name string
		in   Payload
	}{
		{"tab check", TabCheck{TabID: "f4a2"}},
		{"settings", SettingsUpdate{Settings: models.Settings{ShowRequester: true}}},
		{"idle preparing", IdleAnimation{Preparing: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(New(tt.in))
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			msg, err := Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if msg.Type != New(tt.in).Type {
				t.Errorf("type = %s, want %s", msg.Type, New(tt.in).Type)
			}
		})
	}
}
