/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package status

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/huginn/internal/botapi"
	"github.com/friendsincode/huginn/internal/models"
)

// fakeAPI serves canned responses and counts calls.
type fakeAPI struct {
	mu      sync.Mutex
	calls   int
	respond func(call int) (*models.StatusResponse, error)
}

func (f *fakeAPI) Status(ctx context.Context) (*models.StatusResponse, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	return f.respond(n)
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func okStatus(songID string) (*models.StatusResponse, error) {
	resp := &models.StatusResponse{Auth: true}
	if songID != "" {
		resp.Queue.CurrentSong = &models.Song{ID: songID, Title: "t"}
	}
	return resp, nil
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFirstPollIsImmediate(t *testing.T) {
	api := &fakeAPI{respond: func(int) (*models.StatusResponse, error) { return okStatus("a") }}
	p := New(api, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// With a one-hour interval the only way a poll lands quickly is the
	// immediate first poll.
	waitFor(t, func() bool { return api.callCount() >= 1 }, "no immediate first poll")

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v on cancellation, want nil", err)
	}
}

func TestForceRefreshPollsOutOfBand(t *testing.T) {
	api := &fakeAPI{respond: func(int) (*models.StatusResponse, error) { return okStatus("a") }}
	p := New(api, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	waitFor(t, func() bool { return api.callCount() == 1 }, "first poll missing")
	p.ForceRefresh()
	waitFor(t, func() bool { return api.callCount() == 2 }, "forced refresh never polled")
}

func TestSnapshotFansOutToAllHandlers(t *testing.T) {
	api := &fakeAPI{respond: func(int) (*models.StatusResponse, error) { return okStatus("song-1") }}
	p := New(api, time.Hour, zerolog.Nop())

	var mu sync.Mutex
	var got []string
	p.OnSnapshot(func(s models.PlaybackSnapshot) {
		mu.Lock()
		got = append(got, "sync:"+s.CurrentSong.ID)
		mu.Unlock()
	})
	p.OnSnapshot(func(s models.PlaybackSnapshot) {
		mu.Lock()
		got = append(got, "view:"+s.CurrentSong.ID)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, "handlers not both called")

	mu.Lock()
	defer mu.Unlock()
	if got[0] != "sync:song-1" || got[1] != "view:song-1" {
		t.Errorf("handler calls = %v", got)
	}
}

func TestNetworkFailureKeepsPolling(t *testing.T) {
	api := &fakeAPI{respond: func(int) (*models.StatusResponse, error) {
		return nil, errors.New("connection refused")
	}}
	p := New(api, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitFor(t, func() bool { return api.callCount() >= 5 }, "poller gave up on network errors")

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}
}

func TestAuthLostIsTerminal(t *testing.T) {
	api := &fakeAPI{respond: func(call int) (*models.StatusResponse, error) {
		if call == 1 {
			return okStatus("a")
		}
		return nil, botapi.ErrUnauthenticated
	}}
	p := New(api, 10*time.Millisecond, zerolog.Nop())

	authLost := 0
	p.OnAuthLost(func() { authLost++ })

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, botapi.ErrUnauthenticated) {
			t.Fatalf("Run returned %v, want ErrUnauthenticated", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run kept polling after auth loss")
	}

	if authLost != 1 {
		t.Errorf("onAuthLost fired %d times, want 1", authLost)
	}
	calls := api.callCount()
	time.Sleep(50 * time.Millisecond)
	if api.callCount() != calls {
		t.Error("poller kept polling after terminal auth loss")
	}
}
