/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/huginn/internal/audiograph"
	"github.com/friendsincode/huginn/internal/auth"
	"github.com/friendsincode/huginn/internal/logbuffer"
	"github.com/friendsincode/huginn/internal/models"
	"github.com/friendsincode/huginn/internal/queueview"
	"github.com/friendsincode/huginn/internal/seek"
	"github.com/friendsincode/huginn/internal/version"
)

var testSecret = []byte("api-test-secret")

type fakeSeeks struct {
	source  string
	target  int64
	applied int64
	err     error
	calls   int
}

func (f *fakeSeeks) Handle(_ context.Context, source string, targetMS int64) (int64, error) {
	f.calls++
	f.source = source
	f.target = targetMS
	if f.err != nil {
		return 0, f.err
	}
	return f.applied, nil
}

type fakeBot struct {
	calls    []string
	err      error
	removed  int
	from, to int
}

func (f *fakeBot) record(op string) error {
	f.calls = append(f.calls, op)
	return f.err
}

func (f *fakeBot) Skip(context.Context) error   { return f.record("skip") }
func (f *fakeBot) Pause(context.Context) error  { return f.record("pause") }
func (f *fakeBot) Resume(context.Context) error { return f.record("resume") }

func (f *fakeBot) Remove(_ context.Context, index int) error {
	f.removed = index
	return f.record("remove")
}

func (f *fakeBot) Reorder(_ context.Context, from, to int) error {
	f.from, f.to = from, to
	return f.record("reorder")
}

type fakeRefresher struct{ refreshes int }

func (f *fakeRefresher) ForceRefresh() { f.refreshes++ }

type fakeStore struct {
	plays []models.PlayHistory
	seeks []models.SeekEvent
}

func (f *fakeStore) RecentPlays(context.Context, int) ([]models.PlayHistory, error) {
	return f.plays, nil
}

func (f *fakeStore) RecentSeeks(context.Context, int) ([]models.SeekEvent, error) {
	return f.seeks, nil
}

type testAPI struct {
	router  chi.Router
	seeks   *fakeSeeks
	bot     *fakeBot
	poller  *fakeRefresher
	gate    *audiograph.Gate
	logBuf  *logbuffer.Buffer
	handler *API
}

func newTestAPI(t *testing.T, store HistoryStore) *testAPI {
	t.Helper()

	seeks := &fakeSeeks{applied: 42000}
	bot := &fakeBot{}
	poller := &fakeRefresher{}
	gate := audiograph.NewGate(false)
	logBuf := logbuffer.New(64)

	a := New(queueview.NewView(), seeks, bot, poller, gate, store, logBuf, nil, testSecret, zerolog.Nop())
	router := chi.NewRouter()
	a.Routes(router)

	return &testAPI{
		router:  router,
		seeks:   seeks,
		bot:     bot,
		poller:  poller,
		gate:    gate,
		logBuf:  logBuf,
		handler: a,
	}
}

func issueToken(t *testing.T, roles ...string) string {
	t.Helper()

	token, err := auth.Issue(testSecret, auth.Claims{SurfaceID: "surface-1", Roles: roles}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doRequest(ta *testAPI, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ta.router.ServeHTTP(rr, req)
	return rr
}

func TestViewRequiresToken(t *testing.T) {
	ta := newTestAPI(t, nil)

	rr := doRequest(ta, http.MethodGet, "/api/view", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestViewReturnsModel(t *testing.T) {
	ta := newTestAPI(t, nil)

	rr := doRequest(ta, http.MethodGet, "/api/view", issueToken(t), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var model queueview.Model
	if err := json.NewDecoder(rr.Body).Decode(&model); err != nil {
		t.Fatalf("decode model: %v", err)
	}
	if model.CurrentSong != nil || model.QueueLength != 0 {
		t.Fatalf("expected empty model, got %+v", model)
	}
}

func TestSeekRequiresControllerRole(t *testing.T) {
	ta := newTestAPI(t, nil)

	rr := doRequest(ta, http.MethodPost, "/api/seek", issueToken(t), `{"time":5000}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for read-only surface, got %d", rr.Code)
	}
	if ta.seeks.calls != 0 {
		t.Fatal("seek handler should not run for read-only surfaces")
	}
}

func TestSeekRelaysAndReturnsAppliedTime(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.seeks.applied = 180000

	rr := doRequest(ta, http.MethodPost, "/api/seek", issueToken(t, "controller"), `{"time":999999}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if ta.seeks.source != seek.SourceAPI {
		t.Fatalf("expected source %q, got %q", seek.SourceAPI, ta.seeks.source)
	}
	if ta.seeks.target != 999999 {
		t.Fatalf("expected raw target forwarded, got %d", ta.seeks.target)
	}

	var resp map[string]int64
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["time"] != 180000 {
		t.Fatalf("expected applied time 180000, got %d", resp["time"])
	}
}

func TestSeekFailureReturnsBadGateway(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.seeks.err = errors.New("bot offline")

	rr := doRequest(ta, http.MethodPost, "/api/seek", issueToken(t, "controller"), `{"time":1000}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestGestureUnlocksOutput(t *testing.T) {
	ta := newTestAPI(t, nil)

	if ta.gate.Unlocked() {
		t.Fatal("gate should start locked")
	}

	rr := doRequest(ta, http.MethodPost, "/api/gesture", issueToken(t), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !ta.gate.Unlocked() {
		t.Fatal("expected gesture to unlock the gate")
	}
}

func TestQueueSkipProxiesAndForcesRefresh(t *testing.T) {
	ta := newTestAPI(t, nil)

	rr := doRequest(ta, http.MethodPost, "/api/queue/skip", issueToken(t, "controller"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(ta.bot.calls) != 1 || ta.bot.calls[0] != "skip" {
		t.Fatalf("expected one skip call, got %v", ta.bot.calls)
	}
	if ta.poller.refreshes != 1 {
		t.Fatalf("expected one forced refresh, got %d", ta.poller.refreshes)
	}
}

func TestQueueRemoveParsesIndex(t *testing.T) {
	ta := newTestAPI(t, nil)
	token := issueToken(t, "controller")

	rr := doRequest(ta, http.MethodPost, "/api/queue/remove/3", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ta.bot.removed != 3 {
		t.Fatalf("expected remove index 3, got %d", ta.bot.removed)
	}

	rr = doRequest(ta, http.MethodPost, "/api/queue/remove/-1", token, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative index, got %d", rr.Code)
	}

	rr = doRequest(ta, http.MethodPost, "/api/queue/remove/abc", token, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric index, got %d", rr.Code)
	}
}

func TestQueueReorderValidatesBody(t *testing.T) {
	ta := newTestAPI(t, nil)
	token := issueToken(t, "controller")

	rr := doRequest(ta, http.MethodPost, "/api/queue/reorder", token, `{"from":2,"to":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ta.bot.from != 2 || ta.bot.to != 0 {
		t.Fatalf("expected reorder 2->0, got %d->%d", ta.bot.from, ta.bot.to)
	}

	rr = doRequest(ta, http.MethodPost, "/api/queue/reorder", token, `{"from":-1,"to":0}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative position, got %d", rr.Code)
	}
}

func TestQueueMutationFailureReturnsBadGateway(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.bot.err = errors.New("bot offline")

	rr := doRequest(ta, http.MethodPost, "/api/queue/pause", issueToken(t, "controller"), "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	if ta.poller.refreshes != 0 {
		t.Fatal("failed mutation must not force a refresh")
	}
}

func TestHistoryReturnsRows(t *testing.T) {
	store := &fakeStore{
		plays: []models.PlayHistory{{ID: "p1", SongID: "song-1", Title: "Test"}},
		seeks: []models.SeekEvent{{ID: "s1", Source: "surface", TargetMS: 1000}},
	}
	ta := newTestAPI(t, store)

	rr := doRequest(ta, http.MethodGet, "/api/history", issueToken(t), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp struct {
		Plays []models.PlayHistory `json:"plays"`
		Seeks []models.SeekEvent   `json:"seeks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Plays) != 1 || resp.Plays[0].SongID != "song-1" {
		t.Fatalf("unexpected plays: %+v", resp.Plays)
	}
	if len(resp.Seeks) != 1 || resp.Seeks[0].TargetMS != 1000 {
		t.Fatalf("unexpected seeks: %+v", resp.Seeks)
	}
}

func TestHistoryUnavailableWithoutStore(t *testing.T) {
	ta := newTestAPI(t, nil)

	rr := doRequest(ta, http.MethodGet, "/api/history", issueToken(t), "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestLogsQueryAndFilter(t *testing.T) {
	ta := newTestAPI(t, nil)
	ta.logBuf.Add(logbuffer.LogEntry{Timestamp: time.Now(), Level: "info", Component: "playback", Message: "bound song"})
	ta.logBuf.Add(logbuffer.LogEntry{Timestamp: time.Now(), Level: "error", Component: "botapi", Message: "poll failed"})

	token := issueToken(t)

	rr := doRequest(ta, http.MethodGet, "/api/logs", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Entries []logbuffer.LogEntry `json:"entries"`
		Count   int                  `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("expected 2 entries, got %d", resp.Count)
	}

	rr = doRequest(ta, http.MethodGet, "/api/logs?level=error", token, "")
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode filtered response: %v", err)
	}
	if resp.Count != 1 || resp.Entries[0].Component != "botapi" {
		t.Fatalf("expected one botapi error entry, got %+v", resp.Entries)
	}
}

func TestVersionEndpoint(t *testing.T) {
	ta := newTestAPI(t, nil)

	rr := doRequest(ta, http.MethodGet, "/api/version", issueToken(t), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["currentVersion"] != version.Version {
		t.Fatalf("expected version %q, got %q", version.Version, resp["currentVersion"])
	}
}
