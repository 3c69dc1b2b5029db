/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audiograph owns the local mirror of playback: a muted decode
// graph whose samples are pulled in real time, tapped for frequency
// analysis and then discarded. Nothing in this package routes audio to
// a speaker; the bot's own stream is the only audible output.
package audiograph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
	"github.com/rs/zerolog"

	"github.com/friendsincode/huginn/internal/telemetry"
)

// pumpInterval is how often the pump pulls decoded samples. The pump
// pulls however many samples wall-clock time owes, so the element's
// position advances in real time regardless of tick jitter.
const pumpInterval = 10 * time.Millisecond

const fetchTimeout = 30 * time.Second

// ErrDecode marks a stream the graph could not decode (unsupported
// container or corrupt data). Callers distinguish it from transient
// fetch failures, which may succeed on the next attempt.
var ErrDecode = errors.New("undecodable stream")

// StartResult is the closed outcome set of a playback start attempt.
type StartResult int

const (
	// Started means the element is now advancing (or already was).
	Started StartResult = iota
	// Blocked means the output gate is still locked; retry later or
	// wait for a gesture.
	Blocked
	// DecodeFailed means the element's decoder is unusable and the
	// element should be torn down.
	DecodeFailed
)

func (r StartResult) String() string {
	switch r {
	case Started:
		return "started"
	case Blocked:
		return "blocked"
	case DecodeFailed:
		return "decode_failed"
	default:
		return "unknown"
	}
}

// Graph is the agent-lifetime owner of at most one live Element. Attach
// and Detach are expected to be serialized by the caller; the graph
// still guards itself so a stray double attach cannot leak a pump.
type Graph struct {
	log    zerolog.Logger
	gate   *Gate
	client *http.Client

	mu      sync.Mutex
	current *Element
}

func New(gate *Gate, logger zerolog.Logger) *Graph {
	return &Graph{
		log:    logger.With().Str("component", "audiograph").Logger(),
		gate:   gate,
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// Gate returns the output gate shared by every element this graph
// builds.
func (g *Graph) Gate() *Gate { return g.gate }

// Attach fetches streamURL, decodes it by extension and returns a live
// Element with its pump running. The element starts paused; Play is a
// separate, gate-checked step. Decode failures wrap ErrDecode.
func (g *Graph) Attach(ctx context.Context, streamURL string) (*Element, error) {
	g.mu.Lock()
	prev := g.current
	g.current = nil
	g.mu.Unlock()
	if prev != nil {
		if !prev.Closed() {
			g.log.Warn().Msg("attach over a live element, detaching the old one first")
		}
		if err := prev.Close(); err != nil {
			g.log.Warn().Err(err).Msg("closing stale element")
		}
	}

	data, err := g.fetch(ctx, streamURL)
	if err != nil {
		return nil, fmt.Errorf("fetch stream: %w", err)
	}

	streamer, format, err := decodeByExtension(streamURL, data)
	if err != nil {
		return nil, err
	}

	el := &Element{
		log:      g.log,
		gate:     g.gate,
		an:       newAnalyser(),
		sr:       format.SampleRate,
		streamer: streamer,
		ctrl:     &beep.Ctrl{Streamer: streamer, Paused: true},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go el.pump()

	g.mu.Lock()
	g.current = el
	g.mu.Unlock()

	telemetry.GraphRebuildsTotal.Inc()
	g.log.Debug().
		Str("url", streamURL).
		Int64("duration_ms", el.DurationMS()).
		Int("sample_rate", int(format.SampleRate)).
		Msg("element attached")
	return el, nil
}

// Detach fully releases an element: the pump stops, the decoder closes
// and the analyser tap is dropped. Safe on nil and on elements the
// graph no longer tracks.
func (g *Graph) Detach(el *Element) {
	if el == nil {
		return
	}
	g.mu.Lock()
	if g.current == el {
		g.current = nil
	}
	g.mu.Unlock()
	if err := el.Close(); err != nil {
		g.log.Warn().Err(err).Msg("closing detached element")
	}
}

// CurrentFrequencyFrame returns the live element's 64-band frame, or a
// zero frame when no element exists or no data is flowing. It never
// fails; visualizers always have something to paint.
func (g *Graph) CurrentFrequencyFrame() []byte {
	g.mu.Lock()
	el := g.current
	g.mu.Unlock()
	if el == nil {
		return make([]byte, FrameBands)
	}
	return el.Frame()
}

func (g *Graph) fetch(ctx context.Context, streamURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	// Whole-body buffering keeps every decoder seekable; the bot only
	// exposes fully downloaded tracks, so the size is bounded.
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// memoryStream adapts a byte slice to the superset of reader interfaces
// the decoders accept.
type memoryStream struct {
	*bytes.Reader
}

func (memoryStream) Close() error { return nil }

func decodeByExtension(streamURL string, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	src := memoryStream{bytes.NewReader(data)}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)
	switch ext := strings.ToLower(path.Ext(urlPath(streamURL))); ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(src)
	case ".flac":
		streamer, format, err = flac.Decode(src)
	case ".ogg":
		streamer, format, err = vorbis.Decode(src)
	case ".wav":
		streamer, format, err = wav.Decode(src)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: extension %q", ErrDecode, ext)
	}
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return streamer, format, nil
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}

// Element is one decoded track. It mirrors the media element the
// surfaces were originally driven by: position advances in real time
// while unpaused, seeks land on sample boundaries, and the tapped
// samples feed the frequency analyser.
type Element struct {
	log  zerolog.Logger
	gate *Gate
	an   *analyser
	sr   beep.SampleRate

	mu       sync.Mutex
	streamer beep.StreamSeekCloser
	ctrl     *beep.Ctrl
	closed   bool

	stop chan struct{}
	done chan struct{}
}

// Play asks the element to start advancing. The call is idempotent and
// never blocks: a locked gate yields Blocked, a dead decoder yields
// DecodeFailed.
func (e *Element) Play() StartResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.streamer.Err() != nil {
		return DecodeFailed
	}
	if !e.gate.Unlocked() {
		return Blocked
	}
	e.ctrl.Paused = false
	return Started
}

// Pause stops advancement without releasing anything; position holds.
func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.ctrl.Paused = true
}

// Paused reports whether the element is currently not advancing.
func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed || e.ctrl.Paused
}

// SeekMS moves the playhead, clamped to [0, duration].
func (e *Element) SeekMS(ms int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("element closed")
	}
	n := e.sr.N(time.Duration(ms) * time.Millisecond)
	if n < 0 {
		n = 0
	}
	if l := e.streamer.Len(); n > l {
		n = l
	}
	if err := e.streamer.Seek(n); err != nil {
		return fmt.Errorf("seek stream: %w", err)
	}
	return nil
}

// PositionMS returns the playhead in milliseconds.
func (e *Element) PositionMS() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0
	}
	return int64(e.sr.D(e.streamer.Position()) / time.Millisecond)
}

// DurationMS returns the track length in milliseconds.
func (e *Element) DurationMS() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0
	}
	return int64(e.sr.D(e.streamer.Len()) / time.Millisecond)
}

// Frame returns the element's current 64-band frequency frame.
func (e *Element) Frame() []byte { return e.an.frame() }

// Closed reports whether Close has run.
func (e *Element) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close stops the pump, waits for it to exit and closes the decoder.
// Safe to call more than once.
func (e *Element) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.ctrl.Paused = true
	e.mu.Unlock()

	close(e.stop)
	<-e.done
	e.an.reset()
	return e.streamer.Close()
}

// pump pulls decoded samples at the rate wall-clock time dictates,
// feeds them to the analyser and drops them. While paused it pulls
// nothing, so the playhead holds exactly like a paused media element.
func (e *Element) pump() {
	defer close(e.done)

	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	buf := make([][2]float64, 512)
	last := time.Now()

	for {
		select {
		case <-e.stop:
			return
		case now := <-ticker.C:
			e.mu.Lock()
			if e.closed {
				e.mu.Unlock()
				return
			}
			if e.ctrl.Paused {
				last = now
				e.mu.Unlock()
				continue
			}
			owed := e.sr.N(now.Sub(last))
			last = now
			for owed > 0 {
				n := owed
				if n > len(buf) {
					n = len(buf)
				}
				got, ok := e.ctrl.Stream(buf[:n])
				e.an.feed(buf, got)
				owed -= got
				if !ok {
					// Drained or decoder error. Hold position at the
					// end; the next snapshot decides what follows.
					e.ctrl.Paused = true
					if err := e.streamer.Err(); err != nil {
						e.log.Warn().Err(err).Msg("decoder error mid-stream")
					}
					break
				}
			}
			e.mu.Unlock()
		}
	}
}
