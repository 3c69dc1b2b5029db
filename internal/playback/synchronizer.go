/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback reconciles the bot's authoritative playback
// snapshots with the local muted element: bind/teardown on song
// identity changes, pause/resume, drift correction, and the
// retry-on-block dance around the output gate.
package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/huginn/internal/audiograph"
	"github.com/friendsincode/huginn/internal/idle"
	"github.com/friendsincode/huginn/internal/models"
	"github.com/friendsincode/huginn/internal/protocol"
	"github.com/friendsincode/huginn/internal/telemetry"
	"github.com/friendsincode/huginn/internal/timeutil"
)

const (
	// driftToleranceMS is the local/server divergence above which a
	// force-seek fires. Wide enough to ignore poll jitter, tight enough
	// to catch real desync like process suspension.
	driftToleranceMS = 2000

	// maxStartAttempts bounds one start burst; after that the watchdog,
	// the next poll, or a surface gesture triggers a fresh burst.
	maxStartAttempts = 3

	watchdogInterval = 2 * time.Second
	progressInterval = time.Second
	frameInterval    = 10 * time.Millisecond
)

// retryDelay spaces the attempts inside one start burst. Variable so
// tests can compress the burst.
var retryDelay = 500 * time.Millisecond

// localPlaybackState is the one live binding between a song identity
// and a local element. The synchronizer owns it exclusively; it is torn
// down and rebuilt whenever the song identity changes.
type localPlaybackState struct {
	element             Element
	boundSongID         string
	lastServerElapsedMS int64
	retryCount          int
}

// Publisher fans protocol messages out to surfaces. The in-process bus
// satisfies it directly; the relay satisfies it when sibling agents
// should hear the messages too.
type Publisher interface {
	Publish(msg protocol.Message)
}

// Synchronizer drives the local element from polled snapshots. One
// mutex serializes every callback body (snapshot, watchdog tick, retry
// attempt, seek, gesture, progress and frame ticks), so graph teardown
// and rebuild are atomic with respect to every other path.
type Synchronizer struct {
	log  zerolog.Logger
	bus  Publisher
	src  Source
	idle *idle.Animator
	hist HistoryRecorder

	mu             sync.Mutex
	runCtx         context.Context
	state          State
	local          localPlaybackState
	song           *models.Song
	lastSnapshotAt time.Time
	decodeFailedID string
	retryPending   bool
	burstGen       int
	closed         bool
}

// NewSynchronizer wires the synchronizer to its collaborators. hist may
// be nil when play history is disabled.
func NewSynchronizer(src Source, anim *idle.Animator, b Publisher, hist HistoryRecorder, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		log:    logger.With().Str("component", "playback").Logger(),
		bus:    b,
		src:    src,
		idle:   anim,
		hist:   hist,
		runCtx: context.Background(),
		state:  StateEmpty,
	}
}

// Run drives the watchdog, progress, and frame cadences until the
// context ends. Snapshots arrive separately via OnSnapshot.
func (s *Synchronizer) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	s.log.Debug().Msg("synchronizer started")

	watchdog := time.NewTicker(watchdogInterval)
	defer watchdog.Stop()
	progress := time.NewTicker(progressInterval)
	defer progress.Stop()
	frames := time.NewTicker(frameInterval)
	defer frames.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("synchronizer stopped")
			return nil
		case <-watchdog.C:
			s.watchdogTick()
		case <-progress.C:
			s.progressTick()
		case <-frames.C:
			s.frameTick()
		}
	}
}

// Close releases the element and stops the idle loop. The synchronizer
// accepts no further callbacks afterwards.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.teardownLocked()
	s.idle.Stop()
}

// State returns the current slot state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BoundSongID returns the identity the element is bound to, if any.
func (s *Synchronizer) BoundSongID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local.boundSongID
}

// RetryCount reports the attempts consumed by the current start burst;
// it resets to zero once playback starts.
func (s *Synchronizer) RetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local.retryCount
}

// OnSnapshot reconciles one polled snapshot against local state. Every
// snapshot supersedes the previous one wholesale.
func (s *Synchronizer) OnSnapshot(snap models.PlaybackSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	song := snap.CurrentSong

	// A failed identity leaving the slot clears the decode-failure
	// memory, so the same track re-queued later gets another chance.
	if s.decodeFailedID != "" && (song == nil || song.ID != s.decodeFailedID) {
		s.decodeFailedID = ""
	}

	if songMetaChanged(s.song, song) {
		s.bus.Publish(protocol.New(protocol.SongUpdate{Song: song}))
	}

	switch {
	case song == nil:
		if s.local.element != nil || s.state != StateEmpty {
			s.log.Info().Msg("slot empty, releasing element")
		}
		s.teardownLocked()
		s.setStateLocked(StateEmpty)

	case !song.Playable():
		if s.local.element != nil && song.ID != s.local.boundSongID {
			s.teardownLocked()
		}
		if s.local.element == nil {
			s.setStateLocked(StatePreparing)
		} else {
			// Same identity lost its stream URL; a snapshot glitch is
			// likelier than a revoked stream. Keep playing and let the
			// regular reconcile below handle pause and drift.
			s.reconcileBoundLocked(song)
		}

	default:
		if s.local.element == nil || song.ID != s.local.boundSongID {
			s.rebindLocked(song)
		}
		if s.local.element != nil {
			s.reconcileBoundLocked(song)
		}
	}

	// With no element bound, the server counter is the only clock the
	// progress tick can extrapolate from.
	if song != nil && s.local.element == nil {
		s.local.lastServerElapsedMS = song.ElapsedMS
	}

	s.rememberSongLocked(song)
	s.reconcileIdleLocked()
}

// rebindLocked tears down whatever is bound and attaches the new song's
// stream, seeking to the server position before any start attempt.
func (s *Synchronizer) rebindLocked(song *models.Song) {
	s.teardownLocked()

	if song.ID == s.decodeFailedID {
		// Known-undecodable; do not refetch every poll.
		s.setStateLocked(StatePreparing)
		return
	}

	el, err := s.src.Attach(s.runCtx, song.StreamURL)
	if err != nil {
		if errors.Is(err, audiograph.ErrDecode) {
			s.decodeFailedID = song.ID
			s.log.Error().Err(err).Str("song_id", song.ID).Msg("stream undecodable, degrading to idle")
		} else {
			s.log.Warn().Err(err).Str("song_id", song.ID).Msg("stream fetch failed, next poll retries")
		}
		s.setStateLocked(StatePreparing)
		return
	}

	if err := el.SeekMS(song.ElapsedMS); err != nil {
		s.log.Warn().Err(err).Int64("elapsed_ms", song.ElapsedMS).Msg("initial seek failed")
	}

	s.local = localPlaybackState{
		element:             el,
		boundSongID:         song.ID,
		lastServerElapsedMS: song.ElapsedMS,
	}
	s.setStateLocked(StateBound)

	s.log.Info().
		Str("song_id", song.ID).
		Str("title", song.Title).
		Int64("elapsed_ms", song.ElapsedMS).
		Msg("element bound")

	s.bus.Publish(protocol.New(protocol.SongData{
		DurationMS: el.DurationMS(),
		CurrentMS:  song.ElapsedMS,
	}))

	if s.hist != nil {
		s.hist.RecordPlay(*song)
	}
}

// reconcileBoundLocked aligns pause state and corrects drift for the
// element already bound to this song.
func (s *Synchronizer) reconcileBoundLocked(song *models.Song) {
	el := s.local.element

	if s.state == StatePlaying && !song.IsPaused {
		local := el.PositionMS()
		if diff := local - song.ElapsedMS; diff > driftToleranceMS || diff < -driftToleranceMS {
			if err := el.SeekMS(song.ElapsedMS); err != nil {
				s.log.Warn().Err(err).Msg("drift correction seek failed")
			} else {
				telemetry.DriftCorrectionsTotal.Inc()
				s.log.Info().
					Int64("local_ms", local).
					Int64("server_ms", song.ElapsedMS).
					Msg("drift corrected")
				s.bus.Publish(protocol.New(protocol.SongData{
					DurationMS: el.DurationMS(),
					CurrentMS:  song.ElapsedMS,
				}))
			}
		}
	}

	if song.IsPaused {
		if !el.Paused() {
			el.Pause()
		}
		s.setStateLocked(StatePaused)
	} else if el.Paused() {
		s.startBurstLocked()
	} else {
		s.setStateLocked(StatePlaying)
	}

	s.local.lastServerElapsedMS = song.ElapsedMS
}

// startBurstLocked begins a bounded start burst unless one is already
// pending.
func (s *Synchronizer) startBurstLocked() {
	if s.retryPending {
		return
	}
	s.burstGen++
	s.startLocked(1, s.burstGen)
}

// startLocked performs one gate-checked start attempt and schedules the
// next one on rejection, up to maxStartAttempts per burst.
func (s *Synchronizer) startLocked(attempt, gen int) {
	el := s.local.element
	if el == nil {
		return
	}

	res := el.Play()
	telemetry.PlayStartAttemptsTotal.WithLabelValues(res.String()).Inc()

	switch res {
	case audiograph.Started:
		s.local.retryCount = 0
		s.retryPending = false
		s.setStateLocked(StatePlaying)
		if attempt > 1 {
			s.log.Info().Int("attempt", attempt).Msg("playback started after retries")
		}

	case audiograph.Blocked:
		s.local.retryCount = attempt
		if attempt >= maxStartAttempts {
			s.retryPending = false
			s.log.Warn().
				Int("attempts", attempt).
				Msg("playback start blocked, waiting for poll, watchdog, or gesture")
			return
		}
		s.retryPending = true
		s.log.Debug().Int("attempt", attempt).Msg("playback start blocked, retrying")
		time.AfterFunc(retryDelay, func() { s.retryAttempt(attempt+1, gen) })

	case audiograph.DecodeFailed:
		s.retryPending = false
		s.decodeFailedID = s.local.boundSongID
		s.log.Error().Str("song_id", s.local.boundSongID).Msg("element unusable, degrading to idle")
		s.teardownLocked()
		s.setStateLocked(StatePreparing)
	}
}

// retryAttempt is the deferred half of a start burst. It re-checks that
// the song should still be playing and the element is still stopped, so
// a concurrent pause or rebind cancels the burst.
func (s *Synchronizer) retryAttempt(attempt, gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen == s.burstGen {
		s.retryPending = false
	}
	if s.closed || gen != s.burstGen {
		return
	}
	el := s.local.element
	if el == nil || s.song == nil || s.song.IsPaused || !el.Paused() {
		return
	}
	s.startLocked(attempt, gen)
	s.reconcileIdleLocked()
}

// OnGesture is invoked when a surface gesture unlocks the output gate;
// it retries a blocked start immediately instead of waiting out the
// watchdog.
func (s *Synchronizer) OnGesture() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.retryPending {
		return
	}
	el := s.local.element
	if el != nil && s.song != nil && !s.song.IsPaused && el.Paused() {
		s.log.Debug().Msg("gesture received, retrying start")
		s.startBurstLocked()
		s.reconcileIdleLocked()
	}
}

// watchdogTick recovers the "should be playing but element is stopped"
// condition, e.g. a gate that unlocked after a burst gave up.
func (s *Synchronizer) watchdogTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.retryPending {
		return
	}
	el := s.local.element
	if el == nil || s.song == nil || s.song.IsPaused {
		return
	}
	if el.Paused() {
		s.log.Debug().Msg("watchdog: should be playing but element is stopped")
		s.startBurstLocked()
		s.reconcileIdleLocked()
	}
}

// progressTick publishes the once-per-second progress message, from the
// element clock when bound or extrapolated server time otherwise. While
// playing it carries one opportunistic frequency frame so a throttled
// surface still gets at least one frame per tick.
func (s *Synchronizer) progressTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.song == nil {
		return
	}

	var current, total int64
	if el := s.local.element; el != nil {
		current, total = el.PositionMS(), el.DurationMS()
		if total == 0 {
			total = s.song.DurationMS
		}
	} else {
		total = s.song.DurationMS
		current = s.local.lastServerElapsedMS
		if !s.song.IsPaused && !s.lastSnapshotAt.IsZero() {
			current += time.Since(s.lastSnapshotAt).Milliseconds()
		}
		if total > 0 && current > total {
			current = total
		}
	}

	msg := protocol.ProgressUpdate{
		CurrentMS: current,
		TotalMS:   total,
		Progress:  timeutil.Progress(current, total),
	}
	if s.state == StatePlaying && s.local.element != nil {
		msg.AudioData = s.local.element.Frame()
		telemetry.FramesBroadcastTotal.WithLabelValues("progress").Inc()
	}
	s.bus.Publish(protocol.New(msg))
}

// frameTick publishes one live frequency frame while playing.
func (s *Synchronizer) frameTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != StatePlaying || s.local.element == nil {
		return
	}
	frame := s.local.element.Frame()
	s.idle.Seed(frame)
	s.bus.Publish(protocol.New(protocol.AudioData{Data: frame}))
	telemetry.FramesBroadcastTotal.WithLabelValues("audio").Inc()
}

// ApplySeek optimistically moves the local element and returns the
// clamped target the backend mutation should carry.
func (s *Synchronizer) ApplySeek(targetMS int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dur int64
	if el := s.local.element; el != nil {
		dur = el.DurationMS()
	}
	if dur == 0 && s.song != nil {
		dur = s.song.DurationMS
	}

	if targetMS < 0 {
		targetMS = 0
	}
	if dur > 0 && targetMS > dur {
		targetMS = dur
	}

	if el := s.local.element; el != nil {
		if err := el.SeekMS(targetMS); err != nil {
			s.log.Warn().Err(err).Int64("target_ms", targetMS).Msg("optimistic seek failed")
		} else {
			s.bus.Publish(protocol.New(protocol.SongData{
				DurationMS: dur,
				CurrentMS:  targetMS,
			}))
		}
	}
	return targetMS
}

// teardownLocked fully releases the current element and invalidates any
// pending start burst.
func (s *Synchronizer) teardownLocked() {
	if el := s.local.element; el != nil {
		if err := el.Close(); err != nil {
			s.log.Warn().Err(err).Msg("closing audio element")
		}
	}
	s.local = localPlaybackState{}
	s.burstGen++
	s.retryPending = false
}

// setStateLocked applies a transition, logging and refusing anything
// outside the allowed set.
func (s *Synchronizer) setStateLocked(to State) {
	if s.state == to {
		return
	}
	if !canTransition(s.state, to) {
		s.log.Error().
			Err(ErrInvalidTransition).
			Str("from", string(s.state)).
			Str("to", string(to)).
			Msg("refusing state transition")
		return
	}
	s.log.Debug().Str("from", string(s.state)).Str("to", string(to)).Msg("state transition")
	s.state = to
}

// reconcileIdleLocked enforces the idle-XOR-playing rule: the idle loop
// runs exactly when no real audio is advancing. Frame ticks keep the
// animator seeded with live bars, so a restart continues from the last
// real heights.
func (s *Synchronizer) reconcileIdleLocked() {
	if s.state == StatePlaying {
		s.idle.Stop()
		return
	}
	s.idle.Start(s.state == StatePreparing)
}

func (s *Synchronizer) rememberSongLocked(song *models.Song) {
	if song == nil {
		s.song = nil
	} else {
		copied := *song
		s.song = &copied
	}
	s.lastSnapshotAt = time.Now()
}

// songMetaChanged compares two songs ignoring the elapsed counter, so
// the song-update broadcast fires on identity, metadata, pause, or
// download-state changes and not on every poll.
func songMetaChanged(prev, next *models.Song) bool {
	if (prev == nil) != (next == nil) {
		return true
	}
	if prev == nil {
		return false
	}
	a, b := *prev, *next
	a.ElapsedMS, b.ElapsedMS = 0, 0
	return a != b
}
