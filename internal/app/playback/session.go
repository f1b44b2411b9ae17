package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/osa030/encore/internal/app/catalog"
	"github.com/osa030/encore/internal/app/queue"
	"github.com/osa030/encore/internal/domain/track"
	"github.com/osa030/encore/internal/infra/logger"
)

// Errors
var (
	ErrConnectFailed  = errors.New("failed to connect to voice channel")
	ErrNotConnected   = errors.New("not connected to a voice channel")
	ErrNotPlaying     = errors.New("not playing")
	ErrNotPaused      = errors.New("not paused")
	ErrNothingToPlay  = errors.New("nothing to play")
	ErrSessionClosed  = errors.New("session closed")
	ErrConnectionLost = errors.New("voice connection lost")
	ErrTrackIsCurrent = errors.New("track is currently playing")
)

// Config holds session configuration.
type Config struct {
	IdleTimeout   time.Duration // Zero disables the inactivity timeout
	DefaultVolume float64       // Initial queue volume; queue default when zero
	EventBuffer   int           // Size of the Events channel
	Autoplay      bool          // Initial autoplay setting
}

// VoteResult is the outcome of a skip vote.
type VoteResult struct {
	Skipped  bool
	Votes    int
	Required int
}

// RequiredVotes returns the skip quorum for n listeners: ceil(n/2), at least 1.
func RequiredVotes(listeners int) int {
	return max(1, (listeners+1)/2)
}

type loopKind int

const (
	loopEnded       loopKind = iota // Connection went idle or errored
	loopPlayNext                    // Start the current track after a skip
	loopIdleTimeout                 // Inactivity timer fired
)

type loopEvent struct {
	kind   loopKind
	gen    uint64
	conn   Connection
	handle *track.StreamHandle // Stream the connection reported on
	err    error
}

// attempt is one start of the current track.
type attempt struct {
	gen uint64
	qt  track.QueuedTrack
}

// Session binds one queue to one voice connection for a guild.
//
// The mutex guards every field below it. Connection callbacks are posted to
// a single event-loop goroutine, so track ends and user commands are applied
// one at a time. Stream resolution runs without the lock; each start attempt
// carries a generation number and results from superseded attempts are
// discarded.
type Session struct {
	guildID   string
	cfg       Config
	connector VoiceConnector
	resolver  StreamResolver
	onClose   func(guildID string)
	log       zerolog.Logger

	mu           sync.Mutex
	queue        *queue.Queue
	conn         Connection
	state        State
	loading      bool
	handle       *track.StreamHandle
	votes        map[string]struct{}
	autoplay     bool
	closed       bool
	eventsClosed bool
	gen          uint64
	idleTimer    *time.Timer
	idleGen      uint64

	loopCh  chan loopEvent
	eventCh chan Event

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a session and starts its event loop. onClose is called once
// after the session leaves; it may be nil.
func New(guildID string, cfg Config, connector VoiceConnector, resolver StreamResolver, onClose func(guildID string)) *Session {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 16
	}

	q := queue.New()
	if cfg.DefaultVolume > 0 {
		q.SetVolume(cfg.DefaultVolume)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		guildID:   guildID,
		cfg:       cfg,
		connector: connector,
		resolver:  resolver,
		onClose:   onClose,
		log:       logger.Guild(guildID),
		queue:     q,
		state:     StateIdle,
		votes:     make(map[string]struct{}),
		autoplay:  cfg.Autoplay,
		loopCh:    make(chan loopEvent, cfg.EventBuffer),
		eventCh:   make(chan Event, cfg.EventBuffer),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// GuildID returns the guild the session belongs to.
func (s *Session) GuildID() string {
	return s.guildID
}

// Events returns the event channel. It is closed when the session leaves.
func (s *Session) Events() <-chan Event {
	return s.eventCh
}

// Done is closed once the event loop has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Join connects to a voice channel. Joining the channel the session is
// already connected to is a no-op; joining another channel moves the
// connection and stops the current track.
func (s *Session) Join(ctx context.Context, channelID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.conn != nil && s.conn.ChannelID() == channelID {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	conn, err := s.connector.Connect(ctx, s.guildID, channelID)
	if err != nil {
		return errors.WithSecondaryError(errors.Wrapf(ErrConnectFailed, "guild=%s channel=%s: %v", s.guildID, channelID, err), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		_ = conn.Disconnect()
		return ErrSessionClosed
	}

	if old := s.conn; old != nil {
		s.log.Info().Msgf("playback: moving voice connection: from=%s to=%s", old.ChannelID(), channelID)
		s.haltLocked()
		if err := old.Disconnect(); err != nil {
			s.log.Warn().Msgf("playback: failed to disconnect previous channel: error=%v", err)
		}
	}

	s.conn = conn
	conn.OnIdle(func(h *track.StreamHandle) {
		s.post(loopEvent{kind: loopEnded, conn: conn, handle: h})
	})
	conn.OnError(func(h *track.StreamHandle, err error) {
		s.post(loopEvent{kind: loopEnded, conn: conn, handle: h, err: err})
	})

	s.state = StateConnected
	s.armIdleTimerLocked()
	s.sendEventLocked(Event{Type: EventStateChanged, State: s.state})
	s.log.Info().Msgf("playback: joined voice channel: channel=%s", channelID)
	return nil
}

// EnqueueAndMaybeStart adds a track and starts it when the session is
// connected and idle. It returns the 1-based queue position. A track that
// cannot be streamed is dropped and the error is returned.
func (s *Session) EnqueueAndMaybeStart(ctx context.Context, qt track.QueuedTrack) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSessionClosed
	}
	pos := s.queue.Push(qt)
	s.sendEventLocked(Event{Type: EventTrackQueued, Track: &qt, State: s.state})
	start := s.conn != nil && s.state == StateConnected && !s.loading
	s.mu.Unlock()

	s.log.Debug().Msgf("playback: enqueued track: track=%s position=%d", qt.Track.DisplayName(), pos)

	if !start {
		return pos, nil
	}
	if err := s.startCurrent(ctx, true); err != nil {
		return pos, err
	}
	return pos, nil
}

// Play starts the current track, or resumes when paused.
func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrSessionClosed
	case s.conn == nil:
		s.mu.Unlock()
		return ErrNotConnected
	case s.state == StatePlaying || s.loading:
		s.mu.Unlock()
		return nil
	case s.state == StatePaused:
		defer s.mu.Unlock()
		return s.resumeLocked()
	}
	if _, ok := s.queue.Current(); !ok {
		s.mu.Unlock()
		return ErrNothingToPlay
	}
	s.mu.Unlock()

	return s.startCurrent(ctx, true)
}

// Pause pauses the current playback.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying {
		return ErrNotPlaying
	}
	if err := s.conn.Pause(); err != nil {
		return errors.Wrap(err, "failed to pause")
	}

	s.state = StatePaused
	s.armIdleTimerLocked()
	s.sendEventLocked(Event{Type: EventStateChanged, Track: s.currentLocked(), State: s.state})
	return nil
}

// Resume resumes paused playback.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resumeLocked()
}

func (s *Session) resumeLocked() error {
	if s.state != StatePaused {
		return ErrNotPaused
	}
	if err := s.conn.Resume(); err != nil {
		return errors.Wrap(err, "failed to resume")
	}

	s.state = StatePlaying
	s.disarmIdleTimerLocked()
	s.sendEventLocked(Event{Type: EventStateChanged, Track: s.currentLocked(), State: s.state})
	return nil
}

// Stop stops playback and clears the queue. The connection stays open.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return ErrNotConnected
	}

	s.haltLocked()
	s.queue.Clear()
	s.armIdleTimerLocked()
	s.sendEventLocked(Event{Type: EventStateChanged, State: s.state})
	s.log.Info().Msg("playback: stopped")
	return nil
}

// Skip stops the current track and moves to the next one.
func (s *Session) Skip(initiator string) (track.QueuedTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.skipLocked(initiator)
}

func (s *Session) skipLocked(initiator string) (track.QueuedTrack, error) {
	if !s.state.Active() {
		return track.QueuedTrack{}, ErrNotPlaying
	}

	skipped, _ := s.queue.Current()
	s.haltLocked()
	s.queue.Next()

	s.sendEventLocked(Event{Type: EventTrackSkipped, Track: &skipped, State: s.state, Reason: initiator})
	s.log.Info().Msgf("playback: skipped track: track=%s by=%s", skipped.Track.DisplayName(), initiator)

	s.post(loopEvent{kind: loopPlayNext, gen: s.gen})
	return skipped, nil
}

// VoteSkip records a skip vote and skips once a majority of listeners agree.
func (s *Session) VoteSkip(userID string, listeners int) (VoteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Active() {
		return VoteResult{}, ErrNotPlaying
	}

	s.votes[userID] = struct{}{}
	res := VoteResult{Votes: len(s.votes), Required: RequiredVotes(listeners)}
	if res.Votes < res.Required {
		return res, nil
	}

	if _, err := s.skipLocked("vote"); err != nil {
		return res, err
	}
	res.Skipped = true
	return res, nil
}

// Leave disconnects, clears the queue and closes the session. It is safe to
// call in any state and more than once.
func (s *Session) Leave() error {
	return s.leave("left")
}

func (s *Session) leave(reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.haltLocked()
	s.closed = true
	s.disarmIdleTimerLocked()

	var err error
	if s.conn != nil {
		err = s.conn.Disconnect()
		s.conn = nil
	}
	s.queue.Clear()
	s.state = StateIdle

	s.sendEventLocked(Event{Type: EventSessionClosed, State: s.state, Reason: reason})
	s.eventsClosed = true
	close(s.eventCh)
	s.cancel()
	s.mu.Unlock()

	s.log.Info().Msgf("playback: session closed: reason=%s", reason)

	if s.onClose != nil {
		s.onClose(s.guildID)
	}
	if err != nil {
		return errors.Wrap(err, "failed to disconnect")
	}
	return nil
}

// SetVolume sets the volume and returns the clamped value.
func (s *Session) SetVolume(v float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.queue.SetVolume(v)
	if s.conn != nil && s.state.Active() {
		if err := s.conn.SetVolume(stored); err != nil {
			return stored, errors.Wrap(err, "failed to set volume")
		}
	}
	return stored, nil
}

// SetLoop sets the loop mode.
func (s *Session) SetLoop(mode queue.LoopMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.SetLoop(mode)
}

// ToggleLoop cycles the loop mode and returns the new one.
func (s *Session) ToggleLoop() queue.LoopMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.ToggleLoop()
}

// SetShuffle enables or disables shuffle.
func (s *Session) SetShuffle(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.SetShuffle(enabled)
}

// SetAutoplay enables or disables autoplay.
func (s *Session) SetAutoplay(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoplay = enabled
}

// Autoplay reports whether an exhausted queue should be refilled with
// related tracks.
func (s *Session) Autoplay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoplay
}

// MoveTrack moves a queued track (0-based indices).
func (s *Session) MoveTrack(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.MoveTrack(from, to)
}

// RemoveTrack removes a queued track (0-based index). The track that is
// playing or loading cannot be removed; skip it instead.
func (s *Session) RemoveTrack(index int) (track.QueuedTrack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index == s.queue.Index() && (s.state.Active() || s.loading) {
		return track.QueuedTrack{}, errors.Wrapf(ErrTrackIsCurrent, "index %d", index)
	}
	return s.queue.RemoveTrack(index)
}

// Snapshot returns a page of the queue.
func (s *Session) Snapshot(page, size int) queue.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Page(page, size)
}

// Contains reports whether a track with the URL is current or upcoming.
func (s *Session) Contains(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Contains(url)
}

// Upcoming returns the number of tracks after the current one.
func (s *Session) Upcoming() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Upcoming()
}

// Pending returns the current track and everything after it.
func (s *Session) Pending() []track.QueuedTrack {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.queue.Tracks()
	if i := s.queue.Index(); i < len(all) {
		return all[i:]
	}
	return []track.QueuedTrack{}
}

// History returns up to n tracks before the cursor, most recent first.
// n <= 0 returns all of them.
func (s *Session) History(n int) []track.QueuedTrack {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.queue.Tracks()
	end := min(s.queue.Index(), len(all))
	if n <= 0 || n > end {
		n = end
	}
	out := make([]track.QueuedTrack, 0, n)
	for i := end - 1; i >= end-n; i-- {
		out = append(out, all[i])
	}
	return out
}

// NowPlaying returns the track loaded into the connection.
func (s *Session) NowPlaying() (track.QueuedTrack, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Active() {
		return track.QueuedTrack{}, false
	}
	return s.queue.Current()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ChannelID returns the connected voice channel or "".
func (s *Session) ChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.ChannelID()
}

// Votes returns the number of skip votes for the current track.
func (s *Session) Votes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.votes)
}

// Closed reports whether the session has left.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// run is the event loop.
func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.loopCh:
			s.dispatch(ev)
		}
	}
}

func (s *Session) dispatch(ev loopEvent) {
	switch ev.kind {
	case loopEnded:
		s.onEnded(ev)
	case loopPlayNext:
		s.mu.Lock()
		current := !s.closed && ev.gen == s.gen
		s.mu.Unlock()
		if current {
			s.playFromLoop()
		}
	case loopIdleTimeout:
		s.onIdleTimeout(ev.gen)
	}
}

// post hands an event to the loop without blocking the caller.
func (s *Session) post(ev loopEvent) {
	select {
	case s.loopCh <- ev:
	case <-s.ctx.Done():
	default:
		s.log.Warn().Msgf("playback: event loop backlog, delivering asynchronously: kind=%d", ev.kind)
		go func() {
			select {
			case s.loopCh <- ev:
			case <-s.ctx.Done():
			}
		}()
	}
}

func (s *Session) onEnded(ev loopEvent) {
	s.mu.Lock()
	if s.closed || ev.conn != s.conn {
		s.mu.Unlock()
		return
	}

	if ev.err != nil && errors.Is(ev.err, ErrConnectionLost) {
		s.mu.Unlock()
		s.log.Warn().Msgf("playback: voice connection lost: error=%v", ev.err)
		_ = s.leave("connection lost")
		return
	}

	// Idles fired by Stop refer to a handle that has already been released.
	if ev.handle == nil || ev.handle != s.handle || !s.state.Active() {
		s.mu.Unlock()
		return
	}

	ended, _ := s.queue.Current()
	s.releaseLocked()
	s.state = StateConnected

	if ev.err != nil {
		s.log.Warn().Msgf("playback: stream error, skipping: track=%s error=%v", ended.Track.DisplayName(), ev.err)
		s.sendEventLocked(Event{Type: EventTrackFailed, Track: &ended, State: s.state, Reason: ev.err.Error()})
		s.queue.Next()
	} else {
		s.log.Debug().Msgf("playback: track ended: track=%s", ended.Track.DisplayName())
		s.sendEventLocked(Event{Type: EventTrackEnded, Track: &ended, State: s.state})
		s.queue.Advance()
	}
	s.mu.Unlock()

	s.playFromLoop()
}

func (s *Session) onIdleTimeout(gen uint64) {
	s.mu.Lock()
	expired := !s.closed && gen == s.idleGen && !s.loading &&
		(s.state == StateConnected || s.state == StatePaused)
	s.mu.Unlock()

	if expired {
		s.log.Info().Msgf("playback: inactivity timeout reached: timeout=%v", s.cfg.IdleTimeout)
		_ = s.leave("idle timeout")
	}
}

// playFromLoop starts the current track, skipping tracks that fail to
// resolve. It gives up once as many tracks as the queue holds have failed.
func (s *Session) playFromLoop() {
	for failures := 1; ; failures++ {
		err := s.startCurrent(s.ctx, false)
		if err == nil {
			return
		}

		s.mu.Lock()
		if failures >= s.queue.Len() {
			if !s.closed && !s.loading && !s.state.Active() {
				s.log.Warn().Msgf("playback: giving up after consecutive failures: failures=%d", failures)
				s.sendEventLocked(Event{Type: EventQueueEmpty, State: s.state})
			}
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

// startCurrent resolves and plays the current track. A nil error means the
// track started, there was nothing to start, or the attempt was superseded.
// When direct is set a failed track is removed from the queue; otherwise the
// cursor moves past it.
func (s *Session) startCurrent(ctx context.Context, direct bool) error {
	s.mu.Lock()
	a, ok := s.beginLocked()
	s.mu.Unlock()
	if !ok {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	h, err := s.resolver.ResolveStream(ctx, a.qt.Track)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(a, h, err, direct)
}

func (s *Session) beginLocked() (attempt, bool) {
	if s.closed || s.conn == nil || s.state != StateConnected || s.loading {
		return attempt{}, false
	}

	qt, ok := s.queue.Current()
	if !ok {
		s.sendEventLocked(Event{Type: EventQueueEmpty, State: s.state})
		s.armIdleTimerLocked()
		return attempt{}, false
	}

	s.gen++
	s.loading = true
	s.disarmIdleTimerLocked()
	return attempt{gen: s.gen, qt: qt}, true
}

func (s *Session) commitLocked(a attempt, h *track.StreamHandle, err error, direct bool) error {
	if s.closed || a.gen != s.gen {
		s.closeHandle(h)
		s.log.Debug().Msgf("playback: discarding superseded stream: track=%s", a.qt.Track.DisplayName())
		return nil
	}
	s.loading = false

	if err == nil && h == nil {
		err = errors.Wrap(catalog.ErrStreamUnavailable, "resolver returned no stream")
	}
	if err == nil {
		if perr := s.conn.Play(h, s.queue.Volume()); perr != nil {
			s.closeHandle(h)
			err = errors.Wrap(perr, "voice play")
		}
	}

	qt := a.qt
	if err != nil {
		if !errors.Is(err, catalog.ErrStreamUnavailable) {
			err = errors.WithSecondaryError(errors.Wrapf(catalog.ErrStreamUnavailable, "%v", err), err)
		}
		s.log.Warn().Msgf("playback: failed to start track: track=%s error=%v", qt.Track.DisplayName(), err)
		s.sendEventLocked(Event{Type: EventTrackFailed, Track: &qt, State: s.state, Reason: err.Error()})
		if direct {
			_, _ = s.queue.RemoveTrack(s.queue.Index())
			// Tracks queued while this one was loading only got a position.
			if _, ok := s.queue.Current(); ok {
				s.post(loopEvent{kind: loopPlayNext, gen: s.gen})
				return err
			}
		} else {
			s.queue.Next()
		}
		s.armIdleTimerLocked()
		return err
	}

	s.handle = h
	s.state = StatePlaying
	s.votes = make(map[string]struct{})
	s.sendEventLocked(Event{Type: EventTrackStarted, Track: &qt, State: s.state})
	s.log.Info().Msgf("playback: track started: track=%s source=%s", qt.Track.DisplayName(), qt.Track.Source)
	return nil
}

// haltLocked stops the live resource without advancing the queue and
// invalidates any in-flight start attempt.
func (s *Session) haltLocked() {
	s.gen++
	s.loading = false
	if s.conn != nil && s.state.Active() {
		if err := s.conn.Stop(); err != nil {
			s.log.Warn().Msgf("playback: failed to stop audio: error=%v", err)
		}
	}
	s.releaseLocked()
	if s.conn != nil {
		s.state = StateConnected
	} else {
		s.state = StateIdle
	}
}

// releaseLocked closes the current stream handle and resets votes.
func (s *Session) releaseLocked() {
	s.closeHandle(s.handle)
	s.handle = nil
	s.votes = make(map[string]struct{})
}

func (s *Session) closeHandle(h *track.StreamHandle) {
	if err := h.Close(); err != nil {
		s.log.Warn().Msgf("playback: failed to release stream: location=%s error=%v", h.Location, err)
	}
}

func (s *Session) currentLocked() *track.QueuedTrack {
	qt, ok := s.queue.Current()
	if !ok {
		return nil
	}
	return &qt
}

func (s *Session) armIdleTimerLocked() {
	s.disarmIdleTimerLocked()
	if s.cfg.IdleTimeout <= 0 || s.closed {
		return
	}
	gen := s.idleGen
	s.idleTimer = time.AfterFunc(s.cfg.IdleTimeout, func() {
		s.post(loopEvent{kind: loopIdleTimeout, gen: gen})
	})
}

func (s *Session) disarmIdleTimerLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	s.idleGen++
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (s *Session) sendEventLocked(e Event) {
	if s.eventsClosed {
		return
	}
	e.GuildID = s.guildID
	select {
	case s.eventCh <- e:
	default:
		// Channel full, drop event
		s.log.Debug().Msgf("playback: event dropped: type=%s", e.Type)
	}
}
