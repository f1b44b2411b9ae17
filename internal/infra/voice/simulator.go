// Package voice provides a simulated voice connection that "plays" streams
// on a wall-clock timer. It lets the server run without a chat platform.
package voice

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/encore/internal/app/playback"
	"github.com/osa030/encore/internal/domain/track"
)

// ErrDisconnected is returned when using a closed connection.
var ErrDisconnected = errors.New("voice connection closed")

var (
	_ playback.VoiceConnector = (*Simulator)(nil)
	_ playback.Connection     = (*Connection)(nil)
)

// Config holds simulator configuration.
type Config struct {
	TrackLength time.Duration // How long every stream plays
	Tick        time.Duration // Wall-clock polling interval
}

// Simulator opens simulated connections.
type Simulator struct {
	cfg Config

	mu    sync.Mutex
	conns map[string]*Connection // guild ID -> connection
}

// NewSimulator creates a simulator.
func NewSimulator(cfg Config) *Simulator {
	if cfg.TrackLength <= 0 {
		cfg.TrackLength = 3 * time.Minute
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	return &Simulator{cfg: cfg, conns: make(map[string]*Connection)}
}

// Connect opens a connection for the guild, closing any previous one.
func (s *Simulator) Connect(ctx context.Context, guildID, channelID string) (playback.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "connect cancelled")
	}
	if channelID == "" {
		return nil, errors.New("channel id is required")
	}

	c := &Connection{
		guildID:   guildID,
		channelID: channelID,
		length:    s.cfg.TrackLength,
		tick:      s.cfg.Tick,
		volume:    1,
	}

	s.mu.Lock()
	old := s.conns[guildID]
	s.conns[guildID] = c
	s.mu.Unlock()

	if old != nil {
		_ = old.Disconnect()
	}

	zlog.Debug().Msgf("voice: simulated connection opened: guild=%s channel=%s", guildID, channelID)
	return c, nil
}

// Drop simulates the platform closing the guild's connection. The error
// callback receives playback.ErrConnectionLost.
func (s *Simulator) Drop(guildID string) bool {
	s.mu.Lock()
	c := s.conns[guildID]
	delete(s.conns, guildID)
	s.mu.Unlock()

	if c == nil || c.Closed() {
		return false
	}

	c.mu.Lock()
	fn := c.onError
	h := c.current
	c.mu.Unlock()
	_ = c.Disconnect()

	if fn != nil {
		go fn(h, errors.Wrapf(playback.ErrConnectionLost, "guild=%s", guildID))
	}
	return true
}

// Active returns the number of open connections.
func (s *Simulator) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.conns {
		if !c.Closed() {
			n++
		}
	}
	return n
}

// Connection is a simulated voice connection.
type Connection struct {
	guildID   string
	channelID string
	length    time.Duration
	tick      time.Duration

	mu            sync.Mutex
	onIdle        func(*track.StreamHandle)
	onError       func(*track.StreamHandle, error)
	current       *track.StreamHandle
	startTime     time.Time
	pausedAt      *time.Time
	pausedElapsed time.Duration
	timerCancel   func()
	volume        float64
	closed        bool
}

// ChannelID returns the voice channel ID.
func (c *Connection) ChannelID() string {
	return c.channelID
}

// Play starts "playing" the stream. A local file that does not exist fails
// asynchronously through the error callback, like a decoder would.
func (c *Connection) Play(h *track.StreamHandle, volume float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrDisconnected
	}
	if h == nil {
		return errors.New("stream handle is required")
	}

	c.cancelTimerLocked()
	c.current = h
	c.volume = volume
	c.startTime = toWallTime(time.Now())
	c.pausedAt = nil
	c.pausedElapsed = 0

	if h.Local {
		if _, err := os.Stat(h.Location); err != nil {
			fn := c.onError
			c.current = nil
			if fn != nil {
				go fn(h, errors.Wrapf(err, "open %s", h.Location))
			}
			return nil
		}
	}

	c.startTrackTimerLocked(h, c.length)
	return nil
}

// Pause pauses playback.
func (c *Connection) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrDisconnected
	}
	if c.current == nil || c.pausedAt != nil {
		return nil
	}
	c.cancelTimerLocked()
	now := toWallTime(time.Now())
	c.pausedAt = &now
	return nil
}

// Resume resumes paused playback.
func (c *Connection) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrDisconnected
	}
	if c.current == nil || c.pausedAt == nil {
		return nil
	}
	c.pausedElapsed += toWallTime(time.Now()).Sub(*c.pausedAt)
	c.pausedAt = nil
	c.startTrackTimerLocked(c.current, c.remainingLocked())
	return nil
}

// Stop stops the current stream and fires the idle callback.
func (c *Connection) Stop() error {
	c.mu.Lock()
	c.cancelTimerLocked()
	h := c.current
	c.current = nil
	c.pausedAt = nil
	fn := c.onIdle
	c.mu.Unlock()

	if h != nil && fn != nil {
		go fn(h)
	}
	return nil
}

// SetVolume sets the volume.
func (c *Connection) SetVolume(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrDisconnected
	}
	c.volume = v
	return nil
}

// Volume returns the current volume.
func (c *Connection) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// OnIdle registers the callback fired when a stream ends or is stopped.
func (c *Connection) OnIdle(fn func(h *track.StreamHandle)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onIdle = fn
}

// OnError registers the callback fired when a stream fails.
func (c *Connection) OnError(fn func(h *track.StreamHandle, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Disconnect closes the connection. No callbacks fire afterwards.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.cancelTimerLocked()
	c.current = nil
	c.closed = true
	zlog.Debug().Msgf("voice: simulated connection closed: guild=%s channel=%s", c.guildID, c.channelID)
	return nil
}

// Closed reports whether the connection was disconnected.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Position returns how long the current stream has played.
func (c *Connection) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0
	}
	return c.length - c.remainingLocked()
}

func (c *Connection) remainingLocked() time.Duration {
	now := toWallTime(time.Now())
	elapsed := now.Sub(c.startTime) - c.pausedElapsed
	if c.pausedAt != nil {
		elapsed -= now.Sub(*c.pausedAt)
	}
	remaining := c.length - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *Connection) cancelTimerLocked() {
	if c.timerCancel != nil {
		c.timerCancel()
		c.timerCancel = nil
	}
}

// startTrackTimerLocked fires the idle callback once h has played for d.
func (c *Connection) startTrackTimerLocked(h *track.StreamHandle, d time.Duration) {
	c.cancelTimerLocked()
	c.timerCancel = startWallClockTimer(d, c.tick, func() {
		c.mu.Lock()
		if c.closed || c.current != h || c.pausedAt != nil {
			c.mu.Unlock()
			return
		}
		c.current = nil
		c.timerCancel = nil
		fn := c.onIdle
		c.mu.Unlock()

		if fn != nil {
			fn(h)
		}
	})
}

// startWallClockTimer starts a timer that triggers callback after duration, using wall clock.
// Returns a cancel function.
func startWallClockTimer(duration, tick time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if toWallTime(time.Now()).After(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with monotonic clock stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
