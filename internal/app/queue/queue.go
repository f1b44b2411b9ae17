// Package queue provides the per-guild track queue with a play cursor.
package queue

import (
	"math"
	"math/rand/v2"

	"github.com/cockroachdb/errors"

	"github.com/osa030/encore/internal/domain/track"
)

// ErrInvalidQueueIndex is returned when an index argument is out of range.
var ErrInvalidQueueIndex = errors.New("invalid queue index")

// LoopMode controls what Advance does at the end of a track.
type LoopMode int

const (
	LoopOff LoopMode = iota
	LoopTrack
	LoopQueue
)

// String returns the string representation of the loop mode.
func (m LoopMode) String() string {
	switch m {
	case LoopOff:
		return "off"
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// ParseLoopMode converts a string into a LoopMode.
func ParseLoopMode(s string) (LoopMode, error) {
	switch s {
	case "off", "none", "":
		return LoopOff, nil
	case "track", "song":
		return LoopTrack, nil
	case "queue", "all":
		return LoopQueue, nil
	default:
		return LoopOff, errors.Newf("unknown loop mode: %s", s)
	}
}

// DefaultVolume is the volume a new queue starts with.
const DefaultVolume = 0.5

// Queue is an ordered list of tracks with a cursor.
//
// Queue is not safe for concurrent use. The owning playback session
// serializes every call.
type Queue struct {
	tracks   []track.QueuedTrack
	current  int
	loop     LoopMode
	shuffle  bool
	volume   float64
	shuffler func(n int, swap func(i, j int))
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		tracks:   []track.QueuedTrack{},
		volume:   DefaultVolume,
		shuffler: rand.Shuffle,
	}
}

// Enqueue appends a track and returns its 1-based position.
func (q *Queue) Enqueue(t track.Track, requester track.Requester) int {
	return q.Push(track.NewQueuedTrack(t, requester))
}

// Push appends an already wrapped track and returns its 1-based position.
func (q *Queue) Push(qt track.QueuedTrack) int {
	q.tracks = append(q.tracks, qt)
	return len(q.tracks)
}

// Current returns the track under the cursor.
func (q *Queue) Current() (track.QueuedTrack, bool) {
	if q.current < 0 || q.current >= len(q.tracks) {
		return track.QueuedTrack{}, false
	}
	return q.tracks[q.current], true
}

// Advance moves the cursor according to the loop mode.
// It returns false when the queue is exhausted.
func (q *Queue) Advance() bool {
	if len(q.tracks) == 0 {
		q.current = 0
		return false
	}

	switch q.loop {
	case LoopTrack:
		if q.current >= len(q.tracks) {
			return false
		}
		return true
	case LoopQueue:
		if q.current >= len(q.tracks) {
			q.current = 0
			return true
		}
		q.current = (q.current + 1) % len(q.tracks)
		return true
	default:
		if q.current < len(q.tracks) {
			q.current++
		}
		return q.current < len(q.tracks)
	}
}

// Next moves off the current track even in LoopTrack mode, which otherwise
// behaves like LoopOff here. It is used for skips and failed tracks.
func (q *Queue) Next() bool {
	if q.loop != LoopTrack {
		return q.Advance()
	}
	if q.current < len(q.tracks) {
		q.current++
	}
	return q.current < len(q.tracks)
}

// MoveTrack moves the track at from to position to (both 0-based).
// The cursor keeps pointing at the same track.
func (q *Queue) MoveTrack(from, to int) error {
	if !q.valid(from) || !q.valid(to) {
		return errors.Wrapf(ErrInvalidQueueIndex, "move %d -> %d (len=%d)", from, to, len(q.tracks))
	}
	if from == to {
		return nil
	}

	moved := q.tracks[from]
	if from < to {
		copy(q.tracks[from:to], q.tracks[from+1:to+1])
	} else {
		copy(q.tracks[to+1:from+1], q.tracks[to:from])
	}
	q.tracks[to] = moved

	switch {
	case q.current == from:
		q.current = to
	case from < q.current && to >= q.current:
		q.current--
	case from > q.current && to <= q.current:
		q.current++
	}
	return nil
}

// RemoveTrack removes the track at index (0-based) and returns it.
// Removing the current track leaves the cursor on the track that followed it.
func (q *Queue) RemoveTrack(index int) (track.QueuedTrack, error) {
	if !q.valid(index) {
		return track.QueuedTrack{}, errors.Wrapf(ErrInvalidQueueIndex, "remove %d (len=%d)", index, len(q.tracks))
	}

	removed := q.tracks[index]
	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)

	if index < q.current {
		q.current--
	}
	if q.current > len(q.tracks) {
		q.current = len(q.tracks)
	}
	if q.loop == LoopQueue && q.current == len(q.tracks) && len(q.tracks) > 0 {
		q.current = 0
	}
	return removed, nil
}

// SetLoop sets the loop mode.
func (q *Queue) SetLoop(mode LoopMode) {
	q.loop = mode
}

// ToggleLoop cycles off -> track -> queue -> off and returns the new mode.
func (q *Queue) ToggleLoop() LoopMode {
	q.loop = (q.loop + 1) % 3
	return q.loop
}

// Loop returns the loop mode.
func (q *Queue) Loop() LoopMode {
	return q.loop
}

// SetShuffle enables or disables shuffle. Enabling it shuffles the tracks
// after the cursor; played tracks and the current one keep their slots.
func (q *Queue) SetShuffle(enabled bool) {
	q.shuffle = enabled
	if !enabled {
		return
	}

	start := q.current + 1
	if start >= len(q.tracks) {
		return
	}
	tail := q.tracks[start:]
	q.shuffler(len(tail), func(i, j int) {
		tail[i], tail[j] = tail[j], tail[i]
	})
}

// Shuffle reports whether shuffle is enabled.
func (q *Queue) Shuffle() bool {
	return q.shuffle
}

// SetVolume sets the volume clamped to [0,1] and returns the stored value.
func (q *Queue) SetVolume(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		v = 0
	case v > 1:
		v = 1
	}
	q.volume = v
	return v
}

// Volume returns the volume.
func (q *Queue) Volume() float64 {
	return q.volume
}

// Clear empties the queue and resets the cursor. Modes are kept.
func (q *Queue) Clear() {
	q.tracks = []track.QueuedTrack{}
	q.current = 0
}

// Len returns the number of tracks, played ones included.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// Index returns the cursor position.
func (q *Queue) Index() int {
	return q.current
}

// Upcoming returns the number of tracks after the cursor.
func (q *Queue) Upcoming() int {
	n := len(q.tracks) - q.current - 1
	if n < 0 {
		return 0
	}
	return n
}

// Tracks returns a copy of the track list.
func (q *Queue) Tracks() []track.QueuedTrack {
	out := make([]track.QueuedTrack, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Contains reports whether a track with the given URL is at or after the cursor.
func (q *Queue) Contains(url string) bool {
	for i := q.current; i < len(q.tracks); i++ {
		if i >= 0 && q.tracks[i].Track.URL == url {
			return true
		}
	}
	return false
}

func (q *Queue) valid(i int) bool {
	return i >= 0 && i < len(q.tracks)
}
