package session

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/encore/internal/app/playback"
	"github.com/osa030/encore/internal/app/queue"
	"github.com/osa030/encore/internal/domain/track"
)

// Action is a playback control command.
type Action string

const (
	ActionPlay     Action = "play"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionStop     Action = "stop"
	ActionSkip     Action = "skip"
	ActionVoteSkip Action = "voteskip"
	ActionVolume   Action = "volume"
	ActionLoop     Action = "loop"
	ActionShuffle  Action = "shuffle"
	ActionMove     Action = "move"
	ActionRemove   Action = "remove"
	ActionAutoplay Action = "autoplay"
)

// ControlRequest carries an action and its arguments. Queue positions are
// 1-based as shown to users.
type ControlRequest struct {
	Action    Action
	UserID    string  // skip initiator or vote caster
	Listeners int     // voteskip: listeners in the channel
	Volume    float64 // volume: 0..1
	Loop      string  // loop: off|track|queue, "" toggles
	Shuffle   bool    // shuffle
	Autoplay  bool    // autoplay
	From      int     // move
	To        int     // move
	Index     int     // remove
}

// ControlResult reports the effect of a control action.
type ControlResult struct {
	State    playback.State
	Track    *track.QueuedTrack   // skipped or removed track
	Vote     *playback.VoteResult // voteskip
	Volume   float64
	Loop     queue.LoopMode
	Shuffle  bool
	Autoplay bool
}

// Control applies an action to the guild's session.
func (s *Service) Control(ctx context.Context, guildID string, req ControlRequest) (ControlResult, error) {
	sess, err := s.registry.Get(guildID)
	if err != nil {
		return ControlResult{}, err
	}

	var res ControlResult
	switch req.Action {
	case ActionPlay:
		err = sess.Play(ctx)
	case ActionPause:
		err = sess.Pause()
	case ActionResume:
		err = sess.Resume()
	case ActionStop:
		err = sess.Stop()
	case ActionSkip:
		var qt track.QueuedTrack
		if qt, err = sess.Skip(req.UserID); err == nil {
			res.Track = &qt
		}
	case ActionVoteSkip:
		if req.UserID == "" {
			return ControlResult{}, errors.Wrap(ErrInvalidInput, "voteskip requires a user")
		}
		var vote playback.VoteResult
		if vote, err = sess.VoteSkip(req.UserID, req.Listeners); err == nil {
			res.Vote = &vote
		}
	case ActionVolume:
		_, err = sess.SetVolume(req.Volume)
	case ActionLoop:
		if req.Loop == "" {
			sess.ToggleLoop()
			break
		}
		var mode queue.LoopMode
		if mode, err = queue.ParseLoopMode(req.Loop); err != nil {
			return ControlResult{}, errors.WithSecondaryError(errors.Wrapf(ErrInvalidInput, "%v", err), err)
		}
		sess.SetLoop(mode)
	case ActionShuffle:
		sess.SetShuffle(req.Shuffle)
	case ActionAutoplay:
		sess.SetAutoplay(req.Autoplay)
		if req.Autoplay {
			if st, ok := s.autoplayStates.Load(sess); ok {
				st := st.(*autoplayState)
				st.suppressed.Store(false)
				s.maybeAutoplay(sess, st)
			}
		}
	case ActionMove:
		err = sess.MoveTrack(req.From-1, req.To-1)
	case ActionRemove:
		var qt track.QueuedTrack
		if qt, err = sess.RemoveTrack(req.Index - 1); err == nil {
			res.Track = &qt
		}
	default:
		return ControlResult{}, errors.Wrapf(ErrInvalidInput, "unknown action: %s", req.Action)
	}
	if err != nil {
		zlog.Debug().Msgf("session: control rejected: guild=%s action=%s error=%v", guildID, req.Action, err)
		return ControlResult{}, err
	}

	snap := sess.Snapshot(1, 1)
	res.State = sess.State()
	res.Volume = snap.Volume
	res.Loop = snap.Loop
	res.Shuffle = snap.Shuffle
	res.Autoplay = sess.Autoplay()
	return res, nil
}
