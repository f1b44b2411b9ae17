package session

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/encore/internal/app/filter"
	"github.com/osa030/encore/internal/app/playback"
	"github.com/osa030/encore/internal/domain/track"
)

// AutoplayRequester is the requester of tracks queued by autoplay.
var AutoplayRequester = track.Requester{ID: "autoplay", Name: "Autoplay"}

// Autoplayer picks a follow-up track for a play history (most recent first).
type Autoplayer interface {
	Next(ctx context.Context, history []track.Track) (track.Track, error)
}

// autoplayState tracks one session's autoplay lookups. A failed lookup
// suppresses further ones until a track starts, so an unplayable
// suggestion cannot loop.
type autoplayState struct {
	running    atomic.Bool
	suppressed atomic.Bool
}

// handleEvent reacts to a session event after it has been published.
func (s *Service) handleEvent(sess *playback.Session, st *autoplayState, e playback.Event) {
	switch e.Type {
	case playback.EventTrackStarted:
		st.suppressed.Store(false)
	case playback.EventQueueEmpty:
		s.maybeAutoplay(sess, st)
	}
}

// maybeAutoplay starts a lookup in the background if autoplay applies.
func (s *Service) maybeAutoplay(sess *playback.Session, st *autoplayState) {
	if s.deps.Autoplay == nil || !sess.Autoplay() || st.suppressed.Load() {
		return
	}
	if !st.running.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer st.running.Store(false)
		if err := s.autoplay(sess); err != nil {
			st.suppressed.Store(true)
			zlog.Info().Msgf("session: autoplay found nothing to play: guild=%s error=%v", sess.GuildID(), err)
		}
	}()
}

// autoplay queues one related track if the session is still connected and
// idle.
func (s *Service) autoplay(sess *playback.Session) error {
	if sess.State() != playback.StateConnected || sess.Upcoming() > 0 {
		return nil
	}

	queued := sess.History(0)
	if len(queued) == 0 {
		return nil
	}
	history := make([]track.Track, len(queued))
	for i, qt := range queued {
		history[i] = qt.Track
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AutoplayTimeout)
	t, err := s.deps.Autoplay.Next(ctx, history)
	cancel()
	if err != nil {
		return err
	}

	// Someone may have queued a track while the lookup ran.
	if sess.Closed() || sess.State() != playback.StateConnected {
		return nil
	}

	req := filter.Request{GuildID: sess.GuildID(), Requester: AutoplayRequester, Queue: sess}
	if result := s.deps.Filters.Execute(context.Background(), req, t); !result.Accepted {
		return errors.Newf("suggestion %q rejected: %s", t.DisplayName(), result.Code)
	}

	if _, err := sess.EnqueueAndMaybeStart(context.Background(), track.NewQueuedTrack(t, AutoplayRequester)); err != nil {
		return errors.Wrapf(err, "start suggestion %q", t.DisplayName())
	}
	zlog.Info().Msgf("session: autoplay queued track: guild=%s track=%q", sess.GuildID(), t.DisplayName())
	return nil
}
