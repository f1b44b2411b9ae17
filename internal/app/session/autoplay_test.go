package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/encore/internal/app/playback"
	"github.com/osa030/encore/internal/domain/track"
	"github.com/osa030/encore/internal/infra/voice"
)

type fakeAutoplayer struct {
	mu        sync.Mutex
	picks     []track.Track
	histories [][]track.Track
}

func (a *fakeAutoplayer) Next(ctx context.Context, history []track.Track) (track.Track, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.histories = append(a.histories, history)
	if len(a.picks) == 0 {
		return track.Track{}, errors.New("nothing related")
	}
	t := a.picks[0]
	a.picks = a.picks[1:]
	return t, nil
}

func (a *fakeAutoplayer) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.histories)
}

func newAutoplayEnv(t *testing.T, enabled bool, picks ...track.Track) (*Service, *fakeCatalog, *fakeAutoplayer) {
	t.Helper()
	cat := newFakeCatalog()
	ap := &fakeAutoplayer{picks: picks}
	svc := NewService(Config{
		Playback:        playback.Config{IdleTimeout: time.Hour, Autoplay: enabled},
		AutoplayTimeout: time.Second,
	}, Deps{
		Catalog:   cat,
		Matcher:   &fakeMatcher{},
		Connector: voice.NewSimulator(voice.Config{TrackLength: 50 * time.Millisecond, Tick: 5 * time.Millisecond}),
		Autoplay:  ap,
	})
	t.Cleanup(svc.Close)
	return svc, cat, ap
}

func nowPlayingID(svc *Service, guildID string) string {
	qt, ok, err := svc.NowPlaying(guildID)
	if err != nil || !ok {
		return ""
	}
	return qt.Track.ID
}

func TestAutoplay_RefillsExhaustedQueue(t *testing.T) {
	svc, cat, ap := newAutoplayEnv(t, true, ytTrack("b", "Related"))
	cat.results["song"] = []track.Track{ytTrack("a", "Song")}

	ctx := context.Background()
	require.NoError(t, svc.Join(ctx, "g1", "voice-1"))
	_, err := svc.Enqueue(ctx, "g1", "song", alice)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return nowPlayingID(svc, "g1") == "b"
	}, waitTimeout, 5*time.Millisecond)

	qt, _, err := svc.NowPlaying("g1")
	require.NoError(t, err)
	assert.Equal(t, AutoplayRequester, qt.Requester)

	ap.mu.Lock()
	require.NotEmpty(t, ap.histories)
	assert.Equal(t, "a", ap.histories[0][0].ID)
	ap.mu.Unlock()

	// Once the suggestions run out the failed lookup is not retried.
	require.Eventually(t, func() bool {
		return ap.calls() == 2
	}, waitTimeout, 5*time.Millisecond)
	assert.Never(t, func() bool {
		return ap.calls() > 2
	}, 200*time.Millisecond, 10*time.Millisecond)

	status, err := svc.Status("g1")
	require.NoError(t, err)
	assert.True(t, status[0].Autoplay)
	assert.Equal(t, playback.StateConnected, status[0].State)
}

func TestAutoplay_DisabledLeavesQueueExhausted(t *testing.T) {
	svc, cat, ap := newAutoplayEnv(t, false, ytTrack("b", "Related"))
	cat.results["song"] = []track.Track{ytTrack("a", "Song")}

	ctx := context.Background()
	require.NoError(t, svc.Join(ctx, "g1", "voice-1"))
	_, err := svc.Enqueue(ctx, "g1", "song", alice)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := svc.Status("g1")
		return err == nil && status[0].State == playback.StateConnected && status[0].Upcoming == 0
	}, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, 0, ap.calls())

	res, err := svc.Control(ctx, "g1", ControlRequest{Action: ActionAutoplay, Autoplay: true})
	require.NoError(t, err)
	assert.True(t, res.Autoplay)

	require.Eventually(t, func() bool {
		return nowPlayingID(svc, "g1") == "b"
	}, waitTimeout, 5*time.Millisecond)
}

func TestAutoplay_StopDoesNotRefill(t *testing.T) {
	svc, cat, ap := newAutoplayEnv(t, true, ytTrack("b", "Related"))
	cat.results["song"] = []track.Track{ytTrack("a", "Song")}

	ctx := context.Background()
	require.NoError(t, svc.Join(ctx, "g1", "voice-1"))
	_, err := svc.Enqueue(ctx, "g1", "song", alice)
	require.NoError(t, err)

	_, err = svc.Control(ctx, "g1", ControlRequest{Action: ActionStop})
	require.NoError(t, err)

	assert.Never(t, func() bool {
		return nowPlayingID(svc, "g1") != ""
	}, 200*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 0, ap.calls())
}
