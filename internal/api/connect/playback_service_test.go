package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/encore/internal/app/catalog"
	"github.com/osa030/encore/internal/app/matcher"
	"github.com/osa030/encore/internal/app/notification"
	"github.com/osa030/encore/internal/app/playback"
	"github.com/osa030/encore/internal/app/queue"
	"github.com/osa030/encore/internal/app/session"
	"github.com/osa030/encore/internal/domain/track"
)

const testToken = "secret"

type fakePlayback struct {
	mu       sync.Mutex
	err      error
	enqueued []string
	control  session.ControlRequest
	streams  map[string]notification.Stream
}

func newFakePlayback() *fakePlayback {
	return &fakePlayback{streams: make(map[string]notification.Stream)}
}

func (f *fakePlayback) Search(ctx context.Context, source, query string, limit int) ([]track.Track, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []track.Track{
		track.New(track.SourceYouTube, "a", "Song", "Artist", "https://www.youtube.com/watch?v=a", 200*time.Second, ""),
	}, nil
}

func (f *fakePlayback) Join(ctx context.Context, guildID, channelID string) error {
	return f.err
}

func (f *fakePlayback) Enqueue(ctx context.Context, guildID, input string, requester track.Requester) (session.EnqueueResult, error) {
	if f.err != nil {
		return session.EnqueueResult{}, f.err
	}
	f.mu.Lock()
	f.enqueued = append(f.enqueued, guildID+":"+input+":"+requester.Name)
	f.mu.Unlock()

	t := track.New(track.SourceSoundCloud, "b", "Other", "Band", "https://soundcloud.com/band/other", time.Minute, "")
	return session.EnqueueResult{
		Accepted:    true,
		Track:       track.NewQueuedTrack(t, requester),
		Position:    2,
		State:       playback.StatePlaying,
		Alternative: &matcher.Match{Track: t, Score: 0.75, Source: track.SourceSoundCloud},
	}, nil
}

func (f *fakePlayback) Control(ctx context.Context, guildID string, req session.ControlRequest) (session.ControlResult, error) {
	if f.err != nil {
		return session.ControlResult{}, f.err
	}
	f.mu.Lock()
	f.control = req
	f.mu.Unlock()
	return session.ControlResult{
		State:    playback.StatePlaying,
		Vote:     &playback.VoteResult{Votes: 1, Required: 2},
		Loop:     queue.LoopQueue,
		Autoplay: req.Autoplay,
	}, nil
}

func (f *fakePlayback) QueueSnapshot(guildID string, page, size int) (queue.Snapshot, error) {
	if f.err != nil {
		return queue.Snapshot{}, f.err
	}
	q := queue.New()
	q.Enqueue(track.Track{Title: "One", URL: "u1"}, track.Requester{Name: "alice"})
	q.Enqueue(track.Track{Title: "Two", URL: "u2"}, track.Requester{Name: "bob"})
	return q.Page(page, size), nil
}

func (f *fakePlayback) NowPlaying(guildID string) (track.QueuedTrack, bool, error) {
	return track.QueuedTrack{}, false, f.err
}

func (f *fakePlayback) Leave(guildID string) error {
	return f.err
}

func (f *fakePlayback) Status(guildID string) ([]session.GuildStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []session.GuildStatus{{GuildID: "g1", State: playback.StateConnected, ChannelID: "voice-1"}}, nil
}

func (f *fakePlayback) Subscribe(guildID string, stream notification.Stream) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[guildID] = stream
	return "sub-" + guildID
}

func (f *fakePlayback) Unsubscribe(subscriptionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.streams, subscriptionID[len("sub-"):])
}

func (f *fakePlayback) stream(guildID string) notification.Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[guildID]
}

func newTestServer(t *testing.T, fake *fakePlayback) *httptest.Server {
	t.Helper()
	path, handler := NewPlaybackServiceHandler(
		NewPlaybackService(fake),
		connect.WithInterceptors(NewAdminAuthInterceptor(testToken)),
	)
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server, token string) *PlaybackClient {
	return NewPlaybackClient(srv.Client(), srv.URL, connect.WithInterceptors(NewTokenInterceptor(token)))
}

func TestPlaybackService_Enqueue(t *testing.T) {
	fake := newFakePlayback()
	client := newTestClient(newTestServer(t, fake), testToken)

	resp, err := client.Enqueue(context.Background(), &EnqueueRequest{
		GuildID:       "g1",
		Input:         "https://tidal.com/browse/track/1",
		RequesterID:   "u1",
		RequesterName: "alice",
	})
	require.NoError(t, err)

	assert.True(t, resp.Accepted)
	assert.Equal(t, 2, resp.Position)
	assert.Equal(t, "playing", resp.State)
	require.NotNil(t, resp.Track)
	assert.Equal(t, "soundcloud", resp.Track.Source)
	assert.Equal(t, 60, resp.Track.DurationSec)
	assert.Equal(t, "alice", resp.Track.RequesterName)
	require.NotNil(t, resp.Alternative)
	assert.Equal(t, 0.75, resp.Alternative.Score)

	assert.Equal(t, []string{"g1:https://tidal.com/browse/track/1:alice"}, fake.enqueued)
}

func TestPlaybackService_ControlForwardsArguments(t *testing.T) {
	fake := newFakePlayback()
	client := newTestClient(newTestServer(t, fake), testToken)

	resp, err := client.Control(context.Background(), &ControlRequest{
		GuildID:   "g1",
		Action:    "voteskip",
		UserID:    "u2",
		Listeners: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, session.ActionVoteSkip, fake.control.Action)
	assert.Equal(t, 3, fake.control.Listeners)
	assert.Equal(t, "queue", resp.Loop)
	require.NotNil(t, resp.Vote)
	assert.Equal(t, 2, resp.Vote.Required)
}

func TestPlaybackService_ControlAutoplay(t *testing.T) {
	fake := newFakePlayback()
	client := newTestClient(newTestServer(t, fake), testToken)

	resp, err := client.Control(context.Background(), &ControlRequest{
		GuildID:  "g1",
		Action:   "autoplay",
		Autoplay: true,
	})
	require.NoError(t, err)

	assert.Equal(t, session.ActionAutoplay, fake.control.Action)
	assert.True(t, fake.control.Autoplay)
	assert.True(t, resp.Autoplay)
}

func TestPlaybackService_QueueSnapshotAndStatus(t *testing.T) {
	fake := newFakePlayback()
	client := newTestClient(newTestServer(t, fake), testToken)
	ctx := context.Background()

	snap, err := client.QueueSnapshot(ctx, &QueueSnapshotRequest{GuildID: "g1", Page: 1, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 2, snap.TotalPages)
	require.Len(t, snap.Tracks, 1)
	assert.Equal(t, "One", snap.Tracks[0].Title)

	status, err := client.Status(ctx, &StatusRequest{})
	require.NoError(t, err)
	require.Len(t, status.Guilds, 1)
	assert.Equal(t, "connected", status.Guilds[0].State)

	joined, err := client.Join(ctx, &JoinRequest{GuildID: "g1", ChannelID: "voice-1"})
	require.NoError(t, err)
	assert.Equal(t, "connected", joined.State)

	np, err := client.NowPlaying(ctx, &NowPlayingRequest{GuildID: "g1"})
	require.NoError(t, err)
	assert.False(t, np.Playing)

	found, err := client.Search(ctx, &SearchRequest{Query: "song"})
	require.NoError(t, err)
	require.Len(t, found.Tracks, 1)
	assert.Equal(t, 200, found.Tracks[0].DurationSec)
}

func TestPlaybackService_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want connect.Code
	}{
		{"no session", session.ErrNoSession, connect.CodeNotFound},
		{"no results", errors.Wrap(catalog.ErrNoResultsFound, "query"), connect.CodeNotFound},
		{"empty query", session.ErrEmptyQuery, connect.CodeInvalidArgument},
		{"bad index", errors.Wrapf(queue.ErrInvalidQueueIndex, "remove 9"), connect.CodeInvalidArgument},
		{"not playing", playback.ErrNotPlaying, connect.CodeFailedPrecondition},
		{"stream unavailable", errors.Wrap(catalog.ErrStreamUnavailable, "yt-dlp exited"), connect.CodeUnavailable},
		{"connect failed", playback.ErrConnectFailed, connect.CodeUnavailable},
		{"unexpected", errors.New("boom"), connect.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakePlayback()
			fake.err = tt.err
			client := newTestClient(newTestServer(t, fake), testToken)

			_, err := client.Leave(context.Background(), &LeaveRequest{GuildID: "g1"})
			require.Error(t, err)
			assert.Equal(t, tt.want, connect.CodeOf(err))
		})
	}
}

func TestAdminAuthInterceptor(t *testing.T) {
	srv := newTestServer(t, newFakePlayback())

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"wrong token", "guess"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(srv, tt.token)
			_, err := client.Status(context.Background(), &StatusRequest{})
			require.Error(t, err)
			assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
		})
	}
}

func TestPlaybackService_Watch(t *testing.T) {
	fake := newFakePlayback()
	client := newTestClient(newTestServer(t, fake), testToken)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.Watch(ctx, &WatchRequest{GuildID: "g1"})
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Receive(), "stream error: %v", stream.Err())
	initial := stream.Msg()
	assert.Equal(t, EventInitialState, initial.Type)
	assert.Equal(t, "g1", initial.GuildID)
	assert.Equal(t, "connected", initial.State)

	require.Eventually(t, func() bool { return fake.stream("g1") != nil }, 2*time.Second, 5*time.Millisecond)

	qt := track.NewQueuedTrack(track.Track{Title: "Song", URL: "u1"}, track.Requester{Name: "alice"})
	require.NoError(t, fake.stream("g1").Send(&notification.Notification{
		SequenceNo: 7,
		GuildID:    "g1",
		Type:       playback.EventTrackStarted.String(),
		State:      playback.StatePlaying.String(),
		Track:      &qt,
	}))

	require.True(t, stream.Receive(), "stream error: %v", stream.Err())
	ev := stream.Msg()
	assert.Equal(t, uint64(7), ev.SequenceNo)
	assert.Equal(t, "track_started", ev.Type)
	require.NotNil(t, ev.Track)
	assert.Equal(t, "Song", ev.Track.Title)
}

func TestPlaybackService_WatchRequiresToken(t *testing.T) {
	client := newTestClient(newTestServer(t, newFakePlayback()), "")

	stream, err := client.Watch(context.Background(), &WatchRequest{})
	if err == nil {
		defer stream.Close()
		assert.False(t, stream.Receive())
		err = stream.Err()
	}
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}
