package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/osa030/encore/internal/domain/track"
	"github.com/osa030/encore/internal/infra/config"
	"github.com/osa030/encore/internal/infra/ytdlp"
)

type fakeExtractor struct {
	mu          sync.Mutex
	searchRes   []ytdlp.Result
	searchErr   error
	metadata    ytdlp.Result
	metadataErr error
	resolveErr  error
	prefixes    []string
	targets     []string
}

func (f *fakeExtractor) Search(ctx context.Context, prefix, query string, limit int) ([]ytdlp.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefixes = append(f.prefixes, prefix)
	return f.searchRes, f.searchErr
}

func (f *fakeExtractor) Metadata(ctx context.Context, url string) (ytdlp.Result, error) {
	return f.metadata, f.metadataErr
}

func (f *fakeExtractor) Resolve(ctx context.Context, target string) (*track.StreamHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return track.NewStreamHandle("https://cdn.example/"+target, false, nil), nil
}

type fakeSearcher struct {
	tracks []track.Track
	err    error
	video  track.Track
}

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	return f.tracks, f.err
}

func (f *fakeSearcher) GetVideo(ctx context.Context, input string) (track.Track, error) {
	return f.video, f.err
}

func (f *fakeSearcher) GetTrack(ctx context.Context, trackID string) (track.Track, error) {
	return f.video, f.err
}

// hangingSearcher blocks every call until the context ends.
type hangingSearcher struct{}

func (hangingSearcher) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingSearcher) GetVideo(ctx context.Context, input string) (track.Track, error) {
	<-ctx.Done()
	return track.Track{}, ctx.Err()
}

// stubProvider is a provider with canned results.
type stubProvider struct {
	source  track.Source
	tracks  []track.Track
	pattern string
	delay   time.Duration
}

func (s *stubProvider) Source() track.Source { return s.source }

func (s *stubProvider) Search(ctx context.Context, query string, limit int) []track.Track {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.tracks
}

func (s *stubProvider) ResolveStream(ctx context.Context, t track.Track) (*track.StreamHandle, error) {
	return track.NewStreamHandle(string(s.source)+":"+t.ID, false, nil), nil
}

func (s *stubProvider) IsRecognizedURL(input string) bool {
	return s.pattern != "" && input == s.pattern
}

func mk(source track.Source, id string) track.Track {
	return track.New(source, id, "title "+id, "", "https://example.com/"+id, 0, "")
}

func TestProviders_SearchAbsorbsFailures(t *testing.T) {
	down := errors.New("platform down")
	ex := &fakeExtractor{searchErr: down}

	providers := []Provider{
		NewYouTubeProvider(&fakeSearcher{err: down}, ex),
		NewYouTubeMusicProvider(&fakeSearcher{err: down}, ex),
		NewSoundCloudProvider(ex),
		NewSpotifyProvider(&fakeSearcher{err: down}, ex),
		NewSpotifyProvider(nil, ex),
	}

	for _, p := range providers {
		t.Run(p.Source().String(), func(t *testing.T) {
			got := p.Search(context.Background(), "query", 5)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestSoundCloudProvider_Search(t *testing.T) {
	ex := &fakeExtractor{searchRes: []ytdlp.Result{
		{ID: "1", Title: "Song", Uploader: "Band", URL: "https://soundcloud.com/band/song", Duration: 61500 * time.Millisecond},
	}}
	p := NewSoundCloudProvider(ex)

	got := p.Search(context.Background(), "song", 3)
	require.Len(t, got, 1)
	assert.Equal(t, track.SourceSoundCloud, got[0].Source)
	assert.Equal(t, "Band", got[0].Artist)
	assert.Equal(t, 61*time.Second, got[0].Duration)
	assert.Equal(t, []string{"scsearch"}, ex.prefixes)
}

func TestSpotifyProvider_ResolvesThroughYouTubeSearch(t *testing.T) {
	ex := &fakeExtractor{}
	p := NewSpotifyProvider(nil, ex)

	h, err := p.ResolveStream(context.Background(), track.New(track.SourceSpotify, "id", "Song", "Artist", "", 0, ""))
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.Equal(t, []string{"ytsearch1:Artist - Song"}, ex.targets)
}

func TestSpotifyProvider_GetTrackByURLWithoutCredentials(t *testing.T) {
	p := NewSpotifyProvider(nil, &fakeExtractor{})
	_, err := p.GetTrackByURL(context.Background(), "https://open.spotify.com/track/abc")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestResolveStream_ClassifiesFailures(t *testing.T) {
	ex := &fakeExtractor{resolveErr: errors.New("exit status 1")}
	p := NewYouTubeProvider(&fakeSearcher{}, ex)

	_, err := p.ResolveStream(context.Background(), mk(track.SourceYouTube, "x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStreamUnavailable)
	assert.Contains(t, err.Error(), "exit status 1")

	_, err = NewSoundCloudProvider(ex).ResolveStream(context.Background(), track.Track{})
	assert.True(t, cerrors.Is(err, ErrStreamUnavailable))
}

func TestYouTubeProvider_ResolveFallsBackToID(t *testing.T) {
	ex := &fakeExtractor{}
	p := NewYouTubeProvider(&fakeSearcher{}, ex)

	_, err := p.ResolveStream(context.Background(), track.Track{ID: "dQw4w9WgXcQ", Source: track.SourceYouTube})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}, ex.targets)
}

func TestYouTubeMusicProvider_GetTrackByURL(t *testing.T) {
	ex := &fakeExtractor{metadata: ytdlp.Result{ID: "dQw4w9WgXcQ", Title: "Song", Uploader: "Artist", URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}}
	p := NewYouTubeMusicProvider(&fakeSearcher{}, ex)

	got, err := p.GetTrackByURL(context.Background(), "https://music.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, track.SourceYouTubeMusic, got.Source)
	assert.Equal(t, "https://music.youtube.com/watch?v=dQw4w9WgXcQ", got.URL)
}

func TestProviders_IsRecognizedURL(t *testing.T) {
	ex := &fakeExtractor{}
	yt := NewYouTubeProvider(&fakeSearcher{}, ex)
	ytm := NewYouTubeMusicProvider(&fakeSearcher{}, ex)
	sc := NewSoundCloudProvider(ex)
	sp := NewSpotifyProvider(nil, ex)

	tests := []struct {
		input string
		want  Provider
	}{
		{input: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: yt},
		{input: "https://youtu.be/dQw4w9WgXcQ", want: yt},
		{input: "https://music.youtube.com/watch?v=dQw4w9WgXcQ", want: ytm},
		{input: "https://soundcloud.com/artist/track-name", want: sc},
		{input: "https://on.soundcloud.com/AbC123", want: sc},
		{input: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", want: sp},
		{input: "spotify:track:4uLU6hMCjMI75M1A2tKUQC", want: sp},
		{input: "https://www.deezer.com/track/3135556", want: nil},
		{input: "never gonna give you up", want: nil},
	}

	all := []Provider{yt, ytm, sc, sp}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			for _, p := range all {
				assert.Equal(t, p == tt.want, p.IsRecognizedURL(tt.input), "provider=%s", p.Source())
			}
		})
	}
}

func TestAggregator_AutoSearchKeepsPriorityOrder(t *testing.T) {
	// The first provider answers last; results must still come first.
	a := NewAggregator([]ProviderWithLimit{
		{Provider: &stubProvider{source: track.SourceYouTube, tracks: []track.Track{mk(track.SourceYouTube, "y1")}, delay: 20 * time.Millisecond}},
		{Provider: &stubProvider{source: track.SourceSoundCloud}},
		{Provider: &stubProvider{source: track.SourceSpotify, tracks: []track.Track{mk(track.SourceSpotify, "s1"), mk(track.SourceSpotify, "s2")}}},
	})

	got, err := a.Search(context.Background(), track.SourceAuto, "q", 5)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "y1", got[0].ID)
	assert.Equal(t, "s1", got[1].ID)
	assert.Equal(t, "s2", got[2].ID)
}

func TestAggregator_SearchErrors(t *testing.T) {
	a := NewAggregator([]ProviderWithLimit{
		{Provider: &stubProvider{source: track.SourceYouTube}},
	})

	_, err := a.Search(context.Background(), track.SourceAuto, "q", 5)
	assert.True(t, cerrors.Is(err, ErrNoResultsFound))

	_, err = a.Search(context.Background(), track.SourceYouTube, "q", 5)
	assert.True(t, cerrors.Is(err, ErrNoResultsFound))

	_, err = a.Search(context.Background(), track.SourceSpotify, "q", 5)
	assert.True(t, cerrors.Is(err, ErrUnknownSource))
}

func TestAggregator_ClassifyAndLookup(t *testing.T) {
	yt := &stubProvider{source: track.SourceYouTube, pattern: "yt-link"}
	sc := &stubProvider{source: track.SourceSoundCloud, pattern: "sc-link"}
	a := NewAggregator([]ProviderWithLimit{{Provider: yt}, {Provider: sc}, {Provider: yt}})

	src, ok := a.Classify("sc-link")
	assert.True(t, ok)
	assert.Equal(t, track.SourceSoundCloud, src)

	_, ok = a.Classify("other")
	assert.False(t, ok)

	assert.Equal(t, []track.Source{track.SourceYouTube, track.SourceSoundCloud}, a.Sources())
	assert.Len(t, a.Providers(), 2)

	others := a.Others(track.SourceYouTube)
	require.Len(t, others, 1)
	assert.Equal(t, track.SourceSoundCloud, others[0].Source())

	_, ok = a.Provider(track.SourceSpotify)
	assert.False(t, ok)
}

func TestAggregator_GetTrackByURL(t *testing.T) {
	ex := &fakeExtractor{}
	want := mk(track.SourceYouTube, "dQw4w9WgXcQ")
	a := NewAggregator([]ProviderWithLimit{
		{Provider: NewYouTubeProvider(&fakeSearcher{video: want}, ex)},
		{Provider: &stubProvider{source: track.SourceSoundCloud, pattern: "sc-link"}},
	})

	got, err := a.GetTrackByURL(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = a.GetTrackByURL(context.Background(), "sc-link")
	assert.True(t, cerrors.Is(err, ErrProviderUnavailable))

	_, err = a.GetTrackByURL(context.Background(), "https://example.com")
	assert.True(t, cerrors.Is(err, ErrUnknownSource))
}

func TestAggregator_ResolveStreamRoutesBySource(t *testing.T) {
	a := NewAggregator([]ProviderWithLimit{
		{Provider: &stubProvider{source: track.SourceYouTube}},
		{Provider: &stubProvider{source: track.SourceSoundCloud}},
	})

	h, err := a.ResolveStream(context.Background(), mk(track.SourceSoundCloud, "abc"))
	require.NoError(t, err)
	assert.Equal(t, "soundcloud:abc", h.Location)

	_, err = a.ResolveStream(context.Background(), mk(track.SourceSpotify, "abc"))
	assert.True(t, cerrors.Is(err, ErrStreamUnavailable))
}

func TestAggregator_LimiterHonoursContext(t *testing.T) {
	lim := rate.NewLimiter(rate.Every(time.Hour), 1)
	a := NewAggregator([]ProviderWithLimit{
		{Provider: &stubProvider{source: track.SourceYouTube, tracks: []track.Track{mk(track.SourceYouTube, "1")}}, Limiter: lim},
	})

	_, err := a.Search(context.Background(), track.SourceYouTube, "q", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = a.Search(ctx, track.SourceYouTube, "q", 1)
	assert.True(t, cerrors.Is(err, ErrNoResultsFound))
}

func TestAggregator_MetadataCallsHaveDeadline(t *testing.T) {
	a := NewAggregator([]ProviderWithLimit{
		{Provider: NewYouTubeProvider(hangingSearcher{}, &fakeExtractor{}), Timeout: 20 * time.Millisecond},
	})

	start := time.Now()
	_, err := a.Search(context.Background(), track.SourceYouTube, "q", 1)
	assert.True(t, cerrors.Is(err, ErrNoResultsFound))

	_, err = a.GetTrackByURL(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDecodeProviderSettings(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		want     ProviderSettings
		wantErr  bool
	}{
		{name: "defaults", settings: nil, want: ProviderSettings{RatePerSec: 2, Burst: 4, TimeoutSec: 10}},
		{name: "custom", settings: map[string]any{"rate_per_sec": 0.5, "burst": 1, "timeout_sec": 3}, want: ProviderSettings{RatePerSec: 0.5, Burst: 1, TimeoutSec: 3}},
		{name: "timeout too long", settings: map[string]any{"timeout_sec": 600}, wantErr: true},
		{name: "too fast", settings: map[string]any{"rate_per_sec": 1000}, wantErr: true},
		{name: "wrong type", settings: map[string]any{"burst": "many"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeProviderSettings(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewAggregatorFromConfig(t *testing.T) {
	clients := Clients{
		Extractor:    &fakeExtractor{},
		YouTube:      &fakeSearcher{},
		YouTubeMusic: &fakeSearcher{},
	}

	cfg := &config.Config{Catalog: config.CatalogConfig{Providers: config.DefaultProviders}}
	a, err := NewAggregatorFromConfig(cfg, clients)
	require.NoError(t, err)
	assert.Equal(t, []track.Source{
		track.SourceYouTube, track.SourceYouTubeMusic, track.SourceSoundCloud, track.SourceSpotify,
	}, a.Sources())

	_, err = NewAggregatorFromConfig(&config.Config{}, clients)
	assert.Error(t, err)

	bad := &config.Config{Catalog: config.CatalogConfig{Providers: []config.ProviderConfig{{Type: "napster"}}}}
	_, err = NewAggregatorFromConfig(bad, clients)
	assert.Error(t, err)

	_, err = NewAggregatorFromConfig(cfg, Clients{Extractor: &fakeExtractor{}})
	assert.Error(t, err)
}
