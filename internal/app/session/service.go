// Package session provides the per-guild session registry and the
// caller-facing playback service.
package session

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/encore/internal/app/catalog"
	"github.com/osa030/encore/internal/app/filter"
	"github.com/osa030/encore/internal/app/matcher"
	"github.com/osa030/encore/internal/app/notification"
	"github.com/osa030/encore/internal/app/playback"
	"github.com/osa030/encore/internal/app/queue"
	"github.com/osa030/encore/internal/domain/track"
)

var (
	ErrNoSession    = errors.New("no session for guild")
	ErrEmptyQuery   = errors.New("query is empty")
	ErrInvalidInput = errors.New("invalid input")
)

// Catalog is the part of the catalog aggregator the service needs.
type Catalog interface {
	Search(ctx context.Context, source track.Source, query string, limit int) ([]track.Track, error)
	Classify(input string) (track.Source, bool)
	GetTrackByURL(ctx context.Context, url string) (track.Track, error)
	Others(source track.Source) []catalog.Provider
	ResolveStream(ctx context.Context, t track.Track) (*track.StreamHandle, error)
}

// Alternatives finds playable replacements for links no provider handles.
type Alternatives interface {
	FindAlternative(ctx context.Context, url string) (matcher.Match, error)
	FindAlternativeFrom(ctx context.Context, url string, searchers []matcher.Searcher) (matcher.Match, error)
}

// Config holds service settings.
type Config struct {
	Playback        playback.Config
	SearchLimit     int
	AutoplayTimeout time.Duration // Bound for one autoplay lookup
}

// Deps holds the service collaborators. Filters, Notifier, Autoplay, Scope
// and Cleanup may be nil.
type Deps struct {
	Catalog   Catalog
	Matcher   Alternatives
	Connector playback.VoiceConnector
	Filters   *filter.Chain
	Notifier  *notification.Manager
	Autoplay  Autoplayer

	// Scope tags resolve contexts with the guild, e.g. ytdlp.WithScope.
	Scope func(ctx context.Context, guildID string) context.Context
	// Cleanup removes per-guild resources after a session leaves.
	Cleanup func(guildID string) error
}

// Service is the entry point for every playback operation.
type Service struct {
	cfg      Config
	deps     Deps
	registry *Registry

	autoplayStates sync.Map // *playback.Session -> *autoplayState
}

// NewService creates a new playback service.
func NewService(cfg Config, deps Deps) *Service {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 10
	}
	if cfg.AutoplayTimeout <= 0 {
		cfg.AutoplayTimeout = 20 * time.Second
	}
	if deps.Filters == nil {
		deps.Filters = filter.NewChain()
	}
	if deps.Notifier == nil {
		deps.Notifier = notification.NewManager()
	}

	s := &Service{cfg: cfg, deps: deps}
	s.registry = NewRegistry(s.newSession)
	return s
}

func (s *Service) newSession(guildID string, release func(string)) *playback.Session {
	resolver := scopedResolver{guildID: guildID, resolver: s.deps.Catalog, scope: s.deps.Scope}
	sess := playback.New(guildID, s.cfg.Playback, s.deps.Connector, resolver, func(id string) {
		release(id)
		if s.deps.Cleanup != nil {
			if err := s.deps.Cleanup(id); err != nil {
				zlog.Warn().Msgf("session: failed to clean up guild resources: guild=%s error=%v", id, err)
			}
		}
	})

	// Fan session events out to subscribers until the session closes.
	st := &autoplayState{}
	s.autoplayStates.Store(sess, st)
	go func() {
		defer s.autoplayStates.Delete(sess)
		for e := range sess.Events() {
			s.deps.Notifier.Publish(e)
			s.handleEvent(sess, st, e)
		}
	}()

	zlog.Info().Msgf("session: created: guild=%s", guildID)
	return sess
}

// scopedResolver tags every resolve with the guild.
type scopedResolver struct {
	guildID  string
	resolver playback.StreamResolver
	scope    func(ctx context.Context, guildID string) context.Context
}

func (r scopedResolver) ResolveStream(ctx context.Context, t track.Track) (*track.StreamHandle, error) {
	if r.scope != nil {
		ctx = r.scope(ctx, r.guildID)
	}
	return r.resolver.ResolveStream(ctx, t)
}

// Registry returns the session registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Notifier returns the notification manager.
func (s *Service) Notifier() *notification.Manager {
	return s.deps.Notifier
}

// Subscribe registers a stream for the guild's events ("" for every guild).
func (s *Service) Subscribe(guildID string, stream notification.Stream) string {
	return s.deps.Notifier.Subscribe(guildID, stream)
}

// Unsubscribe removes an event subscription.
func (s *Service) Unsubscribe(subscriptionID string) {
	s.deps.Notifier.Unsubscribe(subscriptionID)
}

// Search queries one provider, or all of them for "auto" or "".
func (s *Service) Search(ctx context.Context, source, query string, limit int) ([]track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = s.cfg.SearchLimit
	}

	src := track.SourceAuto
	if source != "" {
		src = track.ParseSource(source)
	}
	return s.deps.Catalog.Search(ctx, src, query, limit)
}

// Join connects the guild's session to a voice channel.
func (s *Service) Join(ctx context.Context, guildID, channelID string) error {
	if guildID == "" || channelID == "" {
		return errors.Wrap(ErrInvalidInput, "guild and channel are required")
	}

	sess, created := s.registry.GetOrCreate(guildID)
	if err := sess.Join(ctx, channelID); err != nil {
		if created {
			_ = sess.Leave()
		}
		return err
	}
	return nil
}

// EnqueueResult describes the outcome of an enqueue request.
type EnqueueResult struct {
	Accepted    bool
	Code        string // Filter rejection code when not accepted
	Track       track.QueuedTrack
	Position    int
	State       playback.State
	Alternative *matcher.Match // Set when the track replaces an unsupported link
}

// Enqueue resolves input into a track and queues it. Input is a URL a
// provider recognizes, a URL from another platform (matched by title), or a
// search query whose first hit is used.
func (s *Service) Enqueue(ctx context.Context, guildID, input string, requester track.Requester) (EnqueueResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return EnqueueResult{}, ErrEmptyQuery
	}
	if guildID == "" {
		return EnqueueResult{}, errors.Wrap(ErrInvalidInput, "guild is required")
	}

	t, alt, err := s.resolveInput(ctx, input)
	if err != nil {
		zlog.Warn().Msgf("session: enqueue failed: guild=%s input=%q error=%v", guildID, input, err)
		return EnqueueResult{}, err
	}

	sess, _ := s.registry.GetOrCreate(guildID)

	req := filter.Request{GuildID: guildID, Requester: requester, Queue: sess}
	result := s.deps.Filters.Execute(ctx, req, t)
	zlog.Info().Msgf("session: track request: guild=%s requester=%s track=%q result=%t code=%s",
		guildID, requester.Name, t.DisplayName(), result.Accepted, result.Code)
	if !result.Accepted {
		return EnqueueResult{Accepted: false, Code: result.Code, Alternative: alt}, nil
	}

	qt := track.NewQueuedTrack(t, requester)
	pos, err := sess.EnqueueAndMaybeStart(ctx, qt)
	if err != nil {
		return EnqueueResult{}, err
	}

	return EnqueueResult{
		Accepted:    true,
		Track:       qt,
		Position:    pos,
		State:       sess.State(),
		Alternative: alt,
	}, nil
}

// resolveInput turns enqueue input into a track.
func (s *Service) resolveInput(ctx context.Context, input string) (track.Track, *matcher.Match, error) {
	if !isURL(input) {
		results, err := s.deps.Catalog.Search(ctx, track.SourceAuto, input, 1)
		if err != nil {
			return track.Track{}, nil, err
		}
		if len(results) == 0 {
			return track.Track{}, nil, errors.Wrapf(catalog.ErrNoResultsFound, "query=%q", input)
		}
		return s.enrich(ctx, results[0]), nil, nil
	}

	source, ok := s.deps.Catalog.Classify(input)
	if !ok {
		m, err := s.deps.Matcher.FindAlternative(ctx, input)
		if err != nil {
			return track.Track{}, nil, err
		}
		return s.enrich(ctx, m.Track), &m, nil
	}

	t, err := s.deps.Catalog.GetTrackByURL(ctx, input)
	if err == nil {
		return t, nil, nil
	}

	// A recognized link whose platform cannot serve it, e.g. Spotify
	// without credentials: look for the same title elsewhere.
	others := s.deps.Catalog.Others(source)
	searchers := make([]matcher.Searcher, 0, len(others))
	for _, p := range others {
		searchers = append(searchers, p)
	}
	m, merr := s.deps.Matcher.FindAlternativeFrom(ctx, input, searchers)
	if merr != nil {
		return track.Track{}, nil, errors.CombineErrors(err, merr)
	}
	zlog.Info().Msgf("session: %s link unavailable, using alternative: source=%s title=%q", source, m.Source, m.Track.Title)
	return s.enrich(ctx, m.Track), &m, nil
}

// enrich fills in missing metadata (search hits without a duration) from
// the track's own URL. Failures keep the track as is.
func (s *Service) enrich(ctx context.Context, t track.Track) track.Track {
	if t.Duration > 0 || t.URL == "" || t.Source != track.SourceYouTube {
		return t
	}
	full, err := s.deps.Catalog.GetTrackByURL(ctx, t.URL)
	if err != nil {
		zlog.Debug().Msgf("session: failed to enrich track: url=%s error=%v", t.URL, err)
		return t
	}
	if full.Source == "" {
		full.Source = t.Source
	}
	return full
}

func isURL(input string) bool {
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return false
	}
	u, err := url.Parse(input)
	return err == nil && u.Host != ""
}

// QueueSnapshot returns a page of the guild's queue.
func (s *Service) QueueSnapshot(guildID string, page, size int) (queue.Snapshot, error) {
	sess, err := s.registry.Get(guildID)
	if err != nil {
		return queue.Snapshot{}, err
	}
	return sess.Snapshot(page, size), nil
}

// NowPlaying returns the guild's playing or paused track.
func (s *Service) NowPlaying(guildID string) (track.QueuedTrack, bool, error) {
	sess, err := s.registry.Get(guildID)
	if err != nil {
		return track.QueuedTrack{}, false, err
	}
	qt, ok := sess.NowPlaying()
	return qt, ok, nil
}

// Leave disconnects the guild's session and destroys it.
func (s *Service) Leave(guildID string) error {
	sess, err := s.registry.Get(guildID)
	if err != nil {
		return err
	}
	return sess.Leave()
}

// GuildStatus summarizes one session.
type GuildStatus struct {
	GuildID    string
	State      playback.State
	ChannelID  string
	NowPlaying *track.QueuedTrack
	QueueSize  int
	Upcoming   int
	Loop       queue.LoopMode
	Volume     float64
	Autoplay   bool
}

// Status returns the status of one guild, or of every guild when guildID is empty.
func (s *Service) Status(guildID string) ([]GuildStatus, error) {
	var sessions []*playback.Session
	if guildID == "" {
		sessions = s.registry.All()
	} else {
		sess, err := s.registry.Get(guildID)
		if err != nil {
			return nil, err
		}
		sessions = []*playback.Session{sess}
	}

	result := make([]GuildStatus, 0, len(sessions))
	for _, sess := range sessions {
		snap := sess.Snapshot(1, 1)
		st := GuildStatus{
			GuildID:   sess.GuildID(),
			State:     sess.State(),
			ChannelID: sess.ChannelID(),
			QueueSize: snap.Total,
			Upcoming:  sess.Upcoming(),
			Loop:      snap.Loop,
			Volume:    snap.Volume,
			Autoplay:  sess.Autoplay(),
		}
		if qt, ok := sess.NowPlaying(); ok {
			st.NowPlaying = &qt
		}
		result = append(result, st)
	}
	return result, nil
}

// Close leaves every session.
func (s *Service) Close() {
	s.registry.Close()
	s.deps.Notifier.Close()
}
