package connect

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/encore/internal/app/notification"
	"github.com/osa030/encore/internal/app/playback"
	"github.com/osa030/encore/internal/app/queue"
	"github.com/osa030/encore/internal/app/session"
	"github.com/osa030/encore/internal/domain/track"
)

// PlaybackServiceName is the fully-qualified name of the service.
const PlaybackServiceName = "encore.v1.PlaybackService"

// Procedure paths.
const (
	SearchProcedure        = "/" + PlaybackServiceName + "/Search"
	JoinProcedure          = "/" + PlaybackServiceName + "/Join"
	EnqueueProcedure       = "/" + PlaybackServiceName + "/Enqueue"
	ControlProcedure       = "/" + PlaybackServiceName + "/Control"
	QueueSnapshotProcedure = "/" + PlaybackServiceName + "/QueueSnapshot"
	NowPlayingProcedure    = "/" + PlaybackServiceName + "/NowPlaying"
	LeaveProcedure         = "/" + PlaybackServiceName + "/Leave"
	StatusProcedure        = "/" + PlaybackServiceName + "/Status"
	WatchProcedure         = "/" + PlaybackServiceName + "/Watch"
)

// watchBuffer is the per-subscriber event backlog.
const watchBuffer = 32

// Playback is the service the RPC layer exposes.
type Playback interface {
	Search(ctx context.Context, source, query string, limit int) ([]track.Track, error)
	Join(ctx context.Context, guildID, channelID string) error
	Enqueue(ctx context.Context, guildID, input string, requester track.Requester) (session.EnqueueResult, error)
	Control(ctx context.Context, guildID string, req session.ControlRequest) (session.ControlResult, error)
	QueueSnapshot(guildID string, page, size int) (queue.Snapshot, error)
	NowPlaying(guildID string) (track.QueuedTrack, bool, error)
	Leave(guildID string) error
	Status(guildID string) ([]session.GuildStatus, error)
	Subscribe(guildID string, stream notification.Stream) string
	Unsubscribe(subscriptionID string)
}

var _ Playback = (*session.Service)(nil)

// PlaybackService implements the PlaybackService RPC.
type PlaybackService struct {
	playback Playback
}

// NewPlaybackService creates a new PlaybackService.
func NewPlaybackService(playback Playback) *PlaybackService {
	return &PlaybackService{playback: playback}
}

// NewPlaybackServiceHandler builds an HTTP handler serving every procedure.
// It returns the path to mount the handler on.
func NewPlaybackServiceHandler(svc *PlaybackService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(SearchProcedure, connect.NewUnaryHandler(SearchProcedure, svc.Search, opts...))
	mux.Handle(JoinProcedure, connect.NewUnaryHandler(JoinProcedure, svc.Join, opts...))
	mux.Handle(EnqueueProcedure, connect.NewUnaryHandler(EnqueueProcedure, svc.Enqueue, opts...))
	mux.Handle(ControlProcedure, connect.NewUnaryHandler(ControlProcedure, svc.Control, opts...))
	mux.Handle(QueueSnapshotProcedure, connect.NewUnaryHandler(QueueSnapshotProcedure, svc.QueueSnapshot, opts...))
	mux.Handle(NowPlayingProcedure, connect.NewUnaryHandler(NowPlayingProcedure, svc.NowPlaying, opts...))
	mux.Handle(LeaveProcedure, connect.NewUnaryHandler(LeaveProcedure, svc.Leave, opts...))
	mux.Handle(StatusProcedure, connect.NewUnaryHandler(StatusProcedure, svc.Status, opts...))
	mux.Handle(WatchProcedure, connect.NewServerStreamHandler(WatchProcedure, svc.Watch, opts...))
	return "/" + PlaybackServiceName + "/", mux
}

// Search searches the catalog.
func (s *PlaybackService) Search(
	ctx context.Context,
	req *connect.Request[SearchRequest],
) (*connect.Response[SearchResponse], error) {
	tracks, err := s.playback.Search(ctx, req.Msg.Source, req.Msg.Query, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SearchResponse{Tracks: toTrackInfos(tracks)}), nil
}

// Join connects a guild to a voice channel.
func (s *PlaybackService) Join(
	ctx context.Context,
	req *connect.Request[JoinRequest],
) (*connect.Response[JoinResponse], error) {
	if err := s.playback.Join(ctx, req.Msg.GuildID, req.Msg.ChannelID); err != nil {
		return nil, toConnectError(err)
	}

	statuses, err := s.playback.Status(req.Msg.GuildID)
	if err != nil || len(statuses) == 0 {
		return connect.NewResponse(&JoinResponse{}), nil
	}
	return connect.NewResponse(&JoinResponse{State: statuses[0].State.String()}), nil
}

// Enqueue adds a track to a guild queue.
func (s *PlaybackService) Enqueue(
	ctx context.Context,
	req *connect.Request[EnqueueRequest],
) (*connect.Response[EnqueueResponse], error) {
	requester := track.Requester{ID: req.Msg.RequesterID, Name: req.Msg.RequesterName}
	res, err := s.playback.Enqueue(ctx, req.Msg.GuildID, req.Msg.Input, requester)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &EnqueueResponse{
		Accepted: res.Accepted,
		Code:     res.Code,
		Position: res.Position,
		State:    res.State.String(),
	}
	if res.Accepted {
		resp.Track = toQueuedInfo(res.Track)
	}
	if res.Alternative != nil {
		resp.Alternative = &AlternativeInfo{Source: res.Alternative.Source.String(), Score: res.Alternative.Score}
	}
	return connect.NewResponse(resp), nil
}

// Control applies a playback action.
func (s *PlaybackService) Control(
	ctx context.Context,
	req *connect.Request[ControlRequest],
) (*connect.Response[ControlResponse], error) {
	m := req.Msg
	res, err := s.playback.Control(ctx, m.GuildID, session.ControlRequest{
		Action:    session.Action(m.Action),
		UserID:    m.UserID,
		Listeners: m.Listeners,
		Volume:    m.Volume,
		Loop:      m.Loop,
		Shuffle:   m.Shuffle,
		Autoplay:  m.Autoplay,
		From:      m.From,
		To:        m.To,
		Index:     m.Index,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &ControlResponse{
		State:    res.State.String(),
		Volume:   res.Volume,
		Loop:     res.Loop.String(),
		Shuffle:  res.Shuffle,
		Autoplay: res.Autoplay,
	}
	if res.Track != nil {
		resp.Track = toQueuedInfo(*res.Track)
	}
	if res.Vote != nil {
		resp.Vote = &VoteInfo{Skipped: res.Vote.Skipped, Votes: res.Vote.Votes, Required: res.Vote.Required}
	}
	return connect.NewResponse(resp), nil
}

// QueueSnapshot returns a page of a guild queue.
func (s *PlaybackService) QueueSnapshot(
	ctx context.Context,
	req *connect.Request[QueueSnapshotRequest],
) (*connect.Response[QueueSnapshotResponse], error) {
	snap, err := s.playback.QueueSnapshot(req.Msg.GuildID, req.Msg.Page, req.Msg.PageSize)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toSnapshotResponse(snap)), nil
}

// NowPlaying returns the playing track.
func (s *PlaybackService) NowPlaying(
	ctx context.Context,
	req *connect.Request[NowPlayingRequest],
) (*connect.Response[NowPlayingResponse], error) {
	qt, ok, err := s.playback.NowPlaying(req.Msg.GuildID)
	if err != nil {
		return nil, toConnectError(err)
	}
	resp := &NowPlayingResponse{Playing: ok}
	if ok {
		resp.Track = toQueuedInfo(qt)
	}
	return connect.NewResponse(resp), nil
}

// Leave disconnects a guild.
func (s *PlaybackService) Leave(
	ctx context.Context,
	req *connect.Request[LeaveRequest],
) (*connect.Response[LeaveResponse], error) {
	if err := s.playback.Leave(req.Msg.GuildID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&LeaveResponse{}), nil
}

// Status returns session status.
func (s *PlaybackService) Status(
	ctx context.Context,
	req *connect.Request[StatusRequest],
) (*connect.Response[StatusResponse], error) {
	statuses, err := s.playback.Status(req.Msg.GuildID)
	if err != nil {
		return nil, toConnectError(err)
	}
	resp := &StatusResponse{Guilds: make([]GuildInfo, len(statuses))}
	for i, st := range statuses {
		resp.Guilds[i] = toGuildInfo(st)
	}
	return connect.NewResponse(resp), nil
}

var errWatchBacklog = errors.New("watch subscriber backlog full")

// chanStream buffers notifications for one Watch call.
type chanStream chan *notification.Notification

func (c chanStream) Send(n *notification.Notification) error {
	select {
	case c <- n:
		return nil
	default:
		return errWatchBacklog
	}
}

// Watch streams session events until the client disconnects.
func (s *PlaybackService) Watch(
	ctx context.Context,
	req *connect.Request[WatchRequest],
	stream *connect.ServerStream[EventInfo],
) error {
	ch := make(chanStream, watchBuffer)
	id := s.playback.Subscribe(req.Msg.GuildID, ch)
	defer s.playback.Unsubscribe(id)

	// Events published meanwhile wait in ch.
	for _, info := range s.initialState(req.Msg.GuildID) {
		if err := stream.Send(info); err != nil {
			return err
		}
	}

	zlog.Debug().Msgf("connect: watch started: subscription=%s guild=%q", id, req.Msg.GuildID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-ch:
			if err := stream.Send(toEventInfo(n)); err != nil {
				return err
			}
		}
	}
}

// initialState returns one status message per watched guild. A guild
// without a session is reported idle.
func (s *PlaybackService) initialState(guildID string) []*EventInfo {
	now := time.Now()
	statuses, err := s.playback.Status(guildID)
	if err != nil || len(statuses) == 0 {
		return []*EventInfo{toInitialState(session.GuildStatus{GuildID: guildID, State: playback.StateIdle}, now)}
	}

	out := make([]*EventInfo, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, toInitialState(st, now))
	}
	return out
}
