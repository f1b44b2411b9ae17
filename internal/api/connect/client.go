package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// PlaybackClient calls a remote PlaybackService.
type PlaybackClient struct {
	search        *connect.Client[SearchRequest, SearchResponse]
	join          *connect.Client[JoinRequest, JoinResponse]
	enqueue       *connect.Client[EnqueueRequest, EnqueueResponse]
	control       *connect.Client[ControlRequest, ControlResponse]
	queueSnapshot *connect.Client[QueueSnapshotRequest, QueueSnapshotResponse]
	nowPlaying    *connect.Client[NowPlayingRequest, NowPlayingResponse]
	leave         *connect.Client[LeaveRequest, LeaveResponse]
	status        *connect.Client[StatusRequest, StatusResponse]
	watch         *connect.Client[WatchRequest, EventInfo]
}

// NewPlaybackClient creates a client for the service at baseURL.
func NewPlaybackClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PlaybackClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)

	return &PlaybackClient{
		search:        connect.NewClient[SearchRequest, SearchResponse](httpClient, baseURL+SearchProcedure, opts...),
		join:          connect.NewClient[JoinRequest, JoinResponse](httpClient, baseURL+JoinProcedure, opts...),
		enqueue:       connect.NewClient[EnqueueRequest, EnqueueResponse](httpClient, baseURL+EnqueueProcedure, opts...),
		control:       connect.NewClient[ControlRequest, ControlResponse](httpClient, baseURL+ControlProcedure, opts...),
		queueSnapshot: connect.NewClient[QueueSnapshotRequest, QueueSnapshotResponse](httpClient, baseURL+QueueSnapshotProcedure, opts...),
		nowPlaying:    connect.NewClient[NowPlayingRequest, NowPlayingResponse](httpClient, baseURL+NowPlayingProcedure, opts...),
		leave:         connect.NewClient[LeaveRequest, LeaveResponse](httpClient, baseURL+LeaveProcedure, opts...),
		status:        connect.NewClient[StatusRequest, StatusResponse](httpClient, baseURL+StatusProcedure, opts...),
		watch:         connect.NewClient[WatchRequest, EventInfo](httpClient, baseURL+WatchProcedure, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *PlaybackClient) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	return call(ctx, c.search, req)
}

func (c *PlaybackClient) Join(ctx context.Context, req *JoinRequest) (*JoinResponse, error) {
	return call(ctx, c.join, req)
}

func (c *PlaybackClient) Enqueue(ctx context.Context, req *EnqueueRequest) (*EnqueueResponse, error) {
	return call(ctx, c.enqueue, req)
}

func (c *PlaybackClient) Control(ctx context.Context, req *ControlRequest) (*ControlResponse, error) {
	return call(ctx, c.control, req)
}

func (c *PlaybackClient) QueueSnapshot(ctx context.Context, req *QueueSnapshotRequest) (*QueueSnapshotResponse, error) {
	return call(ctx, c.queueSnapshot, req)
}

func (c *PlaybackClient) NowPlaying(ctx context.Context, req *NowPlayingRequest) (*NowPlayingResponse, error) {
	return call(ctx, c.nowPlaying, req)
}

func (c *PlaybackClient) Leave(ctx context.Context, req *LeaveRequest) (*LeaveResponse, error) {
	return call(ctx, c.leave, req)
}

func (c *PlaybackClient) Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	return call(ctx, c.status, req)
}

// Watch opens an event stream. The caller must Close it.
func (c *PlaybackClient) Watch(ctx context.Context, req *WatchRequest) (*connect.ServerStreamForClient[EventInfo], error) {
	return c.watch.CallServerStream(ctx, connect.NewRequest(req))
}
