package connect

import (
	"time"

	"github.com/osa030/encore/internal/app/notification"
	"github.com/osa030/encore/internal/app/queue"
	"github.com/osa030/encore/internal/app/session"
	"github.com/osa030/encore/internal/domain/track"
)

// TrackInfo describes a track on the wire.
type TrackInfo struct {
	Source        string    `json:"source"`
	ID            string    `json:"id,omitempty"`
	Title         string    `json:"title"`
	Artist        string    `json:"artist,omitempty"`
	URL           string    `json:"url"`
	DurationSec   int       `json:"duration_sec"`
	ThumbnailURL  string    `json:"thumbnail_url,omitempty"`
	RequesterID   string    `json:"requester_id,omitempty"`
	RequesterName string    `json:"requester_name,omitempty"`
	AddedAt       time.Time `json:"added_at,omitzero"`
}

type SearchRequest struct {
	Source string `json:"source"`
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
}

type SearchResponse struct {
	Tracks []TrackInfo `json:"tracks"`
}

type JoinRequest struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
}

type JoinResponse struct {
	State string `json:"state"`
}

type EnqueueRequest struct {
	GuildID       string `json:"guild_id"`
	Input         string `json:"input"`
	RequesterID   string `json:"requester_id"`
	RequesterName string `json:"requester_name"`
}

type AlternativeInfo struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

type EnqueueResponse struct {
	Accepted    bool             `json:"accepted"`
	Code        string           `json:"code,omitempty"`
	Track       *TrackInfo       `json:"track,omitempty"`
	Position    int              `json:"position"`
	State       string           `json:"state"`
	Alternative *AlternativeInfo `json:"alternative,omitempty"`
}

type ControlRequest struct {
	GuildID   string  `json:"guild_id"`
	Action    string  `json:"action"`
	UserID    string  `json:"user_id,omitempty"`
	Listeners int     `json:"listeners,omitempty"`
	Volume    float64 `json:"volume,omitempty"`
	Loop      string  `json:"loop,omitempty"`
	Shuffle   bool    `json:"shuffle,omitempty"`
	Autoplay  bool    `json:"autoplay,omitempty"`
	From      int     `json:"from,omitempty"`
	To        int     `json:"to,omitempty"`
	Index     int     `json:"index,omitempty"`
}

type VoteInfo struct {
	Skipped  bool `json:"skipped"`
	Votes    int  `json:"votes"`
	Required int  `json:"required"`
}

type ControlResponse struct {
	State    string     `json:"state"`
	Track    *TrackInfo `json:"track,omitempty"`
	Vote     *VoteInfo  `json:"vote,omitempty"`
	Volume   float64    `json:"volume"`
	Loop     string     `json:"loop"`
	Shuffle  bool       `json:"shuffle"`
	Autoplay bool       `json:"autoplay"`
}

type QueueSnapshotRequest struct {
	GuildID  string `json:"guild_id"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

type QueueSnapshotResponse struct {
	Tracks       []TrackInfo `json:"tracks"`
	CurrentIndex int         `json:"current_index"`
	Page         int         `json:"page"`
	TotalPages   int         `json:"total_pages"`
	Total        int         `json:"total"`
	Loop         string      `json:"loop"`
	Shuffle      bool        `json:"shuffle"`
	Volume       float64     `json:"volume"`
}

type NowPlayingRequest struct {
	GuildID string `json:"guild_id"`
}

type NowPlayingResponse struct {
	Playing bool       `json:"playing"`
	Track   *TrackInfo `json:"track,omitempty"`
}

type LeaveRequest struct {
	GuildID string `json:"guild_id"`
}

type LeaveResponse struct{}

type StatusRequest struct {
	GuildID string `json:"guild_id,omitempty"`
}

type GuildInfo struct {
	GuildID    string     `json:"guild_id"`
	State      string     `json:"state"`
	ChannelID  string     `json:"channel_id,omitempty"`
	NowPlaying *TrackInfo `json:"now_playing,omitempty"`
	QueueSize  int        `json:"queue_size"`
	Upcoming   int        `json:"upcoming"`
	Loop       string     `json:"loop"`
	Volume     float64    `json:"volume"`
	Autoplay   bool       `json:"autoplay"`
}

type StatusResponse struct {
	Guilds []GuildInfo `json:"guilds"`
}

type WatchRequest struct {
	GuildID string `json:"guild_id,omitempty"`
}

type EventInfo struct {
	SequenceNo uint64     `json:"sequence_no"`
	GuildID    string     `json:"guild_id"`
	Type       string     `json:"type"`
	State      string     `json:"state"`
	Track      *TrackInfo `json:"track,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Time       time.Time  `json:"time"`
}

func toTrackInfo(t track.Track) TrackInfo {
	return TrackInfo{
		Source:       t.Source.String(),
		ID:           t.ID,
		Title:        t.Title,
		Artist:       t.Artist,
		URL:          t.URL,
		DurationSec:  t.DurationSeconds(),
		ThumbnailURL: t.ThumbnailURL,
	}
}

func toQueuedInfo(qt track.QueuedTrack) *TrackInfo {
	info := toTrackInfo(qt.Track)
	info.RequesterID = qt.Requester.ID
	info.RequesterName = qt.Requester.Name
	info.AddedAt = qt.AddedAt
	return &info
}

func toTrackInfos(tracks []track.Track) []TrackInfo {
	out := make([]TrackInfo, len(tracks))
	for i, t := range tracks {
		out[i] = toTrackInfo(t)
	}
	return out
}

func toSnapshotResponse(s queue.Snapshot) *QueueSnapshotResponse {
	resp := &QueueSnapshotResponse{
		Tracks:       make([]TrackInfo, len(s.Tracks)),
		CurrentIndex: s.CurrentIndex,
		Page:         s.Page,
		TotalPages:   s.TotalPages,
		Total:        s.Total,
		Loop:         s.Loop.String(),
		Shuffle:      s.Shuffle,
		Volume:       s.Volume,
	}
	for i, qt := range s.Tracks {
		resp.Tracks[i] = *toQueuedInfo(qt)
	}
	return resp
}

func toGuildInfo(st session.GuildStatus) GuildInfo {
	info := GuildInfo{
		GuildID:   st.GuildID,
		State:     st.State.String(),
		ChannelID: st.ChannelID,
		QueueSize: st.QueueSize,
		Upcoming:  st.Upcoming,
		Loop:      st.Loop.String(),
		Volume:    st.Volume,
		Autoplay:  st.Autoplay,
	}
	if st.NowPlaying != nil {
		info.NowPlaying = toQueuedInfo(*st.NowPlaying)
	}
	return info
}

// EventInitialState is the type of the status messages a Watch stream
// starts with. They carry no sequence number.
const EventInitialState = "initial_state"

func toInitialState(st session.GuildStatus, now time.Time) *EventInfo {
	info := &EventInfo{
		GuildID: st.GuildID,
		Type:    EventInitialState,
		State:   st.State.String(),
		Time:    now,
	}
	if st.NowPlaying != nil {
		info.Track = toQueuedInfo(*st.NowPlaying)
	}
	return info
}

func toEventInfo(n *notification.Notification) *EventInfo {
	info := &EventInfo{
		SequenceNo: n.SequenceNo,
		GuildID:    n.GuildID,
		Type:       n.Type,
		State:      n.State,
		Reason:     n.Reason,
		Time:       n.Time,
	}
	if n.Track != nil {
		info.Track = toQueuedInfo(*n.Track)
	}
	return info
}
