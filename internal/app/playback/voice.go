package playback

import (
	"context"

	"github.com/osa030/encore/internal/domain/track"
)

// VoiceConnector opens voice connections.
type VoiceConnector interface {
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}

// Connection is a live voice connection with an audio player.
//
// Stop and natural completion both fire the OnIdle callback. A failure while
// streaming fires OnError instead. Both callbacks receive the handle that was
// passed to Play, so a late notification for a replaced stream can be told
// apart from the current one. Callbacks may run on any goroutine, including
// synchronously inside Stop.
type Connection interface {
	ChannelID() string
	Play(h *track.StreamHandle, volume float64) error
	Pause() error
	Resume() error
	Stop() error
	SetVolume(v float64) error
	OnIdle(fn func(h *track.StreamHandle))
	OnError(fn func(h *track.StreamHandle, err error))
	Disconnect() error
}

// StreamResolver turns a track into a playable stream.
type StreamResolver interface {
	ResolveStream(ctx context.Context, t track.Track) (*track.StreamHandle, error)
}
