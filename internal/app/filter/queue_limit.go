package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/encore/internal/domain/track"
	"github.com/osa030/encore/internal/infra/config"
)

// QueueLimitConfig represents the configuration for QueueLimitFilter.
type QueueLimitConfig struct {
	MaxTracks       int `mapstructure:"max_tracks" default:"100" validate:"gte=1"`
	MaxPerRequester int `mapstructure:"max_per_requester" validate:"gte=0"`
}

// QueueLimitFilter rejects requests once a guild queue is full.
type QueueLimitFilter struct {
	config *QueueLimitConfig
}

func (f *QueueLimitFilter) Name() string {
	return "queue_limit_filter"
}

func (f *QueueLimitFilter) Description() string {
	return "Limits the number of pending tracks per guild and per requester"
}

func (f *QueueLimitFilter) ReturnCodes() []string {
	return []string{"queue_full", "requester_limit"}
}

func (f *QueueLimitFilter) ValidateConfig(settings map[string]any) error {
	cfg, err := config.DecodeSettings[QueueLimitConfig](settings)
	if err != nil {
		return err
	}
	f.config = &cfg
	zlog.Info().Msgf("queue limit filter config: %+v", cfg)
	return nil
}

func (f *QueueLimitFilter) Check(ctx context.Context, req Request, t track.Track) Result {
	if f.config == nil || req.Queue == nil {
		return Accept()
	}

	if req.Queue.Upcoming() >= f.config.MaxTracks {
		return Reject("queue_full")
	}

	if f.config.MaxPerRequester > 0 && req.Requester.ID != "" {
		n := 0
		for _, qt := range req.Queue.Pending() {
			if qt.Requester.ID == req.Requester.ID {
				n++
			}
		}
		if n >= f.config.MaxPerRequester {
			return Reject("requester_limit")
		}
	}
	return Accept()
}

func init() {
	Register("queue_limit_filter", func() Filter {
		return &QueueLimitFilter{}
	})
}
