package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/encore/internal/domain/track"
	"github.com/osa030/encore/internal/infra/config"
)

// fakeQueue implements QueueView for tests.
type fakeQueue struct {
	pending []track.QueuedTrack
}

func (q *fakeQueue) Pending() []track.QueuedTrack {
	return q.pending
}

func (q *fakeQueue) Upcoming() int {
	if len(q.pending) == 0 {
		return 0
	}
	return len(q.pending) - 1
}

type staticFilter struct {
	name   string
	result Result
	calls  int
}

func (f *staticFilter) Name() string { return f.name }
func (f *staticFilter) Description() string { return "static" }
func (f *staticFilter) ReturnCodes() []string { return []string{f.result.Code} }
func (f *staticFilter) ValidateConfig(map[string]any) error { return nil }
func (f *staticFilter) Check(context.Context, Request, track.Track) Result {
	f.calls++
	return f.result
}

func TestChain_StopsAtFirstRejection(t *testing.T) {
	first := &staticFilter{name: "a", result: Accept()}
	second := &staticFilter{name: "b", result: Reject("nope")}
	third := &staticFilter{name: "c", result: Accept()}

	c := NewChain()
	c.Add(first)
	c.Add(second)
	c.Add(third)

	result := c.Execute(context.Background(), Request{}, track.Track{})

	assert.False(t, result.Accepted)
	assert.Equal(t, "nope", result.Code)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 0, third.calls)
}

func TestChain_EmptyAccepts(t *testing.T) {
	result := NewChain().Execute(context.Background(), Request{}, track.Track{})
	assert.True(t, result.Accepted)
}

func TestNewChainFromConfig(t *testing.T) {
	t.Run("enabled filters in name order", func(t *testing.T) {
		c, err := NewChainFromConfig(map[string]config.FilterConfig{
			"queue_limit_filter":     {Enabled: true, Settings: map[string]any{"max_tracks": 3}},
			"duplicate_track_filter": {Enabled: true},
			"duration_limit_filter":  {Enabled: false},
		})
		require.NoError(t, err)

		var names []string
		for _, f := range c.Filters() {
			names = append(names, f.Name())
		}
		assert.Equal(t, []string{"duplicate_track_filter", "queue_limit_filter"}, names)
	})

	t.Run("unknown filter", func(t *testing.T) {
		_, err := NewChainFromConfig(map[string]config.FilterConfig{
			"kicked_listener_filter": {Enabled: true},
		})
		assert.Error(t, err)
	})

	t.Run("invalid settings", func(t *testing.T) {
		_, err := NewChainFromConfig(map[string]config.FilterConfig{
			"duration_limit_filter": {Enabled: true, Settings: map[string]any{"min_seconds": 600, "max_seconds": 60}},
		})
		assert.Error(t, err)
	})
}

func TestQueueLimitFilter_Check(t *testing.T) {
	alice := track.Requester{ID: "alice"}
	bob := track.Requester{ID: "bob"}
	pending := []track.QueuedTrack{
		{Track: track.Track{URL: "u1"}, Requester: alice},
		{Track: track.Track{URL: "u2"}, Requester: alice},
		{Track: track.Track{URL: "u3"}, Requester: bob},
	}

	tests := []struct {
		name      string
		settings  map[string]any
		requester track.Requester
		wantCode  string
	}{
		{
			name:      "under the limit",
			settings:  map[string]any{"max_tracks": 5},
			requester: alice,
		},
		{
			name:      "queue full",
			settings:  map[string]any{"max_tracks": 2},
			requester: bob,
			wantCode:  "queue_full",
		},
		{
			name:      "requester limit",
			settings:  map[string]any{"max_tracks": 10, "max_per_requester": 2},
			requester: alice,
			wantCode:  "requester_limit",
		},
		{
			name:      "other requester under limit",
			settings:  map[string]any{"max_tracks": 10, "max_per_requester": 2},
			requester: bob,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &QueueLimitFilter{}
			require.NoError(t, f.ValidateConfig(tt.settings))

			result := f.Check(context.Background(), Request{
				Requester: tt.requester,
				Queue:     &fakeQueue{pending: pending},
			}, track.Track{URL: "new"})

			if tt.wantCode == "" {
				assert.True(t, result.Accepted)
				return
			}
			assert.False(t, result.Accepted)
			assert.Equal(t, tt.wantCode, result.Code)
		})
	}
}

func TestQueueLimitFilter_Defaults(t *testing.T) {
	f := &QueueLimitFilter{}
	require.NoError(t, f.ValidateConfig(nil))
	assert.Equal(t, 100, f.config.MaxTracks)

	assert.Error(t, (&QueueLimitFilter{}).ValidateConfig(map[string]any{"max_tracks": -1}))
}

func TestRegistered(t *testing.T) {
	reg := GetRegistered()
	for _, name := range []string{"duration_limit_filter", "duplicate_track_filter", "queue_limit_filter"} {
		factory, ok := reg[name]
		require.True(t, ok, name)
		assert.Equal(t, name, factory().Name())
	}
}
