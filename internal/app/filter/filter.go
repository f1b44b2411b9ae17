// Package filter provides the filter chain for enqueue request validation.
package filter

import (
	"context"

	"github.com/osa030/encore/internal/domain/track"
)

// QueueView is the read-only part of a playback session filters may inspect.
type QueueView interface {
	// Pending returns the current track and everything queued after it.
	Pending() []track.QueuedTrack
	// Upcoming returns the number of tracks after the current one.
	Upcoming() int
}

// Request represents an enqueue request to be validated.
type Request struct {
	GuildID   string
	Requester track.Requester
	Queue     QueueView
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duplicate_track", "queue_full"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for request filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// Check performs the filter check.
	Check(ctx context.Context, req Request, t track.Track) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}
