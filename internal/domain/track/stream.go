package track

import "sync"

// StreamHandle is an opaque reference to a playable audio source, either a
// local file or a direct stream URL.
type StreamHandle struct {
	Location string // File path or URL
	Local    bool   // Location is a file on disk

	closeOnce sync.Once
	cleanup   func() error
	closeErr  error
}

// NewStreamHandle creates a handle. cleanup, if set, runs once on Close.
func NewStreamHandle(location string, local bool, cleanup func() error) *StreamHandle {
	return &StreamHandle{
		Location: location,
		Local:    local,
		cleanup:  cleanup,
	}
}

// Close releases resources held by the handle, such as temporary files.
// It is safe to call on a nil handle and more than once.
func (h *StreamHandle) Close() error {
	if h == nil {
		return nil
	}
	h.closeOnce.Do(func() {
		if h.cleanup != nil {
			h.closeErr = h.cleanup()
		}
	})
	return h.closeErr
}
