package queue

import "github.com/osa030/encore/internal/domain/track"

// DefaultPageSize is used when a snapshot is requested with a non-positive page size.
const DefaultPageSize = 10

// Snapshot is a read-only page of the queue.
type Snapshot struct {
	Tracks       []track.QueuedTrack // Tracks on the requested page
	CurrentIndex int                 // Cursor position in the whole queue
	Page         int                 // 1-based page number actually returned
	TotalPages   int                 // At least 1
	Total        int                 // Number of tracks in the whole queue
	Loop         LoopMode
	Shuffle      bool
	Volume       float64
}

// Page returns the given 1-based page. Out-of-range pages are clamped.
func (q *Queue) Page(page, size int) Snapshot {
	if size <= 0 {
		size = DefaultPageSize
	}

	total := len(q.tracks)
	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	start := (page - 1) * size
	end := min(start+size, total)

	items := make([]track.QueuedTrack, end-start)
	copy(items, q.tracks[start:end])

	return Snapshot{
		Tracks:       items,
		CurrentIndex: q.current,
		Page:         page,
		TotalPages:   pages,
		Total:        total,
		Loop:         q.loop,
		Shuffle:      q.shuffle,
		Volume:       q.volume,
	}
}
