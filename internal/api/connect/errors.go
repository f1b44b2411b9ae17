package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/encore/internal/app/catalog"
	"github.com/osa030/encore/internal/app/matcher"
	"github.com/osa030/encore/internal/app/playback"
	"github.com/osa030/encore/internal/app/queue"
	"github.com/osa030/encore/internal/app/session"
)

// codeOf maps service errors to Connect codes.
func codeOf(err error) connect.Code {
	switch {
	case errors.Is(err, session.ErrNoSession),
		errors.Is(err, catalog.ErrNoResultsFound),
		errors.Is(err, matcher.ErrNoAlternativeFound),
		errors.Is(err, matcher.ErrTitleExtractionFailed):
		return connect.CodeNotFound
	case errors.Is(err, session.ErrEmptyQuery),
		errors.Is(err, session.ErrInvalidInput),
		errors.Is(err, catalog.ErrUnknownSource),
		errors.Is(err, queue.ErrInvalidQueueIndex):
		return connect.CodeInvalidArgument
	case errors.Is(err, playback.ErrNotPlaying),
		errors.Is(err, playback.ErrNotPaused),
		errors.Is(err, playback.ErrNothingToPlay),
		errors.Is(err, playback.ErrNotConnected),
		errors.Is(err, playback.ErrTrackIsCurrent),
		errors.Is(err, playback.ErrSessionClosed):
		return connect.CodeFailedPrecondition
	case errors.Is(err, catalog.ErrStreamUnavailable),
		errors.Is(err, catalog.ErrProviderUnavailable),
		errors.Is(err, playback.ErrConnectFailed),
		errors.Is(err, playback.ErrConnectionLost):
		return connect.CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	default:
		return connect.CodeInternal
	}
}

func toConnectError(err error) error {
	return connect.NewError(codeOf(err), err)
}
