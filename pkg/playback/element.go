package playback

import (
	"context"
	"fmt"
)

// EventType identifies a media element notification.
type EventType int

const (
	EventLoadedMetadata EventType = iota + 1
	EventTimeUpdate
	EventEnded
	EventError
)

// MediaErrorCode mirrors the codes of a browser MediaError.
type MediaErrorCode int

const (
	MediaErrAborted         MediaErrorCode = 1
	MediaErrNetwork         MediaErrorCode = 2
	MediaErrDecode          MediaErrorCode = 3
	MediaErrSrcNotSupported MediaErrorCode = 4
)

// MediaError is reported by an element when loading or playing fails.
type MediaError struct {
	Code    MediaErrorCode
	Message string
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media error %d: %s", e.Code, e.Message)
}

// Event is a notification from an element.
type Event struct {
	Type EventType
	// Duration is set on EventLoadedMetadata, in seconds.
	Duration float64
	// CurrentTime is set on EventTimeUpdate, in seconds.
	CurrentTime float64
	// Err is set on EventError.
	Err *MediaError
}

// Element is one media resource bound to a single source. Events may be
// delivered from any goroutine, including synchronously from a method call.
type Element interface {
	Subscribe(fn func(Event)) (unsubscribe func())
	// Load starts fetching metadata; the outcome arrives as an event.
	Load(ctx context.Context)
	Play(ctx context.Context) error
	Pause()
	SetMuted(muted bool)
	Seek(seconds float64)
	// Release frees the resource. It is safe to call more than once.
	Release() error
}

// ElementFactory creates elements for a source URL.
type ElementFactory interface {
	NewElement(src string) (Element, error)
}
