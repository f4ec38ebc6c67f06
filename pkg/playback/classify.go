package playback

import (
	"errors"
	"strings"

	"voice-dashboard/pkg/domain"
)

const (
	MsgNoURL          = "No audio URL provided"
	MsgAborted        = "Audio playback was aborted"
	MsgNetwork        = "Network error occurred while loading audio"
	MsgDecode         = "Audio format is not supported"
	MsgSrcUnsupported = "Audio source is not supported"
	MsgPlayFailed     = "Failed to play audio"

	detailNetwork        = "Please check your internet connection"
	detailDecode         = "The audio file may be corrupted or in an unsupported format"
	detailSrcUnsupported = "The audio URL may be invalid or the file may not exist"
)

// Error is the error panel content of a player.
type Error struct {
	// Kind is one of the domain.ErrPlayback* sentinels.
	Kind    error
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Message
	}
	return e.Message + ": " + e.Detail
}

func (e *Error) Unwrap() error { return e.Kind }

// Classify maps an element failure to the message shown to the user.
func Classify(err *MediaError) *Error {
	if err == nil {
		return &Error{Kind: domain.ErrPlaybackUnknown, Message: "Error loading audio: Unknown error"}
	}
	switch err.Code {
	case MediaErrAborted:
		return &Error{Kind: domain.ErrPlaybackAborted, Message: MsgAborted}
	case MediaErrNetwork:
		return &Error{Kind: domain.ErrPlaybackNetwork, Message: MsgNetwork, Detail: detailNetwork}
	case MediaErrDecode:
		return &Error{Kind: domain.ErrPlaybackDecode, Message: MsgDecode, Detail: detailDecode}
	case MediaErrSrcNotSupported:
		return &Error{Kind: domain.ErrPlaybackSourceInvalid, Message: MsgSrcUnsupported, Detail: detailSrcUnsupported}
	default:
		msg := strings.TrimSpace(err.Message)
		if msg == "" {
			msg = "Unknown error"
		}
		return &Error{Kind: domain.ErrPlaybackUnknown, Message: "Error loading audio: " + msg}
	}
}

// playFailure builds the error shown when starting playback fails.
func playFailure(err error) *Error {
	var mediaErr *MediaError
	if errors.As(err, &mediaErr) {
		return Classify(mediaErr)
	}
	detail := "Unknown error"
	if err != nil {
		detail = err.Error()
	}
	return &Error{Kind: domain.ErrPlaybackUnknown, Message: MsgPlayFailed, Detail: detail}
}
