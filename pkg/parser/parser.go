package parser

import "time"

// Feed is a parsed podcast feed.
type Feed struct {
	Title    string
	Link     string
	Episodes []Episode
}

// Episode is one feed item that carries an audio enclosure.
type Episode struct {
	Title       string
	Link        string // episode page, may be empty
	Description string
	AudioURL    string
	ContentType string
	Size        int64
	// TranscriptURL comes from a podcast:transcript tag, if any.
	TranscriptURL string
	// Duration in whole seconds, 0 when the feed does not say.
	Duration  int
	Published time.Time
}

// SourceURL identifies the episode across imports.
func (e Episode) SourceURL() string {
	if e.Link != "" {
		return e.Link
	}
	return e.AudioURL
}
