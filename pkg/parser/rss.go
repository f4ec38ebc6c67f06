package parser

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
)

// ErrNotAFeed is returned when the input is not RSS, Atom or JSON Feed.
var ErrNotAFeed = errors.New("not a feed")

// FeedParser handles RSS/Atom feed parsing operations
type FeedParser struct {
	feedParser *gofeed.Parser
}

// NewFeedParser creates a new feed parser
func NewFeedParser() *FeedParser {
	return &FeedParser{
		feedParser: gofeed.NewParser(),
	}
}

// Parse reads a feed and keeps the items that have an audio enclosure.
func (p *FeedParser) Parse(r io.Reader) (Feed, error) {
	feed, err := p.feedParser.Parse(r)
	if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return Feed{}, ErrNotAFeed
	}
	if err != nil {
		return Feed{}, fmt.Errorf("failed to parse feed: %w", err)
	}

	out := Feed{Title: strings.TrimSpace(feed.Title), Link: feed.Link}
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		enc := audioEnclosure(item.Enclosures)
		if enc == nil {
			continue
		}

		ep := Episode{
			Title:       strings.TrimSpace(item.Title),
			Link:        strings.TrimSpace(item.Link),
			Description: item.Description,
			AudioURL:    strings.TrimSpace(enc.URL),
			ContentType: enc.Type,
		}
		if ep.Description == "" {
			ep.Description = item.Content
		}
		if n, err := strconv.ParseInt(enc.Length, 10, 64); err == nil && n > 0 {
			ep.Size = n
		}
		if item.ITunesExt != nil {
			ep.Duration = ParseDuration(item.ITunesExt.Duration)
		}
		if item.PublishedParsed != nil {
			ep.Published = *item.PublishedParsed
		}
		ep.TranscriptURL = transcriptURL(item)
		out.Episodes = append(out.Episodes, ep)
	}
	return out, nil
}

func audioEnclosure(encs []*gofeed.Enclosure) *gofeed.Enclosure {
	for _, e := range encs {
		if e == nil || e.URL == "" {
			continue
		}
		if e.Type == "" || strings.HasPrefix(e.Type, "audio/") {
			return e
		}
	}
	return nil
}

// transcriptURL reads the Podcasting 2.0 <podcast:transcript url="..."> tag.
func transcriptURL(item *gofeed.Item) string {
	for _, e := range item.Extensions["podcast"]["transcript"] {
		if u := strings.TrimSpace(e.Attrs["url"]); u != "" {
			return u
		}
	}
	return ""
}

// ParseDuration reads an itunes:duration value: seconds, MM:SS or HH:MM:SS.
func ParseDuration(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	total := 0
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}
