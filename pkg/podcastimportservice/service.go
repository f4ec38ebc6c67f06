package podcastimportservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync/atomic"

	"voice-dashboard/pkg/content"
	"voice-dashboard/pkg/domain"
	"voice-dashboard/pkg/filter"
	"voice-dashboard/pkg/httpclient"
	"voice-dashboard/pkg/parser"
	"voice-dashboard/pkg/worker"
)

const (
	// DefaultWorkers is the number of episodes imported in parallel.
	DefaultWorkers = 8

	maxBodySize        = 20 << 20
	maxDescriptionSize = 2000
)

var (
	ErrEmptySourceURL = errors.New("source URL is empty")
	ErrSignedOut      = errors.New("sign in to import recordings")
	ErrNoFeed         = errors.New("no podcast feed found at source")
)

// RecordCreator creates recordings on behalf of the signed-in user.
type RecordCreator interface {
	Create(ctx context.Context, rec domain.Recording) (domain.Recording, error)
}

// SourceIndex lists the episode URLs a user already imported.
type SourceIndex interface {
	SourceURLs(ctx context.Context, ownerID string) (map[string]bool, error)
}

// IdentitySource exposes the caller.
type IdentitySource interface {
	Current() (domain.Identity, bool)
}

// Config wires the import service.
type Config struct {
	Records  RecordCreator
	Identity IdentitySource

	// Optional.
	Sources SourceIndex
	HTTP    *httpclient.HTTPClient
	Workers int
}

// Stats reports the outcome of an import.
type Stats struct {
	Found          int
	Skipped        int
	Imported       int
	Failed         int
	WithTranscript int
}

// Service turns the audio episodes of a podcast feed into recordings,
// attaching a transcript whenever the episode publishes one.
type Service struct {
	records  RecordCreator
	identity IdentitySource
	sources  SourceIndex
	http     *httpclient.HTTPClient
	feeds    *parser.FeedParser
	workers  int
}

// New creates an import service.
func New(cfg Config) (*Service, error) {
	if cfg.Records == nil {
		return nil, fmt.Errorf("record creator is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("identity source is required")
	}
	if cfg.HTTP == nil {
		cfg.HTTP = httpclient.NewClient(httpclient.BrowserClient)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Service{
		records:  cfg.Records,
		identity: cfg.Identity,
		sources:  cfg.Sources,
		http:     cfg.HTTP,
		feeds:    parser.NewFeedParser(),
		workers:  cfg.Workers,
	}, nil
}

// Import reads the feed at sourceURL, or the feed a site page at sourceURL
// links to, and imports its episodes that were not imported before.
// max limits the number of episodes imported; max <= 0 means no limit.
func (s *Service) Import(ctx context.Context, sourceURL string, max int) (Stats, error) {
	var stats Stats
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return stats, ErrEmptySourceURL
	}
	ident, ok := s.identity.Current()
	if !ok {
		return stats, ErrSignedOut
	}

	feed, err := s.loadFeed(ctx, sourceURL)
	if err != nil {
		return stats, err
	}
	stats.Found = len(feed.Episodes)

	episodes, err := s.newEpisodes(ctx, ident.ID, feed.Episodes)
	if err != nil {
		return stats, err
	}
	if max > 0 && len(episodes) > max {
		episodes = episodes[:max]
	}
	stats.Skipped = stats.Found - len(episodes)
	log.Printf("Import %s: %d episodes in feed, %d to import", sourceURL, stats.Found, len(episodes))

	var withTranscript atomic.Int64
	m := worker.NewManager("import", s.workers, func(ctx context.Context, ep parser.Episode) error {
		rec, err := s.importEpisode(ctx, ident.ID, ep)
		if err != nil {
			return err
		}
		if rec.Transcript != "" {
			withTranscript.Add(1)
		}
		return nil
	})
	res, err := m.Process(ctx, episodes)
	stats.Imported = res.Succeeded
	stats.Failed = res.Failed
	stats.WithTranscript = int(withTranscript.Load())
	if err != nil {
		return stats, fmt.Errorf("import episodes: %w", err)
	}
	return stats, nil
}

func (s *Service) loadFeed(ctx context.Context, sourceURL string) (parser.Feed, error) {
	body, _, err := s.fetch(ctx, sourceURL)
	if err != nil {
		return parser.Feed{}, fmt.Errorf("fetch source: %w", err)
	}

	feed, err := s.feeds.Parse(bytes.NewReader(body))
	if !errors.Is(err, parser.ErrNotAFeed) {
		return feed, err
	}

	// A site page: follow its feed link.
	feedURL, err := content.DiscoverFeedURL(sourceURL, string(body))
	if err != nil {
		return parser.Feed{}, fmt.Errorf("%w: %v", ErrNoFeed, err)
	}
	body, _, err = s.fetch(ctx, feedURL)
	if err != nil {
		return parser.Feed{}, fmt.Errorf("fetch feed: %w", err)
	}
	feed, err = s.feeds.Parse(bytes.NewReader(body))
	if errors.Is(err, parser.ErrNotAFeed) {
		return parser.Feed{}, fmt.Errorf("%w: %s", ErrNoFeed, feedURL)
	}
	return feed, err
}

// newEpisodes drops episodes with unusable audio URLs, duplicates within the
// feed and episodes the owner already imported.
func (s *Service) newEpisodes(ctx context.Context, ownerID string, episodes []parser.Episode) ([]parser.Episode, error) {
	existing := map[string]bool{}
	if s.sources != nil {
		if got, err := s.sources.SourceURLs(ctx, ownerID); err != nil {
			log.Printf("Import: could not load imported episodes, importing all: %v", err)
		} else {
			existing = got
		}
	}

	bySource := make(map[string]parser.Episode, len(episodes))
	var sourceURLs []string
	fetchable := filter.NewFetchableFilter()
	for _, ep := range episodes {
		src := ep.SourceURL()
		if _, dup := bySource[src]; dup {
			continue
		}
		if keep, _ := fetchable.ShouldKeep(ctx, ep.AudioURL); !keep {
			continue
		}
		bySource[src] = ep
		sourceURLs = append(sourceURLs, src)
	}

	kept, err := filter.FilterURLs(ctx, sourceURLs, filter.NewAlreadyFetchedFilter(existing))
	if err != nil {
		return nil, err
	}
	out := make([]parser.Episode, 0, len(kept))
	for _, src := range kept {
		out = append(out, bySource[src])
	}
	return out, nil
}

func (s *Service) importEpisode(ctx context.Context, ownerID string, ep parser.Episode) (domain.Recording, error) {
	var page string
	if ep.Link != "" {
		if body, _, err := s.fetch(ctx, ep.Link); err == nil {
			page = string(body)
		} else {
			log.Printf("Import: fetch episode page %s: %v", ep.Link, err)
		}
	}

	title := ep.Title
	if title == "" && page != "" {
		title, _ = content.ExtractTitle(page)
	}
	if title == "" {
		title = fileName(ep.AudioURL)
	}

	description := content.HTMLToText(ep.Description)
	if description == "" && page != "" {
		description, _ = content.ExtractText(page)
	}

	transcript := s.transcript(ctx, ep, page)

	rec := domain.Recording{
		ProfileID:        ownerID,
		Title:            title,
		Description:      truncate(description, maxDescriptionSize),
		FileURL:          ep.AudioURL,
		FileSize:         ep.Size,
		Duration:         ep.Duration,
		Transcript:       transcript,
		ProcessingStatus: domain.StatusPending,
		Metadata: domain.RecordingMetadata{
			OriginalFilename: fileName(ep.AudioURL),
			ContentType:      ep.ContentType,
			SourceURL:        ep.SourceURL(),
		},
	}
	if transcript != "" {
		rec.ProcessingStatus = domain.StatusCompleted
		rec.IsProcessed = true
	}

	created, err := s.records.Create(ctx, rec)
	if err != nil {
		return domain.Recording{}, fmt.Errorf("create recording: %w", err)
	}
	return created, nil
}

// transcript is best-effort: the feed's transcript tag first, then a
// transcript embedded in the episode page, then a transcript link on it.
func (s *Service) transcript(ctx context.Context, ep parser.Episode, page string) string {
	if ep.TranscriptURL != "" {
		if text, err := s.fetchTranscript(ctx, ep.TranscriptURL); err == nil {
			return text
		}
	}
	if page == "" {
		return ""
	}
	if text, err := content.ExtractInlineTranscript(page); err == nil {
		return text
	}
	href, err := content.FindTranscriptURL(page)
	if err != nil {
		return ""
	}
	resolved, err := content.ResolveURL(ep.Link, href)
	if err != nil {
		return ""
	}
	text, err := s.fetchTranscript(ctx, resolved)
	if err != nil {
		log.Printf("Import: transcript %s: %v", resolved, err)
		return ""
	}
	return text
}

func (s *Service) fetchTranscript(ctx context.Context, transcriptURL string) (string, error) {
	body, contentType, err := s.fetch(ctx, transcriptURL)
	if err != nil {
		return "", err
	}
	return content.TranscriptText(body, contentType, transcriptURL)
}

func (s *Service) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	resp, err := s.http.Get(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}
	defer httpclient.DrainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func fileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return path.Base(rawURL)
	}
	return path.Base(u.Path)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
