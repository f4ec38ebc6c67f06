package filter

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Filter decides whether a source URL is imported.
type Filter interface {
	ShouldKeep(ctx context.Context, url string) (bool, error)
}

// FilterURLs applies all filters to a list of URLs
func FilterURLs(ctx context.Context, urls []string, filters ...Filter) ([]string, error) {
	filtered := make([]string, 0, len(urls))

	for _, urlStr := range urls {
		keep := true
		for _, f := range filters {
			shouldKeep, err := f.ShouldKeep(ctx, urlStr)
			if err != nil {
				return nil, fmt.Errorf("filter error for URL %s: %w", urlStr, err)
			}
			if !shouldKeep {
				keep = false
				break
			}
		}
		if keep {
			filtered = append(filtered, urlStr)
		}
	}

	return filtered, nil
}

// FetchableFilter keeps absolute http(s) URLs with a host.
type FetchableFilter struct{}

// NewFetchableFilter creates a new fetchable URL filter
func NewFetchableFilter() *FetchableFilter {
	return &FetchableFilter{}
}

// ShouldKeep returns false for relative, non-HTTP or unparsable URLs
func (f *FetchableFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return false, nil
	}
	scheme := strings.ToLower(parsed.Scheme)
	return (scheme == "http" || scheme == "https") && parsed.Host != "", nil
}

// AlreadyFetchedFilter filters out URLs that were imported before
type AlreadyFetchedFilter struct {
	fetchedURLs map[string]bool
}

// NewAlreadyFetchedFilter creates a new already-fetched filter
func NewAlreadyFetchedFilter(fetchedURLs map[string]bool) *AlreadyFetchedFilter {
	return &AlreadyFetchedFilter{
		fetchedURLs: fetchedURLs,
	}
}

// ShouldKeep returns false if URL is already in the fetched set
func (f *AlreadyFetchedFilter) ShouldKeep(ctx context.Context, urlStr string) (bool, error) {
	// Check if URL exists in the fetched set
	exists := f.fetchedURLs[urlStr]
	return !exists, nil
}
