package content

import (
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var errNoFeedLink = errors.New("no feed link found in HTML")

var feedTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
	"application/feed+json",
	"application/json",
}

// DiscoverFeedURL finds the feed a site page advertises through
// <link rel="alternate">, resolved against pageURL.
func DiscoverFeedURL(pageURL, html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", errEmptyHTML
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", errors.Join(errFailedToParseHTML, err)
	}

	var found []string
	for _, typ := range feedTypes {
		doc.Find("link[rel='alternate'][href]").Each(func(_ int, s *goquery.Selection) {
			if t, _ := s.Attr("type"); strings.EqualFold(strings.TrimSpace(t), typ) {
				href, _ := s.Attr("href")
				found = append(found, strings.TrimSpace(href))
			}
		})
		if len(found) > 0 {
			break
		}
	}
	if len(found) == 0 || found[0] == "" {
		return "", errNoFeedLink
	}
	return ResolveURL(pageURL, found[0])
}

// ResolveURL resolves ref against base.
func ResolveURL(base, ref string) (string, error) {
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
