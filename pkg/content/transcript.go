package content

import (
	"bufio"
	"bytes"
	"errors"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	errEmptyHTML             = errors.New("empty HTML content")
	errNoTranscriptLink      = errors.New("no transcript link found in HTML")
	errFailedToParseHTML     = errors.New("failed to parse HTML for transcript link")
	ErrUnsupportedTranscript = errors.New("unsupported transcript type")
	ErrEmptyTranscript       = errors.New("extracted transcript text is empty")
)

// FindTranscriptURL locates a transcript link in the HTML of an episode page.
//
// Links are ranked:
//  1. anchor text mentions "transcript" and href is a transcript document
//  2. href is a transcript document (.pdf, .txt, .vtt, .srt)
//  3. anchor text mentions "transcript"
//
// The href is returned as written; resolve it with ResolveURL.
func FindTranscriptURL(html string) (string, error) {
	html = strings.TrimSpace(html)
	if html == "" {
		return "", errEmptyHTML
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", errors.Join(errFailedToParseHTML, err)
	}

	var high, medium, low []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}

		docLike := isTranscriptDocument(href)
		mentions := strings.Contains(strings.ToLower(sel.Text()), "transcript")

		switch {
		case docLike && mentions:
			high = append(high, href)
		case docLike:
			medium = append(medium, href)
		case mentions:
			low = append(low, href)
		}
	})

	for _, tier := range [][]string{high, medium, low} {
		if len(tier) > 0 {
			return tier[0], nil
		}
	}
	return "", errNoTranscriptLink
}

func isTranscriptDocument(href string) bool {
	p := href
	if u, err := url.Parse(href); err == nil {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".pdf", ".txt", ".vtt", ".srt":
		return true
	default:
		return false
	}
}

// TranscriptText turns a downloaded transcript document into plain text.
// The URL extension decides the format; contentType is the fallback.
func TranscriptText(body []byte, contentType, rawURL string) (string, error) {
	ext := ""
	if u, err := url.Parse(rawURL); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}
	ct := strings.ToLower(contentType)

	var (
		text string
		err  error
	)
	switch {
	case ext == ".pdf" || strings.Contains(ct, "application/pdf"):
		text, err = ExtractTextFromPDFReader(bytes.NewReader(body))
	case ext == ".vtt" || ext == ".srt" || strings.Contains(ct, "text/vtt") || strings.Contains(ct, "application/x-subrip"):
		text = stripCues(string(body))
	case ext == ".txt" || strings.Contains(ct, "text/plain"):
		text = string(body)
	case ext == ".html" || strings.Contains(ct, "text/html"):
		text, err = ExtractInlineTranscript(string(body))
		if err != nil {
			text, err = ExtractText(string(body))
		}
	default:
		return "", ErrUnsupportedTranscript
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

var cueTiming = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2})?[.,]\d{3}\s+-->`)

// stripCues drops WebVTT/SubRip headers, cue numbers and timings.
func stripCues(s string) string {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "", strings.HasPrefix(line, "WEBVTT"), strings.HasPrefix(line, "NOTE"):
		case cueTiming.MatchString(line):
		case isCueNumber(line):
		default:
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func isCueNumber(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
