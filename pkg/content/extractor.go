package content

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// ExtractText extracts the main article text from HTML content
func ExtractText(htmlContent string) (string, error) {
	article, err := readability.FromReader(strings.NewReader(htmlContent), nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract text: %w", err)
	}

	return strings.TrimSpace(article.TextContent), nil
}

// ExtractTitle extracts the page title from HTML content with fallback mechanisms
func ExtractTitle(htmlContent string) (string, error) {
	// Try readability first
	article, err := readability.FromReader(strings.NewReader(htmlContent), nil)
	if err == nil {
		title := strings.TrimSpace(article.Title)
		if title != "" {
			return title, nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	if title, exists := doc.Find("meta[property='og:title']").Attr("content"); exists && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title), nil
	}
	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		return title, nil
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title, nil
	}

	return "", fmt.Errorf("title not found in HTML")
}

// HTMLToText flattens an HTML fragment, such as a feed item description,
// into plain text with collapsed whitespace.
func HTMLToText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return normalizeWhitespace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return normalizeWhitespace(fragment)
	}
	doc.Find("script, style").Remove()
	// Block elements would otherwise glue their words together.
	doc.Find("p, br, li, div, h1, h2, h3, h4").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return normalizeWhitespace(doc.Text())
}

// ExtractInlineTranscript returns a transcript embedded in the episode page,
// looking for a container whose id or class names a transcript.
func ExtractInlineTranscript(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	container := doc.Find("#transcript, #transcriptTab, .transcript, [id^='transcript'], [class*='episode-transcript']").First()
	if container.Length() == 0 {
		return "", fmt.Errorf("transcript section not found in HTML")
	}

	var parts []string
	container.Find("p, .transcriptUtterance, li").Each(func(_ int, s *goquery.Selection) {
		if text := normalizeWhitespace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	if len(parts) == 0 {
		if text := normalizeWhitespace(container.Text()); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("transcript section is empty")
	}

	return strings.Join(parts, "\n"), nil
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
