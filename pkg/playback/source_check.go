package playback

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"voice-dashboard/pkg/handle"
	"voice-dashboard/pkg/httpclient"
)

// SourceChecker checks whether a source URL exists. The result only enriches the
// detail of an error that was already classified.
type SourceChecker interface {
	// Check returns a detail message, or "" when the resource looks fine.
	Check(ctx context.Context, url string) string
}

// HTTPSourceChecker checks sources with a HEAD request.
type HTTPSourceChecker struct {
	client *httpclient.HTTPClient
}

// NewHTTPSourceChecker creates a checker on client; nil uses a media client.
func NewHTTPSourceChecker(client *httpclient.HTTPClient) *HTTPSourceChecker {
	if client == nil {
		client = httpclient.NewClient(httpclient.MediaClient)
	}
	return &HTTPSourceChecker{client: client}
}

func (c *HTTPSourceChecker) Check(ctx context.Context, url string) string {
	if handle.IsHandle(url) {
		return ""
	}

	resp, err := c.client.Head(ctx, url)
	if err != nil {
		return "Network error: " + err.Error()
	}
	defer httpclient.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Sprintf("Server returned %d: %s", resp.StatusCode, statusText(resp))
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "audio/") {
		return "URL does not point to an audio file"
	}
	return ""
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
