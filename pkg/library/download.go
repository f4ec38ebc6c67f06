package library

import (
	"context"
	"fmt"
	"io"

	"voice-dashboard/pkg/handle"
	"voice-dashboard/pkg/httpclient"
)

// HTTPDownloader fetches recordings from their durable URL. Local handles are
// resolved through the registry when one is set.
type HTTPDownloader struct {
	client  *httpclient.HTTPClient
	handles *handle.Registry
}

// NewHTTPDownloader creates a downloader; a nil client uses a media client.
func NewHTTPDownloader(client *httpclient.HTTPClient, handles *handle.Registry) *HTTPDownloader {
	if client == nil {
		client = httpclient.NewClient(httpclient.MediaClient)
	}
	return &HTTPDownloader{client: client, handles: handles}
}

func (d *HTTPDownloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	if handle.IsHandle(url) && d.handles != nil {
		data, _, err := d.handles.Resolve(url)
		return data, err
	}

	resp, err := d.client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer httpclient.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return data, nil
}
