package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"voice-dashboard/pkg/httpclient"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

var ErrEmptyWebhookURL = errors.New("webhook URL is empty")

// Event describes a stored recording handed to the automation workflow.
type Event struct {
	RecordID    string
	UserID      string
	Title       string
	Description string
	FileURL     string

	FileName    string
	ContentType string
	File        []byte
}

// N8NNotifier posts upload events as multipart forms to an n8n webhook.
type N8NNotifier struct {
	url    string
	client *httpclient.HTTPClient
}

// NewN8NNotifier creates a notifier for url. A nil client uses a webhook client.
func NewN8NNotifier(url string, client *httpclient.HTTPClient) (*N8NNotifier, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrEmptyWebhookURL
	}
	if client == nil {
		client = httpclient.NewClient(httpclient.WebhookClient)
	}
	return &N8NNotifier{url: url, client: client}, nil
}

// Notify sends ev. Any non-2xx answer is returned as an error.
func (n *N8NNotifier) Notify(ctx context.Context, ev Event) error {
	body, contentType, err := encodeForm(ev)
	if err != nil {
		return fmt.Errorf("encode webhook form: %w", err)
	}

	resp, err := n.client.Post(ctx, n.url, contentType, body)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer httpclient.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func encodeForm(ev Event) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if len(ev.File) > 0 {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, ev.FileName))
		contentType := ev.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(ev.File); err != nil {
			return nil, "", err
		}
	}

	fields := [][2]string{
		{"record_id", ev.RecordID},
		{"user_id", ev.UserID},
		{"title", ev.Title},
		{"file_url", ev.FileURL},
	}
	if ev.Description != "" {
		fields = append(fields, [2]string{"description", ev.Description})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
