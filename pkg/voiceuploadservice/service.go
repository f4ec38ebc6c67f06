package voiceuploadservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"voice-dashboard/pkg/db"
	"voice-dashboard/pkg/domain"
	"voice-dashboard/pkg/gateway"
	"voice-dashboard/pkg/webhook"
)

const (
	// DefaultMaxFileSize is the largest accepted upload.
	DefaultMaxFileSize = 10 << 20

	// StoragePrefix is the folder every recording is stored under.
	StoragePrefix = "voice-records"
)

var (
	ErrTitleRequired = errors.New("title is required")
	ErrOwnerRequired = errors.New("owner is required")
	ErrEmptyFile     = errors.New("no file provided")
	ErrFileTooLarge  = errors.New("file exceeds the size limit")
	ErrNotAudio      = errors.New("file must be an audio file")
)

// Notifier is told about every stored recording.
type Notifier interface {
	Notify(ctx context.Context, ev webhook.Event) error
}

// Config wires the upload service.
type Config struct {
	Blobs   db.BlobStore
	Records db.RecordStore

	// Optional.
	Notifier    Notifier
	MaxFileSize int64
	Now         func() time.Time
}

// Service stores raw audio in the blob store and creates its recording row.
type Service struct {
	blobs    db.BlobStore
	records  db.RecordStore
	notifier Notifier
	maxSize  int64
	now      func() time.Time
}

// New creates an upload service.
func New(cfg Config) (*Service, error) {
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.Records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		blobs:    cfg.Blobs,
		records:  cfg.Records,
		notifier: cfg.Notifier,
		maxSize:  cfg.MaxFileSize,
		now:      cfg.Now,
	}, nil
}

// Upload validates req, stores the file and inserts a pending recording.
// The stored file is removed again when the insert fails. Notifier failures
// are logged and never fail the upload.
func (s *Service) Upload(ctx context.Context, req gateway.UploadRequest) (gateway.UploadResult, error) {
	data, err := s.validate(req)
	if err != nil {
		return gateway.UploadResult{}, &domain.UploadError{Reason: err.Error(), Err: err}
	}

	storagePath := StoragePath(req.OwnerID, req.FileName, req.ContentType, s.now())
	if err := s.blobs.Put(ctx, storagePath, bytes.NewReader(data), req.ContentType); err != nil {
		log.Printf("upload: store %s: %v", storagePath, err)
		return gateway.UploadResult{}, &domain.UploadError{Reason: "store file", Err: err}
	}
	publicURL := s.blobs.PublicURL(storagePath)

	rec, err := s.records.Insert(ctx, domain.Recording{
		ProfileID:        req.OwnerID,
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		FileURL:          publicURL,
		FileSize:         int64(len(data)),
		Duration:         req.Duration,
		IsPublic:         req.IsPublic,
		ProcessingStatus: domain.StatusPending,
		Metadata: domain.RecordingMetadata{
			OriginalFilename: req.FileName,
			ContentType:      req.ContentType,
			StoragePath:      storagePath,
		},
	})
	if err != nil {
		log.Printf("upload: create record for %s: %v", storagePath, err)
		if rmErr := s.blobs.Remove(ctx, storagePath); rmErr != nil {
			log.Printf("upload: remove orphaned %s: %v", storagePath, rmErr)
		}
		return gateway.UploadResult{}, &domain.UploadError{Reason: "create record", Err: err}
	}

	if s.notifier != nil {
		ev := webhook.Event{
			RecordID:    rec.ID,
			UserID:      req.OwnerID,
			Title:       rec.Title,
			Description: req.Description,
			FileURL:     publicURL,
			FileName:    path.Base(storagePath),
			ContentType: req.ContentType,
			File:        data,
		}
		if err := s.notifier.Notify(ctx, ev); err != nil {
			log.Printf("upload: webhook for record %s: %v", rec.ID, err)
		}
	}

	return gateway.UploadResult{Recording: rec, PublicURL: publicURL, Size: int64(len(data))}, nil
}

func (s *Service) validate(req gateway.UploadRequest) ([]byte, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, ErrOwnerRequired
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, ErrTitleRequired
	}
	if req.File == nil {
		return nil, ErrEmptyFile
	}
	if !strings.HasPrefix(strings.ToLower(req.ContentType), "audio/") {
		return nil, ErrNotAudio
	}
	if req.Size > s.maxSize {
		return nil, ErrFileTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(req.File, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(data)) > s.maxSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// StoragePath is voice-records/<owner>/<owner>-<unix ms>.<ext>.
func StoragePath(ownerID, fileName, contentType string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s-%d.%s", StoragePrefix, ownerID, ownerID, at.UnixMilli(), extension(fileName, contentType))
}

// extension takes the file name suffix, falling back to the MIME subtype.
func extension(fileName, contentType string) string {
	if ext := strings.TrimPrefix(path.Ext(fileName), "."); ext != "" {
		return strings.ToLower(ext)
	}
	sub := contentType
	if i := strings.Index(sub, "/"); i >= 0 {
		sub = sub[i+1:]
	}
	if i := strings.IndexAny(sub, ";+"); i >= 0 {
		sub = sub[:i]
	}
	switch sub = strings.ToLower(strings.TrimSpace(sub)); sub {
	case "", "*":
		return "bin"
	case "x-wav", "wave", "vnd.wave":
		return "wav"
	case "mpeg":
		return "mp3"
	}
	return sub
}

var _ gateway.UploadGateway = (*Service)(nil)
