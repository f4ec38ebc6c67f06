package db

import (
	"context"
	"database/sql"
	"io"

	"voice-dashboard/pkg/domain"
)

// DBProvider is an interface for database clients that provide access to a sql.DB handle.
// This allows both PostgresClient and SupabaseClient to be used interchangeably.
type DBProvider interface {
	DB() *sql.DB
}

// RecordStore keeps recording metadata (the voice_records table).
type RecordStore interface {
	// List returns the recordings of ownerID, newest first.
	List(ctx context.Context, ownerID string, filter domain.ListFilter) ([]domain.Recording, error)
	Get(ctx context.Context, id string) (domain.Recording, error)
	Insert(ctx context.Context, rec domain.Recording) (domain.Recording, error)
	Update(ctx context.Context, id string, upd domain.RecordingUpdate) (domain.Recording, error)
	Delete(ctx context.Context, id string) error
}

// BlobStore keeps uploaded files in a single bucket.
type BlobStore interface {
	Put(ctx context.Context, path string, r io.Reader, contentType string) error
	Get(ctx context.Context, path string) ([]byte, error)
	Remove(ctx context.Context, paths ...string) error
	// PublicURL is the durable URL the file is served from.
	PublicURL(path string) string
}

// ProfileStore keeps per-user profile rows.
type ProfileStore interface {
	Get(ctx context.Context, id string) (domain.Profile, error)
	Insert(ctx context.Context, p domain.Profile) (domain.Profile, error)
	Update(ctx context.Context, id string, fields map[string]any) (domain.Profile, error)
	Delete(ctx context.Context, id string) error
}
