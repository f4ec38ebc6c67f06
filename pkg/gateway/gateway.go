package gateway

import (
	"context"
	"io"

	"voice-dashboard/pkg/domain"
)

// UploadRequest is an audio file handed to the upload gateway.
type UploadRequest struct {
	OwnerID     string
	File        io.Reader
	Size        int64
	FileName    string
	ContentType string
	Title       string
	Description string
	IsPublic    bool
	// Duration is the captured length in whole seconds.
	Duration int
}

// UploadResult is returned by a successful upload.
type UploadResult struct {
	Recording domain.Recording
	PublicURL string
	Size      int64
}

// UploadGateway stores a raw audio file and creates its recording.
// Failures are *domain.UploadError values.
type UploadGateway interface {
	Upload(ctx context.Context, req UploadRequest) (UploadResult, error)
}

// PersistenceGateway manages recording metadata and the stored blobs behind it.
// Errors wrap domain.ErrNotFound, domain.ErrForbidden or are *domain.BackendError.
type PersistenceGateway interface {
	List(ctx context.Context, ownerID string, filter domain.ListFilter) ([]domain.Recording, error)
	Get(ctx context.Context, id string) (domain.Recording, error)
	Create(ctx context.Context, rec domain.Recording) (domain.Recording, error)
	Update(ctx context.Context, id string, upd domain.RecordingUpdate) (domain.Recording, error)
	Delete(ctx context.Context, id string) error
}

// IdentityProvider exposes the signed-in user and notifies about changes.
type IdentityProvider interface {
	Current() (domain.Identity, bool)
	SignIn(ctx context.Context, email, password string) (domain.Identity, error)
	SignOut(ctx context.Context) error
	// Subscribe registers fn for identity changes and returns its cancel func.
	Subscribe(fn func(id domain.Identity, signedIn bool)) (cancel func())
}
