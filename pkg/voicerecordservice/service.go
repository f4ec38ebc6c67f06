package voicerecordservice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"voice-dashboard/pkg/db"
	"voice-dashboard/pkg/domain"
	"voice-dashboard/pkg/gateway"
)

// RecordNotFoundMessage is the text of every missing-recording error.
const RecordNotFoundMessage = "Voice record not found"

var (
	ErrSignedOut        = errors.New("not signed in")
	ErrRecordRequired   = errors.New("title and file_url are required")
	ErrForeignOwner     = errors.New("cannot create a voice record for another user")
	ErrInvalidStatus    = errors.New("invalid processing status")
	ErrNothingToUpdate  = errors.New("no fields to update")
	ErrRecordIDRequired = errors.New("record ID is required")
)

// IdentitySource exposes the caller.
type IdentitySource interface {
	Current() (domain.Identity, bool)
}

// Config wires the record service.
type Config struct {
	Records  db.RecordStore
	Identity IdentitySource

	// Optional. Without Blobs stored files are left in place on delete.
	// Without Profiles the admin role is read from the identity.
	Blobs    db.BlobStore
	Profiles db.ProfileStore
}

// Service is the persistence gateway: recording CRUD on behalf of the
// signed-in user, with owner and admin checks.
type Service struct {
	records  db.RecordStore
	identity IdentitySource
	blobs    db.BlobStore
	profiles db.ProfileStore
}

// New creates a record service.
func New(cfg Config) (*Service, error) {
	if cfg.Records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("identity source is required")
	}
	return &Service{
		records:  cfg.Records,
		identity: cfg.Identity,
		blobs:    cfg.Blobs,
		profiles: cfg.Profiles,
	}, nil
}

func (s *Service) caller() (domain.Identity, error) {
	ident, ok := s.identity.Current()
	if !ok || ident.ID == "" {
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrForbidden, ErrSignedOut)
	}
	return ident, nil
}

// isAdmin prefers the stored profile role over the identity claim.
func (s *Service) isAdmin(ctx context.Context, ident domain.Identity) bool {
	if s.profiles == nil {
		return ident.IsAdmin()
	}
	p, err := s.profiles.Get(ctx, ident.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Printf("records: load role of %s: %v", ident.ID, err)
		}
		return false
	}
	return p.Role == domain.RoleAdmin
}

// List returns the listable recordings of ownerID. Listing someone else's
// recordings needs the admin role.
func (s *Service) List(ctx context.Context, ownerID string, filter domain.ListFilter) ([]domain.Recording, error) {
	ident, err := s.caller()
	if err != nil {
		return nil, err
	}
	if ownerID == "" {
		ownerID = ident.ID
	}
	if ownerID != ident.ID && !s.isAdmin(ctx, ident) {
		return nil, fmt.Errorf("%w: you can only access your own records", domain.ErrForbidden)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w %q", ErrInvalidStatus, filter.Status)
	}

	recs, err := s.records.List(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	listable := recs[:0]
	for _, r := range recs {
		if r.Listable() {
			listable = append(listable, r)
		}
	}
	return listable, nil
}

// Get returns a recording owned by the caller or marked public.
func (s *Service) Get(ctx context.Context, id string) (domain.Recording, error) {
	ident, err := s.caller()
	if err != nil {
		return domain.Recording{}, err
	}
	rec, err := s.fetch(ctx, id)
	if err != nil {
		return domain.Recording{}, err
	}
	if rec.ProfileID != ident.ID && !rec.IsPublic && !s.isAdmin(ctx, ident) {
		return domain.Recording{}, fmt.Errorf("%w: you can only access your own records or public records", domain.ErrForbidden)
	}
	return rec, nil
}

func (s *Service) fetch(ctx context.Context, id string) (domain.Recording, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Recording{}, ErrRecordIDRequired
	}
	rec, err := s.records.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Recording{}, fmt.Errorf("%s: %w", RecordNotFoundMessage, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Recording{}, fmt.Errorf("get recording %s: %w", id, err)
	}
	return rec, nil
}

// authorize loads id and checks the caller owns it or is an admin.
func (s *Service) authorize(ctx context.Context, id, verb string) (domain.Recording, error) {
	ident, err := s.caller()
	if err != nil {
		return domain.Recording{}, err
	}
	rec, err := s.fetch(ctx, id)
	if err != nil {
		return domain.Recording{}, err
	}
	if rec.ProfileID != ident.ID && !s.isAdmin(ctx, ident) {
		return domain.Recording{}, fmt.Errorf("%w: you can only %s your own records", domain.ErrForbidden, verb)
	}
	return rec, nil
}

// Create inserts a recording for an already stored file. The owner is always
// the caller.
func (s *Service) Create(ctx context.Context, rec domain.Recording) (domain.Recording, error) {
	ident, err := s.caller()
	if err != nil {
		return domain.Recording{}, err
	}
	if strings.TrimSpace(rec.Title) == "" || strings.TrimSpace(rec.FileURL) == "" {
		return domain.Recording{}, ErrRecordRequired
	}
	if rec.ProfileID != "" && rec.ProfileID != ident.ID {
		return domain.Recording{}, fmt.Errorf("%w: %w", domain.ErrForbidden, ErrForeignOwner)
	}
	if rec.ProcessingStatus != "" && !rec.ProcessingStatus.Valid() {
		return domain.Recording{}, fmt.Errorf("%w %q", ErrInvalidStatus, rec.ProcessingStatus)
	}
	rec.ProfileID = ident.ID
	if rec.ProcessingStatus == "" {
		rec.ProcessingStatus = domain.StatusPending
	}

	out, err := s.records.Insert(ctx, rec)
	if err != nil {
		return domain.Recording{}, fmt.Errorf("create recording: %w", err)
	}
	return out, nil
}

// Update changes the mutable fields of an owned recording.
func (s *Service) Update(ctx context.Context, id string, upd domain.RecordingUpdate) (domain.Recording, error) {
	if len(upd.Fields()) == 0 {
		return domain.Recording{}, ErrNothingToUpdate
	}
	if upd.ProcessingStatus != nil && !upd.ProcessingStatus.Valid() {
		return domain.Recording{}, fmt.Errorf("%w %q", ErrInvalidStatus, *upd.ProcessingStatus)
	}
	if _, err := s.authorize(ctx, id, "update"); err != nil {
		return domain.Recording{}, err
	}

	rec, err := s.records.Update(ctx, id, upd)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Recording{}, fmt.Errorf("%s: %w", RecordNotFoundMessage, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Recording{}, fmt.Errorf("update recording %s: %w", id, err)
	}
	return rec, nil
}

// Delete removes the row first, then the stored file. A failed file removal
// is logged; the recording is gone either way.
func (s *Service) Delete(ctx context.Context, id string) error {
	rec, err := s.authorize(ctx, id, "delete")
	if err != nil {
		return err
	}

	if err := s.records.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%s: %w", RecordNotFoundMessage, domain.ErrNotFound)
		}
		return fmt.Errorf("delete recording %s: %w", id, err)
	}

	if p := rec.Metadata.StoragePath; p != "" && s.blobs != nil {
		if err := s.blobs.Remove(ctx, p); err != nil {
			log.Printf("records: remove file %s of %s: %v", p, id, err)
		}
	}
	return nil
}

var _ gateway.PersistenceGateway = (*Service)(nil)
