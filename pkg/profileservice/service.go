package profileservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/google/uuid"

	"voice-dashboard/pkg/db"
	"voice-dashboard/pkg/domain"
)

const (
	// AvatarPrefix is the folder avatars are stored under in the profiles bucket.
	AvatarPrefix = "profiles"

	// DefaultMaxAvatarSize is the largest accepted avatar image.
	DefaultMaxAvatarSize = 10 << 20
)

var (
	ErrUserRequired    = errors.New("user id is required")
	ErrNotImage        = errors.New("avatar must be an image")
	ErrAvatarTooLarge  = errors.New("avatar exceeds the size limit")
	ErrEmptyAvatar     = errors.New("no avatar provided")
	ErrNoFieldsToWrite = errors.New("no profile fields to update")
)

// Config wires the profile service.
type Config struct {
	Profiles db.ProfileStore
	// Avatars is the profiles bucket. Optional; avatar operations fail without it.
	Avatars db.BlobStore

	MaxAvatarSize int64
	NewID         func() string
}

// Service manages the profile row of a user and its avatar.
type Service struct {
	profiles db.ProfileStore
	avatars  db.BlobStore
	maxSize  int64
	newID    func() string
}

// New creates a profile service.
func New(cfg Config) (*Service, error) {
	if cfg.Profiles == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	if cfg.MaxAvatarSize <= 0 {
		cfg.MaxAvatarSize = DefaultMaxAvatarSize
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Service{
		profiles: cfg.Profiles,
		avatars:  cfg.Avatars,
		maxSize:  cfg.MaxAvatarSize,
		newID:    cfg.NewID,
	}, nil
}

// Get returns the profile of userID, or nil when the user has none yet.
func (s *Service) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	p, err := s.profiles.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		log.Printf("profiles: get %s: %v", userID, err)
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// Create inserts p. A profile that already exists is returned unchanged.
func (s *Service) Create(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	if p.ID == "" {
		return domain.Profile{}, ErrUserRequired
	}
	created, err := s.profiles.Insert(ctx, p)
	if errors.Is(err, db.ErrDuplicate) {
		return s.profiles.Get(ctx, p.ID)
	}
	if err != nil {
		log.Printf("profiles: create %s: %v", p.ID, err)
		return domain.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return created, nil
}

// Update writes fields to the profile of userID, creating the profile with
// default settings first when it does not exist.
func (s *Service) Update(ctx context.Context, userID, email string, fields map[string]any) (domain.Profile, error) {
	if userID == "" {
		return domain.Profile{}, ErrUserRequired
	}
	if len(fields) == 0 {
		return domain.Profile{}, ErrNoFieldsToWrite
	}

	p, err := s.profiles.Update(ctx, userID, fields)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		log.Printf("profiles: update %s: %v", userID, err)
		return domain.Profile{}, fmt.Errorf("update profile: %w", err)
	}

	if _, err := s.Create(ctx, domain.NewProfile(userID, email)); err != nil {
		return domain.Profile{}, err
	}
	p, err = s.profiles.Update(ctx, userID, fields)
	if err != nil {
		log.Printf("profiles: update new %s: %v", userID, err)
		return domain.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

// Delete removes the profile of targetID together with its avatar. An empty
// targetID is the caller's own profile. Only admins may delete the profile of
// another user; the admin role is read from the identity and, failing that,
// from the caller's profile row.
func (s *Service) Delete(ctx context.Context, caller domain.Identity, targetID string) error {
	if caller.ID == "" {
		return ErrUserRequired
	}
	if targetID == "" {
		targetID = caller.ID
	}
	if targetID != caller.ID && !s.isAdmin(ctx, caller) {
		return fmt.Errorf("delete profile %s: only admins may delete another user's profile: %w", targetID, domain.ErrForbidden)
	}

	p, err := s.profiles.Get(ctx, targetID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Printf("profiles: load %s for delete: %v", targetID, err)
		}
		return fmt.Errorf("delete profile: %w", err)
	}
	if err := s.profiles.Delete(ctx, targetID); err != nil {
		log.Printf("profiles: delete %s: %v", targetID, err)
		return fmt.Errorf("delete profile: %w", err)
	}

	if s.avatars != nil {
		if name := avatarPathFromURL(p.AvatarURL); name != "" {
			if err := s.avatars.Remove(ctx, name); err != nil {
				log.Printf("profiles: remove avatar %s of deleted profile: %v", name, err)
			}
		}
	}
	return nil
}

func (s *Service) isAdmin(ctx context.Context, caller domain.Identity) bool {
	if caller.IsAdmin() {
		return true
	}
	p, err := s.profiles.Get(ctx, caller.ID)
	if err != nil {
		return false
	}
	return p.Role == domain.RoleAdmin
}

// Avatar is an image handed to UploadAvatar.
type Avatar struct {
	File        io.Reader
	Size        int64
	FileName    string
	ContentType string
}

// UploadAvatar stores the image and points the profile at its public URL.
func (s *Service) UploadAvatar(ctx context.Context, userID, email string, a Avatar) (string, error) {
	if s.avatars == nil {
		return "", fmt.Errorf("avatar store is required")
	}
	if userID == "" {
		return "", ErrUserRequired
	}
	if a.File == nil {
		return "", ErrEmptyAvatar
	}
	if !strings.HasPrefix(a.ContentType, "image/") {
		return "", ErrNotImage
	}
	if a.Size > s.maxSize {
		return "", ErrAvatarTooLarge
	}

	name := AvatarPath(userID, s.newID(), a.FileName, a.ContentType)
	if err := s.avatars.Put(ctx, name, io.LimitReader(a.File, s.maxSize), a.ContentType); err != nil {
		log.Printf("profiles: store avatar %s: %v", name, err)
		return "", fmt.Errorf("store avatar: %w", err)
	}
	url := s.avatars.PublicURL(name)

	if _, err := s.Update(ctx, userID, email, map[string]any{"avatar_url": url}); err != nil {
		if rmErr := s.avatars.Remove(ctx, name); rmErr != nil {
			log.Printf("profiles: remove orphaned avatar %s: %v", name, rmErr)
		}
		return "", err
	}
	return url, nil
}

// RemoveAvatar deletes the stored image behind avatarURL and clears the
// profile field. A failed blob delete does not keep the field set.
func (s *Service) RemoveAvatar(ctx context.Context, userID, avatarURL string) error {
	if s.avatars == nil {
		return fmt.Errorf("avatar store is required")
	}
	if userID == "" {
		return ErrUserRequired
	}

	if name := avatarPathFromURL(avatarURL); name != "" {
		if err := s.avatars.Remove(ctx, name); err != nil {
			log.Printf("profiles: remove avatar %s: %v", name, err)
		}
	}

	if _, err := s.profiles.Update(ctx, userID, map[string]any{"avatar_url": nil}); err != nil {
		log.Printf("profiles: clear avatar %s: %v", userID, err)
		return fmt.Errorf("clear avatar: %w", err)
	}
	return nil
}

// AvatarPath is profiles/<user>-<id>.<ext>.
func AvatarPath(userID, id, fileName, contentType string) string {
	ext := strings.TrimPrefix(path.Ext(fileName), ".")
	if ext == "" {
		ext = strings.TrimPrefix(contentType, "image/")
		if ext == "jpeg" {
			ext = "jpg"
		}
	}
	if ext == "" {
		ext = "img"
	}
	return fmt.Sprintf("%s/%s-%s.%s", AvatarPrefix, userID, id, strings.ToLower(ext))
}

func avatarPathFromURL(u string) string {
	i := strings.LastIndex(u, AvatarPrefix+"/")
	if i < 0 {
		return ""
	}
	name := u[i:]
	if q := strings.IndexAny(name, "?#"); q >= 0 {
		name = name[:q]
	}
	return name
}
