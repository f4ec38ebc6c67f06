package domain

import (
	"strings"
	"time"
)

// ProcessingStatus is the downstream processing state of a stored recording.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Valid reports whether s is one of the known processing states.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Recording represents a voice recording persisted by the backend
// (the voice_records table).
type Recording struct {
	ID        string    `bson:"_id" json:"id"`
	ProfileID string    `bson:"profile_id" json:"profile_id"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`

	Title       string `bson:"title" json:"title"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`

	// FileURL is the durable, publicly fetchable URL of the stored audio.
	FileURL  string `bson:"file_url" json:"file_url"`
	FileSize int64  `bson:"file_size" json:"file_size"`

	// Duration is the recording length in whole seconds.
	Duration int `bson:"duration" json:"duration"`

	Transcript string   `bson:"transcript,omitempty" json:"transcript,omitempty"`
	Language   string   `bson:"language,omitempty" json:"language,omitempty"`
	Tags       []string `bson:"tags,omitempty" json:"tags,omitempty"`

	IsPublic         bool             `bson:"is_public" json:"is_public"`
	IsProcessed      bool             `bson:"is_processed" json:"is_processed"`
	ProcessingStatus ProcessingStatus `bson:"processing_status" json:"processing_status"`

	Metadata RecordingMetadata `bson:"metadata" json:"metadata"`
}

// RecordingMetadata carries storage details of the uploaded file.
type RecordingMetadata struct {
	OriginalFilename string `bson:"original_filename,omitempty" json:"original_filename,omitempty"`
	ContentType      string `bson:"content_type,omitempty" json:"content_type,omitempty"`
	StoragePath      string `bson:"storage_path,omitempty" json:"storage_path,omitempty"`
	// SourceURL is set for recordings imported from a podcast feed.
	SourceURL string `bson:"source_url,omitempty" json:"source_url,omitempty"`
}

// Listable reports whether the recording may be shown to a user.
// Entries without a durable URL are never surfaced.
func (r Recording) Listable() bool {
	return strings.TrimSpace(r.FileURL) != ""
}

// DefaultPageSize is the number of recordings returned when a filter has no limit.
const DefaultPageSize = 10

// ListFilter narrows a recording listing. Filtering happens in the backend.
type ListFilter struct {
	// Status keeps only recordings in the given processing state; empty means all.
	Status ProcessingStatus
	// Search is matched case-insensitively against title and transcript.
	Search string
	Limit  int
	Offset int
}

// Normalize returns a copy with defaults applied.
func (f ListFilter) Normalize() ListFilter {
	f.Search = strings.TrimSpace(f.Search)
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// RecordingUpdate lists the mutable fields of a recording. Nil fields are left untouched.
type RecordingUpdate struct {
	Title            *string
	Description      *string
	Transcript       *string
	Language         *string
	Tags             []string
	IsPublic         *bool
	IsProcessed      *bool
	ProcessingStatus *ProcessingStatus
}

// Fields returns the column/value pairs set in the update.
func (u RecordingUpdate) Fields() map[string]any {
	fields := make(map[string]any)
	if u.Title != nil {
		fields["title"] = *u.Title
	}
	if u.Description != nil {
		fields["description"] = *u.Description
	}
	if u.Transcript != nil {
		fields["transcript"] = *u.Transcript
	}
	if u.Language != nil {
		fields["language"] = *u.Language
	}
	if u.Tags != nil {
		fields["tags"] = u.Tags
	}
	if u.IsPublic != nil {
		fields["is_public"] = *u.IsPublic
	}
	if u.IsProcessed != nil {
		fields["is_processed"] = *u.IsProcessed
	}
	if u.ProcessingStatus != nil {
		fields["processing_status"] = string(*u.ProcessingStatus)
	}
	return fields
}

// Apply copies the set fields onto r.
func (u RecordingUpdate) Apply(r *Recording) {
	if u.Title != nil {
		r.Title = *u.Title
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.Transcript != nil {
		r.Transcript = *u.Transcript
	}
	if u.Language != nil {
		r.Language = *u.Language
	}
	if u.Tags != nil {
		r.Tags = u.Tags
	}
	if u.IsPublic != nil {
		r.IsPublic = *u.IsPublic
	}
	if u.IsProcessed != nil {
		r.IsProcessed = *u.IsProcessed
	}
	if u.ProcessingStatus != nil {
		r.ProcessingStatus = *u.ProcessingStatus
	}
}
