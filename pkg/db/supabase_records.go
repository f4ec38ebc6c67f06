package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	postgrest "github.com/supabase-community/postgrest-go"

	"voice-dashboard/pkg/domain"
)

// RecordsTable is the table recording metadata lives in.
const RecordsTable = "voice_records"

// RestQuerier builds PostgREST queries. Both *supabase.Client and
// *postgrest.Client satisfy it.
type RestQuerier interface {
	From(table string) *postgrest.QueryBuilder
}

// SupabaseRecordStore keeps recordings through the Supabase REST API.
type SupabaseRecordStore struct {
	rest  RestQuerier
	table string
	now   func() time.Time
}

// NewSupabaseRecordStore creates a record store on rest.
func NewSupabaseRecordStore(rest RestQuerier) *SupabaseRecordStore {
	return &SupabaseRecordStore{rest: rest, table: RecordsTable, now: time.Now}
}

func (s *SupabaseRecordStore) List(ctx context.Context, ownerID string, filter domain.ListFilter) ([]domain.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	q := s.rest.From(s.table).
		Select("*", "", false).
		Eq("profile_id", ownerID).
		Not("file_url", "is", "null")
	if filter.Status != "" {
		q = q.Eq("processing_status", string(filter.Status))
	}
	if term := searchTerm(filter.Search); term != "" {
		pattern := "%" + term + "%"
		q = q.Or(fmt.Sprintf("title.ilike.%s,transcript.ilike.%s", pattern, pattern), "")
	}
	q = q.Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Range(filter.Offset, filter.Offset+filter.Limit-1, "")

	var recs []domain.Recording
	if _, err := q.ExecuteTo(&recs); err != nil {
		return nil, restError("list recordings", err)
	}
	return recs, nil
}

// searchTerm drops the characters that delimit PostgREST logic trees.
func searchTerm(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '*':
			return -1
		}
		return r
	}, s))
}

func (s *SupabaseRecordStore) Get(ctx context.Context, id string) (domain.Recording, error) {
	if err := ctx.Err(); err != nil {
		return domain.Recording{}, err
	}

	var recs []domain.Recording
	_, err := s.rest.From(s.table).
		Select("*", "", false).
		Eq("id", id).
		Limit(1, "").
		ExecuteTo(&recs)
	if err != nil {
		return domain.Recording{}, restError("get recording", err)
	}
	if len(recs) == 0 {
		return domain.Recording{}, fmt.Errorf("recording %s: %w", id, domain.ErrNotFound)
	}
	return recs[0], nil
}

func (s *SupabaseRecordStore) Insert(ctx context.Context, rec domain.Recording) (domain.Recording, error) {
	if err := ctx.Err(); err != nil {
		return domain.Recording{}, err
	}

	var recs []domain.Recording
	_, err := s.rest.From(s.table).
		Insert(recordRow(rec), false, "", "representation", "").
		ExecuteTo(&recs)
	if err != nil {
		return domain.Recording{}, restError("insert recording", err)
	}
	if len(recs) == 0 {
		return domain.Recording{}, &domain.BackendError{Message: "insert recording: no row returned"}
	}
	return recs[0], nil
}

func (s *SupabaseRecordStore) Update(ctx context.Context, id string, upd domain.RecordingUpdate) (domain.Recording, error) {
	if err := ctx.Err(); err != nil {
		return domain.Recording{}, err
	}
	fields := upd.Fields()
	fields["updated_at"] = s.now().UTC()

	var recs []domain.Recording
	_, err := s.rest.From(s.table).
		Update(fields, "representation", "").
		Eq("id", id).
		ExecuteTo(&recs)
	if err != nil {
		return domain.Recording{}, restError("update recording", err)
	}
	if len(recs) == 0 {
		return domain.Recording{}, fmt.Errorf("recording %s: %w", id, domain.ErrNotFound)
	}
	return recs[0], nil
}

func (s *SupabaseRecordStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var recs []domain.Recording
	_, err := s.rest.From(s.table).
		Delete("representation", "").
		Eq("id", id).
		ExecuteTo(&recs)
	if err != nil {
		return restError("delete recording", err)
	}
	if len(recs) == 0 {
		return fmt.Errorf("recording %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// recordRow is the insert payload of rec. Server-side defaults fill the id and
// timestamps when they are unset.
func recordRow(rec domain.Recording) map[string]any {
	row := map[string]any{
		"profile_id":        rec.ProfileID,
		"title":             rec.Title,
		"file_url":          rec.FileURL,
		"file_size":         rec.FileSize,
		"duration":          rec.Duration,
		"is_public":         rec.IsPublic,
		"is_processed":      rec.IsProcessed,
		"processing_status": string(rec.ProcessingStatus),
		"metadata":          rec.Metadata,
	}
	if rec.ProcessingStatus == "" {
		row["processing_status"] = string(domain.StatusPending)
	}
	if rec.ID != "" {
		row["id"] = rec.ID
	}
	if rec.Description != "" {
		row["description"] = rec.Description
	}
	if rec.Transcript != "" {
		row["transcript"] = rec.Transcript
	}
	if rec.Language != "" {
		row["language"] = rec.Language
	}
	if len(rec.Tags) > 0 {
		row["tags"] = rec.Tags
	}
	if !rec.CreatedAt.IsZero() {
		row["created_at"] = rec.CreatedAt.UTC()
	}
	return row
}

// SourceURLs returns the feed item URLs ownerID already imported.
func (s *SupabaseRecordStore) SourceURLs(ctx context.Context, ownerID string) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []struct {
		SourceURL string `json:"source_url"`
	}
	_, err := s.rest.From(s.table).
		Select("source_url:metadata->>source_url", "", false).
		Eq("profile_id", ownerID).
		Not("metadata->>source_url", "is", "null").
		ExecuteTo(&rows)
	if err != nil {
		return nil, restError("list source urls", err)
	}

	set := make(map[string]bool, len(rows))
	for _, r := range rows {
		if r.SourceURL != "" {
			set[r.SourceURL] = true
		}
	}
	return set, nil
}
