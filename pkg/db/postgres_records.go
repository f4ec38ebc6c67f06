package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"voice-dashboard/pkg/domain"
)

const recordColumns = `id, profile_id, created_at, updated_at, title, description, file_url, file_size,
duration, transcript, language, tags, is_public, is_processed, processing_status, metadata`

// PostgresRecordStore keeps recordings in a directly reachable Postgres
// database (local development or Supabase direct DB mode).
type PostgresRecordStore struct {
	pg  DBProvider
	now func() time.Time
}

func NewPostgresRecordStore(pg DBProvider) *PostgresRecordStore {
	return &PostgresRecordStore{pg: pg, now: time.Now}
}

func (s *PostgresRecordStore) db() (*sql.DB, error) {
	if s.pg == nil || s.pg.DB() == nil {
		return nil, fmt.Errorf("postgres DB not connected")
	}
	return s.pg.DB(), nil
}

// EnsureSchema creates the voice_records table when it does not exist.
func (s *PostgresRecordStore) EnsureSchema(ctx context.Context) error {
	db, err := s.db()
	if err != nil {
		return err
	}

	const ddl = `
CREATE TABLE IF NOT EXISTS voice_records (
  id TEXT PRIMARY KEY,
  profile_id TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  title TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  file_url TEXT NOT NULL DEFAULT '',
  file_size BIGINT NOT NULL DEFAULT 0,
  duration INTEGER NOT NULL DEFAULT 0,
  transcript TEXT NOT NULL DEFAULT '',
  language TEXT NOT NULL DEFAULT '',
  tags JSONB NOT NULL DEFAULT '[]',
  is_public BOOLEAN NOT NULL DEFAULT false,
  is_processed BOOLEAN NOT NULL DEFAULT false,
  processing_status TEXT NOT NULL DEFAULT 'pending',
  metadata JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS voice_records_profile_created_idx ON voice_records (profile_id, created_at DESC);`

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create voice_records table: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) List(ctx context.Context, ownerID string, filter domain.ListFilter) ([]domain.Recording, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	query, args := buildListQuery(ownerID, filter.Normalize())

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pgError("list recordings", err)
	}
	defer rows.Close()

	var recs []domain.Recording
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return recs, nil
}

// buildListQuery returns the filtered, newest-first page query of ownerID.
func buildListQuery(ownerID string, filter domain.ListFilter) (string, []any) {
	var b strings.Builder
	args := []any{ownerID}
	b.WriteString("SELECT " + recordColumns + " FROM voice_records WHERE profile_id = $1 AND file_url <> ''")

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		fmt.Fprintf(&b, " AND processing_status = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		fmt.Fprintf(&b, " AND (title ILIKE $%d OR transcript ILIKE $%d)", len(args), len(args))
	}
	args = append(args, filter.Limit, filter.Offset)
	fmt.Fprintf(&b, " ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return b.String(), args
}

func (s *PostgresRecordStore) Get(ctx context.Context, id string) (domain.Recording, error) {
	db, err := s.db()
	if err != nil {
		return domain.Recording{}, err
	}
	row := db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM voice_records WHERE id = $1", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Recording{}, fmt.Errorf("recording %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Recording{}, pgError("get recording", err)
	}
	return rec, nil
}

func (s *PostgresRecordStore) Insert(ctx context.Context, rec domain.Recording) (domain.Recording, error) {
	db, err := s.db()
	if err != nil {
		return domain.Recording{}, err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.ProcessingStatus == "" {
		rec.ProcessingStatus = domain.StatusPending
	}
	tags, metadata, err := encodeJSONColumns(rec)
	if err != nil {
		return domain.Recording{}, err
	}

	const insertQuery = `
INSERT INTO voice_records (id, profile_id, created_at, updated_at, title, description, file_url, file_size,
  duration, transcript, language, tags, is_public, is_processed, processing_status, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING ` + recordColumns

	row := db.QueryRowContext(ctx, insertQuery,
		rec.ID, rec.ProfileID, rec.CreatedAt, rec.UpdatedAt, rec.Title, rec.Description, rec.FileURL, rec.FileSize,
		rec.Duration, rec.Transcript, rec.Language, tags, rec.IsPublic, rec.IsProcessed, string(rec.ProcessingStatus), metadata)
	out, err := scanRecord(row)
	if err != nil {
		return domain.Recording{}, pgError("insert recording", err)
	}
	return out, nil
}

func (s *PostgresRecordStore) Update(ctx context.Context, id string, upd domain.RecordingUpdate) (domain.Recording, error) {
	db, err := s.db()
	if err != nil {
		return domain.Recording{}, err
	}

	fields := upd.Fields()
	if tags, ok := fields["tags"]; ok {
		raw, err := json.Marshal(tags)
		if err != nil {
			return domain.Recording{}, fmt.Errorf("encode tags: %w", err)
		}
		fields["tags"] = raw
	}
	columns := make([]string, 0, len(fields))
	for col := range fields {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var b strings.Builder
	args := make([]any, 0, len(columns)+2)
	b.WriteString("UPDATE voice_records SET ")
	for _, col := range columns {
		args = append(args, fields[col])
		fmt.Fprintf(&b, "%s = $%d, ", col, len(args))
	}
	args = append(args, s.now().UTC(), id)
	fmt.Fprintf(&b, "updated_at = $%d WHERE id = $%d RETURNING %s", len(args)-1, len(args), recordColumns)

	rec, err := scanRecord(db.QueryRowContext(ctx, b.String(), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Recording{}, fmt.Errorf("recording %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Recording{}, pgError("update recording", err)
	}
	return rec, nil
}

func (s *PostgresRecordStore) Delete(ctx context.Context, id string) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, "DELETE FROM voice_records WHERE id = $1", id)
	if err != nil {
		return pgError("delete recording", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recording %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ExistingIDs returns which of ids are already stored.
func (s *PostgresRecordStore) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	if len(ids) == 0 {
		return set, nil
	}

	var b strings.Builder
	args := make([]any, len(ids))
	b.WriteString("SELECT id FROM voice_records WHERE id IN (")
	for i, id := range ids {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i+1)
		args[i] = id
	}
	b.WriteString(")")

	rows, err := db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query existing ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		set[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return set, nil
}

// InsertBatch inserts recs in one transaction, skipping ids that already exist.
func (s *PostgresRecordStore) InsertBatch(ctx context.Context, recs []domain.Recording) error {
	db, err := s.db()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertQuery = `
INSERT INTO voice_records (id, profile_id, created_at, updated_at, title, description, file_url, file_size,
  duration, transcript, language, tags, is_public, is_processed, processing_status, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (id) DO NOTHING`

	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if rec.ID == "" {
			continue
		}
		tags, metadata, err := encodeJSONColumns(rec)
		if err != nil {
			return err
		}
		status := rec.ProcessingStatus
		if status == "" {
			status = domain.StatusPending
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.ProfileID, rec.CreatedAt, rec.UpdatedAt, rec.Title, rec.Description, rec.FileURL, rec.FileSize,
			rec.Duration, rec.Transcript, rec.Language, tags, rec.IsPublic, rec.IsProcessed, string(status), metadata); err != nil {
			return fmt.Errorf("insert recording id=%q: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func encodeJSONColumns(rec domain.Recording) ([]byte, []byte, error) {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	rawTags, err := json.Marshal(tags)
	if err != nil {
		return nil, nil, fmt.Errorf("encode tags: %w", err)
	}
	rawMeta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("encode metadata: %w", err)
	}
	return rawTags, rawMeta, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.Recording, error) {
	var (
		rec      domain.Recording
		status   string
		tags     []byte
		metadata []byte
	)
	err := row.Scan(&rec.ID, &rec.ProfileID, &rec.CreatedAt, &rec.UpdatedAt, &rec.Title, &rec.Description,
		&rec.FileURL, &rec.FileSize, &rec.Duration, &rec.Transcript, &rec.Language, &tags,
		&rec.IsPublic, &rec.IsProcessed, &status, &metadata)
	if err != nil {
		return domain.Recording{}, err
	}
	rec.ProcessingStatus = domain.ProcessingStatus(status)
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &rec.Tags); err != nil {
			return domain.Recording{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return domain.Recording{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return rec, nil
}

// pgError maps driver errors onto the domain errors.
func pgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return codeError(op, pgErr.Code, pgErr.Message)
	}
	return &domain.BackendError{Message: op + ": " + err.Error()}
}

// SourceURLs returns the feed item URLs ownerID already imported.
func (s *PostgresRecordStore) SourceURLs(ctx context.Context, ownerID string) (map[string]bool, error) {
	db, err := s.db()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		"SELECT metadata->>'source_url' FROM voice_records WHERE profile_id = $1 AND metadata ? 'source_url'", ownerID)
	if err != nil {
		return nil, pgError("list source urls", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var u sql.NullString
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan source url: %w", err)
		}
		if u.Valid && u.String != "" {
			set[u.String] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return set, nil
}
