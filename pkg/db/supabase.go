package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"strings"

	supabase "github.com/supabase-community/supabase-go"
)

// SupabaseConfig describes a Supabase project. URL and Key are enough for the
// REST, auth and storage APIs; direct database access additionally needs
// ConnectionString or Password.
type SupabaseConfig struct {
	// ConnectionString overrides the connection string derived from
	// SupabaseURL and Password.
	ConnectionString string

	// SupabaseURL is https://<project-ref>.supabase.co.
	SupabaseURL string
	// SupabaseKey is the anon key.
	SupabaseKey string
	// Password is the database password, not an API key.
	Password string

	Pool PoolConfig
}

// SupabaseClient bundles the Supabase SDK with an optional direct Postgres
// handle. Recordings and profiles go through the REST API; the direct handle
// serves PostgresRecordStore and replication.
type SupabaseClient struct {
	cfg SupabaseConfig
	sdk *supabase.Client

	db *sql.DB
	// directErr is why db is nil although database credentials were given.
	directErr error
}

func NewSupabaseClient(cfg SupabaseConfig) *SupabaseClient {
	return &SupabaseClient{cfg: cfg}
}

// Connect creates the SDK client and, when database credentials are set,
// opens the direct handle. A failing direct connection does not fail Connect
// while the SDK is available: the client runs REST-only and DirectDBError
// reports the cause.
func (c *SupabaseClient) Connect(ctx context.Context) error {
	if c.cfg.SupabaseURL != "" && c.cfg.SupabaseKey != "" {
		sdk, err := supabase.NewClient(c.cfg.SupabaseURL, c.cfg.SupabaseKey, nil)
		if err != nil {
			return fmt.Errorf("initialize supabase SDK: %w", err)
		}
		c.sdk = sdk
	}

	dsn := c.cfg.ConnectionString
	if dsn == "" && c.cfg.Password != "" {
		var err error
		if dsn, err = projectDSN(c.cfg.SupabaseURL, c.cfg.Password); err != nil {
			return c.restOnly(fmt.Errorf("build connection string: %w", err))
		}
	}
	if dsn == "" {
		if c.sdk == nil {
			return fmt.Errorf("either a database connection string/password or the Supabase URL and key are required")
		}
		return nil
	}

	// The pooler in front of Supabase does not keep prepared statements
	// across connections.
	dsn = withParam(dsn, "statement_cache_capacity", "0")
	dsn = withParam(dsn, "default_query_exec_mode", "simple_protocol")

	db, err := openPostgres(ctx, dsn, c.cfg.Pool)
	if err != nil {
		return c.restOnly(fmt.Errorf("supabase postgres: %w", err))
	}
	c.db = db
	return nil
}

// restOnly records err as the reason for running without the direct handle.
// Without the SDK there is nothing to fall back to and err is returned.
func (c *SupabaseClient) restOnly(err error) error {
	if c.sdk == nil {
		return err
	}
	c.directErr = err
	log.Printf("supabase: direct database unavailable, using the REST API only: %v", err)
	return nil
}

func (c *SupabaseClient) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DB is nil in REST-only mode.
func (c *SupabaseClient) DB() *sql.DB {
	return c.db
}

func (c *SupabaseClient) HasDirectDB() bool {
	return c.db != nil
}

// DirectDBError is why the direct handle could not be opened, nil when it is
// open or no database credentials were configured.
func (c *SupabaseClient) DirectDBError() error {
	return c.directErr
}

// SDK is nil when no URL and key were configured.
func (c *SupabaseClient) SDK() *supabase.Client {
	return c.sdk
}

// StorageURL is the base URL of the Storage API of the project.
func (c *SupabaseClient) StorageURL() string {
	return strings.TrimRight(c.cfg.SupabaseURL, "/") + supabase.STORGAGE_URL
}

func (c *SupabaseClient) Key() string {
	return c.cfg.SupabaseKey
}

// BlobStore returns a blob store on bucket of the project storage.
func (c *SupabaseClient) BlobStore(bucket string) *SupabaseBlobStore {
	return NewSupabaseBlobStore(c.StorageURL(), c.cfg.SupabaseKey, bucket)
}

// projectDSN derives the direct connection string of the project behind
// projectURL: postgres@db.<ref>.supabase.co with TLS required.
func projectDSN(projectURL, password string) (string, error) {
	if projectURL == "" {
		return "", fmt.Errorf("supabase URL is required when no connection string is set")
	}
	u, err := url.Parse(projectURL)
	if err != nil {
		return "", fmt.Errorf("parse supabase URL: %w", err)
	}
	ref, _, ok := strings.Cut(u.Hostname(), ".")
	if !ok || ref == "" {
		return "", fmt.Errorf("supabase URL %q is not https://<project-ref>.supabase.co", projectURL)
	}
	return fmt.Sprintf("postgresql://postgres:%s@db.%s.supabase.co:5432/postgres?sslmode=require",
		url.QueryEscape(password), ref), nil
}
