// Package config loads voicectl settings.
//
// Settings live under os.UserConfigDir()/voicectl/:
//
//	voicectl/
//	├── config.yaml    # backend endpoints, buckets, limits
//	└── session.yaml   # refresh token of the signed-in user (0600)
//
// Environment variables override the file, command flags override both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"voice-dashboard/pkg/audio"
)

const (
	appDir      = "voicectl"
	configFile  = "config.yaml"
	sessionFile = "session.yaml"
)

// Record store backends.
const (
	StoreSupabase = "supabase"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Blob store backends.
const (
	BlobsSupabase = "supabase"
	BlobsS3       = "s3"
)

// Config is the full voicectl configuration.
type Config struct {
	// Dir is the directory the file was loaded from. Not serialized.
	Dir string `yaml:"-"`

	Supabase Supabase `yaml:"supabase"`
	Postgres Postgres `yaml:"postgres"`
	Pool     Pool     `yaml:"pool"`
	Mongo    Mongo    `yaml:"mongo"`
	S3       S3       `yaml:"s3"`
	Webhook  Webhook  `yaml:"webhook"`
	Audio    Audio    `yaml:"audio"`

	// RecordStore selects where recording rows live: supabase, postgres or mongo.
	RecordStore string `yaml:"record_store"`
	// BlobStore selects where audio files live: supabase or s3.
	BlobStore string `yaml:"blob_store"`

	RecordsBucket  string `yaml:"records_bucket"`
	ProfilesBucket string `yaml:"profiles_bucket"`
	// RequestTimeout bounds every gateway call, e.g. "20s".
	RequestTimeout string `yaml:"request_timeout"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	PageSize       int    `yaml:"page_size"`
	ImportWorkers  int    `yaml:"import_workers"`
}

type Supabase struct {
	URL string `yaml:"url"`
	// Key is the anon key; row-level security applies per signed-in user.
	Key        string `yaml:"key"`
	DBPassword string `yaml:"db_password"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

// Pool bounds the direct Postgres connections of the postgres record store,
// the Supabase database handle and replication.
type Pool struct {
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
	// ConnMaxLifetime and ConnMaxIdleTime are durations such as "30m";
	// empty means unlimited.
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime string `yaml:"conn_max_idle_time"`
}

// Lifetimes parses ConnMaxLifetime and ConnMaxIdleTime.
func (p Pool) Lifetimes() (maxLifetime, maxIdleTime time.Duration, err error) {
	parse := func(name, v string) (time.Duration, error) {
		if v == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("pool %s %q: %w", name, v, err)
		}
		if d < 0 {
			return 0, fmt.Errorf("pool %s must not be negative", name)
		}
		return d, nil
	}
	if maxLifetime, err = parse("conn_max_lifetime", p.ConnMaxLifetime); err != nil {
		return 0, 0, err
	}
	if maxIdleTime, err = parse("conn_max_idle_time", p.ConnMaxIdleTime); err != nil {
		return 0, 0, err
	}
	return maxLifetime, maxIdleTime, nil
}

type Mongo struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type S3 struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	PublicBaseURL   string `yaml:"public_base_url"`
}

type Webhook struct {
	URL string `yaml:"url"`
}

type Audio struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BitDepth   int `yaml:"bit_depth"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Mongo: Mongo{
			URI:        "mongodb://localhost:27017",
			Database:   "voice",
			Collection: "voice_records",
		},
		Pool: Pool{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: "30m",
			ConnMaxIdleTime: "5m",
		},
		S3: S3{Region: "us-east-1"},
		Audio: Audio{
			SampleRate: audio.DefaultFormat.SampleRate,
			Channels:   audio.DefaultFormat.Channels,
			BitDepth:   audio.DefaultFormat.BitDepth,
		},
		RecordStore:    StoreSupabase,
		BlobStore:      BlobsSupabase,
		RecordsBucket:  "records",
		ProfilesBucket: "profiles",
		RequestTimeout: "20s",
		MaxUploadBytes: 10 << 20,
		PageSize:       10,
		ImportWorkers:  8,
	}
}

// Dir returns the default configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(base, appDir), nil
}

// Load reads the configuration from the default directory.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom reads dir/config.yaml over the defaults and applies environment
// overrides. A missing file is not an error.
func LoadFrom(dir string) (*Config, error) {
	cfg := Default()
	cfg.Dir = dir

	path := filepath.Join(dir, configFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to Dir/config.yaml.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := filepath.Join(c.Dir, configFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := map[string]*string{
		"SUPABASE_URL":             &c.Supabase.URL,
		"SUPABASE_KEY":             &c.Supabase.Key,
		"SUPABASE_DB_PASSWORD":     &c.Supabase.DBPassword,
		"DATABASE_URL":             &c.Postgres.DSN,
		"MONGO_URI":                &c.Mongo.URI,
		"N8N_WEBHOOK_URL":          &c.Webhook.URL,
		"S3_ENDPOINT":              &c.S3.Endpoint,
		"S3_REGION":                &c.S3.Region,
		"S3_ACCESS_KEY_ID":         &c.S3.AccessKeyID,
		"S3_SECRET_ACCESS_KEY":     &c.S3.SecretAccessKey,
		"S3_BUCKET":                &c.S3.Bucket,
		"S3_PUBLIC_BASE_URL":       &c.S3.PublicBaseURL,
		"VOICECTL_RECORD_STORE":    &c.RecordStore,
		"VOICECTL_BLOB_STORE":      &c.BlobStore,
		"VOICECTL_REQUEST_TIMEOUT": &c.RequestTimeout,
	}
	for key, dst := range str {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	if v := getenv("VOICECTL_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VOICECTL_PAGE_SIZE: %w", err)
		}
		c.PageSize = n
	}
	if v := getenv("VOICECTL_DB_MAX_OPEN_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VOICECTL_DB_MAX_OPEN_CONNS: %w", err)
		}
		c.Pool.MaxOpenConns = n
	}
	if v := getenv("VOICECTL_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("VOICECTL_MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}
	return nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	switch c.RecordStore {
	case StoreSupabase:
	case StorePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres record store needs a DSN (DATABASE_URL)")
		}
	case StoreMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("mongo record store needs a URI (MONGO_URI)")
		}
	default:
		return fmt.Errorf("unknown record store %q", c.RecordStore)
	}

	switch c.BlobStore {
	case BlobsSupabase:
	case BlobsS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3 blob store needs a bucket (S3_BUCKET)")
		}
	default:
		return fmt.Errorf("unknown blob store %q", c.BlobStore)
	}

	if c.Supabase.URL == "" || c.Supabase.Key == "" {
		return fmt.Errorf("supabase url and key are required (SUPABASE_URL, SUPABASE_KEY)")
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if _, err := c.Format(); err != nil {
		return err
	}
	if c.Pool.MaxOpenConns < 0 || c.Pool.MaxIdleConns < 0 {
		return fmt.Errorf("pool connection limits must not be negative")
	}
	if _, _, err := c.Pool.Lifetimes(); err != nil {
		return err
	}
	return nil
}

// Timeout parses RequestTimeout.
func (c *Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("request_timeout %q: %w", c.RequestTimeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("request_timeout must be positive")
	}
	return d, nil
}

// Format is the capture sample format.
func (c *Config) Format() (audio.Format, error) {
	f := audio.Format{SampleRate: c.Audio.SampleRate, Channels: c.Audio.Channels, BitDepth: c.Audio.BitDepth}
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return audio.Format{}, fmt.Errorf("audio sample rate and channels must be positive")
	}
	if f.BitDepth != 16 {
		return audio.Format{}, fmt.Errorf("audio bit depth must be 16, got %d", f.BitDepth)
	}
	return f, nil
}
