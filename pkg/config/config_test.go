package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voice-dashboard/pkg/audio"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SUPABASE_URL", "SUPABASE_KEY", "SUPABASE_DB_PASSWORD", "DATABASE_URL", "MONGO_URI",
		"N8N_WEBHOOK_URL", "S3_ENDPOINT", "S3_REGION", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY",
		"S3_BUCKET", "S3_PUBLIC_BASE_URL", "VOICECTL_RECORD_STORE", "VOICECTL_BLOB_STORE",
		"VOICECTL_REQUEST_TIMEOUT", "VOICECTL_PAGE_SIZE", "VOICECTL_MAX_UPLOAD_BYTES",
		"VOICECTL_DB_MAX_OPEN_CONNS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Dir != dir || cfg.RecordsBucket != "records" || cfg.ProfilesBucket != "profiles" || cfg.PageSize != 10 {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.MaxUploadBytes != 10<<20 || cfg.RecordStore != StoreSupabase || cfg.BlobStore != BlobsSupabase {
		t.Errorf("config = %+v", cfg)
	}
	if d, err := cfg.Timeout(); err != nil || d != 20*time.Second {
		t.Errorf("Timeout() = %v, %v", d, err)
	}
	if f, err := cfg.Format(); err != nil || f != audio.DefaultFormat {
		t.Errorf("Format() = %+v, %v", f, err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	file := `supabase:
  url: https://file.supabase.co
  key: file-key
record_store: postgres
postgres:
  dsn: postgres://file
page_size: 25
request_timeout: 5s
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(file), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SUPABASE_KEY", "env-key")
	t.Setenv("VOICECTL_PAGE_SIZE", "50")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Supabase.URL != "https://file.supabase.co" || cfg.Supabase.Key != "env-key" {
		t.Errorf("supabase = %+v", cfg.Supabase)
	}
	if cfg.RecordStore != StorePostgres || cfg.Postgres.DSN != "postgres://file" || cfg.PageSize != 50 {
		t.Errorf("config = %+v", cfg)
	}
	// Unset keys keep their defaults.
	if cfg.RecordsBucket != "records" || cfg.Audio.SampleRate != 16000 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("page_size: [1, 2"), 0o600)
	if _, err := LoadFrom(dir); err == nil {
		t.Error("expected parse error")
	}

	t.Setenv("VOICECTL_PAGE_SIZE", "ten")
	if _, err := LoadFrom(t.TempDir()); err == nil || !strings.Contains(err.Error(), "VOICECTL_PAGE_SIZE") {
		t.Errorf("error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Supabase = Supabase{URL: "https://x.supabase.co", Key: "k"}
		return c
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := map[string]func(c *Config){
		"no supabase":     func(c *Config) { c.Supabase.Key = "" },
		"unknown store":   func(c *Config) { c.RecordStore = "sqlite" },
		"postgres no dsn": func(c *Config) { c.RecordStore = StorePostgres },
		"s3 no bucket":    func(c *Config) { c.BlobStore = BlobsS3 },
		"bad timeout":     func(c *Config) { c.RequestTimeout = "soon" },
		"8-bit audio":     func(c *Config) { c.Audio.BitDepth = 8 },
		"negative pool":   func(c *Config) { c.Pool.MaxIdleConns = -1 },
		"bad lifetime":    func(c *Config) { c.Pool.ConnMaxLifetime = "forever" },
	}
	for name, mutate := range tests {
		c := valid()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestPoolSettings(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	file := "pool:\n  max_idle_conns: 2\n  conn_max_lifetime: 1h\n  conn_max_idle_time: \"\"\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(file), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOICECTL_DB_MAX_OPEN_CONNS", "4")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Pool.MaxOpenConns != 4 || cfg.Pool.MaxIdleConns != 2 {
		t.Errorf("pool = %+v", cfg.Pool)
	}
	life, idle, err := cfg.Pool.Lifetimes()
	if err != nil || life != time.Hour || idle != 0 {
		t.Errorf("Lifetimes() = %v, %v, %v", life, idle, err)
	}

	t.Setenv("VOICECTL_DB_MAX_OPEN_CONNS", "many")
	if _, err := LoadFrom(dir); err == nil || !strings.Contains(err.Error(), "VOICECTL_DB_MAX_OPEN_CONNS") {
		t.Errorf("LoadFrom() error = %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Dir = filepath.Join(t.TempDir(), "voicectl")
	cfg.Webhook.URL = "https://n8n.example.com/hook"

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := LoadFrom(cfg.Dir)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if got.Webhook.URL != "https://n8n.example.com/hook" || got.ImportWorkers != 8 {
		t.Errorf("config = %+v", got)
	}
}

func TestSession(t *testing.T) {
	cfg := &Config{Dir: filepath.Join(t.TempDir(), "voicectl")}

	s, err := cfg.LoadSession()
	if err != nil || s != nil {
		t.Fatalf("LoadSession() = %+v, %v; want nil, nil", s, err)
	}

	if err := cfg.SaveSession(Session{Email: "ada@example.com", RefreshToken: "r-1"}); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	info, err := os.Stat(filepath.Join(cfg.Dir, "session.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v", info.Mode().Perm())
	}

	s, err = cfg.LoadSession()
	if err != nil || s == nil || s.RefreshToken != "r-1" || s.Email != "ada@example.com" {
		t.Fatalf("LoadSession() = %+v, %v", s, err)
	}

	if err := cfg.ClearSession(); err != nil {
		t.Fatalf("ClearSession() error = %v", err)
	}
	if err := cfg.ClearSession(); err != nil {
		t.Errorf("second ClearSession() error = %v", err)
	}
	if s, _ := cfg.LoadSession(); s != nil {
		t.Errorf("session after clear = %+v", s)
	}
}
