package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"voice-dashboard/pkg/audio"
	"voice-dashboard/pkg/config"
	"voice-dashboard/pkg/domain"
)

const testUserID = "0b6c5e0e-3c1a-4a43-9d0f-1e0c8f1f2a10"

// fakeSupabase answers the auth endpoints the session commands use.
type fakeSupabase struct {
	mu          sync.Mutex
	refreshes   int
	logoutCalls int

	signups        []string
	recovered      []string
	profiles       map[string]bool
	deletedProfile []string
}

func (f *fakeSupabase) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			var req struct {
				Email        string `json:"email"`
				Password     string `json:"password"`
				RefreshToken string `json:"refresh_token"`
			}
			json.NewDecoder(r.Body).Decode(&req)

			f.mu.Lock()
			defer f.mu.Unlock()
			switch r.URL.Query().Get("grant_type") {
			case "password":
				if req.Password != "secret" {
					w.WriteHeader(http.StatusBadRequest)
					io.WriteString(w, `{"error":"invalid_grant"}`)
					return
				}
			case "refresh_token":
				if req.RefreshToken != fmt.Sprintf("r-%d", f.refreshes) {
					w.WriteHeader(http.StatusBadRequest)
					io.WriteString(w, `{"error":"invalid_grant"}`)
					return
				}
				f.refreshes++
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"access_token":"jwt-%d","refresh_token":"r-%d","token_type":"bearer","expires_in":3600,
				"user":{"id":"%s","email":"ada@example.com","app_metadata":{"role":"admin"}}}`, f.refreshes, f.refreshes, testUserID)
		case "/auth/v1/signup":
			var req struct {
				Email string         `json:"email"`
				Data  map[string]any `json:"data"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			f.mu.Lock()
			f.signups = append(f.signups, fmt.Sprintf("%s/%v", req.Email, req.Data["business_name"]))
			f.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"id":"%s","email":"%s","app_metadata":{}}`, testUserID, req.Email)
		case "/auth/v1/recover":
			var req struct {
				Email string `json:"email"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			f.mu.Lock()
			f.recovered = append(f.recovered, req.Email)
			f.mu.Unlock()
			io.WriteString(w, `{}`)
		case "/rest/v1/profiles":
			id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
			f.mu.Lock()
			defer f.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			if !f.profiles[id] {
				io.WriteString(w, `[]`)
				return
			}
			if r.Method == http.MethodDelete {
				delete(f.profiles, id)
				f.deletedProfile = append(f.deletedProfile, id)
			}
			fmt.Fprintf(w, `[{"id":"%s"}]`, id)
		case "/auth/v1/logout":
			f.mu.Lock()
			f.logoutCalls++
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}
}

func setupTestEnv(t *testing.T, supabaseURL string) string {
	t.Helper()
	for _, key := range []string{"SUPABASE_URL", "SUPABASE_KEY", "VOICECTL_PASSWORD", "VOICECTL_RECORD_STORE", "VOICECTL_BLOB_STORE"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	file := fmt.Sprintf("supabase:\n  url: %s\n  key: anon-key\n", supabaseURL)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(file), 0o600); err != nil {
		t.Fatal(err)
	}
	return dir
}

func runCmd(t *testing.T, dir string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	return runCmdWithInput(t, dir, "", args...)
}

func runCmdWithInput(t *testing.T, dir, input string, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	verbose = false
	formatOutput = "table"
	globalConfig = nil
	loginEmail, loginPassword = "", ""
	signupEmail, signupPassword, signupBusiness, resetEmail = "", "", "", ""
	profileDeleteYes = false

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetArgs(append(args, "--config-dir", dir))
	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func readSession(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "session.yaml"))
	if err != nil {
		return ""
	}
	return string(data)
}

func TestLoginWhoamiLogout(t *testing.T) {
	fake := &fakeSupabase{}
	server := httptest.NewServer(fake.handler())
	defer server.Close()
	dir := setupTestEnv(t, server.URL)

	stdout, _, err := runCmd(t, dir, "login", "--email", "ada@example.com", "--password", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(stdout, "Signed in as ada@example.com") {
		t.Errorf("login output = %q", stdout)
	}
	if s := readSession(t, dir); !strings.Contains(s, "r-0") {
		t.Errorf("session = %q", s)
	}

	stdout, _, err = runCmd(t, dir, "whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if !strings.Contains(stdout, "ada@example.com") || !strings.Contains(stdout, "admin") {
		t.Errorf("whoami output = %q", stdout)
	}
	// The refresh token is rotated on every resume.
	if s := readSession(t, dir); !strings.Contains(s, "r-1") {
		t.Errorf("session after resume = %q", s)
	}

	stdout, _, err = runCmd(t, dir, "logout")
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !strings.Contains(stdout, "Signed out") || fake.logoutCalls != 1 {
		t.Errorf("logout output = %q, calls = %d", stdout, fake.logoutCalls)
	}
	if s := readSession(t, dir); s != "" {
		t.Errorf("session after logout = %q", s)
	}

	if _, _, err := runCmd(t, dir, "whoami"); !errors.Is(err, errNotLoggedIn) {
		t.Errorf("whoami after logout error = %v", err)
	}
}

func TestLoginRejected(t *testing.T) {
	server := httptest.NewServer((&fakeSupabase{}).handler())
	defer server.Close()
	dir := setupTestEnv(t, server.URL)

	_, _, err := runCmd(t, dir, "login", "--email", "ada@example.com", "--password", "wrong")
	if err == nil || !strings.Contains(err.Error(), "invalid login credentials") {
		t.Errorf("error = %v", err)
	}
	if s := readSession(t, dir); s != "" {
		t.Errorf("session = %q", s)
	}
}

func TestExpiredSessionIsCleared(t *testing.T) {
	server := httptest.NewServer((&fakeSupabase{}).handler())
	defer server.Close()
	dir := setupTestEnv(t, server.URL)
	os.WriteFile(filepath.Join(dir, "session.yaml"), []byte("email: ada@example.com\nrefresh_token: stale\n"), 0o600)

	if _, _, err := runCmd(t, dir, "whoami"); !errors.Is(err, errNotLoggedIn) {
		t.Errorf("error = %v, want errNotLoggedIn", err)
	}
	if s := readSession(t, dir); s != "" {
		t.Errorf("stale session kept: %q", s)
	}
}

func TestInvalidConfiguration(t *testing.T) {
	dir := setupTestEnv(t, "")
	_, _, err := runCmd(t, dir, "list")
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("error = %v", err)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	dir := setupTestEnv(t, "https://x.supabase.co")
	t.Setenv("SUPABASE_DB_PASSWORD", "hunter2")

	stdout, _, err := runCmd(t, dir, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(stdout, "hunter2") || !strings.Contains(stdout, "records_bucket: records") {
		t.Errorf("output = %q", stdout)
	}
}

func TestConfigInit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "voicectl")
	t.Setenv("SUPABASE_URL", "")

	stdout, _, err := runCmd(t, dir, "config", "init")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if strings.TrimSpace(stdout) != filepath.Join(dir, "config.yaml") {
		t.Errorf("output = %q", stdout)
	}
	if _, _, err := runCmd(t, dir, "config", "init"); err == nil {
		t.Error("expected error when config.yaml exists")
	}
}

func TestParseProfileFields(t *testing.T) {
	fields, err := parseProfileFields([]string{"full_name=Ada Lovelace", "marketing_emails=false", "bio="})
	if err != nil {
		t.Fatalf("parseProfileFields() error = %v", err)
	}
	if fields["full_name"] != "Ada Lovelace" || fields["marketing_emails"] != false || fields["bio"] != "" {
		t.Errorf("fields = %v", fields)
	}

	for _, bad := range []string{"full_name", "=x", "role=admin", "login_alerts=maybe"} {
		if _, err := parseProfileFields([]string{bad}); err == nil {
			t.Errorf("parseProfileFields(%q): expected error", bad)
		}
	}
}

func TestListFilterFlags(t *testing.T) {
	defer func() { listStatus, listSearch, listLimit, listOffset = "", "", 0, 0 }()

	listStatus, listSearch, listOffset = "Completed", "  standup ", 20
	f, err := listFilter(domain.ListFilter{Limit: 10})
	if err != nil {
		t.Fatalf("listFilter() error = %v", err)
	}
	if f.Status != domain.StatusCompleted || f.Search != "standup" || f.Limit != 10 || f.Offset != 20 {
		t.Errorf("filter = %+v", f)
	}

	listStatus = "done"
	if _, err := listFilter(domain.ListFilter{}); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestRecordingUpdateOnlyChangedFlags(t *testing.T) {
	newCmd := func() *cobra.Command {
		c := &cobra.Command{}
		c.Flags().StringVar(&updateTitle, "title", "", "")
		c.Flags().StringVar(&updateDescription, "description", "", "")
		c.Flags().StringVar(&updateTranscript, "transcript", "", "")
		c.Flags().StringSliceVar(&updateTags, "tags", nil, "")
		c.Flags().BoolVar(&updatePublic, "public", false, "")
		c.Flags().StringVar(&updateStatus, "status", "", "")
		return c
	}

	c := newCmd()
	c.Flags().Parse([]string{"--title", "Renamed", "--tags", "work, ,weekly", "--public=false"})
	upd, err := recordingUpdate(c)
	if err != nil {
		t.Fatalf("recordingUpdate() error = %v", err)
	}
	fields := upd.Fields()
	if len(fields) != 3 || fields["title"] != "Renamed" || fields["is_public"] != false {
		t.Errorf("fields = %v", fields)
	}
	if tags := fields["tags"].([]string); len(tags) != 2 || tags[1] != "weekly" {
		t.Errorf("tags = %v", tags)
	}

	if _, err := recordingUpdate(newCmd()); err == nil {
		t.Error("expected error without fields")
	}
	c = newCmd()
	c.Flags().Parse([]string{"--status", "archived"})
	if _, err := recordingUpdate(c); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestPrintRecordingsTable(t *testing.T) {
	var buf bytes.Buffer
	formatOutput = "table"
	recs := []domain.Recording{{
		ID:               "rec-1",
		Title:            "Standup\nnotes",
		Duration:         65,
		ProcessingStatus: domain.StatusPending,
		CreatedAt:        time.Date(2025, 3, 4, 10, 0, 0, 0, time.Local),
	}}
	if err := printRecordings(&buf, recs); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"ID", "rec-1", "1:05", "pending", "Standup notes", "2025-03-04 10:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printRecordings(&buf, nil)
	if !strings.Contains(buf.String(), "No recordings.") {
		t.Errorf("empty output = %q", buf.String())
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatBytes(512); got != "512 B" {
		t.Errorf("formatBytes(512) = %q", got)
	}
	if got := formatBytes(3 << 20); got != "3.0 MiB" {
		t.Errorf("formatBytes(3MiB) = %q", got)
	}
	if got := oneLine("a  b\n c", 10); got != "a b c" {
		t.Errorf("oneLine() = %q", got)
	}
	if got := oneLine("abcdefgh", 5); got != "abcd…" {
		t.Errorf("oneLine() = %q", got)
	}
}

func TestAudioSeconds(t *testing.T) {
	pcm := make([]byte, audio.DefaultFormat.BytesPerSecond()*3)
	data, err := audio.EncodeWAV(pcm, audio.DefaultFormat)
	if err != nil {
		t.Fatal(err)
	}
	if got := audioSeconds(data, "audio/wav"); got != 3 {
		t.Errorf("audioSeconds(wav) = %d, want 3", got)
	}
	if got := audioSeconds([]byte("ID3 truncated"), "audio/mpeg"); got != 0 {
		t.Errorf("audioSeconds(broken mp3) = %d, want 0", got)
	}
	if got := audioSeconds([]byte("OggS"), "audio/ogg"); got != 0 {
		t.Errorf("audioSeconds(ogg) = %d, want 0", got)
	}
}

func TestSignup(t *testing.T) {
	fake := &fakeSupabase{}
	server := httptest.NewServer(fake.handler())
	defer server.Close()
	dir := setupTestEnv(t, server.URL)

	stdout, _, err := runCmd(t, dir, "signup", "--email", "ada@example.com", "--password", "secret", "--business", "Acme Audio")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if !strings.Contains(stdout, "Check your email") {
		t.Errorf("signup output = %q", stdout)
	}
	if len(fake.signups) != 1 || fake.signups[0] != "ada@example.com/Acme Audio" {
		t.Errorf("signups = %v", fake.signups)
	}
	// Confirmation pending: no session is saved.
	if s := readSession(t, dir); s != "" {
		t.Errorf("session = %q", s)
	}
}

func TestSignupPromptsAndValidates(t *testing.T) {
	fake := &fakeSupabase{}
	server := httptest.NewServer(fake.handler())
	defer server.Close()
	dir := setupTestEnv(t, server.URL)

	_, _, err := runCmdWithInput(t, dir, "Acme\nada@example.com\nsecret1\nsecret2\n", "signup")
	if !errors.Is(err, errPasswordMismatch) {
		t.Errorf("mismatched confirmation error = %v", err)
	}
	_, _, err = runCmd(t, dir, "signup", "--email", "ada@example.com", "--password", "123", "--business", "Acme")
	if err == nil || !strings.Contains(err.Error(), "at least 6") {
		t.Errorf("short password error = %v", err)
	}
	if len(fake.signups) != 0 {
		t.Errorf("signups = %v, want none", fake.signups)
	}
}

func TestResetPassword(t *testing.T) {
	fake := &fakeSupabase{}
	server := httptest.NewServer(fake.handler())
	defer server.Close()
	dir := setupTestEnv(t, server.URL)

	stdout, _, err := runCmdWithInput(t, dir, "ada@example.com\n", "reset-password")
	if err != nil {
		t.Fatalf("reset-password: %v", err)
	}
	if !strings.Contains(stdout, "reset link") {
		t.Errorf("output = %q", stdout)
	}
	if len(fake.recovered) != 1 || fake.recovered[0] != "ada@example.com" {
		t.Errorf("recovered = %v", fake.recovered)
	}
}

func TestProfileDelete(t *testing.T) {
	fake := &fakeSupabase{profiles: map[string]bool{testUserID: true, "other-user": true}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()
	dir := setupTestEnv(t, server.URL)
	if _, _, err := runCmd(t, dir, "login", "--email", "ada@example.com", "--password", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, _, err := runCmdWithInput(t, dir, "n\n", "profile", "delete"); !errors.Is(err, errAborted) {
		t.Errorf("declined delete error = %v, want errAborted", err)
	}
	if len(fake.deletedProfile) != 0 {
		t.Fatalf("deleted = %v after declining", fake.deletedProfile)
	}

	stdout, _, err := runCmd(t, dir, "profile", "delete", "--yes")
	if err != nil {
		t.Fatalf("profile delete: %v", err)
	}
	if !strings.Contains(stdout, "Deleted profile "+testUserID) {
		t.Errorf("output = %q", stdout)
	}

	// The test user is an admin and may delete other profiles.
	if _, _, err := runCmdWithInput(t, dir, "y\n", "profile", "delete", "other-user"); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if got := strings.Join(fake.deletedProfile, ","); got != testUserID+",other-user" {
		t.Errorf("deleted = %s", got)
	}

	if _, _, err := runCmd(t, dir, "profile", "delete", "--yes", "missing-user"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing profile error = %v, want ErrNotFound", err)
	}
}

func TestDBPool(t *testing.T) {
	cfg := config.Default()
	pool, err := dbPool(cfg)
	if err != nil {
		t.Fatalf("dbPool() error = %v", err)
	}
	if pool.MaxOpenConns != 10 || pool.MaxIdleConns != 5 || pool.ConnMaxLifetime != 30*time.Minute || pool.ConnMaxIdleTime != 5*time.Minute {
		t.Errorf("pool = %+v", pool)
	}

	cfg.Pool.ConnMaxIdleTime = "a while"
	if _, err := dbPool(cfg); err == nil {
		t.Error("expected error for an unparsable idle time")
	}
}
