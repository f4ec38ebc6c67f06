package library

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"voice-dashboard/pkg/audio"
	"voice-dashboard/pkg/domain"
	"voice-dashboard/pkg/gateway"
	"voice-dashboard/pkg/playback"
)

var (
	ErrSignedOut      = errors.New("no signed-in user")
	ErrDeleteInFlight = errors.New("delete already in progress")
	ErrClosed         = errors.New("library closed")
)

// PlayerFactory creates the player used for the selected recording.
type PlayerFactory func() (*playback.Player, error)

// Downloader fetches the stored bytes of a recording.
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Config wires the library dependencies.
type Config struct {
	Gateway  gateway.PersistenceGateway
	Identity gateway.IdentityProvider
	Players  PlayerFactory

	// Optional.
	Downloader Downloader
	Filter     domain.ListFilter
}

// Library is the listing of the signed-in user's recordings with at most one
// expanded player.
type Library struct {
	cfg Config

	mu       sync.Mutex
	items    []domain.Recording
	filter   domain.ListFilter
	owner    string
	listGen  int
	selected string
	player   *playback.Player
	deleting map[string]bool
	unsub    func()
	closed   bool
}

// New creates a library scoped to the current identity. Identity changes
// clear the selection and re-scope the listing.
func New(cfg Config) (*Library, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("persistence gateway is required")
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if cfg.Players == nil {
		return nil, fmt.Errorf("player factory is required")
	}

	l := &Library{
		cfg:      cfg,
		filter:   cfg.Filter.Normalize(),
		deleting: make(map[string]bool),
	}
	if ident, ok := cfg.Identity.Current(); ok {
		l.owner = ident.ID
	}
	l.unsub = cfg.Identity.Subscribe(l.identityChanged)
	return l, nil
}

func (l *Library) identityChanged(ident domain.Identity, signedIn bool) {
	owner := ""
	if signedIn {
		owner = ident.ID
	}

	l.mu.Lock()
	if l.closed || owner == l.owner {
		l.mu.Unlock()
		return
	}
	l.owner = owner
	l.items = nil
	l.selected = ""
	l.listGen++
	player := l.player
	l.player = nil
	l.mu.Unlock()

	if player != nil {
		player.Close()
	}
	if signedIn {
		if err := l.Refresh(context.Background()); err != nil {
			log.Printf("library: refresh after sign-in: %v", err)
		}
	}
}

// Refresh reloads the listing of the current identity with the active filter.
func (l *Library) Refresh(ctx context.Context) error {
	ident, ok := l.cfg.Identity.Current()
	if !ok {
		l.mu.Lock()
		l.items = nil
		l.mu.Unlock()
		return ErrSignedOut
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.listGen++
	gen := l.listGen
	filter := l.filter
	l.owner = ident.ID
	l.mu.Unlock()

	recs, err := l.cfg.Gateway.List(ctx, ident.ID, filter)
	if err != nil {
		log.Printf("library: list recordings for %s: %v", ident.ID, err)
		return fmt.Errorf("list recordings: %w", err)
	}

	items := make([]domain.Recording, 0, len(recs))
	for _, rec := range recs {
		if rec.Listable() {
			items = append(items, rec)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.listGen || l.owner != ident.ID {
		return nil
	}
	l.items = items
	return nil
}

// SetFilter replaces the active filter and refreshes.
func (l *Library) SetFilter(ctx context.Context, filter domain.ListFilter) error {
	l.mu.Lock()
	l.filter = filter.Normalize()
	l.mu.Unlock()
	return l.Refresh(ctx)
}

// Filter returns the active filter.
func (l *Library) Filter() domain.ListFilter {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filter
}

// Items returns the listing, newest first.
func (l *Library) Items() []domain.Recording {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Recording, len(l.items))
	copy(out, l.items)
	return out
}

// Selected returns the id of the expanded recording, or "".
func (l *Library) Selected() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.selected
}

// Player returns the player of the expanded recording, or nil.
func (l *Library) Player() *playback.Player {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.player
}

// Prepend puts rec at the top of the listing, replacing an entry with the same id.
func (l *Library) Prepend(rec domain.Recording) {
	if !rec.Listable() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	items := make([]domain.Recording, 0, len(l.items)+1)
	items = append(items, rec)
	for _, it := range l.items {
		if it.ID != rec.ID {
			items = append(items, it)
		}
	}
	l.items = items
}

// SelectForPlayback toggles the player of id. Selecting another recording
// closes the previous player before the new one is bound. It returns the
// player now expanded, or nil when id was collapsed.
func (l *Library) SelectForPlayback(ctx context.Context, id string) (*playback.Player, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	previous := l.player
	if l.selected == id {
		l.selected = ""
		l.player = nil
		l.mu.Unlock()
		if previous != nil {
			previous.Close()
		}
		return nil, nil
	}

	rec, ok := l.findLocked(id)
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("recording %s: %w", id, domain.ErrNotFound)
	}
	l.selected = id
	l.player = nil
	l.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	player, err := l.cfg.Players()
	if err != nil {
		l.clearSelection(id)
		return nil, fmt.Errorf("create player: %w", err)
	}
	if _, err := player.Bind(ctx, rec.FileURL, rec.Title); err != nil {
		log.Printf("library: bind %s: %v", id, err)
	}

	l.mu.Lock()
	if l.selected != id || l.player != nil || l.closed {
		l.mu.Unlock()
		player.Close()
		return nil, nil
	}
	l.player = player
	l.mu.Unlock()
	return player, nil
}

func (l *Library) clearSelection(id string) {
	l.mu.Lock()
	if l.selected == id {
		l.selected = ""
	}
	l.mu.Unlock()
}

func (l *Library) findLocked(id string) (domain.Recording, bool) {
	for _, rec := range l.items {
		if rec.ID == id {
			return rec, true
		}
	}
	return domain.Recording{}, false
}

// Delete removes the recording through the gateway. The entry stays listed
// until the backend confirms, and a failure leaves the listing unchanged.
func (l *Library) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	if l.deleting[id] {
		l.mu.Unlock()
		return ErrDeleteInFlight
	}
	l.deleting[id] = true
	l.mu.Unlock()

	err := l.cfg.Gateway.Delete(ctx, id)

	l.mu.Lock()
	delete(l.deleting, id)
	if err != nil {
		l.mu.Unlock()
		log.Printf("library: delete %s: %v", id, err)
		return fmt.Errorf("delete recording %s: %w", id, err)
	}

	items := l.items[:0:0]
	for _, rec := range l.items {
		if rec.ID != id {
			items = append(items, rec)
		}
	}
	l.items = items

	var player *playback.Player
	if l.selected == id {
		l.selected = ""
		player = l.player
		l.player = nil
	}
	l.mu.Unlock()

	if player != nil {
		player.Close()
	}
	return nil
}

// Download saves the audio of id into dir and returns the written path.
func (l *Library) Download(ctx context.Context, id, dir string) (string, error) {
	if l.cfg.Downloader == nil {
		return "", fmt.Errorf("downloader is required")
	}

	l.mu.Lock()
	rec, ok := l.findLocked(id)
	l.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("recording %s: %w", id, domain.ErrNotFound)
	}

	data, err := l.cfg.Downloader.Fetch(ctx, rec.FileURL)
	if err != nil {
		log.Printf("library: download %s: %v", id, err)
		return "", fmt.Errorf("download recording %s: %w", id, err)
	}

	path := filepath.Join(dir, DownloadName(rec.Title))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// DownloadName is the file name a recording is saved under.
func DownloadName(title string) string {
	name := strings.TrimSpace(title)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		name = "recording"
	}
	return name + "." + audio.Extension
}

// Close collapses the player and stops following identity changes.
func (l *Library) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	player := l.player
	l.player = nil
	l.selected = ""
	unsub := l.unsub
	l.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if player != nil {
		return player.Close()
	}
	return nil
}
