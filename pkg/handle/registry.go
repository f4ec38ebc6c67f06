package handle

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Scheme prefixes every local playback URL.
const Scheme = "blob:"

var (
	ErrRevoked    = errors.New("playback handle revoked or unknown")
	ErrNotAHandle = errors.New("url is not a playback handle")
)

// Handle is a revocable reference to in-memory audio.
type Handle struct {
	ID       string
	URL      string
	MIMEType string
	Size     int
}

// Registry allocates and revokes playback handles for local audio data.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	data     []byte
	mimeType string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Create registers data and returns a handle whose URL resolves to it until revoked.
func (r *Registry) Create(data []byte, mimeType string) Handle {
	id := uuid.NewString()

	r.mu.Lock()
	r.entries[id] = entry{data: data, mimeType: mimeType}
	r.mu.Unlock()

	return Handle{ID: id, URL: Scheme + id, MIMEType: mimeType, Size: len(data)}
}

// Revoke releases the data behind url. Revoking twice is a no-op.
func (r *Registry) Revoke(url string) {
	id, ok := idFromURL(url)
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Resolve returns the data and MIME type behind a live handle URL.
func (r *Registry) Resolve(url string) ([]byte, string, error) {
	id, ok := idFromURL(url)
	if !ok {
		return nil, "", ErrNotAHandle
	}
	r.mu.RLock()
	e, found := r.entries[id]
	r.mu.RUnlock()
	if !found {
		return nil, "", ErrRevoked
	}
	return e.data, e.mimeType, nil
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IsHandle reports whether url uses the local playback scheme.
func IsHandle(url string) bool {
	return strings.HasPrefix(url, Scheme)
}

func idFromURL(url string) (string, bool) {
	if !IsHandle(url) {
		return "", false
	}
	id := strings.TrimPrefix(url, Scheme)
	return id, id != ""
}
