package auth

import (
	"sync"

	"voice-dashboard/pkg/domain"
)

// subscribers fans identity changes out to registered callbacks.
type subscribers struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(domain.Identity, bool)
}

func (s *subscribers) add(fn func(domain.Identity, bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(domain.Identity, bool))
	}
	id := s.nextID
	s.nextID++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

// notify calls every subscriber outside the lock so callbacks may unsubscribe.
func (s *subscribers) notify(ident domain.Identity, signedIn bool) {
	s.mu.Lock()
	fns := make([]func(domain.Identity, bool), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ident, signedIn)
	}
}
