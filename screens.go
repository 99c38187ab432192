package beacon

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Screen is an open screen view.
type Screen struct {
	HitCode string
	Title   string
	Path    string
}

// ScreenTracker maps a caller-supplied screen identity to its open view.
// Entries expire after the session timeout, so screens that are never ended do
// not accumulate.
type ScreenTracker struct {
	screens *cache.Cache
}

// NewScreenTracker creates a tracker whose entries live for ttl.
func NewScreenTracker(ttl time.Duration) *ScreenTracker {
	return &ScreenTracker{screens: cache.New(ttl, ttl)}
}

// Set records screen under id, replacing any earlier view with the same identity.
func (s *ScreenTracker) Set(id string, screen Screen) {
	s.screens.Set(id, screen, cache.DefaultExpiration)
}

// Get returns the open view for id.
func (s *ScreenTracker) Get(id string) (Screen, bool) {
	value, found := s.screens.Get(id)
	if !found {
		return Screen{}, false
	}
	return value.(Screen), true
}

// Len returns the number of open views, expired ones included until cleanup.
func (s *ScreenTracker) Len() int {
	return s.screens.ItemCount()
}

// Clear forgets every open view.
func (s *ScreenTracker) Clear() {
	s.screens.Flush()
}
