package discoveryd

import (
	"context"
	"errors"
	"sync"
)

// ErrProfileNotFound indicates no profile exists for a user ID.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is the public recipient identity revealed by a token lookup.
type Profile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Handle      string `json:"handle,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// ProfileStore resolves user IDs to public profiles.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
}

// MemoryProfiles is an in-process ProfileStore for development and tests.
type MemoryProfiles struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewMemoryProfiles creates an empty store.
func NewMemoryProfiles() *MemoryProfiles {
	return &MemoryProfiles{profiles: make(map[string]Profile)}
}

// Put inserts or replaces a profile.
func (m *MemoryProfiles) Put(p Profile) {
	m.mu.Lock()
	m.profiles[p.UserID] = p
	m.mu.Unlock()
}

func (m *MemoryProfiles) GetByUserID(ctx context.Context, userID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	out := p
	return &out, nil
}
