package discoveryd

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/user/paybeacon/beacon"
)

var (
	// ErrNotFound indicates no active registration exists for a token.
	ErrNotFound = errors.New("registration not found")
	// ErrTokenTaken indicates the token is already registered.
	ErrTokenTaken = errors.New("token already registered")
)

// Registration is the server-side record behind one broadcast token.
type Registration struct {
	Token     uint32                  `json:"token"`
	Context   beacon.DiscoveryContext `json:"context"`
	OwnerID   string                  `json:"ownerId"`
	Metadata  map[string]string       `json:"metadata,omitempty"`
	IssuedAt  time.Time               `json:"issuedAt"`
	ExpiresAt time.Time               `json:"expiresAt"`
}

// Expired reports whether the registration has passed its TTL.
func (r Registration) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Registry stores active token registrations and tracks per-principal
// lookup rates. Expired records behave as absent.
type Registry interface {
	Create(ctx context.Context, reg Registration) error
	Get(ctx context.Context, token uint32) (*Registration, error)
	Delete(ctx context.Context, token uint32) error
	ActiveByContext(ctx context.Context, dctx beacon.DiscoveryContext) ([]Registration, error)
	// IncrementLookup counts one lookup for the principal inside a fixed
	// window and returns the running count plus the window reset time.
	IncrementLookup(ctx context.Context, principal string, window time.Duration) (int64, time.Time, error)
}

// MemoryRegistry is an in-process Registry for development and tests.
type MemoryRegistry struct {
	mu       sync.Mutex
	regs     map[uint32]Registration
	counters map[string]*rateWindow
}

type rateWindow struct {
	count   int64
	resetAt time.Time
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		regs:     make(map[uint32]Registration),
		counters: make(map[string]*rateWindow),
	}
}

func (m *MemoryRegistry) Create(ctx context.Context, reg Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if existing, ok := m.regs[reg.Token]; ok && !existing.Expired(now) {
		return ErrTokenTaken
	}
	m.regs[reg.Token] = reg
	return nil
}

func (m *MemoryRegistry) Get(ctx context.Context, token uint32) (*Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.regs[token]
	if !ok || reg.Expired(time.Now()) {
		delete(m.regs, token)
		return nil, ErrNotFound
	}
	out := reg
	return &out, nil
}

func (m *MemoryRegistry) Delete(ctx context.Context, token uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.regs, token)
	return nil
}

func (m *MemoryRegistry) ActiveByContext(ctx context.Context, dctx beacon.DiscoveryContext) ([]Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var out []Registration
	for token, reg := range m.regs {
		if reg.Expired(now) {
			delete(m.regs, token)
			continue
		}
		if dctx != "" && reg.Context != dctx {
			continue
		}
		out = append(out, reg)
	}
	return out, nil
}

func (m *MemoryRegistry) IncrementLookup(ctx context.Context, principal string, window time.Duration) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	w, ok := m.counters[principal]
	if !ok || now.After(w.resetAt) {
		w = &rateWindow{resetAt: now.Add(window)}
		m.counters[principal] = w
	}
	w.count++
	return w.count, w.resetAt, nil
}
