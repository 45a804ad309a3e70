package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/user/paybeacon/beacon"
	"github.com/user/paybeacon/logger"
)

// AdvertiserState is the broadcaster-role state machine.
type AdvertiserState int

const (
	AdvertiserIdle AdvertiserState = iota
	AdvertiserRegistering
	AdvertiserBroadcasting
	AdvertiserStopping
)

// String returns the state name.
func (s AdvertiserState) String() string {
	switch s {
	case AdvertiserRegistering:
		return "registering"
	case AdvertiserBroadcasting:
		return "broadcasting"
	case AdvertiserStopping:
		return "stopping"
	default:
		return "idle"
	}
}

const (
	defaultBroadcastRetries = 3
	defaultRetryBackoff     = 500 * time.Millisecond
	defaultBeaconTxPower    = -59
)

// AdvertiseOptions tunes one advertising session.
type AdvertiseOptions struct {
	TTLSeconds   int
	Metadata     map[string]string
	ReadyTimeout time.Duration
}

// AdvertisingController owns the broadcaster role: it registers a token
// with the backend, encodes it into whichever broadcast primitive the
// platform supports, retries transient native failures a bounded number of
// times, and deregisters on stop. At most one registration is active at a
// time; starting a new session implicitly invalidates any prior one.
type AdvertisingController struct {
	platform Platform
	guard    *StateGuard
	backend  Resolver

	maxRetries   int
	retryBackoff time.Duration

	mu     sync.Mutex
	state  AdvertiserState
	active *beacon.Registration
}

// NewAdvertisingController wires a controller to its platform and backend.
func NewAdvertisingController(platform Platform, backend Resolver) *AdvertisingController {
	return &AdvertisingController{
		platform:     platform,
		guard:        NewStateGuard(platform),
		backend:      backend,
		maxRetries:   defaultBroadcastRetries,
		retryBackoff: defaultRetryBackoff,
	}
}

// State returns the current state machine position.
func (a *AdvertisingController) State() AdvertiserState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Active returns a copy of the live registration, or nil.
func (a *AdvertisingController) Active() *beacon.Registration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return nil
	}
	reg := *a.active
	return &reg
}

// Start registers a token and broadcasts it. Returns false on any
// precondition, registration, or persistent native failure; the state
// machine is back at Idle in every failure case.
func (a *AdvertisingController) Start(ctx context.Context, dctx beacon.DiscoveryContext, opts AdvertiseOptions) bool {
	prefix := shortID(a.platform.DeviceID())

	a.mu.Lock()
	if a.state != AdvertiserIdle {
		// A prior session is live; tear it down first so the new
		// registration implicitly invalidates it.
		a.mu.Unlock()
		a.Stop(ctx)
		a.mu.Lock()
		if a.state != AdvertiserIdle {
			a.mu.Unlock()
			return false
		}
	}
	a.state = AdvertiserRegistering
	a.mu.Unlock()

	reg, err := a.backend.Register(ctx, dctx, RegisterOptions{
		TTLSeconds: opts.TTLSeconds,
		Metadata:   opts.Metadata,
	})
	if err != nil {
		logger.Warn(prefix, "beacon registration failed: %v", err)
		a.reset()
		return false
	}

	if !a.guard.RequestPermissions() {
		logger.Warn(prefix, "radio permissions denied, releasing token %s", beacon.TokenHex(reg.Token))
		a.releaseToken(ctx, reg.Token)
		a.reset()
		return false
	}

	if !a.guard.WaitForReady(opts.ReadyTimeout) {
		logger.Warn(prefix, "radio not ready, releasing token %s", beacon.TokenHex(reg.Token))
		a.releaseToken(ctx, reg.Token)
		a.reset()
		return false
	}

	req := BroadcastRequest{
		Capability:        a.platform.Capability(),
		ServiceIdentifier: beacon.ServiceIdentifier(reg.Major, reg.Minor),
		LocalName:         beacon.DeviceName(reg.Token),
		ProximityUUID:     beacon.AnnouncementUUIDBytes(),
		Major:             reg.Major,
		Minor:             reg.Minor,
		TxPower:           defaultBeaconTxPower,
	}

	var lastErr error
	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		lastErr = a.platform.StartAdvertising(req)
		if lastErr == nil {
			a.mu.Lock()
			a.state = AdvertiserBroadcasting
			a.active = reg
			a.mu.Unlock()
			logger.Info(prefix, "📡 broadcasting token %s via %s (ttl=%ds)",
				beacon.TokenHex(reg.Token), req.Capability, reg.TTLSeconds)
			return true
		}
		logger.Debug(prefix, "broadcast attempt %d/%d failed: %v", attempt, a.maxRetries, lastErr)
		if attempt < a.maxRetries {
			time.Sleep(a.retryBackoff)
		}
	}

	logger.Warn(prefix, "broadcast failed after %d attempts: %v", a.maxRetries, lastErr)
	a.releaseToken(ctx, reg.Token)
	a.reset()
	return false
}

// Stop halts the broadcast and releases the token. The native stop is
// best-effort and the backend deregister is unconditional when a token is
// active; stop must never leave a token silently live on the backend. The
// controller always ends Idle with no active token, even when either step
// fails.
func (a *AdvertisingController) Stop(ctx context.Context) {
	a.mu.Lock()
	if a.state == AdvertiserIdle && a.active == nil {
		a.mu.Unlock()
		return
	}
	a.state = AdvertiserStopping
	active := a.active
	a.active = nil
	a.mu.Unlock()

	a.platform.StopAdvertising()

	if active != nil {
		a.releaseToken(ctx, active.Token)
		logger.Info(shortID(a.platform.DeviceID()), "📡 stopped broadcasting token %s", beacon.TokenHex(active.Token))
	}

	a.reset()
}

func (a *AdvertisingController) releaseToken(ctx context.Context, token uint32) {
	if err := a.backend.Deregister(ctx, token); err != nil {
		// Best-effort: the backend TTL will reap it.
		logger.Debug(shortID(a.platform.DeviceID()), "deregister %s failed: %v", beacon.TokenHex(token), err)
	}
}

func (a *AdvertisingController) reset() {
	a.mu.Lock()
	a.state = AdvertiserIdle
	a.active = nil
	a.mu.Unlock()
}
