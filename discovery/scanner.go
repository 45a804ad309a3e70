package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/user/paybeacon/beacon"
	"github.com/user/paybeacon/logger"
	"github.com/user/paybeacon/radio"
)

// ScanState is the observer-role state machine.
type ScanState int

const (
	ScanIdle ScanState = iota
	ScanInitializing
	ScanActive
)

// String returns the state name.
func (s ScanState) String() string {
	switch s {
	case ScanInitializing:
		return "initializing"
	case ScanActive:
		return "scanning"
	default:
		return "idle"
	}
}

const (
	// DefaultMinRSSI drops frames weaker than this before any parsing
	// work, bounding CPU cost in noisy environments.
	DefaultMinRSSI = -80

	// DefaultDebounceInterval is the fixed cadence at which subscribers
	// receive updates.
	DefaultDebounceInterval = 2 * time.Second

	// DefaultStalenessTimeout is the silence duration after which a
	// previously seen beacon is considered gone.
	DefaultStalenessTimeout = 10 * time.Second
)

// Callback receives resolved nearby users. The slice is a snapshot; it is
// never mutated after delivery.
type Callback func(users []beacon.NearbyUser)

// ScanOptions tunes a scanning session. Zero values take the defaults.
type ScanOptions struct {
	MinRSSI          int
	DebounceInterval time.Duration
	StalenessTimeout time.Duration
	ReadyTimeout     time.Duration
	Distance         beacon.DistanceConfig
}

func (o ScanOptions) withDefaults() ScanOptions {
	if o.MinRSSI == 0 {
		o.MinRSSI = DefaultMinRSSI
	}
	if o.DebounceInterval <= 0 {
		o.DebounceInterval = DefaultDebounceInterval
	}
	if o.StalenessTimeout <= 0 {
		o.StalenessTimeout = DefaultStalenessTimeout
	}
	if o.Distance == (beacon.DistanceConfig{}) {
		o.Distance = beacon.DistanceConfigFromEnv()
	}
	return o
}

// ScanningController owns the observer role: one continuous native scan
// shared by all subscribers, a live registry of currently-visible beacons
// with staleness eviction, and debounced backend resolution.
//
// Radio events are untrusted, unordered and duplicate-prone; processing one
// is bounded to a registry upsert plus timer scheduling. Backend lookups
// run on the debounce timer goroutine and never block the event path.
type ScanningController struct {
	platform Platform
	guard    *StateGuard
	backend  Resolver

	mu            sync.Mutex
	state         ScanState
	opts          ScanOptions
	subscribers   map[int]Callback
	nextSubID     int
	registry      map[uint32]*beacon.DiscoveredBeacon
	notifyTimer   *time.Timer
	notifyPending bool
	rateRemaining int
}

// NewScanningController wires a controller to its platform and backend.
func NewScanningController(platform Platform, backend Resolver) *ScanningController {
	return &ScanningController{
		platform:      platform,
		guard:         NewStateGuard(platform),
		backend:       backend,
		subscribers:   make(map[int]Callback),
		registry:      make(map[uint32]*beacon.DiscoveredBeacon),
		rateRemaining: -1,
	}
}

// State returns the current state machine position.
func (s *ScanningController) State() ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RateLimitRemaining returns the most recent rate-limit budget the backend
// reported, or -1 when unknown.
func (s *ScanningController) RateLimitRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rateRemaining
}

// Snapshot returns copies of the currently tracked beacons.
func (s *ScanningController) Snapshot() []beacon.DiscoveredBeacon {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]beacon.DiscoveredBeacon, 0, len(s.registry))
	for _, b := range s.registry {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

// Start registers the callback and, if no scan is active yet, runs the
// radio preconditions and begins the shared native scan. Additional
// subscribers piggyback on the running scan and return immediately.
func (s *ScanningController) Start(callback Callback, opts ScanOptions) bool {
	prefix := shortID(s.platform.DeviceID())

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = callback

	if s.state == ScanActive || s.state == ScanInitializing {
		s.mu.Unlock()
		return true
	}

	s.state = ScanInitializing
	s.opts = opts.withDefaults()
	readyTimeout := s.opts.ReadyTimeout
	s.mu.Unlock()

	fail := func() bool {
		s.mu.Lock()
		// No scan ever started, so any subscriber that piggybacked during
		// initialization is stranded too. Sweep them all.
		s.subscribers = make(map[int]Callback)
		s.state = ScanIdle
		s.mu.Unlock()
		return false
	}

	if !s.guard.RequestPermissions() {
		logger.Warn(prefix, "scan aborted: radio permissions denied")
		return fail()
	}
	if !s.guard.WaitForReady(readyTimeout) {
		logger.Warn(prefix, "scan aborted: radio not ready")
		return fail()
	}

	// Duplicate reporting stays on: distance needs repeated sightings.
	if err := s.platform.StartScan(s.handleObservation); err != nil {
		logger.Warn(prefix, "native scan failed to start: %v", err)
		return fail()
	}

	s.mu.Lock()
	s.state = ScanActive
	s.mu.Unlock()
	logger.Info(prefix, "🔍 scanning started (minRSSI=%d, debounce=%v)", s.opts.MinRSSI, s.opts.DebounceInterval)
	return true
}

// Stop unsubscribes the native scan and clears all timers, the registry
// and the subscriber set. Idempotent; safe to call when not scanning.
func (s *ScanningController) Stop() {
	s.mu.Lock()
	wasActive := s.state != ScanIdle
	s.state = ScanIdle
	if s.notifyTimer != nil {
		s.notifyTimer.Stop()
		s.notifyTimer = nil
	}
	s.notifyPending = false
	s.registry = make(map[uint32]*beacon.DiscoveredBeacon)
	s.subscribers = make(map[int]Callback)
	s.mu.Unlock()

	s.platform.StopScan()
	if wasActive {
		logger.Info(shortID(s.platform.DeviceID()), "🔍 scanning stopped")
	}
}

// handleObservation processes one radio frame. It runs on the platform's
// event path, so its side effects are bounded to a registry upsert and
// timer scheduling.
func (s *ScanningController) handleObservation(obs radio.Observation) {
	s.mu.Lock()
	if s.state == ScanIdle {
		s.mu.Unlock()
		return
	}
	minRSSI := s.opts.MinRSSI
	distCfg := s.opts.Distance
	s.mu.Unlock()

	// Threshold filter before any parsing work.
	if obs.RSSI < minRSSI {
		return
	}

	ext, ok := extractToken(obs.Frame)
	if !ok {
		// The channel is shared with unrelated devices; not a beacon,
		// not an error.
		return
	}

	now := time.Now()
	distance := distCfg.EstimateDistance(obs.RSSI)

	s.mu.Lock()
	if s.state == ScanIdle {
		s.mu.Unlock()
		return
	}
	if existing, seen := s.registry[ext.token]; seen {
		existing.RSSI = obs.RSSI
		existing.DistanceMeters = distance
		existing.DeviceID = obs.Frame.DeviceID
		existing.LastSeenAt = now
	} else {
		s.registry[ext.token] = &beacon.DiscoveredBeacon{
			Token:          ext.token,
			Major:          ext.major,
			Minor:          ext.minor,
			RSSI:           obs.RSSI,
			DistanceMeters: distance,
			DeviceID:       obs.Frame.DeviceID,
			LastSeenAt:     now,
		}
		logger.Debug(shortID(s.platform.DeviceID()), "👀 new beacon %s via %s (rssi=%d, ~%.1fm)",
			beacon.TokenHex(ext.token), ext.source, obs.RSSI, distance)
	}
	s.scheduleNotifyLocked()
	s.mu.Unlock()
}

// scheduleNotifyLocked arms the debounce timer unless one is already
// pending. The timer is deliberately never reset by later events: under
// continuous discovery traffic a trailing-edge debounce would starve, so
// subscribers get updates at a fixed cadence instead.
func (s *ScanningController) scheduleNotifyLocked() {
	if s.notifyPending {
		return
	}
	s.notifyPending = true
	s.notifyTimer = time.AfterFunc(s.opts.DebounceInterval, s.flush)
}

// flush evicts stale beacons, resolves the visible token set and fans the
// merged result out to subscribers. Runs on the timer goroutine.
func (s *ScanningController) flush() {
	prefix := shortID(s.platform.DeviceID())

	s.mu.Lock()
	if s.state != ScanActive {
		s.notifyPending = false
		s.mu.Unlock()
		return
	}

	now := time.Now()
	for token, b := range s.registry {
		if now.Sub(b.LastSeenAt) > s.opts.StalenessTimeout {
			logger.Debug(prefix, "🕑 beacon %s stale, evicting", beacon.TokenHex(token))
			delete(s.registry, token)
		}
	}

	snapshot := make([]beacon.DiscoveredBeacon, 0, len(s.registry))
	for _, b := range s.registry {
		snapshot = append(snapshot, *b)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Token < snapshot[j].Token })

	// Rearm the fixed cadence while something is visible; with an empty
	// registry the next frame starts a new cadence instead.
	if len(s.registry) > 0 {
		s.notifyPending = true
		s.notifyTimer = time.AfterFunc(s.opts.DebounceInterval, s.flush)
	} else {
		s.notifyPending = false
	}

	subs := make([]Callback, 0, len(s.subscribers))
	for _, cb := range s.subscribers {
		subs = append(subs, cb)
	}
	minRSSI := s.opts.MinRSSI
	s.mu.Unlock()

	if len(snapshot) == 0 {
		deliver(subs, []beacon.NearbyUser{})
		return
	}

	tokens := make([]uint32, 0, len(snapshot))
	for _, b := range snapshot {
		tokens = append(tokens, b.Token)
		if len(tokens) == MaxLookupBatch {
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	result, err := s.backend.Lookup(ctx, tokens, minRSSI)
	cancel()
	if err != nil {
		// Skip this cycle's notification; the scan keeps running.
		logger.Warn(prefix, "lookup failed, skipping notification: %v", err)
		return
	}

	if result.RateLimitRemaining >= 0 {
		s.mu.Lock()
		s.rateRemaining = result.RateLimitRemaining
		s.mu.Unlock()
		if result.RateLimitRemaining < 5 {
			logger.Warn(prefix, "lookup rate limit nearly exhausted: %d left (resets %v)",
				result.RateLimitRemaining, result.RateLimitReset)
		}
	}

	byToken := make(map[string]LookupEntry, len(result.Results))
	for _, entry := range result.Results {
		byToken[entry.Token] = entry
	}

	users := make([]beacon.NearbyUser, 0, len(snapshot))
	for _, b := range snapshot {
		entry, ok := byToken[beacon.TokenHex(b.Token)]
		if !ok || !entry.Found || entry.Recipient == nil {
			continue
		}
		users = append(users, beacon.NearbyUser{
			Token:          entry.Token,
			UserID:         entry.Recipient.UserID,
			DisplayName:    entry.Recipient.DisplayName,
			Handle:         entry.Recipient.Handle,
			AvatarURL:      entry.Recipient.AvatarURL,
			Context:        entry.Context,
			RSSI:           b.RSSI,
			DistanceMeters: b.DistanceMeters,
			Proximity:      beacon.ProximityBucket(b.DistanceMeters),
			LastSeenAt:     b.LastSeenAt,
		})
	}

	deliver(subs, users)
}

func deliver(subs []Callback, users []beacon.NearbyUser) {
	for _, cb := range subs {
		// Each subscriber gets its own copy; callbacks must never hold
		// references into the registry.
		snapshot := make([]beacon.NearbyUser, len(users))
		copy(snapshot, users)
		cb(snapshot)
	}
}
