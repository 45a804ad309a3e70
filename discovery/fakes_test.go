package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/user/paybeacon/beacon"
	"github.com/user/paybeacon/radio"
)

// fakePlatform is a scriptable Platform for controller tests.
type fakePlatform struct {
	mu         sync.Mutex
	id         string
	capability BroadcastCapability
	state      RadioState
	denyPerms  bool

	subs    map[int]func(RadioState)
	nextSub int

	advErrs       []error // consumed one per StartAdvertising attempt
	advCalls      int
	stopAdvCalls  int
	lastReq       BroadcastRequest
	scanErr       error
	sink          radio.ScanSink
	stopScanCalls int
}

func newFakePlatform(id string) *fakePlatform {
	return &fakePlatform{
		id:    id,
		state: RadioStatePoweredOn,
		subs:  make(map[int]func(RadioState)),
	}
}

func (p *fakePlatform) DeviceID() string { return p.id }

func (p *fakePlatform) Capability() BroadcastCapability {
	return p.capability
}

func (p *fakePlatform) State() RadioState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// setState flips the radio state and notifies listeners, like a user
// toggling bluetooth in settings.
func (p *fakePlatform) setState(s RadioState) {
	p.mu.Lock()
	p.state = s
	listeners := make([]func(RadioState), 0, len(p.subs))
	for _, fn := range p.subs {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

func (p *fakePlatform) SubscribeState(fn func(RadioState)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *fakePlatform) subscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *fakePlatform) RequestPermissions() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.denyPerms
}

func (p *fakePlatform) StartAdvertising(req BroadcastRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advCalls++
	p.lastReq = req
	if len(p.advErrs) > 0 {
		err := p.advErrs[0]
		p.advErrs = p.advErrs[1:]
		return err
	}
	return nil
}

func (p *fakePlatform) StopAdvertising() {
	p.mu.Lock()
	p.stopAdvCalls++
	p.mu.Unlock()
}

func (p *fakePlatform) StartScan(sink radio.ScanSink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scanErr != nil {
		return p.scanErr
	}
	p.sink = sink
	return nil
}

func (p *fakePlatform) StopScan() {
	p.mu.Lock()
	p.stopScanCalls++
	p.sink = nil
	p.mu.Unlock()
}

// emit injects one observation into the active scan sink.
func (p *fakePlatform) emit(obs radio.Observation) {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink != nil {
		sink(obs)
	}
}

// fakeResolver is a scriptable backend for controller tests.
type fakeResolver struct {
	mu            sync.Mutex
	registerErr   error
	nextToken     uint32
	registered    []uint32
	deregistered  []uint32
	lookupErr     error
	lookupCalls   [][]uint32
	directory     map[uint32]Recipient
	contexts      map[uint32]beacon.DiscoveryContext
	rateRemaining int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		nextToken:     0x00010001,
		directory:     make(map[uint32]Recipient),
		contexts:      make(map[uint32]beacon.DiscoveryContext),
		rateRemaining: -1,
	}
}

func (r *fakeResolver) Register(ctx context.Context, dctx beacon.DiscoveryContext, opts RegisterOptions) (*beacon.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registerErr != nil {
		return nil, r.registerErr
	}

	token := r.nextToken
	r.nextToken++
	r.registered = append(r.registered, token)

	ttl := opts.TTLSeconds
	if ttl == 0 {
		ttl = 300
	}
	major, minor := beacon.Split(token)
	now := time.Now()
	return &beacon.Registration{
		Token:      token,
		Major:      major,
		Minor:      minor,
		Context:    dctx,
		IssuedAt:   now,
		TTLSeconds: ttl,
		ExpiresAt:  now.Add(time.Duration(ttl) * time.Second),
	}, nil
}

func (r *fakeResolver) Lookup(ctx context.Context, tokens []uint32, minRSSI int) (*LookupResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}

	batch := make([]uint32, len(tokens))
	copy(batch, tokens)
	r.lookupCalls = append(r.lookupCalls, batch)

	results := make([]LookupEntry, 0, len(tokens))
	for _, t := range tokens {
		entry := LookupEntry{Token: beacon.TokenHex(t)}
		if rec, ok := r.directory[t]; ok {
			recCopy := rec
			entry.Found = true
			entry.Recipient = &recCopy
			entry.Context = r.contexts[t]
		}
		results = append(results, entry)
	}
	return &LookupResult{Results: results, RateLimitRemaining: r.rateRemaining}, nil
}

func (r *fakeResolver) Deregister(ctx context.Context, token uint32) error {
	r.mu.Lock()
	r.deregistered = append(r.deregistered, token)
	r.mu.Unlock()
	return nil
}

func (r *fakeResolver) ListActive(ctx context.Context, dctx beacon.DiscoveryContext) ([]beacon.NearbyUser, error) {
	return nil, nil
}

func (r *fakeResolver) deregisteredTokens() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint32, len(r.deregistered))
	copy(out, r.deregistered)
	return out
}

func (r *fakeResolver) lookupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lookupCalls)
}

var errNativeAdv = errors.New("native advertise failure")
