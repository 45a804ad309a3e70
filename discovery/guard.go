package discovery

import (
	"time"

	"github.com/user/paybeacon/logger"
)

// DefaultReadyTimeout bounds how long controllers wait for the radio to
// power on before failing a start.
const DefaultReadyTimeout = 5 * time.Second

// RadioStatus is the result of a state precondition check.
type RadioStatus struct {
	Supported bool
	Enabled   bool
	Raw       RadioState
}

// StateGuard checks radio power and permission preconditions before any
// broadcast or scan operation. Both controllers consult it and fail fast
// rather than proceed into undefined native behavior.
type StateGuard struct {
	platform Platform
}

// NewStateGuard wraps a platform adapter.
func NewStateGuard(platform Platform) *StateGuard {
	return &StateGuard{platform: platform}
}

// CheckState reports radio support and power without blocking.
func (g *StateGuard) CheckState() RadioStatus {
	raw := g.platform.State()
	return RadioStatus{
		Supported: raw != RadioStateUnsupported,
		Enabled:   raw == RadioStatePoweredOn,
		Raw:       raw,
	}
}

// RequestPermissions runs the platform permission flow.
func (g *StateGuard) RequestPermissions() bool {
	return g.platform.RequestPermissions()
}

// WaitForReady blocks until the radio powers on or the timeout elapses.
// A single one-shot listener races the timer; whichever fires first
// resolves the call, and the listener is always detached so repeated
// start/stop cycles cannot leak subscriptions.
func (g *StateGuard) WaitForReady(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}

	switch g.platform.State() {
	case RadioStatePoweredOn:
		return true
	case RadioStateUnsupported:
		return false
	}

	ready := make(chan struct{}, 1)
	cancel := g.platform.SubscribeState(func(s RadioState) {
		if s == RadioStatePoweredOn {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})
	defer cancel()

	// The state may have flipped between the check and the subscribe.
	if g.platform.State() == RadioStatePoweredOn {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return true
	case <-timer.C:
		logger.Debug(shortID(g.platform.DeviceID()), "radio not ready after %v (state=%s)", timeout, g.platform.State())
		return false
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
