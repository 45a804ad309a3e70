package swift

import (
	"sync"
	"testing"
	"time"

	"github.com/user/paybeacon/beacon"
	"github.com/user/paybeacon/discovery"
	"github.com/user/paybeacon/radio"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// TestAdapter_Capability tests that this platform reports the
// service-identifier primitive
func TestAdapter_Capability(t *testing.T) {
	medium := radio.NewMedium(radio.PerfectSimulationConfig())
	a := NewAdapter("ios-1", medium)

	if a.Capability() != discovery.BroadcastServiceIdentifier {
		t.Errorf("capability = %s, want service-identifier", a.Capability())
	}

	t.Logf("✅ Platform advertises via service identifier")
}

// TestAdapter_AdvertisePutsIdentifierOnAir tests that a broadcast carries
// the service identifier and name but never manufacturer data
func TestAdapter_AdvertisePutsIdentifierOnAir(t *testing.T) {
	medium := radio.NewMedium(radio.PerfectSimulationConfig())
	medium.Start()
	defer medium.Stop()

	a := NewAdapter("ios-1", medium)
	req := discovery.BroadcastRequest{
		Capability:        discovery.BroadcastServiceIdentifier,
		ServiceIdentifier: beacon.ServiceIdentifier(0x12AB, 0x34CD),
		LocalName:         beacon.DeviceName(0x12AB34CD),
		ProximityUUID:     beacon.AnnouncementUUIDBytes(),
		Major:             0x12AB,
		Minor:             0x34CD,
		TxPower:           -59,
	}

	if err := a.StartAdvertising(req); err != nil {
		t.Fatalf("StartAdvertising failed: %v", err)
	}
	defer a.StopAdvertising()

	var mu sync.Mutex
	var frames []radio.Frame
	medium.StartScan("observer", func(obs radio.Observation) {
		mu.Lock()
		frames = append(frames, obs.Frame)
		mu.Unlock()
	})

	waitUntil(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) > 0
	})

	mu.Lock()
	frame := frames[0]
	mu.Unlock()

	if len(frame.ServiceUUIDs) != 1 || frame.ServiceUUIDs[0] != req.ServiceIdentifier {
		t.Errorf("service UUIDs = %v", frame.ServiceUUIDs)
	}
	if frame.LocalName != req.LocalName {
		t.Errorf("local name = %q", frame.LocalName)
	}
	if len(frame.ManufacturerData) != 0 {
		t.Error("this platform must never put manufacturer data on the air")
	}

	t.Logf("✅ Advertisement carries identifier %s, no manufacturer payload", frame.ServiceUUIDs[0])
}

// TestAdapter_AdvertiseFailsWhenPoweredOff tests the delegate error path
func TestAdapter_AdvertiseFailsWhenPoweredOff(t *testing.T) {
	medium := radio.NewMedium(radio.PerfectSimulationConfig())
	a := NewAdapter("ios-1", medium)
	a.SetState(CBManagerStatePoweredOff)

	err := a.StartAdvertising(discovery.BroadcastRequest{
		ServiceIdentifier: beacon.ServiceIdentifier(1, 2),
		LocalName:         beacon.DeviceName(0x00010002),
	})
	if err == nil {
		t.Fatal("StartAdvertising should fail on a powered-off radio")
	}

	t.Logf("✅ Powered-off advertise fails with: %v", err)
}

// TestAdapter_ScanNeverSurfacesForeignManufacturerData tests the OS
// filtering of foreign beacon payloads
func TestAdapter_ScanNeverSurfacesForeignManufacturerData(t *testing.T) {
	medium := radio.NewMedium(radio.PerfectSimulationConfig())
	medium.Start()
	defer medium.Stop()

	// A raw broadcaster with both an identifier and a manufacturer payload.
	medium.SetAdvertising("beacon-device", radio.Frame{
		LocalName:        "PB:00010002",
		ServiceUUIDs:     []string{beacon.ServiceIdentifier(1, 2)},
		ManufacturerData: []byte{0x4C, 0x00, 0x02, 0x15},
	})

	a := NewAdapter("ios-1", medium)

	var mu sync.Mutex
	var obs []radio.Observation
	if err := a.StartScan(func(o radio.Observation) {
		mu.Lock()
		obs = append(obs, o)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("StartScan failed: %v", err)
	}
	defer a.StopScan()

	waitUntil(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(obs) > 0
	})

	mu.Lock()
	first := obs[0]
	mu.Unlock()

	if len(first.Frame.ManufacturerData) != 0 {
		t.Error("foreign manufacturer data must be filtered before the app sees it")
	}
	if len(first.Frame.ServiceUUIDs) != 1 {
		t.Errorf("service UUIDs should survive filtering, got %v", first.Frame.ServiceUUIDs)
	}
	if first.Frame.LocalName != "PB:00010002" {
		t.Errorf("local name = %q", first.Frame.LocalName)
	}

	t.Logf("✅ Scanner surfaces identifier and name, strips manufacturer data")
}

// TestAdapter_StateSubscription tests state mapping and listener detach
func TestAdapter_StateSubscription(t *testing.T) {
	medium := radio.NewMedium(radio.PerfectSimulationConfig())
	a := NewAdapter("ios-1", medium)

	if a.State() != discovery.RadioStatePoweredOn {
		t.Errorf("initial state = %s", a.State())
	}

	var mu sync.Mutex
	var seen []discovery.RadioState
	cancel := a.SubscribeState(func(s discovery.RadioState) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	a.SetState(CBManagerStatePoweredOff)
	if a.State() != discovery.RadioStatePoweredOff {
		t.Errorf("state = %s, want poweredOff", a.State())
	}

	mu.Lock()
	gotOff := len(seen) > 0 && seen[0] == discovery.RadioStatePoweredOff
	count := len(seen)
	mu.Unlock()
	if !gotOff {
		t.Error("listener should observe the power-off transition")
	}

	cancel()
	a.SetState(CBManagerStatePoweredOn)
	mu.Lock()
	after := len(seen)
	mu.Unlock()
	if after != count {
		t.Error("cancelled listener must not fire")
	}

	t.Logf("✅ State transitions notify subscribers until cancelled")
}

// TestAdapter_PermissionsByState tests the implicit permission model
func TestAdapter_PermissionsByState(t *testing.T) {
	medium := radio.NewMedium(radio.PerfectSimulationConfig())

	a := NewAdapter("ios-1", medium)
	if !a.RequestPermissions() {
		t.Error("powered-on radio implies granted permissions")
	}

	a.SetState(CBManagerStateUnauthorized)
	if a.RequestPermissions() {
		t.Error("unauthorized state must deny permissions")
	}

	a.SetState(CBManagerStateUnsupported)
	if a.RequestPermissions() {
		t.Error("unsupported hardware must deny permissions")
	}

	t.Logf("✅ Permission result tracks manager state")
}
