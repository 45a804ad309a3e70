package kotlin

import (
	"encoding/binary"
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
// manufacturer-beacon primitive
func TestAdapter_Capability(t *testing.T) {
	medium := radio.NewMedium(radio.PerfectSimulationConfig())
	a := NewAdapter("android-1", "Pixel 8 Pro", 33, medium)

	if a.Capability() != discovery.BroadcastManufacturerBeacon {
		t.Errorf("capability = %s, want manufacturer-beacon", a.Capability())
	}

	t.Logf("✅ Platform advertises via manufacturer beacon")
}

// TestAdapter_AdvertisePutsBeaconOnAir tests that a broadcast carries the
// structured payload and the name fallback
func TestAdapter_AdvertisePutsBeaconOnAir(t *testing.T) {
	medium := radio.NewMedium(radio.PerfectSimulationConfig())
	medium.Start()
	defer medium.Stop()

	a := NewAdapter("android-1", "Pixel 8 Pro", 33, medium)
	req := discovery.BroadcastRequest{
		Capability:    discovery.BroadcastManufacturerBeacon,
		LocalName:     beacon.DeviceName(0x12AB34CD),
		ProximityUUID: beacon.AnnouncementUUIDBytes(),
		Major:         0x12AB,
		Minor:         0x34CD,
		TxPower:       -59,
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

	if frame.LocalName != req.LocalName {
		t.Errorf("local name = %q, want %q", frame.LocalName, req.LocalName)
	}

	if len(frame.ManufacturerData) != 2+beacon.BeaconPayloadSize {
		t.Fatalf("manufacturer data length = %d", len(frame.ManufacturerData))
	}
	if binary.LittleEndian.Uint16(frame.ManufacturerData[0:2]) != beacon.AppleCompanyID {
		t.Error("wrong company ID prefix")
	}

	uuid, major, minor, txPower, ok := beacon.ParseBeaconPayload(frame.ManufacturerData[2:])
	if !ok {
		t.Fatal("on-air payload does not parse as a beacon")
	}
	if uuid != beacon.AnnouncementUUIDBytes() {
		t.Error("wrong proximity UUID on the air")
	}
	if major != 0x12AB || minor != 0x34CD {
		t.Errorf("got (%04X, %04X)", major, minor)
	}
	if txPower != -59 {
		t.Errorf("txPower = %d", txPower)
	}

	t.Logf("✅ Beacon payload on the air carries token %s", beacon.TokenHex(beacon.Combine(major, minor)))
}

// TestAdapter_AdvertiseRequiresEnabledRadio tests the disabled-adapter path
func TestAdapter_AdvertiseRequiresEnabledRadio(t *testing.T) {
	medium := radio.NewMedium(radio.PerfectSimulationConfig())
	a := NewAdapter("android-1", "Pixel 8 Pro", 33, medium)
	a.BluetoothAdapter().SetState(STATE_OFF)

	err := a.StartAdvertising(discovery.BroadcastRequest{
		LocalName:     beacon.DeviceName(1),
		ProximityUUID: beacon.AnnouncementUUIDBytes(),
	})
	if err == nil {
		t.Fatal("StartAdvertising should fail on a disabled adapter")
	}

	t.Logf("✅ Disabled adapter rejects advertising: %v", err)
}

// TestAdapter_ScanSurfacesManufacturerData tests that foreign beacon
// payloads reach the scan sink on this platform
func TestAdapter_ScanSurfacesManufacturerData(t *testing.T) {
	medium := radio.NewMedium(radio.PerfectSimulationConfig())
	medium.Start()
	defer medium.Stop()

	payload := beacon.EncodeBeaconPayload(beacon.AnnouncementUUIDBytes(), 0x0001, 0x0002, -59)
	raw := make([]byte, 2+len(payload))
	binary.LittleEndian.PutUint16(raw[0:2], beacon.AppleCompanyID)
	copy(raw[2:], payload)

	medium.SetAdvertising("beacon-device", radio.Frame{
		LocalName:        "Checkout Register",
		ManufacturerData: raw,
	})

	a := NewAdapter("android-1", "Pixel 8 Pro", 33, medium)

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

	uuid, major, minor, _, ok := beacon.ParseBeaconPayload(first.Frame.ManufacturerData[2:])
	if !ok {
		t.Fatal("surfaced manufacturer data does not parse as a beacon")
	}
	if uuid != beacon.AnnouncementUUIDBytes() || major != 0x0001 || minor != 0x0002 {
		t.Errorf("payload mismatch: %v (%04X, %04X)", uuid, major, minor)
	}

	t.Logf("✅ Scanner surfaces foreign beacon payloads intact")
}

// TestScanRecord_ManufacturerAccessors tests the company-scoped accessor
func TestScanRecord_ManufacturerAccessors(t *testing.T) {
	record := &ScanRecord{manufacturerData: []byte{0x4C, 0x00, 0xAA, 0xBB}}

	data := record.GetManufacturerSpecificData(beacon.AppleCompanyID)
	if len(data) != 2 || data[0] != 0xAA || data[1] != 0xBB {
		t.Errorf("GetManufacturerSpecificData = %v", data)
	}
	if record.GetManufacturerSpecificData(0x0075) != nil {
		t.Error("wrong company ID should return nil")
	}

	empty := &ScanRecord{}
	if empty.GetManufacturerSpecificData(beacon.AppleCompanyID) != nil {
		t.Error("record without manufacturer data should return nil")
	}

	t.Logf("✅ ScanRecord accessor filters by company ID")
}

// TestAdapter_PermissionDialogs tests the simulated runtime permission flow
func TestAdapter_PermissionDialogs(t *testing.T) {
	medium := radio.NewMedium(radio.PerfectSimulationConfig())

	a := NewAdapter("android-1", "Pixel 8 Pro", 33, medium)
	a.SetPermissionDialogResult(false)
	if a.RequestPermissions() {
		t.Error("declined dialogs must deny permissions")
	}

	a.SetPermissionDialogResult(true)
	if !a.RequestPermissions() {
		t.Error("accepted dialogs should grant permissions")
	}
	// Once granted, the dialogs never reappear.
	a.SetPermissionDialogResult(false)
	if !a.RequestPermissions() {
		t.Error("already-granted permissions must persist")
	}

	t.Logf("✅ Permission dialogs grant once and persist")
}

// TestAdapter_StateSubscription tests state mapping and listener removal
func TestAdapter_StateSubscription(t *testing.T) {
	medium := radio.NewMedium(radio.PerfectSimulationConfig())
	a := NewAdapter("android-1", "Pixel 8 Pro", 33, medium)

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

	a.BluetoothAdapter().SetState(STATE_OFF)
	if a.State() != discovery.RadioStatePoweredOff {
		t.Errorf("state = %s, want poweredOff", a.State())
	}

	mu.Lock()
	count := len(seen)
	gotOff := count > 0 && seen[count-1] == discovery.RadioStatePoweredOff
	mu.Unlock()
	if !gotOff {
		t.Error("listener should observe the power-off transition")
	}

	cancel()
	a.BluetoothAdapter().SetState(STATE_ON)
	mu.Lock()
	after := len(seen)
	mu.Unlock()
	if after != count {
		t.Error("removed listener must not fire")
	}

	t.Logf("✅ Adapter state transitions notify listeners until removed")
}

// TestAdvertiser_TimeoutRacesManualStop tests that the timeout goroutine and
// a manual stop can collide without double-closing the stop channel
func TestAdvertiser_TimeoutRacesManualStop(t *testing.T) {
	medium := radio.NewMedium(radio.PerfectSimulationConfig())

	adv := NewBluetoothLeAdvertiser("android-1", "Pixel 8 Pro", medium)
	settings := &AdvertiseSettings{
		AdvertiseMode: ADVERTISE_MODE_LOW_LATENCY,
		Timeout:       1, // expire almost immediately so both stoppers collide
		TxPowerLevel:  ADVERTISE_TX_POWER_MEDIUM,
	}
	data := &AdvertiseData{IncludeDeviceName: true}

	for i := 0; i < 50; i++ {
		adv.StartAdvertising(settings, data, nil, nil)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			adv.StopAdvertising()
		}()
		go func() {
			defer wg.Done()
			adv.StopAdvertising()
		}()
		wg.Wait()

		if adv.IsAdvertising() {
			t.Fatalf("iteration %d: advertiser still running after stop", i)
		}
	}

	t.Logf("✅ Concurrent stops settle cleanly")
}

// TestRequiredPermissions_ByApiLevel tests the version-dependent permission set
func TestRequiredPermissions_ByApiLevel(t *testing.T) {
	medium := radio.NewMedium(radio.PerfectSimulationConfig())

	modern := NewBluetoothAdapter("android-1", "Pixel 8 Pro", 33, medium)
	legacy := NewBluetoothAdapter("android-2", "Galaxy S9", 28, medium)

	modernPerms := modern.RequiredPermissions()
	legacyPerms := legacy.RequiredPermissions()

	if !contains(modernPerms, PERMISSION_BLUETOOTH_SCAN) || !contains(modernPerms, PERMISSION_BLUETOOTH_ADVERTISE) {
		t.Errorf("API 31+ should require the new runtime permissions, got %v", modernPerms)
	}
	if !contains(legacyPerms, PERMISSION_ACCESS_FINE_LOCATION) {
		t.Errorf("pre-31 should require location for scanning, got %v", legacyPerms)
	}

	t.Logf("✅ Permission sets track the API level")
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
