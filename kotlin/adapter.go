package kotlin

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/paybeacon/beacon"
	"github.com/user/paybeacon/discovery"
	"github.com/user/paybeacon/radio"
)

// Adapter exposes the Android facade through the discovery.Platform
// surface. This platform permits manufacturer payloads, so the token is
// broadcast as an iBeacon-style structured payload.
type Adapter struct {
	adapter *BluetoothAdapter

	mu            sync.Mutex
	sink          radio.ScanSink
	advResult     chan error
	permitDialogs bool // whether the simulated user accepts permission dialogs
}

// NewAdapter builds the platform adapter over a shared radio handle.
// apiLevel selects the runtime permission set.
func NewAdapter(deviceID, deviceName string, apiLevel int, medium *radio.Medium) *Adapter {
	return &Adapter{
		adapter:       NewBluetoothAdapter(deviceID, deviceName, apiLevel, medium),
		permitDialogs: true,
	}
}

// BluetoothAdapter exposes the underlying adapter for tests and the demo.
func (a *Adapter) BluetoothAdapter() *BluetoothAdapter {
	return a.adapter
}

// SetPermissionDialogResult controls whether the simulated user grants the
// runtime permission dialogs.
func (a *Adapter) SetPermissionDialogResult(granted bool) {
	a.mu.Lock()
	a.permitDialogs = granted
	a.mu.Unlock()
}

// DeviceID identifies this device on the medium.
func (a *Adapter) DeviceID() string {
	return a.adapter.deviceID
}

// Capability reports the manufacturer-beacon broadcast primitive.
func (a *Adapter) Capability() discovery.BroadcastCapability {
	return discovery.BroadcastManufacturerBeacon
}

// State maps the adapter power state to the neutral radio state.
func (a *Adapter) State() discovery.RadioState {
	switch a.adapter.GetState() {
	case STATE_ON:
		return discovery.RadioStatePoweredOn
	case STATE_OFF, STATE_TURNING_OFF, STATE_TURNING_ON:
		return discovery.RadioStatePoweredOff
	default:
		return discovery.RadioStateUnknown
	}
}

// SubscribeState registers a state listener; the returned cancel func
// detaches it.
func (a *Adapter) SubscribeState(fn func(discovery.RadioState)) func() {
	return a.adapter.AddStateListener(func(state int) {
		switch state {
		case STATE_ON:
			fn(discovery.RadioStatePoweredOn)
		case STATE_OFF:
			fn(discovery.RadioStatePoweredOff)
		}
	})
}

// RequestPermissions runs the explicit multi-permission request. The set
// depends on the OS version; the simulated dialog outcome stands in for
// the user's choice.
func (a *Adapter) RequestPermissions() bool {
	if a.adapter.HasPermissions() {
		return true
	}
	a.mu.Lock()
	granted := a.permitDialogs
	a.mu.Unlock()
	if !granted {
		return false
	}
	a.adapter.GrantAllPermissions()
	return true
}

// StartAdvertising broadcasts the iBeacon-style payload plus local-name
// fallback and waits for the async callback result.
func (a *Adapter) StartAdvertising(req discovery.BroadcastRequest) error {
	if !a.adapter.IsEnabled() {
		return errors.New("bluetooth adapter not enabled")
	}

	payload := encodeBeaconAdvertisement(req)

	a.mu.Lock()
	a.advResult = make(chan error, 1)
	result := a.advResult
	// The fallback name has to be the advertised device name; the real
	// stack reads it from the adapter, so swap it in here.
	a.adapter.advertiser.deviceName = req.LocalName
	a.mu.Unlock()

	a.adapter.advertiser.StartAdvertising(
		&AdvertiseSettings{
			AdvertiseMode: ADVERTISE_MODE_LOW_LATENCY,
			Connectable:   false,
			TxPowerLevel:  ADVERTISE_TX_POWER_MEDIUM,
		},
		&AdvertiseData{
			ManufacturerData:  payload,
			IncludeDeviceName: true,
		},
		nil,
		advCallback{result: result},
	)

	select {
	case err := <-result:
		return err
	case <-time.After(time.Second):
		return errors.New("advertising start timed out")
	}
}

// StopAdvertising halts the broadcast.
func (a *Adapter) StopAdvertising() {
	a.adapter.advertiser.StopAdvertising()
}

// StartScan begins a continuous low-latency scan feeding the sink.
func (a *Adapter) StartScan(sink radio.ScanSink) error {
	if !a.adapter.IsEnabled() {
		return errors.New("bluetooth adapter not enabled")
	}

	a.mu.Lock()
	a.sink = sink
	a.mu.Unlock()

	a.adapter.scanner.StartScan(&ScanSettings{ScanMode: SCAN_MODE_LOW_LATENCY}, scanBridge{adapter: a})
	return nil
}

// StopScan halts the scan.
func (a *Adapter) StopScan() {
	a.adapter.scanner.StopScan()
	a.mu.Lock()
	a.sink = nil
	a.mu.Unlock()
}

// advCallback bridges the Android callback to a result channel.
type advCallback struct {
	result chan error
}

func (c advCallback) OnStartSuccess(settingsInEffect *AdvertiseSettings) {
	select {
	case c.result <- nil:
	default:
	}
}

func (c advCallback) OnStartFailure(errorCode int) {
	select {
	case c.result <- fmt.Errorf("advertise failed: code %d", errorCode):
	default:
	}
}

// scanBridge folds scan results back into neutral observations for the
// extraction pipeline.
type scanBridge struct {
	adapter *Adapter
}

func (b scanBridge) OnScanResult(callbackType int, result *ScanResult) {
	b.adapter.mu.Lock()
	sink := b.adapter.sink
	b.adapter.mu.Unlock()
	if sink == nil || result == nil || result.ScanRecord == nil {
		return
	}

	sink(radio.Observation{
		Frame: radio.Frame{
			DeviceID:         result.Device.Address,
			LocalName:        result.ScanRecord.DeviceName,
			ServiceUUIDs:     result.ScanRecord.ServiceUUIDs,
			ManufacturerData: result.ScanRecord.RawManufacturerData(),
			TxPower:          result.ScanRecord.TxPowerLevel,
		},
		RSSI: result.Rssi,
	})
}

func (b scanBridge) OnScanFailed(errorCode int) {}

// encodeBeaconAdvertisement builds the manufacturer-data map for an
// iBeacon-style broadcast of the request's major/minor pair.
func encodeBeaconAdvertisement(req discovery.BroadcastRequest) map[int][]byte {
	return map[int][]byte{
		beacon.AppleCompanyID: beacon.EncodeBeaconPayload(req.ProximityUUID, req.Major, req.Minor, req.TxPower),
	}
}
