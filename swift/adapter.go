package swift

import (
	"errors"
	"sync"
	"time"

	"github.com/user/paybeacon/discovery"
	"github.com/user/paybeacon/radio"
)

// Adapter exposes the CoreBluetooth facade through the discovery.Platform
// surface. This platform forbids third-party manufacturer beacon payloads,
// so its capability is the structured service identifier string.
type Adapter struct {
	deviceID   string
	peripheral *CBPeripheralManager
	central    *CBCentralManager

	mu        sync.Mutex
	stateSubs map[int]func(discovery.RadioState)
	nextSub   int
	sink      radio.ScanSink
	advResult chan error
}

// NewAdapter builds the platform adapter over a shared radio handle.
func NewAdapter(deviceID string, medium *radio.Medium) *Adapter {
	a := &Adapter{
		deviceID:  deviceID,
		stateSubs: make(map[int]func(discovery.RadioState)),
	}
	a.peripheral = NewCBPeripheralManager(a, deviceID, medium)
	a.central = NewCBCentralManager(a, deviceID, medium)
	return a
}

// DeviceID identifies this device on the medium.
func (a *Adapter) DeviceID() string {
	return a.deviceID
}

// Capability reports the service-identifier broadcast primitive.
func (a *Adapter) Capability() discovery.BroadcastCapability {
	return discovery.BroadcastServiceIdentifier
}

// State maps the CoreBluetooth manager state to the neutral radio state.
func (a *Adapter) State() discovery.RadioState {
	return mapState(a.central.State())
}

// SetState drives both managers through a state transition. Used by tests
// and the demo to simulate power cycles and authorization changes.
func (a *Adapter) SetState(state CBManagerState) {
	a.central.SetState(state)
	a.peripheral.SetState(state)
}

// SubscribeState registers a state listener; the returned cancel func
// detaches it.
func (a *Adapter) SubscribeState(fn func(discovery.RadioState)) func() {
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.stateSubs[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.stateSubs, id)
		a.mu.Unlock()
	}
}

// RequestPermissions is implicit on this platform: the OS prompts on first
// manager use, and denial shows up as the unauthorized state. The caller's
// readiness wait absorbs the grant-propagation delay.
func (a *Adapter) RequestPermissions() bool {
	switch a.central.State() {
	case CBManagerStateUnsupported, CBManagerStateUnauthorized:
		return false
	default:
		return true
	}
}

// StartAdvertising broadcasts the service identifier plus local-name
// fallback and waits for the async delegate result.
func (a *Adapter) StartAdvertising(req discovery.BroadcastRequest) error {
	a.mu.Lock()
	a.advResult = make(chan error, 1)
	result := a.advResult
	a.mu.Unlock()

	a.peripheral.StartAdvertising(map[string]interface{}{
		AdvDataLocalName:    req.LocalName,
		AdvDataServiceUUIDs: []string{req.ServiceIdentifier},
	})

	select {
	case err := <-result:
		return err
	case <-time.After(time.Second):
		return errors.New("advertising start timed out")
	}
}

// StopAdvertising halts the broadcast.
func (a *Adapter) StopAdvertising() {
	a.peripheral.StopAdvertising()
}

// StartScan begins a duplicate-reporting scan feeding the sink.
func (a *Adapter) StartScan(sink radio.ScanSink) error {
	if a.central.State() != CBManagerStatePoweredOn {
		return errors.New("central manager not powered on")
	}

	a.mu.Lock()
	a.sink = sink
	a.mu.Unlock()

	a.central.ScanForPeripherals(nil, map[string]interface{}{
		ScanOptionAllowDuplicates: true,
	})
	return nil
}

// StopScan halts the scan.
func (a *Adapter) StopScan() {
	a.central.StopScan()
	a.mu.Lock()
	a.sink = nil
	a.mu.Unlock()
}

// DidUpdateState implements CBCentralManagerDelegate.
func (a *Adapter) DidUpdateState(central *CBCentralManager) {
	a.notifyState(mapState(central.State()))
}

// PeripheralManagerDidUpdateState implements CBPeripheralManagerDelegate.
func (a *Adapter) PeripheralManagerDidUpdateState(peripheral *CBPeripheralManager) {
	a.notifyState(mapState(peripheral.State()))
}

// DidStartAdvertising implements CBPeripheralManagerDelegate.
func (a *Adapter) DidStartAdvertising(peripheral *CBPeripheralManager, err error) {
	a.mu.Lock()
	result := a.advResult
	a.mu.Unlock()
	if result != nil {
		select {
		case result <- err:
		default:
		}
	}
}

// DidDiscoverPeripheral implements CBCentralManagerDelegate. The
// advertisement dictionary is folded back into a neutral observation for
// the extraction pipeline.
func (a *Adapter) DidDiscoverPeripheral(central *CBCentralManager, peripheral CBPeripheral, advertisementData map[string]interface{}, rssi float64) {
	a.mu.Lock()
	sink := a.sink
	a.mu.Unlock()
	if sink == nil {
		return
	}

	frame := radio.Frame{DeviceID: peripheral.UUID}
	if name, ok := advertisementData[AdvDataLocalName].(string); ok {
		frame.LocalName = name
	}
	if services, ok := advertisementData[AdvDataServiceUUIDs].([]string); ok {
		frame.ServiceUUIDs = services
	}
	if tx, ok := advertisementData[AdvDataTxPowerLevel].(int); ok {
		frame.TxPower = &tx
	}

	sink(radio.Observation{Frame: frame, RSSI: int(rssi)})
}

func (a *Adapter) notifyState(state discovery.RadioState) {
	a.mu.Lock()
	subs := make([]func(discovery.RadioState), 0, len(a.stateSubs))
	for _, fn := range a.stateSubs {
		subs = append(subs, fn)
	}
	a.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

func mapState(s CBManagerState) discovery.RadioState {
	switch s {
	case CBManagerStatePoweredOn:
		return discovery.RadioStatePoweredOn
	case CBManagerStatePoweredOff:
		return discovery.RadioStatePoweredOff
	case CBManagerStateUnauthorized:
		return discovery.RadioStateUnauthorized
	case CBManagerStateUnsupported:
		return discovery.RadioStateUnsupported
	default:
		return discovery.RadioStateUnknown
	}
}
