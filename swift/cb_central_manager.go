package swift

import (
	"sync"

	"github.com/user/paybeacon/radio"
)

type CBCentralManagerDelegate interface {
	DidUpdateState(central *CBCentralManager)
	DidDiscoverPeripheral(central *CBCentralManager, peripheral CBPeripheral, advertisementData map[string]interface{}, rssi float64)
}

// CBCentralManager owns the scanning role.
type CBCentralManager struct {
	Delegate CBCentralManagerDelegate

	uuid   string
	medium *radio.Medium

	mu       sync.Mutex
	state    CBManagerState
	scanning bool
}

func NewCBCentralManager(delegate CBCentralManagerDelegate, uuid string, medium *radio.Medium) *CBCentralManager {
	return &CBCentralManager{
		Delegate: delegate,
		uuid:     uuid,
		medium:   medium,
		state:    CBManagerStatePoweredOn,
	}
}

// State returns the manager state.
func (c *CBCentralManager) State() CBManagerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState simulates a radio power/authorization transition and notifies
// the delegate, matching centralManagerDidUpdateState.
func (c *CBCentralManager) SetState(state CBManagerState) {
	c.mu.Lock()
	c.state = state
	delegate := c.Delegate
	c.mu.Unlock()

	if delegate != nil {
		delegate.DidUpdateState(c)
	}
}

// ScanForPeripherals starts a continuous scan. An empty withServices slice
// scans everything. Duplicate reports are delivered when the allow-duplicates
// option is set, which proximity ranging requires.
// Matches: centralManager.scanForPeripherals(withServices:options:)
func (c *CBCentralManager) ScanForPeripherals(withServices []string, options map[string]interface{}) {
	c.mu.Lock()
	if c.state != CBManagerStatePoweredOn || c.scanning {
		c.mu.Unlock()
		return
	}
	c.scanning = true
	delegate := c.Delegate
	c.mu.Unlock()

	c.medium.StartScan(c.uuid, func(obs radio.Observation) {
		if len(withServices) > 0 && !advertisesAny(obs.Frame.ServiceUUIDs, withServices) {
			return
		}

		advertisementData := make(map[string]interface{})
		if obs.Frame.LocalName != "" {
			advertisementData[AdvDataLocalName] = obs.Frame.LocalName
		}
		if len(obs.Frame.ServiceUUIDs) > 0 {
			advertisementData[AdvDataServiceUUIDs] = obs.Frame.ServiceUUIDs
		}
		if obs.Frame.TxPower != nil {
			advertisementData[AdvDataTxPowerLevel] = *obs.Frame.TxPower
		}
		advertisementData[AdvDataIsConnectable] = true
		// Manufacturer data from foreign beacons is filtered by the OS
		// before reaching third-party scanners, so it is never surfaced.

		name := obs.Frame.LocalName
		if name == "" {
			name = "Unknown Device"
		}

		if delegate != nil {
			delegate.DidDiscoverPeripheral(c, CBPeripheral{
				UUID: obs.Frame.DeviceID,
				Name: name,
			}, advertisementData, float64(obs.RSSI))
		}
	})
}

// StopScan halts the scan.
// Matches: centralManager.stopScan()
func (c *CBCentralManager) StopScan() {
	c.mu.Lock()
	if !c.scanning {
		c.mu.Unlock()
		return
	}
	c.scanning = false
	c.mu.Unlock()

	c.medium.StopScan(c.uuid)
}

// IsScanning returns whether a scan is active.
func (c *CBCentralManager) IsScanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanning
}

func advertisesAny(advertised, wanted []string) bool {
	for _, w := range wanted {
		for _, a := range advertised {
			if a == w {
				return true
			}
		}
	}
	return false
}
