package kotlin

import (
	"sync"

	"github.com/user/paybeacon/radio"
)

// BluetoothAdapter states, matching android.bluetooth.BluetoothAdapter
const (
	STATE_OFF         = 10
	STATE_TURNING_ON  = 11
	STATE_ON          = 12
	STATE_TURNING_OFF = 13
)

// Runtime permissions. Which set applies depends on the OS version:
// API 31+ uses the granular BLUETOOTH_* permissions, older versions need
// location access to receive scan results at all.
const (
	PERMISSION_BLUETOOTH_SCAN         = "android.permission.BLUETOOTH_SCAN"
	PERMISSION_BLUETOOTH_ADVERTISE    = "android.permission.BLUETOOTH_ADVERTISE"
	PERMISSION_BLUETOOTH_CONNECT      = "android.permission.BLUETOOTH_CONNECT"
	PERMISSION_ACCESS_FINE_LOCATION   = "android.permission.ACCESS_FINE_LOCATION"
	PERMISSION_BLUETOOTH_LEGACY       = "android.permission.BLUETOOTH"
	PERMISSION_BLUETOOTH_ADMIN_LEGACY = "android.permission.BLUETOOTH_ADMIN"
)

// API level at which the granular Bluetooth permissions replaced the
// location-based ones.
const apiLevelS = 31

// BluetoothAdapter matches Android's BluetoothAdapter: the entry point to
// the device's radio, its power state, and its LE advertiser/scanner.
type BluetoothAdapter struct {
	deviceID   string
	deviceName string
	apiLevel   int

	mu          sync.Mutex
	state       int
	granted     map[string]bool
	stateLi     map[int]func(int)
	nextStateLi int

	advertiser *BluetoothLeAdvertiser
	scanner    *BluetoothLeScanner
}

// NewBluetoothAdapter creates an adapter for a device on the shared medium.
func NewBluetoothAdapter(deviceID, deviceName string, apiLevel int, medium *radio.Medium) *BluetoothAdapter {
	a := &BluetoothAdapter{
		deviceID:   deviceID,
		deviceName: deviceName,
		apiLevel:   apiLevel,
		state:      STATE_ON,
		granted:    make(map[string]bool),
		stateLi:    make(map[int]func(int)),
	}
	a.advertiser = NewBluetoothLeAdvertiser(deviceID, deviceName, medium)
	a.scanner = NewBluetoothLeScanner(deviceID, medium)
	return a
}

// GetBluetoothLeAdvertiser returns the LE advertiser.
func (a *BluetoothAdapter) GetBluetoothLeAdvertiser() *BluetoothLeAdvertiser {
	return a.advertiser
}

// GetBluetoothLeScanner returns the LE scanner.
func (a *BluetoothAdapter) GetBluetoothLeScanner() *BluetoothLeScanner {
	return a.scanner
}

// GetState returns the adapter power state.
func (a *BluetoothAdapter) GetState() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// IsEnabled reports whether the radio is on.
func (a *BluetoothAdapter) IsEnabled() bool {
	return a.GetState() == STATE_ON
}

// SetState simulates a radio power transition, notifying listeners the way
// the ACTION_STATE_CHANGED broadcast would.
func (a *BluetoothAdapter) SetState(state int) {
	a.mu.Lock()
	a.state = state
	listeners := make([]func(int), 0, len(a.stateLi))
	for _, fn := range a.stateLi {
		listeners = append(listeners, fn)
	}
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

// AddStateListener registers a state-change listener and returns a removal func.
func (a *BluetoothAdapter) AddStateListener(fn func(state int)) func() {
	a.mu.Lock()
	id := a.nextStateLi
	a.nextStateLi++
	a.stateLi[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.stateLi, id)
		a.mu.Unlock()
	}
}

// RequiredPermissions returns the runtime permission set for this OS version.
func (a *BluetoothAdapter) RequiredPermissions() []string {
	if a.apiLevel >= apiLevelS {
		return []string{
			PERMISSION_BLUETOOTH_SCAN,
			PERMISSION_BLUETOOTH_ADVERTISE,
			PERMISSION_BLUETOOTH_CONNECT,
		}
	}
	return []string{
		PERMISSION_BLUETOOTH_LEGACY,
		PERMISSION_BLUETOOTH_ADMIN_LEGACY,
		PERMISSION_ACCESS_FINE_LOCATION,
	}
}

// GrantPermissions simulates the user accepting the permission dialog for
// the given permissions.
func (a *BluetoothAdapter) GrantPermissions(perms ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range perms {
		a.granted[p] = true
	}
}

// GrantAllPermissions grants the full required set.
func (a *BluetoothAdapter) GrantAllPermissions() {
	a.GrantPermissions(a.RequiredPermissions()...)
}

// HasPermissions reports whether every required permission is granted.
func (a *BluetoothAdapter) HasPermissions() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.RequiredPermissions() {
		if !a.granted[p] {
			return false
		}
	}
	return true
}
