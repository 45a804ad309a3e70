package discovery

import "github.com/user/paybeacon/radio"

// BroadcastCapability is the closed set of broadcast primitives. It is
// probed once at adapter construction, never re-checked in the scan loop.
type BroadcastCapability int

const (
	// BroadcastServiceIdentifier advertises the token as a structured
	// service identifier string. Used where third-party manufacturer
	// beacon payloads are stripped from advertisements.
	BroadcastServiceIdentifier BroadcastCapability = iota

	// BroadcastManufacturerBeacon advertises an iBeacon-style
	// manufacturer payload carrying the major/minor pair.
	BroadcastManufacturerBeacon
)

// String returns the capability name.
func (c BroadcastCapability) String() string {
	switch c {
	case BroadcastServiceIdentifier:
		return "service-identifier"
	case BroadcastManufacturerBeacon:
		return "manufacturer-beacon"
	default:
		return "unknown"
	}
}

// RadioState is the platform-neutral radio power/authorization state.
type RadioState int

const (
	RadioStateUnknown RadioState = iota
	RadioStateUnsupported
	RadioStateUnauthorized
	RadioStatePoweredOff
	RadioStatePoweredOn
)

// String returns the state name.
func (s RadioState) String() string {
	switch s {
	case RadioStateUnsupported:
		return "unsupported"
	case RadioStateUnauthorized:
		return "unauthorized"
	case RadioStatePoweredOff:
		return "poweredOff"
	case RadioStatePoweredOn:
		return "poweredOn"
	default:
		return "unknown"
	}
}

// BroadcastRequest carries the token pre-encoded for every primitive; the
// platform adapter consumes the fields its capability needs.
type BroadcastRequest struct {
	Capability        BroadcastCapability
	ServiceIdentifier string   // BroadcastServiceIdentifier payload
	LocalName         string   // device-name fallback, set for both paths
	ProximityUUID     [16]byte // BroadcastManufacturerBeacon fields
	Major             uint16
	Minor             uint16
	TxPower           int8
}

// Platform is the narrow surface the controllers need from a native BLE
// stack. The swift and kotlin adapters implement it over the shared radio
// handle; the controllers never touch the radio directly.
type Platform interface {
	// DeviceID identifies this device on the radio medium.
	DeviceID() string

	// Capability reports the broadcast primitive this platform supports.
	Capability() BroadcastCapability

	// State returns the current radio state.
	State() RadioState

	// SubscribeState registers a state-change listener and returns a
	// cancel func that must detach it. Listeners may fire from any
	// goroutine.
	SubscribeState(fn func(RadioState)) (cancel func())

	// RequestPermissions performs the platform's runtime permission
	// flow. Returns false when the user or OS denies radio access.
	RequestPermissions() bool

	// StartAdvertising begins broadcasting the request. A non-nil error
	// is a transient native failure; callers may retry.
	StartAdvertising(req BroadcastRequest) error

	// StopAdvertising halts the broadcast. Best-effort.
	StopAdvertising()

	// StartScan begins a continuous duplicate-reporting scan, delivering
	// every observed frame to sink.
	StartScan(sink radio.ScanSink) error

	// StopScan halts the scan. Best-effort, idempotent.
	StopScan()
}
