package swift

// CBManagerState represents the current state of a CBCentralManager or
// CBPeripheralManager. Matches iOS CoreBluetooth CBManagerState enum.
type CBManagerState int

const (
	CBManagerStateUnknown      CBManagerState = 0 // State is unknown, cannot use Bluetooth yet
	CBManagerStateResetting    CBManagerState = 1 // Connection to the system service was momentarily lost
	CBManagerStateUnsupported  CBManagerState = 2 // Platform doesn't support Bluetooth Low Energy
	CBManagerStateUnauthorized CBManagerState = 3 // App is not authorized to use Bluetooth Low Energy
	CBManagerStatePoweredOff   CBManagerState = 4 // Bluetooth is currently powered off
	CBManagerStatePoweredOn    CBManagerState = 5 // Bluetooth is currently powered on and available
)

// String returns the string representation of the CBManagerState
func (s CBManagerState) String() string {
	switch s {
	case CBManagerStateResetting:
		return "resetting"
	case CBManagerStateUnsupported:
		return "unsupported"
	case CBManagerStateUnauthorized:
		return "unauthorized"
	case CBManagerStatePoweredOff:
		return "poweredOff"
	case CBManagerStatePoweredOn:
		return "poweredOn"
	default:
		return "unknown"
	}
}

// Advertisement data dictionary keys, matching CoreBluetooth's kCBAdvData
// constants. Manufacturer data never appears for third-party broadcasters;
// the OS strips it before delivery.
const (
	AdvDataLocalName     = "kCBAdvDataLocalName"
	AdvDataServiceUUIDs  = "kCBAdvDataServiceUUIDs"
	AdvDataTxPowerLevel  = "kCBAdvDataTxPowerLevel"
	AdvDataIsConnectable = "kCBAdvDataIsConnectable"
)

// ScanOptionAllowDuplicates mirrors CBCentralManagerScanOptionAllowDuplicatesKey.
const ScanOptionAllowDuplicates = "CBCentralManagerScanOptionAllowDuplicatesKey"

// CBPeripheral identifies a discovered remote device.
type CBPeripheral struct {
	UUID string
	Name string
}
