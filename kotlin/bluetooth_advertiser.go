package kotlin

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/user/paybeacon/logger"
	"github.com/user/paybeacon/radio"
)

// AdvertiseCallback matches Android's AdvertiseCallback interface
type AdvertiseCallback interface {
	OnStartSuccess(settingsInEffect *AdvertiseSettings)
	OnStartFailure(errorCode int)
}

// AdvertiseSettings matches Android's AdvertiseSettings class
type AdvertiseSettings struct {
	AdvertiseMode int // ADVERTISE_MODE_LOW_POWER, BALANCED, LOW_LATENCY
	Connectable   bool
	Timeout       int // milliseconds, 0 = no timeout
	TxPowerLevel  int // ADVERTISE_TX_POWER_ULTRA_LOW, LOW, MEDIUM, HIGH
}

// AdvertiseSettings modes
const (
	ADVERTISE_MODE_LOW_POWER   = 0 // 1000ms interval
	ADVERTISE_MODE_BALANCED    = 1 // 250ms interval
	ADVERTISE_MODE_LOW_LATENCY = 2 // 100ms interval
)

// AdvertiseSettings TX power levels
const (
	ADVERTISE_TX_POWER_ULTRA_LOW = 0 // -21 dBm
	ADVERTISE_TX_POWER_LOW       = 1 // -15 dBm
	ADVERTISE_TX_POWER_MEDIUM    = 2 // -7 dBm
	ADVERTISE_TX_POWER_HIGH      = 3 // 1 dBm
)

// AdvertiseSettings error codes
const (
	ADVERTISE_FAILED_DATA_TOO_LARGE       = 1
	ADVERTISE_FAILED_TOO_MANY_ADVERTISERS = 2
	ADVERTISE_FAILED_ALREADY_STARTED      = 3
	ADVERTISE_FAILED_INTERNAL_ERROR       = 4
	ADVERTISE_FAILED_FEATURE_UNSUPPORTED  = 5
)

// AdvertiseData matches Android's AdvertiseData class
type AdvertiseData struct {
	ServiceUUIDs        []string
	ManufacturerData    map[int][]byte // Company ID -> data
	IncludeTxPowerLevel bool
	IncludeDeviceName   bool
}

// BluetoothLeAdvertiser matches Android's BluetoothLeAdvertiser class.
// The timeout goroutine stops advertising on its own schedule, so all
// advertising state is guarded by the mutex.
type BluetoothLeAdvertiser struct {
	uuid       string
	deviceName string
	medium     *radio.Medium

	mu              sync.Mutex
	isAdvertising   bool
	stopAdvertising chan struct{}
	callback        AdvertiseCallback
	settings        *AdvertiseSettings
}

// NewBluetoothLeAdvertiser creates a new advertiser
func NewBluetoothLeAdvertiser(uuid string, deviceName string, medium *radio.Medium) *BluetoothLeAdvertiser {
	return &BluetoothLeAdvertiser{
		uuid:       uuid,
		deviceName: deviceName,
		medium:     medium,
	}
}

// StartAdvertising starts advertising with the specified settings and data
// Matches: bluetoothLeAdvertiser.startAdvertising(settings, advertiseData, scanResponse, callback)
func (a *BluetoothLeAdvertiser) StartAdvertising(
	settings *AdvertiseSettings,
	advertiseData *AdvertiseData,
	scanResponse *AdvertiseData,
	callback AdvertiseCallback,
) {
	a.mu.Lock()
	if a.isAdvertising {
		a.mu.Unlock()
		if callback != nil {
			go callback.OnStartFailure(ADVERTISE_FAILED_ALREADY_STARTED)
		}
		return
	}

	if settings == nil {
		settings = &AdvertiseSettings{
			AdvertiseMode: ADVERTISE_MODE_LOW_POWER,
			Connectable:   true,
			Timeout:       0,
			TxPowerLevel:  ADVERTISE_TX_POWER_MEDIUM,
		}
	}

	a.callback = callback
	a.settings = settings

	frame := radio.Frame{}

	var serviceUUIDs []string
	if advertiseData != nil {
		serviceUUIDs = append(serviceUUIDs, advertiseData.ServiceUUIDs...)
	}
	if scanResponse != nil {
		serviceUUIDs = append(serviceUUIDs, scanResponse.ServiceUUIDs...)
	}
	frame.ServiceUUIDs = serviceUUIDs

	if advertiseData != nil && advertiseData.IncludeDeviceName {
		frame.LocalName = a.deviceName
	}

	if advertiseData != nil && advertiseData.IncludeTxPowerLevel {
		txPower := a.txPowerLevelToDbm(settings.TxPowerLevel)
		frame.TxPower = &txPower
	}

	// Manufacturer data rides with its little-endian company ID prefix,
	// the raw AD structure layout scanners parse it back out of.
	if advertiseData != nil && len(advertiseData.ManufacturerData) > 0 {
		for companyID, data := range advertiseData.ManufacturerData {
			payload := make([]byte, 2+len(data))
			binary.LittleEndian.PutUint16(payload[0:2], uint16(companyID))
			copy(payload[2:], data)
			frame.ManufacturerData = payload
			break // Only the first manufacturer entry fits the advertisement
		}
	}

	a.medium.SetAdvertising(a.uuid, frame)
	a.isAdvertising = true
	a.stopAdvertising = make(chan struct{})
	stopped := a.stopAdvertising
	a.mu.Unlock()

	logger.Info(shortID(a.uuid)+" Android", "📡 Started Advertising")

	// Handle timeout if specified
	if settings.Timeout > 0 {
		go func() {
			select {
			case <-time.After(time.Duration(settings.Timeout) * time.Millisecond):
				a.StopAdvertising()
			case <-stopped:
				// Stopped manually before timeout
			}
		}()
	}

	if callback != nil {
		go func() {
			// Small delay to match real Android async behavior
			time.Sleep(10 * time.Millisecond)
			callback.OnStartSuccess(settings)
		}()
	}
}

// StopAdvertising stops advertising
// Matches: bluetoothLeAdvertiser.stopAdvertising(callback)
func (a *BluetoothLeAdvertiser) StopAdvertising() {
	a.mu.Lock()
	if !a.isAdvertising {
		a.mu.Unlock()
		return
	}

	if a.stopAdvertising != nil {
		close(a.stopAdvertising)
		a.stopAdvertising = nil
	}
	a.isAdvertising = false
	a.mu.Unlock()

	a.medium.ClearAdvertising(a.uuid)

	logger.Info(shortID(a.uuid)+" Android", "📡 Stopped Advertising")
}

// IsAdvertising returns whether currently advertising
func (a *BluetoothLeAdvertiser) IsAdvertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isAdvertising
}

// txPowerLevelToDbm converts Android TX power level to dBm
func (a *BluetoothLeAdvertiser) txPowerLevelToDbm(level int) int {
	switch level {
	case ADVERTISE_TX_POWER_ULTRA_LOW:
		return -21
	case ADVERTISE_TX_POWER_LOW:
		return -15
	case ADVERTISE_TX_POWER_MEDIUM:
		return -7
	case ADVERTISE_TX_POWER_HIGH:
		return 1
	default:
		return -7 // Default to medium
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
