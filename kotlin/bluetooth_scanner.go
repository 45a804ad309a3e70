package kotlin

import (
	"encoding/binary"
	"sync"

	"github.com/user/paybeacon/radio"
)

// Scan settings, matching android.bluetooth.le.ScanSettings
const (
	SCAN_MODE_LOW_POWER   = 0
	SCAN_MODE_BALANCED    = 1
	SCAN_MODE_LOW_LATENCY = 2

	CALLBACK_TYPE_ALL_MATCHES = 1
)

// ScanSettings matches Android's ScanSettings class
type ScanSettings struct {
	ScanMode    int
	ReportDelay int // milliseconds, 0 = immediate
	LegacyOnly  bool
}

// ScanCallback matches Android's ScanCallback interface
type ScanCallback interface {
	OnScanResult(callbackType int, result *ScanResult)
	OnScanFailed(errorCode int)
}

// BluetoothDevice identifies a remote device in a scan result.
type BluetoothDevice struct {
	Address string
	Name    string
}

// ScanRecord carries the parsed advertisement payload of one scan result.
type ScanRecord struct {
	DeviceName       string
	ServiceUUIDs     []string
	manufacturerData []byte // raw, with little-endian company ID prefix
	TxPowerLevel     *int
}

// GetManufacturerSpecificData returns the payload advertised for the given
// company ID, matching scanRecord.getManufacturerSpecificData(id). Nil when
// absent or the record belongs to a different company.
func (r *ScanRecord) GetManufacturerSpecificData(companyID int) []byte {
	if len(r.manufacturerData) < 2 {
		return nil
	}
	if binary.LittleEndian.Uint16(r.manufacturerData[0:2]) != uint16(companyID) {
		return nil
	}
	return r.manufacturerData[2:]
}

// RawManufacturerData returns the manufacturer data with company ID prefix.
func (r *ScanRecord) RawManufacturerData() []byte {
	return r.manufacturerData
}

// ScanResult matches Android's ScanResult class
type ScanResult struct {
	Device     *BluetoothDevice
	Rssi       int
	ScanRecord *ScanRecord
}

// BluetoothLeScanner matches Android's BluetoothLeScanner class
type BluetoothLeScanner struct {
	uuid   string
	medium *radio.Medium

	mu       sync.Mutex
	scanning bool
	callback ScanCallback
}

// NewBluetoothLeScanner creates a scanner for a device on the shared medium.
func NewBluetoothLeScanner(uuid string, medium *radio.Medium) *BluetoothLeScanner {
	return &BluetoothLeScanner{uuid: uuid, medium: medium}
}

// StartScan begins a continuous scan delivering every observed frame.
// Matches: bluetoothLeScanner.startScan(filters, settings, callback)
func (s *BluetoothLeScanner) StartScan(settings *ScanSettings, callback ScanCallback) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return
	}
	s.scanning = true
	s.callback = callback
	s.mu.Unlock()

	s.medium.StartScan(s.uuid, func(obs radio.Observation) {
		record := &ScanRecord{
			DeviceName:       obs.Frame.LocalName,
			ServiceUUIDs:     obs.Frame.ServiceUUIDs,
			manufacturerData: obs.Frame.ManufacturerData,
			TxPowerLevel:     obs.Frame.TxPower,
		}

		s.mu.Lock()
		cb := s.callback
		s.mu.Unlock()
		if cb != nil {
			cb.OnScanResult(CALLBACK_TYPE_ALL_MATCHES, &ScanResult{
				Device: &BluetoothDevice{
					Address: obs.Frame.DeviceID,
					Name:    obs.Frame.LocalName,
				},
				Rssi:       obs.RSSI,
				ScanRecord: record,
			})
		}
	})
}

// StopScan halts the scan.
// Matches: bluetoothLeScanner.stopScan(callback)
func (s *BluetoothLeScanner) StopScan() {
	s.mu.Lock()
	if !s.scanning {
		s.mu.Unlock()
		return
	}
	s.scanning = false
	s.callback = nil
	s.mu.Unlock()

	s.medium.StopScan(s.uuid)
}

// IsScanning reports whether a scan is active.
func (s *BluetoothLeScanner) IsScanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}
