package radio

// Frame is the advertisement payload a broadcaster puts on the air.
// It mirrors what real BLE stacks expose to applications after the
// link-layer AD structures have been parsed: local name, service UUID
// strings, raw manufacturer data and optional TX power.
type Frame struct {
	DeviceID         string
	LocalName        string
	ServiceUUIDs     []string
	ManufacturerData []byte
	TxPower          *int
}

// Clone returns a deep copy so receivers never alias the broadcaster's slices.
func (f Frame) Clone() Frame {
	out := f
	if f.ServiceUUIDs != nil {
		out.ServiceUUIDs = append([]string(nil), f.ServiceUUIDs...)
	}
	if f.ManufacturerData != nil {
		out.ManufacturerData = append([]byte(nil), f.ManufacturerData...)
	}
	if f.TxPower != nil {
		tx := *f.TxPower
		out.TxPower = &tx
	}
	return out
}

// Observation couples a received frame with its signal strength.
type Observation struct {
	Frame Frame
	RSSI  int
}

// ScanSink receives observations from the medium. Implementations must be
// non-blocking; they run on the medium's delivery goroutine.
type ScanSink func(Observation)
