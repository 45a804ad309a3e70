package radio

import (
	"sync"
	"time"

	"github.com/user/paybeacon/logger"
)

// Medium is the in-process shared air interface. The real radio hardware is
// a single shared resource per device; here one Medium stands in for the
// radio environment of all simulated devices. It is created by the process
// boundary and handed to every platform adapter — never a package-level
// variable.
//
// Every advertising interval, each broadcaster's frame is fanned out to
// every scanner (except the broadcaster itself), subject to simulated
// packet loss, with RSSI derived from the configured pairwise distance.
type Medium struct {
	mu           sync.Mutex
	sim          *Simulator
	broadcasters map[string]Frame
	scanners     map[string]ScanSink
	distances    map[string]float64 // unordered device pair -> meters
	stopChan     chan struct{}
	running      bool
}

// NewMedium creates a medium using the given simulation config (nil = defaults).
func NewMedium(config *SimulationConfig) *Medium {
	return &Medium{
		sim:          NewSimulator(config),
		broadcasters: make(map[string]Frame),
		scanners:     make(map[string]ScanSink),
		distances:    make(map[string]float64),
	}
}

// Start begins the frame fan-out loop. Safe to call once per medium.
func (m *Medium) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	go m.loop(m.stopChan)
}

// Stop halts frame delivery. Broadcasters and scanners stay registered.
func (m *Medium) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopChan)
	m.stopChan = nil
}

// SetAdvertising publishes (or replaces) a device's advertisement frame.
func (m *Medium) SetAdvertising(deviceID string, frame Frame) {
	frame.DeviceID = deviceID
	m.mu.Lock()
	m.broadcasters[deviceID] = frame.Clone()
	m.mu.Unlock()
	logger.Trace(shortID(deviceID), "📡 advertising frame updated (name=%q, services=%d, mfr=%d bytes)",
		frame.LocalName, len(frame.ServiceUUIDs), len(frame.ManufacturerData))
}

// ClearAdvertising removes a device's advertisement from the air.
func (m *Medium) ClearAdvertising(deviceID string) {
	m.mu.Lock()
	delete(m.broadcasters, deviceID)
	m.mu.Unlock()
}

// StartScan registers a scan sink for a device. Frames from all other
// broadcasters are delivered to the sink every advertising interval.
func (m *Medium) StartScan(deviceID string, sink ScanSink) {
	m.mu.Lock()
	m.scanners[deviceID] = sink
	m.mu.Unlock()
}

// StopScan unregisters a device's scan sink.
func (m *Medium) StopScan(deviceID string) {
	m.mu.Lock()
	delete(m.scanners, deviceID)
	m.mu.Unlock()
}

// SetDistance fixes the simulated distance in meters between two devices.
// Unset pairs default to 1 meter.
func (m *Medium) SetDistance(a, b string, meters float64) {
	m.mu.Lock()
	m.distances[pairKey(a, b)] = meters
	m.mu.Unlock()
}

// Distance returns the simulated distance between two devices.
func (m *Medium) Distance(a, b string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.distances[pairKey(a, b)]; ok {
		return d
	}
	return 1.0
}

func (m *Medium) loop(stop chan struct{}) {
	ticker := m.sim.AdvertisingInterval()
	for {
		select {
		case <-stop:
			return
		default:
		}

		m.deliverRound()

		select {
		case <-stop:
			return
		case <-time.After(ticker):
		}
	}
}

func (m *Medium) deliverRound() {
	type delivery struct {
		sink ScanSink
		obs  Observation
	}

	m.mu.Lock()
	var deliveries []delivery
	for scannerID, sink := range m.scanners {
		for broadcasterID, frame := range m.broadcasters {
			if broadcasterID == scannerID {
				continue
			}
			if !m.sim.ShouldPacketSucceed() {
				continue
			}
			dist := 1.0
			if d, ok := m.distances[pairKey(scannerID, broadcasterID)]; ok {
				dist = d
			}
			deliveries = append(deliveries, delivery{
				sink: sink,
				obs: Observation{
					Frame: frame.Clone(),
					RSSI:  m.sim.GenerateRSSI(dist),
				},
			})
		}
	}
	m.mu.Unlock()

	// Sinks run outside the lock; they are required to be non-blocking.
	for _, d := range deliveries {
		d.sink(d.obs)
	}
}

func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
