package radio

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimulationConfig controls the realism of the simulated air interface.
type SimulationConfig struct {
	// Advertising cadence (milliseconds between frame deliveries)
	AdvertisingIntervalMs int // Default: 100ms

	// Radio characteristics
	EnableRSSI       bool    // Default: true
	MeasuredPower    int     // RSSI at 1 meter, default: -59 dBm
	PathLossExponent float64 // Default: 2.5 (indoor)
	RSSIVariance     int     // Default: 6 dBm fluctuation

	// Packet loss
	PacketLossRate float64 // Default: 0.015 (1.5%)

	// Deterministic mode for testing
	Deterministic bool
	Seed          int64
}

// DefaultSimulationConfig returns realistic radio parameters.
func DefaultSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		AdvertisingIntervalMs: 100,
		EnableRSSI:            true,
		MeasuredPower:         -59,
		PathLossExponent:      2.5,
		RSSIVariance:          6,
		PacketLossRate:        0.015,
		Deterministic:         false,
		Seed:                  0,
	}
}

// PerfectSimulationConfig returns a lossless, jitter-free config for tests.
func PerfectSimulationConfig() *SimulationConfig {
	cfg := DefaultSimulationConfig()
	cfg.AdvertisingIntervalMs = 10
	cfg.RSSIVariance = 0
	cfg.PacketLossRate = 0
	cfg.Deterministic = true
	return cfg
}

// Simulator generates realistic radio behavior: per-frame RSSI from a
// path-loss model plus variance, and random packet loss.
type Simulator struct {
	config *SimulationConfig
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewSimulator creates a simulator from the given config (nil uses defaults).
func NewSimulator(config *SimulationConfig) *Simulator {
	if config == nil {
		config = DefaultSimulationConfig()
	}

	var rng *rand.Rand
	if config.Deterministic {
		rng = rand.New(rand.NewSource(config.Seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Simulator{config: config, rng: rng}
}

// AdvertisingInterval returns the cadence at which frames repeat.
func (s *Simulator) AdvertisingInterval() time.Duration {
	ms := s.config.AdvertisingIntervalMs
	if ms <= 0 {
		ms = 100
	}
	return time.Duration(ms) * time.Millisecond
}

// ShouldPacketSucceed returns true if a frame should reach the scanner.
func (s *Simulator) ShouldPacketSucceed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() >= s.config.PacketLossRate
}

// GenerateRSSI returns a realistic RSSI for a broadcaster at the given
// distance in meters, using the same log-distance model the estimator
// inverts: rssi = MeasuredPower - 10 * n * log10(distance) + variance.
// Clamped to the realistic BLE range (-100 to -20 dBm).
func (s *Simulator) GenerateRSSI(distance float64) int {
	if !s.config.EnableRSSI {
		return s.config.MeasuredPower
	}
	if distance < 0.1 {
		distance = 0.1
	}

	pathLoss := 10 * s.config.PathLossExponent * math.Log10(distance)
	rssi := float64(s.config.MeasuredPower) - pathLoss

	if s.config.RSSIVariance > 0 {
		s.mu.Lock()
		variance := s.rng.Intn(s.config.RSSIVariance*2) - s.config.RSSIVariance
		s.mu.Unlock()
		rssi += float64(variance)
	}

	if rssi < -100 {
		rssi = -100
	} else if rssi > -20 {
		rssi = -20
	}

	return int(rssi)
}
