package beacon

import (
	"math"

	"github.com/user/paybeacon/util"
)

// DistanceConfig holds the RSSI calibration for the log-distance path-loss
// model. The defaults are indoor estimates; deployments should calibrate
// MeasuredPower against real hardware at 1 meter.
type DistanceConfig struct {
	MeasuredPower    float64 // expected RSSI at 1 meter, in dBm
	PathLossExponent float64 // 2.0 is free space; indoor environments run higher
}

// DefaultDistanceConfig returns the stock indoor calibration.
func DefaultDistanceConfig() DistanceConfig {
	return DistanceConfig{
		MeasuredPower:    -59,
		PathLossExponent: 2.5,
	}
}

// DistanceConfigFromEnv layers deployment calibration over the stock
// defaults. PAYBEACON_MEASURED_POWER and PAYBEACON_PATH_LOSS_EXP override
// the respective fields when set.
func DistanceConfigFromEnv() DistanceConfig {
	cfg := DefaultDistanceConfig()
	cfg.MeasuredPower = util.GetEnvFloat("PAYBEACON_MEASURED_POWER", cfg.MeasuredPower)
	cfg.PathLossExponent = util.GetEnvFloat("PAYBEACON_PATH_LOSS_EXP", cfg.PathLossExponent)
	return cfg
}

// EstimateDistance converts an RSSI reading into meters using
// distance = 10 ^ ((MeasuredPower - rssi) / (10 * PathLossExponent)).
// Non-negative RSSI is physically invalid and yields 0. The result is
// rounded to one decimal so sub-decimeter RSSI jitter does not flicker
// through to display code.
func (c DistanceConfig) EstimateDistance(rssi int) float64 {
	if rssi >= 0 {
		return 0
	}
	d := math.Pow(10, (c.MeasuredPower-float64(rssi))/(10*c.PathLossExponent))
	return math.Round(d*10) / 10
}

// EstimateDistance applies the default calibration.
func EstimateDistance(rssi int) float64 {
	return DefaultDistanceConfig().EstimateDistance(rssi)
}

// Proximity is a human-readable distance bucket. Labels only; matching
// logic never branches on these.
type Proximity string

const (
	ProximityVeryClose   Proximity = "very-close"
	ProximityNearby      Proximity = "nearby"
	ProximityInRange     Proximity = "in-range"
	ProximityFurther     Proximity = "further"
	ProximityEdgeOfRange Proximity = "edge-of-range"
)

// ProximityBucket maps a distance in meters to its display bucket.
func ProximityBucket(meters float64) Proximity {
	switch {
	case meters <= 0.5:
		return ProximityVeryClose
	case meters <= 1.5:
		return ProximityNearby
	case meters <= 3:
		return ProximityInRange
	case meters <= 5:
		return ProximityFurther
	default:
		return ProximityEdgeOfRange
	}
}
