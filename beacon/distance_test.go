package beacon

import "testing"

// TestEstimateDistance_Calibration tests the anchor points of the path-loss
// model: RSSI at measured power is exactly 1 meter
func TestEstimateDistance_Calibration(t *testing.T) {
	cfg := DefaultDistanceConfig()

	if d := cfg.EstimateDistance(-59); d != 1.0 {
		t.Errorf("EstimateDistance(-59) = %.1f, want 1.0", d)
	}

	// 25 dB of extra loss at exponent 2.5 is one decade of distance.
	if d := cfg.EstimateDistance(-84); d != 10.0 {
		t.Errorf("EstimateDistance(-84) = %.1f, want 10.0", d)
	}

	t.Logf("✅ Path-loss model hits the 1m and 10m anchors")
}

// TestEstimateDistance_Monotonic tests that weaker signal never reads closer
func TestEstimateDistance_Monotonic(t *testing.T) {
	cfg := DefaultDistanceConfig()

	prev := cfg.EstimateDistance(-30)
	for rssi := -31; rssi >= -100; rssi-- {
		d := cfg.EstimateDistance(rssi)
		if d < prev {
			t.Fatalf("distance decreased: rssi %d -> %.1fm, rssi %d -> %.1fm", rssi+1, prev, rssi, d)
		}
		prev = d
	}

	t.Logf("✅ Distance is non-decreasing as RSSI weakens")
}

// TestEstimateDistance_InvalidRSSI tests that non-negative RSSI yields zero
func TestEstimateDistance_InvalidRSSI(t *testing.T) {
	if d := EstimateDistance(0); d != 0 {
		t.Errorf("EstimateDistance(0) = %.1f, want 0", d)
	}
	if d := EstimateDistance(12); d != 0 {
		t.Errorf("EstimateDistance(12) = %.1f, want 0", d)
	}

	t.Logf("✅ Physically invalid RSSI maps to zero distance")
}

// TestProximityBucket tests the display bucket boundaries
func TestProximityBucket(t *testing.T) {
	cases := []struct {
		meters float64
		want   Proximity
	}{
		{0.0, ProximityVeryClose},
		{0.5, ProximityVeryClose},
		{0.6, ProximityNearby},
		{1.5, ProximityNearby},
		{2.0, ProximityInRange},
		{3.0, ProximityInRange},
		{4.9, ProximityFurther},
		{5.0, ProximityFurther},
		{5.1, ProximityEdgeOfRange},
		{40.0, ProximityEdgeOfRange},
	}

	for _, c := range cases {
		if got := ProximityBucket(c.meters); got != c.want {
			t.Errorf("ProximityBucket(%.1f) = %s, want %s", c.meters, got, c.want)
		}
	}

	t.Logf("✅ Proximity buckets match boundaries")
}
