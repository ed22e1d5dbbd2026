package bluetooth

import (
	"math"

	"ble-locate.klederson.com/internal/config"
)

// EstimateDistance estimates distance from RSSI using the log-distance path
// loss model: d = 10^((refPower - rssi) / (10 * n)).
//
// RSSI readings at or above 0 dBm are not physical for BLE and are rejected
// (ok is false). Accepted readings never produce less than config.MinDistance.
func EstimateDistance(rssi, refPower, pathLossExp float64) (float64, bool) {
	if rssi >= 0 || math.IsNaN(rssi) || pathLossExp <= 0 {
		return 0, false
	}
	d := math.Pow(10, (refPower-rssi)/(10*pathLossExp))
	if d < config.MinDistance {
		return config.MinDistance, true
	}
	return d, true
}

// SmoothDistance blends a new raw distance into the previous smoothed value
// with an exponential moving average. The first observation for a scanner
// (hasPrev false) passes through unchanged.
func SmoothDistance(prev, raw, alpha float64, hasPrev bool) float64 {
	if !hasPrev {
		return raw
	}
	return raw*alpha + prev*(1-alpha)
}
