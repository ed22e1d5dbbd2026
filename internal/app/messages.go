package app

import "time"

// TickMsg triggers a frame update for animation.
type TickMsg time.Time

// EvictMsg triggers device eviction and the periodic outputs.
type EvictMsg time.Time

// PositionMsg triggers a trilateration pass over all devices.
type PositionMsg time.Time

// ScanErrorMsg reports scanner errors.
type ScanErrorMsg struct {
	Err error
}
