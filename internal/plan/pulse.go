package plan

import (
	"math"
	"time"

	"ble-locate.klederson.com/internal/config"
)

// Pulse drives the blink of the selected marker.
type Pulse struct {
	Phase     float64 // position in the current period, [0, 1)
	StartTime time.Time
	Period    time.Duration
}

// NewPulse creates a pulse starting at now.
func NewPulse(now time.Time) *Pulse {
	return &Pulse{StartTime: now, Period: config.PulsePeriod}
}

// Update advances the phase to now.
func (p *Pulse) Update(now time.Time) {
	if p.Period <= 0 {
		p.Phase = 0
		return
	}
	elapsed := now.Sub(p.StartTime).Seconds()
	p.Phase = math.Mod(elapsed/p.Period.Seconds(), 1)
	if p.Phase < 0 {
		p.Phase += 1
	}
}

// Intensity is a triangle wave in [0, 1]: 1 at the start of each period,
// 0 halfway through.
func (p *Pulse) Intensity() float64 {
	if p == nil {
		return 0
	}
	return math.Abs(1 - 2*p.Phase)
}
