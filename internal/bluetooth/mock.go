package bluetooth

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"ble-locate.klederson.com/internal/config"
	tea "github.com/charmbracelet/bubbletea"
)

var mockDeviceTemplates = []struct {
	Name    string
	Company uint16
}{
	{"iPhone 15 Pro", 0x004C},
	{"Galaxy S24 Ultra", 0x0075},
	{"Pixel 9 Pro", 0x00E0},
	{"AirPods Pro", 0x004C},
	{"Apple Watch", 0x004C},
	{"Fitbit Charge 6", 0x03DA},
	{"Tile Tracker", 0x02FF},
	{"", 0x0499}, // Ruuvi tag, manufacturer data only
	{"", 0x0958}, // IKEA sensor
	{"", 0},      // anonymous beacon
}

// demoLayout is used when fewer than three scanners have coordinates.
var demoLayout = map[string]config.Coord{
	"0a:00:00:00:00:01": {X: 40, Y: 40},
	"0a:00:00:00:00:02": {X: 760, Y: 40},
	"0a:00:00:00:00:03": {X: 760, Y: 560},
	"0a:00:00:00:00:04": {X: 40, Y: 560},
	"0a:00:00:00:00:05": {X: 400, Y: 300},
}

// SimReceiver is a simulated fixed receiver. Every second one is remote, so
// demo mode exercises both receiver kinds.
type SimReceiver struct {
	source string
	kind   ReceiverKind
	pos    Point

	mu           sync.Mutex
	lastDetected time.Time
	stamps       map[string]time.Time
}

func (r *SimReceiver) Source() string     { return r.source }
func (r *SimReceiver) Kind() ReceiverKind { return r.kind }

func (r *SimReceiver) TimeSinceLastDetection() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastDetected.IsZero() {
		return 0
	}
	return time.Since(r.lastDetected)
}

func (r *SimReceiver) Stamps() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.kind != ReceiverRemote {
		return nil
	}
	out := make(map[string]time.Time, len(r.stamps))
	for k, v := range r.stamps {
		out[k] = v
	}
	return out
}

func (r *SimReceiver) heard(addr string, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastDetected = t
	r.stamps[addr] = t
}

type mockDevice struct {
	mac     string
	name    string
	company uint16
	pos     Point
	vel     Point
	active  bool
}

// MockScanner simulates fixed scanners and moving devices on a floor plan
// for demo mode. RSSI is derived from the true distance with the same path
// loss model the estimator inverts, plus noise.
type MockScanner struct {
	program   *tea.Program
	receivers []*SimReceiver
	devices   []mockDevice
	tuning    Tuning
	min, max  Point
	noiseDB   float64
	rng       *rand.Rand

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewMockScanner creates a simulation over the given scanner layout. A
// layout with fewer than three scanners is replaced by a built-in one.
func NewMockScanner(layout map[string]config.Coord, tuning Tuning, seed int64) *MockScanner {
	if len(layout) < config.MinTriangulationScanners {
		layout = demoLayout
	}
	rng := rand.New(rand.NewSource(seed))

	s := &MockScanner{tuning: tuning, noiseDB: 2, rng: rng}
	s.min = Point{X: math.Inf(1), Y: math.Inf(1)}
	s.max = Point{X: math.Inf(-1), Y: math.Inf(-1)}

	coords := Coords(layout)
	ids := make([]string, 0, len(coords))
	for id := range coords {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for i, id := range ids {
		c := coords[id]
		kind := ReceiverLocal
		if i%2 == 1 {
			kind = ReceiverRemote
		}
		s.receivers = append(s.receivers, &SimReceiver{
			source: id,
			kind:   kind,
			pos:    Point{X: c.X, Y: c.Y},
			stamps: make(map[string]time.Time),
		})
		s.min.X, s.min.Y = math.Min(s.min.X, c.X), math.Min(s.min.Y, c.Y)
		s.max.X, s.max.Y = math.Max(s.max.X, c.X), math.Max(s.max.Y, c.Y)
	}

	n := config.DemoDeviceMin + rng.Intn(config.DemoDeviceMax-config.DemoDeviceMin+1)
	perm := rng.Perm(len(mockDeviceTemplates))
	for i := 0; i < n && i < len(perm); i++ {
		tmpl := mockDeviceTemplates[perm[i]]
		s.devices = append(s.devices, mockDevice{
			mac:     randomMAC(rng),
			name:    tmpl.Name,
			company: tmpl.Company,
			pos: Point{
				X: s.min.X + rng.Float64()*(s.max.X-s.min.X),
				Y: s.min.Y + rng.Float64()*(s.max.Y-s.min.Y),
			},
			vel:    Point{X: (rng.Float64() - 0.5) * 20, Y: (rng.Float64() - 0.5) * 20},
			active: true,
		})
	}
	return s
}

// Layout returns the scanner coordinates the simulation runs on.
func (s *MockScanner) Layout() map[string]config.Coord {
	out := make(map[string]config.Coord, len(s.receivers))
	for _, r := range s.receivers {
		out[r.source] = config.Coord{X: r.pos.X, Y: r.pos.Y}
	}
	return out
}

// Receivers returns the simulated receiver handles.
func (s *MockScanner) Receivers() []Receiver {
	out := make([]Receiver, len(s.receivers))
	for i, r := range s.receivers {
		out[i] = r
	}
	return out
}

// Start begins the mock scanner.
func (s *MockScanner) Start(p *tea.Program) error {
	s.program = p

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.loop(ctx)
	return nil
}

func (s *MockScanner) loop(ctx context.Context) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, msg := range s.Step(0.2, time.Now()) {
				if s.program != nil {
					s.program.Send(msg)
				}
			}
		}
	}
}

// Step advances the simulation by dt seconds and returns the observations
// every scanner made at now.
func (s *MockScanner) Step(dt float64, now time.Time) []ObservationMsg {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ObservationMsg
	for i := range s.devices {
		d := &s.devices[i]

		// Randomly toggle device visibility (appear/disappear)
		if s.rng.Float64() < 0.002 {
			d.active = !d.active
		}
		if !d.active {
			continue
		}
		s.move(d, dt)

		for _, r := range s.receivers {
			dist := math.Max(d.pos.Dist(r.pos)/s.UnitsPerMeter(), config.MinDistance)
			rssi := s.tuning.RefPower - 10*s.tuning.Attenuation*math.Log10(dist) + (s.rng.Float64()-0.5)*s.noiseDB
			if rssi < -100 {
				continue
			}
			r.heard(d.mac, now)

			adv := Advertisement{
				Address:   d.mac,
				RSSI:      int16(math.Round(rssi)),
				LocalName: d.name,
				Stamp:     now,
			}
			if d.company != 0 {
				adv.ManufacturerData = map[uint16][]byte{d.company: {0x02, 0x15}}
			}
			out = append(out, ObservationMsg{Scanner: r.source, Advertisement: adv})
		}
	}
	return out
}

// UnitsPerMeter is the floor-plan scale of the simulation; the simulated
// floor is treated as 40 m across.
func (s *MockScanner) UnitsPerMeter() float64 {
	w := math.Max(s.max.X-s.min.X, s.max.Y-s.min.Y)
	if w <= 0 {
		return 1
	}
	return w / 40
}

// Position returns the true simulated position of addr.
func (s *MockScanner) Position(addr string) (Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if strings.EqualFold(d.mac, addr) {
			return d.pos, true
		}
	}
	return Point{}, false
}

func (s *MockScanner) move(d *mockDevice, dt float64) {
	d.pos.X += d.vel.X * dt
	d.pos.Y += d.vel.Y * dt
	if d.pos.X < s.min.X || d.pos.X > s.max.X {
		d.vel.X = -d.vel.X
		d.pos.X = math.Max(s.min.X, math.Min(s.max.X, d.pos.X))
	}
	if d.pos.Y < s.min.Y || d.pos.Y > s.max.Y {
		d.vel.Y = -d.vel.Y
		d.pos.Y = math.Max(s.min.Y, math.Min(s.max.Y, d.pos.Y))
	}
}

// Stop halts the mock scanner.
func (s *MockScanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func randomMAC(rng *rand.Rand) string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = byte(rng.Intn(256))
	}
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5])
}
