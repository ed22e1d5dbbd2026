package bluetooth

import (
	"sort"
	"sync"
	"time"

	"ble-locate.klederson.com/internal/config"
	"ble-locate.klederson.com/internal/timeutil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Solve outcomes reported to a Recorder.
const (
	OutcomeLocated      = "located"
	OutcomeInsufficient = "insufficient"
	OutcomeDegenerate   = "degenerate"
)

// Recorder receives counters from the registry. Implementations must be
// safe for concurrent use.
type Recorder interface {
	AdvertProcessed(withDistance bool)
	PositionSolved(outcome string)
	DevicesTracked(n int)
}

type nopRecorder struct{}

func (nopRecorder) AdvertProcessed(bool)  {}
func (nopRecorder) PositionSolved(string) {}
func (nopRecorder) DevicesTracked(int)    {}

// Registry is a thread-safe set of tracked devices keyed by address.
// The map lock only guards membership; device state has its own lock, so
// work on different devices proceeds in parallel.
type Registry struct {
	mu        sync.RWMutex
	devices   map[string]*Device
	userNames map[string]string

	tuning   Tuning
	clock    timeutil.Clock
	log      *logrus.Entry
	recorder Recorder
}

// NewRegistry creates an empty registry.
func NewRegistry(tuning Tuning, clock timeutil.Clock, log *logrus.Entry) *Registry {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		devices:   make(map[string]*Device),
		userNames: make(map[string]string),
		tuning:    tuning,
		clock:     clock,
		log:       log.WithField("component", "registry"),
		recorder:  nopRecorder{},
	}
}

// SetRecorder installs r to receive counters.
func (r *Registry) SetRecorder(rec Recorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec == nil {
		rec = nopRecorder{}
	}
	r.recorder = rec
}

func (r *Registry) rec() Recorder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recorder
}

// Device returns the device for address, creating it on first sight.
func (r *Registry) Device(address string) *Device {
	addr := NormalizeAddress(address)

	r.mu.RLock()
	d, ok := r.devices[addr]
	r.mu.RUnlock()
	if ok {
		return d
	}

	r.mu.Lock()
	if d, ok = r.devices[addr]; !ok {
		d = NewDevice(addr, r.tuning, r.clock, r.log)
		if name, named := r.userNames[addr]; named {
			d.SetUserName(name)
		}
		r.devices[addr] = d
		r.log.WithField("device", addr).Debug("Tracking new device")
	}
	n := len(r.devices)
	rec := r.recorder
	r.mu.Unlock()

	rec.DevicesTracked(n)
	return d
}

// Lookup returns the device for address without creating it.
func (r *Registry) Lookup(address string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[NormalizeAddress(address)]
	return d, ok
}

// SetUserNames applies user-assigned names, now and to devices created later.
func (r *Registry) SetUserNames(names map[string]string) {
	for addr, name := range names {
		r.SetUserName(addr, name)
	}
}

// SetUserName assigns a display name to address.
func (r *Registry) SetUserName(address, name string) {
	addr := NormalizeAddress(address)
	r.mu.Lock()
	r.userNames[addr] = name
	d, ok := r.devices[addr]
	r.mu.Unlock()
	if ok {
		d.SetUserName(name)
	}
}

// Process records an advertisement of adv.Address heard by scannerAddr.
func (r *Registry) Process(scannerAddr string, adv Advertisement) *Device {
	scanner := r.Device(scannerAddr)
	d := r.Device(adv.Address)
	r.rec().AdvertProcessed(d.ProcessAdvertisement(scanner, adv))
	return d
}

// InitScanner registers a receiver and marks its device as a scanner.
func (r *Registry) InitScanner(rcv Receiver) *Device {
	d := r.Device(rcv.Source())
	d.ScannerInit(rcv)
	d.ScannerUpdate(rcv)
	return d
}

// UpdateScanner refreshes a receiver's state. Receivers that were never
// initialized are ignored.
func (r *Registry) UpdateScanner(rcv Receiver) {
	if d, ok := r.Lookup(rcv.Source()); ok {
		d.ScannerUpdate(rcv)
	}
}

func (r *Registry) list() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// ComputePositions locates every device that has been heard by at least
// one scanner. Scanners with configured coordinates are skipped; their
// position is already known. Failures are logged per device.
func (r *Registry) ComputePositions(coords map[string]Point) map[string]Point {
	rec := r.rec()
	out := make(map[string]Point)
	for _, d := range r.list() {
		if _, fixed := coords[d.Address]; fixed {
			continue
		}
		if len(d.Links()) == 0 {
			d.ClearPosition()
			continue
		}
		p, err := d.Locate(coords)
		switch {
		case err == nil:
			out[d.Address] = p
			rec.PositionSolved(OutcomeLocated)
		case errors.Is(err, ErrDegenerateGeometry):
			d.warnUnlocatable(err)
			rec.PositionSolved(OutcomeDegenerate)
		default:
			d.warnUnlocatable(err)
			rec.PositionSolved(OutcomeInsufficient)
		}
	}
	return out
}

// ClearPositions drops every stored position, e.g. when triangulation is
// switched off.
func (r *Registry) ClearPositions() {
	for _, d := range r.list() {
		d.ClearPosition()
	}
}

// Positions returns the last computed position of every located device.
func (r *Registry) Positions() map[string]Point {
	out := make(map[string]Point)
	for _, d := range r.list() {
		if p, ok := d.Position(); ok {
			out[d.Address] = p
		}
	}
	return out
}

// Snapshot returns copies of all devices (strongest RSSI first).
func (r *Registry) Snapshot() []DeviceSnapshot {
	devs := r.list()
	result := make([]DeviceSnapshot, 0, len(devs))
	for _, d := range devs {
		result = append(result, d.Snapshot())
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RSSI > result[j].RSSI // Strongest first (less negative)
	})
	return result
}

// Count returns the total number of tracked devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// CountScanners returns how many tracked devices are receivers, and how
// many of those are remote.
func (r *Registry) CountScanners() (scanners, remote int) {
	for _, d := range r.list() {
		if d.IsScanner() {
			scanners++
		}
		if d.IsRemoteScanner() {
			remote++
		}
	}
	return
}

// Evict removes non-scanner devices not seen within timeout and prunes stale
// links from the rest. Returns the number of evicted devices.
func (r *Registry) Evict(timeout time.Duration) int {
	now := r.clock.Now()
	var stale []string
	for _, d := range r.list() {
		if d.IsScanner() {
			continue
		}
		if now.Sub(d.LastSeen()) > timeout {
			stale = append(stale, d.Address)
			continue
		}
		d.PruneLinks()
	}

	r.mu.Lock()
	for _, addr := range stale {
		delete(r.devices, addr)
	}
	n := len(r.devices)
	rec := r.recorder
	r.mu.Unlock()

	if len(stale) > 0 {
		r.log.WithField("count", len(stale)).Debug("Evicted stale devices")
		rec.DevicesTracked(n)
	}
	return len(stale)
}

// Coords converts configured coordinates to solver points.
func Coords(m map[string]config.Coord) map[string]Point {
	out := make(map[string]Point, len(m))
	for id, c := range m {
		out[NormalizeAddress(id)] = Point{X: c.X, Y: c.Y}
	}
	return out
}
