package bluetooth

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"ble-locate.klederson.com/internal/config"
	"ble-locate.klederson.com/internal/timeutil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Tuning is the read-only configuration a device works with. Each device
// holds its own copy.
type Tuning struct {
	RefPower       float64       // RSSI at 1 unit (dBm)
	Attenuation    float64       // path loss exponent
	SmoothingAlpha float64       // EMA weight of the newest raw distance
	MaxAge         time.Duration // freshness window for trilateration
	HistorySize    int           // advertisement summaries kept
	UnitsPerMeter  float64       // converts distances to floor-plan units
}

// DefaultTuning returns the compiled-in defaults.
func DefaultTuning() Tuning {
	return TuningFromOptions(config.DefaultOptions())
}

// TuningFromOptions extracts the tuning values from the options set.
func TuningFromOptions(o *config.Options) Tuning {
	return Tuning{
		RefPower:       o.GetRefPower(),
		Attenuation:    o.GetAttenuation(),
		SmoothingAlpha: o.GetSmoothingAlpha(),
		MaxAge:         o.GetMaxAge(),
		HistorySize:    o.GetHistorySize(),
		UnitsPerMeter:  o.GetUnitsPerMeter(),
	}
}

// NormalizeAddress returns the canonical device identity for addr.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Device is a tracked Bluetooth device. All methods are safe for concurrent
// use; each call holds the device lock for its whole duration, so processing
// an advertisement and computing a position never interleave.
type Device struct {
	// Address is the normalized identity; it never changes.
	Address string

	mu           sync.Mutex
	name         string
	nameByUser   string
	localName    string
	manufacturer string
	zone         string
	areaName     string
	floorName    string
	lastSeen     time.Time

	links    *LinkTable
	adverts  *Ring[AdvertSummary]
	position *Point
	role     scannerRole

	tuning Tuning
	clock  timeutil.Clock
	log    *logrus.Entry
}

// NewDevice creates a device for address. A nil clock means the real clock;
// a nil log discards output.
func NewDevice(address string, tuning Tuning, clock timeutil.Clock, log *logrus.Entry) *Device {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	d := &Device{
		Address: NormalizeAddress(address),
		zone:    config.DefaultZone,
		links:   NewLinkTable(),
		adverts: NewRing[AdvertSummary](tuning.HistorySize),
		tuning:  tuning,
		clock:   clock,
	}
	d.log = log.WithField("device", d.Address)
	d.makeNameLocked()
	return d
}

func (d *Device) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("%s [%s]", d.name, d.Address)
}

// Name returns the effective display name.
func (d *Device) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

// SetUserName sets (or with "" clears) the user-assigned name and refreshes
// the effective name.
func (d *Device) SetUserName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nameByUser = strings.TrimSpace(name)
	d.makeNameLocked()
}

// SetLocalName records a name learned outside of advertisements, such as a
// remote name request. An advertised name later replaces it.
func (d *Device) SetLocalName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if name = strings.TrimSpace(name); name != "" {
		d.localName = name
		d.makeNameLocked()
	}
}

// LocalName returns the advertised or resolved local name, if any.
func (d *Device) LocalName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.localName
}

// SetArea places the device in an area and floor and sets its zone.
func (d *Device) SetArea(area, floor, zone string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.areaName = area
	d.floorName = floor
	if zone == "" {
		zone = config.DefaultZone
	}
	d.zone = zone
}

// MakeName resolves and stores the effective name. A user-assigned name
// wins, then the local name, then the manufacturer with an address suffix,
// and finally a default derived from the address.
func (d *Device) MakeName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.makeNameLocked()
}

func (d *Device) makeNameLocked() string {
	switch {
	case d.nameByUser != "":
		d.name = d.nameByUser
	case d.localName != "":
		d.name = d.localName
	case d.manufacturer != "":
		d.name = d.manufacturer + " " + addressSuffix(d.Address)
	default:
		d.name = config.NamePrefix + strings.ReplaceAll(d.Address, ":", "")
	}
	return d.name
}

// addressSuffix returns the last two octets, e.g. "EE:FF".
func addressSuffix(addr string) string {
	if len(addr) < 5 {
		return strings.ToUpper(addr)
	}
	return strings.ToUpper(addr[len(addr)-5:])
}

// ProcessAdvertisement folds one advertisement heard by scanner into the
// device state. A missing or implausible RSSI skips the distance update but
// the name, manufacturer and history are still recorded. It returns whether
// a scanner link was recorded.
func (d *Device) ProcessAdvertisement(scanner *Device, adv Advertisement) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	ts := adv.Stamp
	if ts.IsZero() {
		ts = d.clock.Now()
	}
	if ts.After(d.lastSeen) {
		d.lastSeen = ts
	}

	if name := strings.TrimSpace(adv.LocalName); name != "" {
		d.localName = name
	}
	if mfr := manufacturerFromData(adv.ManufacturerData); mfr != "" {
		d.manufacturer = mfr
	}
	d.makeNameLocked()

	scannerID := scanner.Address
	d.adverts.Push(summarize(scannerID, adv, ts))

	rssi := float64(adv.RSSI)
	raw, ok := EstimateDistance(rssi, d.tuning.RefPower, d.tuning.Attenuation)
	if !ok {
		d.log.WithFields(logrus.Fields{
			"scanner": scannerID,
			"rssi":    adv.RSSI,
		}).Debug("Skipping distance update for advertisement without usable RSSI")
		return false
	}

	prev, hasPrev := d.links.Get(scannerID)
	smoothed := SmoothDistance(prev.Distance, raw, d.tuning.SmoothingAlpha, hasPrev)
	d.links.Record(scannerID, rssi, raw, smoothed, ts)
	return true
}

// Links returns a copy of the scanner link table.
func (d *Device) Links() map[string]ScannerLink {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.links.All()
}

// RecordLink writes a link directly, bypassing distance estimation. It is
// used when distances come from a source other than RSSI.
func (d *Device) RecordLink(scanner string, rssi, distance float64, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.links.Record(scanner, rssi, distance, distance, ts)
	if ts.After(d.lastSeen) {
		d.lastSeen = ts
	}
}

// PruneLinks drops links older than the freshness window.
func (d *Device) PruneLinks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.links.Prune(d.clock.Now(), d.tuning.MaxAge)
}

// Adverts returns the advertisement history, oldest first.
func (d *Device) Adverts() []AdvertSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.adverts.Values()
}

// LastSeen returns the arrival time of the newest advertisement.
func (d *Device) LastSeen() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen
}

// ClearPosition forgets the last computed position.
func (d *Device) ClearPosition() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.position = nil
}

// Position returns the last computed position.
func (d *Device) Position() (Point, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.position == nil {
		return Point{}, false
	}
	return *d.position, true
}

// Locate runs trilateration against the scanners in coords that have a
// fresh link to this device. On success the position is stored; on failure
// it is cleared and the reason returned.
func (d *Device) Locate(coords map[string]Point) (Point, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	scale := d.tuning.UnitsPerMeter
	if scale <= 0 {
		scale = 1
	}
	now := d.clock.Now()
	known := 0
	var anchors []Anchor
	for _, id := range d.links.Scanners() {
		pos, ok := coords[id]
		if !ok {
			continue
		}
		known++
		link, _ := d.links.Get(id)
		if now.Sub(link.LastUpdate) > d.tuning.MaxAge {
			continue
		}
		anchors = append(anchors, Anchor{
			Scanner:  id,
			Position: pos,
			Distance: link.Distance * scale,
		})
	}

	p, err := Trilaterate(anchors)
	if err != nil {
		d.position = nil
		if errors.Is(err, ErrInsufficientScanners) && known >= config.MinTriangulationScanners {
			err = errors.Wrapf(err, "%d of %d positioned scanners have stale distances", known-len(anchors), known)
		}
		return Point{}, err
	}
	d.position = &p
	return p, nil
}

// ComputePosition is Locate with the failure reported as a warning. Fewer
// than three fresh scanners and degenerate scanner geometry are ordinary
// outcomes, so they are only logged.
func (d *Device) ComputePosition(coords map[string]Point) (Point, bool) {
	p, err := d.Locate(coords)
	if err != nil {
		d.warnUnlocatable(err)
		return Point{}, false
	}
	return p, true
}

func (d *Device) warnUnlocatable(err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, ErrInsufficientScanners):
		msg = msgInsufficientScanners
	case errors.Is(err, ErrDegenerateGeometry):
		msg = msgDegenerateGeometry
	}
	d.log.WithField("reason", err.Error()).Warn(msg)
}

// ScannerInit marks the device as a receiver. Calling it again with a
// receiver of the same kind leaves the flags unchanged.
func (d *Device) ScannerInit(r Receiver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.role.init(r)
}

// ScannerUpdate refreshes the receiver's last-seen time, and its stamp table
// when remote. It does nothing for devices that are not scanners.
func (d *Device) ScannerUpdate(r Receiver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.role.update(r, d.clock.Now())
}

// RecordScannerStamp records when this scanner last saw peer.
func (d *Device) RecordScannerStamp(peer string, ts time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.role.recordStamp(peer, ts)
}

// ScannerStamp returns when this scanner last saw peer. Only remote scanners
// answer; the address match is case-insensitive.
func (d *Device) ScannerStamp(peer string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.role.stamp(peer)
}

// IsScanner reports whether the device is one of the receivers.
func (d *Device) IsScanner() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.role.enabled
}

// IsRemoteScanner reports whether the device is a receiver that forwards
// what it hears, as opposed to the local adapter.
func (d *Device) IsRemoteScanner() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.role.isRemote()
}

// ScannerLastSeen returns when the receiver last detected anything.
func (d *Device) ScannerLastSeen() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.role.lastSeen
}
