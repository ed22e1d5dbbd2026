package bluetooth

import (
	"math"
	"time"
)

// DeviceSnapshot is the serializable view of a device handed to renderers,
// publishers and diagnostics. The JSON field names are consumed externally
// and must stay stable.
type DeviceSnapshot struct {
	Address            string             `json:"address"`
	Name               string             `json:"name"`
	NameByUser         string             `json:"name_by_user,omitempty"`
	LocalName          string             `json:"local_name,omitempty"`
	Manufacturer       string             `json:"manufacturer,omitempty"`
	Zone               string             `json:"zone"`
	AreaName           string             `json:"area_name,omitempty"`
	FloorName          string             `json:"floor_name,omitempty"`
	ScannerRSSI        map[string]float64 `json:"scanner_rssi"`
	ScannerDistance    map[string]float64 `json:"scanner_distance"`
	ScannerDistanceRaw map[string]float64 `json:"scanner_distance_raw"`
	ScannerLastUpdate  map[string]float64 `json:"scanner_last_update"` // seconds ago
	IsScanner          bool               `json:"is_scanner"`
	IsRemoteScanner    bool               `json:"is_remote_scanner"`
	Position           *Point             `json:"position,omitempty"`
	Adverts            []AdvertSummary    `json:"adverts"`

	// Display helpers, not serialized.
	RSSI           float64   `json:"-"` // strongest RSSI across scanners
	NearestScanner string    `json:"-"` // scanner reporting that RSSI
	Distance       float64   `json:"-"` // smoothed distance to that scanner
	LastSeen       time.Time `json:"-"`
}

// Snapshot returns a consistent copy of the device state.
func (d *Device) Snapshot() DeviceSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	n := d.links.Len()
	s := DeviceSnapshot{
		Address:            d.Address,
		Name:               d.name,
		NameByUser:         d.nameByUser,
		LocalName:          d.localName,
		Manufacturer:       d.manufacturer,
		Zone:               d.zone,
		AreaName:           d.areaName,
		FloorName:          d.floorName,
		ScannerRSSI:        make(map[string]float64, n),
		ScannerDistance:    make(map[string]float64, n),
		ScannerDistanceRaw: make(map[string]float64, n),
		ScannerLastUpdate:  make(map[string]float64, n),
		IsScanner:          d.role.enabled,
		IsRemoteScanner:    d.role.isRemote(),
		Adverts:            d.adverts.Values(),
		RSSI:               math.Inf(-1),
		LastSeen:           d.lastSeen,
	}
	for id, l := range d.links.All() {
		s.ScannerRSSI[id] = l.RSSI
		s.ScannerDistance[id] = l.Distance
		s.ScannerDistanceRaw[id] = l.DistanceRaw
		s.ScannerLastUpdate[id] = now.Sub(l.LastUpdate).Seconds()
	}
	if id, l, ok := d.links.Strongest(); ok {
		s.RSSI = l.RSSI
		s.NearestScanner = id
		s.Distance = l.Distance
	}
	if d.position != nil {
		p := *d.position
		s.Position = &p
	}
	if s.Adverts == nil {
		s.Adverts = []AdvertSummary{}
	}
	return s
}

// DisplayName returns the name or "[unnamed]" if empty.
func (s DeviceSnapshot) DisplayName() string {
	if s.Name == "" {
		return "[unnamed]"
	}
	return s.Name
}
