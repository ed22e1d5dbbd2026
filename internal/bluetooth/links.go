package bluetooth

import (
	"sort"
	"time"
)

// ScannerLink is what a device knows about one scanner that heard it.
// Keeping the four values in one record means they are always written
// together.
type ScannerLink struct {
	RSSI        float64
	Distance    float64 // smoothed
	DistanceRaw float64
	LastUpdate  time.Time
}

// LinkTable maps scanner identifier to the latest link record for a device.
// It is not safe for concurrent use; Device guards it with its own mutex.
type LinkTable struct {
	links map[string]ScannerLink
}

// NewLinkTable creates an empty table.
func NewLinkTable() *LinkTable {
	return &LinkTable{links: make(map[string]ScannerLink)}
}

// Record upserts the link for scanner.
func (t *LinkTable) Record(scanner string, rssi, raw, smoothed float64, ts time.Time) {
	t.links[scanner] = ScannerLink{
		RSSI:        rssi,
		Distance:    smoothed,
		DistanceRaw: raw,
		LastUpdate:  ts,
	}
}

// Get returns the link for scanner.
func (t *LinkTable) Get(scanner string) (ScannerLink, bool) {
	l, ok := t.links[scanner]
	return l, ok
}

// Prune removes links whose last update is older than maxAge.
// Returns the number of removed links.
func (t *LinkTable) Prune(now time.Time, maxAge time.Duration) int {
	count := 0
	for id, l := range t.links {
		if now.Sub(l.LastUpdate) > maxAge {
			delete(t.links, id)
			count++
		}
	}
	return count
}

// Fresh returns a copy of the links updated within maxAge of now, leaving
// the table untouched.
func (t *LinkTable) Fresh(now time.Time, maxAge time.Duration) map[string]ScannerLink {
	out := make(map[string]ScannerLink, len(t.links))
	for id, l := range t.links {
		if now.Sub(l.LastUpdate) <= maxAge {
			out[id] = l
		}
	}
	return out
}

// All returns a copy of every link.
func (t *LinkTable) All() map[string]ScannerLink {
	out := make(map[string]ScannerLink, len(t.links))
	for id, l := range t.links {
		out[id] = l
	}
	return out
}

// Scanners returns the scanner identifiers in sorted order.
func (t *LinkTable) Scanners() []string {
	ids := make([]string, 0, len(t.links))
	for id := range t.links {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of scanners in the table.
func (t *LinkTable) Len() int {
	return len(t.links)
}

// Strongest returns the link with the highest RSSI, if any.
func (t *LinkTable) Strongest() (string, ScannerLink, bool) {
	var (
		bestID string
		best   ScannerLink
		found  bool
	)
	for _, id := range t.Scanners() {
		l := t.links[id]
		if !found || l.RSSI > best.RSSI {
			bestID, best, found = id, l, true
		}
	}
	return bestID, best, found
}
