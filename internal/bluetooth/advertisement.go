package bluetooth

import (
	"sort"
	"strings"
	"time"
)

// Advertisement is a single observation of a device by a scanner.
type Advertisement struct {
	Address          string
	RSSI             int16 // dBm; zero means missing
	TxPower          *int8 // reported transmit power, if advertised
	LocalName        string
	ManufacturerData map[uint16][]byte
	ServiceUUIDs     []string
	ServiceData      map[string][]byte
	Stamp            time.Time // arrival time; zero means "now"
}

// ObservationMsg is sent via tea.Program.Send when a scanner hears an
// advertisement.
type ObservationMsg struct {
	Scanner       string
	Advertisement Advertisement
}

// AdvertSummary is the bounded-history record kept per device.
type AdvertSummary struct {
	Scanner         string    `json:"scanner"`
	RSSI            int16     `json:"rssi"`
	TxPower         *int8     `json:"tx_power,omitempty"`
	LocalName       string    `json:"local_name,omitempty"`
	ManufacturerIDs []uint16  `json:"manufacturer_ids,omitempty"`
	ServiceUUIDs    []string  `json:"service_uuids,omitempty"`
	Stamp           time.Time `json:"-"`
}

func summarize(scanner string, adv Advertisement, ts time.Time) AdvertSummary {
	s := AdvertSummary{
		Scanner:         scanner,
		RSSI:            adv.RSSI,
		TxPower:         adv.TxPower,
		LocalName:       adv.LocalName,
		ManufacturerIDs: manufacturerIDs(adv.ManufacturerData),
		Stamp:           ts,
	}
	s.ServiceUUIDs = serviceUUIDs(adv)
	return s
}

// manufacturerIDs returns the company IDs in ascending order.
func manufacturerIDs(m map[uint16][]byte) []uint16 {
	if len(m) == 0 {
		return nil
	}
	ids := make([]uint16, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// serviceUUIDs merges advertised service UUIDs with service-data UUIDs,
// lowercased and deduplicated.
func serviceUUIDs(adv Advertisement) []string {
	seen := make(map[string]bool, len(adv.ServiceUUIDs)+len(adv.ServiceData))
	var out []string
	add := func(u string) {
		u = strings.ToLower(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	for _, u := range adv.ServiceUUIDs {
		add(u)
	}
	for u := range adv.ServiceData {
		add(u)
	}
	sort.Strings(out)
	return out
}
