package ui

import (
	"math"
	"strings"
	"testing"
	"time"

	"ble-locate.klederson.com/internal/bluetooth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func snapshots() []bluetooth.DeviceSnapshot {
	pos := bluetooth.Point{X: 120, Y: 80}
	return []bluetooth.DeviceSnapshot{
		{
			Address:            "aa:bb:cc:dd:ee:01",
			Name:               "Keys",
			Zone:               "not_home",
			ScannerRSSI:        map[string]float64{"s1": -60, "s2": -72},
			ScannerDistance:    map[string]float64{"s1": 2.1, "s2": 5.4},
			ScannerDistanceRaw: map[string]float64{"s1": 2.0, "s2": 5.9},
			ScannerLastUpdate:  map[string]float64{"s1": 1, "s2": 3},
			Position:           &pos,
			RSSI:               -60,
			NearestScanner:     "s1",
			Distance:           2.1,
			LastSeen:           now.Add(-5 * time.Second),
			Adverts: []bluetooth.AdvertSummary{
				{Scanner: "s1", RSSI: -62}, {Scanner: "s1", RSSI: -58}, {Scanner: "s2", RSSI: -72},
			},
		},
		{
			Address:         "11:22:33:44:55:66",
			Name:            "locate_scanner_5566",
			Zone:            "not_home",
			IsScanner:       true,
			IsRemoteScanner: true,
			RSSI:            math.Inf(-1),
		},
	}
}

func TestFilter(t *testing.T) {
	devs := snapshots()

	assert.Len(t, Filter(devs, FilterState{}), 2)
	assert.Len(t, Filter(devs, FilterState{HideScanners: true}), 1)

	got := Filter(devs, FilterState{Search: "KEY"})
	require.Len(t, got, 1)
	assert.Equal(t, "Keys", got[0].Name)

	got = Filter(devs, FilterState{Search: "55:66"})
	require.Len(t, got, 1)
	assert.True(t, got[0].IsScanner)
}

func TestDeviceTags(t *testing.T) {
	devs := snapshots()
	tag, _ := deviceTag(devs[0])
	assert.Equal(t, "[LOC]", tag)
	tag, _ = deviceTag(devs[1])
	assert.Equal(t, "[RMT]", tag)

	devs[1].IsRemoteScanner = false
	tag, _ = deviceTag(devs[1])
	assert.Equal(t, "[SCN]", tag)

	tag, _ = deviceTag(bluetooth.DeviceSnapshot{})
	assert.Equal(t, "[BLE]", tag)
}

func TestRenderDeviceListHeight(t *testing.T) {
	for _, h := range []int{6, 12, 30} {
		out := RenderDeviceList(snapshots(), 50, h, 1, FilterState{Search: "x", Active: true})
		assert.Len(t, strings.Split(out, "\n"), h, "height %d", h)
	}

	out := RenderDeviceList(snapshots(), 50, 20, 0, FilterState{})
	assert.Contains(t, out, "DEVICES [2]")
	assert.Contains(t, out, "Keys")
	assert.Contains(t, out, "--dBm")

	empty := RenderDeviceList(nil, 50, 20, 0, FilterState{})
	assert.Contains(t, empty, "No devices")
}

func TestRenderDetailPanel(t *testing.T) {
	out := RenderDetailPanel(snapshots()[0], 70, 40, now)
	for _, want := range []string{"aa:bb:cc:dd:ee:01", "(120.0, 80.0)", "5s ago", "RSSI History", "-60dBm"} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "s1  "), strings.Index(out, "s2  "), "strongest scanner first")

	scanner := RenderDetailPanel(snapshots()[1], 70, 30, now)
	assert.Contains(t, scanner, "remote scanner")
	assert.Contains(t, scanner, "none")
	assert.Contains(t, scanner, "never")
}

func TestRenderSparkline(t *testing.T) {
	assert.Equal(t, "", renderSparkline(nil, 10))
	assert.Equal(t, "_^", renderSparkline([]float64{-80, -40}, 10))
	assert.Equal(t, "~^", renderSparkline([]float64{-80, -50, -40}, 2))
	assert.Equal(t, "___", renderSparkline([]float64{-70, -70, -70}, 10))
}

func TestFormatLastSeen(t *testing.T) {
	assert.Equal(t, "never", formatLastSeen(time.Time{}, now))
	assert.Equal(t, "now", formatLastSeen(now, now))
	assert.Equal(t, "42s ago", formatLastSeen(now.Add(-42*time.Second), now))
	assert.Equal(t, "3m ago", formatLastSeen(now.Add(-3*time.Minute), now))
}

func TestBars(t *testing.T) {
	menu := RenderMenuBar(120, "", true, true)
	assert.Contains(t, menu, "DEMO")
	assert.Contains(t, menu, "TRI:ON")

	menu = RenderMenuBar(120, "hci0", false, false)
	assert.Contains(t, menu, "Adapter: hci0")
	assert.Contains(t, menu, "PAUSED")

	status := RenderStatusBar(120, true, Counts{Total: 7, Scanners: 3, Remote: 1, Located: 2}, 18, "")
	assert.Contains(t, status, "Devices: 7")
	assert.Contains(t, status, "Scanners: 3 (1 remote)")
	assert.Contains(t, status, "Located: 2")

	status = RenderStatusBar(120, true, Counts{}, 1, "scan failed")
	assert.Contains(t, status, "scan failed")
	assert.NotContains(t, status, "Devices:")
}
