package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOptions(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, DefaultEnableTriangulation, opts.GetEnableTriangulation())
	assert.Equal(t, DefaultRefPower, opts.GetRefPower())
	assert.Equal(t, DefaultAttenuation, opts.GetAttenuation())
	assert.Equal(t, DefaultSmoothingAlpha, opts.GetSmoothingAlpha())
	assert.Equal(t, DefaultMaxAge, opts.GetMaxAge())
	assert.Equal(t, DefaultHistorySize, opts.GetHistorySize())
	assert.Equal(t, DefaultUnitsPerMeter, opts.GetUnitsPerMeter())
	assert.Empty(t, opts.ScannerCoords)
}

func TestLoad(t *testing.T) {
	path := writeOptions(t, "options.json", `{
		"scanner_coords": {"AA:BB:CC:00:00:01": [10, 20], "s2": [30.5, 40, 99]},
		"device_coords": {"kitchen-tag": [1, 2]},
		"device_names": {"AA:BB:CC:DD:EE:FF": "Keys"},
		"enable_triangulation": true,
		"ref_power": -60,
		"max_age": "45s",
		"history_size": 4,
		"units_per_meter": 20
	}`)

	opts, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Coord{X: 10, Y: 20}, opts.ScannerCoords["aa:bb:cc:00:00:01"])
	assert.Equal(t, Coord{X: 30.5, Y: 40}, opts.ScannerCoords["s2"])
	assert.Equal(t, Coord{X: 1, Y: 2}, opts.DeviceCoords["kitchen-tag"])
	assert.Equal(t, "Keys", opts.DeviceNames["aa:bb:cc:dd:ee:ff"])
	assert.True(t, opts.GetEnableTriangulation())
	assert.Equal(t, -60.0, opts.GetRefPower())
	assert.Equal(t, DefaultAttenuation, opts.GetAttenuation())
	assert.Equal(t, 45*time.Second, opts.GetMaxAge())
	assert.Equal(t, 4, opts.GetHistorySize())
	assert.Equal(t, 20.0, opts.GetUnitsPerMeter())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"wrong extension", "options.yaml", `{}`, "must have .json extension"},
		{"bad json", "options.json", `{`, "parse options JSON"},
		{"short coordinate", "options.json", `{"scanner_coords": {"s1": [1]}}`, "at least 2 values"},
		{"zero attenuation", "options.json", `{"attenuation": 0}`, "attenuation must be positive"},
		{"alpha out of range", "options.json", `{"smoothing_alpha": 1.5}`, "smoothing_alpha"},
		{"bad duration", "options.json", `{"max_age": "soon"}`, "max_age"},
		{"negative duration", "options.json", `{"max_age": "-1s"}`, "max_age must be positive"},
		{"empty history", "options.json", `{"history_size": 0}`, "history_size"},
		{"zero scale", "options.json", `{"units_per_meter": 0}`, "units_per_meter must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeOptions(t, tt.file, tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat options file")
}

func TestCoordRoundTrip(t *testing.T) {
	b, err := Coord{X: 1.5, Y: -2}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5, -2]`, string(b))
}

func TestNewLogger(t *testing.T) {
	t.Run("discard without path", func(t *testing.T) {
		logger, closeFn, err := NewLogger("warning", "")
		require.NoError(t, err)
		defer closeFn()
		assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	})

	t.Run("writes to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "locate.log")
		logger, closeFn, err := NewLogger("info", path)
		require.NoError(t, err)
		logger.WithField("component", "test").Info("hello")
		require.NoError(t, closeFn())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "hello")
		assert.Contains(t, string(data), "component=test")
	})

	t.Run("bad level", func(t *testing.T) {
		_, _, err := NewLogger("loud", "")
		require.Error(t, err)
	})
}
