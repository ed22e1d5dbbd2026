package config

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Coord is a floor-plan coordinate. In JSON it is written as a two element
// array, [x, y].
type Coord struct {
	X float64
	Y float64
}

// UnmarshalJSON accepts [x, y] (extra elements are ignored).
func (c *Coord) UnmarshalJSON(data []byte) error {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "coordinate must be an array of numbers")
	}
	if len(raw) < 2 {
		return errors.Errorf("coordinate needs at least 2 values, got %d", len(raw))
	}
	c.X, c.Y = raw[0], raw[1]
	return nil
}

// MarshalJSON writes the coordinate as [x, y].
func (c Coord) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.X, c.Y})
}

// Options is the named-options set supplied by the configuration layer.
// Pointer fields are optional; the Get* methods fall back to defaults.
type Options struct {
	ScannerCoords       map[string]Coord  `json:"scanner_coords,omitempty"`
	DeviceCoords        map[string]Coord  `json:"device_coords,omitempty"`
	DeviceNames         map[string]string `json:"device_names,omitempty"` // user-assigned names
	EnableTriangulation *bool             `json:"enable_triangulation,omitempty"`
	FloorplanImage      string            `json:"floorplan_image,omitempty"`

	RefPower       *float64 `json:"ref_power,omitempty"`
	Attenuation    *float64 `json:"attenuation,omitempty"`
	SmoothingAlpha *float64 `json:"smoothing_alpha,omitempty"`
	MaxAge         *string  `json:"max_age,omitempty"` // duration string like "30s"
	HistorySize    *int     `json:"history_size,omitempty"`
	UnitsPerMeter  *float64 `json:"units_per_meter,omitempty"` // floor-plan scale
}

const maxOptionsFileSize = 1 * 1024 * 1024

// DefaultOptions returns an Options value with every optional field unset.
func DefaultOptions() *Options {
	return &Options{
		ScannerCoords: make(map[string]Coord),
		DeviceCoords:  make(map[string]Coord),
		DeviceNames:   make(map[string]string),
	}
}

// Load reads options from a JSON file. Fields omitted from the file keep
// their defaults, so partial files are fine.
func Load(path string) (*Options, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, errors.Errorf("options file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "stat options file")
	}
	if info.Size() > maxOptionsFileSize {
		return nil, errors.Errorf("options file too large: %d bytes (max %d)", info.Size(), maxOptionsFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "read options file")
	}

	opts := DefaultOptions()
	if err := json.Unmarshal(data, opts); err != nil {
		return nil, errors.Wrap(err, "parse options JSON")
	}
	opts.normalize()

	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}
	return opts, nil
}

// normalize lowercases address keys so lookups match device identities.
func (o *Options) normalize() {
	o.ScannerCoords = lowerKeys(o.ScannerCoords)
	o.DeviceCoords = lowerKeys(o.DeviceCoords)
	o.DeviceNames = lowerKeys(o.DeviceNames)
}

func lowerKeys[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Validate checks the options for values the core cannot work with.
func (o *Options) Validate() error {
	for id, c := range o.ScannerCoords {
		if !finite(c.X) || !finite(c.Y) {
			return errors.Errorf("scanner_coords[%s] is not finite", id)
		}
	}
	for id, c := range o.DeviceCoords {
		if !finite(c.X) || !finite(c.Y) {
			return errors.Errorf("device_coords[%s] is not finite", id)
		}
	}
	if o.Attenuation != nil && *o.Attenuation <= 0 {
		return errors.Errorf("attenuation must be positive, got %v", *o.Attenuation)
	}
	if o.SmoothingAlpha != nil && (*o.SmoothingAlpha <= 0 || *o.SmoothingAlpha > 1) {
		return errors.Errorf("smoothing_alpha must be in (0, 1], got %v", *o.SmoothingAlpha)
	}
	if o.MaxAge != nil {
		d, err := time.ParseDuration(*o.MaxAge)
		if err != nil {
			return errors.Wrap(err, "max_age")
		}
		if d <= 0 {
			return errors.Errorf("max_age must be positive, got %s", d)
		}
	}
	if o.UnitsPerMeter != nil && (*o.UnitsPerMeter <= 0 || !finite(*o.UnitsPerMeter)) {
		return errors.Errorf("units_per_meter must be positive, got %v", *o.UnitsPerMeter)
	}
	if o.HistorySize != nil && *o.HistorySize < 1 {
		return errors.Errorf("history_size must be at least 1, got %d", *o.HistorySize)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (o *Options) GetEnableTriangulation() bool {
	if o.EnableTriangulation == nil {
		return DefaultEnableTriangulation
	}
	return *o.EnableTriangulation
}

func (o *Options) GetRefPower() float64 {
	if o.RefPower == nil {
		return DefaultRefPower
	}
	return *o.RefPower
}

func (o *Options) GetAttenuation() float64 {
	if o.Attenuation == nil {
		return DefaultAttenuation
	}
	return *o.Attenuation
}

func (o *Options) GetSmoothingAlpha() float64 {
	if o.SmoothingAlpha == nil {
		return DefaultSmoothingAlpha
	}
	return *o.SmoothingAlpha
}

// GetMaxAge returns the freshness window. Validate has already rejected
// unparsable values, so a parse failure here falls back to the default.
func (o *Options) GetMaxAge() time.Duration {
	if o.MaxAge == nil {
		return DefaultMaxAge
	}
	d, err := time.ParseDuration(*o.MaxAge)
	if err != nil || d <= 0 {
		return DefaultMaxAge
	}
	return d
}

func (o *Options) GetHistorySize() int {
	if o.HistorySize == nil {
		return DefaultHistorySize
	}
	return *o.HistorySize
}

func (o *Options) GetUnitsPerMeter() float64 {
	if o.UnitsPerMeter == nil {
		return DefaultUnitsPerMeter
	}
	return *o.UnitsPerMeter
}

// SetEnableTriangulation overrides the triangulation toggle.
func (o *Options) SetEnableTriangulation(v bool) {
	o.EnableTriangulation = &v
}
