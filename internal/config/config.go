package config

import "time"

const (
	// RSSI to distance estimation
	DefaultRefPower       = -55.0 // RSSI at 1 unit (dBm)
	DefaultAttenuation    = 3.0   // Path loss exponent (N)
	DefaultSmoothingAlpha = 0.3   // EMA smoothing factor (30% new, 70% old)
	MinDistance           = 0.1   // Distance floor for very strong signals

	// Trilateration
	DefaultEnableTriangulation = false
	DefaultMaxAge              = 30 * time.Second // Links older than this are ignored by the solver
	MinTriangulationScanners   = 3
	DefaultUnitsPerMeter       = 1.0 // Floor-plan units per metre of estimated distance

	// Device state
	DefaultHistorySize = 10         // Advertisement summaries kept per device
	DefaultZone        = "not_home" // Zone for devices that are not placed anywhere
	NamePrefix         = "locate_"  // Prefix for derived default names

	// Display
	PlanAspectRatio = 0.5                     // Terminal char aspect correction (chars are ~2:1 tall)
	TargetFPS       = 10                      // Target frames per second
	PulsePeriod     = 1200 * time.Millisecond // Blink period of the selected marker
	MaxLabelLen     = 10                      // Marker labels on the plan are cut to this

	// Device management
	DeviceTimeout    = 5 * time.Minute // Evict devices not seen for this long
	EvictInterval    = 5 * time.Second // How often to run eviction
	PositionInterval = time.Second     // How often positions are recomputed

	// Demo mode
	DemoDeviceMin = 4 // Minimum simulated devices
	DemoDeviceMax = 7 // Maximum simulated devices

	// App
	AppName    = "BLE-LOCATE"
	AppVersion = "1.0"
)
