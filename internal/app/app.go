package app

import (
	"time"

	"ble-locate.klederson.com/internal/bluetooth"
	"ble-locate.klederson.com/internal/config"
	"ble-locate.klederson.com/internal/floorplan"
	"ble-locate.klederson.com/internal/plan"
	"ble-locate.klederson.com/internal/telemetry"
	"ble-locate.klederson.com/internal/timeutil"
	"ble-locate.klederson.com/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config carries everything main.go wires into the model. Metrics,
// Publisher and Clock are optional.
type Config struct {
	Demo         bool
	Adapter      string
	Options      *config.Options
	FloorplanOut string
	Metrics      *telemetry.Metrics
	Publisher    *telemetry.Publisher
	Clock        timeutil.Clock
	Log          *logrus.Logger
}

// shared holds state shared between the Bubble Tea model copies and main.go.
// Because Bubble Tea uses value receivers, pointer fields ensure all copies
// see the same underlying data.
type shared struct {
	registry      *bluetooth.Registry
	opts          *config.Options
	coords        map[string]bluetooth.Point // scanner positions
	static        map[string]bluetooth.Point // configured device positions
	unitsPerMeter float64
	pulse         *plan.Pulse
	clock         timeutil.Clock
	log           *logrus.Entry

	metrics      *telemetry.Metrics
	publisher    *telemetry.Publisher
	floorplan    *floorplan.Renderer
	floorplanOut string

	receivers   []bluetooth.Receiver
	bleScanner  *bluetooth.BLEScanner
	mockScanner *bluetooth.MockScanner
	resolver    *bluetooth.NameResolver
}

// AppModel is the root Bubble Tea model.
type AppModel struct {
	width  int
	height int

	scanning      bool
	demoMode      bool
	adapter       string
	triangulation bool

	cursor   int
	filter   ui.FilterState
	detail   bool
	selected string // address shown in the detail panel
	errMsg   string

	shared *shared

	// Cached per frame
	devices   []bluetooth.DeviceSnapshot
	positions map[string]bluetooth.Point
}

// New creates the model. In demo mode the simulated scanner layout replaces
// the configured scanner coordinates and triangulation is switched on.
func New(cfg Config) (AppModel, error) {
	opts := cfg.Options
	if opts == nil {
		opts = config.DefaultOptions()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	logger := cfg.Log
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("component", "app")

	tuning := bluetooth.TuningFromOptions(opts)
	coords := bluetooth.Coords(opts.ScannerCoords)

	var mock *bluetooth.MockScanner
	if cfg.Demo {
		mock = bluetooth.NewMockScanner(opts.ScannerCoords, tuning, clock.Now().UnixNano())
		coords = bluetooth.Coords(mock.Layout())
		if opts.UnitsPerMeter == nil {
			tuning.UnitsPerMeter = mock.UnitsPerMeter()
		}
		opts.SetEnableTriangulation(true)
	}

	renderer, err := floorplan.NewRenderer(opts.FloorplanImage)
	if err != nil {
		return AppModel{}, errors.Wrap(err, "floor plan")
	}

	registry := bluetooth.NewRegistry(tuning, clock, logger.WithField("component", "registry"))
	registry.SetUserNames(opts.DeviceNames)
	if cfg.Metrics != nil {
		registry.SetRecorder(cfg.Metrics)
	}

	return AppModel{
		scanning:      true,
		demoMode:      cfg.Demo,
		adapter:       cfg.Adapter,
		triangulation: opts.GetEnableTriangulation(),
		shared: &shared{
			registry:      registry,
			opts:          opts,
			coords:        coords,
			static:        bluetooth.Coords(opts.DeviceCoords),
			unitsPerMeter: tuning.UnitsPerMeter,
			pulse:         plan.NewPulse(clock.Now()),
			clock:         clock,
			log:           log,
			metrics:       cfg.Metrics,
			publisher:     cfg.Publisher,
			floorplan:     renderer,
			floorplanOut:  cfg.FloorplanOut,
			mockScanner:   mock,
		},
	}, nil
}

// Registry returns the device registry the model feeds.
func (m AppModel) Registry() *bluetooth.Registry {
	return m.shared.registry
}

func (m AppModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		evictCmd(),
		positionCmd(),
	)
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TickMsg:
		m.shared.pulse.Update(time.Time(msg))
		m.devices = m.shared.registry.Snapshot()
		m.clampCursor()
		return m, tickCmd()

	case PositionMsg:
		m.locate(time.Time(msg))
		return m, positionCmd()

	case EvictMsg:
		m.housekeeping()
		return m, evictCmd()

	case bluetooth.ObservationMsg:
		if m.scanning {
			d := m.shared.registry.Process(msg.Scanner, msg.Advertisement)
			if r := m.shared.resolver; r != nil && d.LocalName() == "" && r.ShouldResolve(d.Address) {
				r.RequestResolve(d.Address)
			}
		}
		return m, nil

	case bluetooth.NameResolvedMsg:
		if d, ok := m.shared.registry.Lookup(msg.Address); ok {
			d.SetLocalName(msg.Name)
		}
		return m, nil

	case ScanErrorMsg:
		if msg.Err != nil {
			m.errMsg = msg.Err.Error()
			m.shared.log.WithError(msg.Err).Error("Scanner error")
		}
		return m, nil
	}

	return m, nil
}

// locate runs one trilateration pass and publishes the result.
func (m *AppModel) locate(at time.Time) {
	if !m.triangulation {
		m.positions = nil
		m.shared.registry.ClearPositions()
		return
	}
	s := m.shared
	m.positions = s.registry.ComputePositions(s.coords)
	if s.publisher != nil {
		if err := s.publisher.PublishPositions(m.positions, at); err != nil {
			s.log.WithError(err).Warn("Failed to publish positions")
		}
	}
}

// housekeeping evicts stale devices, refreshes receiver state and writes
// the periodic outputs.
func (m *AppModel) housekeeping() {
	s := m.shared
	if n := s.registry.Evict(config.DeviceTimeout); n > 0 {
		s.log.WithField("count", n).Info("Evicted devices")
	}
	for _, r := range s.receivers {
		s.registry.UpdateScanner(r)
	}

	if s.metrics != nil {
		s.metrics.ScannersSeen(m.scannerKinds())
	}
	if s.publisher != nil {
		if err := s.publisher.PublishSnapshots(s.registry.Snapshot()); err != nil {
			s.log.WithError(err).Warn("Failed to publish device snapshots")
		}
	}
	if s.floorplanOut != "" {
		if err := s.floorplan.Save(s.floorplanOut, m.scene()); err != nil {
			s.log.WithError(err).Warn("Failed to save floor plan")
		}
	}
}

func (m AppModel) scannerKinds() (int, int) {
	scanners, remote := m.shared.registry.CountScanners()
	return scanners - remote, remote
}

// scene collects what the floor-plan image shows.
func (m AppModel) scene() floorplan.Scene {
	s := m.shared
	names := make(map[string]string, len(m.positions))
	for addr := range m.positions {
		if d, ok := s.registry.Lookup(addr); ok {
			names[addr] = d.Name()
		}
	}
	return floorplan.Scene{
		Scanners:    s.coords,
		Static:      s.static,
		Located:     m.positions,
		Names:       names,
		ShowLocated: m.triangulation,
	}
}

// visible returns the device list after filtering.
func (m AppModel) visible() []bluetooth.DeviceSnapshot {
	return ui.Filter(m.devices, m.filter)
}

func (m *AppModel) clampCursor() {
	n := len(m.visible())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filter.Active {
		return m.handleSearchKey(msg), nil
	}

	switch msg.String() {
	case "q", "Q", "ctrl+c":
		m.stopScanners()
		return m, tea.Quit

	case "s", "S":
		m.scanning = true

	case "p", "P":
		m.scanning = false

	case "t", "T":
		m.triangulation = !m.triangulation
		m.shared.opts.SetEnableTriangulation(m.triangulation)
		if !m.triangulation {
			m.positions = nil
			m.shared.registry.ClearPositions()
		}

	case "h", "H":
		m.filter.HideScanners = !m.filter.HideScanners
		m.clampCursor()

	case "/":
		m.filter.Active = true

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.visible())-1 {
			m.cursor++
		}

	case "enter":
		if devs := m.visible(); m.cursor < len(devs) {
			m.selected = devs[m.cursor].Address
			m.detail = true
		}

	case "esc":
		if m.detail {
			m.detail = false
		} else {
			m.filter.Search = ""
			m.clampCursor()
		}
	}

	return m, nil
}

func (m AppModel) handleSearchKey(msg tea.KeyMsg) AppModel {
	switch msg.Type {
	case tea.KeyEsc:
		m.filter.Active = false
		m.filter.Search = ""
	case tea.KeyEnter:
		m.filter.Active = false
	case tea.KeyBackspace:
		if n := len(m.filter.Search); n > 0 {
			m.filter.Search = m.filter.Search[:n-1]
		}
	case tea.KeyRunes, tea.KeySpace:
		m.filter.Search += string(msg.Runes)
	}
	m.cursor = 0
	return m
}

// selectedDevice returns the snapshot shown in the detail panel.
func (m AppModel) selectedDevice() (bluetooth.DeviceSnapshot, bool) {
	for _, d := range m.devices {
		if d.Address == m.selected {
			return d, true
		}
	}
	return bluetooth.DeviceSnapshot{}, false
}

// StartScanners initializes and starts scanners. Must be called before p.Run().
func (m *AppModel) StartScanners(p *tea.Program) error {
	s := m.shared
	if s.mockScanner != nil {
		m.attachReceivers(s.mockScanner.Receivers()...)
		return s.mockScanner.Start(p)
	}

	s.bleScanner = bluetooth.NewBLEScanner(m.adapter, s.log)
	if err := s.bleScanner.Start(p); err != nil {
		return err
	}
	m.attachReceivers(s.bleScanner.Receiver())

	s.resolver = bluetooth.NewNameResolver(nil, s.log)
	s.resolver.Start(p)
	return nil
}

// attachReceivers registers receivers with the registry so their devices
// take the scanner role.
func (m *AppModel) attachReceivers(rcvs ...bluetooth.Receiver) {
	for _, r := range rcvs {
		m.shared.registry.InitScanner(r)
		m.shared.receivers = append(m.shared.receivers, r)
	}
}

func (m *AppModel) stopScanners() {
	s := m.shared
	if s.mockScanner != nil {
		s.mockScanner.Stop()
	}
	if s.bleScanner != nil {
		s.bleScanner.Stop()
	}
	if s.resolver != nil {
		s.resolver.Stop()
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(config.TargetFPS), func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func evictCmd() tea.Cmd {
	return tea.Tick(config.EvictInterval, func(t time.Time) tea.Msg {
		return EvictMsg(t)
	})
}

func positionCmd() tea.Cmd {
	return tea.Tick(config.PositionInterval, func(t time.Time) tea.Msg {
		return PositionMsg(t)
	})
}
