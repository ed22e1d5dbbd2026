package bluetooth

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// LocalReceiver is the Receiver handle for the adapter attached to this host.
type LocalReceiver struct {
	source string

	mu           sync.Mutex
	lastDetected time.Time
}

// NewLocalReceiver creates a handle identified by source.
func NewLocalReceiver(source string) *LocalReceiver {
	return &LocalReceiver{source: NormalizeAddress(source)}
}

func (r *LocalReceiver) Source() string     { return r.source }
func (r *LocalReceiver) Kind() ReceiverKind { return ReceiverLocal }

func (r *LocalReceiver) Stamps() map[string]time.Time { return nil }

// TimeSinceLastDetection returns how long ago the adapter last heard a
// device, or zero if it has not heard one yet.
func (r *LocalReceiver) TimeSinceLastDetection() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastDetected.IsZero() {
		return 0
	}
	return time.Since(r.lastDetected)
}

func (r *LocalReceiver) detected(t time.Time) {
	r.mu.Lock()
	r.lastDetected = t
	r.mu.Unlock()
}

// BLEScanner handles Bluetooth Low Energy scanning on the local adapter.
type BLEScanner struct {
	adapter  *bluetooth.Adapter
	receiver *LocalReceiver
	program  *tea.Program
	log      *logrus.Entry

	mu      sync.Mutex
	running bool
}

// NewBLEScanner creates a scanner on the default adapter. The adapter name
// is only used as the receiver identity when the adapter address cannot be
// read.
func NewBLEScanner(adapterName string, log *logrus.Entry) *BLEScanner {
	return &BLEScanner{
		adapter:  bluetooth.DefaultAdapter,
		receiver: NewLocalReceiver(adapterName),
		log:      log.WithField("component", "ble-scanner"),
	}
}

// Receiver returns the handle for this scanner.
func (s *BLEScanner) Receiver() *LocalReceiver {
	return s.receiver
}

// Start enables the adapter and begins scanning in a goroutine. Every
// advertisement is sent as an ObservationMsg via program.Send().
func (s *BLEScanner) Start(p *tea.Program) error {
	s.program = p

	if err := s.adapter.Enable(); err != nil {
		return errors.Wrap(err, "failed to enable BLE adapter (try running with sudo or setcap cap_net_admin+ep)")
	}
	if mac, err := s.adapter.Address(); err == nil {
		s.receiver = NewLocalReceiver(mac.String())
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.log.WithField("receiver", s.receiver.Source()).Info("BLE scan started")

	go func() {
		err := s.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !s.isRunning() {
				return
			}
			now := time.Now()
			s.receiver.detected(now)

			msg := ObservationMsg{
				Scanner:       s.receiver.Source(),
				Advertisement: advertisementFromScan(result, now),
			}
			if s.program != nil {
				s.program.Send(msg)
			}
		})
		if err != nil {
			s.log.WithError(err).Error("BLE scan stopped")
		}
	}()

	return nil
}

func advertisementFromScan(result bluetooth.ScanResult, now time.Time) Advertisement {
	adv := Advertisement{
		Address:   result.Address.String(),
		RSSI:      result.RSSI,
		LocalName: strings.TrimSpace(result.LocalName()),
		Stamp:     now,
	}
	if mfrs := result.ManufacturerData(); len(mfrs) > 0 {
		adv.ManufacturerData = make(map[uint16][]byte, len(mfrs))
		for _, m := range mfrs {
			adv.ManufacturerData[m.CompanyID] = m.Data
		}
	}
	if sds := result.ServiceData(); len(sds) > 0 {
		adv.ServiceData = make(map[string][]byte, len(sds))
		for _, sd := range sds {
			adv.ServiceData[sd.UUID.String()] = sd.Data
		}
	}
	for _, u := range result.ServiceUUIDs() {
		adv.ServiceUUIDs = append(adv.ServiceUUIDs, u.String())
	}
	adv.TxPower = txPowerLevel(result.Bytes())
	return adv
}

// adTypeTxPower is the "Tx Power Level" advertising data type.
const adTypeTxPower = 0x0a

// txPowerLevel finds the tx power field in a raw advertising payload. BlueZ
// does not hand out raw payloads, so on Linux this is always nil.
func txPowerLevel(raw []byte) *int8 {
	for i := 0; i+1 < len(raw); {
		n := int(raw[i])
		if n == 0 || i+1+n > len(raw) {
			return nil
		}
		if raw[i+1] == adTypeTxPower && n == 2 {
			v := int8(raw[i+2])
			return &v
		}
		i += 1 + n
	}
	return nil
}

func (s *BLEScanner) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop halts the BLE scanner.
func (s *BLEScanner) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	_ = s.adapter.StopScan()
}
