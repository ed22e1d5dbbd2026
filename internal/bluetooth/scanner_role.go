package bluetooth

import (
	"strings"
	"time"
)

// ReceiverKind tells a locally attached receiver apart from a remote
// (relay-type) one.
type ReceiverKind int

const (
	ReceiverLocal ReceiverKind = iota
	ReceiverRemote
)

func (k ReceiverKind) String() string {
	if k == ReceiverRemote {
		return "remote"
	}
	return "local"
}

// Receiver is the handle of a radio receiver that reports advertisements.
type Receiver interface {
	// Source identifies the receiver; it is also the address of the device
	// that represents it.
	Source() string
	// TimeSinceLastDetection is how long ago the receiver last heard anything.
	TimeSinceLastDetection() time.Duration
	Kind() ReceiverKind
	// Stamps returns peer address -> last time the receiver saw that peer.
	// Local receivers may return nil.
	Stamps() map[string]time.Time
}

// scannerRole is the state a device carries when it is itself a receiver.
type scannerRole struct {
	receiver Receiver
	kind     ReceiverKind
	enabled  bool
	lastSeen time.Time
	stamps   map[string]time.Time // lowercased peer address; remote only
}

func (r *scannerRole) init(rcv Receiver) {
	r.receiver = rcv
	r.kind = rcv.Kind()
	r.enabled = true
	if r.stamps == nil {
		r.stamps = make(map[string]time.Time)
	}
}

func (r *scannerRole) isRemote() bool {
	return r.enabled && r.kind == ReceiverRemote
}

func (r *scannerRole) update(rcv Receiver, now time.Time) {
	if !r.enabled {
		return
	}
	r.lastSeen = now.Add(-rcv.TimeSinceLastDetection())
	if r.isRemote() {
		for addr, ts := range rcv.Stamps() {
			r.stamps[strings.ToLower(addr)] = ts
		}
	}
}

func (r *scannerRole) recordStamp(peer string, ts time.Time) {
	if r.stamps == nil {
		r.stamps = make(map[string]time.Time)
	}
	r.stamps[strings.ToLower(peer)] = ts
}

// stamp only answers for remote scanners; a local scanner never exposes its
// stamp table even when it holds entries.
func (r *scannerRole) stamp(peer string) (time.Time, bool) {
	if !r.isRemote() {
		return time.Time{}, false
	}
	ts, ok := r.stamps[strings.ToLower(peer)]
	return ts, ok
}
