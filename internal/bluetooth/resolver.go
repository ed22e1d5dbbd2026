package bluetooth

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NameResolvedMsg is sent when a remote name request returns a name.
type NameResolvedMsg struct {
	Address string
	Name    string
}

// LookupFunc asks a device for its name.
type LookupFunc func(ctx context.Context, address string) (string, error)

// NameResolver tries to resolve names for devices that never advertise one.
// By default it uses `hcitool name`, which sends a remote name request.
type NameResolver struct {
	program *tea.Program
	lookup  LookupFunc
	pause   time.Duration
	log     *logrus.Entry

	mu       sync.Mutex
	tried    map[string]int // address -> attempt count
	resolved map[string]bool
	stop     chan struct{}
	stopped  bool
}

const (
	maxAttempts    = 2
	resolveTimeout = 4 * time.Second
	resolvePause   = 3 * time.Second
)

// NewNameResolver creates a resolver. A nil lookup uses hcitool.
func NewNameResolver(lookup LookupFunc, log *logrus.Entry) *NameResolver {
	if lookup == nil {
		lookup = hcitoolName
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &NameResolver{
		lookup:   lookup,
		pause:    resolvePause,
		log:      log.WithField("component", "resolver"),
		tried:    make(map[string]int),
		resolved: make(map[string]bool),
		stop:     make(chan struct{}),
	}
}

// Start attaches the program that receives NameResolvedMsg.
func (r *NameResolver) Start(p *tea.Program) {
	r.program = p
}

// RequestResolve queues an address for background resolution. Addresses
// that were already resolved, or have used up their attempts, are ignored.
// Safe to call from any goroutine.
func (r *NameResolver) RequestResolve(address string) {
	addr := NormalizeAddress(address)
	r.mu.Lock()
	if r.stopped || r.resolved[addr] || r.tried[addr] >= maxAttempts {
		r.mu.Unlock()
		return
	}
	r.tried[addr]++
	r.mu.Unlock()

	go func() {
		if msg, ok := r.resolve(addr); ok && r.program != nil {
			r.program.Send(msg)
		}
	}()
}

func (r *NameResolver) resolve(addr string) (NameResolvedMsg, bool) {
	select {
	case <-r.stop:
		return NameResolvedMsg{}, false
	default:
	}
	// Rate limit
	select {
	case <-r.stop:
		return NameResolvedMsg{}, false
	case <-time.After(r.pause):
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	name, err := r.lookup(ctx, addr)
	if err != nil {
		r.log.WithError(err).WithField("device", addr).Debug("Name request failed")
		return NameResolvedMsg{}, false
	}
	if name = strings.TrimSpace(name); name == "" {
		return NameResolvedMsg{}, false
	}

	r.mu.Lock()
	r.resolved[addr] = true
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"device": addr, "name": name}).Debug("Resolved device name")
	return NameResolvedMsg{Address: addr, Name: name}, true
}

func hcitoolName(ctx context.Context, address string) (string, error) {
	out, err := exec.CommandContext(ctx, "hcitool", "name", strings.ToUpper(address)).Output()
	if err != nil {
		return "", errors.Wrap(err, "hcitool name")
	}
	return string(out), nil
}

// Stop terminates pending resolutions. It is safe to call more than once.
func (r *NameResolver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.stopped = true
		close(r.stop)
	}
}

// IsResolved returns true if this address has been successfully resolved.
func (r *NameResolver) IsResolved(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved[NormalizeAddress(address)]
}

// ShouldResolve returns true if this address should be attempted.
func (r *NameResolver) ShouldResolve(address string) bool {
	addr := NormalizeAddress(address)
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.stopped && !r.resolved[addr] && r.tried[addr] < maxAttempts
}
