package bluetooth

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"ble-locate.klederson.com/internal/config"
	"ble-locate.klederson.com/internal/timeutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	mu       sync.Mutex
	adverts  map[bool]int
	outcomes map[string]int
	tracked  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{adverts: make(map[bool]int), outcomes: make(map[string]int)}
}

func (c *countingRecorder) AdvertProcessed(withDistance bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adverts[withDistance]++
}

func (c *countingRecorder) PositionSolved(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[outcome]++
}

func (c *countingRecorder) DevicesTracked(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracked = n
}

func newTestRegistry(t *testing.T) (*Registry, *timeutil.MockClock, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	clock := timeutil.NewMockClock(epoch)
	return NewRegistry(testTuning(), clock, logrus.NewEntry(logger)), clock, hook
}

func TestRegistryProcess(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	rec := newCountingRecorder()
	reg.SetRecorder(rec)

	d := reg.Process("S1", Advertisement{Address: "AA:BB:CC:DD:EE:FF", RSSI: -60})
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", d.Address)
	assert.Same(t, d, reg.Device("aa:bb:cc:dd:ee:ff"))
	assert.Contains(t, d.Links(), "s1")

	reg.Process("s1", Advertisement{Address: "aa:bb:cc:dd:ee:ff"})

	assert.Equal(t, 2, reg.Count(), "scanner and device are both tracked")
	assert.Equal(t, 1, rec.adverts[true])
	assert.Equal(t, 1, rec.adverts[false])
	assert.Equal(t, 2, rec.tracked)
}

func TestRegistryLookup(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, ok := reg.Lookup("aa:bb:cc:dd:ee:ff")
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Count())

	reg.Device("AA:BB:CC:DD:EE:FF")
	d, ok := reg.Lookup("aa:bb:cc:dd:ee:ff")
	require.True(t, ok)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", d.Address)
}

func TestRegistryUserNames(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	early := reg.Device("aa:bb:cc:dd:ee:01")

	reg.SetUserNames(map[string]string{
		"AA:BB:CC:DD:EE:01": "Laptop",
		"aa:bb:cc:dd:ee:02": "Keys",
	})

	assert.Equal(t, "Laptop", early.Name())
	assert.Equal(t, "Keys", reg.Device("aa:bb:cc:dd:ee:02").Name(), "applied on creation")
}

func TestRegistryScanners(t *testing.T) {
	reg, clock, _ := newTestRegistry(t)
	local := &fakeReceiver{source: "hci0", kind: ReceiverLocal}
	remote := &fakeReceiver{
		source: "relay-1",
		kind:   ReceiverRemote,
		stamps: map[string]time.Time{"aa:bb:cc:dd:ee:ff": epoch},
	}

	reg.UpdateScanner(remote)
	_, ok := reg.Lookup("relay-1")
	assert.False(t, ok, "update does not register unknown receivers")

	reg.InitScanner(local)
	d := reg.InitScanner(remote)
	ts, ok := d.ScannerStamp("AA:BB:CC:DD:EE:FF")
	require.True(t, ok)
	assert.Equal(t, epoch, ts)

	scanners, remotes := reg.CountScanners()
	assert.Equal(t, 2, scanners)
	assert.Equal(t, 1, remotes)

	clock.Advance(time.Minute)
	remote.since = 5 * time.Second
	reg.UpdateScanner(remote)
	assert.Equal(t, epoch.Add(55*time.Second), d.ScannerLastSeen())
}

func TestRegistryComputePositions(t *testing.T) {
	reg, _, hook := newTestRegistry(t)
	rec := newCountingRecorder()
	reg.SetRecorder(rec)

	coords := map[string]Point{"s1": {0, 0}, "s2": {2, 0}, "s3": {0, 2}}
	for id := range coords {
		reg.Device(id)
	}

	located := reg.Device("aa:bb:cc:dd:ee:01")
	for id := range coords {
		located.RecordLink(id, -60, math.Sqrt2, epoch)
	}

	partial := reg.Device("aa:bb:cc:dd:ee:02")
	partial.RecordLink("s1", -60, 1, epoch)
	partial.RecordLink("s2", -60, 1, epoch)

	reg.Device("aa:bb:cc:dd:ee:03") // never heard

	positions := reg.ComputePositions(coords)
	require.Len(t, positions, 1)
	p := positions["aa:bb:cc:dd:ee:01"]
	assert.InDelta(t, 1.0, p.X, 1e-3)
	assert.InDelta(t, 1.0, p.Y, 1e-3)

	assert.Equal(t, 1, rec.outcomes[OutcomeLocated])
	assert.Equal(t, 1, rec.outcomes[OutcomeInsufficient])
	assert.Zero(t, rec.outcomes[OutcomeDegenerate])

	assert.Equal(t, positions, reg.Positions())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "aa:bb:cc:dd:ee:02", hook.LastEntry().Data["device"])
}

func TestRegistryPositionClearedWhenLinksAgeOut(t *testing.T) {
	reg, clock, _ := newTestRegistry(t)
	coords := map[string]Point{"s1": {0, 0}, "s2": {2, 0}, "s3": {0, 2}}

	d := reg.Device("aa:bb:cc:dd:ee:ff")
	for id := range coords {
		d.RecordLink(id, -60, math.Sqrt2, epoch)
	}
	require.Len(t, reg.ComputePositions(coords), 1)

	clock.Advance(time.Minute)
	assert.Zero(t, reg.Evict(5*time.Minute), "device is stale, not idle")
	require.Empty(t, d.Links())

	assert.Empty(t, reg.ComputePositions(coords))
	_, ok := d.Position()
	assert.False(t, ok)
	assert.Empty(t, reg.Positions())

	snaps := reg.Snapshot()
	require.Len(t, snaps, 1)
	assert.Nil(t, snaps[0].Position)
}

func TestRegistryClearPositions(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	coords := map[string]Point{"s1": {0, 0}, "s2": {2, 0}, "s3": {0, 2}}

	d := reg.Device("aa:bb:cc:dd:ee:ff")
	for id := range coords {
		d.RecordLink(id, -60, math.Sqrt2, epoch)
	}
	require.Len(t, reg.ComputePositions(coords), 1)

	reg.ClearPositions()
	assert.Empty(t, reg.Positions())
	assert.Len(t, d.Links(), 3, "links survive")
}

func TestRegistryComputePositionsDegenerate(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	rec := newCountingRecorder()
	reg.SetRecorder(rec)

	coords := map[string]Point{"s1": {0, 0}, "s2": {1, 0}, "s3": {2, 0}}
	d := reg.Device("aa:bb:cc:dd:ee:01")
	for id := range coords {
		d.RecordLink(id, -60, 1, epoch)
	}

	assert.Empty(t, reg.ComputePositions(coords))
	assert.Equal(t, 1, rec.outcomes[OutcomeDegenerate])
}

func TestRegistrySnapshotOrder(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	reg.Process("s1", Advertisement{Address: "aa:bb:cc:dd:ee:01", RSSI: -80})
	reg.Process("s1", Advertisement{Address: "aa:bb:cc:dd:ee:02", RSSI: -50})
	reg.Process("s1", Advertisement{Address: "aa:bb:cc:dd:ee:03", RSSI: -65})

	snaps := reg.Snapshot()
	require.Len(t, snaps, 4)
	assert.Equal(t, "aa:bb:cc:dd:ee:02", snaps[0].Address)
	assert.Equal(t, "aa:bb:cc:dd:ee:03", snaps[1].Address)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", snaps[2].Address)
	assert.Equal(t, "s1", snaps[3].Address, "never-heard scanner sorts last")
}

func TestRegistryEvict(t *testing.T) {
	reg, clock, _ := newTestRegistry(t)
	reg.InitScanner(&fakeReceiver{source: "s1"})

	reg.Process("s1", Advertisement{Address: "aa:bb:cc:dd:ee:01", RSSI: -60})
	clock.Advance(4 * time.Minute)
	reg.Process("s1", Advertisement{Address: "aa:bb:cc:dd:ee:02", RSSI: -60})
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, reg.Evict(config.DeviceTimeout))
	_, ok := reg.Lookup("aa:bb:cc:dd:ee:01")
	assert.False(t, ok)

	kept, ok := reg.Lookup("aa:bb:cc:dd:ee:02")
	require.True(t, ok)
	assert.Empty(t, kept.Links(), "links older than max age are pruned")

	_, ok = reg.Lookup("s1")
	assert.True(t, ok, "scanners are never evicted")
}

func TestRegistryConcurrentProcess(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	coords := map[string]Point{"s0": {0, 0}, "s1": {10, 0}, "s2": {0, 10}}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				addr := fmt.Sprintf("aa:bb:cc:dd:ee:%02x", i%8)
				reg.Process(fmt.Sprintf("s%d", (w+i)%3), Advertisement{Address: addr, RSSI: -70})
				if i%20 == 0 {
					reg.ComputePositions(coords)
					_ = reg.Snapshot()
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 11, reg.Count())
}

func TestCoords(t *testing.T) {
	got := Coords(map[string]config.Coord{" AA:BB:CC:DD:EE:FF ": {X: 1, Y: 2}})
	assert.Equal(t, map[string]Point{"aa:bb:cc:dd:ee:ff": {1, 2}}, got)
}
