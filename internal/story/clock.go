package story

import (
	"strconv"
	"sync"
	"time"
)

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// OfflineIDGenerator produces client-side IDs of the form
// "offline-<unix millis>". IDs are strictly increasing within a process,
// so two entries created in the same millisecond still get distinct IDs.
type OfflineIDGenerator struct {
	clock Clock
	mu    sync.Mutex
	last  int64
}

func NewOfflineIDGenerator(clock Clock) *OfflineIDGenerator {
	return &OfflineIDGenerator{clock: clock}
}

func (g *OfflineIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.clock.Now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return "offline-" + strconv.FormatInt(ms, 10)
}
