package testutil

import (
	"sync"
	"time"

	"storysync/internal/story"
)

// StubClock is a settable clock. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ story.Clock = (*StubClock)(nil)

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock at 2024-01-15 10:30:00 UTC, which is
// 1705314600000 in Unix milliseconds.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock by d. A negative d moves it back.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ScriptedIDs hands out the given ids in order and keeps repeating the
// last one once the script runs out.
type ScriptedIDs struct {
	mu    sync.Mutex
	ids   []string
	calls int
}

var _ story.IDGenerator = (*ScriptedIDs)(nil)

func NewScriptedIDs(ids ...string) *ScriptedIDs {
	if len(ids) == 0 {
		panic("testutil: NewScriptedIDs needs at least one id")
	}
	return &ScriptedIDs{ids: ids}
}

func (g *ScriptedIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := min(g.calls, len(g.ids)-1)
	g.calls++
	return g.ids[i]
}

// Calls returns how many ids have been handed out.
func (g *ScriptedIDs) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
